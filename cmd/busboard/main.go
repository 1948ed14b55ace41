package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/maloquacious/semver"
	"github.com/spf13/cobra"

	"github.com/maloquacious/busboard/internal/adminapi"
	"github.com/maloquacious/busboard/internal/config"
	"github.com/maloquacious/busboard/internal/logger"
	"github.com/maloquacious/busboard/internal/store"
	"github.com/maloquacious/busboard/internal/tenant"
	"github.com/maloquacious/busboard/internal/web"
)

var (
	version   = semver.Version{Minor: 2, PreRelease: "alpha", Build: semver.Commit()}
	buildDate = ""
)

var (
	configPath string
	dataDir    string
	mode       string
	busSort    string
	logLevel   string
	shutdownTO string

	port      int
	adminPort int
	exitAfter time.Duration
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "busboard",
		Short:        "School bus, driver and run tracker",
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "busboard.toml", "path to the TOML config file")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "directory holding the store files")
	rootCmd.PersistentFlags().StringVar(&mode, "mode", "", "deployment mode: single or multi")
	rootCmd.PersistentFlags().StringVar(&busSort, "bus-sort", "", "bus number order: numeric or lexical")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "minimum log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&shutdownTO, "shutdown-timeout", "", "graceful shutdown timeout")

	// serve command
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the busboard server",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	serveCmd.Flags().IntVar(&port, "port", 0, "public HTTP port (HTML)")
	serveCmd.Flags().IntVar(&adminPort, "admin-port", 0, "admin HTTP port (JSON, loopback only)")
	serveCmd.Flags().DurationVar(&exitAfter, "exit-after", 0, "optional runtime; if set, server exits after this duration (testing)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "busboard %s\n", version.String())
			if buildDate != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "built %s\n", buildDate)
			}
		},
	}

	rootCmd.AddCommand(serveCmd, newDBCmd(), versionCmd)
	return rootCmd
}

// loadConfig reads the config file and environment, then applies any global
// flags the user set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	for _, f := range []struct {
		name string
		src  string
		dst  *string
	}{
		{"data-dir", dataDir, &cfg.DataDir},
		{"mode", mode, &cfg.Mode},
		{"bus-sort", busSort, &cfg.BusSort},
		{"log-level", logLevel, &cfg.LogLevel},
		{"shutdown-timeout", shutdownTO, &cfg.ShutdownTimeout},
	} {
		if flags.Changed(f.name) {
			*f.dst = f.src
		}
	}
	if flags.Lookup("port") != nil && flags.Changed("port") {
		cfg.Port = port
	}
	if flags.Lookup("admin-port") != nil && flags.Changed("admin-port") {
		cfg.AdminPort = adminPort
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (logger.Logger, error) {
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, &config.ConfigError{Field: "log_level", Message: err.Error()}
	}
	return logger.New(os.Stdout, level), nil
}

// newProvisioner maps the validated config onto a tenant provisioner.
func newProvisioner(cfg *config.Config, log logger.Logger) (*tenant.Provisioner, error) {
	m := tenant.Multi
	if cfg.Mode == config.ModeSingle {
		m = tenant.Single
	}
	s := store.SortNumeric
	if cfg.BusSort == config.SortLexical {
		s = store.SortLexical
	}
	return tenant.New(cfg.DataDir, m, s, log)
}

// runServe starts both the public (HTML) and admin (JSON) servers with graceful shutdown.
func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	shutdownTimeout, err := cfg.Shutdown()
	if err != nil {
		return err
	}

	tenants, err := newProvisioner(cfg, log)
	if err != nil {
		return err
	}
	site, err := web.New(tenants, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	admin := adminapi.New(tenants, adminapi.BuildInfo{
		Version:   version.String(),
		BuildDate: buildDate,
	}, log, adminapi.ShutdownFunc(stop))

	publicSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           site.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          logger.StdLog(log, "public: "),
	}

	// Bind admin to 127.0.0.1 only (loopback enforcement)
	adminListener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", cfg.AdminPort))
	if err != nil {
		return fmt.Errorf("admin listener bind failed (loopback only): %w", err)
	}
	adminSrv := &http.Server{
		Handler:           admin.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          logger.StdLog(log, "admin: "),
	}

	errCh := make(chan error, 2)

	go func() {
		log.Info("public server listening on :%d (%s mode, data %s)", cfg.Port, cfg.Mode, cfg.DataDir)
		if err := publicSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("public server error: %w", err)
		}
	}()

	go func() {
		log.Info("admin server listening on 127.0.0.1:%d (JSON-only)", cfg.AdminPort)
		if err := adminSrv.Serve(adminListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("admin server error: %w", err)
		}
	}()

	// Optional run timer
	if exitAfter > 0 {
		log.Info("exit-after timer set: %s", exitAfter)
		timer := time.AfterFunc(exitAfter, stop)
		defer timer.Stop()
	}

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown requested")
	case serveErr = <-errCh:
		log.Error("%v", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Stores are closed per request, so draining in-flight requests is enough.
	if err := publicSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("public server shutdown: %v", err)
	}
	if err := adminSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("admin server shutdown: %v", err)
	}
	log.Info("shutdown complete")
	return serveErr
}
