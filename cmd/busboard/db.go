package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/maloquacious/busboard/internal/store"
	"github.com/maloquacious/busboard/internal/tenant"
)

var (
	district     string
	allDistricts bool
)

// errNotReady is returned by db verify when any store is behind or missing.
var errNotReady = errors.New("one or more stores are not ready")

func newDBCmd() *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	dbCreateCmd := &cobra.Command{
		Use:   "create",
		Short: "Create and initialize a district store",
		Args:  cobra.NoArgs,
		RunE:  runDBCreate,
	}
	dbUpgradeCmd := &cobra.Command{
		Use:   "upgrade",
		Short: "Apply migrations to current schema version",
		Args:  cobra.NoArgs,
		RunE:  runDBUpgrade,
	}
	dbVerifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify schema integrity and version",
		Args:  cobra.NoArgs,
		RunE:  runDBVerify,
	}
	dbListCmd := &cobra.Command{
		Use:   "list",
		Short: "List district stores in the data directory",
		Args:  cobra.NoArgs,
		RunE:  runDBList,
	}

	for _, c := range []*cobra.Command{dbCreateCmd, dbUpgradeCmd, dbVerifyCmd} {
		c.Flags().StringVar(&district, "district", "", "district id (ignored in single mode)")
	}
	for _, c := range []*cobra.Command{dbUpgradeCmd, dbVerifyCmd} {
		c.Flags().BoolVar(&allDistricts, "all", false, "apply to every district store")
		c.MarkFlagsMutuallyExclusive("district", "all")
	}

	dbCmd.AddCommand(dbCreateCmd, dbUpgradeCmd, dbVerifyCmd, dbListCmd)
	return dbCmd
}

func dbProvisioner(cmd *cobra.Command) (*tenant.Provisioner, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	return newProvisioner(cfg, log)
}

// targets resolves the districts a db subcommand operates on.
func targets(p *tenant.Provisioner, all bool) ([]string, error) {
	switch {
	case p.Mode() == tenant.Single:
		return []string{""}, nil
	case all:
		return p.List()
	case district == "":
		return nil, errors.New("--district is required in multi mode")
	}
	return []string{district}, nil
}

func runDBCreate(cmd *cobra.Command, args []string) error {
	p, err := dbProvisioner(cmd)
	if err != nil {
		return err
	}
	ids, err := targets(p, false)
	if err != nil {
		return err
	}
	return ensureAll(cmd.Context(), cmd.OutOrStdout(), p, ids, "created")
}

func runDBUpgrade(cmd *cobra.Command, args []string) error {
	p, err := dbProvisioner(cmd)
	if err != nil {
		return err
	}
	ids, err := targets(p, allDistricts)
	if err != nil {
		return err
	}
	return ensureAll(cmd.Context(), cmd.OutOrStdout(), p, ids, "upgraded")
}

// ensureAll provisions or migrates each district store in turn.
func ensureAll(ctx context.Context, w io.Writer, p *tenant.Provisioner, ids []string, verb string) error {
	for _, id := range ids {
		s, err := p.EnsureStore(ctx, id)
		if err != nil {
			return fmt.Errorf("district %q: %w", id, err)
		}
		fmt.Fprintf(w, "%s %s\n", verb, s.Path())
		if err := s.Close(); err != nil {
			return fmt.Errorf("district %q: close: %w", id, err)
		}
	}
	return nil
}

func runDBVerify(cmd *cobra.Command, args []string) error {
	p, err := dbProvisioner(cmd)
	if err != nil {
		return err
	}
	ids, err := targets(p, allDistricts)
	if err != nil {
		return err
	}
	return verifyAll(cmd.Context(), cmd.OutOrStdout(), p, ids)
}

// verifyAll writes a JSON summary of every store and fails if any store is
// not ready.
func verifyAll(ctx context.Context, w io.Writer, p *tenant.Provisioner, ids []string) error {
	out := make([]tenant.Status, 0, len(ids))
	ready := true
	for _, id := range ids {
		st, err := p.Verify(ctx, id)
		if err != nil {
			return fmt.Errorf("district %q: %w", id, err)
		}
		if st.State != store.StateReady.String() {
			ready = false
		}
		out = append(out, st)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return err
	}
	if !ready {
		return errNotReady
	}
	return nil
}

func runDBList(cmd *cobra.Command, args []string) error {
	p, err := dbProvisioner(cmd)
	if err != nil {
		return err
	}
	if p.Mode() == tenant.Single {
		fmt.Fprintln(cmd.OutOrStdout(), store.GetDBPath(p.DataDir()))
		return nil
	}
	ids, err := p.List()
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Fprintln(cmd.OutOrStdout(), id)
	}
	return nil
}
