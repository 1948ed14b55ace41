package store

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

const (
	// DefaultDBFile is the single-tenant store file.
	DefaultDBFile = "buses.db"

	// DistrictExt is the file extension of per-district stores.
	DistrictExt = ".db"
)

var districtPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,62}$`)

// NormalizeDistrict lower-cases id and checks it can safely name a file in
// the data directory. Anything with separators, dots or leading punctuation
// is rejected.
func NormalizeDistrict(id string) (string, error) {
	norm := strings.ToLower(id)
	if !districtPattern.MatchString(norm) {
		return "", fmt.Errorf("%w: %q", ErrInvalidDistrict, id)
	}
	return norm, nil
}

// CheckExists verifies if the datastore exists at the given path.
// Returns true if the store exists, false otherwise.
func CheckExists(dbPath string) (bool, error) {
	info, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check store existence: %w", err)
	}
	if info.IsDir() {
		return false, fmt.Errorf("datastore path is a directory, expected file: %s", dbPath)
	}
	return true, nil
}

// GetDBPath returns the single-tenant database file under dataDir.
func GetDBPath(dataDir string) string {
	return filepath.Join(dataDir, DefaultDBFile)
}

// DistrictPath returns the database file for a district. The id must
// already be normalized.
func DistrictPath(dataDir, district string) string {
	return filepath.Join(dataDir, district+DistrictExt)
}

// ListDistricts enumerates district stores in dataDir, sorted by id.
// Files whose names are not valid district ids are skipped.
func ListDistricts(dataDir string) ([]string, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read data directory: %w", err)
	}

	var districts []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != DistrictExt {
			continue
		}
		id := strings.TrimSuffix(name, DistrictExt)
		if !districtPattern.MatchString(id) {
			continue
		}
		districts = append(districts, id)
	}
	sort.Strings(districts)
	return districts, nil
}
