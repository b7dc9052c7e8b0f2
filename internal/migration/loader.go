package migration

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// filenamePattern matches migration files of the form
//
//	v<ordinal>-<description>.sql  (e.g., v1-create-org.sql)
//
// An uppercase V and an underscore separator are also accepted.
var filenamePattern = regexp.MustCompile( //nolint:gochecknoglobals // compiled once, used by LoadFromDir
	`^[vV](\d+)[-_](.+)\.sql$`,
)

// LoadFromDir reads every .sql file in dir and returns the scripts sorted
// strictly ascending by version. Files without a .sql extension are ignored.
// A .sql file whose name does not match the expected pattern fails the load,
// as does a pair of files declaring the same version: silently skipping
// either would change which migrations run.
func LoadFromDir(dir string) ([]Script, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrSourceUnreadable, dir, err)
	}

	var scripts []Script

	seen := make(map[int64]string)

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		s, err := readScript(dir, entry.Name())
		if err != nil {
			return nil, err
		}

		if prev, ok := seen[s.Version]; ok {
			return nil, fmt.Errorf("%w: %d declared by both %s and %s",
				ErrDuplicateVersion, s.Version, prev, entry.Name())
		}

		seen[s.Version] = entry.Name()
		scripts = append(scripts, s)
	}

	return Sort(scripts), nil
}

// readScript parses the version and description from name and reads the file body.
func readScript(dir, name string) (Script, error) {
	matches := filenamePattern.FindStringSubmatch(name)
	if matches == nil {
		return Script{}, fmt.Errorf("%w: %s (expected v<ordinal>-<description>.sql)", ErrBadScriptName, name)
	}

	version, err := strconv.ParseInt(matches[1], 10, 64)
	if err != nil {
		return Script{}, fmt.Errorf("%w: %s: %w", ErrBadScriptName, name, err)
	}

	path := filepath.Join(dir, name)

	data, err := os.ReadFile(path)
	if err != nil {
		return Script{}, fmt.Errorf("%w: reading %s: %w", ErrSourceUnreadable, path, err)
	}

	sql := string(data)

	return Script{
		Version:     version,
		Description: matches[2],
		SQL:         sql,
		Checksum:    ComputeChecksum(sql),
		FilePath:    path,
	}, nil
}
