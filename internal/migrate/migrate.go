// Package migrate upgrades versioned on-disk files one schema version at a
// time. Each file kind owns a [Registry].
package migrate

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
)

// Migration upgrades data to Version from the version before it.
type Migration struct {
	Version     int
	Description string
	Upgrade     func(data []byte) ([]byte, error)
}

// Registry holds the current schema version and the migrations for one
// file kind.
type Registry struct {
	// Name labels the file kind in logs.
	Name string
	// CurrentVersion is the version this build writes.
	CurrentVersion int
	// Migrations is exported so tests can substitute their own list.
	Migrations []Migration
}

// Register adds m. A duplicate version panics.
func (r *Registry) Register(m Migration) {
	if slices.ContainsFunc(r.Migrations, func(e Migration) bool { return e.Version == m.Version }) {
		panic(fmt.Sprintf("migrate: duplicate %s migration version %d (%q)", r.Name, m.Version, m.Description))
	}
	r.Migrations = append(r.Migrations, m)
}

// NeedsMigration reports whether a file at fileVersion is out of date.
func (r *Registry) NeedsMigration(fileVersion int) bool {
	if fileVersion != r.CurrentVersion {
		return true
	}
	return slices.ContainsFunc(r.Migrations, func(m Migration) bool { return fileVersion < m.Version })
}

// Run applies, in version order, every migration newer than fromVersion.
// It returns the upgraded data and the version reached.
func (r *Registry) Run(data []byte, fromVersion int) ([]byte, int, error) {
	sorted := slices.Clone(r.Migrations)
	slices.SortFunc(sorted, func(a, b Migration) int { return a.Version - b.Version })

	version := fromVersion
	for _, m := range sorted {
		if version >= m.Version {
			continue
		}
		slog.Info("applying migration", "file", r.Name, "version", m.Version, "description", m.Description)
		var err error
		if data, err = m.Upgrade(data); err != nil {
			return nil, version, fmt.Errorf("%s migration to v%d: %w", r.Name, m.Version, err)
		}
		version = m.Version
	}
	return data, version, nil
}

// Apply upgrades data read from a file at fileVersion. When an upgrade is
// needed the original bytes are first copied to backupPath (if non-empty).
// migrated tells the caller to save the result.
func (r *Registry) Apply(data []byte, fileVersion int, backupPath string) (out []byte, migrated bool, err error) {
	if !r.NeedsMigration(fileVersion) {
		return data, false, nil
	}
	if backupPath != "" {
		if err := os.WriteFile(backupPath, data, 0o600); err != nil {
			slog.Warn("writing pre-migration backup", "file", r.Name, "path", backupPath, "error", err)
		}
	}
	out, _, err = r.Run(data, fileVersion)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}
