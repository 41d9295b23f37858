// Package paths names every file richcord keeps in its data directory.
package paths

import (
	"os"
	"path/filepath"
)

// Data directory file names.
const (
	ConfigFile   = "config.toml"
	ProfilesFile = "profiles.toml"
	LogFile      = "daemon.log"
	PIDFile      = "daemon.pid"
)

const (
	BinaryName = "richcord"
	// DataDirRel is the data directory relative to $HOME.
	DataDirRel = ".richcord"
	// DataDirEnv overrides the data directory.
	DataDirEnv = "RICHCORD_HOME"
)

// ReleaseManifest is the repo-relative path of the release manifest used by
// the update check.
const ReleaseManifest = ".release-manifest.json"

// DataDir builds paths under a data directory root.
type DataDir struct {
	Root string
}

// Default returns the data directory from $RICHCORD_HOME, falling back to
// ~/.richcord, or ./.richcord when no home directory is known.
func Default() DataDir {
	if dir := os.Getenv(DataDirEnv); dir != "" {
		return DataDir{Root: dir}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return DataDir{Root: DataDirRel}
	}
	return DataDir{Root: filepath.Join(home, DataDirRel)}
}

func (d DataDir) Config() string   { return filepath.Join(d.Root, ConfigFile) }
func (d DataDir) Profiles() string { return filepath.Join(d.Root, ProfilesFile) }
func (d DataDir) Log() string      { return filepath.Join(d.Root, LogFile) }
func (d DataDir) PID() string      { return filepath.Join(d.Root, PIDFile) }

// Ensure creates the data directory.
func (d DataDir) Ensure() error {
	return os.MkdirAll(d.Root, 0o700)
}
