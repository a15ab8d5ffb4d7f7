// Package config loads the settings of the command line tool.
//
// Values are taken from the defaults, then the YAML file (HDB_CONFIG or ~/.config/hdb/config.yaml),
// then the HDB_* environment variables. Command line flags override all of them.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	configEnv     = "HDB_CONFIG"
	groupDirEnv   = "HDB_GROUPDIR"
	mountPointEnv = "HDB_MOUNTPOINT"
	fstypeEnv     = "HDB_FSTYPE"
)

type Settings struct {
	// GroupDir is the repository of file sets, one per volume.
	GroupDir   string `yaml:"groupdir"`
	MountPoint string `yaml:"mountpoint"`
	Filesystem string `yaml:"fstype"`
	Eject      bool   `yaml:"eject"`
	Encrypt    bool   `yaml:"encrypt"`
	// Lookup reuses recorded digests of unchanged files instead of reading them again.
	Lookup            bool `yaml:"lookup"`
	SkipBackedUp      bool `yaml:"skip_backed_up"`
	PreserveAtime     bool `yaml:"preserve_atime"`
	PreserveOwnership bool `yaml:"preserve_ownership"`
}

func Defaults() Settings {
	home, _ := os.UserHomeDir()
	return Settings{
		GroupDir:   filepath.Join(home, ".hdb"),
		MountPoint: "/mnt",
		Filesystem: "reiserfs",
		Eject:      true,
	}
}

// DefaultPath is where the settings file is looked for.
func DefaultPath() string {
	if path := os.Getenv(configEnv); path != "" {
		return path
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "hdb", "config.yaml")
}

// Load reads the settings file at DefaultPath if it exists. A file requested via HDB_CONFIG must exist.
func Load() (Settings, error) {
	path := DefaultPath()
	settings, err := LoadFile(path)
	if errors.Is(err, fs.ErrNotExist) && os.Getenv(configEnv) == "" {
		settings = Defaults()
		settings.applyEnvironment()
		return settings, nil
	}
	return settings, err
}

// LoadFile reads the settings file at path on top of the defaults and applies the environment.
func LoadFile(path string) (Settings, error) {
	settings := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return settings, err
	}
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return settings, fmt.Errorf("parsing settings file %s: %w", path, err)
	}
	settings.applyEnvironment()
	return settings, nil
}

func (s *Settings) applyEnvironment() {
	for env, target := range map[string]*string{
		groupDirEnv:   &s.GroupDir,
		mountPointEnv: &s.MountPoint,
		fstypeEnv:     &s.Filesystem,
	} {
		if value := os.Getenv(env); value != "" {
			*target = value
		}
	}
}
