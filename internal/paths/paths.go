// Package paths resolves where closet keeps its configuration and its
// collections.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// AppName names the per-user directories.
const AppName = "closet"

// ConfigFileName is the viper config file inside the config directory.
const ConfigFileName = "config.yaml"

// Environment variable names for directory overrides.
const (
	EnvConfigDir = "CLOSET_CONFIG_DIR"
	EnvDataDir   = "CLOSET_DATA_DIR"
)

// platformDir holds platform-detection functions that tests override.
var platformDir = struct {
	goos          string
	homeDir       func() (string, error)
	userConfigDir func() (string, error)
}{
	goos:          runtime.GOOS,
	homeDir:       os.UserHomeDir,
	userConfigDir: os.UserConfigDir,
}

// xdgDir returns $envVar/closet, falling back to ~/<fallback...>/closet.
func xdgDir(envVar string, fallback ...string) (string, error) {
	if xdg := os.Getenv(envVar); xdg != "" {
		return filepath.Join(xdg, AppName), nil
	}
	home, err := platformDir.homeDir()
	if err != nil {
		return "", fmt.Errorf("locating home directory: %w", err)
	}
	return filepath.Join(append(append([]string{home}, fallback...), AppName)...), nil
}

// DefaultConfigDir returns the platform default configuration directory.
//
// Linux:   $XDG_CONFIG_HOME/closet (fallback ~/.config/closet)
// Others:  os.UserConfigDir()/closet
func DefaultConfigDir() (string, error) {
	if platformDir.goos == "linux" {
		return xdgDir("XDG_CONFIG_HOME", ".config")
	}
	dir, err := platformDir.userConfigDir()
	if err != nil {
		return "", fmt.Errorf("locating config directory: %w", err)
	}
	return filepath.Join(dir, AppName), nil
}

// DefaultDataDir returns the platform default root for collections.
//
// Linux:   $XDG_DATA_HOME/closet (fallback ~/.local/share/closet)
// Others:  os.UserConfigDir()/closet/collections
func DefaultDataDir() (string, error) {
	if platformDir.goos == "linux" {
		return xdgDir("XDG_DATA_HOME", ".local", "share")
	}
	dir, err := platformDir.userConfigDir()
	if err != nil {
		return "", fmt.Errorf("locating data directory: %w", err)
	}
	return filepath.Join(dir, AppName, "collections"), nil
}

// ResolveConfigDir applies the precedence flag > CLOSET_CONFIG_DIR >
// DefaultConfigDir. Explicit values are made absolute.
func ResolveConfigDir(flag string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if env := os.Getenv(EnvConfigDir); env != "" {
		return filepath.Abs(env)
	}
	return DefaultConfigDir()
}

// ResolveDataDir applies the precedence flag > config file value >
// CLOSET_DATA_DIR > DefaultDataDir.
func ResolveDataDir(flag, configValue string) (string, error) {
	for _, v := range []string{flag, configValue, os.Getenv(EnvDataDir)} {
		if v != "" {
			return filepath.Abs(expandHome(v))
		}
	}
	return DefaultDataDir()
}

// CollectionDir returns the directory of the named collection under dataDir.
// Names may not contain path separators or be "." or "..".
func CollectionDir(dataDir, name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("invalid collection name %q", name)
	}
	return filepath.Join(dataDir, name), nil
}

func expandHome(p string) string {
	rest, ok := strings.CutPrefix(p, "~/")
	if !ok {
		return p
	}
	home, err := platformDir.homeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, rest)
}
