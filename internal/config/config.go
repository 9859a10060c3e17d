// Package config decodes the configuration surface consumed by the
// autochanger core: per-Changer device name and command template, the
// list of Drives it owns, and per-Drive overrides and capability
// flags. It covers only the fields this core consumes, not the
// broader daemon configuration.
package config

import (
	"os"
	"path/filepath"

	"github.com/OpenPeeDeeP/xdg"
	yaml "github.com/jesseduffield/yaml"
)

// DriveConfig is the per-Drive configuration surface. ChangerName may
// be left empty to inherit from the owning Changer at init time; Name
// is not inherited. ChangerCommand is a *string rather than a plain string
// so init can tell "directive never configured" (nil, inherit or
// fail) apart from "directive explicitly set to the empty string"
// (non-nil, the documented virtual-changer marker).
type DriveConfig struct {
	Name           string  `yaml:"name"`
	ChangerName    string  `yaml:"changerName,omitempty"`
	ChangerCommand *string `yaml:"changerCommand,omitempty"`
	MaxChangerWait int     `yaml:"maxChangerWait,omitempty"` // seconds
	AlwaysOpen     bool    `yaml:"alwaysOpen,omitempty"`
}

// ChangerConfig is the per-Changer configuration surface. ChangerCommand
// carries the same nil-vs-empty-string distinction as DriveConfig's.
type ChangerConfig struct {
	Name           string         `yaml:"name"`
	ChangerName    string         `yaml:"changerName,omitempty"`
	ChangerCommand *string        `yaml:"changerCommand,omitempty"`
	Drives         []*DriveConfig `yaml:"drives,omitempty"`
}

// Config is the top-level daemon configuration.
type Config struct {
	Debug     bool             `yaml:"debug,omitempty"`
	ConfigDir string           `yaml:"-"`
	Changers  []*ChangerConfig `yaml:"changers,omitempty"`
}

func defaultConfigDir(name string) string {
	if dir := os.Getenv("CONFIG_DIR"); dir != "" {
		return dir
	}
	dirs := xdg.New("", name)
	return dirs.ConfigHome()
}

// Load reads and decodes the daemon's YAML configuration file,
// creating an empty one on first run if none exists yet.
func Load(name string, debug bool) (*Config, error) {
	configDir := defaultConfigDir(name)
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, err
	}

	cfg := &Config{Debug: debug, ConfigDir: configDir}

	fileName := filepath.Join(configDir, "autochangerd.yml")
	if _, err := os.Stat(fileName); err != nil {
		if os.IsNotExist(err) {
			f, err := os.Create(fileName)
			if err != nil {
				return nil, err
			}
			f.Close()
			return cfg, nil
		}
		return nil, err
	}

	content, err := os.ReadFile(fileName)
	if err != nil {
		return nil, err
	}
	if len(content) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(content, cfg); err != nil {
		return nil, err
	}
	cfg.ConfigDir = configDir
	cfg.Debug = cfg.Debug || debug
	return cfg, nil
}

// Virtual reports whether a resolved changer command template marks a
// virtual changer: an empty template. It takes the merged, already-
// resolved string (see changer.Init), not the raw *string directive.
func Virtual(changerCommand string) bool {
	return changerCommand == ""
}
