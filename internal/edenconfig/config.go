// Package edenconfig loads the supervisor/daemon configuration described in
// spec.md §6 ("Monitor CLI flags"): a YAML file of defaults, overridable by
// command-line flags.
package edenconfig

import (
	"os"
	"path/filepath"

	"github.com/imdario/mergo"
	"gopkg.in/yaml.v3"

	"github.com/edenfs-go/edencore/internal/edenlog"
)

// Config holds the Monitor settings that can come from the YAML file (binary
// paths, poll interval, log level and rotation limits), plus the
// state-directory location the rest of the daemon lifecycle code needs. It
// does not carry the self-restart handoff values (restart, child pid, child
// pipe); those live in supervisor.Config.
type Config struct {
	StateDir             string `yaml:"stateDir"`
	EdenfsPath           string `yaml:"edenfs"`
	EdenfsctlPath        string `yaml:"edenfsctl"`
	CatExePath           string `yaml:"catExe"`
	PollIntervalMs       int    `yaml:"edenfsPollIntervalMs"`
	LogLevel             string `yaml:"logLevel"`
	LogMaxSizeBytes      int64  `yaml:"logMaxSizeBytes"`
	LogMaxRotatedFiles   int    `yaml:"logMaxRotatedFiles"`

	// TreeCacheBytes/BlobCacheBytes/BlobMetadataCacheEntries size the
	// in-memory caches edenfsd hands to the ObjectStore. Not present in
	// spec.md's own Monitor CLI flag list; added so the daemon's cache
	// budgets are configurable rather than hardcoded.
	TreeCacheBytes          int64 `yaml:"treeCacheBytes"`
	BlobCacheBytes          int64 `yaml:"blobCacheBytes"`
	BlobMetadataCacheEntries int64 `yaml:"blobMetadataCacheEntries"`
}

// DefaultConfigPath returns the default config location for the supervisor,
// mirroring the teacher's XDG-based DefaultConfigPath.
func DefaultConfigPath() string {
	confDir, err := os.UserConfigDir()
	if err != nil {
		edenlog.Error().Err(err).Msg("could not determine configuration directory")
	}
	return filepath.Join(confDir, "edenfs/config.yml")
}

func createDefaults() Config {
	xdgStateDir, err := os.UserCacheDir()
	if err != nil {
		xdgStateDir = os.TempDir()
	}
	return Config{
		StateDir:           filepath.Join(xdgStateDir, "eden"),
		EdenfsPath:         "/usr/local/libexec/eden/edenfs",
		EdenfsctlPath:      "",
		CatExePath:         "/bin/cat",
		PollIntervalMs:     5000,
		LogLevel:           "info",
		LogMaxSizeBytes:    10 * 1024 * 1024,
		LogMaxRotatedFiles: 10,

		TreeCacheBytes:           128 * 1024 * 1024,
		BlobCacheBytes:           256 * 1024 * 1024,
		BlobMetadataCacheEntries: 1_000_000,
	}
}

func readConfigFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func parseConfig(data []byte) (*Config, error) {
	config := &Config{}
	err := yaml.Unmarshal(data, config)
	return config, err
}

func mergeWithDefaults(config *Config, defaults Config) error {
	return mergo.Merge(config, defaults)
}

// LoadConfig is the primary way of loading the supervisor's config: read the
// YAML file at path, merge missing fields from defaults, and fall back to
// pure defaults if the file is absent or malformed.
func LoadConfig(path string) *Config {
	defaults := createDefaults()

	raw, err := readConfigFile(path)
	if err != nil {
		edenlog.Warn().Err(err).Str("path", path).Msg("configuration file not found, using defaults")
		return &defaults
	}

	config, err := parseConfig(raw)
	if err != nil {
		edenlog.Error().Err(err).Str("path", path).Msg("could not parse configuration file, using defaults")
		return &defaults
	}

	if err := mergeWithDefaults(config, defaults); err != nil {
		edenlog.Error().Err(err).Str("path", path).Msg("could not merge configuration with defaults")
		return &defaults
	}

	return config
}

// WriteConfig persists c as YAML at path, creating parent directories as needed.
func (c Config) WriteConfig(path string) error {
	out, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return os.WriteFile(path, out, 0600)
}
