package config

import (
	"encoding/json"
	"fmt"
	"net"
	"path/filepath"
	"time"

	"github.com/banshee-data/coolweather/internal/fsutil"
)

// Default values used when neither the config file nor the environment
// sets a field.
const (
	DefaultDataDir     = "."
	DefaultBusyTimeout = 5 * time.Second
	DefaultAdminListen = "localhost:8081"
)

// StoreConfig locates the region store and tunes its connection.
// Fields are pointers so a partial JSON file only overrides what it names.
type StoreConfig struct {
	// DBPath is the full path of the database file. When unset the file
	// lives in DataDir under its fixed name.
	DBPath *string `json:"db_path,omitempty"`
	// DataDir is the application storage directory.
	DataDir *string `json:"data_dir,omitempty"`
	// BusyTimeout is a duration string like "5s".
	BusyTimeout *string `json:"busy_timeout,omitempty"`
	// AdminListen is the address for `regiondb serve`.
	AdminListen *string `json:"admin_listen,omitempty"`
}

// envOverrides mirrors StoreConfig for environment parsing. Empty means unset.
type envOverrides struct {
	DBPath      string `env:"COOLWEATHER_DB_PATH"`
	DataDir     string `env:"COOLWEATHER_DATA_DIR"`
	BusyTimeout string `env:"COOLWEATHER_BUSY_TIMEOUT"`
	AdminListen string `env:"COOLWEATHER_ADMIN_LISTEN"`
}

func ptrString(v string) *string { return &v }

// EmptyStoreConfig returns a StoreConfig with all fields set to nil.
func EmptyStoreConfig() *StoreConfig {
	return &StoreConfig{}
}

// Load builds the effective configuration: the JSON file at path (optional,
// skipped when path is empty), then COOLWEATHER_* environment overrides.
func Load(fsys fsutil.FileSystem, path string) (*StoreConfig, error) {
	cfg := EmptyStoreConfig()
	if path != "" {
		var err error
		if cfg, err = LoadStoreConfig(fsys, path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadStoreConfig loads a StoreConfig from a JSON file.
// The file must have a .json extension and be under the max file size.
func LoadStoreConfig(fsys fsutil.FileSystem, path string) (*StoreConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := fsys.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := fsys.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyStoreConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overrides fields from COOLWEATHER_* environment variables.
func (c *StoreConfig) ApplyEnv() error {
	var env envOverrides
	if err := ParseEnv(&env); err != nil {
		return err
	}
	if env.DBPath != "" {
		c.DBPath = ptrString(env.DBPath)
	}
	if env.DataDir != "" {
		c.DataDir = ptrString(env.DataDir)
	}
	if env.BusyTimeout != "" {
		c.BusyTimeout = ptrString(env.BusyTimeout)
	}
	if env.AdminListen != "" {
		c.AdminListen = ptrString(env.AdminListen)
	}
	return nil
}

// Validate checks that the configuration values are valid.
func (c *StoreConfig) Validate() error {
	if c.BusyTimeout != nil && *c.BusyTimeout != "" {
		d, err := time.ParseDuration(*c.BusyTimeout)
		if err != nil {
			return fmt.Errorf("invalid busy_timeout '%s': %w", *c.BusyTimeout, err)
		}
		if d < 0 {
			return fmt.Errorf("busy_timeout must be non-negative, got %s", d)
		}
	}

	if c.AdminListen != nil && *c.AdminListen != "" {
		if _, _, err := net.SplitHostPort(*c.AdminListen); err != nil {
			return fmt.Errorf("invalid admin_listen '%s': %w", *c.AdminListen, err)
		}
	}

	if c.DataDir != nil && *c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty when set")
	}

	return nil
}

// GetDataDir returns the storage directory or the default.
func (c *StoreConfig) GetDataDir() string {
	if c.DataDir == nil || *c.DataDir == "" {
		return DefaultDataDir
	}
	return *c.DataDir
}

// GetDBPath returns DBPath when set, otherwise fileName inside the data dir.
func (c *StoreConfig) GetDBPath(fileName string) string {
	if c.DBPath != nil && *c.DBPath != "" {
		return *c.DBPath
	}
	return filepath.Join(c.GetDataDir(), fileName)
}

// GetBusyTimeout parses and returns the BusyTimeout as a time.Duration.
func (c *StoreConfig) GetBusyTimeout() time.Duration {
	if c.BusyTimeout == nil || *c.BusyTimeout == "" {
		return DefaultBusyTimeout
	}
	d, err := time.ParseDuration(*c.BusyTimeout)
	if err != nil {
		return DefaultBusyTimeout
	}
	return d
}

// GetAdminListen returns the admin listen address or the default.
func (c *StoreConfig) GetAdminListen() string {
	if c.AdminListen == nil || *c.AdminListen == "" {
		return DefaultAdminListen
	}
	return *c.AdminListen
}
