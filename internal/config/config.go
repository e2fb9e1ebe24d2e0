// Package config provides centralized configuration management for uprogd.
// Configuration is loaded from a JSON file at /etc/uprogd/config.json
// (overridable via the UPROGD_CONFIG environment variable).
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
)

const (
	// DefaultConfigPath is the default location for the config file
	DefaultConfigPath = "/etc/uprogd/config.json"

	// ConfigEnvVar is the environment variable to override config file location
	ConfigEnvVar = "UPROGD_CONFIG"
)

// Storage backends.
const (
	BackendMemory = "memory"
	BackendBolt   = "bolt"
)

// Config is the root configuration structure
type Config struct {
	Memory  MemoryConfig  `json:"memory"`
	Files   FilesConfig   `json:"files"`
	Process ProcessConfig `json:"process"`
	Storage StorageConfig `json:"storage"`
	Log     LogConfig     `json:"log"`
}

// MemoryConfig sizes a user process's address space.
type MemoryConfig struct {
	StackPages int `json:"stack_pages"` // Pages mapped below PhysBase for the user stack
	DataPages  int `json:"data_pages"`  // Pages in the data segment after the image page
}

// FilesConfig bounds the filesystem and descriptor tables.
type FilesConfig struct {
	MaxOpen int `json:"max_open"` // Open descriptors per process
	NameMax int `json:"name_max"` // Longest file name
	MaxSize int `json:"max_size"` // Largest a file may be created or grown, in bytes
}

// ProcessConfig bounds command lines.
type ProcessConfig struct {
	MaxArgs    int `json:"max_args"`    // Words in a command line, program name included
	CmdlineMax int `json:"cmdline_max"` // Bytes in a command line
}

// StorageConfig selects where the filesystem lives.
type StorageConfig struct {
	// Backend is "memory" (lost at exit) or "bolt".
	Backend string `json:"backend"`

	// Path is the bolt database file. Ignored for the memory backend.
	Path string `json:"path"`
}

// LogConfig configures containerd/log.
type LogConfig struct {
	Level  string `json:"level"`  // trace, debug, info, warn, error
	Format string `json:"format"` // text or json
}

var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.Mutex
	errConfig    error
)

// Reset clears the cached global config, forcing the next Get() call to reload.
// This is intended for testing only. Callers must ensure no concurrent Get() calls
// are in progress when calling Reset().
func Reset() {
	configMu.Lock()
	defer configMu.Unlock()
	globalConfig = nil
	errConfig = nil
	configOnce = sync.Once{}
}

// Get returns the global config, loading it on first call.
func Get() (*Config, error) {
	configOnce.Do(func() {
		globalConfig, errConfig = Load()
	})
	return globalConfig, errConfig
}

// Load loads configuration from UPROGD_CONFIG or /etc/uprogd/config.json.
// A missing file at the default location yields the defaults; a missing
// file named by UPROGD_CONFIG is an error.
func Load() (*Config, error) {
	configPath := os.Getenv(ConfigEnvVar)
	if configPath == "" {
		cfg, err := LoadFrom(DefaultConfigPath)
		if errors.Is(err, os.ErrNotExist) {
			return DefaultConfig(), nil
		}
		return cfg, err
	}

	return LoadFrom(configPath)
}

// LoadFrom loads configuration from a specific path.
// Returns error if file doesn't exist or is invalid.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found at %s: %w", path, err)
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w (ensure it's valid JSON)", path, err)
	}

	// Apply defaults for empty fields
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}

	return &cfg, nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Memory: MemoryConfig{
			StackPages: 1,
			DataPages:  4,
		},
		Files: FilesConfig{
			MaxOpen: 128,
			NameMax: 14,
			MaxSize: 8 << 20,
		},
		Process: ProcessConfig{
			MaxArgs:    64,
			CmdlineMax: 1024,
		},
		Storage: StorageConfig{
			Backend: BackendMemory,
			Path:    "/var/lib/uprogd/disk.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// applyDefaults fills in default values for any empty fields
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	c.applyMemoryDefaults(defaults)
	c.applyFilesDefaults(defaults)
	c.applyProcessDefaults(defaults)
	c.applyStorageDefaults(defaults)
	c.applyLogDefaults(defaults)
}

func (c *Config) applyMemoryDefaults(defaults *Config) {
	if c.Memory.StackPages == 0 {
		c.Memory.StackPages = defaults.Memory.StackPages
	}
	if c.Memory.DataPages == 0 {
		c.Memory.DataPages = defaults.Memory.DataPages
	}
}

func (c *Config) applyFilesDefaults(defaults *Config) {
	if c.Files.MaxOpen == 0 {
		c.Files.MaxOpen = defaults.Files.MaxOpen
	}
	if c.Files.NameMax == 0 {
		c.Files.NameMax = defaults.Files.NameMax
	}
	if c.Files.MaxSize == 0 {
		c.Files.MaxSize = defaults.Files.MaxSize
	}
}

func (c *Config) applyProcessDefaults(defaults *Config) {
	if c.Process.MaxArgs == 0 {
		c.Process.MaxArgs = defaults.Process.MaxArgs
	}
	if c.Process.CmdlineMax == 0 {
		c.Process.CmdlineMax = defaults.Process.CmdlineMax
	}
}

func (c *Config) applyStorageDefaults(defaults *Config) {
	if c.Storage.Backend == "" {
		c.Storage.Backend = defaults.Storage.Backend
	}
	if c.Storage.Path == "" {
		c.Storage.Path = defaults.Storage.Path
	}
}

func (c *Config) applyLogDefaults(defaults *Config) {
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}
}
