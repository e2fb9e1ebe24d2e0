package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Memory.StackPages != 1 {
		t.Errorf("expected StackPages 1, got %d", cfg.Memory.StackPages)
	}
	if cfg.Memory.DataPages != 4 {
		t.Errorf("expected DataPages 4, got %d", cfg.Memory.DataPages)
	}
	if cfg.Files.MaxOpen != 128 {
		t.Errorf("expected MaxOpen 128, got %d", cfg.Files.MaxOpen)
	}
	if cfg.Files.NameMax != 14 {
		t.Errorf("expected NameMax 14, got %d", cfg.Files.NameMax)
	}
	if cfg.Files.MaxSize != 8<<20 {
		t.Errorf("expected MaxSize 8 MiB, got %d", cfg.Files.MaxSize)
	}
	if cfg.Process.MaxArgs != 64 {
		t.Errorf("expected MaxArgs 64, got %d", cfg.Process.MaxArgs)
	}
	if cfg.Storage.Backend != BackendMemory {
		t.Errorf("expected backend %s, got %s", BackendMemory, cfg.Storage.Backend)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("expected info/text logging, got %s/%s", cfg.Log.Level, cfg.Log.Format)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config must validate: %v", err)
	}
}

func TestLoadFrom_MissingFile(t *testing.T) {
	_, err := LoadFrom("/nonexistent/path/config.json")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}

	errMsg := err.Error()
	if !strings.Contains(errMsg, "/nonexistent/path/config.json") {
		t.Errorf("error should mention config file path, got: %s", errMsg)
	}
	if !strings.Contains(errMsg, "config file not found") {
		t.Errorf("error should mention 'config file not found', got: %s", errMsg)
	}
}

func TestLoadFrom_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	if err := os.WriteFile(configPath, []byte("{invalid json}"), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := LoadFrom(configPath)
	if err == nil {
		t.Fatal("expected error for invalid JSON, got nil")
	}
	t.Logf("Error message: %s", err)
}

func TestLoadFrom_ValidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	cfg := &Config{
		Memory: MemoryConfig{
			StackPages: 2,
			DataPages:  8,
		},
		Storage: StorageConfig{
			Backend: BackendBolt,
			Path:    filepath.Join(tmpDir, "state", "disk.db"),
		},
		Log: LogConfig{
			Level:  "debug",
			Format: "json",
		},
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadFrom(configPath)
	if err != nil {
		t.Fatalf("failed to load valid config: %v", err)
	}

	if loaded.Memory.StackPages != 2 {
		t.Errorf("expected StackPages 2, got %d", loaded.Memory.StackPages)
	}
	if loaded.Files.MaxOpen != 128 {
		t.Errorf("expected default MaxOpen, got %d", loaded.Files.MaxOpen)
	}
	if loaded.Storage.Backend != BackendBolt {
		t.Errorf("expected bolt backend, got %s", loaded.Storage.Backend)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, "state")); err != nil {
		t.Errorf("validation should create the database directory: %v", err)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Cleanup(Reset)

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "custom.json")
	if err := os.WriteFile(configPath, []byte(`{"files":{"max_open":16}}`), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigEnvVar, configPath)

	Reset()
	cfg, err := Get()
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if cfg.Files.MaxOpen != 16 {
		t.Errorf("expected MaxOpen 16 from %s, got %d", configPath, cfg.Files.MaxOpen)
	}
}

func TestLoad_EnvMissingFile(t *testing.T) {
	t.Setenv(ConfigEnvVar, filepath.Join(t.TempDir(), "missing.json"))
	if _, err := Load(); err == nil {
		t.Fatal("expected error when the file named by the environment is missing")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{
		Memory: MemoryConfig{
			DataPages: 16,
			// StackPages empty - should be filled with default
		},
		Log: LogConfig{
			Format: "json",
		},
	}

	cfg.applyDefaults()

	if cfg.Memory.DataPages != 16 {
		t.Errorf("expected custom DataPages to be preserved, got %d", cfg.Memory.DataPages)
	}
	if cfg.Memory.StackPages != 1 {
		t.Errorf("expected default StackPages, got %d", cfg.Memory.StackPages)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("expected custom format to be preserved, got %s", cfg.Log.Format)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected default level, got %s", cfg.Log.Level)
	}
	if cfg.Process.CmdlineMax != 1024 {
		t.Errorf("expected default CmdlineMax, got %d", cfg.Process.CmdlineMax)
	}
}

func TestGet_Singleton(t *testing.T) {
	cfg1, err1 := Get()
	cfg2, err2 := Get()

	if (err1 == nil) != (err2 == nil) {
		t.Fatalf("Get() returned different error states: err1=%v, err2=%v", err1, err2)
	}
	if err1 == nil && cfg1 != cfg2 {
		t.Errorf("Get() returned different instances: want same pointer, got cfg1=%p cfg2=%p", cfg1, cfg2)
	}
}

func TestValidate_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		setupFunc func(*Config)
	}{
		{
			name: "stack_pages zero",
			setupFunc: func(c *Config) {
				c.Memory.StackPages = 0
			},
		},
		{
			name: "data_pages too large",
			setupFunc: func(c *Config) {
				c.Memory.DataPages = 10000
			},
		},
		{
			name: "negative max_open",
			setupFunc: func(c *Config) {
				c.Files.MaxOpen = -1
			},
		},
		{
			name: "name_max too long",
			setupFunc: func(c *Config) {
				c.Files.NameMax = 1000
			},
		},
		{
			name: "max_size beyond a signed word",
			setupFunc: func(c *Config) {
				c.Files.MaxSize = 1<<30 + 1
			},
		},
		{
			name: "negative max_size",
			setupFunc: func(c *Config) {
				c.Files.MaxSize = -1
			},
		},
		{
			name: "cmdline_max over a page",
			setupFunc: func(c *Config) {
				c.Process.CmdlineMax = 8192
			},
		},
		{
			name: "arguments overflow stack",
			setupFunc: func(c *Config) {
				c.Process.MaxArgs = 1000
			},
		},
		{
			name: "unknown backend",
			setupFunc: func(c *Config) {
				c.Storage.Backend = "ext2"
			},
		},
		{
			name: "bolt without path",
			setupFunc: func(c *Config) {
				c.Storage.Backend = BackendBolt
				c.Storage.Path = ""
			},
		},
		{
			name: "bad log level",
			setupFunc: func(c *Config) {
				c.Log.Level = "loud"
			},
		},
		{
			name: "bad log format",
			setupFunc: func(c *Config) {
				c.Log.Format = "xml"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.setupFunc(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error for %s", tt.name)
			}

			t.Logf("Error message: %s", err)
		})
	}
}
