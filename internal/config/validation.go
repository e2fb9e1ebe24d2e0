package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/containerd/log"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

const (
	pageSize = 4096

	// maxPages bounds each user segment.
	maxPages = 256
)

// Validate validates the entire configuration.
func (c *Config) Validate() error {
	if err := c.validateMemory(); err != nil {
		return fmt.Errorf("memory: %w", err)
	}
	if err := c.validateFiles(); err != nil {
		return fmt.Errorf("files: %w", err)
	}
	if err := c.validateProcess(); err != nil {
		return fmt.Errorf("process: %w", err)
	}
	if err := c.validateStorage(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.validateLog(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	return nil
}

func validateRange(name string, v, lo, hi int) error {
	if v < lo || v > hi {
		return fmt.Errorf("%s: must be %d-%d, got %d", name, lo, hi, v)
	}
	return nil
}

func (c *Config) validateMemory() error {
	if err := validateRange("stack_pages", c.Memory.StackPages, 1, maxPages); err != nil {
		return err
	}
	return validateRange("data_pages", c.Memory.DataPages, 1, maxPages)
}

func (c *Config) validateFiles() error {
	if err := validateRange("max_open", c.Files.MaxOpen, 1, 1<<16); err != nil {
		return err
	}
	if err := validateRange("name_max", c.Files.NameMax, 1, 255); err != nil {
		return err
	}
	// Sizes and positions travel back to user code as 32-bit signed words.
	return validateRange("max_size", c.Files.MaxSize, 1, 1<<30)
}

func (c *Config) validateProcess() error {
	if err := validateRange("max_args", c.Process.MaxArgs, 1, 1024); err != nil {
		return err
	}
	if err := validateRange("cmdline_max", c.Process.CmdlineMax, 1, pageSize); err != nil {
		return err
	}
	// The strings, argv[], argv[argc] and the argv/argc/return words all
	// go on the initial stack.
	if c.Process.CmdlineMax+4*c.Process.MaxArgs+16 > c.Memory.StackPages*pageSize {
		return fmt.Errorf("cmdline_max (%d) and max_args (%d) do not fit in %d stack page(s)",
			c.Process.CmdlineMax, c.Process.MaxArgs, c.Memory.StackPages)
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case BackendMemory:
		return nil
	case BackendBolt:
		if c.Storage.Path == "" {
			return fmt.Errorf("path cannot be empty for the %s backend", BackendBolt)
		}
		return ensureDirWritable(filepath.Dir(c.Storage.Path), "path")
	default:
		return fmt.Errorf("backend must be %q or %q, got %q", BackendMemory, BackendBolt, c.Storage.Backend)
	}
}

func (c *Config) validateLog() error {
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("level: %w", err)
	}
	switch c.Log.Format {
	case string(log.TextFormat), string(log.JSONFormat):
		return nil
	default:
		return fmt.Errorf("format must be %q or %q, got %q", log.TextFormat, log.JSONFormat, c.Log.Format)
	}
}

// Helper functions

func canonicalizePath(path string) (string, error) {
	cleaned := filepath.Clean(path)
	resolved, err := filepath.EvalSymlinks(cleaned)
	if err == nil {
		return resolved, nil
	}
	if os.IsNotExist(err) {
		return cleaned, nil
	}
	return "", fmt.Errorf("failed to resolve path %s: %w", path, err)
}

func ensureDirWritable(path, name string) error {
	canonical, err := canonicalizePath(path)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	info, statErr := os.Stat(canonical)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			if err := os.MkdirAll(canonical, 0750); err != nil {
				return fmt.Errorf("%s: cannot create directory %s: %w", name, canonical, err)
			}
		} else {
			return fmt.Errorf("%s: cannot access %s: %w", name, canonical, statErr)
		}
	} else if !info.IsDir() {
		return fmt.Errorf("%s: not a directory: %s", name, canonical)
	}

	if err := unix.Access(canonical, unix.W_OK); err != nil {
		return fmt.Errorf("%s: not writable: %s", name, canonical)
	}
	return nil
}
