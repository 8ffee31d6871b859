// Copyright 2026 The Villim Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/seongminnpark/Villim/lib/directory"
	"github.com/seongminnpark/Villim/lib/principal"
)

// Config is the master configuration for the Villim registry service.
type Config struct {
	// Owner is the registry owner principal. Only this caller may
	// bind collaborators, export, or tear down the registry.
	Owner string `yaml:"owner"`

	// SocketPath is the Unix socket path the service listens on.
	SocketPath string `yaml:"socket_path"`

	// StateDir is where runtime state is stored: the token authority
	// keypair, the archive database, snapshot files.
	StateDir string `yaml:"state_dir"`

	// Services configures the capability directory.
	Services ServicesConfig `yaml:"services"`

	// Archive configures durable state capture.
	Archive ArchiveConfig `yaml:"archive"`
}

// ServicesConfig configures the capability directory: which external
// services exist and which principals the registry trusts for
// device-reference updates.
type ServicesConfig struct {
	// Directory maps service codes to service principals. Codes are
	// the stable names collaborator bindings are requested by;
	// principals are the identities requests arrive under.
	Directory map[string]string `yaml:"directory"`

	// Trusted lists additional trusted principals beyond the
	// directory's services.
	Trusted []string `yaml:"trusted"`

	// DeviceService is the service code bound as the device
	// collaborator at startup. Optional; when empty, device-reference
	// updates stay rejected until an owner binds one over the socket.
	DeviceService string `yaml:"device_service"`
}

// ArchiveConfig configures the archive database and snapshot loop.
type ArchiveConfig struct {
	// DatabasePath is the SQLite archive file. Defaults to
	// archive.db under StateDir.
	DatabasePath string `yaml:"database_path"`

	// SnapshotPath is the zstd snapshot file. Defaults to
	// registry.snapshot under StateDir.
	SnapshotPath string `yaml:"snapshot_path"`

	// SnapshotInterval is how often the periodic snapshot loop
	// captures the registry. Zero disables periodic snapshots.
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
}

// Default returns the configuration defaults. Loading a file merges
// over these.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultState := filepath.Join(homeDir, ".cache", "villim")

	return &Config{
		SocketPath: filepath.Join(defaultState, "registry.sock"),
		StateDir:   defaultState,
		Archive: ArchiveConfig{
			SnapshotInterval: 15 * time.Minute,
		},
	}
}

// Load reads the configuration file named by the VILLIM_CONFIG
// environment variable.
func Load() (*Config, error) {
	configPath := os.Getenv("VILLIM_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("VILLIM_CONFIG environment variable not set; " +
			"set it to the path of your villim.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile reads and validates a configuration file.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.applyDerivedDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// applyDerivedDefaults fills archive paths relative to StateDir when
// the file left them unset.
func (c *Config) applyDerivedDefaults() {
	if c.Archive.DatabasePath == "" {
		c.Archive.DatabasePath = filepath.Join(c.StateDir, "archive.db")
	}
	if c.Archive.SnapshotPath == "" {
		c.Archive.SnapshotPath = filepath.Join(c.StateDir, "registry.snapshot")
	}
}

// Validate checks the configuration for errors. All problems are
// reported at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Owner == "" {
		errs = append(errs, fmt.Errorf("owner is required"))
	} else if _, err := principal.Parse(c.Owner); err != nil {
		errs = append(errs, fmt.Errorf("owner: %w", err))
	}

	if c.SocketPath == "" {
		errs = append(errs, fmt.Errorf("socket_path is required"))
	}
	if c.StateDir == "" {
		errs = append(errs, fmt.Errorf("state_dir is required"))
	}

	for code, raw := range c.Services.Directory {
		if code == "" {
			errs = append(errs, fmt.Errorf("services.directory: empty service code"))
		}
		if _, err := principal.Parse(raw); err != nil {
			errs = append(errs, fmt.Errorf("services.directory[%s]: %w", code, err))
		}
	}
	for _, raw := range c.Services.Trusted {
		if _, err := principal.Parse(raw); err != nil {
			errs = append(errs, fmt.Errorf("services.trusted: %w", err))
		}
	}
	if c.Services.DeviceService != "" {
		if _, ok := c.Services.Directory[c.Services.DeviceService]; !ok {
			errs = append(errs, fmt.Errorf(
				"services.device_service %q is not in services.directory", c.Services.DeviceService))
		}
	}

	if c.Archive.SnapshotInterval < 0 {
		errs = append(errs, fmt.Errorf("archive.snapshot_interval must not be negative"))
	}

	return errors.Join(errs...)
}

// OwnerPrincipal returns the parsed owner principal. Call after
// Validate.
func (c *Config) OwnerPrincipal() (principal.ID, error) {
	return principal.Parse(c.Owner)
}

// DirectoryResolver builds the static capability directory from the
// services section. Call after Validate.
func (c *Config) DirectoryResolver() (*directory.Static, error) {
	services := make(map[string]principal.ID, len(c.Services.Directory))
	for code, raw := range c.Services.Directory {
		id, err := principal.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("services.directory[%s]: %w", code, err)
		}
		services[code] = id
	}

	trusted := make([]principal.ID, 0, len(c.Services.Trusted))
	for _, raw := range c.Services.Trusted {
		id, err := principal.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("services.trusted: %w", err)
		}
		trusted = append(trusted, id)
	}

	return directory.NewStatic(services, trusted), nil
}
