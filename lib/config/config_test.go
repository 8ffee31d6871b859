// Copyright 2026 The Villim Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/seongminnpark/Villim/lib/principal"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "villim.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

const validConfig = `
owner: villim/staff/operator
socket_path: /run/villim/registry.sock
state_dir: /var/lib/villim
services:
  directory:
    device-ownership: villim/service/devices
    payments: villim/service/payments
  trusted:
    - villim/service/audit
  device_service: device-ownership
archive:
  snapshot_interval: 5m
`

func TestLoadFileValid(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.Owner != "villim/staff/operator" {
		t.Errorf("Owner = %q", cfg.Owner)
	}
	if cfg.SocketPath != "/run/villim/registry.sock" {
		t.Errorf("SocketPath = %q", cfg.SocketPath)
	}
	if cfg.Archive.SnapshotInterval != 5*time.Minute {
		t.Errorf("SnapshotInterval = %v, want 5m", cfg.Archive.SnapshotInterval)
	}

	// Archive paths derive from state_dir when unset.
	if cfg.Archive.DatabasePath != "/var/lib/villim/archive.db" {
		t.Errorf("DatabasePath = %q", cfg.Archive.DatabasePath)
	}
	if cfg.Archive.SnapshotPath != "/var/lib/villim/registry.snapshot" {
		t.Errorf("SnapshotPath = %q", cfg.Archive.SnapshotPath)
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile("/nonexistent/villim.yaml"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadRequiresEnvVariable(t *testing.T) {
	t.Setenv("VILLIM_CONFIG", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error when VILLIM_CONFIG is unset")
	}
}

func TestLoadFromEnvVariable(t *testing.T) {
	path := writeConfig(t, validConfig)
	t.Setenv("VILLIM_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Owner != "villim/staff/operator" {
		t.Errorf("Owner = %q", cfg.Owner)
	}
}

func TestValidateMissingOwner(t *testing.T) {
	_, err := LoadFile(writeConfig(t, `
socket_path: /run/villim/registry.sock
state_dir: /var/lib/villim
`))
	if err == nil {
		t.Fatal("expected error for missing owner")
	}
	if !strings.Contains(err.Error(), "owner is required") {
		t.Errorf("error = %v, want mention of owner", err)
	}
}

func TestValidateBadPrincipals(t *testing.T) {
	_, err := LoadFile(writeConfig(t, `
owner: "Not A Principal!"
socket_path: /run/villim/registry.sock
state_dir: /var/lib/villim
services:
  directory:
    devices: "also bad!"
`))
	if err == nil {
		t.Fatal("expected error for malformed principals")
	}
	// Both problems are reported at once.
	if !strings.Contains(err.Error(), "owner") || !strings.Contains(err.Error(), "services.directory[devices]") {
		t.Errorf("error = %v, want both owner and directory failures", err)
	}
}

func TestValidateUnknownDeviceService(t *testing.T) {
	_, err := LoadFile(writeConfig(t, `
owner: villim/staff/operator
socket_path: /run/villim/registry.sock
state_dir: /var/lib/villim
services:
  device_service: devices
`))
	if err == nil {
		t.Fatal("expected error for device_service not in directory")
	}
}

func TestValidateNegativeInterval(t *testing.T) {
	_, err := LoadFile(writeConfig(t, `
owner: villim/staff/operator
socket_path: /run/villim/registry.sock
state_dir: /var/lib/villim
archive:
  snapshot_interval: -1m
`))
	if err == nil {
		t.Fatal("expected error for negative snapshot interval")
	}
}

func TestDirectoryResolver(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	resolver, err := cfg.DirectoryResolver()
	if err != nil {
		t.Fatalf("DirectoryResolver: %v", err)
	}

	devices, err := resolver.Resolve("device-ownership")
	if err != nil {
		t.Fatalf("Resolve(device-ownership): %v", err)
	}
	if devices != principal.MustParse("villim/service/devices") {
		t.Errorf("resolved %q, want villim/service/devices", devices)
	}

	if !resolver.IsTrusted(principal.MustParse("villim/service/audit")) {
		t.Error("explicitly trusted principal not trusted")
	}
	if !resolver.IsTrusted(principal.MustParse("villim/service/payments")) {
		t.Error("directory service principal not trusted")
	}
	if resolver.IsTrusted(principal.MustParse("villim/host/alice")) {
		t.Error("arbitrary principal should not be trusted")
	}
}

func TestDefaultsFillSocketAndState(t *testing.T) {
	cfg := Default()
	if cfg.StateDir == "" || cfg.SocketPath == "" {
		t.Errorf("defaults missing paths: state=%q socket=%q", cfg.StateDir, cfg.SocketPath)
	}
	if cfg.Archive.SnapshotInterval != 15*time.Minute {
		t.Errorf("default SnapshotInterval = %v, want 15m", cfg.Archive.SnapshotInterval)
	}
}
