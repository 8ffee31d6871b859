// Copyright 2026 The Villim Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for Villim services.
//
// Configuration is loaded from a single YAML file specified by:
//   - the VILLIM_CONFIG environment variable, or
//   - the --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This ensures
// deterministic, auditable configuration with no hidden overrides.
package config
