// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package config

// CLIConfig holds parsed command line flags and configuration overrides
type CLIConfig struct {
	ConfigFile   string
	Port         int
	Debug        bool
	Bind         string
	NoJanitor    bool
	SimpleHealth bool
}
