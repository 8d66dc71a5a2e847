// Package config loads process-wide configuration for the nts-mcp-fs core:
// the configured root set, default 8-bit code page, retention limits and
// the journal store location. Built on spf13/viper so environment variables
// (PROJECT_ROOT, MCP_DEBUG, MCP_LOG_FILE per spec §6) transparently override
// file- or default-based settings.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the resolved process configuration.
type Config struct {
	// PrimaryRoot is the primary configured root directory (spec §4.1).
	PrimaryRoot string
	// AdditionalRoots are extra roots supplied by the adapter (client roots
	// negotiation, spec §6).
	AdditionalRoots []string
	// DefaultCodePage is the 8-bit fallback charset used by the Encoding
	// Probe when a buffer is neither valid UTF-8 nor a detected multi-byte
	// UTF encoding (spec §4.2). Defaults to "windows-1251" per spec.
	DefaultCodePage string
	// UndoRetention is the per-task UNDO stack cap before eviction of the
	// oldest entry (spec §4.6). Defaults to 50.
	UndoRetention int
	// Debug enables verbose stderr/file diagnostics (MCP_DEBUG).
	Debug bool
	// LogFile redirects diagnostics to a file instead of stderr (MCP_LOG_FILE).
	LogFile string
	// TelemetryEnabled opts into anonymous usage telemetry.
	TelemetryEnabled bool
	// TelemetryAPIKey is the PostHog project key used when telemetry is
	// enabled. Telemetry stays a no-op if this is empty.
	TelemetryAPIKey string
}

// Load reads configuration from the environment, applying the documented
// defaults. PROJECT_ROOT overrides the primary configured root (spec §6).
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("")
	v.AutomaticEnv()
	v.SetDefault("default_code_page", "windows-1251")
	v.SetDefault("undo_retention", 50)
	v.SetDefault("telemetry_enabled", false)

	primaryRoot := v.GetString("PROJECT_ROOT")
	if primaryRoot == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		primaryRoot = wd
	}
	primaryRoot, err := filepath.Abs(primaryRoot)
	if err != nil {
		return nil, err
	}

	var roots []string
	if extra := v.GetString("NTS_ADDITIONAL_ROOTS"); extra != "" {
		for _, r := range strings.Split(extra, string(os.PathListSeparator)) {
			if abs, err := filepath.Abs(r); err == nil {
				roots = append(roots, abs)
			}
		}
	}

	cfg := &Config{
		PrimaryRoot:      primaryRoot,
		AdditionalRoots:  roots,
		DefaultCodePage:  v.GetString("default_code_page"),
		UndoRetention:    v.GetInt("undo_retention"),
		Debug:            v.GetBool("MCP_DEBUG"),
		LogFile:          v.GetString("MCP_LOG_FILE"),
		TelemetryEnabled: v.GetBool("telemetry_enabled"),
		TelemetryAPIKey:  v.GetString("NTS_TELEMETRY_KEY"),
	}
	return cfg, nil
}

// Roots returns the full configured root set, primary first.
func (c *Config) Roots() []string {
	return append([]string{c.PrimaryRoot}, c.AdditionalRoots...)
}
