// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuituidan/image-host/pkg/constants"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, constants.DefaultPort, cfg.Server.Port)
	assert.Equal(t, constants.EngineOpenSearch, cfg.Search.Engine)
	assert.Equal(t, constants.DefaultIndex, cfg.Search.Index)
	assert.Equal(t, constants.DefaultBucket, cfg.Storage.Bucket)
	assert.Equal(t, constants.PoolQueueCapacity, cfg.Pool.QueueCapacity)
	assert.Equal(t, constants.DefaultCacheSize, cfg.Cache.Size)
	assert.False(t, cfg.JWT.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_YAMLOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: 9090
  read_timeout: 15s
search:
  engine: bleve
  index: photos
storage:
  bucket: pictures
  public_url: https://cdn.example.com/pictures
jwt:
  enabled: true
  secret: s3cret
  audience:
    - uploads
    - admin
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout, "unset keys keep defaults")
	assert.Equal(t, constants.EngineBleve, cfg.Search.Engine)
	assert.Equal(t, "photos", cfg.Search.Index)
	assert.Equal(t, "pictures", cfg.Storage.Bucket)
	assert.Equal(t, "https://cdn.example.com/pictures", cfg.Storage.PublicURL)
	assert.True(t, cfg.JWT.Enabled)
	assert.Equal(t, []string{"uploads", "admin"}, cfg.JWT.Audience)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_EnvOverridesYAML(t *testing.T) {
	path := writeConfigFile(t, "server:\n  port: 9090\nsearch:\n  index: photos\n")
	t.Setenv("PORT", "7070")
	t.Setenv("SEARCH_ENGINE", "elasticsearch")
	t.Setenv("JWT_AUDIENCE", "a, b")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "photos", cfg.Search.Index)
	assert.Equal(t, constants.EngineElasticsearch, cfg.Search.Engine)
	assert.Equal(t, []string{"a", "b"}, cfg.JWT.Audience)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestApplyCLI(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ApplyCLI(&CLIConfig{Port: 8181, Bind: "0.0.0.0", NoJanitor: true, SimpleHealth: true, Debug: true})

	assert.Equal(t, 8181, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Bind)
	assert.False(t, cfg.Janitor.Enabled)
	assert.True(t, cfg.Server.SimpleHealth)
	assert.Equal(t, "debug", cfg.Logging.Level)

	cfg.ApplyCLI(nil)
	assert.Equal(t, 8181, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AppConfig)
		wantErr string
	}{
		{"valid", func(*AppConfig) {}, ""},
		{"bad port", func(c *AppConfig) { c.Server.Port = 70000 }, "invalid server port"},
		{"unknown engine", func(c *AppConfig) { c.Search.Engine = "solr" }, "unknown search engine"},
		{"missing search url", func(c *AppConfig) { c.Search.URL = "" }, "search URL is required"},
		{"bleve needs no url", func(c *AppConfig) { c.Search.Engine = constants.EngineBleve; c.Search.URL = "" }, ""},
		{"missing index", func(c *AppConfig) { c.Search.Index = "" }, "search index is required"},
		{"missing bucket", func(c *AppConfig) { c.Storage.Bucket = "" }, "bucket is required"},
		{"presign expiry", func(c *AppConfig) { c.Storage.PresignExpiry = 0 }, "presign expiry"},
		{"jwt without secret", func(c *AppConfig) { c.JWT.Enabled = true }, "JWT secret is required"},
		{"nats disabled", func(c *AppConfig) { c.NATS.Enabled = false; c.NATS.URL = "" }, ""},
		{"pool max below core", func(c *AppConfig) { c.Pool.CoreWorkers = 4; c.Pool.MaxWorkers = 2 }, "pool max workers"},
		{"log level", func(c *AppConfig) { c.Logging.Level = "trace" }, "invalid log level"},
		{"log format", func(c *AppConfig) { c.Logging.Format = "xml" }, "invalid log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
