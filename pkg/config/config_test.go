package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, ShardSourceStatic, cfg.Merge.ShardSource)
	assert.Equal(t, 30*time.Second, cfg.Merge.ReloadGracePeriod)
	assert.Equal(t, []string{"filename"}, cfg.Indexer.ReverseMetaKeys)
	assert.NoError(t, cfg.Validate())
}

func TestLoadYAMLAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
merge:
  shardPaths: [a.spdx, b.spdx]
  blocksEnabled: true
  strictCapabilities: true
  reloadGracePeriod: 5s
server:
  requestTimeout: 5s
search:
  defaultLimit: 20
`), 0o644))
	t.Setenv("SP_SERVER_PORT", "9999")
	t.Setenv("SP_MERGE_SHARD_PATHS", "c.spdx,d.spdx,e.spdx")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, []string{"c.spdx", "d.spdx", "e.spdx"}, cfg.Merge.ShardPaths)
	assert.True(t, cfg.Merge.BlocksEnabled)
	assert.Equal(t, 5*time.Second, cfg.Merge.ReloadGracePeriod)
	assert.Equal(t, 20, cfg.Search.DefaultLimit)
	assert.Equal(t, 100, cfg.Search.MaxResults)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown shard source", func(c *Config) { c.Merge.ShardSource = "s3" }},
		{"empty shard path", func(c *Config) { c.Merge.ShardPaths = []string{"a.spdx", " "} }},
		{"strict without blocks", func(c *Config) { c.Merge.StrictCapabilities = true }},
		{"negative grace period", func(c *Config) { c.Merge.ReloadGracePeriod = -time.Second }},
		{"grace period shorter than requests", func(c *Config) {
			c.Server.RequestTimeout = 20 * time.Second
			c.Merge.ReloadGracePeriod = 10 * time.Second
		}},
		{"zero grace period", func(c *Config) { c.Merge.ReloadGracePeriod = 0 }},
		{"zero shard size", func(c *Config) { c.Indexer.MaxDocsPerShard = 0 }},
		{"reverse key not configured", func(c *Config) { c.Indexer.ReverseMetaKeys = []string{"url"} }},
		{"limit above max", func(c *Config) { c.Search.DefaultLimit = 500 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
