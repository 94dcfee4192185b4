package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 168*time.Hour, cfg.Alerting.StalledThreshold)
	assert.Equal(t, 31, cfg.Sync.ChunkDays)
	assert.Equal(t, LockBackendLocal, cfg.Lock.Backend)
	assert.Equal(t, EventBackendNone, cfg.Events.Backend)
	assert.Contains(t, cfg.Database.DSN(), "dbname=postgres")
}

func TestLoad_FileThenEnvironment(t *testing.T) {
	path := writeConfig(t, `
alerting:
  stalled_threshold: 72h
  cron: "@every 10m"
sync:
  chunk_days: 7
  jobs:
    - kind: client
      cron: "0 0 3 * * *"
    - kind: task
      cron: "@hourly"
      lookback_days: 2
auth:
  mode: static
  tokens:
    secret:
      username: ops
      permissions: [sync:trigger, sync:read]
`)
	t.Setenv("ALERT_STALLED_THRESHOLD", "36h")
	t.Setenv("SYNC_CHUNK_DAYS", "14")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("FETCHER_PAGE_SIZE", "500")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 36*time.Hour, cfg.Alerting.StalledThreshold, "environment wins over the file")
	assert.Equal(t, "@every 10m", cfg.Alerting.Cron)
	assert.Equal(t, 14, cfg.Sync.ChunkDays)
	assert.Equal(t, 500, cfg.Fetcher.PageSize)
	assert.Len(t, cfg.Sync.Jobs, 2)
	assert.Equal(t, 2, cfg.Sync.Jobs[1].LookbackDays)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Events.Brokers)
	assert.Equal(t, []string{"sync:trigger", "sync:read"}, cfg.Auth.Tokens["secret"].Permissions)
}

func TestLoad_InvalidEnvironment(t *testing.T) {
	t.Setenv("ALERT_STALLED_THRESHOLD", "a week")
	_, err := Load("")
	assert.ErrorContains(t, err, "ALERT_STALLED_THRESHOLD")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		problem string
	}{
		{"bad alert cron", func(c *Config) { c.Alerting.Cron = "every day" }, "alerting.cron"},
		{"unknown job kind", func(c *Config) { c.Sync.Jobs = []SyncJob{{Kind: "invoice", Cron: "@daily"}} }, "unknown entity kind"},
		{"refresh longer than ttl", func(c *Config) { c.Sync.LockRefresh = time.Hour }, "lock_refresh"},
		{"kafka without brokers", func(c *Config) { c.Events.Backend = EventBackendKafka }, "events.brokers"},
		{"static without tokens", func(c *Config) { c.Auth.Mode = AuthModeStatic }, "auth.tokens"},
		{"unknown lock backend", func(c *Config) { c.Lock.Backend = "etcd" }, "lock.backend"},
		{"zero threshold", func(c *Config) { c.Alerting.StalledThreshold = 0 }, "stalled_threshold"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.problem)
		})
	}

	assert.NoError(t, Default().Validate())
}
