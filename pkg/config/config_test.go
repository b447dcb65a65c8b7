package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adfharrison1/livedb/pkg/domain"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, "livedb.lvdb", cfg.Storage.CheckpointFile)
	assert.Equal(t, 5*time.Minute, cfg.Storage.BackgroundSave)
	assert.Equal(t, 4, cfg.Realm.Workers)
	assert.Equal(t, 100*time.Millisecond, cfg.Realm.TickInterval)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
server:
  port: 9000
storage:
  data_dir: /var/lib/livedb
  background_save: 30s
realm:
  tick_interval: 250ms
`), 0o644))
	t.Setenv("LIVEDB_REALM_WORKERS", "8")
	t.Setenv("LIVEDB_SERVER_PORT", "9100")

	cfg, err := Load(New(), file)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port, "environment wins over file")
	assert.Equal(t, "/var/lib/livedb", cfg.Storage.DataDir)
	assert.Equal(t, 30*time.Second, cfg.Storage.BackgroundSave)
	assert.Equal(t, 250*time.Millisecond, cfg.Realm.TickInterval)
	assert.Equal(t, 8, cfg.Realm.Workers)
	assert.Equal(t, "/var/lib/livedb/livedb.lvdb", cfg.CheckpointPath())
}

func TestLoad_OptionalFileInWorkingDir(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile("livedb.json", []byte(`{"log": {"level": "DEBUG"}}`), 0o644))

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", cfg.Log.Level)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	t.Setenv("LIVEDB_REALM_WORKERS", "0")
	_, err = Load(New(), "")
	assert.True(t, errors.Is(err, domain.ErrIllegalArgument), "got %v", err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Server: ServerConfig{Port: 80},
			Realm:  RealmConfig{Workers: 1, TickInterval: time.Millisecond},
			Index:  IndexConfig{CacheSize: 1},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port zero", func(c *Config) { c.Server.Port = 0 }},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }},
		{"no workers", func(c *Config) { c.Realm.Workers = 0 }},
		{"no tick", func(c *Config) { c.Realm.TickInterval = 0 }},
		{"no cache", func(c *Config) { c.Index.CacheSize = 0 }},
		{"negative gc", func(c *Config) { c.Storage.GCInterval = -time.Second }},
	}

	cfg := valid()
	require.NoError(t, cfg.Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), domain.ErrIllegalArgument)
		})
	}
}
