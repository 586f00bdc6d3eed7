package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	c, err := Load(NewViper(), "")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8000", c.Addr())
	assert.Equal(t, "models/model.gob", c.ModelPath)
	assert.Equal(t, "tmp", c.ArtifactDir)
	assert.Equal(t, "file", c.Storage)
	assert.Equal(t, 168*time.Hour, c.Retention)
	assert.Equal(t, 10*time.Minute, c.JanitorInterval)
	assert.Equal(t, int64(32<<20), c.MaxUploadBytes)
	assert.Equal(t, 30*time.Second, c.RequestTimeout)
	assert.Equal(t, int64(8), c.MaxConcurrent)
	assert.Equal(t, 128, c.CacheSize)
	assert.Equal(t, "info", c.LogLevel)
	assert.False(t, c.WatchModel)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("TABSERVE_PORT", "9100")
	t.Setenv("TABSERVE_STORAGE", "redis")
	t.Setenv("TABSERVE_REDIS_ADDR", "cache:6380")
	t.Setenv("TABSERVE_RETENTION", "0s")

	c, err := Load(NewViper(), "")
	require.NoError(t, err)
	assert.Equal(t, 9100, c.Port)
	assert.Equal(t, "redis", c.Storage)
	assert.Equal(t, "cache:6380", c.Redis.Addr)
	assert.Equal(t, time.Duration(0), c.Retention)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tabserve.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
port = 8100
watch_model = true
request_timeout = "5s"

[redis]
db = 2
`), 0o644))

	c, err := Load(NewViper(), path)
	require.NoError(t, err)
	assert.Equal(t, 8100, c.Port)
	assert.True(t, c.WatchModel)
	assert.Equal(t, 5*time.Second, c.RequestTimeout)
	assert.Equal(t, 2, c.Redis.DB)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(NewViper(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"port":           "70000",
		"storage":        "s3",
		"max_concurrent": "0",
		"log_level":      "loud",
		"artifact_dir":   "",
	}
	for key, val := range tests {
		t.Run(key, func(t *testing.T) {
			v := NewViper()
			v.Set(key, val)
			_, err := Load(v, "")
			assert.Error(t, err)
		})
	}
}
