package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, 5, cfg.Worker.ClipConcurrency)
	assert.Equal(t, 2, cfg.Worker.PlaylistConcurrency)
	assert.Equal(t, time.Hour, cfg.Status.Retention)
	assert.Equal(t, time.Duration(0), cfg.Status.ReadGrace)
	assert.Equal(t, 10*time.Minute, cfg.Storage.ArchiveRetention)
	assert.Equal(t, "yt-dlp", cfg.Extractor.Binary)
	assert.Equal(t, time.Duration(0), cfg.Extractor.Timeout)
	assert.False(t, cfg.R2.Configured())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CLIP_CONCURRENCY", "3")
	t.Setenv("STATUS_RETENTION", "30m")
	t.Setenv("PUBLIC_URL", "https://clips.example/")
	t.Setenv("R2_ACCOUNT_ID", "acct")
	t.Setenv("R2_ACCESS_KEY_ID", "key")
	t.Setenv("R2_SECRET_ACCESS_KEY", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Worker.ClipConcurrency)
	assert.Equal(t, 30*time.Minute, cfg.Status.Retention)
	assert.Equal(t, "https://clips.example", cfg.Server.PublicURL)
	assert.True(t, cfg.R2.Configured())
}

func TestLoad_InvalidConcurrency(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PLAYLIST_CONCURRENCY", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "playlist_concurrency")
}

func TestLoad_ReadGraceWholeSeconds(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Setenv("STATUS_READ_GRACE", "500ms")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read_grace")

	t.Setenv("STATUS_READ_GRACE", "1500ms")
	_, err = Load()
	require.Error(t, err)

	t.Setenv("STATUS_READ_GRACE", "30s")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Status.ReadGrace)
}

func TestReadSecret_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/redis_password"
	require.NoError(t, os.WriteFile(path, []byte("s3cret\n"), 0o600))

	t.Setenv("REDIS_PASSWORD", "")
	t.Setenv("REDIS_PASSWORD_FILE", path)
	readSecret("REDIS_PASSWORD")

	t.Chdir(dir)
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Redis.Password)
}
