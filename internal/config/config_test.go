package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.Equal(t, BackendPebble, cfg.Backend)
	require.Equal(t, 100, cfg.ChunkSize)
	require.Equal(t, 150000, cfg.MaxBacklog)
	require.Equal(t, 500, cfg.MaxOutgoingBacklog)
	require.Equal(t, 100*time.Millisecond, cfg.NoMessagesWait)
	require.Equal(t, 30*time.Second, cfg.KeepaliveTimeout)
	require.Equal(t, 60*time.Second, cfg.PopTimeout)
	require.NoError(t, cfg.Validate())
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "hose.json")
	data := []byte(`{"backend":"redis","redisUrl":"redis://r:6379/1","chunkSize":50}`)
	require.NoError(t, os.WriteFile(file, data, 0o644))

	cfg, err := Load(file)
	require.NoError(t, err)
	require.Equal(t, BackendRedis, cfg.Backend)
	require.Equal(t, "redis://r:6379/1", cfg.RedisURL)
	require.Equal(t, 50, cfg.ChunkSize)
	// untouched keys keep defaults
	require.Equal(t, 150000, cfg.MaxBacklog)
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "hose.yaml")
	data := []byte("backend: pebble\nmaxOutgoingBacklog: 64\nkeepaliveTimeout: 5s\n")
	require.NoError(t, os.WriteFile(file, data, 0o644))

	cfg, err := Load(file)
	require.NoError(t, err)
	require.Equal(t, 64, cfg.MaxOutgoingBacklog)
	require.Equal(t, 5*time.Second, cfg.KeepaliveTimeout)
}

func TestFromEnv(t *testing.T) {
	t.Setenv("HOSE_BACKEND", "redis")
	t.Setenv("HOSE_CHUNK_SIZE", "25")
	t.Setenv("HOSE_NO_MESSAGES_WAIT", "10ms")

	cfg := Default()
	require.NoError(t, FromEnv(&cfg))
	require.Equal(t, BackendRedis, cfg.Backend)
	require.Equal(t, 25, cfg.ChunkSize)
	require.Equal(t, 10*time.Millisecond, cfg.NoMessagesWait)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Backend = "etcd"
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.ChunkSize = 0
	require.Error(t, cfg.Validate())
}
