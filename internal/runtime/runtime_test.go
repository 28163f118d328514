package runtime

import (
	"context"
	"testing"

	cfgpkg "github.com/rzbill/hose/internal/config"
	"github.com/rzbill/hose/internal/ingest"
	pebblestore "github.com/rzbill/hose/internal/storage/pebble"
)

func TestOpenCloseHealth(t *testing.T) {
	dir := t.TempDir()
	rt, err := Open(context.Background(), Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways, Config: cfgpkg.Default()})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	defer rt.Close()
	if err := rt.CheckHealth(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
}

func TestStoreAndQueueAreWired(t *testing.T) {
	dir := t.TempDir()
	rt, err := Open(context.Background(), Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways, Config: cfgpkg.Default()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rt.Close()

	id, err := ingest.Post(context.Background(), rt.Store(), map[string]any{"text": "hello"})
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if id != 1 {
		t.Fatalf("expected first id 1, got %d", id)
	}
	if _, err := rt.Queue().Push(context.Background(), "sub:test", []byte("x")); err != nil {
		t.Fatalf("push: %v", err)
	}
	n, err := rt.Queue().Len(context.Background(), "sub:test")
	if err != nil || n != 1 {
		t.Fatalf("len: n=%d err=%v", n, err)
	}
}

func TestUnknownBackendRejectedByConfig(t *testing.T) {
	cfg := cfgpkg.Default()
	cfg.Backend = "etcd"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for unknown backend")
	}
}
