package serverrun

import (
	"context"
	"testing"
	"time"

	cfgpkg "github.com/rzbill/hose/internal/config"
	pebblestore "github.com/rzbill/hose/internal/storage/pebble"
	logpkg "github.com/rzbill/hose/pkg/log"
)

func TestRunStartsAndStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Options{
			DataDir:  t.TempDir(),
			HTTPAddr: "127.0.0.1:0",
			Fsync:    pebblestore.FsyncModeNever,
			Config:   cfgpkg.Default(),
		})
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestProcessLoggerEnvOverrides(t *testing.T) {
	old := getenv
	t.Cleanup(func() { getenv = old })
	env := map[string]string{"HOSE_LOG_LEVEL": "debug", "HOSE_LOG_FORMAT": "json"}
	getenv = func(key string) string { return env[key] }

	l := ProcessLogger()
	if got := l.GetLevel(); got != logpkg.DebugLevel {
		t.Fatalf("level: %v", got)
	}

	env["HOSE_LOG_LEVEL"] = "nonsense"
	l = ProcessLogger()
	if got := l.GetLevel(); got != logpkg.InfoLevel {
		t.Fatalf("fallback level: %v", got)
	}
}
