// Package serverrun exposes a shared Run entrypoint used by the CLI to start
// the Hose runtime with the HTTP server and the retention trimmer, handling
// lifecycle and shutdown.
//
// Example:
//
//	opts := serverrun.Options{DataDir: "./data", HTTPAddr: ":8080", Fsync: pebblestore.FsyncModeAlways, Config: config.Default()}
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = serverrun.Run(ctx, opts)
package serverrun

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	cfgpkg "github.com/rzbill/hose/internal/config"
	"github.com/rzbill/hose/internal/runtime"
	httpserver "github.com/rzbill/hose/internal/server/http"
	pebblestore "github.com/rzbill/hose/internal/storage/pebble"
	"github.com/rzbill/hose/internal/trimmer"
	logpkg "github.com/rzbill/hose/pkg/log"
)

// small wrapper to allow testing; replaced by os.Getenv at build time
var getenv = func(key string) string { return os.Getenv(key) }

func getenvDefault(key, def string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return def
}

// ProcessLogger builds the process-wide logger from HOSE_LOG_LEVEL and
// HOSE_LOG_FORMAT, defaulting to info/text on bad values.
func ProcessLogger() logpkg.Logger {
	level, err := logpkg.ParseLevel(getenvDefault("HOSE_LOG_LEVEL", "info"))
	if err != nil {
		level = logpkg.InfoLevel
	}
	format, err := logpkg.ParseFormat(getenvDefault("HOSE_LOG_FORMAT", "text"))
	if err != nil {
		format = logpkg.FormatText
	}
	return logpkg.NewLogger(logpkg.WithLevel(level), logpkg.WithFormat(format))
}

type Options struct {
	DataDir  string
	HTTPAddr string
	Fsync    pebblestore.FsyncMode
	Config   cfgpkg.Config
}

// Run starts the HTTP server and the trimmer and blocks until ctx is
// cancelled or the server fails.
func Run(ctx context.Context, opts Options) error {
	// Be robust to callers that don't pass a signal-aware context; layer a
	// local signal context over the provided one.
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.DataDir == "" {
		opts.DataDir = cfgpkg.DefaultDataDir()
	}
	storeDir := filepath.Join(opts.DataDir, "store")

	procLogger := ProcessLogger()
	// Redirect stdlib logs (e.g. Pebble) to our logger.
	logpkg.RedirectStdLog(procLogger)

	rt, err := runtime.Open(sctx, runtime.Options{DataDir: storeDir, Fsync: opts.Fsync, Config: opts.Config})
	if err != nil {
		return err
	}
	defer rt.Close()

	procLogger.Info("starting hose server",
		logpkg.Str("http", opts.HTTPAddr),
		logpkg.Str("backend", string(opts.Config.Backend)),
		logpkg.Int("max_backlog", opts.Config.MaxBacklog),
	)

	hsrv := httpserver.New(rt, procLogger.With(logpkg.Component("http")))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		tr := trimmer.New(rt.Store(), opts.Config, procLogger.With(logpkg.Component("trimmer")))
		_ = tr.Run(sctx)
	}()

	errCh := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		errCh <- hsrv.ListenAndServe(sctx, opts.HTTPAddr)
	}()

	select {
	case <-sctx.Done():
		err = nil
	case err = <-errCh:
	}
	stop()
	hsrv.Close()
	wg.Wait()
	return err
}
