// Package replicatorrun exposes the Run entrypoint for the standalone
// replicator daemon: it opens the source and destination logs and tails one
// into the other until interrupted.
package replicatorrun

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	serverrun "github.com/rzbill/hose/internal/cmd/server"
	cfgpkg "github.com/rzbill/hose/internal/config"
	"github.com/rzbill/hose/internal/logstore"
	"github.com/rzbill/hose/internal/replicator"
	pebblestore "github.com/rzbill/hose/internal/storage/pebble"
	logpkg "github.com/rzbill/hose/pkg/log"
)

const connectTimeout = 10 * time.Second

// Endpoint names one side of the replication pair: a Redis URL or a Pebble
// data directory, exactly one of which must be set.
type Endpoint struct {
	RedisURL string
	DataDir  string
}

func (e Endpoint) open(ctx context.Context) (logstore.Store, func() error, error) {
	switch {
	case e.RedisURL != "" && e.DataDir != "":
		return nil, nil, errors.New("replicator: endpoint needs a redis url or a data dir, not both")
	case e.RedisURL != "":
		s, err := logstore.ConnectRedis(ctx, e.RedisURL, connectTimeout)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case e.DataDir != "":
		db, err := pebblestore.Open(pebblestore.Options{DataDir: e.DataDir, Fsync: pebblestore.FsyncModeAlways})
		if err != nil {
			return nil, nil, err
		}
		s, err := logstore.OpenPebble(db)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return s, db.Close, nil
	default:
		return nil, nil, errors.New("replicator: endpoint not specified")
	}
}

type Options struct {
	Source Endpoint
	Dest   Endpoint
	Config cfgpkg.Config
}

// Run replicates Source into Dest until ctx is cancelled or a store fails.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := serverrun.ProcessLogger().With(logpkg.Component("replicator"))
	logpkg.RedirectStdLog(logger)

	src, closeSrc, err := opts.Source.open(sctx)
	if err != nil {
		return fmt.Errorf("replicator: open source: %w", err)
	}
	defer closeSrc()
	dst, closeDst, err := opts.Dest.open(sctx)
	if err != nil {
		return fmt.Errorf("replicator: open destination: %w", err)
	}
	defer closeDst()

	r := replicator.New(src, dst, replicator.TunablesFromConfig(opts.Config), logger)
	if err := r.Run(sctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
