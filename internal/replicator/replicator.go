// Package replicator copies a message log into another store, typically to
// fan a primary log out to read replicas that serve their own subscribers.
package replicator

import (
	"context"
	"fmt"
	"time"

	"github.com/rzbill/hose/internal/config"
	"github.com/rzbill/hose/internal/ingest"
	"github.com/rzbill/hose/internal/logstore"
	logpkg "github.com/rzbill/hose/pkg/log"
)

// Tunables control the copy loop. The poll interval backs off exponentially
// while the source is quiet and snaps back to MinPoll on progress.
type Tunables struct {
	ChunkSize int
	MinPoll   time.Duration
	MaxPoll   time.Duration
}

// TunablesFromConfig extracts the replicator knobs from the runtime config.
func TunablesFromConfig(cfg config.Config) Tunables {
	return Tunables{
		ChunkSize: cfg.ChunkSize,
		MinPoll:   cfg.ReplicatorMinPoll,
		MaxPoll:   cfg.ReplicatorMaxPoll,
	}
}

// Replicator tails one source log into one destination log.
type Replicator struct {
	src    logstore.Store
	dst    logstore.Store
	cfg    Tunables
	logger logpkg.Logger
}

// New builds a replicator from src into dst.
func New(src, dst logstore.Store, cfg Tunables, logger logpkg.Logger) *Replicator {
	if logger == nil {
		logger = logpkg.Nop()
	}
	return &Replicator{src: src, dst: dst, cfg: cfg, logger: logger}
}

// Run copies messages until ctx is cancelled. It resumes from the
// destination's current maximum, so a restarted replicator picks up where
// the previous run left off without re-copying.
//
// Ids are preserved exactly; the destination log is a suffix-identical copy
// of the source modulo entries the source trimmed before they were read.
func (r *Replicator) Run(ctx context.Context) error {
	cursor, err := r.dst.CurrentMax(ctx)
	if err != nil {
		return fmt.Errorf("replicator: destination max: %w", err)
	}
	r.logger.Info("replication started", logpkg.Uint64("from", cursor))

	wait := r.cfg.MinPoll
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		ids, err := r.src.RangeIDs(ctx, cursor+1, logstore.Unbounded(), r.cfg.ChunkSize)
		if err != nil {
			return fmt.Errorf("replicator: range scan: %w", err)
		}
		if len(ids) == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			if wait *= 2; wait > r.cfg.MaxPoll {
				wait = r.cfg.MaxPoll
			}
			continue
		}
		wait = r.cfg.MinPoll

		payloads, err := r.src.GetMany(ctx, ids)
		if err != nil {
			return fmt.Errorf("replicator: fetch payloads: %w", err)
		}
		copied := 0
		for i, id := range ids {
			if payloads[i] == nil {
				// Trimmed on the source between index scan and fetch.
				continue
			}
			if err := ingest.PostWithID(ctx, r.dst, id, payloads[i]); err != nil {
				return fmt.Errorf("replicator: write %d: %w", id, err)
			}
			copied++
		}
		cursor = ids[len(ids)-1]
		r.logger.Debug("chunk replicated",
			logpkg.Int("copied", copied), logpkg.Uint64("cursor", cursor))
	}
}
