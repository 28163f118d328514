// Package trimmer enforces the retention bound on the message log,
// periodically discarding everything but the newest entries.
package trimmer

import (
	"context"
	"time"

	"github.com/rzbill/hose/internal/config"
	"github.com/rzbill/hose/internal/logstore"
	logpkg "github.com/rzbill/hose/pkg/log"
)

// Trimmer keeps the log bounded. Subscribers still scanning a trimmed range
// observe missing payloads and skip them; they do not fail.
type Trimmer struct {
	store    logstore.Store
	interval time.Duration
	keep     int
	logger   logpkg.Logger
}

// New builds a trimmer that retains cfg.MaxBacklog entries, checking every
// cfg.TrimInterval.
func New(store logstore.Store, cfg config.Config, logger logpkg.Logger) *Trimmer {
	if logger == nil {
		logger = logpkg.Nop()
	}
	return &Trimmer{store: store, interval: cfg.TrimInterval, keep: cfg.MaxBacklog, logger: logger}
}

// Run trims on every tick until ctx is cancelled. Trim failures are logged
// and retried on the next tick rather than tearing the process down.
func (t *Trimmer) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		removed, err := t.store.TrimToNewest(ctx, t.keep)
		if err != nil {
			t.logger.Warn("trim failed", logpkg.Err(err))
			continue
		}
		if removed > 0 {
			t.logger.Debug("backlog trimmed", logpkg.Int("removed", removed))
		}
	}
}
