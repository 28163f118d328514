package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rzbill/hose/internal/channel"
	"github.com/rzbill/hose/internal/config"
	"github.com/rzbill/hose/internal/criteria"
	"github.com/rzbill/hose/internal/logstore"
	logpkg "github.com/rzbill/hose/pkg/log"
)

// heartbeat is the empty-object liveness message.
var heartbeat = []byte("{}")

// Tunables are the timing and sizing knobs of the scan loop. Production code
// takes them from config; tests shrink them.
type Tunables struct {
	ChunkSize          int
	MaxOutgoingBacklog int
	NoMessagesWait     time.Duration
	KeepaliveTimeout   time.Duration
}

// TunablesFromConfig extracts the worker knobs from the runtime config.
func TunablesFromConfig(cfg config.Config) Tunables {
	return Tunables{
		ChunkSize:          cfg.ChunkSize,
		MaxOutgoingBacklog: cfg.MaxOutgoingBacklog,
		NoMessagesWait:     cfg.NoMessagesWait,
		KeepaliveTimeout:   cfg.KeepaliveTimeout,
	}
}

// Worker streams one subscription. One instance per subscription: Prepare
// once, Stream once, and the worker never resumes after Stream returns.
type Worker struct {
	store  logstore.Store
	queue  channel.Queue
	cfg    Tunables
	logger logpkg.Logger

	now func() time.Time

	crit   criteria.Criteria
	kind   string
	ch     string
	cursor uint64
	end    logstore.Bound
}

// New builds a worker over the given store and channel backend.
func New(store logstore.Store, queue channel.Queue, cfg Tunables, logger logpkg.Logger) *Worker {
	if logger == nil {
		logger = logpkg.Nop()
	}
	return &Worker{store: store, queue: queue, cfg: cfg, logger: logger, now: time.Now}
}

// Prepare resolves the filter and the scan window against the current log
// maximum. It is synchronous so callers can hand out the channel name
// knowing exactly which messages the subscription covers.
//
// backlog controls the replay window: scanning starts abs(backlog) ids
// before the current maximum. A negative backlog additionally bounds the
// scan at the start-time maximum, making it a historical-only replay.
func (w *Worker) Prepare(ctx context.Context, backlog int64, kind, content, ch string) error {
	w.kind = kind
	w.ch = ch

	crit, err := criteria.New(kind, content)
	if err != nil {
		// Terminal: tell the consumer to stop immediately, no log access.
		if _, perr := w.queue.Push(ctx, ch, []byte(channel.CloseSentinel)); perr != nil && !errors.Is(perr, channel.ErrGone) {
			w.logger.Warn("close sentinel push failed", logpkg.Err(perr))
		}
		return err
	}
	w.crit = crit

	max, err := w.store.CurrentMax(ctx)
	if err != nil {
		return fmt.Errorf("worker: current max: %w", err)
	}
	w.end = logstore.Unbounded()
	if backlog < 0 {
		w.end = logstore.BoundedAt(max)
	}
	window := uint64(backlog)
	if backlog < 0 {
		window = uint64(-backlog)
	}
	// cursor is the last id already scanned; scanning resumes just past it.
	w.cursor = 0
	if window < max {
		w.cursor = max - window
	}
	return nil
}

// Stream executes the scan/backpressure/keepalive loop until the
// subscription ends: bounded replay exhausted, channel deleted externally,
// keepalive overflow, or ctx cancellation. A store failure is returned to
// the caller; retrying is the supervisor's job, not the worker's.
func (w *Worker) Stream(ctx context.Context) error {
	logger := w.logger.With(logpkg.Str("channel", w.ch), logpkg.Str("kind", w.kind))
	logger.Debug("worker started",
		logpkg.Uint64("cursor", w.cursor), logpkg.Str("end", w.end.String()))

	var (
		tossed            uint64
		tossedNotified    uint64
		lastSentHeartbeat bool
	)
	keepalive := w.now().Add(w.cfg.KeepaliveTimeout)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !w.end.IsUnbounded() && w.cursor >= w.end.ID() {
			logger.Debug("replay window exhausted")
			return nil
		}

		ids, err := w.store.RangeIDs(ctx, w.cursor+1, w.end, w.cfg.ChunkSize)
		if err != nil {
			return fmt.Errorf("worker: range scan: %w", err)
		}

		foundMatch := false
		switch {
		case len(ids) > 0:
			payloads, err := w.store.GetMany(ctx, ids)
			if err != nil {
				return fmt.Errorf("worker: fetch payloads: %w", err)
			}
			qlen, err := w.queue.Len(ctx, w.ch)
			if err != nil {
				return fmt.Errorf("worker: channel length: %w", err)
			}

			var outgoing [][]byte
			for _, payload := range payloads {
				if payload == nil {
					// Trimmed (or deleted) between index scan and fetch.
					continue
				}
				if !w.crit.Match(payload) {
					continue
				}
				if qlen >= int64(w.cfg.MaxOutgoingBacklog) {
					tossed++
					continue
				}
				lastSentHeartbeat = false
				if tossedNotified != tossed {
					notice, _ := json.Marshal(map[string]map[string]uint64{"limit": {w.kind: tossed}})
					outgoing = append(outgoing, notice)
					tossedNotified = tossed
				}
				qlen++
				foundMatch = true
				outgoing = append(outgoing, payload)
			}

			if len(outgoing) > 0 {
				if _, err := w.queue.Push(ctx, w.ch, outgoing...); err != nil {
					if errors.Is(err, channel.ErrGone) {
						logger.Debug("channel deleted externally")
						return nil
					}
					return fmt.Errorf("worker: push: %w", err)
				}
			}
			if foundMatch {
				keepalive = w.now().Add(w.cfg.KeepaliveTimeout)
			}
			w.cursor = ids[len(ids)-1]

		case w.end.IsUnbounded():
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.cfg.NoMessagesWait):
			}

		default:
			logger.Debug("replay window exhausted")
			return nil
		}

		if !foundMatch && w.now().After(keepalive) {
			keepalive = w.now().Add(w.cfg.KeepaliveTimeout)
			quit := false
			if lastSentHeartbeat {
				// The previous heartbeat is still unconsumed and the channel
				// has not drained: the consumer is not keeping up.
				n, err := w.queue.Len(ctx, w.ch)
				if err != nil {
					return fmt.Errorf("worker: channel length: %w", err)
				}
				quit = n > 0
			}
			if !quit {
				n, err := w.queue.Push(ctx, w.ch, heartbeat)
				if errors.Is(err, channel.ErrGone) {
					logger.Debug("channel deleted externally")
					return nil
				}
				if err != nil {
					return fmt.Errorf("worker: push heartbeat: %w", err)
				}
				if n >= int64(w.cfg.MaxOutgoingBacklog) {
					quit = true
				} else {
					lastSentHeartbeat = true
				}
			}
			if quit {
				// Consumer cannot keep up even with no matches for a full
				// keepalive window. Kill the channel; the client times out
				// on its next blocking pop.
				if err := w.queue.Delete(ctx, w.ch); err != nil {
					logger.Warn("channel delete failed", logpkg.Err(err))
				}
				logger.Info("subscriber too slow, channel deleted",
					logpkg.Uint64("tossed", tossed))
				return nil
			}
		}
	}
}

// Run is Prepare followed by Stream.
func (w *Worker) Run(ctx context.Context, backlog int64, kind, content, ch string) error {
	if err := w.Prepare(ctx, backlog, kind, content, ch); err != nil {
		return err
	}
	return w.Stream(ctx)
}
