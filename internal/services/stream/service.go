// Package streamsvc exposes the publish/subscribe surface of the engine:
// posting statuses into the message log and serving filtered subscription
// streams over per-subscriber outgoing channels.
package streamsvc

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rzbill/hose/internal/channel"
	"github.com/rzbill/hose/internal/ingest"
	"github.com/rzbill/hose/internal/runtime"
	"github.com/rzbill/hose/internal/worker"
	logpkg "github.com/rzbill/hose/pkg/log"
)

// Service provides the post and subscribe operations over a Runtime. Each
// subscription gets a dedicated worker goroutine feeding a uniquely named
// outgoing channel; consumers drain the channel with Pop.
type Service struct {
	rt         *runtime.Runtime
	logger     logpkg.Logger
	tun        worker.Tunables
	popTimeout time.Duration

	// baseCtx scopes worker goroutines to the service, not to the request
	// that started them.
	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	subsMu     sync.Mutex
	activeSubs map[string]context.CancelFunc
}

// New returns a Service using a default logger.
func New(rt *runtime.Runtime) *Service {
	return NewWithLogger(rt, nil)
}

// NewWithLogger constructs the service with an injected logger.
func NewWithLogger(rt *runtime.Runtime, logger logpkg.Logger) *Service {
	if logger == nil {
		logger = logpkg.NewLogger().With(logpkg.Component("stream"))
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		rt:         rt,
		logger:     logger,
		tun:        worker.TunablesFromConfig(rt.Config()),
		popTimeout: rt.Config().PopTimeout,
		baseCtx:    ctx,
		stop:       cancel,
		activeSubs: map[string]context.CancelFunc{},
	}
}

// Post appends one status to the message log and returns its id.
func (s *Service) Post(ctx context.Context, fields map[string]any) (uint64, error) {
	return ingest.Post(ctx, s.rt.Store(), fields)
}

// StartSubscription validates the requested filter, allocates an outgoing
// channel, and launches the streaming worker for it. The returned channel
// name is the consumer's handle for Pop. The scan window is fixed before
// this returns, so a status posted afterwards is always covered by an
// unbounded subscription.
//
// The worker is scoped to the service, not to ctx: a subscriber that
// disconnects is reaped by the keepalive logic, not by request teardown.
func (s *Service) StartSubscription(ctx context.Context, kind, content string, backlog int64) (string, error) {
	ch := "sub:" + uuid.NewString()
	w := worker.New(s.rt.Store(), s.rt.Queue(), s.tun, s.logger)
	if err := w.Prepare(ctx, backlog, kind, content, ch); err != nil {
		_ = s.rt.Queue().Delete(ctx, ch)
		return "", err
	}

	wctx, cancel := context.WithCancel(s.baseCtx)
	s.subsMu.Lock()
	s.activeSubs[ch] = cancel
	s.subsMu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			cancel()
			s.subsMu.Lock()
			delete(s.activeSubs, ch)
			s.subsMu.Unlock()
		}()
		if err := w.Stream(wctx); err != nil && wctx.Err() == nil {
			s.logger.Error("subscription worker failed",
				logpkg.Str("channel", ch), logpkg.Err(err))
		}
	}()

	s.logger.Debug("subscription started",
		logpkg.Str("channel", ch), logpkg.Str("kind", kind), logpkg.Int64("backlog", backlog))
	return ch, nil
}

// Pop blocks for the next item on an outgoing channel. ok=false means the
// stream is over: the pop timed out, the channel is gone, or the worker sent
// its close sentinel. After a close sentinel the channel is deleted so the
// worker (if still running) stands down.
func (s *Service) Pop(ctx context.Context, ch string) ([]byte, bool, error) {
	item, ok, err := s.rt.Queue().BPop(ctx, ch, s.popTimeout)
	if err != nil || !ok {
		return nil, false, err
	}
	if string(item) == channel.CloseSentinel {
		_ = s.rt.Queue().Delete(ctx, ch)
		return nil, false, nil
	}
	return item, true, nil
}

// EndSubscription tears one subscription down: the channel is deleted and
// its worker cancelled. Safe to call for channels that already ended.
func (s *Service) EndSubscription(ctx context.Context, ch string) error {
	s.subsMu.Lock()
	cancel, open := s.activeSubs[ch]
	s.subsMu.Unlock()
	if open {
		cancel()
	}
	return s.rt.Queue().Delete(ctx, ch)
}

// ActiveSubscriptions reports how many workers are currently running.
func (s *Service) ActiveSubscriptions() int {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	return len(s.activeSubs)
}

// Close cancels every worker and waits for them to exit.
func (s *Service) Close() {
	s.stop()
	s.wg.Wait()
}
