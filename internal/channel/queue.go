package channel

import (
	"context"
	"errors"
	"time"
)

// CloseSentinel is a literal value a worker may push to request an immediate
// stream stop, ahead of the consumer's own pop timeout.
const CloseSentinel = "<close>"

// ErrGone is returned by Push when the channel was deleted. The worker treats
// it as cooperative cancellation: stop now, no further writes.
var ErrGone = errors.New("channel: gone")

// Queue is the outgoing channel surface shared by all backends.
type Queue interface {
	// Push appends items and returns the resulting queue length.
	// Returns ErrGone when the channel has been deleted.
	Push(ctx context.Context, name string, items ...[]byte) (int64, error)

	// Len returns the current queue length. A deleted or never-written
	// channel reports 0.
	Len(ctx context.Context, name string) (int64, error)

	// BPop blocks up to timeout for the next item. ok is false when the wait
	// timed out or the channel is gone.
	BPop(ctx context.Context, name string, timeout time.Duration) (item []byte, ok bool, err error)

	// Delete removes the channel and marks it gone for future pushes.
	Delete(ctx context.Context, name string) error
}
