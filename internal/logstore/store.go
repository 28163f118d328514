package logstore

import (
	"context"
	"errors"
	"strconv"
)

// ErrNotFound is returned by Get when no payload exists for an id. Readers
// treat it as "skip": an id can be indexed while its payload has already been
// trimmed, or the other way around.
var ErrNotFound = errors.New("logstore: payload not found")

// Bound is the explicit upper bound of a range scan: either a concrete id or
// unbounded ("tail forever").
type Bound struct {
	id        uint64
	unbounded bool
}

// BoundedAt returns a bound at the given id (inclusive).
func BoundedAt(id uint64) Bound { return Bound{id: id} }

// Unbounded returns the open upper bound.
func Unbounded() Bound { return Bound{unbounded: true} }

// IsUnbounded reports whether the bound is open.
func (b Bound) IsUnbounded() bool { return b.unbounded }

// ID returns the bounding id. Only meaningful when !IsUnbounded().
func (b Bound) ID() uint64 { return b.id }

func (b Bound) String() string {
	if b.unbounded {
		return "+inf"
	}
	return strconv.FormatUint(b.id, 10)
}

// Store is the narrow log interface the engine consumes.
//
// Ids are strictly increasing and globally unique within a store; assignment
// goes through a single atomic counter so insertion order and numeric order
// coincide.
type Store interface {
	// NextID atomically allocates the next id.
	NextID(ctx context.Context) (uint64, error)

	// Commit transactionally adds id to the log index and stores its payload,
	// as one atomic unit. Committing an id above the counter (the replicator
	// path) advances the counter so CurrentMax stays meaningful on replicas.
	Commit(ctx context.Context, id uint64, payload []byte) error

	// RangeIDs returns up to limit indexed ids in [low, high], ascending.
	RangeIDs(ctx context.Context, low uint64, high Bound, limit int) ([]uint64, error)

	// Get returns the payload for id, or ErrNotFound.
	Get(ctx context.Context, id uint64) ([]byte, error)

	// GetMany batch-fetches payloads; absent ids yield a nil slot.
	GetMany(ctx context.Context, ids []uint64) ([][]byte, error)

	// CurrentMax returns the highest id allocated so far, 0 when none.
	CurrentMax(ctx context.Context) (uint64, error)

	// TrimToNewest removes index entries and payloads ranked below the newest
	// n, returning how many entries were removed. n <= 0 empties the log.
	// Non-transactional by design.
	TrimToNewest(ctx context.Context, n int) (int, error)
}
