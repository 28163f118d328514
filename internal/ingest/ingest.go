// Package ingest sequences new messages into the log store: id assignment,
// timestamping, and the atomic index+payload commit.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rzbill/hose/internal/logstore"
)

// now is stubbed in tests.
var now = time.Now

// Post assigns the next id to the message, stamps created_at (seconds since
// the Unix epoch), and commits index entry and payload as one atomic unit.
// Once Post returns, Get(id) is visible to any reader sharing the store.
//
// Ids come from a single atomic counter; exhausting its range would produce
// duplicates. That is a documented limitation, not handled here.
func Post(ctx context.Context, store logstore.Store, fields map[string]any) (uint64, error) {
	id, err := store.NextID(ctx)
	if err != nil {
		return 0, fmt.Errorf("ingest: allocate id: %w", err)
	}
	stamped := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		stamped[k] = v
	}
	stamped["id"] = id
	stamped["created_at"] = float64(now().UnixNano()) / float64(time.Second)

	payload, err := json.Marshal(stamped)
	if err != nil {
		return 0, fmt.Errorf("ingest: marshal: %w", err)
	}
	if err := store.Commit(ctx, id, payload); err != nil {
		return 0, fmt.Errorf("ingest: commit %d: %w", id, err)
	}
	return id, nil
}

// PostWithID commits a pre-serialized payload under an explicit id. The
// replicator uses it to mirror messages while preserving their source ids.
func PostWithID(ctx context.Context, store logstore.Store, id uint64, payload []byte) error {
	if err := store.Commit(ctx, id, payload); err != nil {
		return fmt.Errorf("ingest: commit %d: %w", id, err)
	}
	return nil
}
