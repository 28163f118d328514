package logstore

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/rzbill/hose/internal/storage/pebble"
)

// trimBatchLimit bounds how many entries a single trim batch deletes.
const trimBatchLimit = 1024

// PebbleStore implements Store on an embedded Pebble database. The id counter
// is guarded by an in-process mutex and persisted under a metadata key, so it
// survives reopen.
type PebbleStore struct {
	db *pebblestore.DB

	mu     sync.Mutex
	lastID uint64
}

// OpenPebble initializes a PebbleStore and loads the last allocated id from
// metadata (if any).
func OpenPebble(db *pebblestore.DB) (*PebbleStore, error) {
	s := &PebbleStore{db: db}
	meta, err := db.Get(keySeq)
	switch {
	case err == nil && len(meta) >= 8:
		s.lastID = binary.BigEndian.Uint64(meta[:8])
	case errors.Is(err, pebblestore.ErrNotFound):
	case err != nil:
		return nil, err
	}
	return s, nil
}

// NextID allocates the next id and persists the counter.
func (s *PebbleStore) NextID(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.lastID + 1
	var meta [8]byte
	binary.BigEndian.PutUint64(meta[:], id)
	if err := s.db.Set(keySeq, meta[:]); err != nil {
		return 0, err
	}
	s.lastID = id
	return id, nil
}

// Commit writes the index entry and payload in one atomic batch. When id is
// ahead of the counter (replicated entries carry their source ids), the
// counter is advanced in the same batch.
func (s *PebbleStore) Commit(ctx context.Context, id uint64, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(keyIndex(id), nil, nil); err != nil {
		return err
	}
	if err := b.Set(keyPayload(id), payload, nil); err != nil {
		return err
	}
	advance := id > s.lastID
	if advance {
		var meta [8]byte
		binary.BigEndian.PutUint64(meta[:], id)
		if err := b.Set(keySeq, meta[:], nil); err != nil {
			return err
		}
	}
	if err := s.db.CommitBatch(ctx, b); err != nil {
		return err
	}
	if advance {
		s.lastID = id
	}
	return nil
}

// RangeIDs scans the log index for up to limit ids in [low, high].
func (s *PebbleStore) RangeIDs(ctx context.Context, low uint64, high Bound, limit int) ([]uint64, error) {
	upper := keyIndex(^uint64(0))
	if !high.IsUnbounded() {
		upper = keyIndex(high.ID())
	}
	// Pebble upper bounds are exclusive; extend by one byte for inclusive.
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: keyIndex(low),
		UpperBound: append(upper, 0x00),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	ids := make([]uint64, 0, limit)
	for ok := iter.First(); ok && (limit <= 0 || len(ids) < limit); ok = iter.Next() {
		ids = append(ids, idFromIndexKey(iter.Key()))
	}
	return ids, nil
}

// Get returns the payload for id, or ErrNotFound.
func (s *PebbleStore) Get(ctx context.Context, id uint64) ([]byte, error) {
	v, err := s.db.Get(keyPayload(id))
	if errors.Is(err, pebblestore.ErrNotFound) {
		return nil, ErrNotFound
	}
	return v, err
}

// GetMany batch-fetches payloads; absent ids yield nil slots.
func (s *PebbleStore) GetMany(ctx context.Context, ids []uint64) ([][]byte, error) {
	out := make([][]byte, len(ids))
	for i, id := range ids {
		v, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// CurrentMax returns the highest allocated id.
func (s *PebbleStore) CurrentMax(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastID, nil
}

// TrimToNewest removes index entries and payloads ranked below the newest n.
// Deletion is batched and intentionally uncoordinated with concurrent readers.
func (s *PebbleStore) TrimToNewest(ctx context.Context, n int) (int, error) {
	cutoff, ok, err := s.cutoffForNewest(n)
	if err != nil || !ok {
		return 0, err
	}

	deleted := 0
	for {
		iter, err := s.db.NewIter(&pebble.IterOptions{
			LowerBound: keyIndex(0),
			UpperBound: keyIndex(cutoff), // exclusive: keep the cutoff id itself
		})
		if err != nil {
			return deleted, err
		}
		b := s.db.NewBatch()
		batched := 0
		for ok := iter.First(); ok && batched < trimBatchLimit; ok = iter.Next() {
			id := idFromIndexKey(iter.Key())
			if err := b.Delete(iter.Key(), nil); err != nil {
				b.Close()
				iter.Close()
				return deleted, err
			}
			if err := b.Delete(keyPayload(id), nil); err != nil {
				b.Close()
				iter.Close()
				return deleted, err
			}
			batched++
		}
		iter.Close()
		if batched == 0 {
			b.Close()
			return deleted, nil
		}
		if err := s.db.CommitBatch(ctx, b); err != nil {
			b.Close()
			return deleted, err
		}
		b.Close()
		deleted += batched
	}
}

// cutoffForNewest finds the lowest id that survives a keep-newest-n trim.
func (s *PebbleStore) cutoffForNewest(n int) (uint64, bool, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: keyIndex(0),
		UpperBound: append(keyIndex(^uint64(0)), 0x00),
	})
	if err != nil {
		return 0, false, err
	}
	defer iter.Close()

	if n <= 0 {
		// keep nothing: cut just above the newest entry
		if ok := iter.Last(); !ok {
			return 0, false, nil
		}
		return idFromIndexKey(iter.Key()) + 1, true, nil
	}

	seen := 0
	for ok := iter.Last(); ok; ok = iter.Prev() {
		seen++
		if seen == n {
			return idFromIndexKey(iter.Key()), true, nil
		}
	}
	// fewer than n entries: nothing to trim
	return 0, false, nil
}
