package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/rzbill/hose/internal/channel"
	"github.com/rzbill/hose/internal/criteria"
	"github.com/rzbill/hose/internal/ingest"
	"github.com/rzbill/hose/internal/logstore"
	pebblestore "github.com/rzbill/hose/internal/storage/pebble"
)

func testTunables() Tunables {
	return Tunables{
		ChunkSize:          100,
		MaxOutgoingBacklog: 500,
		NoMessagesWait:     5 * time.Millisecond,
		KeepaliveTimeout:   30 * time.Second,
	}
}

func newTestStore(t *testing.T) logstore.Store {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeNever})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	s, err := logstore.OpenPebble(db)
	require.NoError(t, err)
	return s
}

func post(t *testing.T, s logstore.Store, fields map[string]any) uint64 {
	t.Helper()
	id, err := ingest.Post(context.Background(), s, fields)
	require.NoError(t, err)
	return id
}

func drain(t *testing.T, q channel.Queue, name string, n int) [][]byte {
	t.Helper()
	out := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		item, ok, err := q.BPop(context.Background(), name, 2*time.Second)
		require.NoError(t, err)
		require.True(t, ok, "expected item %d", i)
		out = append(out, item)
	}
	return out
}

func TestInvalidCriteriaPushesCloseSentinel(t *testing.T) {
	s := newTestStore(t)
	q := channel.NewMemory()
	w := New(s, q, testTunables(), nil)

	err := w.Run(context.Background(), 0, "trending", "", "sub:x")
	require.ErrorIs(t, err, criteria.ErrUnknownKind)

	item, ok, err := q.BPop(context.Background(), "sub:x", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, channel.CloseSentinel, string(item))
}

func TestBoundedReplayStopsAfterWindow(t *testing.T) {
	s := newTestStore(t)
	q := channel.NewMemory()
	for i := 0; i < 10; i++ {
		post(t, s, map[string]any{"text": "hello world"})
	}

	w := New(s, q, testTunables(), nil)
	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background(), -5, "firehose", "", "sub:replay") }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("bounded replay did not terminate")
	}

	items := drain(t, q, "sub:replay", 5)
	// the 5 most recent at start time, in log order
	require.EqualValues(t, 6, gjson.GetBytes(items[0], "id").Uint())
	require.EqualValues(t, 10, gjson.GetBytes(items[4], "id").Uint())

	// and nothing beyond the window
	_, ok, err := q.BPop(context.Background(), "sub:replay", 50*time.Millisecond)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPositiveBacklogReplaysThenTails(t *testing.T) {
	s := newTestStore(t)
	q := channel.NewMemory()
	for i := 0; i < 10; i++ {
		post(t, s, map[string]any{"text": "hello"})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := New(s, q, testTunables(), nil)
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, 5, "firehose", "", "sub:tail") }()

	items := drain(t, q, "sub:tail", 5)
	require.EqualValues(t, 6, gjson.GetBytes(items[0], "id").Uint())

	// still tailing: a new message flows through
	newID := post(t, s, map[string]any{"text": "fresh"})
	live := drain(t, q, "sub:tail", 1)
	require.EqualValues(t, newID, gjson.GetBytes(live[0], "id").Uint())

	select {
	case err := <-done:
		t.Fatalf("worker stopped while tailing: %v", err)
	default:
	}
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestCriteriaFiltering(t *testing.T) {
	s := newTestStore(t)
	q := channel.NewMemory()
	post(t, s, map[string]any{"text": "streaming api rocks", "author": "alice"})
	post(t, s, map[string]any{"text": "nothing to see", "author": "bob"})
	post(t, s, map[string]any{"text": "more streaming api talk", "author": "carol"})

	w := New(s, q, testTunables(), nil)
	require.NoError(t, w.Run(context.Background(), -3, "track", "streaming api", "sub:f"))

	items := drain(t, q, "sub:f", 2)
	require.Equal(t, "alice", gjson.GetBytes(items[0], "author").String())
	require.Equal(t, "carol", gjson.GetBytes(items[1], "author").String())
}

func TestBackpressureDropsAndNotifiesOnce(t *testing.T) {
	s := newTestStore(t)
	q := channel.NewMemory()
	ctx := context.Background()

	cfg := testTunables()
	cfg.MaxOutgoingBacklog = 3

	// pin the channel at capacity
	_, err := q.Push(ctx, "sub:bp", []byte("a"), []byte("b"), []byte("c"))
	require.NoError(t, err)

	cctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w := New(s, q, cfg, nil)
	// fix the scan window before posting so the tail picks up both messages
	require.NoError(t, w.Prepare(cctx, 0, "firehose", "", "sub:bp"))
	done := make(chan error, 1)
	go func() { done <- w.Stream(cctx) }()

	// two matches while pinned: dropped, counted, not enqueued
	post(t, s, map[string]any{"text": "one"})
	post(t, s, map[string]any{"text": "two"})
	require.Eventually(t, func() bool {
		n, _ := q.Len(ctx, "sub:bp")
		return n == 3
	}, time.Second, 5*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	n, err := q.Len(ctx, "sub:bp")
	require.NoError(t, err)
	require.EqualValues(t, 3, n, "pinned channel must not grow")

	// drain below capacity, then the next match is preceded by one limit
	// notice carrying the tossed count
	drain(t, q, "sub:bp", 3)
	post(t, s, map[string]any{"text": "three"})

	items := drain(t, q, "sub:bp", 2)
	require.EqualValues(t, 2, gjson.GetBytes(items[0], "limit.firehose").Uint())
	require.Equal(t, "three", gjson.GetBytes(items[1], "text").String())

	cancel()
	<-done
}

func TestKeepaliveHeartbeatWhenIdle(t *testing.T) {
	s := newTestStore(t)
	q := channel.NewMemory()

	cfg := testTunables()
	cfg.KeepaliveTimeout = 30 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := New(s, q, cfg, nil)
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, 0, "firehose", "", "sub:hb") }()

	// a draining consumer sees empty-object heartbeats and the worker lives on
	item, ok, err := q.BPop(ctx, "sub:hb", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "{}", string(item))

	item, ok, err = q.BPop(ctx, "sub:hb", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "{}", string(item))

	select {
	case err := <-done:
		t.Fatalf("worker stopped while heartbeating: %v", err)
	default:
	}
	cancel()
	<-done
}

func TestKeepaliveOverflowDeletesChannel(t *testing.T) {
	s := newTestStore(t)
	q := channel.NewMemory()
	ctx := context.Background()

	cfg := testTunables()
	cfg.KeepaliveTimeout = 20 * time.Millisecond

	// one unread item and nobody draining: the second keepalive window finds
	// the previous heartbeat unconsumed and terminates the subscription
	_, err := q.Push(ctx, "sub:dead", []byte("stale"))
	require.NoError(t, err)

	w := New(s, q, cfg, nil)
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, 0, "firehose", "", "sub:dead") }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not self-terminate")
	}

	// channel is gone: a push would report ErrGone, the consumer times out
	_, err = q.Push(ctx, "sub:dead", []byte("late"))
	require.ErrorIs(t, err, channel.ErrGone)
}

func TestExternalDeleteCancelsWorker(t *testing.T) {
	s := newTestStore(t)
	q := channel.NewMemory()
	ctx := context.Background()

	w := New(s, q, testTunables(), nil)
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, 0, "firehose", "", "sub:cut") }()

	// consumer walks away
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Delete(ctx, "sub:cut"))

	// next matching push observes the deletion and the worker stops cleanly
	post(t, s, map[string]any{"text": "anyone there"})
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not observe channel deletion")
	}
}

// tombstoneStore hides one payload to simulate the index-present /
// payload-absent race with the trimmer.
type tombstoneStore struct {
	logstore.Store
	hidden uint64
}

func (s tombstoneStore) GetMany(ctx context.Context, ids []uint64) ([][]byte, error) {
	out, err := s.Store.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i, id := range ids {
		if id == s.hidden {
			out[i] = nil
		}
	}
	return out, nil
}

func TestMissingPayloadIsSkipped(t *testing.T) {
	s := newTestStore(t)
	q := channel.NewMemory()
	post(t, s, map[string]any{"text": "first"})
	hidden := post(t, s, map[string]any{"text": "second"})
	post(t, s, map[string]any{"text": "third"})

	w := New(tombstoneStore{Store: s, hidden: hidden}, q, testTunables(), nil)
	require.NoError(t, w.Run(context.Background(), -3, "firehose", "", "sub:ts"))

	items := drain(t, q, "sub:ts", 2)
	require.Equal(t, "first", gjson.GetBytes(items[0], "text").String())
	require.Equal(t, "third", gjson.GetBytes(items[1], "text").String())
}
