package runtime

import (
	"context"
	"errors"
	"time"

	"github.com/rzbill/hose/internal/channel"
	cfgpkg "github.com/rzbill/hose/internal/config"
	"github.com/rzbill/hose/internal/logstore"
	pebblestore "github.com/rzbill/hose/internal/storage/pebble"
)

// connectTimeout bounds the initial Redis dial during Open.
const connectTimeout = 10 * time.Second

// Options for building the Runtime.
type Options struct {
	// DataDir holds the Pebble database; ignored for the redis backend.
	DataDir string
	Fsync   pebblestore.FsyncMode
	Config  cfgpkg.Config
}

// Runtime wires storage, channels, and config for a single-node instance.
type Runtime struct {
	db     *pebblestore.DB
	store  logstore.Store
	queue  channel.Queue
	config cfgpkg.Config
}

// Open initializes the backend named by the config and returns a Runtime.
// The pebble backend pairs the embedded store with in-process channels; the
// redis backend serves both the log and the channels from one Redis server.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	rt := &Runtime{config: opts.Config}
	switch opts.Config.Backend {
	case cfgpkg.BackendRedis:
		store, err := logstore.ConnectRedis(ctx, opts.Config.RedisURL, connectTimeout)
		if err != nil {
			return nil, err
		}
		rt.store = store
		rt.queue = channel.NewRedis(store.Client())
	default:
		db, err := pebblestore.Open(pebblestore.Options{DataDir: opts.DataDir, Fsync: opts.Fsync})
		if err != nil {
			return nil, err
		}
		store, err := logstore.OpenPebble(db)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		rt.db = db
		rt.store = store
		rt.queue = channel.NewMemory()
	}
	return rt, nil
}

// Close closes underlying resources.
func (r *Runtime) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	if s, ok := r.store.(*logstore.RedisStore); ok {
		return s.Close()
	}
	return nil
}

// CheckHealth performs a simple backend round trip.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.store == nil {
		return errors.New("runtime: not open")
	}
	_, err := r.store.CurrentMax(ctx)
	return err
}

// Store returns the message log backend.
func (r *Runtime) Store() logstore.Store { return r.store }

// Queue returns the outgoing channel backend.
func (r *Runtime) Queue() channel.Queue { return r.queue }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }
