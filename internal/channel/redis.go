package channel

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// goneTTL keeps the deletion marker around long enough for any straggling
// worker to observe it on its next push.
const goneTTL = time.Hour

func goneKey(name string) string { return name + ":gone" }

// pushUnlessGone appends items atomically unless the deletion marker exists.
// Returns -1 for a gone channel, otherwise the resulting list length.
var pushUnlessGone = redis.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 1 then return -1 end
return redis.call('RPUSH', KEYS[1], unpack(ARGV))
`)

// Redis serves outgoing channels from Redis lists, matching the original
// deployment shape where the transport and the workers live in different
// processes.
type Redis struct {
	rdb redis.UniversalClient
}

// NewRedis wraps an existing client.
func NewRedis(rdb redis.UniversalClient) *Redis { return &Redis{rdb: rdb} }

func (r *Redis) Push(ctx context.Context, name string, items ...[]byte) (int64, error) {
	if len(items) == 0 {
		return r.Len(ctx, name)
	}
	args := make([]interface{}, len(items))
	for i, it := range items {
		args[i] = it
	}
	n, err := pushUnlessGone.Run(ctx, r.rdb, []string{name, goneKey(name)}, args...).Int64()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, ErrGone
	}
	return n, nil
}

func (r *Redis) Len(ctx context.Context, name string) (int64, error) {
	return r.rdb.LLen(ctx, name).Result()
}

func (r *Redis) BPop(ctx context.Context, name string, timeout time.Duration) ([]byte, bool, error) {
	vals, err := r.rdb.BLPop(ctx, timeout, name).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	// BLPOP returns [key, value]
	if len(vals) != 2 {
		return nil, false, nil
	}
	return []byte(vals[1]), true, nil
}

func (r *Redis) Delete(ctx context.Context, name string) error {
	_, err := r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, goneKey(name), 1, goneTTL)
		p.Del(ctx, name)
		return nil
	})
	return err
}
