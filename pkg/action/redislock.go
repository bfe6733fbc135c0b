package action

import (
	"context"
	"errors"
	"sync"
	"time"

	xe "github.com/opst/knitfleet/pkg/errors"
	"github.com/opst/knitfleet/pkg/utils/retry"
	kstrings "github.com/opst/knitfleet/pkg/utils/strings"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisLocker is a Locker shared among processes via Redis.
//
// A lock is a key set with NX and PX. While it is held, its expiry is extended
// every TTL/3. It expires after TTL once the holder has gone.
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	poll   time.Duration
	logger *zap.Logger
}

type RedisLockerOption func(*RedisLocker)

func WithKeyPrefix(prefix string) RedisLockerOption {
	return func(rl *RedisLocker) { rl.prefix = prefix }
}

// WithTTL sets the expiry of lock keys. Non-positive values are ignored.
func WithTTL(ttl time.Duration) RedisLockerOption {
	return func(rl *RedisLocker) {
		if 0 < ttl {
			rl.ttl = ttl
		}
	}
}

// WithPollInterval sets the interval of retrying to acquire a lock held by others.
func WithPollInterval(d time.Duration) RedisLockerOption {
	return func(rl *RedisLocker) { rl.poll = d }
}

func WithLockerLogger(l *zap.Logger) RedisLockerOption {
	return func(rl *RedisLocker) { rl.logger = l }
}

func NewRedisLocker(client redis.UniversalClient, options ...RedisLockerOption) *RedisLocker {
	rl := &RedisLocker{
		client: client,
		prefix: "knitfleet:lock:",
		ttl:    30 * time.Second,
		poll:   50 * time.Millisecond,
		logger: zap.NewNop(),
	}
	for _, o := range options {
		o(rl)
	}
	return rl
}

var _ Locker = &RedisLocker{}

// deletes the key only when it is still ours.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// extends the key only when it is still ours.
var renewScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

func (rl *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	token, err := kstrings.RandomHex(32)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	rkey := rl.prefix + key

	_, err = retry.Blocking(ctx, retry.StaticBackoff(rl.poll), func() (struct{}, error) {
		ok, err := rl.client.SetNX(ctx, rkey, token, rl.ttl).Result()
		if err != nil {
			return struct{}{}, xe.Wrap(err)
		}
		if !ok {
			return struct{}{}, retry.ErrRetry
		}
		return struct{}{}, nil
	})
	if err != nil {
		if cerr := ctx.Err(); cerr != nil && errors.Is(err, cerr) {
			return nil, cerr
		}
		return nil, err
	}

	bg := context.WithoutCancel(ctx)
	stop := make(chan struct{})
	stopped := make(chan struct{})
	go rl.keep(bg, rkey, token, stop, stopped)

	once := sync.Once{}
	return func() {
		once.Do(func() {
			close(stop)
			<-stopped

			rctx, cancel := context.WithTimeout(bg, 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(rctx, rl.client, []string{rkey}, token).Err(); err != nil {
				rl.logger.Warn("failed to release lock", zap.String("key", rkey), zap.Error(err))
			}
		})
	}, nil
}

// keep extends the expiry of rkey until stop is closed or the key is taken by others.
func (rl *RedisLocker) keep(ctx context.Context, rkey string, token string, stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	interval := rl.ttl / 3
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		rctx, cancel := context.WithTimeout(ctx, interval)
		n, err := renewScript.Run(rctx, rl.client, []string{rkey}, token, rl.ttl.Milliseconds()).Int64()
		cancel()
		if err != nil {
			rl.logger.Warn("failed to extend lock", zap.String("key", rkey), zap.Error(err))
			continue
		}
		if n == 0 {
			rl.logger.Warn("lock is lost", zap.String("key", rkey))
			return
		}
	}
}
