package lock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

// Redis is a lease: the key expires after ttl even if the holder dies. A live
// holder renews it every ttl/3, so a run longer than ttl keeps the lock.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	log    *slog.Logger
}

// NewRedis parses a redis:// URL and checks connectivity.
func NewRedis(ctx context.Context, redisURL string, ttl time.Duration, log *slog.Logger) (*Redis, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Redis{client: client, ttl: ttl, log: log}, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) TryLock(ctx context.Context, name string) (func(), error) {
	key := "listingd:lock:" + name
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire redis lock %s: %w", name, err)
	}
	if !ok {
		return nil, ErrNotAcquired
	}
	stopRenew := renew(r.ttl/3, func(ctx context.Context) (bool, error) {
		n, err := extendScript.Run(ctx, r.client, []string{key}, token, r.ttl.Milliseconds()).Int64()
		return n == 1, err
	}, func(err error) {
		if r.log != nil {
			r.log.Warn("renew redis lock", "lock", name, "err", err)
		}
	})
	return func() {
		stopRenew()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, r.client, []string{key}, token).Err(); err != nil && r.log != nil {
			r.log.Error("release redis lock", "lock", name, "err", err)
		}
	}, nil
}

// renew calls extend every interval until the returned stop is called or
// extend reports the lease is gone. Stop waits for the loop to exit.
func renew(interval time.Duration, extend func(context.Context) (bool, error), onErr func(error)) (stop func()) {
	if interval <= 0 {
		interval = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				callCtx, callCancel := context.WithTimeout(ctx, 5*time.Second)
				held, err := extend(callCtx)
				callCancel()
				if ctx.Err() != nil {
					return
				}
				if err != nil {
					onErr(err)
					continue
				}
				if !held {
					onErr(ErrLeaseLost)
					return
				}
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}
