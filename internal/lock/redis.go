package lock

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/agenthands/claimgraph/internal/logger"
)

// ErrLost is logged when a held lease could not be renewed.
var ErrLost = errors.New("redis lease lost")

var (
	releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	renewScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

type RedisOptions struct {
	Addr   string
	Prefix string
	TTL    time.Duration

	WaitInterval time.Duration
	WaitJitter   time.Duration
}

// Redis is a cross-process Locker built on SET NX leases. A lease is
// renewed while held and released only by the token that took it.
type Redis struct {
	rdb  *goredis.Client
	opts RedisOptions
	log  *logger.Logger
}

func NewRedis(ctx context.Context, opts RedisOptions, log *logger.Logger) (*Redis, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Second
	}
	if opts.WaitInterval <= 0 {
		opts.WaitInterval = 20 * time.Millisecond
	}
	if opts.WaitJitter <= 0 {
		opts.WaitJitter = 20 * time.Millisecond
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        opts.Addr,
		DialTimeout: 5 * time.Second,
	})

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &Redis{rdb: rdb, opts: opts, log: logger.OrNop(log).With("component", "redis-lock")}, nil
}

func (r *Redis) Close() error { return r.rdb.Close() }

func (r *Redis) Lock(ctx context.Context, key string) (Unlock, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	tok, err := gonanoid.New()
	if err != nil {
		return nil, err
	}
	name := r.opts.Prefix + key

	for {
		ok, err := r.rdb.SetNX(ctx, name, tok, r.opts.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", name, err)
		}
		if ok {
			break
		}
		if err := sleepWithJitter(ctx, r.opts.WaitInterval, r.opts.WaitJitter); err != nil {
			return nil, err
		}
	}

	stop := make(chan struct{})
	go r.renewLoop(name, tok, stop)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(rctx, r.rdb, []string{name}, tok).Err(); err != nil {
				r.log.Warn("failed to release lease", "key", name, "error", err)
			}
		})
	}, nil
}

func (r *Redis) renewLoop(name, tok string, stop <-chan struct{}) {
	t := time.NewTicker(max(r.opts.TTL/2, 10*time.Millisecond))
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.opts.TTL/2)
			n, err := renewScript.Run(ctx, r.rdb, []string{name}, tok, r.opts.TTL.Milliseconds()).Int64()
			cancel()
			if err == nil && n == 0 {
				err = ErrLost
			}
			if err != nil {
				r.log.Warn("failed to renew lease", "key", name, "error", err)
				return
			}
		}
	}
}

func sleepWithJitter(ctx context.Context, base, jitter time.Duration) error {
	d := base
	if jitter > 0 {
		d += time.Duration(rand.Int64N(int64(jitter) + 1))
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
