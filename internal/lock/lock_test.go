package lock

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "v|claim|C1", VertexKey("claim", "C1"))
	assert.Equal(t, "e|1|filed|2", EdgeKey("1", "filed", "2"))
}

// exercise runs n goroutines through the same key and reports the highest
// number of holders observed at once.
func exercise(t *testing.T, l Locker, key string, n int) int32 {
	t.Helper()
	var inside, peak atomic.Int32
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), key)
			if !assert.NoError(t, err) {
				return
			}
			cur := inside.Add(1)
			for {
				p := peak.Load()
				if cur <= p || peak.CompareAndSwap(p, cur) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()
	return peak.Load()
}

func TestShardedExclusive(t *testing.T) {
	assert.Equal(t, int32(1), exercise(t, NewSharded(8), VertexKey("claim", "C1"), 16))
}

func TestShardedContextCancel(t *testing.T) {
	l := NewSharded(1)
	unlock, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "b")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock()
	unlock2, err := l.Lock(context.Background(), "b")
	require.NoError(t, err)
	unlock2()

	_, err = l.Lock(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func TestRedisExclusive(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	r, err := NewRedis(context.Background(), RedisOptions{Addr: addr, Prefix: "claimgraph:test:", TTL: time.Second}, nil)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, int32(1), exercise(t, r, EdgeKey("1", "filed", time.Now().String()), 8))
}
