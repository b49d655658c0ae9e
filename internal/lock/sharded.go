package lock

import (
	"context"
	"hash/fnv"
	"sync"
)

// Sharded is an in-process Locker. Keys hash onto a fixed set of shards,
// each a one-slot semaphore, so unrelated keys can occasionally contend
// but equal keys always do.
type Sharded struct {
	shards []chan struct{}
}

func NewSharded(n int) *Sharded {
	if n < 1 {
		n = 1
	}
	s := &Sharded{shards: make([]chan struct{}, n)}
	for i := range s.shards {
		s.shards[i] = make(chan struct{}, 1)
	}
	return s
}

func (s *Sharded) shard(key string) chan struct{} {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

func (s *Sharded) Lock(ctx context.Context, key string) (Unlock, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	ch := s.shard(key)
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() { once.Do(func() { <-ch }) }, nil
}
