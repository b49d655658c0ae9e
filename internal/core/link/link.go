// Package link creates edges between resolved vertices at most once.
package link

import (
	"context"
	"fmt"

	"github.com/agenthands/claimgraph/internal/core/model"
	"github.com/agenthands/claimgraph/internal/driver"
	"github.com/agenthands/claimgraph/internal/lock"
)

type Linker struct {
	Driver driver.GraphDriver
	Locks  lock.Locker
}

func NewLinker(d driver.GraphDriver, locks lock.Locker) *Linker {
	if locks == nil {
		locks = lock.NewSharded(64)
	}
	return &Linker{Driver: d, Locks: locks}
}

// LinkIfAbsent creates from-[label]->to unless it already exists.
func (l *Linker) LinkIfAbsent(ctx context.Context, from model.VertexRef, label string, to model.VertexRef) (model.LinkOutcome, error) {
	key := lock.EdgeKey(from.IDString(), label, to.IDString())
	unlock, err := l.Locks.Lock(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("lock %s: %w", key, err)
	}
	defer unlock()

	exists, err := l.Driver.FindEdge(ctx, from, label, to)
	if err != nil {
		return 0, err
	}
	if exists {
		return model.OutcomeAlreadyExisted, nil
	}
	if err := l.Driver.CreateEdge(ctx, from, label, to); err != nil {
		return 0, err
	}
	return model.OutcomeCreated, nil
}
