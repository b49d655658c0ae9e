// Package upsert writes one entity record as a vertex keyed by its natural
// key, creating it on first sight and overwriting its properties after.
package upsert

import (
	"context"
	"fmt"

	"github.com/agenthands/claimgraph/internal/core/common"
	"github.com/agenthands/claimgraph/internal/core/model"
	"github.com/agenthands/claimgraph/internal/driver"
	"github.com/agenthands/claimgraph/internal/lock"
	"github.com/agenthands/claimgraph/internal/logger"
)

type Upserter struct {
	Driver driver.GraphDriver
	Locks  lock.Locker
	log    *logger.Logger
}

func NewUpserter(d driver.GraphDriver, locks lock.Locker, log *logger.Logger) *Upserter {
	if locks == nil {
		locks = lock.NewSharded(64)
	}
	return &Upserter{Driver: d, Locks: locks, log: logger.OrNop(log).With("component", "upsert")}
}

// Upsert finds or creates the (label, key) vertex and then writes every
// non-null property of record onto it. Created reports whether this call
// made the vertex.
func (u *Upserter) Upsert(ctx context.Context, label, keyField string, record model.EntityRecord) (model.UpsertResult, error) {
	key, ok := common.Canonical(record[keyField])
	if !ok || key == "" {
		return model.UpsertResult{}, &model.ValidationError{Label: label, Field: keyField}
	}
	props := common.NormalizeProperties(record, keyField)

	unlock, err := u.Locks.Lock(ctx, lock.VertexKey(label, key))
	if err != nil {
		return model.UpsertResult{}, fmt.Errorf("lock %s %s: %w", label, key, err)
	}
	defer unlock()

	refs, err := u.Driver.FindVertices(ctx, label, keyField, key)
	if err != nil {
		return model.UpsertResult{}, err
	}

	res := model.UpsertResult{}
	if len(refs) > 0 {
		if len(refs) > 1 {
			u.log.Debug("natural key matches several vertices, using the first", "label", label, "key", key, "matches", len(refs))
		}
		res.Ref = refs[0]
	} else {
		ref, err := u.Driver.CreateVertex(ctx, label, keyField, key, props)
		if err != nil {
			return model.UpsertResult{}, err
		}
		res.Ref, res.Created = ref, true
	}

	if err := u.Driver.SetProperties(ctx, res.Ref, props); err != nil {
		return res, err
	}
	return res, nil
}
