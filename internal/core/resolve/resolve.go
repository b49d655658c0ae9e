// Package resolve turns a foreign key value into the vertex it names.
package resolve

import (
	"context"

	"github.com/agenthands/claimgraph/internal/core/common"
	"github.com/agenthands/claimgraph/internal/core/model"
	"github.com/agenthands/claimgraph/internal/driver"
	"github.com/agenthands/claimgraph/internal/logger"
)

type Resolver struct {
	Driver driver.GraphDriver
	log    *logger.Logger
}

func NewResolver(d driver.GraphDriver, log *logger.Logger) *Resolver {
	return &Resolver{Driver: d, log: logger.OrNop(log).With("component", "resolve")}
}

// Resolve looks up the label vertex whose key field equals raw. A nil raw
// value means "no relationship" and yields (nil, nil). When several
// vertices match, the first in store order wins.
func (r *Resolver) Resolve(ctx context.Context, label, key string, raw any) (*model.VertexRef, error) {
	value, ok := common.Canonical(raw)
	if !ok {
		return nil, nil
	}
	refs, err := r.Driver.FindVertices(ctx, label, key, value)
	if err != nil {
		return nil, err
	}
	switch len(refs) {
	case 0:
		return nil, &model.ReferenceNotFoundError{Label: label, Field: key, Value: value}
	case 1:
	default:
		r.log.Debug("ambiguous reference, using the first match", "label", label, "key", key, "value", value, "matches", len(refs))
	}
	return &refs[0], nil
}
