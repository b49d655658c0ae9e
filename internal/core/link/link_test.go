package link

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/claimgraph/internal/core/model"
	"github.com/agenthands/claimgraph/internal/driver"
)

func TestLinkIfAbsent(t *testing.T) {
	ctx := context.Background()
	mem := driver.NewMemoryDriver()
	claim, _ := mem.CreateVertex(ctx, model.LabelClaim, model.KeyClaimID, "C1", nil)
	agent, _ := mem.CreateVertex(ctx, model.LabelAgent, model.KeyAgentID, "A1", nil)

	l := NewLinker(mem, nil)

	out, err := l.LinkIfAbsent(ctx, claim, model.EdgeAssignedTo, agent)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeCreated, out)

	out, err = l.LinkIfAbsent(ctx, claim, model.EdgeAssignedTo, agent)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeAlreadyExisted, out)

	out, err = l.LinkIfAbsent(ctx, claim, model.EdgeClosedBy, agent)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeCreated, out)

	counts, _ := mem.Counts(ctx)
	assert.Equal(t, int64(2), counts.Edges)
}

func TestLinkIfAbsentStoreError(t *testing.T) {
	mem := driver.NewMemoryDriver()
	boom := errors.New("boom")
	mem.Intercept = func(op string) error {
		if op == "create edge" {
			return boom
		}
		return nil
	}
	_, err := NewLinker(mem, nil).LinkIfAbsent(context.Background(), model.VertexRef{ID: int64(1)}, model.EdgeFiled, model.VertexRef{ID: int64(2)})
	assert.ErrorIs(t, err, boom)
	var se *driver.StoreError
	assert.ErrorAs(t, err, &se)
}
