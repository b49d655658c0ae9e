package driver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/claimgraph/internal/core/model"
)

func TestMemoryVertices(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDriver()

	a, err := d.CreateVertex(ctx, "claim", "claim_id", "C1", nil)
	require.NoError(t, err)
	again, err := d.CreateVertex(ctx, "claim", "claim_id", "C1", nil)
	require.NoError(t, err)
	assert.Equal(t, a.ID, again.ID, "create is conditional")

	_, err = d.CreateVertex(ctx, "agent", "agent_id", "C1", nil)
	require.NoError(t, err)

	refs, err := d.FindVertices(ctx, "claim", "claim_id", "C1")
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, a.ID, refs[0].ID)

	require.NoError(t, d.SetProperties(ctx, a, map[string]any{"status": "open"}))
	require.NoError(t, d.SetProperties(ctx, a, map[string]any{"status": "closed"}))
	assert.Equal(t, map[string]any{"claim_id": "C1", "status": "closed"}, d.Properties(a))

	err = d.SetProperties(ctx, model.VertexRef{ID: int64(99)}, map[string]any{"x": 1})
	var se *StoreError
	require.ErrorAs(t, err, &se)
	assert.False(t, se.Temporary)

	counts, err := d.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.GraphCounts{Vertices: 2}, counts)
}

func TestMemoryEdgesAndFlatten(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDriver()

	claim, _ := d.CreateVertex(ctx, "claim", "claim_id", "C1", nil)
	claimant, _ := d.CreateVertex(ctx, "claimant", "claimant_id", "P1", nil)
	agent, _ := d.CreateVertex(ctx, "agent", "agent_id", "A1", nil)
	require.NoError(t, d.SetProperties(ctx, claim, map[string]any{"claimant_id": "P1", "assigned_agent_id": "A1"}))

	ok, err := d.FindEdge(ctx, claimant, "filed", claim)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, d.CreateEdge(ctx, claimant, "filed", claim))
	require.NoError(t, d.CreateEdge(ctx, claimant, "filed", claim))
	require.NoError(t, d.CreateEdge(ctx, claim, "assigned_to", agent))

	ok, err = d.FindEdge(ctx, claimant, "filed", claim)
	require.NoError(t, err)
	assert.True(t, ok)

	counts, _ := d.Counts(ctx)
	assert.Equal(t, int64(2), counts.Edges)

	rows, err := d.ProjectVertices(ctx, "claim", "claim_id", "close_agent_id")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "C1", rows[0].Ref.Key)
	assert.Nil(t, rows[0].Foreign)

	view, err := d.FlattenClaim(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, "P1", view.Claimant.Vertex.Properties["claimant_id"])
	assert.Equal(t, "A1", view.AssignedAgent.Vertex.Properties["agent_id"])
	assert.Equal(t, model.SentinelClaimNotClosed, view.CloseAgent.Sentinel)

	_, err = d.FlattenClaim(ctx, "C2")
	assert.ErrorIs(t, err, model.ErrClaimNotFound)

	err = d.CreateEdge(ctx, claim, "closed_by", model.VertexRef{ID: int64(42)})
	assert.Error(t, err)
}

func TestMemorySubmitUnsupported(t *testing.T) {
	_, err := NewMemoryDriver().Submit(context.Background(), Query{Text: "MATCH (n) RETURN n"})
	assert.ErrorIs(t, err, ErrUnsupported)
}
