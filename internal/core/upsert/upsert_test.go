package upsert

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/claimgraph/internal/core/model"
	"github.com/agenthands/claimgraph/internal/driver"
)

func TestUpsertCreatesThenUpdates(t *testing.T) {
	ctx := context.Background()
	mem := driver.NewMemoryDriver()
	u := NewUpserter(mem, nil, nil)

	first, err := u.Upsert(ctx, model.LabelClaim, model.KeyClaimID, model.EntityRecord{
		"claim_id": "C1", "status": "open", "amount": json.Number("100"),
	})
	require.NoError(t, err)
	assert.True(t, first.Created)

	second, err := u.Upsert(ctx, model.LabelClaim, model.KeyClaimID, model.EntityRecord{
		"claim_id": "C1", "status": "closed", "note": nil,
	})
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Ref.ID, second.Ref.ID)

	assert.Equal(t, map[string]any{"claim_id": "C1", "status": "closed", "amount": int64(100)}, mem.Properties(first.Ref))
}

func TestUpsertCanonicalKeys(t *testing.T) {
	ctx := context.Background()
	mem := driver.NewMemoryDriver()
	u := NewUpserter(mem, nil, nil)

	a, err := u.Upsert(ctx, model.LabelAgent, model.KeyAgentID, model.EntityRecord{"agent_id": json.Number("7")})
	require.NoError(t, err)
	b, err := u.Upsert(ctx, model.LabelAgent, model.KeyAgentID, model.EntityRecord{"agent_id": "7", "supervisor_id": 12})
	require.NoError(t, err)

	assert.Equal(t, a.Ref.ID, b.Ref.ID)
	assert.Equal(t, "7", b.Ref.Key)
	props := mem.Properties(b.Ref)
	assert.Equal(t, "12", props["supervisor_id"])
}

func TestUpsertCompositeProperties(t *testing.T) {
	mem := driver.NewMemoryDriver()
	res, err := NewUpserter(mem, nil, nil).Upsert(context.Background(), model.LabelClaim, model.KeyClaimID, model.EntityRecord{
		"claim_id": "C1",
		"address":  map[string]any{"zip": "1000", "city": "Oslo"},
		"items":    []any{"a", json.Number("2")},
	})
	require.NoError(t, err)
	props := mem.Properties(res.Ref)
	assert.Equal(t, `{"city":"Oslo","zip":"1000"}`, props["address"])
	assert.Equal(t, `["a",2]`, props["items"])
}

func TestUpsertMissingKey(t *testing.T) {
	mem := driver.NewMemoryDriver()
	u := NewUpserter(mem, nil, nil)

	for _, rec := range []model.EntityRecord{{"status": "open"}, {"claim_id": nil}, {"claim_id": ""}} {
		_, err := u.Upsert(context.Background(), model.LabelClaim, model.KeyClaimID, rec)
		var verr *model.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, model.KeyClaimID, verr.Field)
	}
	counts, _ := mem.Counts(context.Background())
	assert.Zero(t, counts.Vertices)
}

func TestUpsertConcurrentSameKey(t *testing.T) {
	mem := driver.NewMemoryDriver()
	u := NewUpserter(mem, nil, nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := u.Upsert(context.Background(), model.LabelClaimant, model.KeyClaimantID, model.EntityRecord{"claimant_id": "P1"})
			if assert.NoError(t, err) && res.Created {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	refs, err := mem.FindVertices(context.Background(), model.LabelClaimant, model.KeyClaimantID, "P1")
	require.NoError(t, err)
	assert.Len(t, refs, 1)
}
