package model

import "fmt"

// Vertex labels.
const (
	LabelClaim    = "claim"
	LabelClaimant = "claimant"
	LabelAgent    = "agent"
)

// Natural key fields.
const (
	KeyClaimID      = "claim_id"
	KeyClaimantID   = "claimant_id"
	KeyClaimantName = "claimant_name"
	KeyAgentID      = "agent_id"
)

// VertexRef points at a vertex in the store. ID is whatever the backend uses
// (int64 for bolt, string or int64 for gremlin) and must be passed back as-is.
type VertexRef struct {
	ID    any    `json:"id"`
	Label string `json:"label"`
	Key   string `json:"key"`
}

func (r VertexRef) String() string {
	return fmt.Sprintf("%s(%s)#%v", r.Label, r.Key, r.ID)
}

// IDString renders the store id for use in lock keys and log lines.
func (r VertexRef) IDString() string {
	return fmt.Sprint(r.ID)
}

// EntitySpec binds a vertex label to its natural key and its input directory.
type EntitySpec struct {
	Label      string `json:"label"`
	NaturalKey string `json:"natural_key"`
	Dir        string `json:"dir"`
}

type UpsertResult struct {
	Ref     VertexRef
	Created bool
}

// GraphCounts is a whole-store tally, used for run summaries and health checks.
type GraphCounts struct {
	Vertices int64 `json:"vertices"`
	Edges    int64 `json:"edges"`
}
