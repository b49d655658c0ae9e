package model

import "encoding/json"

// Sentinels substituted for absent relationships in the flattened view.
const (
	SentinelNotFound       = "Not Found"
	SentinelClaimNotClosed = "Claim Not Closed"
)

// VertexView is a vertex rendered for read-path consumers.
type VertexView struct {
	ID         any            `json:"id"`
	Label      string         `json:"label"`
	Properties map[string]any `json:"properties"`
}

// Slot is either a related vertex or a sentinel string.
type Slot struct {
	Vertex   *VertexView
	Sentinel string
}

func (s Slot) Found() bool { return s.Vertex != nil }

func (s Slot) MarshalJSON() ([]byte, error) {
	if s.Vertex != nil {
		return json.Marshal(s.Vertex)
	}
	return json.Marshal(s.Sentinel)
}

func (s *Slot) UnmarshalJSON(data []byte) error {
	var sentinel string
	if err := json.Unmarshal(data, &sentinel); err == nil {
		*s = Slot{Sentinel: sentinel}
		return nil
	}
	var v VertexView
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = Slot{Vertex: &v}
	return nil
}

// SlotOf wraps v, falling back to sentinel when v is nil.
func SlotOf(v *VertexView, sentinel string) Slot {
	if v == nil {
		return Slot{Sentinel: sentinel}
	}
	return Slot{Vertex: v}
}

// ClaimView is the denormalized claim record.
type ClaimView struct {
	Claim         VertexView `json:"claim"`
	Claimant      Slot       `json:"claimant"`
	AssignedAgent Slot       `json:"assigned_agent"`
	CloseAgent    Slot       `json:"close_agent"`
}
