package model

// Edge labels.
const (
	EdgeFiled      = "filed"
	EdgeAssignedTo = "assigned_to"
	EdgeClosedBy   = "closed_by"
)

// Foreign key fields carried on claim records.
const (
	FieldClaimantID      = "claimant_id"
	FieldAssignedAgentID = "assigned_agent_id"
	FieldCloseAgentID    = "close_agent_id"
)

// Rule links SourceLabel vertices to TargetLabel vertices by matching
// SourceLabel.ForeignKey against TargetLabel.TargetKey. The edge runs
// source->target unless Inbound is set, in which case it runs target->source.
type Rule struct {
	SourceLabel string `json:"source_label"`
	ForeignKey  string `json:"foreign_key"`
	TargetLabel string `json:"target_label"`
	TargetKey   string `json:"target_key"`
	EdgeLabel   string `json:"edge_label"`
	Inbound     bool   `json:"inbound"`
}

// Endpoints orders a resolved (source, target) pair into edge direction.
func (r Rule) Endpoints(source, target VertexRef) (from, to VertexRef) {
	if r.Inbound {
		return target, source
	}
	return source, target
}

// DefaultRules are the three claim relationships.
func DefaultRules() []Rule {
	return []Rule{
		{
			SourceLabel: LabelClaim,
			ForeignKey:  FieldClaimantID,
			TargetLabel: LabelClaimant,
			TargetKey:   KeyClaimantID,
			EdgeLabel:   EdgeFiled,
			Inbound:     true,
		},
		{
			SourceLabel: LabelClaim,
			ForeignKey:  FieldAssignedAgentID,
			TargetLabel: LabelAgent,
			TargetKey:   KeyAgentID,
			EdgeLabel:   EdgeAssignedTo,
		},
		{
			SourceLabel: LabelClaim,
			ForeignKey:  FieldCloseAgentID,
			TargetLabel: LabelAgent,
			TargetKey:   KeyAgentID,
			EdgeLabel:   EdgeClosedBy,
		},
	}
}

// SourceRow is one enumerated source vertex with its own key and the raw
// foreign key value (nil when the property is absent).
type SourceRow struct {
	Ref     VertexRef
	Foreign any
}
