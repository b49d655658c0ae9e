package model

// LinkOutcome reports what LinkIfAbsent did.
type LinkOutcome int

const (
	OutcomeCreated LinkOutcome = iota
	OutcomeAlreadyExisted
)

func (o LinkOutcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeAlreadyExisted:
		return "already-existed"
	default:
		return "unknown"
	}
}

// VertexReport tallies the vertex phase for one label.
type VertexReport struct {
	Label   string `json:"label"`
	Records int    `json:"records"`
	Created int    `json:"created"`
	Updated int    `json:"updated"`
	Invalid int    `json:"invalid"`
	Failed  int    `json:"failed"`
	// BadFiles counts input files that could not be parsed at all.
	BadFiles int `json:"bad_files"`
	// Unprocessed holds "file#index" for records never attempted.
	Unprocessed []string `json:"unprocessed,omitempty"`
}

// RuleReport tallies one linking rule.
type RuleReport struct {
	EdgeLabel   string `json:"edge_label"`
	Rows        int    `json:"rows"`
	Created     int    `json:"created"`
	Existed     int    `json:"existed"`
	NoReference int    `json:"no_reference"`
	Missing     int    `json:"missing"`
	Failed      int    `json:"failed"`
	// Unprocessed holds the source keys of rows never attempted.
	Unprocessed []string `json:"unprocessed,omitempty"`
}

type Summary struct {
	Vertices []VertexReport `json:"vertices"`
	Rules    []RuleReport   `json:"rules"`
	Counts   GraphCounts    `json:"counts"`
}

// VerticesProcessed is the number of records that reached the store.
func (s Summary) VerticesProcessed() int {
	n := 0
	for _, v := range s.Vertices {
		n += v.Created + v.Updated
	}
	return n
}

// EdgesProcessed counts created plus already-existing edges.
func (s Summary) EdgesProcessed() int {
	n := 0
	for _, r := range s.Rules {
		n += r.Created + r.Existed
	}
	return n
}
