package driver

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/agenthands/claimgraph/internal/core/common"
	"github.com/agenthands/claimgraph/internal/core/model"
)

// ErrUnsupported is returned for raw queries against the memory backend.
var ErrUnsupported = errors.New("operation not supported by this backend")

type memVertex struct {
	id    int64
	label string
	props map[string]any
}

type memEdge struct {
	from  int64
	label string
	to    int64
}

// MemoryDriver keeps the graph in process. It is used for dry runs and as
// the store in package tests.
type MemoryDriver struct {
	mu       sync.RWMutex
	nextID   int64
	vertices map[int64]*memVertex
	order    []int64
	edges    []memEdge
	edgeSet  map[memEdge]struct{}

	// Intercept, when set, runs before every operation; a non-nil error is
	// returned in place of the operation's result.
	Intercept func(op string) error
}

func NewMemoryDriver() *MemoryDriver {
	return &MemoryDriver{
		vertices: make(map[int64]*memVertex),
		edgeSet:  make(map[memEdge]struct{}),
	}
}

func (d *MemoryDriver) intercept(op string) error {
	if d.Intercept == nil {
		return nil
	}
	if err := d.Intercept(op); err != nil {
		return wrap(op, "", err)
	}
	return nil
}

func (d *MemoryDriver) Submit(context.Context, Query) ([]Row, error) {
	return nil, &StoreError{Op: "submit", Err: ErrUnsupported}
}

func (d *MemoryDriver) FindVertices(ctx context.Context, label, key, value string) ([]model.VertexRef, error) {
	if err := d.intercept("find vertices"); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.findLocked(label, key, value), nil
}

func (d *MemoryDriver) findLocked(label, key, value string) []model.VertexRef {
	var refs []model.VertexRef
	for _, id := range d.order {
		v := d.vertices[id]
		if v.label != label {
			continue
		}
		if s, ok := common.Canonical(v.props[key]); ok && s == value {
			refs = append(refs, model.VertexRef{ID: id, Label: label, Key: value})
		}
	}
	return refs
}

func (d *MemoryDriver) CreateVertex(ctx context.Context, label, key, value string, _ map[string]any) (model.VertexRef, error) {
	if err := d.intercept("create vertex"); err != nil {
		return model.VertexRef{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if refs := d.findLocked(label, key, value); len(refs) > 0 {
		return refs[0], nil
	}
	d.nextID++
	id := d.nextID
	d.vertices[id] = &memVertex{id: id, label: label, props: map[string]any{key: value}}
	d.order = append(d.order, id)
	return model.VertexRef{ID: id, Label: label, Key: value}, nil
}

func (d *MemoryDriver) SetProperties(ctx context.Context, ref model.VertexRef, props map[string]any) error {
	if err := d.intercept("set properties"); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	v, err := d.vertexLocked("set properties", ref)
	if err != nil {
		return err
	}
	maps.Copy(v.props, props)
	return nil
}

func (d *MemoryDriver) vertexLocked(op string, ref model.VertexRef) (*memVertex, error) {
	id, ok := memID(ref.ID)
	if ok {
		if v, found := d.vertices[id]; found {
			return v, nil
		}
	}
	return nil, &StoreError{Op: op, Err: fmt.Errorf("vertex %s not found", ref)}
}

func memID(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	case float64:
		return int64(t), true
	default:
		return 0, false
	}
}

func (d *MemoryDriver) FindEdge(ctx context.Context, from model.VertexRef, label string, to model.VertexRef) (bool, error) {
	if err := d.intercept("find edge"); err != nil {
		return false, err
	}
	f, _ := memID(from.ID)
	t, _ := memID(to.ID)
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.edgeSet[memEdge{from: f, label: label, to: t}]
	return ok, nil
}

func (d *MemoryDriver) CreateEdge(ctx context.Context, from model.VertexRef, label string, to model.VertexRef) error {
	if err := d.intercept("create edge"); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	a, err := d.vertexLocked("create edge", from)
	if err != nil {
		return err
	}
	b, err := d.vertexLocked("create edge", to)
	if err != nil {
		return err
	}
	e := memEdge{from: a.id, label: label, to: b.id}
	if _, ok := d.edgeSet[e]; ok {
		return nil
	}
	d.edgeSet[e] = struct{}{}
	d.edges = append(d.edges, e)
	return nil
}

func (d *MemoryDriver) ProjectVertices(ctx context.Context, label, keyField, fkField string) ([]model.SourceRow, error) {
	if err := d.intercept("project vertices"); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	var rows []model.SourceRow
	for _, id := range d.order {
		v := d.vertices[id]
		if v.label != label {
			continue
		}
		key, _ := common.Canonical(v.props[keyField])
		rows = append(rows, model.SourceRow{
			Ref:     model.VertexRef{ID: id, Label: label, Key: key},
			Foreign: v.props[fkField],
		})
	}
	return rows, nil
}

func (d *MemoryDriver) FlattenClaim(ctx context.Context, claimKey string) (*model.ClaimView, error) {
	if err := d.intercept("flatten claim"); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	refs := d.findLocked(model.LabelClaim, model.KeyClaimID, claimKey)
	if len(refs) == 0 {
		return nil, model.ErrClaimNotFound
	}
	claimID := refs[0].ID.(int64)
	view := &model.ClaimView{
		Claim:         *d.viewLocked(claimID),
		Claimant:      model.SlotOf(nil, model.SentinelNotFound),
		AssignedAgent: model.SlotOf(nil, model.SentinelNotFound),
		CloseAgent:    model.SlotOf(nil, model.SentinelClaimNotClosed),
	}
	for _, e := range d.edges {
		switch {
		case e.label == model.EdgeFiled && e.to == claimID && !view.Claimant.Found():
			view.Claimant = model.SlotOf(d.viewLocked(e.from), model.SentinelNotFound)
		case e.label == model.EdgeAssignedTo && e.from == claimID && !view.AssignedAgent.Found():
			view.AssignedAgent = model.SlotOf(d.viewLocked(e.to), model.SentinelNotFound)
		case e.label == model.EdgeClosedBy && e.from == claimID && !view.CloseAgent.Found():
			view.CloseAgent = model.SlotOf(d.viewLocked(e.to), model.SentinelClaimNotClosed)
		}
	}
	return view, nil
}

func (d *MemoryDriver) viewLocked(id int64) *model.VertexView {
	v := d.vertices[id]
	return &model.VertexView{ID: v.id, Label: v.label, Properties: maps.Clone(v.props)}
}

// Properties returns a copy of the vertex's properties, or nil if absent.
func (d *MemoryDriver) Properties(ref model.VertexRef) map[string]any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, err := d.vertexLocked("properties", ref)
	if err != nil {
		return nil
	}
	return maps.Clone(v.props)
}

func (d *MemoryDriver) Counts(ctx context.Context) (model.GraphCounts, error) {
	if err := d.intercept("counts"); err != nil {
		return model.GraphCounts{}, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return model.GraphCounts{Vertices: int64(len(d.vertices)), Edges: int64(len(d.edges))}, nil
}

func (d *MemoryDriver) BuildIndices(context.Context, []model.EntitySpec) error {
	return d.intercept("build indices")
}

func (d *MemoryDriver) Close(context.Context) error { return nil }
