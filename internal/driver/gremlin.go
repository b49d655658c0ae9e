package driver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/agenthands/claimgraph/internal/core/common"
	"github.com/agenthands/claimgraph/internal/core/model"
	"github.com/agenthands/claimgraph/internal/logger"
)

type GremlinOptions struct {
	URL             string
	Username        string
	Password        string
	TraversalSource string
	PartitionKey    string
	UseKeyAsID      bool
	Cardinality     string
	PoolSize        int
	ConnectTimeout  time.Duration
}

// GremlinDriver is the stateless backend: every operation is one eval
// request over a pooled websocket, values passed as bindings.
type GremlinDriver struct {
	pool *gremlinPool
	opts GremlinOptions
	log  *logger.Logger
}

func NewGremlinDriver(ctx context.Context, opts GremlinOptions, log *logger.Logger) (*GremlinDriver, error) {
	log = logger.OrNop(log)
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	pool := newGremlinPool(gremlinDialOptions{
		URL:             opts.URL,
		Username:        opts.Username,
		Password:        opts.Password,
		TraversalSource: opts.TraversalSource,
		HandshakeTime:   opts.ConnectTimeout,
	}, opts.PoolSize)
	d := &GremlinDriver{pool: pool, opts: opts, log: log.With("backend", "gremlin")}

	vctx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()
	if _, err := d.eval(vctx, "connect", "g.inject(0)", nil); err != nil {
		pool.close()
		return nil, &model.FatalSetupError{Reason: "verify gremlin connectivity to " + opts.URL, Err: err}
	}
	log.Info("connected to graph store", "backend", "gremlin", "url", opts.URL)
	return d, nil
}

func (d *GremlinDriver) Close(context.Context) error {
	d.pool.close()
	return nil
}

func (d *GremlinDriver) eval(ctx context.Context, op, script string, bindings map[string]any) ([]any, error) {
	conn, err := d.pool.get(ctx)
	if err != nil {
		return nil, &StoreError{Op: op, Query: script, Err: err, Temporary: true}
	}
	out, err := conn.eval(ctx, script, bindings)
	if err != nil {
		var status *GremlinStatusError
		if errors.As(err, &status) {
			d.pool.put(conn, false)
			return nil, &StoreError{Op: op, Query: script, Err: err, Temporary: status.Throttled()}
		}
		// Transport failures leave the socket in an unknown state.
		d.pool.put(conn, true)
		return nil, &StoreError{Op: op, Query: script, Err: err, Temporary: true}
	}
	d.pool.put(conn, false)
	return out, nil
}

func (d *GremlinDriver) Submit(ctx context.Context, q Query) ([]Row, error) {
	out, err := d.eval(ctx, "submit", q.Text, q.Params)
	if err != nil {
		return nil, err
	}
	rows := make([]Row, 0, len(out))
	for _, item := range out {
		if m, ok := item.(map[string]any); ok {
			rows = append(rows, Row(m))
			continue
		}
		rows = append(rows, Row{"value": item})
	}
	return rows, nil
}

func (d *GremlinDriver) FindVertices(ctx context.Context, label, key, value string) ([]model.VertexRef, error) {
	const script = "g.V().has(vLabel, vKey, vValue).id()"
	out, err := d.eval(ctx, "find vertices", script, map[string]any{"vLabel": label, "vKey": key, "vValue": value})
	if err != nil {
		return nil, err
	}
	refs := make([]model.VertexRef, 0, len(out))
	for _, id := range out {
		refs = append(refs, model.VertexRef{ID: id, Label: label, Key: value})
	}
	return refs, nil
}

func (d *GremlinDriver) CreateVertex(ctx context.Context, label, key, value string, props map[string]any) (model.VertexRef, error) {
	var add strings.Builder
	add.WriteString("addV(vLabel).property(vKey, vValue)")
	bindings := map[string]any{"vLabel": label, "vKey": key, "vValue": value}
	if pk := d.opts.PartitionKey; pk != "" && pk != key {
		pv, ok := common.Canonical(props[pk])
		if !ok {
			pv = label
		}
		add.WriteString(".property(vPk, vPkValue)")
		bindings["vPk"] = pk
		bindings["vPkValue"] = pv
	}
	if d.opts.UseKeyAsID {
		add.WriteString(".property(id, vValue)")
	}
	script := "g.V().has(vLabel, vKey, vValue).fold().coalesce(unfold(), " + add.String() + ").id()"

	out, err := d.eval(ctx, "create vertex", script, bindings)
	if err != nil {
		return model.VertexRef{}, err
	}
	if len(out) == 0 {
		return model.VertexRef{}, &StoreError{Op: "create vertex", Query: script, Err: fmt.Errorf("no id returned")}
	}
	return model.VertexRef{ID: out[0], Label: label, Key: value}, nil
}

func (d *GremlinDriver) SetProperties(ctx context.Context, ref model.VertexRef, props map[string]any) error {
	names := make([]string, 0, len(props))
	for name := range props {
		if name == d.opts.PartitionKey || name == "id" {
			continue
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil
	}
	sort.Strings(names)

	var script strings.Builder
	script.WriteString("g.V(vId)")
	bindings := map[string]any{"vId": ref.ID}
	for i, name := range names {
		p, v := fmt.Sprintf("p%d", i), fmt.Sprintf("v%d", i)
		if d.opts.Cardinality != "" {
			fmt.Fprintf(&script, ".property(%s, %s, %s)", d.opts.Cardinality, p, v)
		} else {
			fmt.Fprintf(&script, ".property(%s, %s)", p, v)
		}
		bindings[p] = name
		bindings[v] = props[name]
	}
	script.WriteString(".id()")

	out, err := d.eval(ctx, "set properties", script.String(), bindings)
	if err != nil {
		return err
	}
	if len(out) == 0 {
		return &StoreError{Op: "set properties", Query: script.String(), Err: fmt.Errorf("vertex %s not found", ref)}
	}
	return nil
}

func (d *GremlinDriver) FindEdge(ctx context.Context, from model.VertexRef, label string, to model.VertexRef) (bool, error) {
	const script = "g.V(vFrom).outE(eLabel).where(inV().hasId(vTo)).limit(1).count()"
	out, err := d.eval(ctx, "find edge", script, map[string]any{"vFrom": from.ID, "eLabel": label, "vTo": to.ID})
	if err != nil {
		return false, err
	}
	return countValue(out) > 0, nil
}

func (d *GremlinDriver) CreateEdge(ctx context.Context, from model.VertexRef, label string, to model.VertexRef) error {
	const script = "g.V(vFrom).coalesce(outE(eLabel).where(inV().hasId(vTo)), addE(eLabel).to(__.V(vTo))).count()"
	out, err := d.eval(ctx, "create edge", script, map[string]any{"vFrom": from.ID, "eLabel": label, "vTo": to.ID})
	if err != nil {
		return err
	}
	if countValue(out) == 0 {
		return &StoreError{Op: "create edge", Query: script, Err: fmt.Errorf("endpoint %s or %s not found", from, to)}
	}
	return nil
}

func (d *GremlinDriver) ProjectVertices(ctx context.Context, label, keyField, fkField string) ([]model.SourceRow, error) {
	const script = "g.V().hasLabel(vLabel).project('id', 'key', 'fk').by(id()).by(values(vKey).fold()).by(values(vFk).fold())"
	out, err := d.eval(ctx, "project vertices", script, map[string]any{"vLabel": label, "vKey": keyField, "vFk": fkField})
	if err != nil {
		return nil, err
	}
	rows := make([]model.SourceRow, 0, len(out))
	for _, item := range out {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		key, _ := common.Canonical(firstOf(m["key"]))
		rows = append(rows, model.SourceRow{
			Ref:     model.VertexRef{ID: m["id"], Label: label, Key: key},
			Foreign: firstOf(m["fk"]),
		})
	}
	return rows, nil
}

// flattenScript mirrors the bolt composite query: one traversal from the
// claim, optional branches folded so a missing neighbor yields an empty list.
const flattenScript = `g.V().has(vLabel, vKey, vValue).limit(1).project('c', 'cl', 'aa', 'ca').` +
	`by(project('id', 'label', 'properties').by(id()).by(label()).by(valueMap())).` +
	`by(__.in(eFiled).limit(1).project('id', 'label', 'properties').by(id()).by(label()).by(valueMap()).fold()).` +
	`by(out(eAssigned).limit(1).project('id', 'label', 'properties').by(id()).by(label()).by(valueMap()).fold()).` +
	`by(out(eClosed).limit(1).project('id', 'label', 'properties').by(id()).by(label()).by(valueMap()).fold())`

func (d *GremlinDriver) FlattenClaim(ctx context.Context, claimKey string) (*model.ClaimView, error) {
	out, err := d.eval(ctx, "flatten claim", flattenScript, map[string]any{
		"vLabel":    model.LabelClaim,
		"vKey":      model.KeyClaimID,
		"vValue":    claimKey,
		"eFiled":    model.EdgeFiled,
		"eAssigned": model.EdgeAssignedTo,
		"eClosed":   model.EdgeClosedBy,
	})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, model.ErrClaimNotFound
	}
	m, ok := out[0].(map[string]any)
	if !ok {
		return nil, &StoreError{Op: "flatten claim", Query: flattenScript, Err: fmt.Errorf("unexpected result %T", out[0])}
	}
	claim := vertexViewOf(m["c"])
	if claim == nil {
		return nil, model.ErrClaimNotFound
	}
	return &model.ClaimView{
		Claim:         *claim,
		Claimant:      model.SlotOf(vertexViewOf(firstOf(m["cl"])), model.SentinelNotFound),
		AssignedAgent: model.SlotOf(vertexViewOf(firstOf(m["aa"])), model.SentinelNotFound),
		CloseAgent:    model.SlotOf(vertexViewOf(firstOf(m["ca"])), model.SentinelClaimNotClosed),
	}, nil
}

func vertexViewOf(v any) *model.VertexView {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	label, _ := m["label"].(string)
	return &model.VertexView{ID: m["id"], Label: label, Properties: flattenValueMap(m["properties"])}
}

func (d *GremlinDriver) Counts(ctx context.Context) (model.GraphCounts, error) {
	v, err := d.eval(ctx, "count vertices", "g.V().count()", nil)
	if err != nil {
		return model.GraphCounts{}, err
	}
	e, err := d.eval(ctx, "count edges", "g.E().count()", nil)
	if err != nil {
		return model.GraphCounts{}, err
	}
	return model.GraphCounts{Vertices: countValue(v), Edges: countValue(e)}, nil
}

// BuildIndices is a no-op: managed stores index every property.
func (d *GremlinDriver) BuildIndices(context.Context, []model.EntitySpec) error {
	d.log.Debug("index creation not supported, skipping")
	return nil
}

func countValue(out []any) int64 {
	if len(out) == 0 {
		return 0
	}
	switch n := out[0].(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	default:
		return 0
	}
}
