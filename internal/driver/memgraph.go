package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/agenthands/claimgraph/internal/core/common"
	"github.com/agenthands/claimgraph/internal/core/model"
	"github.com/agenthands/claimgraph/internal/logger"
)

// MemgraphDriver is the session-backed backend: one bolt driver (and its
// connection pool) per run, Cypher over managed transactions.
type MemgraphDriver struct {
	Driver   neo4j.DriverWithContext
	Database string
	log      *logger.Logger
}

type MemgraphOptions struct {
	URI            string
	Username       string
	Password       string
	Database       string
	MaxPoolSize    int
	ConnectTimeout time.Duration
}

func NewMemgraphDriver(ctx context.Context, opts MemgraphOptions, log *logger.Logger) (*MemgraphDriver, error) {
	log = logger.OrNop(log)
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	driver, err := neo4j.NewDriverWithContext(opts.URI, neo4j.BasicAuth(opts.Username, opts.Password, ""), func(cfg *neo4j.Config) {
		if opts.MaxPoolSize > 0 {
			cfg.MaxConnectionPoolSize = opts.MaxPoolSize
		}
		cfg.SocketConnectTimeout = opts.ConnectTimeout
	})
	if err != nil {
		return nil, &model.FatalSetupError{Reason: "init bolt driver", Err: err}
	}

	vctx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()
	if err := driver.VerifyConnectivity(vctx); err != nil {
		_ = driver.Close(ctx)
		return nil, &model.FatalSetupError{Reason: "verify bolt connectivity to " + opts.URI, Err: err}
	}

	log.Info("connected to graph store", "backend", "bolt", "uri", opts.URI)
	return &MemgraphDriver{Driver: driver, Database: opts.Database, log: log.With("backend", "bolt")}, nil
}

func (d *MemgraphDriver) Close(ctx context.Context) error {
	if d == nil || d.Driver == nil {
		return nil
	}
	err := d.Driver.Close(ctx)
	d.Driver = nil
	return err
}

func (d *MemgraphDriver) execute(ctx context.Context, op, query string, params map[string]any) (*neo4j.EagerResult, error) {
	opts := []neo4j.ExecuteQueryConfigurationOption{}
	if d.Database != "" {
		opts = append(opts, neo4j.ExecuteQueryWithDatabase(d.Database))
	}
	result, err := neo4j.ExecuteQuery(ctx, d.Driver, query, params, neo4j.EagerResultTransformer, opts...)
	if err != nil {
		return nil, d.classify(op, query, err)
	}
	return result, nil
}

// classify marks connectivity failures as temporary; Cypher errors reported
// by the server are permanent.
func (d *MemgraphDriver) classify(op, query string, err error) error {
	if neo4j.IsConnectivityError(err) {
		return &StoreError{Op: op, Query: query, Err: err, Temporary: true}
	}
	if neo4j.IsNeo4jError(err) {
		return &StoreError{Op: op, Query: query, Err: err}
	}
	return wrap(op, query, err)
}

func (d *MemgraphDriver) Submit(ctx context.Context, q Query) ([]Row, error) {
	res, err := d.execute(ctx, "submit", q.Text, q.Params)
	if err != nil {
		return nil, err
	}
	rows := make([]Row, 0, len(res.Records))
	for _, rec := range res.Records {
		rows = append(rows, Row(rec.AsMap()))
	}
	return rows, nil
}

func (d *MemgraphDriver) FindVertices(ctx context.Context, label, key, value string) ([]model.VertexRef, error) {
	query, err := cypher(FindVerticesQuery, label, key)
	if err != nil {
		return nil, &StoreError{Op: "find vertices", Err: err}
	}
	res, err := d.execute(ctx, "find vertices", query, map[string]any{"value": value})
	if err != nil {
		return nil, err
	}
	refs := make([]model.VertexRef, 0, len(res.Records))
	for _, rec := range res.Records {
		id, _ := rec.Get("id")
		refs = append(refs, model.VertexRef{ID: id, Label: label, Key: value})
	}
	return refs, nil
}

func (d *MemgraphDriver) CreateVertex(ctx context.Context, label, key, value string, _ map[string]any) (model.VertexRef, error) {
	query, err := cypher(MergeVertexQuery, label, key)
	if err != nil {
		return model.VertexRef{}, &StoreError{Op: "create vertex", Err: err}
	}
	res, err := d.execute(ctx, "create vertex", query, map[string]any{"value": value})
	if err != nil {
		return model.VertexRef{}, err
	}
	if len(res.Records) == 0 {
		return model.VertexRef{}, &StoreError{Op: "create vertex", Query: query, Err: fmt.Errorf("no id returned")}
	}
	id, _ := res.Records[0].Get("id")
	return model.VertexRef{ID: id, Label: label, Key: value}, nil
}

func (d *MemgraphDriver) SetProperties(ctx context.Context, ref model.VertexRef, props map[string]any) error {
	if len(props) == 0 {
		return nil
	}
	for name := range props {
		if _, err := ident(name); err != nil {
			return &StoreError{Op: "set properties", Err: err}
		}
	}
	_, err := d.execute(ctx, "set properties", SetPropertiesQuery, map[string]any{"id": ref.ID, "props": props})
	return err
}

func (d *MemgraphDriver) FindEdge(ctx context.Context, from model.VertexRef, label string, to model.VertexRef) (bool, error) {
	query, err := cypher(FindEdgeQuery, label)
	if err != nil {
		return false, &StoreError{Op: "find edge", Err: err}
	}
	res, err := d.execute(ctx, "find edge", query, map[string]any{"from": from.ID, "to": to.ID})
	if err != nil {
		return false, err
	}
	return countOf(res) > 0, nil
}

func (d *MemgraphDriver) CreateEdge(ctx context.Context, from model.VertexRef, label string, to model.VertexRef) error {
	query, err := cypher(MergeEdgeQuery, label)
	if err != nil {
		return &StoreError{Op: "create edge", Err: err}
	}
	res, err := d.execute(ctx, "create edge", query, map[string]any{"from": from.ID, "to": to.ID})
	if err != nil {
		return err
	}
	if countOf(res) == 0 {
		return &StoreError{Op: "create edge", Query: query, Err: fmt.Errorf("endpoint %s or %s not found", from, to)}
	}
	return nil
}

func (d *MemgraphDriver) ProjectVertices(ctx context.Context, label, keyField, fkField string) ([]model.SourceRow, error) {
	query, err := cypher(ProjectVerticesQuery, label, keyField, fkField)
	if err != nil {
		return nil, &StoreError{Op: "project vertices", Err: err}
	}
	res, err := d.execute(ctx, "project vertices", query, nil)
	if err != nil {
		return nil, err
	}
	rows := make([]model.SourceRow, 0, len(res.Records))
	for _, rec := range res.Records {
		id, _ := rec.Get("id")
		key, _ := rec.Get("key")
		fk, _ := rec.Get("fk")
		rows = append(rows, projectedRow(label, id, key, fk))
	}
	return rows, nil
}

func (d *MemgraphDriver) FlattenClaim(ctx context.Context, claimKey string) (*model.ClaimView, error) {
	query, err := cypher(FlattenClaimQuery, model.LabelClaim, model.KeyClaimID, model.EdgeFiled, model.EdgeAssignedTo, model.EdgeClosedBy)
	if err != nil {
		return nil, &StoreError{Op: "flatten claim", Err: err}
	}
	res, err := d.execute(ctx, "flatten claim", query, map[string]any{"key": claimKey})
	if err != nil {
		return nil, err
	}
	if len(res.Records) == 0 {
		return nil, model.ErrClaimNotFound
	}
	rec := res.Records[0]
	claim := nodeView(rec, "c")
	if claim == nil {
		return nil, model.ErrClaimNotFound
	}
	return &model.ClaimView{
		Claim:         *claim,
		Claimant:      model.SlotOf(nodeView(rec, "cl"), model.SentinelNotFound),
		AssignedAgent: model.SlotOf(nodeView(rec, "aa"), model.SentinelNotFound),
		CloseAgent:    model.SlotOf(nodeView(rec, "ca"), model.SentinelClaimNotClosed),
	}, nil
}

func nodeView(rec *neo4j.Record, key string) *model.VertexView {
	raw, ok := rec.Get(key)
	if !ok || raw == nil {
		return nil
	}
	node, ok := raw.(neo4j.Node)
	if !ok {
		return nil
	}
	label := ""
	if len(node.Labels) > 0 {
		label = node.Labels[0]
	}
	props := node.Props
	if props == nil {
		props = map[string]any{}
	}
	return &model.VertexView{ID: node.Id, Label: label, Properties: props}
}

func (d *MemgraphDriver) Counts(ctx context.Context) (model.GraphCounts, error) {
	v, err := d.execute(ctx, "count vertices", CountVerticesQuery, nil)
	if err != nil {
		return model.GraphCounts{}, err
	}
	e, err := d.execute(ctx, "count edges", CountEdgesQuery, nil)
	if err != nil {
		return model.GraphCounts{}, err
	}
	return model.GraphCounts{Vertices: countOf(v), Edges: countOf(e)}, nil
}

func (d *MemgraphDriver) BuildIndices(ctx context.Context, entities []model.EntitySpec) error {
	for _, e := range entities {
		q, err := cypher(CreateIndexQuery, e.Label, e.NaturalKey)
		if err != nil {
			return &StoreError{Op: "build indices", Err: err}
		}
		if _, err := d.execute(ctx, "build indices", q, nil); err != nil {
			if IsTemporary(err) {
				return err
			}
			// Index may already exist.
			d.log.Warn("failed to create index", "query", q, "error", err)
		}
	}
	return nil
}

func countOf(res *neo4j.EagerResult) int64 {
	if res == nil || len(res.Records) == 0 {
		return 0
	}
	v, _ := res.Records[0].Get("n")
	n, _ := v.(int64)
	return n
}

// projectedRow builds a source row from one projection record. A vertex
// without a natural key yields an empty Key.
func projectedRow(label string, id, key, fk any) model.SourceRow {
	k, _ := common.Canonical(key)
	return model.SourceRow{
		Ref:     model.VertexRef{ID: id, Label: label, Key: k},
		Foreign: fk,
	}
}
