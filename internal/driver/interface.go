package driver

import (
	"context"

	"github.com/agenthands/claimgraph/internal/core/model"
)

// Query is a raw store query in the backend's own language.
type Query struct {
	Text   string
	Params map[string]any
}

// Row is one result row. Scalar results are returned under the "value" key.
type Row map[string]any

// GraphDriver is the single capability interface every store backend
// implements. Callers never need to know which backend they hold.
type GraphDriver interface {
	// Submit runs a raw query and returns rows in store order.
	Submit(ctx context.Context, q Query) ([]Row, error)

	// FindVertices returns every vertex with the given label and key value.
	FindVertices(ctx context.Context, label, key, value string) ([]model.VertexRef, error)
	// CreateVertex creates the vertex unless one with the same label and key
	// value already exists, in which case that one is returned. props may
	// carry backend-mandated creation properties (partition key); others are
	// ignored here and written with SetProperties.
	CreateVertex(ctx context.Context, label, key, value string, props map[string]any) (model.VertexRef, error)
	// SetProperties overwrites each property with single cardinality.
	SetProperties(ctx context.Context, ref model.VertexRef, props map[string]any) error

	FindEdge(ctx context.Context, from model.VertexRef, label string, to model.VertexRef) (bool, error)
	// CreateEdge creates the edge unless an identical one exists.
	CreateEdge(ctx context.Context, from model.VertexRef, label string, to model.VertexRef) error

	// ProjectVertices enumerates all vertices of a label with their key and
	// the raw value of fkField, in one round trip.
	ProjectVertices(ctx context.Context, label, keyField, fkField string) ([]model.SourceRow, error)

	// FlattenClaim builds the denormalized view for one claim. It returns
	// model.ErrClaimNotFound when the claim does not exist.
	FlattenClaim(ctx context.Context, claimKey string) (*model.ClaimView, error)

	Counts(ctx context.Context) (model.GraphCounts, error)
	BuildIndices(ctx context.Context, entities []model.EntitySpec) error
	Close(ctx context.Context) error
}
