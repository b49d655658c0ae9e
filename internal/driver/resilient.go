package driver

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/agenthands/claimgraph/internal/core/model"
	"github.com/agenthands/claimgraph/internal/logger"
)

const tracerName = "github.com/agenthands/claimgraph/internal/driver"

type RetryPolicy struct {
	CallTimeout     time.Duration
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Resilient decorates a GraphDriver with a per-call timeout, bounded retry
// of temporary StoreErrors and one span per store operation.
type Resilient struct {
	inner  GraphDriver
	policy RetryPolicy
	tracer trace.Tracer
	log    *logger.Logger
}

var _ GraphDriver = (*Resilient)(nil)

func NewResilient(inner GraphDriver, policy RetryPolicy, log *logger.Logger) *Resilient {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.InitialInterval <= 0 {
		policy.InitialInterval = 200 * time.Millisecond
	}
	if policy.MaxInterval < policy.InitialInterval {
		policy.MaxInterval = policy.InitialInterval
	}
	return &Resilient{
		inner:  inner,
		policy: policy,
		tracer: otel.Tracer(tracerName),
		log:    logger.OrNop(log).With("component", "store"),
	}
}

// Unwrap returns the decorated backend.
func (r *Resilient) Unwrap() GraphDriver { return r.inner }

func call[T any](ctx context.Context, r *Resilient, op string, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := r.tracer.Start(ctx, "store."+op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	attempts := 0
	attempt := func() (T, error) {
		attempts++
		callCtx, cancel := r.callContext(ctx)
		defer cancel()

		res, err := fn(callCtx)
		if err == nil {
			return res, nil
		}
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = &StoreError{Op: op, Err: err, Temporary: true}
		}
		if !IsTemporary(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.policy.InitialInterval
	eb.MaxInterval = r.policy.MaxInterval

	res, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(uint(r.policy.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			r.log.Warn("retrying store operation", "op", op, "attempt", attempts, "backoff", next, "error", err)
		}),
	)
	span.SetAttributes(attribute.String("db.operation", op), attribute.Int("store.attempts", attempts))
	if err != nil && !errors.Is(err, model.ErrClaimNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

func (r *Resilient) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.policy.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.policy.CallTimeout)
}

// exec adapts operations with no result.
func exec(ctx context.Context, r *Resilient, op string, fn func(context.Context) error) error {
	_, err := call(ctx, r, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func (r *Resilient) Submit(ctx context.Context, q Query) ([]Row, error) {
	return call(ctx, r, "submit", func(ctx context.Context) ([]Row, error) {
		return r.inner.Submit(ctx, q)
	})
}

func (r *Resilient) FindVertices(ctx context.Context, label, key, value string) ([]model.VertexRef, error) {
	return call(ctx, r, "find_vertices", func(ctx context.Context) ([]model.VertexRef, error) {
		return r.inner.FindVertices(ctx, label, key, value)
	})
}

func (r *Resilient) CreateVertex(ctx context.Context, label, key, value string, props map[string]any) (model.VertexRef, error) {
	return call(ctx, r, "create_vertex", func(ctx context.Context) (model.VertexRef, error) {
		return r.inner.CreateVertex(ctx, label, key, value, props)
	})
}

func (r *Resilient) SetProperties(ctx context.Context, ref model.VertexRef, props map[string]any) error {
	return exec(ctx, r, "set_properties", func(ctx context.Context) error {
		return r.inner.SetProperties(ctx, ref, props)
	})
}

func (r *Resilient) FindEdge(ctx context.Context, from model.VertexRef, label string, to model.VertexRef) (bool, error) {
	return call(ctx, r, "find_edge", func(ctx context.Context) (bool, error) {
		return r.inner.FindEdge(ctx, from, label, to)
	})
}

func (r *Resilient) CreateEdge(ctx context.Context, from model.VertexRef, label string, to model.VertexRef) error {
	return exec(ctx, r, "create_edge", func(ctx context.Context) error {
		return r.inner.CreateEdge(ctx, from, label, to)
	})
}

func (r *Resilient) ProjectVertices(ctx context.Context, label, keyField, fkField string) ([]model.SourceRow, error) {
	return call(ctx, r, "project_vertices", func(ctx context.Context) ([]model.SourceRow, error) {
		return r.inner.ProjectVertices(ctx, label, keyField, fkField)
	})
}

func (r *Resilient) FlattenClaim(ctx context.Context, claimKey string) (*model.ClaimView, error) {
	return call(ctx, r, "flatten_claim", func(ctx context.Context) (*model.ClaimView, error) {
		return r.inner.FlattenClaim(ctx, claimKey)
	})
}

func (r *Resilient) Counts(ctx context.Context) (model.GraphCounts, error) {
	return call(ctx, r, "counts", func(ctx context.Context) (model.GraphCounts, error) {
		return r.inner.Counts(ctx)
	})
}

func (r *Resilient) BuildIndices(ctx context.Context, entities []model.EntitySpec) error {
	return exec(ctx, r, "build_indices", func(ctx context.Context) error {
		return r.inner.BuildIndices(ctx, entities)
	})
}

// Close is not retried.
func (r *Resilient) Close(ctx context.Context) error {
	return r.inner.Close(ctx)
}
