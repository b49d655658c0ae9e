package driver

import (
	"context"
	"fmt"

	"github.com/agenthands/claimgraph/internal/config"
	"github.com/agenthands/claimgraph/internal/core/model"
	"github.com/agenthands/claimgraph/internal/logger"
)

// Open connects the configured backend and wraps it in the retry/timeout
// decorator. The caller owns the returned driver and must Close it.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Resilient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var (
		inner GraphDriver
		err   error
	)
	switch cfg.Store.Backend {
	case config.BackendBolt:
		inner, err = NewMemgraphDriver(ctx, MemgraphOptions{
			URI:         cfg.Memgraph.URI,
			Username:    cfg.Memgraph.User,
			Password:    cfg.Memgraph.Password,
			Database:    cfg.Memgraph.Database,
			MaxPoolSize: cfg.Concurrency.Rows * cfg.Concurrency.Rules,
		}, log)
	case config.BackendGremlin:
		inner, err = NewGremlinDriver(ctx, GremlinOptions{
			URL:             cfg.Gremlin.URL(),
			Username:        cfg.Gremlin.Username,
			Password:        cfg.Gremlin.Password,
			TraversalSource: cfg.Gremlin.TraversalSource,
			PartitionKey:    cfg.Gremlin.PartitionKey,
			UseKeyAsID:      cfg.Gremlin.UseKeyAsID,
			Cardinality:     cfg.Gremlin.Cardinality,
			PoolSize:        cfg.Gremlin.PoolSize,
		}, log)
	case config.BackendMemory:
		inner = NewMemoryDriver()
	default:
		err = &model.FatalSetupError{Reason: fmt.Sprintf("unknown store backend %q", cfg.Store.Backend)}
	}
	if err != nil {
		return nil, err
	}
	return NewResilient(inner, RetryPolicy{
		CallTimeout:     cfg.Store.CallTimeout.Std(),
		MaxAttempts:     cfg.Retry.MaxAttempts,
		InitialInterval: cfg.Retry.InitialInterval.Std(),
		MaxInterval:     cfg.Retry.MaxInterval.Std(),
	}, log), nil
}
