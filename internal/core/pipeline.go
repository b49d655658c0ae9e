package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/agenthands/claimgraph/internal/core/link"
	"github.com/agenthands/claimgraph/internal/core/model"
	"github.com/agenthands/claimgraph/internal/core/resolve"
	"github.com/agenthands/claimgraph/internal/core/upsert"
	"github.com/agenthands/claimgraph/internal/driver"
	"github.com/agenthands/claimgraph/internal/loader"
	"github.com/agenthands/claimgraph/internal/lock"
	"github.com/agenthands/claimgraph/internal/logger"
)

// ErrPhaseAborted wraps the temporary store error that stopped a phase.
var ErrPhaseAborted = errors.New("phase aborted")

type Options struct {
	Entities []model.EntitySpec
	Rules    []model.Rule
	// RowLimit bounds concurrent records or rows within one phase.
	RowLimit int
	// RuleLimit bounds how many linking rules run at once.
	RuleLimit int
}

// Pipeline builds the claims graph: vertices from the input directories,
// then edges from the relationship rules.
type Pipeline struct {
	Driver   driver.GraphDriver
	Upserter *upsert.Upserter
	Resolver *resolve.Resolver
	Linker   *link.Linker
	Entities []model.EntitySpec
	Rules    []model.Rule

	rowLimit  int
	ruleLimit int
	log       *logger.Logger
}

func NewPipeline(d driver.GraphDriver, locks lock.Locker, opts Options, log *logger.Logger) *Pipeline {
	log = logger.OrNop(log)
	if locks == nil {
		locks = lock.NewSharded(64)
	}
	if opts.Rules == nil {
		opts.Rules = model.DefaultRules()
	}
	return &Pipeline{
		Driver:    d,
		Upserter:  upsert.NewUpserter(d, locks, log),
		Resolver:  resolve.NewResolver(d, log),
		Linker:    link.NewLinker(d, locks),
		Entities:  opts.Entities,
		Rules:     opts.Rules,
		rowLimit:  max(opts.RowLimit, 1),
		ruleLimit: max(opts.RuleLimit, 1),
		log:       log.With("component", "pipeline"),
	}
}

// Run builds indices, loads every entity directory and links every rule.
// Counts are filled in even when a phase aborts.
func (p *Pipeline) Run(ctx context.Context) (*model.Summary, error) {
	if err := p.Driver.BuildIndices(ctx, p.Entities); err != nil {
		p.log.Warn("index creation failed, continuing", "error", err)
	}

	summary := &model.Summary{}
	vertices, err := p.LoadVertices(ctx)
	summary.Vertices = vertices
	if err == nil {
		summary.Rules, err = p.LinkAll(ctx)
	}

	counts, cerr := p.Driver.Counts(context.WithoutCancel(ctx))
	if cerr != nil {
		p.log.Warn("failed to count graph", "error", cerr)
	}
	summary.Counts = counts

	p.log.Info("run finished",
		"vertices_processed", summary.VerticesProcessed(),
		"edges_processed", summary.EdgesProcessed(),
		"store_vertices", counts.Vertices,
		"store_edges", counts.Edges,
	)
	return summary, err
}

// LoadVertices runs the vertex phase for each entity in order. It stops at
// the first aborted phase.
func (p *Pipeline) LoadVertices(ctx context.Context) ([]model.VertexReport, error) {
	reports := make([]model.VertexReport, 0, len(p.Entities))
	for _, spec := range p.Entities {
		report, err := p.LoadEntity(ctx, spec)
		reports = append(reports, report)
		if err != nil {
			return reports, err
		}
	}
	return reports, nil
}

// LoadEntity upserts every record found in spec.Dir.
func (p *Pipeline) LoadEntity(ctx context.Context, spec model.EntitySpec) (model.VertexReport, error) {
	log := p.log.With("label", spec.Label)
	report := model.VertexReport{Label: spec.Label}

	res, err := loader.LoadDir(spec.Dir, log)
	if err != nil {
		return report, err
	}
	report.Records = len(res.Records)
	report.BadFiles = len(res.BadFiles)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.rowLimit)

	for i, rec := range res.Records {
		if gctx.Err() != nil {
			mu.Lock()
			for _, rest := range res.Records[i:] {
				report.Unprocessed = append(report.Unprocessed, recordName(rest))
			}
			mu.Unlock()
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				mu.Lock()
				report.Unprocessed = append(report.Unprocessed, recordName(rec))
				mu.Unlock()
				return nil
			}
			out, err := p.Upserter.Upsert(context.WithoutCancel(gctx), spec.Label, spec.NaturalKey, rec.Record)

			mu.Lock()
			defer mu.Unlock()
			var verr *model.ValidationError
			switch {
			case err == nil && out.Created:
				report.Created++
				log.Info("vertex created", "key", out.Ref.Key, "file", rec.Source)
			case err == nil:
				report.Updated++
				log.Info("vertex updated", "key", out.Ref.Key, "file", rec.Source)
			case errors.As(err, &verr):
				report.Invalid++
				verr.Source = recordName(rec)
				log.Warn("record skipped", "file", rec.Source, "index", rec.Index, "error", verr)
			case driver.IsTemporary(err):
				report.Failed++
				log.Error("store unavailable, aborting phase", "file", rec.Source, "error", err)
				return err
			default:
				report.Failed++
				log.Error("failed to upsert record", "file", rec.Source, "index", rec.Index, "error", err)
			}
			return nil
		})
	}

	err = g.Wait()
	log.Info("vertex phase done",
		"records", report.Records,
		"created", report.Created,
		"updated", report.Updated,
		"invalid", report.Invalid,
		"failed", report.Failed,
		"bad_files", report.BadFiles,
		"unprocessed", len(report.Unprocessed),
	)
	if err != nil {
		return report, fmt.Errorf("%w: %s vertices: %w", ErrPhaseAborted, spec.Label, err)
	}
	if ctx.Err() != nil {
		return report, ctx.Err()
	}
	return report, nil
}

func recordName(r model.LoadedRecord) string {
	return fmt.Sprintf("%s#%d", r.Source, r.Index)
}

// LinkAll applies every rule, up to ruleLimit at a time. A rule that aborts
// does not stop the others; all abort errors are returned joined.
func (p *Pipeline) LinkAll(ctx context.Context) ([]model.RuleReport, error) {
	reports := make([]model.RuleReport, len(p.Rules))
	errs := make([]error, len(p.Rules))

	var g errgroup.Group
	g.SetLimit(p.ruleLimit)
	for i, rule := range p.Rules {
		g.Go(func() error {
			reports[i], errs[i] = p.LinkRule(ctx, rule)
			return nil
		})
	}
	_ = g.Wait()
	return reports, errors.Join(errs...)
}

// LinkRule enumerates the rule's source vertices in one query and links each
// to the vertex its foreign key names.
func (p *Pipeline) LinkRule(ctx context.Context, rule model.Rule) (model.RuleReport, error) {
	log := p.log.With("rule", rule.EdgeLabel)
	report := model.RuleReport{EdgeLabel: rule.EdgeLabel}

	rows, err := p.Driver.ProjectVertices(ctx, rule.SourceLabel, p.naturalKey(rule.SourceLabel), rule.ForeignKey)
	if err != nil {
		if driver.IsTemporary(err) {
			return report, fmt.Errorf("%w: %s edges: %w", ErrPhaseAborted, rule.EdgeLabel, err)
		}
		return report, err
	}
	report.Rows = len(rows)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.rowLimit)

	for i, row := range rows {
		if gctx.Err() != nil {
			mu.Lock()
			for _, rest := range rows[i:] {
				report.Unprocessed = append(report.Unprocessed, rest.Ref.Key)
			}
			mu.Unlock()
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				mu.Lock()
				report.Unprocessed = append(report.Unprocessed, row.Ref.Key)
				mu.Unlock()
				return nil
			}
			return p.linkRow(context.WithoutCancel(gctx), rule, row, &report, &mu, log)
		})
	}

	err = g.Wait()
	log.Info("edge phase done",
		"rows", report.Rows,
		"created", report.Created,
		"existed", report.Existed,
		"no_reference", report.NoReference,
		"missing", report.Missing,
		"failed", report.Failed,
		"unprocessed", len(report.Unprocessed),
	)
	if err != nil {
		return report, fmt.Errorf("%w: %s edges: %w", ErrPhaseAborted, rule.EdgeLabel, err)
	}
	if ctx.Err() != nil {
		return report, ctx.Err()
	}
	return report, nil
}

func (p *Pipeline) linkRow(ctx context.Context, rule model.Rule, row model.SourceRow, report *model.RuleReport, mu *sync.Mutex, log *logger.Logger) error {
	count := func(f func()) {
		mu.Lock()
		f()
		mu.Unlock()
	}
	source := row.Ref.Key

	if row.Foreign == nil {
		count(func() { report.NoReference++ })
		log.Info("no reference, skipped", "source", source, "field", rule.ForeignKey)
		return nil
	}

	target, err := p.Resolver.Resolve(ctx, rule.TargetLabel, rule.TargetKey, row.Foreign)
	var nf *model.ReferenceNotFoundError
	switch {
	case err == nil && target == nil:
		count(func() { report.NoReference++ })
		return nil
	case errors.As(err, &nf):
		count(func() { report.Missing++ })
		log.Warn("reference not found, skipped", "source", source, "target_label", nf.Label, "value", nf.Value)
		return nil
	case err != nil:
		return p.rowFailure(err, source, report, mu, log)
	}

	from, to := rule.Endpoints(row.Ref, *target)
	outcome, err := p.Linker.LinkIfAbsent(ctx, from, rule.EdgeLabel, to)
	if err != nil {
		return p.rowFailure(err, source, report, mu, log)
	}
	if outcome == model.OutcomeCreated {
		count(func() { report.Created++ })
	} else {
		count(func() { report.Existed++ })
	}
	log.Info("edge "+outcome.String(), "from", from.Key, "to", to.Key)
	return nil
}

// rowFailure counts a failed row. Temporary errors are returned so the
// rule stops; anything else is logged and the rule continues.
func (p *Pipeline) rowFailure(err error, source string, report *model.RuleReport, mu *sync.Mutex, log *logger.Logger) error {
	mu.Lock()
	report.Failed++
	mu.Unlock()
	if driver.IsTemporary(err) {
		log.Error("store unavailable, aborting rule", "source", source, "error", err)
		return err
	}
	log.Error("failed to link row", "source", source, "error", err)
	return nil
}

func (p *Pipeline) naturalKey(label string) string {
	for _, e := range p.Entities {
		if e.Label == label {
			return e.NaturalKey
		}
	}
	switch label {
	case model.LabelClaim:
		return model.KeyClaimID
	case model.LabelAgent:
		return model.KeyAgentID
	default:
		return model.KeyClaimantID
	}
}

// Flatten returns the denormalized view of one claim.
func (p *Pipeline) Flatten(ctx context.Context, claimKey string) (*model.ClaimView, error) {
	if claimKey == "" {
		return nil, model.ErrClaimNotFound
	}
	return p.Driver.FlattenClaim(ctx, claimKey)
}
