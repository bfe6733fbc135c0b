// Package summary builds summaries of entities with their recent instances.
package summary

import (
	"context"
	"errors"
	"strings"

	"github.com/opst/knitfleet/pkg/backend"
	"github.com/opst/knitfleet/pkg/domain"
	"github.com/opst/knitfleet/pkg/lifecycle"
	"github.com/opst/knitfleet/pkg/query"
	kstrings "github.com/opst/knitfleet/pkg/utils/strings"
	"github.com/opst/knitfleet/pkg/window"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultNumInstances = 7
	DefaultParallelism  = 8

	// Message of results.
	ResultMessage = "Entity Summary Result"
)

// optional fields of summaries.
const (
	FieldTags      = "tags"
	FieldPipelines = "pipelines"
)

type Aggregator struct {
	windows     *window.Resolver
	parallelism int
	logger      *zap.Logger
}

type Option func(*Aggregator)

func WithWindowResolver(w *window.Resolver) Option {
	return func(a *Aggregator) { a.windows = w }
}

// WithParallelism sets how many entities are queried at once.
func WithParallelism(n int) Option {
	return func(a *Aggregator) {
		if 0 < n {
			a.parallelism = n
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(a *Aggregator) { a.logger = l }
}

func New(options ...Option) *Aggregator {
	a := &Aggregator{
		windows:     window.New(),
		parallelism: DefaultParallelism,
		logger:      zap.NewNop(),
	}
	for _, o := range options {
		o(a)
	}
	return a
}

type Request struct {
	// backend of the colo where entities are placed.
	Backend backend.Interface

	// candidates, in the order of output.
	Entities []*domain.Entity

	Window domain.TimeWindow

	// instances per entity. <= 0 means DefaultNumInstances.
	NumInstances int

	// optional fields to be filled. Case-insensitive.
	Fields []string
}

// ParseFields converts comma separated field names into a set.
func ParseFields(fields string) []string {
	set := kstrings.SplitIfNotEmpty(fields, ",")
	for i := range set {
		set[i] = strings.ToLower(set[i])
	}
	return set
}

func has(fields []string, name string) bool {
	for _, f := range fields {
		if strings.EqualFold(f, name) {
			return true
		}
	}
	return false
}

// Summarize queries each entity concurrently. Summaries are in the order of req.Entities.
//
// Failure on any entity fails the whole.
func (a *Aggregator) Summarize(ctx context.Context, req Request) (domain.EntitySummaryResult, error) {
	num := req.NumInstances
	if num <= 0 {
		num = DefaultNumInstances
	}
	page, err := query.NewPage(0, num)
	if err != nil {
		return domain.EntitySummaryResult{}, err
	}
	pipeline := query.Request{Page: page}

	summaries := make([]domain.EntitySummary, len(req.Entities))
	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(a.parallelism)
	for i, entity := range req.Entities {
		eg.Go(func() error {
			s, err := a.summarize(ectx, req, entity, pipeline)
			if err != nil {
				return err
			}
			summaries[i] = s
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return domain.EntitySummaryResult{}, err
	}

	return domain.EntitySummaryResult{Message: ResultMessage, Entities: summaries}, nil
}

func (a *Aggregator) summarize(ctx context.Context, req Request, entity *domain.Entity, pipeline query.Request) (domain.EntitySummary, error) {
	s := domain.EntitySummary{
		Name:      entity.Name,
		Type:      entity.Type,
		Tags:      []string{},
		Pipelines: []string{},
		Instances: []domain.Instance{},
	}
	if has(req.Fields, FieldTags) {
		s.Tags = append(s.Tags, entity.Tags...)
	}
	if has(req.Fields, FieldPipelines) {
		s.Pipelines = append(s.Pipelines, entity.Pipelines...)
	}

	status, err := StatusOf(ctx, req.Backend, entity)
	if err != nil {
		return domain.EntitySummary{}, err
	}
	s.Status = status

	win, err := a.windows.Resolve(
		entity, domain.FormatDate(req.Window.Start()), domain.FormatDate(req.Window.End()),
	)
	if errors.Is(err, domain.ErrInvalidWindow) {
		// out of the validity of the entity
		a.logger.Debug(
			"no instances in window",
			zap.String("entity", entity.Name), zap.String("window", req.Window.String()),
		)
		return s, nil
	} else if err != nil {
		return domain.EntitySummary{}, err
	}

	res, err := req.Backend.GetStatus(ctx, entity, win, lifecycle.DefaultFor(entity.Type))
	if err != nil {
		return domain.EntitySummary{}, domain.WrapBackendError("getStatus", err)
	}
	s.Instances = query.Apply(res, pipeline).Instances
	return s, nil
}

// StatusOf tells status of the entity: SUBMITTED when not active,
// SUSPENDED when suspended, and RUNNING otherwise.
func StatusOf(ctx context.Context, b backend.Interface, entity *domain.Entity) (domain.EntityStatus, error) {
	active, err := b.IsActive(ctx, entity)
	if err != nil {
		return "", domain.WrapBackendError("isActive", err)
	}
	if !active {
		return domain.EntitySubmitted, nil
	}
	suspended, err := b.IsSuspended(ctx, entity)
	if err != nil {
		return "", domain.WrapBackendError("isSuspended", err)
	}
	if suspended {
		return domain.EntitySuspended, nil
	}
	return domain.EntityRunning, nil
}
