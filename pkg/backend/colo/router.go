// Package colo routes backend calls to colos.
//
// A colo is a site with its own execution backend.
// The name "*" means all colos.
package colo

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/opst/knitfleet/pkg/backend"
	"github.com/opst/knitfleet/pkg/domain"
	"golang.org/x/sync/errgroup"
)

const All = "*"

type Router struct {
	names    []string
	backends map[string]backend.Interface
	timeouts map[string]time.Duration
}

type Option func(*Router)

// WithTimeouts sets timeouts of mutating calls per colo, applied to each colo under "*".
//
// Colos without positive timeout have no timeout.
func WithTimeouts(timeouts map[string]time.Duration) Option {
	return func(r *Router) { r.timeouts = timeouts }
}

// New creates Router over named backends.
func New(backends map[string]backend.Interface, options ...Option) *Router {
	names := make([]string, 0, len(backends))
	for n := range backends {
		names = append(names, n)
	}
	slices.Sort(names)
	r := &Router{names: names, backends: backends}
	for _, o := range options {
		o(r)
	}
	return r
}

var _ backend.Selector = &Router{}

// Names returns colo names in order.
func (r *Router) Names() []string {
	return slices.Clone(r.names)
}

// Select returns the backend for colo.
//
// For "*", it returns a backend fanning out to every colo.
func (r *Router) Select(colo string) (backend.Interface, error) {
	colo = strings.TrimSpace(colo)
	switch colo {
	case "":
		return nil, domain.NewEmptyParameterError("colo")
	case All:
		members := make([]member, 0, len(r.names))
		for _, n := range r.names {
			members = append(members, member{name: n, backend: r.backends[n], timeout: r.timeouts[n]})
		}
		return &fanout{members: members}, nil
	}
	b, ok := r.backends[colo]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownColo, colo)
	}
	return b, nil
}

type member struct {
	name    string
	backend backend.Interface
	timeout time.Duration
}

// bound limits ctx with the timeout of the colo, if any.
func (m member) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, m.timeout)
}

// fanout calls backends of all colos.
//
// Queries run concurrently and their results are concatenated in colo name order.
// Actions run one colo after another, and stop at the first failure.
// Each action call is bounded by the timeout of its colo.
type fanout struct {
	members []member
}

var _ backend.Interface = &fanout{}

func annotate(colo string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("colo %s: %w", colo, err)
}

func joinMessages(colos []string, messages []string) string {
	parts := []string{}
	for i, m := range messages {
		if m == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", colos[i], m))
	}
	return strings.Join(parts, "; ")
}

func (f *fanout) colos() []string {
	names := make([]string, 0, len(f.members))
	for _, m := range f.members {
		names = append(names, m.name)
	}
	return names
}

func (f *fanout) query(ctx context.Context, call func(context.Context, backend.Interface) (domain.InstancesResult, error)) (domain.InstancesResult, error) {
	results := make([]domain.InstancesResult, len(f.members))
	eg, ectx := errgroup.WithContext(ctx)
	for i, m := range f.members {
		eg.Go(func() error {
			r, err := call(ectx, m.backend)
			if err != nil {
				return annotate(m.name, err)
			}
			results[i] = r
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return domain.InstancesResult{}, err
	}
	return concat(f.colos(), results), nil
}

func (f *fanout) act(ctx context.Context, call func(context.Context, backend.Interface) (domain.InstancesResult, error)) (domain.InstancesResult, error) {
	results := make([]domain.InstancesResult, 0, len(f.members))
	for _, m := range f.members {
		mctx, cancel := m.bound(ctx)
		r, err := call(mctx, m.backend)
		cancel()
		if err != nil {
			return domain.InstancesResult{}, annotate(m.name, err)
		}
		results = append(results, r)
	}
	return concat(f.colos(), results), nil
}

func concat(colos []string, results []domain.InstancesResult) domain.InstancesResult {
	messages := make([]string, len(results))
	instances := []domain.Instance{}
	for i, r := range results {
		messages[i] = r.Message
		instances = append(instances, r.Instances...)
	}
	return domain.InstancesResult{Message: joinMessages(colos, messages), Instances: instances}
}

func (f *fanout) each(ctx context.Context, call func(context.Context, backend.Interface) error) error {
	for _, m := range f.members {
		mctx, cancel := m.bound(ctx)
		err := call(mctx, m.backend)
		cancel()
		if err != nil {
			return annotate(m.name, err)
		}
	}
	return nil
}

func (f *fanout) every(ctx context.Context, pred func(context.Context, backend.Interface) (bool, error)) (bool, error) {
	if len(f.members) == 0 {
		return false, nil
	}
	for _, m := range f.members {
		ok, err := pred(ctx, m.backend)
		if err != nil {
			return false, annotate(m.name, err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (f *fanout) Schedule(ctx context.Context, entity *domain.Entity) error {
	return f.each(ctx, func(ctx context.Context, b backend.Interface) error { return b.Schedule(ctx, entity) })
}

func (f *fanout) Suspend(ctx context.Context, entity *domain.Entity) error {
	return f.each(ctx, func(ctx context.Context, b backend.Interface) error { return b.Suspend(ctx, entity) })
}

func (f *fanout) Resume(ctx context.Context, entity *domain.Entity) error {
	return f.each(ctx, func(ctx context.Context, b backend.Interface) error { return b.Resume(ctx, entity) })
}

// IsActive is true when the entity is active on every colo.
func (f *fanout) IsActive(ctx context.Context, entity *domain.Entity) (bool, error) {
	return f.every(ctx, func(ctx context.Context, b backend.Interface) (bool, error) { return b.IsActive(ctx, entity) })
}

// IsSuspended is true when the entity is suspended on every colo.
func (f *fanout) IsSuspended(ctx context.Context, entity *domain.Entity) (bool, error) {
	return f.every(ctx, func(ctx context.Context, b backend.Interface) (bool, error) { return b.IsSuspended(ctx, entity) })
}

func (f *fanout) GetRunningInstances(ctx context.Context, entity *domain.Entity, lifecycles []domain.LifeCycle) (domain.InstancesResult, error) {
	return f.query(ctx, func(ctx context.Context, b backend.Interface) (domain.InstancesResult, error) {
		return b.GetRunningInstances(ctx, entity, lifecycles)
	})
}

func (f *fanout) GetStatus(ctx context.Context, entity *domain.Entity, window domain.TimeWindow, lifecycles []domain.LifeCycle) (domain.InstancesResult, error) {
	return f.query(ctx, func(ctx context.Context, b backend.Interface) (domain.InstancesResult, error) {
		return b.GetStatus(ctx, entity, window, lifecycles)
	})
}

func (f *fanout) GetInstanceParams(ctx context.Context, entity *domain.Entity, window domain.TimeWindow, lifecycles []domain.LifeCycle) (domain.InstancesResult, error) {
	return f.query(ctx, func(ctx context.Context, b backend.Interface) (domain.InstancesResult, error) {
		return b.GetInstanceParams(ctx, entity, window, lifecycles)
	})
}

func (f *fanout) GetSummary(ctx context.Context, entity *domain.Entity, window domain.TimeWindow, lifecycles []domain.LifeCycle) (domain.InstancesSummaryResult, error) {
	results := make([]domain.InstancesSummaryResult, len(f.members))
	eg, ectx := errgroup.WithContext(ctx)
	for i, m := range f.members {
		eg.Go(func() error {
			r, err := m.backend.GetSummary(ectx, entity, window, lifecycles)
			if err != nil {
				return annotate(m.name, err)
			}
			results[i] = r
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return domain.InstancesSummaryResult{}, err
	}

	messages := make([]string, len(results))
	summaries := []domain.InstanceSummary{}
	for i, r := range results {
		messages[i] = r.Message
		summaries = append(summaries, r.Summaries...)
	}
	return domain.InstancesSummaryResult{Message: joinMessages(f.colos(), messages), Summaries: summaries}, nil
}

func (f *fanout) KillInstances(ctx context.Context, entity *domain.Entity, window domain.TimeWindow, props domain.Properties, lifecycles []domain.LifeCycle) (domain.InstancesResult, error) {
	return f.act(ctx, func(ctx context.Context, b backend.Interface) (domain.InstancesResult, error) {
		return b.KillInstances(ctx, entity, window, props, lifecycles)
	})
}

func (f *fanout) SuspendInstances(ctx context.Context, entity *domain.Entity, window domain.TimeWindow, props domain.Properties, lifecycles []domain.LifeCycle) (domain.InstancesResult, error) {
	return f.act(ctx, func(ctx context.Context, b backend.Interface) (domain.InstancesResult, error) {
		return b.SuspendInstances(ctx, entity, window, props, lifecycles)
	})
}

func (f *fanout) ResumeInstances(ctx context.Context, entity *domain.Entity, window domain.TimeWindow, props domain.Properties, lifecycles []domain.LifeCycle) (domain.InstancesResult, error) {
	return f.act(ctx, func(ctx context.Context, b backend.Interface) (domain.InstancesResult, error) {
		return b.ResumeInstances(ctx, entity, window, props, lifecycles)
	})
}

func (f *fanout) ReRunInstances(ctx context.Context, entity *domain.Entity, window domain.TimeWindow, props domain.Properties, lifecycles []domain.LifeCycle) (domain.InstancesResult, error) {
	return f.act(ctx, func(ctx context.Context, b backend.Interface) (domain.InstancesResult, error) {
		return b.ReRunInstances(ctx, entity, window, props, lifecycles)
	})
}
