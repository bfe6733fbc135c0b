// this package provide "mock" implementation of execution backend for testing.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/opst/knitfleet/pkg/backend"
	"github.com/opst/knitfleet/pkg/domain"
)

type EntityCall struct {
	Entity *domain.Entity
}

type QueryCall struct {
	Entity     *domain.Entity
	Window     domain.TimeWindow
	Lifecycles []domain.LifeCycle
}

type ActionCall struct {
	Entity     *domain.Entity
	Window     domain.TimeWindow
	Props      domain.Properties
	Lifecycles []domain.LifeCycle
}

type Backend struct {
	Impl struct {
		Schedule            func(context.Context, *domain.Entity) error
		Suspend             func(context.Context, *domain.Entity) error
		Resume              func(context.Context, *domain.Entity) error
		IsActive            func(context.Context, *domain.Entity) (bool, error)
		IsSuspended         func(context.Context, *domain.Entity) (bool, error)
		GetRunningInstances func(context.Context, *domain.Entity, []domain.LifeCycle) (domain.InstancesResult, error)
		GetStatus           func(context.Context, *domain.Entity, domain.TimeWindow, []domain.LifeCycle) (domain.InstancesResult, error)
		GetSummary          func(context.Context, *domain.Entity, domain.TimeWindow, []domain.LifeCycle) (domain.InstancesSummaryResult, error)
		KillInstances       func(context.Context, *domain.Entity, domain.TimeWindow, domain.Properties, []domain.LifeCycle) (domain.InstancesResult, error)
		SuspendInstances    func(context.Context, *domain.Entity, domain.TimeWindow, domain.Properties, []domain.LifeCycle) (domain.InstancesResult, error)
		ResumeInstances     func(context.Context, *domain.Entity, domain.TimeWindow, domain.Properties, []domain.LifeCycle) (domain.InstancesResult, error)
		ReRunInstances      func(context.Context, *domain.Entity, domain.TimeWindow, domain.Properties, []domain.LifeCycle) (domain.InstancesResult, error)
		GetInstanceParams   func(context.Context, *domain.Entity, domain.TimeWindow, []domain.LifeCycle) (domain.InstancesResult, error)
	}
	Calls struct {
		Schedule            CallLog[EntityCall]
		Suspend             CallLog[EntityCall]
		Resume              CallLog[EntityCall]
		IsActive            CallLog[EntityCall]
		IsSuspended         CallLog[EntityCall]
		GetRunningInstances CallLog[QueryCall]
		GetStatus           CallLog[QueryCall]
		GetSummary          CallLog[QueryCall]
		KillInstances       CallLog[ActionCall]
		SuspendInstances    CallLog[ActionCall]
		ResumeInstances     CallLog[ActionCall]
		ReRunInstances      CallLog[ActionCall]
		GetInstanceParams   CallLog[QueryCall]
	}

	// guards Calls. Backends are called concurrently by fan-out.
	m sync.Mutex
}

func New() *Backend {
	return &Backend{}
}

var _ backend.Interface = &Backend{}

var errNotImplemented = errors.New("[MOCK] not implemented")

func (b *Backend) Schedule(ctx context.Context, entity *domain.Entity) error {
	b.m.Lock()
	b.Calls.Schedule = append(b.Calls.Schedule, EntityCall{Entity: entity})
	b.m.Unlock()
	if b.Impl.Schedule == nil {
		return errNotImplemented
	}
	return b.Impl.Schedule(ctx, entity)
}

func (b *Backend) Suspend(ctx context.Context, entity *domain.Entity) error {
	b.m.Lock()
	b.Calls.Suspend = append(b.Calls.Suspend, EntityCall{Entity: entity})
	b.m.Unlock()
	if b.Impl.Suspend == nil {
		return errNotImplemented
	}
	return b.Impl.Suspend(ctx, entity)
}

func (b *Backend) Resume(ctx context.Context, entity *domain.Entity) error {
	b.m.Lock()
	b.Calls.Resume = append(b.Calls.Resume, EntityCall{Entity: entity})
	b.m.Unlock()
	if b.Impl.Resume == nil {
		return errNotImplemented
	}
	return b.Impl.Resume(ctx, entity)
}

func (b *Backend) IsActive(ctx context.Context, entity *domain.Entity) (bool, error) {
	b.m.Lock()
	b.Calls.IsActive = append(b.Calls.IsActive, EntityCall{Entity: entity})
	b.m.Unlock()
	if b.Impl.IsActive == nil {
		return false, errNotImplemented
	}
	return b.Impl.IsActive(ctx, entity)
}

func (b *Backend) IsSuspended(ctx context.Context, entity *domain.Entity) (bool, error) {
	b.m.Lock()
	b.Calls.IsSuspended = append(b.Calls.IsSuspended, EntityCall{Entity: entity})
	b.m.Unlock()
	if b.Impl.IsSuspended == nil {
		return false, errNotImplemented
	}
	return b.Impl.IsSuspended(ctx, entity)
}

func (b *Backend) GetRunningInstances(ctx context.Context, entity *domain.Entity, lifecycles []domain.LifeCycle) (domain.InstancesResult, error) {
	b.m.Lock()
	b.Calls.GetRunningInstances = append(b.Calls.GetRunningInstances, QueryCall{Entity: entity, Lifecycles: lifecycles})
	b.m.Unlock()
	if b.Impl.GetRunningInstances == nil {
		return domain.InstancesResult{}, errNotImplemented
	}
	return b.Impl.GetRunningInstances(ctx, entity, lifecycles)
}

func (b *Backend) GetStatus(ctx context.Context, entity *domain.Entity, window domain.TimeWindow, lifecycles []domain.LifeCycle) (domain.InstancesResult, error) {
	b.m.Lock()
	b.Calls.GetStatus = append(b.Calls.GetStatus, QueryCall{Entity: entity, Window: window, Lifecycles: lifecycles})
	b.m.Unlock()
	if b.Impl.GetStatus == nil {
		return domain.InstancesResult{}, errNotImplemented
	}
	return b.Impl.GetStatus(ctx, entity, window, lifecycles)
}

func (b *Backend) GetSummary(ctx context.Context, entity *domain.Entity, window domain.TimeWindow, lifecycles []domain.LifeCycle) (domain.InstancesSummaryResult, error) {
	b.m.Lock()
	b.Calls.GetSummary = append(b.Calls.GetSummary, QueryCall{Entity: entity, Window: window, Lifecycles: lifecycles})
	b.m.Unlock()
	if b.Impl.GetSummary == nil {
		return domain.InstancesSummaryResult{}, errNotImplemented
	}
	return b.Impl.GetSummary(ctx, entity, window, lifecycles)
}

func (b *Backend) KillInstances(ctx context.Context, entity *domain.Entity, window domain.TimeWindow, props domain.Properties, lifecycles []domain.LifeCycle) (domain.InstancesResult, error) {
	b.m.Lock()
	b.Calls.KillInstances = append(b.Calls.KillInstances, ActionCall{Entity: entity, Window: window, Props: props, Lifecycles: lifecycles})
	b.m.Unlock()
	if b.Impl.KillInstances == nil {
		return domain.InstancesResult{}, errNotImplemented
	}
	return b.Impl.KillInstances(ctx, entity, window, props, lifecycles)
}

func (b *Backend) SuspendInstances(ctx context.Context, entity *domain.Entity, window domain.TimeWindow, props domain.Properties, lifecycles []domain.LifeCycle) (domain.InstancesResult, error) {
	b.m.Lock()
	b.Calls.SuspendInstances = append(b.Calls.SuspendInstances, ActionCall{Entity: entity, Window: window, Props: props, Lifecycles: lifecycles})
	b.m.Unlock()
	if b.Impl.SuspendInstances == nil {
		return domain.InstancesResult{}, errNotImplemented
	}
	return b.Impl.SuspendInstances(ctx, entity, window, props, lifecycles)
}

func (b *Backend) ResumeInstances(ctx context.Context, entity *domain.Entity, window domain.TimeWindow, props domain.Properties, lifecycles []domain.LifeCycle) (domain.InstancesResult, error) {
	b.m.Lock()
	b.Calls.ResumeInstances = append(b.Calls.ResumeInstances, ActionCall{Entity: entity, Window: window, Props: props, Lifecycles: lifecycles})
	b.m.Unlock()
	if b.Impl.ResumeInstances == nil {
		return domain.InstancesResult{}, errNotImplemented
	}
	return b.Impl.ResumeInstances(ctx, entity, window, props, lifecycles)
}

func (b *Backend) ReRunInstances(ctx context.Context, entity *domain.Entity, window domain.TimeWindow, props domain.Properties, lifecycles []domain.LifeCycle) (domain.InstancesResult, error) {
	b.m.Lock()
	b.Calls.ReRunInstances = append(b.Calls.ReRunInstances, ActionCall{Entity: entity, Window: window, Props: props, Lifecycles: lifecycles})
	b.m.Unlock()
	if b.Impl.ReRunInstances == nil {
		return domain.InstancesResult{}, errNotImplemented
	}
	return b.Impl.ReRunInstances(ctx, entity, window, props, lifecycles)
}

func (b *Backend) GetInstanceParams(ctx context.Context, entity *domain.Entity, window domain.TimeWindow, lifecycles []domain.LifeCycle) (domain.InstancesResult, error) {
	b.m.Lock()
	b.Calls.GetInstanceParams = append(b.Calls.GetInstanceParams, QueryCall{Entity: entity, Window: window, Lifecycles: lifecycles})
	b.m.Unlock()
	if b.Impl.GetInstanceParams == nil {
		return domain.InstancesResult{}, errNotImplemented
	}
	return b.Impl.GetInstanceParams(ctx, entity, window, lifecycles)
}

// Selector is a mock of backend.Selector.
type Selector struct {
	Impl struct {
		Select func(colo string) (backend.Interface, error)
	}
	Calls struct {
		Select CallLog[string]
	}
	m sync.Mutex
}

var _ backend.Selector = &Selector{}

// SelectorOf returns Selector which gives b for any colo.
func SelectorOf(b backend.Interface) *Selector {
	s := &Selector{}
	s.Impl.Select = func(string) (backend.Interface, error) { return b, nil }
	return s
}

func (s *Selector) Select(colo string) (backend.Interface, error) {
	s.m.Lock()
	s.Calls.Select = append(s.Calls.Select, colo)
	s.m.Unlock()
	if s.Impl.Select == nil {
		return nil, errNotImplemented
	}
	return s.Impl.Select(colo)
}
