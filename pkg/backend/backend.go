// Package backend defines the execution backend: the system which actually
// schedules entities and runs their instances on a colo.
package backend

import (
	"context"

	"github.com/opst/knitfleet/pkg/domain"
)

// Interface of execution backends.
//
// Backends return domain errors as they are. Other errors are wrapped by callers as ErrBackend.
type Interface interface {
	// Schedule starts scheduling the entity.
	Schedule(ctx context.Context, entity *domain.Entity) error

	// Suspend pauses scheduling of the entity.
	Suspend(ctx context.Context, entity *domain.Entity) error

	// Resume restarts scheduling of the suspended entity.
	Resume(ctx context.Context, entity *domain.Entity) error

	// IsActive reports the entity is scheduled (running or suspended).
	IsActive(ctx context.Context, entity *domain.Entity) (bool, error)

	IsSuspended(ctx context.Context, entity *domain.Entity) (bool, error)

	GetRunningInstances(ctx context.Context, entity *domain.Entity, lifecycles []domain.LifeCycle) (domain.InstancesResult, error)

	GetStatus(ctx context.Context, entity *domain.Entity, window domain.TimeWindow, lifecycles []domain.LifeCycle) (domain.InstancesResult, error)

	GetSummary(ctx context.Context, entity *domain.Entity, window domain.TimeWindow, lifecycles []domain.LifeCycle) (domain.InstancesSummaryResult, error)

	KillInstances(ctx context.Context, entity *domain.Entity, window domain.TimeWindow, props domain.Properties, lifecycles []domain.LifeCycle) (domain.InstancesResult, error)

	SuspendInstances(ctx context.Context, entity *domain.Entity, window domain.TimeWindow, props domain.Properties, lifecycles []domain.LifeCycle) (domain.InstancesResult, error)

	ResumeInstances(ctx context.Context, entity *domain.Entity, window domain.TimeWindow, props domain.Properties, lifecycles []domain.LifeCycle) (domain.InstancesResult, error)

	ReRunInstances(ctx context.Context, entity *domain.Entity, window domain.TimeWindow, props domain.Properties, lifecycles []domain.LifeCycle) (domain.InstancesResult, error)

	// GetInstanceParams returns instances with their workflow parameters filled.
	GetInstanceParams(ctx context.Context, entity *domain.Entity, window domain.TimeWindow, lifecycles []domain.LifeCycle) (domain.InstancesResult, error)
}

// Selector chooses backends for a colo.
type Selector interface {
	Select(colo string) (Interface, error)
}
