// Package action dispatches lifecycle actions on entities and their instances
// to the execution backend.
//
// Every action validates its request first, then records audit, then calls the backend once.
// Failing validations never reach the backend nor the audit.
package action

import (
	"context"
	"fmt"
	"time"

	"github.com/opst/knitfleet/pkg/audit"
	"github.com/opst/knitfleet/pkg/backend"
	"github.com/opst/knitfleet/pkg/domain"
	"github.com/opst/knitfleet/pkg/lifecycle"
	"github.com/opst/knitfleet/pkg/window"
	"go.uber.org/zap"
)

// Entities looks up and submits entity definitions.
type Entities interface {
	Get(ctx context.Context, t domain.EntityType, name string) (*domain.Entity, error)
	Submit(ctx context.Context, entity *domain.Entity) error
}

type Dispatcher struct {
	entities Entities
	backends backend.Selector
	audit    audit.Sink
	locker   Locker
	windows  *window.Resolver
	logger   *zap.Logger

	// timeout of mutating backend calls, per colo. 0 means no timeout.
	timeout func(colo string) time.Duration
}

type Option func(*Dispatcher)

// WithLocker replaces the default in-process KeyedMutex.
func WithLocker(l Locker) Option {
	return func(d *Dispatcher) { d.locker = l }
}

func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

func WithWindowResolver(w *window.Resolver) Option {
	return func(d *Dispatcher) { d.windows = w }
}

func WithCallTimeout(f func(colo string) time.Duration) Option {
	return func(d *Dispatcher) { d.timeout = f }
}

func New(entities Entities, backends backend.Selector, sink audit.Sink, options ...Option) *Dispatcher {
	d := &Dispatcher{
		entities: entities,
		backends: backends,
		audit:    sink,
		locker:   NewKeyedMutex(),
		windows:  window.New(),
		logger:   zap.NewNop(),
		timeout:  func(string) time.Duration { return 0 },
	}
	for _, o := range options {
		o(d)
	}
	return d
}

// EntityRequest designates an entity to act on.
type EntityRequest struct {
	Type domain.EntityType
	Name string
	Colo string
}

// InstanceRequest designates instances to act on.
type InstanceRequest struct {
	Type domain.EntityType
	Name string
	Colo string

	// in domain.DateFormat. Empty values are resolved by window.Resolver.
	Start string
	End   string

	// Empty means the default of Type.
	Lifecycles []domain.LifeCycle

	// passed to the backend as it is.
	Props domain.Properties
}

func (d *Dispatcher) validateEntity(t domain.EntityType, name string) error {
	if err := lifecycle.CheckSchedulable(t); err != nil {
		return err
	}
	if name == "" {
		return domain.NewEmptyParameterError("entity")
	}
	return nil
}

func lockKey(t domain.EntityType, name string) string {
	return domain.EntityKey{Type: t, Name: name}.String()
}

func (d *Dispatcher) record(ctx context.Context, name string, t domain.EntityType, action audit.Action) {
	d.audit.Record(ctx, audit.NewRecord(audit.ActorOf(ctx), name, t, action))
}

// mutate calls f with context detached from cancellation of ctx.
//
// Once dispatched, a mutation is not abandoned even if the requester goes away.
func (d *Dispatcher) mutate(ctx context.Context, colo string, f func(context.Context) error) error {
	mctx := context.WithoutCancel(ctx)
	if t := d.timeout(colo); 0 < t {
		var cancel context.CancelFunc
		mctx, cancel = context.WithTimeout(mctx, t)
		defer cancel()
	}
	return f(mctx)
}

func (d *Dispatcher) fail(operation string, t domain.EntityType, name string, colo string, err error) error {
	werr := domain.WrapBackendError(operation, err)
	d.logger.Error(
		"action failed",
		zap.String("operation", operation),
		zap.String("entity", name),
		zap.String("type", t.String()),
		zap.String("colo", colo),
		zap.Error(err),
	)
	return werr
}

// Schedule starts scheduling a submitted entity.
//
// Schedules of the same entity are serialized.
func (d *Dispatcher) Schedule(ctx context.Context, req EntityRequest) (domain.APIResult, error) {
	if err := d.validateEntity(req.Type, req.Name); err != nil {
		return domain.APIResult{}, err
	}
	be, err := d.backends.Select(req.Colo)
	if err != nil {
		return domain.APIResult{}, err
	}

	unlock, err := d.locker.Lock(ctx, lockKey(req.Type, req.Name))
	if err != nil {
		return domain.APIResult{}, err
	}
	defer unlock()

	entity, err := d.entities.Get(ctx, req.Type, req.Name)
	if err != nil {
		return domain.APIResult{}, err
	}

	d.record(ctx, req.Name, req.Type, audit.Scheduled)
	if err := d.mutate(ctx, req.Colo, func(ctx context.Context) error {
		return be.Schedule(ctx, entity)
	}); err != nil {
		return domain.APIResult{}, d.fail("schedule", req.Type, req.Name, req.Colo, err)
	}

	return domain.APIResult{
		Status:  domain.Succeeded,
		Message: fmt.Sprintf("%s(%s) scheduled successfully", req.Name, req.Type),
	}, nil
}

// SubmitAndSchedule stores a new entity and schedules it.
//
// The entity is audited as audit.StreamedData, since it comes from request body.
func (d *Dispatcher) SubmitAndSchedule(ctx context.Context, colo string, entity *domain.Entity) (domain.APIResult, error) {
	if entity == nil {
		return domain.APIResult{}, domain.NewValidationError("entity definition is empty")
	}
	if err := d.validateEntity(entity.Type, entity.Name); err != nil {
		return domain.APIResult{}, err
	}
	be, err := d.backends.Select(colo)
	if err != nil {
		return domain.APIResult{}, err
	}

	unlock, err := d.locker.Lock(ctx, lockKey(entity.Type, entity.Name))
	if err != nil {
		return domain.APIResult{}, err
	}
	defer unlock()

	d.record(ctx, audit.StreamedData, entity.Type, audit.SubmitAndSchedule)
	if err := d.entities.Submit(ctx, entity); err != nil {
		return domain.APIResult{}, err
	}
	if err := d.mutate(ctx, colo, func(ctx context.Context) error {
		return be.Schedule(ctx, entity)
	}); err != nil {
		return domain.APIResult{}, d.fail("submitAndSchedule", entity.Type, entity.Name, colo, err)
	}

	return domain.APIResult{
		Status:  domain.Succeeded,
		Message: fmt.Sprintf("%s(%s) scheduled successfully", entity.Name, entity.Type),
	}, nil
}

// Suspend pauses an active entity. Inactive entities fail with ErrNotScheduled.
func (d *Dispatcher) Suspend(ctx context.Context, req EntityRequest) (domain.APIResult, error) {
	return d.toggle(ctx, req, audit.Suspend, "suspended", backend.Interface.Suspend)
}

// Resume restarts an active entity. Inactive entities fail with ErrNotScheduled.
func (d *Dispatcher) Resume(ctx context.Context, req EntityRequest) (domain.APIResult, error) {
	return d.toggle(ctx, req, audit.Resume, "resumed", backend.Interface.Resume)
}

func (d *Dispatcher) toggle(
	ctx context.Context,
	req EntityRequest,
	action audit.Action,
	done string,
	call func(backend.Interface, context.Context, *domain.Entity) error,
) (domain.APIResult, error) {
	if err := d.validateEntity(req.Type, req.Name); err != nil {
		return domain.APIResult{}, err
	}
	be, err := d.backends.Select(req.Colo)
	if err != nil {
		return domain.APIResult{}, err
	}
	entity, err := d.entities.Get(ctx, req.Type, req.Name)
	if err != nil {
		return domain.APIResult{}, err
	}

	active, err := be.IsActive(ctx, entity)
	if err != nil {
		return domain.APIResult{}, d.fail("isActive", req.Type, req.Name, req.Colo, err)
	}
	if !active {
		return domain.APIResult{}, domain.NewNotScheduledError(req.Name, req.Type)
	}

	d.record(ctx, req.Name, req.Type, action)
	if err := d.mutate(ctx, req.Colo, func(ctx context.Context) error {
		return call(be, ctx, entity)
	}); err != nil {
		return domain.APIResult{}, d.fail(string(action), req.Type, req.Name, req.Colo, err)
	}

	return domain.APIResult{
		Status:  domain.Succeeded,
		Message: fmt.Sprintf("%s(%s) %s successfully", req.Name, req.Type, done),
	}, nil
}

type instanceCall func(
	backend.Interface, context.Context, *domain.Entity, domain.TimeWindow, domain.Properties, []domain.LifeCycle,
) (domain.InstancesResult, error)

func (d *Dispatcher) KillInstances(ctx context.Context, req InstanceRequest) (domain.InstancesResult, error) {
	return d.instances(ctx, req, audit.InstanceKill, backend.Interface.KillInstances)
}

func (d *Dispatcher) SuspendInstances(ctx context.Context, req InstanceRequest) (domain.InstancesResult, error) {
	return d.instances(ctx, req, audit.InstanceSuspend, backend.Interface.SuspendInstances)
}

func (d *Dispatcher) ResumeInstances(ctx context.Context, req InstanceRequest) (domain.InstancesResult, error) {
	return d.instances(ctx, req, audit.InstanceResume, backend.Interface.ResumeInstances)
}

func (d *Dispatcher) ReRunInstances(ctx context.Context, req InstanceRequest) (domain.InstancesResult, error) {
	return d.instances(ctx, req, audit.InstanceRerun, backend.Interface.ReRunInstances)
}

func (d *Dispatcher) instances(ctx context.Context, req InstanceRequest, action audit.Action, call instanceCall) (domain.InstancesResult, error) {
	if err := d.validateEntity(req.Type, req.Name); err != nil {
		return domain.InstancesResult{}, err
	}
	lcs, err := lifecycle.Resolve(req.Type, req.Lifecycles)
	if err != nil {
		return domain.InstancesResult{}, err
	}
	be, err := d.backends.Select(req.Colo)
	if err != nil {
		return domain.InstancesResult{}, err
	}
	entity, err := d.entities.Get(ctx, req.Type, req.Name)
	if err != nil {
		return domain.InstancesResult{}, err
	}
	win, err := d.windows.Resolve(entity, req.Start, req.End)
	if err != nil {
		return domain.InstancesResult{}, err
	}

	d.record(ctx, req.Name, req.Type, action)

	var result domain.InstancesResult
	if err := d.mutate(ctx, req.Colo, func(ctx context.Context) error {
		r, err := call(be, ctx, entity, win, req.Props, lcs)
		result = r
		return err
	}); err != nil {
		return domain.InstancesResult{}, d.fail(string(action), req.Type, req.Name, req.Colo, err)
	}
	return result, nil
}
