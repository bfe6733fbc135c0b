// Package instances is the entry point of instance and entity operations.
//
// Service composes the lifecycle resolver, the time window resolver,
// the query engine, the action dispatcher and the summary aggregator.
// Every operation validates its input before any backend call.
package instances

import (
	"context"
	"time"

	"github.com/opst/knitfleet/pkg/action"
	"github.com/opst/knitfleet/pkg/backend"
	"github.com/opst/knitfleet/pkg/domain"
	"github.com/opst/knitfleet/pkg/lifecycle"
	"github.com/opst/knitfleet/pkg/logs"
	"github.com/opst/knitfleet/pkg/metrics"
	"github.com/opst/knitfleet/pkg/query"
	"github.com/opst/knitfleet/pkg/store"
	"github.com/opst/knitfleet/pkg/summary"
	"github.com/opst/knitfleet/pkg/window"
	"go.uber.org/zap"
)

// LogResolvers chooses log resolver of a colo.
type LogResolvers interface {
	For(colo string) logs.Resolver
}

type Service struct {
	entities   store.Interface
	backends   backend.Selector
	dispatcher *action.Dispatcher
	summaries  *summary.Aggregator
	windows    *window.Resolver
	logs       LogResolvers
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

type Option func(*Service)

func WithLogResolvers(l LogResolvers) Option {
	return func(s *Service) { s.logs = l }
}

// WithMetrics enables metrics. Without this, operations are not measured.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithWindowResolver(w *window.Resolver) Option {
	return func(s *Service) { s.windows = w }
}

func WithSummaryAggregator(a *summary.Aggregator) Option {
	return func(s *Service) { s.summaries = a }
}

func New(
	entities store.Interface,
	backends backend.Selector,
	dispatcher *action.Dispatcher,
	options ...Option,
) *Service {
	s := &Service{
		entities:   entities,
		backends:   backends,
		dispatcher: dispatcher,
		windows:    window.New(),
		logs:       logs.ByColo{},
		logger:     zap.NewNop(),
	}
	for _, o := range options {
		o(s)
	}
	if s.summaries == nil {
		s.summaries = summary.New(summary.WithWindowResolver(s.windows), summary.WithLogger(s.logger))
	}
	return s
}

// InstanceQuery is a request to read instances of an entity.
type InstanceQuery struct {
	Type   string
	Entity string
	Colo   string

	// in domain.DateFormat. Empty means default.
	Start string
	End   string

	// names of lifecycles. Empty means the default of Type.
	Lifecycles []string

	// "field:value,field:value"
	FilterBy  string
	OrderBy   string
	SortOrder string
	Offset    int

	// <= 0 means all.
	NumResults int
}

func (q InstanceQuery) params() query.Params {
	return query.Params{
		FilterBy:   q.FilterBy,
		OrderBy:    q.OrderBy,
		SortOrder:  q.SortOrder,
		Offset:     q.Offset,
		NumResults: q.NumResults,
	}
}

// InstanceAction is a request to act on instances of an entity.
type InstanceAction struct {
	Type   string
	Entity string
	Colo   string
	Start  string
	End    string

	Lifecycles []string

	// passed to the execution backend as they are.
	Props domain.Properties
}

// EntityAction is a request to act on an entity.
type EntityAction struct {
	Type   string
	Entity string
	Colo   string
}

// EntitySummaryQuery is a request for summaries of entities placed on a cluster.
type EntitySummaryQuery struct {
	Type    string
	Cluster string

	Start string
	End   string

	// comma separated optional fields: tags, pipelines.
	Fields string

	// entities having all of these tags are summarized.
	Tags []string

	// order of entities: name or type.
	OrderBy   string
	SortOrder string

	Offset int

	// entities per page. <= 0 means all.
	ResultsPerPage int

	// instances per entity. <= 0 means summary.DefaultNumInstances.
	NumInstances int
}

// target is a validated request for an entity.
type target struct {
	entity     *domain.Entity
	backend    backend.Interface
	lifecycles []domain.LifeCycle
}

func (s *Service) observe(operation string, since time.Time, err error) {
	s.metrics.Observe(operation, since, err)
	if err != nil {
		s.logger.Debug("operation failed", zap.String("operation", operation), zap.Error(err))
	}
}

// resolve validates type, name, lifecycles and colo, then finds the entity.
func (s *Service) resolve(ctx context.Context, typ string, name string, colo string, lcnames []string) (target, error) {
	t, err := domain.AsEntityType(typ)
	if err != nil {
		return target{}, err
	}
	if err := lifecycle.CheckSchedulable(t); err != nil {
		return target{}, err
	}
	if name == "" {
		return target{}, domain.NewEmptyParameterError("entity")
	}
	requested, err := lifecycle.ParseAll(lcnames)
	if err != nil {
		return target{}, err
	}
	lcs, err := lifecycle.Resolve(t, requested)
	if err != nil {
		return target{}, err
	}
	be, err := s.backends.Select(colo)
	if err != nil {
		return target{}, err
	}
	entity, err := s.entities.Get(ctx, t, name)
	if err != nil {
		return target{}, err
	}
	return target{entity: entity, backend: be, lifecycles: lcs}, nil
}

func (s *Service) backendFailed(operation string, entity *domain.Entity, colo string, err error) error {
	werr := domain.WrapBackendError(operation, err)
	if werr != err {
		s.logger.Error(
			"backend failed",
			zap.String("operation", operation),
			zap.String("entity", entity.Name),
			zap.String("type", entity.Type.String()),
			zap.String("colo", colo),
			zap.Error(err),
		)
	}
	return werr
}

// GetRunningInstances returns running instances, filtered, sorted and paginated.
func (s *Service) GetRunningInstances(ctx context.Context, q InstanceQuery) (_ domain.InstancesResult, err error) {
	defer func(since time.Time) { s.observe("getRunningInstances", since, err) }(time.Now())

	req, err := query.NewRequest(q.params())
	if err != nil {
		return domain.InstancesResult{}, err
	}
	tgt, err := s.resolve(ctx, q.Type, q.Entity, q.Colo, q.Lifecycles)
	if err != nil {
		return domain.InstancesResult{}, err
	}

	res, err := tgt.backend.GetRunningInstances(ctx, tgt.entity, tgt.lifecycles)
	if err != nil {
		return domain.InstancesResult{}, s.backendFailed("getRunningInstances", tgt.entity, q.Colo, err)
	}
	return query.Apply(res, req), nil
}

// GetStatus returns instances in the window, filtered, sorted and paginated.
func (s *Service) GetStatus(ctx context.Context, q InstanceQuery) (_ domain.InstancesResult, err error) {
	defer func(since time.Time) { s.observe("getStatus", since, err) }(time.Now())
	res, _, err := s.status(ctx, q)
	return res, err
}

// GetInstances is GetStatus.
func (s *Service) GetInstances(ctx context.Context, q InstanceQuery) (_ domain.InstancesResult, err error) {
	defer func(since time.Time) { s.observe("getInstances", since, err) }(time.Now())
	res, _, err := s.status(ctx, q)
	return res, err
}

func (s *Service) status(ctx context.Context, q InstanceQuery) (domain.InstancesResult, *domain.Entity, error) {
	req, err := query.NewRequest(q.params())
	if err != nil {
		return domain.InstancesResult{}, nil, err
	}
	tgt, err := s.resolve(ctx, q.Type, q.Entity, q.Colo, q.Lifecycles)
	if err != nil {
		return domain.InstancesResult{}, nil, err
	}
	win, err := s.windows.Resolve(tgt.entity, q.Start, q.End)
	if err != nil {
		return domain.InstancesResult{}, nil, err
	}

	res, err := tgt.backend.GetStatus(ctx, tgt.entity, win, tgt.lifecycles)
	if err != nil {
		return domain.InstancesResult{}, nil, s.backendFailed("getStatus", tgt.entity, q.Colo, err)
	}
	return query.Apply(res, req), tgt.entity, nil
}

// GetSummary returns counts of instances per status in the window.
//
// Filter, sort and page parameters of q are not used.
func (s *Service) GetSummary(ctx context.Context, q InstanceQuery) (_ domain.InstancesSummaryResult, err error) {
	defer func(since time.Time) { s.observe("getSummary", since, err) }(time.Now())

	tgt, err := s.resolve(ctx, q.Type, q.Entity, q.Colo, q.Lifecycles)
	if err != nil {
		return domain.InstancesSummaryResult{}, err
	}
	win, err := s.windows.Resolve(tgt.entity, q.Start, q.End)
	if err != nil {
		return domain.InstancesSummaryResult{}, err
	}

	res, err := tgt.backend.GetSummary(ctx, tgt.entity, win, tgt.lifecycles)
	if err != nil {
		return domain.InstancesSummaryResult{}, s.backendFailed("getSummary", tgt.entity, q.Colo, err)
	}
	if res.Summaries == nil {
		res.Summaries = []domain.InstanceSummary{}
	}
	return res, nil
}

// GetLogs is GetStatus, with log locations of the run runID.
//
// Negative runID means the run of each instance.
func (s *Service) GetLogs(ctx context.Context, q InstanceQuery, runID int) (_ domain.InstancesResult, err error) {
	defer func(since time.Time) { s.observe("getLogs", since, err) }(time.Now())

	res, entity, err := s.status(ctx, q)
	if err != nil {
		return domain.InstancesResult{}, err
	}

	instances := make([]domain.Instance, len(res.Instances))
	copy(instances, res.Instances)
	colos := map[string]string{}
	for i := range instances {
		colo := q.Colo
		if colo == "*" {
			colo = s.coloOfCluster(ctx, colos, instances[i].Cluster)
		}
		if err := s.logs.For(colo).PopulateLogURLs(entity, &instances[i], runID); err != nil {
			s.logger.Warn(
				"failed to resolve log location",
				zap.String("entity", entity.Name), zap.String("type", entity.Type.String()),
				zap.String("instance", instances[i].Instance), zap.Error(err),
			)
		}
	}
	return domain.InstancesResult{Message: res.Message, Instances: instances}, nil
}

// coloOfCluster finds colo of the cluster from its Cluster entity.
//
// Unknown clusters have no colo. Results are memoized in seen.
func (s *Service) coloOfCluster(ctx context.Context, seen map[string]string, cluster string) string {
	if colo, ok := seen[cluster]; ok {
		return colo
	}
	colo := ""
	if c, err := s.entities.Get(ctx, domain.Cluster, cluster); err == nil {
		colo = c.Colo
	}
	seen[cluster] = colo
	return colo
}

// GetInstanceParams returns instances with workflow parameters.
//
// Exactly one lifecycle is required, and the window is decided from q.Start only.
func (s *Service) GetInstanceParams(ctx context.Context, q InstanceQuery) (_ domain.InstancesResult, err error) {
	defer func(since time.Time) { s.observe("getInstanceParams", since, err) }(time.Now())

	tgt, err := s.resolve(ctx, q.Type, q.Entity, q.Colo, q.Lifecycles)
	if err != nil {
		return domain.InstancesResult{}, err
	}
	if _, err := lifecycle.RequireSingle(tgt.lifecycles); err != nil {
		return domain.InstancesResult{}, err
	}
	win, err := s.windows.Resolve(tgt.entity, q.Start, "")
	if err != nil {
		return domain.InstancesResult{}, err
	}

	res, err := tgt.backend.GetInstanceParams(ctx, tgt.entity, win, tgt.lifecycles)
	if err != nil {
		return domain.InstancesResult{}, s.backendFailed("getInstanceParams", tgt.entity, q.Colo, err)
	}
	if res.Instances == nil {
		res.Instances = []domain.Instance{}
	}
	return res, nil
}

func (a InstanceAction) request() (action.InstanceRequest, error) {
	t, err := domain.AsEntityType(a.Type)
	if err != nil {
		return action.InstanceRequest{}, err
	}
	lcs, err := lifecycle.ParseAll(a.Lifecycles)
	if err != nil {
		return action.InstanceRequest{}, err
	}
	return action.InstanceRequest{
		Type: t, Name: a.Entity, Colo: a.Colo,
		Start: a.Start, End: a.End,
		Lifecycles: lcs, Props: a.Props,
	}, nil
}

func (s *Service) instanceAction(
	ctx context.Context, operation string, a InstanceAction,
	call func(*action.Dispatcher, context.Context, action.InstanceRequest) (domain.InstancesResult, error),
) (_ domain.InstancesResult, err error) {
	defer func(since time.Time) { s.observe(operation, since, err) }(time.Now())

	req, err := a.request()
	if err != nil {
		return domain.InstancesResult{}, err
	}
	res, err := call(s.dispatcher, ctx, req)
	if err != nil {
		return domain.InstancesResult{}, err
	}
	if res.Instances == nil {
		res.Instances = []domain.Instance{}
	}
	return res, nil
}

func (s *Service) KillInstance(ctx context.Context, a InstanceAction) (domain.InstancesResult, error) {
	return s.instanceAction(ctx, "killInstance", a, (*action.Dispatcher).KillInstances)
}

func (s *Service) SuspendInstance(ctx context.Context, a InstanceAction) (domain.InstancesResult, error) {
	return s.instanceAction(ctx, "suspendInstance", a, (*action.Dispatcher).SuspendInstances)
}

func (s *Service) ResumeInstance(ctx context.Context, a InstanceAction) (domain.InstancesResult, error) {
	return s.instanceAction(ctx, "resumeInstance", a, (*action.Dispatcher).ResumeInstances)
}

func (s *Service) ReRunInstance(ctx context.Context, a InstanceAction) (domain.InstancesResult, error) {
	return s.instanceAction(ctx, "reRunInstance", a, (*action.Dispatcher).ReRunInstances)
}

func (a EntityAction) request() (action.EntityRequest, error) {
	t, err := domain.AsEntityType(a.Type)
	if err != nil {
		return action.EntityRequest{}, err
	}
	return action.EntityRequest{Type: t, Name: a.Entity, Colo: a.Colo}, nil
}

func (s *Service) entityAction(
	ctx context.Context, operation string, a EntityAction,
	call func(*action.Dispatcher, context.Context, action.EntityRequest) (domain.APIResult, error),
) (_ domain.APIResult, err error) {
	defer func(since time.Time) { s.observe(operation, since, err) }(time.Now())

	req, err := a.request()
	if err != nil {
		return domain.APIResult{}, err
	}
	return call(s.dispatcher, ctx, req)
}

func (s *Service) Schedule(ctx context.Context, a EntityAction) (domain.APIResult, error) {
	return s.entityAction(ctx, "schedule", a, (*action.Dispatcher).Schedule)
}

func (s *Service) Suspend(ctx context.Context, a EntityAction) (domain.APIResult, error) {
	return s.entityAction(ctx, "suspend", a, (*action.Dispatcher).Suspend)
}

func (s *Service) Resume(ctx context.Context, a EntityAction) (domain.APIResult, error) {
	return s.entityAction(ctx, "resume", a, (*action.Dispatcher).Resume)
}

// SubmitAndSchedule stores the entity, then schedules it on colo.
//
// When typ is not empty, it should be the type of the entity.
func (s *Service) SubmitAndSchedule(ctx context.Context, typ string, colo string, entity *domain.Entity) (_ domain.APIResult, err error) {
	defer func(since time.Time) { s.observe("submitAndSchedule", since, err) }(time.Now())

	if typ != "" && entity != nil {
		t, err := domain.AsEntityType(typ)
		if err != nil {
			return domain.APIResult{}, err
		}
		if t != entity.Type {
			return domain.APIResult{}, domain.NewValidationError(
				"entity type in the path (" + t.String() + ") and in the definition (" + entity.Type.String() + ") differ",
			)
		}
	}
	return s.dispatcher.SubmitAndSchedule(ctx, colo, entity)
}

// GetEntitySummary summarizes entities of a type placed on a cluster, with their recent instances.
//
// The colo to query is the colo of the cluster entity.
func (s *Service) GetEntitySummary(ctx context.Context, q EntitySummaryQuery) (_ domain.EntitySummaryResult, err error) {
	defer func(since time.Time) { s.observe("getEntitySummary", since, err) }(time.Now())

	t, err := domain.AsEntityType(q.Type)
	if err != nil {
		return domain.EntitySummaryResult{}, err
	}
	if err := lifecycle.CheckSchedulable(t); err != nil {
		return domain.EntitySummaryResult{}, err
	}
	if q.Cluster == "" {
		return domain.EntitySummaryResult{}, domain.NewEmptyParameterError("cluster")
	}
	if q.NumInstances < 0 {
		return domain.EntitySummaryResult{}, domain.NewValidationError("numInstances should not be negative")
	}
	win, err := s.windows.ResolveSummary(q.Start, q.End)
	if err != nil {
		return domain.EntitySummaryResult{}, err
	}
	listQuery, err := store.ListQuery{
		Type:      t,
		Cluster:   q.Cluster,
		Tags:      q.Tags,
		OrderBy:   q.OrderBy,
		SortOrder: domain.SortOrder(q.SortOrder),
		Offset:    q.Offset,
		Limit:     q.ResultsPerPage,
	}.Normalize()
	if err != nil {
		return domain.EntitySummaryResult{}, err
	}

	cluster, err := s.entities.Get(ctx, domain.Cluster, q.Cluster)
	if err != nil {
		return domain.EntitySummaryResult{}, err
	}
	be, err := s.backends.Select(cluster.Colo)
	if err != nil {
		return domain.EntitySummaryResult{}, err
	}

	entities, err := s.entities.List(ctx, listQuery)
	if err != nil {
		return domain.EntitySummaryResult{}, err
	}
	return s.summaries.Summarize(ctx, summary.Request{
		Backend:      be,
		Entities:     entities,
		Window:       win,
		NumInstances: q.NumInstances,
		Fields:       summary.ParseFields(q.Fields),
	})
}
