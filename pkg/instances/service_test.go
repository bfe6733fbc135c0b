package instances_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/opst/knitfleet/pkg/action"
	"github.com/opst/knitfleet/pkg/audit"
	"github.com/opst/knitfleet/pkg/backend/mock"
	"github.com/opst/knitfleet/pkg/cmp"
	"github.com/opst/knitfleet/pkg/domain"
	"github.com/opst/knitfleet/pkg/instances"
	"github.com/opst/knitfleet/pkg/logs"
	"github.com/opst/knitfleet/pkg/metrics"
	"github.com/opst/knitfleet/pkg/store/memory"
	"github.com/opst/knitfleet/pkg/utils/try"
	"github.com/opst/knitfleet/pkg/window"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type sink struct {
	m       sync.Mutex
	records []audit.Record
}

func (s *sink) Record(_ context.Context, rec audit.Record) {
	s.m.Lock()
	defer s.m.Unlock()
	s.records = append(s.records, rec)
}

func date(t *testing.T, s string) time.Time {
	return try.To(domain.ParseDate(s)).OrFatal(t)
}

func at(t *testing.T, s string) *time.Time {
	d := date(t, s)
	return &d
}

type fixture struct {
	testee   *instances.Service
	backend  *mock.Backend
	selector *mock.Selector
	sink     *sink
	store    *memory.Store
	metrics  *metrics.Metrics
}

func setup(t *testing.T) fixture {
	validity := []domain.ClusterValidity{
		{Name: "c1", Start: date(t, "2020-01-01T00:00Z"), End: date(t, "2021-01-01T00:00Z")},
	}
	entities := memory.New(
		&domain.Entity{
			Type: domain.Feed, Name: "clicks", Clusters: validity,
			Frequency: domain.Frequency{Unit: domain.Days, Multiplier: 1},
			Tags:      []string{"owner:ads"}, Pipelines: []string{"ads"},
		},
		&domain.Entity{
			Type: domain.Feed, Name: "views", Clusters: validity,
			Frequency: domain.Frequency{Unit: domain.Days, Multiplier: 1},
		},
		&domain.Entity{
			Type: domain.Process, Name: "aggregate", Clusters: validity,
			Frequency: domain.Frequency{Unit: domain.Hours, Multiplier: 1},
		},
		&domain.Entity{Type: domain.Cluster, Name: "c1", Colo: "tokyo"},
	)

	now := date(t, "2020-01-20T00:00Z")
	windows := &window.Resolver{Now: func() time.Time { return now }}
	be := mock.New()
	selector := mock.SelectorOf(be)
	s := &sink{}
	m := metrics.New()

	tmpl := try.To(logs.NewTemplateResolver(
		"https://logs.example.com/{{ .EntityName }}/{{ .Instance }}/{{ .RunID }}",
	)).OrFatal(t)

	dispatcher := action.New(entities, selector, s, action.WithWindowResolver(windows))
	testee := instances.New(
		entities, selector, dispatcher,
		instances.WithWindowResolver(windows),
		instances.WithMetrics(m),
		instances.WithLogResolvers(logs.ByColo{"tokyo": tmpl}),
	)
	return fixture{testee: testee, backend: be, selector: selector, sink: s, store: entities, metrics: m}
}

func (f fixture) history(t *testing.T) []domain.Instance {
	return []domain.Instance{
		{Instance: "2020-01-10T00:00Z", Cluster: "c1", Status: domain.StatusSucceeded, StartTime: at(t, "2020-01-10T01:00Z"), RunID: 0},
		{Instance: "2020-01-11T00:00Z", Cluster: "c1", Status: domain.StatusFailed, StartTime: at(t, "2020-01-11T01:00Z"), RunID: 1},
		{Instance: "2020-01-12T00:00Z", Cluster: "C1", Status: domain.StatusSucceeded, StartTime: at(t, "2020-01-12T01:00Z"), RunID: 2},
		{Instance: "2020-01-13T00:00Z", Cluster: "c2", Status: domain.StatusSucceeded, StartTime: at(t, "2020-01-13T01:00Z"), RunID: 0},
	}
}

func instanceNames(instances []domain.Instance) []string {
	names := make([]string, 0, len(instances))
	for _, i := range instances {
		names = append(names, i.Instance)
	}
	return names
}

func TestGetStatus(t *testing.T) {
	t.Run("it filters, sorts and paginates instances in the default window", func(t *testing.T) {
		f := setup(t)
		f.backend.Impl.GetStatus = func(context.Context, *domain.Entity, domain.TimeWindow, []domain.LifeCycle) (domain.InstancesResult, error) {
			return domain.InstancesResult{Message: "ok", Instances: f.history(t)}, nil
		}

		actual, err := f.testee.GetStatus(context.Background(), instances.InstanceQuery{
			Type: "FEED", Entity: "clicks", Colo: "tokyo",
			FilterBy: "status:succeeded,cluster:c1", OrderBy: "startTime", NumResults: 1,
		})
		if err != nil {
			t.Fatal(err)
		}
		if actual.Message != "ok" {
			t.Errorf("message: %s", actual.Message)
		}
		if names := instanceNames(actual.Instances); !cmp.SliceEq(names, []string{"2020-01-12T00:00Z"}) {
			t.Errorf("instances: %v", names)
		}

		if f.backend.Calls.GetStatus.Times() != 1 {
			t.Fatalf("backend is called %d times", f.backend.Calls.GetStatus.Times())
		}
		call := f.backend.Calls.GetStatus[0]
		if call.Window.String() != "[2020-01-10T00:00Z, 2020-01-20T00:00Z]" {
			t.Errorf("window: %s", call.Window)
		}
		if !cmp.SliceEq(call.Lifecycles, []domain.LifeCycle{domain.Replication}) {
			t.Errorf("lifecycles: %v", call.Lifecycles)
		}
		if !cmp.SliceEq(f.selector.Calls.Select, []string{"tokyo"}) {
			t.Errorf("colo: %v", f.selector.Calls.Select)
		}
	})

	t.Run("empty result from backend is empty instances", func(t *testing.T) {
		f := setup(t)
		f.backend.Impl.GetStatus = func(context.Context, *domain.Entity, domain.TimeWindow, []domain.LifeCycle) (domain.InstancesResult, error) {
			return domain.InstancesResult{Message: "nothing"}, nil
		}
		actual, err := f.testee.GetInstances(context.Background(), instances.InstanceQuery{
			Type: "process", Entity: "aggregate", Colo: "tokyo",
		})
		if err != nil {
			t.Fatal(err)
		}
		if actual.Message != "nothing" || actual.Instances == nil || len(actual.Instances) != 0 {
			t.Errorf("unexpected result: %+v", actual)
		}
	})

	for name, testcase := range map[string]struct {
		when instances.InstanceQuery
		then error
	}{
		"unknown filter field": {
			when: instances.InstanceQuery{Type: "feed", Entity: "clicks", Colo: "tokyo", FilterBy: "owner:ads"},
			then: domain.ErrInvalidFilter,
		},
		"unknown sort field": {
			when: instances.InstanceQuery{Type: "feed", Entity: "clicks", Colo: "tokyo", OrderBy: "owner"},
			then: domain.ErrValidation,
		},
		"negative offset": {
			when: instances.InstanceQuery{Type: "feed", Entity: "clicks", Colo: "tokyo", Offset: -1},
			then: domain.ErrValidation,
		},
		"cluster entity": {
			when: instances.InstanceQuery{Type: "cluster", Entity: "c1", Colo: "tokyo"},
			then: domain.ErrUnschedulableEntity,
		},
		"lifecycle of other type": {
			when: instances.InstanceQuery{Type: "feed", Entity: "clicks", Colo: "tokyo", Lifecycles: []string{"EXECUTION"}},
			then: domain.ErrInvalidLifecycle,
		},
		"malformed start": {
			when: instances.InstanceQuery{Type: "feed", Entity: "clicks", Colo: "tokyo", Start: "2020-01-10"},
			then: domain.ErrInvalidDate,
		},
		"start after end": {
			when: instances.InstanceQuery{Type: "feed", Entity: "clicks", Colo: "tokyo", Start: "2020-01-15T00:00Z", End: "2020-01-14T00:00Z"},
			then: domain.ErrInvalidWindow,
		},
		"missing entity": {
			when: instances.InstanceQuery{Type: "feed", Entity: "unknown", Colo: "tokyo"},
			then: domain.ErrNotFound,
		},
		"empty entity name": {
			when: instances.InstanceQuery{Type: "feed", Colo: "tokyo"},
			then: domain.ErrValidation,
		},
	} {
		t.Run(name+" is rejected before backend access", func(t *testing.T) {
			f := setup(t)
			_, err := f.testee.GetStatus(context.Background(), testcase.when)
			if !errors.Is(err, testcase.then) {
				t.Errorf("unexpected error: %v", err)
			}
			if f.backend.Calls.GetStatus.Times() != 0 {
				t.Error("backend is called")
			}
		})
	}
}

func TestGetRunningInstances(t *testing.T) {
	t.Run("it sorts running instances", func(t *testing.T) {
		f := setup(t)
		f.backend.Impl.GetRunningInstances = func(_ context.Context, e *domain.Entity, lcs []domain.LifeCycle) (domain.InstancesResult, error) {
			if e.Name != "aggregate" || !cmp.SliceEq(lcs, []domain.LifeCycle{domain.Execution}) {
				t.Errorf("unexpected call: %s, %v", e.Name, lcs)
			}
			return domain.InstancesResult{Instances: f.history(t)}, nil
		}
		actual, err := f.testee.GetRunningInstances(context.Background(), instances.InstanceQuery{
			Type: "process", Entity: "aggregate", Colo: "tokyo", OrderBy: "cluster", SortOrder: "desc", Offset: 2,
		})
		if err != nil {
			t.Fatal(err)
		}
		// c2, c1, c1, C1 -> skip 2
		expected := []string{"2020-01-11T00:00Z", "2020-01-12T00:00Z"}
		if names := instanceNames(actual.Instances); !cmp.SliceEq(names, expected) {
			t.Errorf("instances: %v, expected: %v", names, expected)
		}
	})

	t.Run("backend failure is ErrBackend and counted", func(t *testing.T) {
		f := setup(t)
		f.backend.Impl.GetRunningInstances = func(context.Context, *domain.Entity, []domain.LifeCycle) (domain.InstancesResult, error) {
			return domain.InstancesResult{}, errors.New("connection refused")
		}
		_, err := f.testee.GetRunningInstances(context.Background(), instances.InstanceQuery{
			Type: "feed", Entity: "clicks", Colo: "tokyo",
		})
		if !errors.Is(err, domain.ErrBackend) || !strings.Contains(err.Error(), "connection refused") {
			t.Errorf("unexpected error: %v", err)
		}

		expected := `
# HELP knitfleet_operations_total Number of instance and entity operations, by operation and result.
# TYPE knitfleet_operations_total counter
knitfleet_operations_total{operation="getRunningInstances",result="backend"} 1
`
		if err := testutil.GatherAndCompare(
			f.metrics.Registry(), strings.NewReader(expected), "knitfleet_operations_total",
		); err != nil {
			t.Error(err)
		}
	})
}

func TestGetSummary(t *testing.T) {
	f := setup(t)
	f.backend.Impl.GetSummary = func(context.Context, *domain.Entity, domain.TimeWindow, []domain.LifeCycle) (domain.InstancesSummaryResult, error) {
		return domain.InstancesSummaryResult{Message: "summary"}, nil
	}

	actual, err := f.testee.GetSummary(context.Background(), instances.InstanceQuery{
		Type: "feed", Entity: "clicks", Colo: "tokyo", Start: "2020-01-15T00:00Z", Lifecycles: []string{"eviction"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if actual.Message != "summary" || actual.Summaries == nil {
		t.Errorf("unexpected result: %+v", actual)
	}
	call := f.backend.Calls.GetSummary[0]
	if call.Window.String() != "[2020-01-15T00:00Z, 2020-01-20T00:00Z]" {
		t.Errorf("window: %s", call.Window)
	}
	if !cmp.SliceEq(call.Lifecycles, []domain.LifeCycle{domain.Eviction}) {
		t.Errorf("lifecycles: %v", call.Lifecycles)
	}
}

func TestGetLogs(t *testing.T) {
	for name, testcase := range map[string]struct {
		colo  string
		runID int
		then  []string
	}{
		"log locations of the run of each instance": {
			colo: "tokyo", runID: -1,
			then: []string{
				"https://logs.example.com/clicks/2020-01-10T00:00Z/0",
				"https://logs.example.com/clicks/2020-01-11T00:00Z/1",
			},
		},
		"log locations of the requested run": {
			colo: "tokyo", runID: 3,
			then: []string{
				"https://logs.example.com/clicks/2020-01-10T00:00Z/3",
				"https://logs.example.com/clicks/2020-01-11T00:00Z/3",
			},
		},
		"colo without log template leaves log locations empty": {
			colo: "osaka", runID: -1,
			then: []string{"", ""},
		},
		"colo of each instance is found from its cluster for all colos": {
			colo: "*", runID: -1,
			then: []string{
				"https://logs.example.com/clicks/2020-01-10T00:00Z/0",
				"https://logs.example.com/clicks/2020-01-11T00:00Z/1",
			},
		},
	} {
		t.Run(name, func(t *testing.T) {
			f := setup(t)
			f.backend.Impl.GetStatus = func(context.Context, *domain.Entity, domain.TimeWindow, []domain.LifeCycle) (domain.InstancesResult, error) {
				return domain.InstancesResult{Instances: f.history(t)}, nil
			}
			actual, err := f.testee.GetLogs(context.Background(), instances.InstanceQuery{
				Type: "feed", Entity: "clicks", Colo: testcase.colo, NumResults: 2,
			}, testcase.runID)
			if err != nil {
				t.Fatal(err)
			}
			locations := []string{}
			for _, i := range actual.Instances {
				locations = append(locations, i.LogFile)
			}
			if !cmp.SliceEq(locations, testcase.then) {
				t.Errorf("log files: actual = %v, expected = %v", locations, testcase.then)
			}
		})
	}
}

func TestGetInstanceParams(t *testing.T) {
	t.Run("window starts from the requested start and ends now", func(t *testing.T) {
		f := setup(t)
		f.backend.Impl.GetInstanceParams = func(context.Context, *domain.Entity, domain.TimeWindow, []domain.LifeCycle) (domain.InstancesResult, error) {
			return domain.InstancesResult{Instances: []domain.Instance{
				{Instance: "2020-01-15T00:00Z", Params: map[string]string{"queue": "default"}},
			}}, nil
		}
		actual, err := f.testee.GetInstanceParams(context.Background(), instances.InstanceQuery{
			Type: "process", Entity: "aggregate", Colo: "tokyo",
			Start: "2020-01-15T00:00Z", End: "2020-01-16T00:00Z",
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(actual.Instances) != 1 || actual.Instances[0].Params["queue"] != "default" {
			t.Errorf("unexpected result: %+v", actual)
		}
		if w := f.backend.Calls.GetInstanceParams[0].Window; w.String() != "[2020-01-15T00:00Z, 2020-01-20T00:00Z]" {
			t.Errorf("window: %s", w)
		}
	})

	t.Run("more than one lifecycle is rejected", func(t *testing.T) {
		f := setup(t)
		_, err := f.testee.GetInstanceParams(context.Background(), instances.InstanceQuery{
			Type: "feed", Entity: "clicks", Colo: "tokyo", Lifecycles: []string{"EVICTION", "REPLICATION"},
		})
		if !errors.Is(err, domain.ErrInvalidLifecycle) {
			t.Errorf("unexpected error: %v", err)
		}
		if f.backend.Calls.GetInstanceParams.Times() != 0 {
			t.Error("backend is called")
		}
	})
}

func TestInstanceActions(t *testing.T) {
	type call func(*instances.Service, context.Context, instances.InstanceAction) (domain.InstancesResult, error)

	for name, testcase := range map[string]struct {
		call   call
		action audit.Action
		calls  func(*mock.Backend) mock.CallLog[mock.ActionCall]
		set    func(*mock.Backend, func(context.Context, *domain.Entity, domain.TimeWindow, domain.Properties, []domain.LifeCycle) (domain.InstancesResult, error))
	}{
		"kill": {
			call:   (*instances.Service).KillInstance,
			action: audit.InstanceKill,
			calls:  func(b *mock.Backend) mock.CallLog[mock.ActionCall] { return b.Calls.KillInstances },
			set: func(b *mock.Backend, f func(context.Context, *domain.Entity, domain.TimeWindow, domain.Properties, []domain.LifeCycle) (domain.InstancesResult, error)) {
				b.Impl.KillInstances = f
			},
		},
		"suspend": {
			call:   (*instances.Service).SuspendInstance,
			action: audit.InstanceSuspend,
			calls:  func(b *mock.Backend) mock.CallLog[mock.ActionCall] { return b.Calls.SuspendInstances },
			set: func(b *mock.Backend, f func(context.Context, *domain.Entity, domain.TimeWindow, domain.Properties, []domain.LifeCycle) (domain.InstancesResult, error)) {
				b.Impl.SuspendInstances = f
			},
		},
		"resume": {
			call:   (*instances.Service).ResumeInstance,
			action: audit.InstanceResume,
			calls:  func(b *mock.Backend) mock.CallLog[mock.ActionCall] { return b.Calls.ResumeInstances },
			set: func(b *mock.Backend, f func(context.Context, *domain.Entity, domain.TimeWindow, domain.Properties, []domain.LifeCycle) (domain.InstancesResult, error)) {
				b.Impl.ResumeInstances = f
			},
		},
		"rerun": {
			call:   (*instances.Service).ReRunInstance,
			action: audit.InstanceRerun,
			calls:  func(b *mock.Backend) mock.CallLog[mock.ActionCall] { return b.Calls.ReRunInstances },
			set: func(b *mock.Backend, f func(context.Context, *domain.Entity, domain.TimeWindow, domain.Properties, []domain.LifeCycle) (domain.InstancesResult, error)) {
				b.Impl.ReRunInstances = f
			},
		},
	} {
		t.Run(name+" dispatches with props after audit", func(t *testing.T) {
			f := setup(t)
			testcase.set(f.backend, func(context.Context, *domain.Entity, domain.TimeWindow, domain.Properties, []domain.LifeCycle) (domain.InstancesResult, error) {
				if len(f.sink.records) != 1 {
					t.Error("backend is called before audit")
				}
				return domain.InstancesResult{Message: "done"}, nil
			})

			actual, err := testcase.call(
				f.testee, audit.WithActor(context.Background(), "alice"),
				instances.InstanceAction{
					Type: "feed", Entity: "clicks", Colo: "tokyo",
					Start: "2020-01-12T00:00Z", End: "2020-01-13T00:00Z",
					Props: domain.Properties{"reason": "bad input"},
				},
			)
			if err != nil {
				t.Fatal(err)
			}
			if actual.Message != "done" || actual.Instances == nil {
				t.Errorf("unexpected result: %+v", actual)
			}

			calls := testcase.calls(f.backend)
			if calls.Times() != 1 {
				t.Fatalf("backend is called %d times", calls.Times())
			}
			if calls[0].Props["reason"] != "bad input" {
				t.Errorf("props: %v", calls[0].Props)
			}
			if calls[0].Window.String() != "[2020-01-12T00:00Z, 2020-01-13T00:00Z]" {
				t.Errorf("window: %s", calls[0].Window)
			}
			if rec := f.sink.records[0]; rec.Action != testcase.action || rec.Actor != "alice" || rec.EntityName != "clicks" {
				t.Errorf("audit: %+v", rec)
			}
		})
	}

	t.Run("unknown lifecycle is rejected without audit", func(t *testing.T) {
		f := setup(t)
		_, err := f.testee.KillInstance(context.Background(), instances.InstanceAction{
			Type: "feed", Entity: "clicks", Colo: "tokyo", Lifecycles: []string{"cleanup"},
		})
		if !errors.Is(err, domain.ErrInvalidLifecycle) {
			t.Errorf("unexpected error: %v", err)
		}
		if len(f.sink.records) != 0 {
			t.Errorf("audit: %+v", f.sink.records)
		}
	})
}

func TestEntityActions(t *testing.T) {
	t.Run("suspending inactive entity is NotScheduled", func(t *testing.T) {
		f := setup(t)
		f.backend.Impl.IsActive = func(context.Context, *domain.Entity) (bool, error) { return false, nil }
		_, err := f.testee.Suspend(context.Background(), instances.EntityAction{Type: "feed", Entity: "clicks", Colo: "tokyo"})
		if !errors.Is(err, domain.ErrNotScheduled) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("resume of active entity succeeds", func(t *testing.T) {
		f := setup(t)
		f.backend.Impl.IsActive = func(context.Context, *domain.Entity) (bool, error) { return true, nil }
		f.backend.Impl.Resume = func(context.Context, *domain.Entity) error { return nil }
		actual, err := f.testee.Resume(context.Background(), instances.EntityAction{Type: "process", Entity: "aggregate", Colo: "tokyo"})
		if err != nil {
			t.Fatal(err)
		}
		if actual.Status != domain.Succeeded {
			t.Errorf("unexpected result: %+v", actual)
		}
	})

	t.Run("schedule passes the stored entity to the backend", func(t *testing.T) {
		f := setup(t)
		f.backend.Impl.Schedule = func(context.Context, *domain.Entity) error { return nil }
		if _, err := f.testee.Schedule(context.Background(), instances.EntityAction{Type: "feed", Entity: "views", Colo: "tokyo"}); err != nil {
			t.Fatal(err)
		}
		if f.backend.Calls.Schedule.Times() != 1 || f.backend.Calls.Schedule[0].Entity.Name != "views" {
			t.Errorf("calls: %+v", f.backend.Calls.Schedule)
		}
	})

	t.Run("unknown type is rejected", func(t *testing.T) {
		f := setup(t)
		if _, err := f.testee.Schedule(context.Background(), instances.EntityAction{Type: "dataset", Entity: "views", Colo: "tokyo"}); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestSubmitAndSchedule(t *testing.T) {
	impressions := func(t *testing.T) *domain.Entity {
		return &domain.Entity{
			Type: domain.Feed, Name: "impressions",
			Frequency: domain.Frequency{Unit: domain.Hours, Multiplier: 1},
			Clusters: []domain.ClusterValidity{
				{Name: "c1", Start: date(t, "2020-01-01T00:00Z"), End: date(t, "2021-01-01T00:00Z")},
			},
		}
	}

	t.Run("it stores and schedules the entity", func(t *testing.T) {
		f := setup(t)
		f.backend.Impl.Schedule = func(context.Context, *domain.Entity) error { return nil }

		actual, err := f.testee.SubmitAndSchedule(context.Background(), "feed", "tokyo", impressions(t))
		if err != nil {
			t.Fatal(err)
		}
		if actual.Status != domain.Succeeded {
			t.Errorf("unexpected result: %+v", actual)
		}
		if _, err := f.store.Get(context.Background(), domain.Feed, "impressions"); err != nil {
			t.Errorf("not stored: %v", err)
		}
		if rec := f.sink.records[0]; rec.EntityName != audit.StreamedData || rec.Action != audit.SubmitAndSchedule {
			t.Errorf("audit: %+v", rec)
		}
	})

	t.Run("type in path should match the definition", func(t *testing.T) {
		f := setup(t)
		_, err := f.testee.SubmitAndSchedule(context.Background(), "process", "tokyo", impressions(t))
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("unexpected error: %v", err)
		}
		if f.backend.Calls.Schedule.Times() != 0 {
			t.Error("backend is called")
		}
	})

	t.Run("submitting twice is conflict", func(t *testing.T) {
		f := setup(t)
		f.backend.Impl.Schedule = func(context.Context, *domain.Entity) error { return nil }
		if _, err := f.testee.SubmitAndSchedule(context.Background(), "", "tokyo", impressions(t)); err != nil {
			t.Fatal(err)
		}
		if _, err := f.testee.SubmitAndSchedule(context.Background(), "", "tokyo", impressions(t)); !errors.Is(err, domain.ErrConflict) {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestGetEntitySummary(t *testing.T) {
	t.Run("it summarizes entities on the cluster through the colo of the cluster", func(t *testing.T) {
		f := setup(t)
		f.backend.Impl.IsActive = func(context.Context, *domain.Entity) (bool, error) { return true, nil }
		f.backend.Impl.IsSuspended = func(context.Context, *domain.Entity) (bool, error) { return false, nil }
		f.backend.Impl.GetStatus = func(context.Context, *domain.Entity, domain.TimeWindow, []domain.LifeCycle) (domain.InstancesResult, error) {
			return domain.InstancesResult{Instances: f.history(t)}, nil
		}

		actual, err := f.testee.GetEntitySummary(context.Background(), instances.EntitySummaryQuery{
			Type: "feed", Cluster: "c1", Tags: []string{"owner:ads"}, Fields: "TAGS", NumInstances: 2,
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(actual.Entities) != 1 {
			t.Fatalf("entities: %+v", actual.Entities)
		}
		s := actual.Entities[0]
		if s.Name != "clicks" || s.Status != domain.EntityRunning {
			t.Errorf("summary: %+v", s)
		}
		if !cmp.SliceEq(s.Tags, []string{"owner:ads"}) || len(s.Pipelines) != 0 {
			t.Errorf("fields: %v, %v", s.Tags, s.Pipelines)
		}
		if len(s.Instances) != 2 {
			t.Errorf("instances: %v", instanceNames(s.Instances))
		}
		if !cmp.SliceEq(f.selector.Calls.Select, []string{"tokyo"}) {
			t.Errorf("colo: %v", f.selector.Calls.Select)
		}
		if w := f.backend.Calls.GetStatus[0].Window; w.String() != "[2020-01-18T00:00Z, 2020-01-20T00:00Z]" {
			t.Errorf("window: %s", w)
		}
	})

	t.Run("entities are paginated in name order", func(t *testing.T) {
		f := setup(t)
		f.backend.Impl.IsActive = func(context.Context, *domain.Entity) (bool, error) { return false, nil }
		f.backend.Impl.GetStatus = func(context.Context, *domain.Entity, domain.TimeWindow, []domain.LifeCycle) (domain.InstancesResult, error) {
			return domain.InstancesResult{}, nil
		}

		actual, err := f.testee.GetEntitySummary(context.Background(), instances.EntitySummaryQuery{
			Type: "feed", Cluster: "c1", SortOrder: "desc", ResultsPerPage: 1,
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(actual.Entities) != 1 || actual.Entities[0].Name != "views" || actual.Entities[0].Status != domain.EntitySubmitted {
			t.Errorf("entities: %+v", actual.Entities)
		}
	})

	for name, testcase := range map[string]struct {
		when instances.EntitySummaryQuery
		then error
	}{
		"missing cluster":        {when: instances.EntitySummaryQuery{Type: "feed"}, then: domain.ErrValidation},
		"unknown cluster":        {when: instances.EntitySummaryQuery{Type: "feed", Cluster: "c9"}, then: domain.ErrNotFound},
		"cluster type":           {when: instances.EntitySummaryQuery{Type: "cluster", Cluster: "c1"}, then: domain.ErrUnschedulableEntity},
		"unknown order":          {when: instances.EntitySummaryQuery{Type: "feed", Cluster: "c1", OrderBy: "owner"}, then: domain.ErrValidation},
		"negative numInstances":  {when: instances.EntitySummaryQuery{Type: "feed", Cluster: "c1", NumInstances: -1}, then: domain.ErrValidation},
		"malformed window start": {when: instances.EntitySummaryQuery{Type: "feed", Cluster: "c1", Start: "yesterday"}, then: domain.ErrInvalidDate},
	} {
		t.Run(name+" is rejected", func(t *testing.T) {
			f := setup(t)
			if _, err := f.testee.GetEntitySummary(context.Background(), testcase.when); !errors.Is(err, testcase.then) {
				t.Errorf("unexpected error: %v", err)
			}
			if f.backend.Calls.IsActive.Times() != 0 {
				t.Error("backend is called")
			}
		})
	}
}
