package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/opst/knitfleet/pkg/action"
	"github.com/opst/knitfleet/pkg/audit"
	"github.com/opst/knitfleet/pkg/auth"
	"github.com/opst/knitfleet/pkg/backend/mock"
	kdaemon "github.com/opst/knitfleet/pkg/configs/daemon"
	"github.com/opst/knitfleet/pkg/domain"
	"github.com/opst/knitfleet/pkg/instances"
	"github.com/opst/knitfleet/pkg/metrics"
	"github.com/opst/knitfleet/pkg/store/memory"
	"github.com/opst/knitfleet/pkg/utils/try"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type nopSink struct{}

func (nopSink) Record(context.Context, audit.Record) {}

func server(t *testing.T, mw ...echo.MiddlewareFunc) (*echo.Echo, *mock.Backend) {
	start := try.To(domain.ParseDate("2020-01-01T00:00Z")).OrFatal(t)
	entities := memory.New(&domain.Entity{
		Type: domain.Feed, Name: "clicks",
		Frequency: domain.Frequency{Unit: domain.Days, Multiplier: 1},
		Clusters:  []domain.ClusterValidity{{Name: "c1", Start: start, End: start.AddDate(100, 0, 0)}},
	})
	be := mock.New()
	be.Impl.GetStatus = func(context.Context, *domain.Entity, domain.TimeWindow, []domain.LifeCycle) (domain.InstancesResult, error) {
		return domain.InstancesResult{Message: "ok"}, nil
	}
	selector := mock.SelectorOf(be)
	m := metrics.New()
	svc := instances.New(
		entities, selector, action.New(entities, selector, nopSink{}),
		instances.WithMetrics(m),
	)

	e := echo.New()
	register(e, svc, m, mw...)
	return e, be
}

func serve(e *echo.Echo, method string, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRegister(t *testing.T) {
	t.Run("all operations are routed", func(t *testing.T) {
		e, _ := server(t)
		routes := map[string]bool{}
		for _, r := range e.Routes() {
			routes[r.Method+" "+r.Path] = true
		}
		for _, expected := range []string{
			"GET /api/instance/running/:type/:entity",
			"GET /api/instance/list/:type/:entity",
			"GET /api/instance/status/:type/:entity",
			"GET /api/instance/summary/:type/:entity",
			"GET /api/instance/logs/:type/:entity",
			"GET /api/instance/params/:type/:entity",
			"POST /api/instance/kill/:type/:entity",
			"POST /api/instance/suspend/:type/:entity",
			"POST /api/instance/resume/:type/:entity",
			"POST /api/instance/rerun/:type/:entity",
			"POST /api/entities/schedule/:type/:entity",
			"POST /api/entities/submitAndSchedule/:type",
			"POST /api/entities/suspend/:type/:entity",
			"POST /api/entities/resume/:type/:entity",
			"GET /api/entities/summary/:type",
			"GET /metrics",
		} {
			if !routes[expected] {
				t.Errorf("not routed: %s", expected)
			}
		}
	})

	t.Run("requests reach the service, and are measured", func(t *testing.T) {
		e, be := server(t)
		rec := serve(e, http.MethodGet, "/api/instance/status/feed/clicks?colo=tokyo", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status: %d, body: %s", rec.Code, rec.Body.String())
		}
		if be.Calls.GetStatus.Times() != 1 {
			t.Errorf("backend is called %d times", be.Calls.GetStatus.Times())
		}

		rec = serve(e, http.MethodGet, "/metrics", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status of metrics: %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `knitfleet_operations_total{operation="getStatus",result="success"} 1`) {
			t.Errorf("metrics: %s", rec.Body.String())
		}
	})

	t.Run("middlewares guard /api, but not /metrics", func(t *testing.T) {
		verifier := try.To(auth.NewVerifier([]byte("secret"))).OrFatal(t)
		e, be := server(t, auth.Middleware(verifier, true))

		if rec := serve(e, http.MethodGet, "/api/instance/status/feed/clicks?colo=tokyo", nil); rec.Code != http.StatusUnauthorized {
			t.Errorf("status without token: %d", rec.Code)
		}
		if be.Calls.GetStatus.Times() != 0 {
			t.Error("backend is called without token")
		}

		token := try.To(verifier.Sign("alice", time.Hour)).OrFatal(t)
		rec := serve(e, http.MethodGet, "/api/instance/status/feed/clicks?colo=tokyo", http.Header{
			"Authorization": []string{"Bearer " + token},
		})
		if rec.Code != http.StatusOK {
			t.Errorf("status with token: %d", rec.Code)
		}

		if rec := serve(e, http.MethodGet, "/metrics", nil); rec.Code != http.StatusOK {
			t.Errorf("status of metrics: %d", rec.Code)
		}
	})
}

func TestSeed(t *testing.T) {
	dir := t.TempDir()
	write := func(name string, content string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}
		return p
	}
	cluster := write("cluster.yaml", "type: cluster\nname: c1\ncolo: tokyo\n")
	feed := write("feed.yaml", `
type: feed
name: clicks
frequency: hours(1)
clusters:
  - cluster: c1
    start: 2020-01-01T00:00Z
    end: 2021-01-01T00:00Z
`)
	broken := write("broken.yaml", "type: dataset\nname: x\n")

	t.Run("it submits entities in files, and skips those already stored", func(t *testing.T) {
		core, logs := observer.New(zapcore.InfoLevel)
		s := memory.New(&domain.Entity{Type: domain.Cluster, Name: "c1", Colo: "osaka"})

		if err := seed(context.Background(), s, []string{cluster, feed}, zap.New(core)); err != nil {
			t.Fatal(err)
		}

		c := try.To(s.Get(context.Background(), domain.Cluster, "c1")).OrFatal(t)
		if c.Colo != "osaka" {
			t.Errorf("stored entity is overwritten: %+v", c)
		}
		f := try.To(s.Get(context.Background(), domain.Feed, "clicks")).OrFatal(t)
		if f.Frequency != (domain.Frequency{Unit: domain.Hours, Multiplier: 1}) {
			t.Errorf("unexpected feed: %+v", f)
		}
		if n := logs.FilterMessage("entity is already stored").Len(); n != 1 {
			t.Errorf("skips logged: %d", n)
		}
	})

	t.Run("it fails with the name of broken file", func(t *testing.T) {
		err := seed(context.Background(), memory.New(), []string{broken}, zap.NewNop())
		if !errors.Is(err, domain.ErrValidation) || !strings.Contains(err.Error(), "broken.yaml") {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("it fails when file is missing", func(t *testing.T) {
		err := seed(context.Background(), memory.New(), []string{filepath.Join(dir, "missing.yaml")}, zap.NewNop())
		if !errors.Is(err, os.ErrNotExist) {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestNewLocker(t *testing.T) {
	t.Run("without redis, it is in-process lock", func(t *testing.T) {
		l, closeLocker, err := newLocker(context.Background(), kdaemon.LockConfig{Driver: kdaemon.Memory}, zap.NewNop())
		if err != nil {
			t.Fatal(err)
		}
		defer closeLocker()
		if _, ok := l.(*action.KeyedMutex); !ok {
			t.Errorf("unexpected locker: %T", l)
		}
	})

	t.Run("when redis is unreachable, it fails", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _, err := newLocker(ctx, kdaemon.LockConfig{Driver: kdaemon.Redis, Addr: "127.0.0.1:1"}, zap.NewNop())
		if err == nil {
			t.Error("expected error, but got nil")
		}
	})
}

func TestNewAuditQueue(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	q, err := newAuditQueue(
		context.Background(), kdaemon.AuditConfig{Sink: kdaemon.Log, QueueSize: 10}, nil, metrics.New(), zap.New(core),
	)
	if err != nil {
		t.Fatal(err)
	}
	q.Record(context.Background(), audit.NewRecord("alice", "clicks", domain.Feed, audit.Scheduled))
	q.Close()

	if n := logs.Len(); n != 1 {
		t.Errorf("audit logs: %d", n)
	}
}

func TestClosers(t *testing.T) {
	order := []int{}
	var cl closers
	cl.add(func() { order = append(order, 1) })
	cl.add(func() { order = append(order, 2) })
	cl.add(func() { order = append(order, 3) })
	cl.close()

	if len(order) != 3 || order[0] != 3 || order[1] != 2 || order[2] != 1 {
		t.Errorf("unexpected order: %v", order)
	}
}
