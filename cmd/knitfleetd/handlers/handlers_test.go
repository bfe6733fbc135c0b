package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	httptestutil "github.com/opst/knitfleet/internal/testutils/http"
	"github.com/opst/knitfleet/pkg/action"
	"github.com/opst/knitfleet/pkg/audit"
	"github.com/opst/knitfleet/pkg/backend/mock"
	"github.com/opst/knitfleet/pkg/domain"
	"github.com/opst/knitfleet/pkg/instances"
	"github.com/opst/knitfleet/pkg/logs"
	"github.com/opst/knitfleet/pkg/store/memory"
	"github.com/opst/knitfleet/pkg/utils/try"
	"github.com/opst/knitfleet/pkg/window"
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

type fixture struct {
	svc     *instances.Service
	backend *mock.Backend
	store   *memory.Store
	sink    *sink
}

func setup(t *testing.T) fixture {
	validity := []domain.ClusterValidity{
		{Name: "c1", Start: date(t, "2020-01-01T00:00Z"), End: date(t, "2021-01-01T00:00Z")},
	}
	entities := memory.New(
		&domain.Entity{
			Type: domain.Feed, Name: "clicks", Clusters: validity,
			Frequency: domain.Frequency{Unit: domain.Days, Multiplier: 1},
			Tags:      []string{"owner:ads"},
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

	tmpl := try.To(logs.NewTemplateResolver(
		"https://logs.example.com/{{ .EntityName }}/{{ .Instance }}/{{ .RunID }}",
	)).OrFatal(t)

	dispatcher := action.New(entities, selector, s, action.WithWindowResolver(windows))
	svc := instances.New(
		entities, selector, dispatcher,
		instances.WithWindowResolver(windows),
		instances.WithLogResolvers(logs.ByColo{"tokyo": tmpl}),
	)
	return fixture{svc: svc, backend: be, store: entities, sink: s}
}

func history(t *testing.T) []domain.Instance {
	at := func(s string) *time.Time {
		d := date(t, s)
		return &d
	}
	return []domain.Instance{
		{Instance: "2020-01-10T00:00Z", Cluster: "c1", Status: domain.StatusSucceeded, StartTime: at("2020-01-10T01:00Z"), RunID: 0},
		{Instance: "2020-01-11T00:00Z", Cluster: "c1", Status: domain.StatusFailed, StartTime: at("2020-01-11T01:00Z"), RunID: 1},
		{Instance: "2020-01-12T00:00Z", Cluster: "c2", Status: domain.StatusSucceeded, StartTime: at("2020-01-12T01:00Z"), RunID: 2},
	}
}

// call invokes handler as it is routed at route.
func call(
	t *testing.T, handler echo.HandlerFunc,
	method string, route string, target string, body string,
) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	var c echo.Context
	var rec *httptest.ResponseRecorder
	switch method {
	case http.MethodGet:
		c, rec = httptestutil.Get(e, target)
	case http.MethodPost:
		c, rec = httptestutil.Post(e, target, strings.NewReader(body), httptestutil.ContentType("application/yaml"))
	default:
		t.Fatalf("unsupported method: %s", method)
	}

	// resolve path parameters as the router does.
	path := strings.SplitN(target, "?", 2)[0]
	routeParts := strings.Split(route, "/")
	pathParts := strings.Split(path, "/")
	if len(routeParts) != len(pathParts) {
		t.Fatalf("target %s does not match route %s", target, route)
	}
	names, values := []string{}, []string{}
	for i, p := range routeParts {
		if name, ok := strings.CutPrefix(p, ":"); ok {
			names = append(names, name)
			values = append(values, pathParts[i])
		}
	}
	c.SetParamNames(names...)
	c.SetParamValues(values...)

	return rec, handler(c)
}

func statusOf(err error) int {
	httperr := new(echo.HTTPError)
	if errors.As(err, &httperr) {
		return httperr.Code
	}
	return 0
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("response is not JSON: %s (%s)", err, rec.Body.String())
	}
	return v
}
