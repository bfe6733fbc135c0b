// Package storetest is a conformance test suite of entity stores.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opst/knitfleet/pkg/cmp"
	"github.com/opst/knitfleet/pkg/domain"
	"github.com/opst/knitfleet/pkg/store"
)

type Store = store.Interface

func entity(t domain.EntityType, name string, clusters []string, tags ...string) *domain.Entity {
	e := &domain.Entity{
		Type: t, Name: name,
		Frequency: domain.Frequency{Unit: domain.Days, Multiplier: 1},
		Tags:      tags,
	}
	for _, c := range clusters {
		e.Clusters = append(e.Clusters, domain.ClusterValidity{
			Name:  c,
			Start: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
		})
	}
	return e
}

func names(es []*domain.Entity) []string {
	ns := make([]string, 0, len(es))
	for _, e := range es {
		ns = append(ns, e.Name)
	}
	return ns
}

// Run tests a store created by newStore. newStore is called once per subtest.
func Run(t *testing.T, newStore func(*testing.T) Store) {
	ctx := context.Background()

	t.Run("submitted entity can be got", func(t *testing.T) {
		s := newStore(t)
		e := entity(domain.Feed, "clicks", []string{"cluster-a"}, "owner=alice")
		e.Workflow = &domain.WorkflowSpec{Image: "example.com/clicks:1", Env: map[string]string{"K": "V"}}
		if err := s.Submit(ctx, e); err != nil {
			t.Fatal(err)
		}

		actual, err := s.Get(ctx, domain.Feed, "clicks")
		if err != nil {
			t.Fatal(err)
		}
		if actual.Name != "clicks" || actual.Type != domain.Feed ||
			!cmp.SliceEq(actual.ClusterNames(), []string{"cluster-a"}) ||
			!cmp.SliceEq(actual.Tags, []string{"owner=alice"}) ||
			actual.Frequency != e.Frequency {
			t.Errorf("unexpected entity: %+v", actual)
		}
		if actual.Workflow == nil || actual.Workflow.Image != "example.com/clicks:1" || actual.Workflow.Env["K"] != "V" {
			t.Errorf("unexpected workflow: %+v", actual.Workflow)
		}
	})

	t.Run("missing entity is not found", func(t *testing.T) {
		s := newStore(t)
		if err := s.Submit(ctx, entity(domain.Feed, "clicks", []string{"c"})); err != nil {
			t.Fatal(err)
		}
		if _, err := s.Get(ctx, domain.Process, "clicks"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("submitting twice is a conflict", func(t *testing.T) {
		s := newStore(t)
		if err := s.Submit(ctx, entity(domain.Process, "agg", []string{"c"})); err != nil {
			t.Fatal(err)
		}
		if err := s.Submit(ctx, entity(domain.Process, "agg", []string{"d"})); !errors.Is(err, domain.ErrConflict) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("invalid entity is not stored", func(t *testing.T) {
		s := newStore(t)
		if err := s.Submit(ctx, entity(domain.Process, "agg", nil)); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("unexpected error: %v", err)
		}
		if _, err := s.Get(ctx, domain.Process, "agg"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("list", func(t *testing.T) {
		s := newStore(t)
		for _, e := range []*domain.Entity{
			entity(domain.Feed, "b", []string{"cluster-a"}, "owner=alice", "tier=gold"),
			entity(domain.Feed, "a", []string{"cluster-b"}, "owner=alice"),
			entity(domain.Feed, "d", []string{"cluster-a", "cluster-b"}),
			entity(domain.Feed, "c", []string{"cluster-a"}, "owner=bob"),
			entity(domain.Process, "e", []string{"cluster-a"}, "owner=alice"),
		} {
			if err := s.Submit(ctx, e); err != nil {
				t.Fatal(err)
			}
		}

		for name, testcase := range map[string]struct {
			when store.ListQuery
			then []string
		}{
			"by type, ordered by name": {
				when: store.ListQuery{Type: domain.Feed},
				then: []string{"a", "b", "c", "d"},
			},
			"descending": {
				when: store.ListQuery{Type: domain.Feed, SortOrder: domain.Desc},
				then: []string{"d", "c", "b", "a"},
			},
			"on a cluster": {
				when: store.ListQuery{Type: domain.Feed, Cluster: "cluster-b"},
				then: []string{"a", "d"},
			},
			"with all tags": {
				when: store.ListQuery{Type: domain.Feed, Tags: []string{"owner=alice", "tier=gold"}},
				then: []string{"b"},
			},
			"with a tag": {
				when: store.ListQuery{Type: domain.Feed, Tags: []string{"owner=alice"}},
				then: []string{"a", "b"},
			},
			"paged": {
				when: store.ListQuery{Type: domain.Feed, Offset: 1, Limit: 2},
				then: []string{"b", "c"},
			},
			"offset beyond the end": {
				when: store.ListQuery{Type: domain.Feed, Offset: 10},
				then: []string{},
			},
		} {
			t.Run(name, func(t *testing.T) {
				actual, err := s.List(ctx, testcase.when)
				if err != nil {
					t.Fatal(err)
				}
				if !cmp.SliceEq(names(actual), testcase.then) {
					t.Errorf("actual = %v, expected = %v", names(actual), testcase.then)
				}
			})
		}

		for name, q := range map[string]store.ListQuery{
			"unknown orderBy":   {Type: domain.Feed, OrderBy: "owner"},
			"unknown type":      {Type: "dataset"},
			"negative offset":   {Type: domain.Feed, Offset: -1},
			"unknown sortOrder": {Type: domain.Feed, SortOrder: "up"},
		} {
			t.Run(name+" is rejected", func(t *testing.T) {
				if _, err := s.List(ctx, q); !errors.Is(err, domain.ErrValidation) {
					t.Errorf("unexpected error: %v", err)
				}
			})
		}
	})
}
