// Package memory is an in-process entity store.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/opst/knitfleet/pkg/domain"
	"github.com/opst/knitfleet/pkg/store"
)

type Store struct {
	m        sync.RWMutex
	entities map[domain.EntityKey]*domain.Entity
}

func New(entities ...*domain.Entity) *Store {
	s := &Store{entities: map[domain.EntityKey]*domain.Entity{}}
	for _, e := range entities {
		s.entities[e.Key()] = e.Clone()
	}
	return s
}

var _ store.Interface = &Store{}

func (s *Store) Get(_ context.Context, t domain.EntityType, name string) (*domain.Entity, error) {
	s.m.RLock()
	defer s.m.RUnlock()
	e, ok := s.entities[domain.EntityKey{Type: t, Name: name}]
	if !ok {
		return nil, domain.NewNotFoundError(t, name)
	}
	return e.Clone(), nil
}

func (s *Store) Submit(_ context.Context, entity *domain.Entity) error {
	if err := entity.Validate(); err != nil {
		return err
	}
	s.m.Lock()
	defer s.m.Unlock()
	if _, ok := s.entities[entity.Key()]; ok {
		return domain.NewConflictError(entity.Type, entity.Name)
	}
	s.entities[entity.Key()] = entity.Clone()
	return nil
}

func (s *Store) List(_ context.Context, q store.ListQuery) ([]*domain.Entity, error) {
	q, err := q.Normalize()
	if err != nil {
		return nil, err
	}

	s.m.RLock()
	selected := []*domain.Entity{}
	for k, e := range s.entities {
		if k.Type != q.Type {
			continue
		}
		if q.Cluster != "" && !slices.Contains(e.ClusterNames(), q.Cluster) {
			continue
		}
		if !hasAll(e.Tags, q.Tags) {
			continue
		}
		selected = append(selected, e.Clone())
	}
	s.m.RUnlock()

	slices.SortFunc(selected, func(a, b *domain.Entity) int {
		c := strings.Compare(a.Name, b.Name)
		if q.OrderBy == "type" {
			c = strings.Compare(string(a.Type), string(b.Type))
			if c == 0 {
				c = strings.Compare(a.Name, b.Name)
			}
		}
		if q.SortOrder == domain.Desc {
			return -c
		}
		return c
	})

	if len(selected) <= q.Offset {
		return []*domain.Entity{}, nil
	}
	selected = selected[q.Offset:]
	if 0 < q.Limit && q.Limit < len(selected) {
		selected = selected[:q.Limit]
	}
	return selected, nil
}

func hasAll(tags []string, required []string) bool {
	for _, r := range required {
		if !slices.Contains(tags, r) {
			return false
		}
	}
	return true
}
