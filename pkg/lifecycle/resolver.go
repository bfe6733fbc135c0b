// Package lifecycle resolves which LifeCycles an instance operation applies to.
package lifecycle

import (
	"fmt"

	"github.com/opst/knitfleet/pkg/domain"
	kstrings "github.com/opst/knitfleet/pkg/utils/strings"
)

// DefaultFor returns the lifecycle used when a request does not specify any.
//
// Types without default (Cluster) return nil.
func DefaultFor(t domain.EntityType) []domain.LifeCycle {
	switch t {
	case domain.Process:
		return []domain.LifeCycle{domain.Execution}
	case domain.Feed:
		return []domain.LifeCycle{domain.Replication}
	default:
		return nil
	}
}

// Resolve returns lifecycles which an operation on entities of type t is scoped to.
//
// When requested is empty, it returns the default for t.
// Otherwise, every requested lifecycle should be bound to t; if not, it fails with ErrInvalidLifecycle.
func Resolve(t domain.EntityType, requested []domain.LifeCycle) ([]domain.LifeCycle, error) {
	if len(requested) == 0 {
		return DefaultFor(t), nil
	}
	for _, lc := range requested {
		if lc.Tag().Type() != t {
			return nil, domain.NewInvalidLifecycleError(lc, t)
		}
	}
	resolved := make([]domain.LifeCycle, len(requested))
	copy(resolved, requested)
	return resolved, nil
}

// Parse converts comma separated lifecycle names.
//
// Empty text gives empty lifecycles.
func Parse(text string) ([]domain.LifeCycle, error) {
	return ParseAll(kstrings.SplitIfNotEmpty(text, ","))
}

func ParseAll(names []string) ([]domain.LifeCycle, error) {
	lcs := make([]domain.LifeCycle, 0, len(names))
	for _, n := range names {
		lc, err := domain.AsLifeCycle(n)
		if err != nil {
			return nil, err
		}
		lcs = append(lcs, lc)
	}
	return lcs, nil
}

// CheckSchedulable fails with ErrUnschedulableEntity unless t is Feed or Process.
func CheckSchedulable(t domain.EntityType) error {
	if !t.Schedulable() {
		return domain.NewUnschedulableError(t)
	}
	return nil
}

// RequireSingle fails unless lcs has exactly one lifecycle.
func RequireSingle(lcs []domain.LifeCycle) (domain.LifeCycle, error) {
	if len(lcs) != 1 {
		return "", fmt.Errorf(
			"%w: exactly one lifecycle is required, but %v", domain.ErrInvalidLifecycle, lcs,
		)
	}
	return lcs[0], nil
}
