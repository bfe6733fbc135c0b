package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/opst/knitfleet/pkg/domain"
	kstrings "github.com/opst/knitfleet/pkg/utils/strings"
)

// ParseFilterBy converts "field:value,field:value" into criteria.
//
// Field names are case-insensitive. Empty text gives empty criteria.
// Unknown field names or pairs without ":" fail with ErrInvalidFilter.
func ParseFilterBy(filterBy string) (domain.FilterCriteria, error) {
	criteria := domain.FilterCriteria{}
	for _, pair := range kstrings.SplitIfNotEmpty(filterBy, ",") {
		k, v, ok := kstrings.CutPair(pair, ":")
		if !ok {
			return nil, domain.NewInvalidFilterError(
				fmt.Sprintf("'%s' is not in form of field:value", pair),
			)
		}
		field := domain.FilterField(strings.ToLower(k))
		if _, ok := predicateBuilders[field]; !ok {
			return nil, domain.NewInvalidFilterError(fmt.Sprintf("unknown field: %s", k))
		}
		criteria[field] = v
	}
	return criteria, nil
}

type predicate func(domain.Instance) bool

// field name -> predicate builder.
//
// Builders validate values. Failures are reported before any instance is scanned.
var predicateBuilders = map[domain.FilterField]func(value string) (predicate, error){
	domain.FilterStatus: func(value string) (predicate, error) {
		status, err := domain.AsWorkflowStatus(value)
		if err != nil {
			return nil, domain.NewInvalidFilterError(err.Error())
		}
		return func(i domain.Instance) bool {
			return strings.EqualFold(string(i.Status), string(status))
		}, nil
	},
	domain.FilterCluster: func(value string) (predicate, error) {
		return func(i domain.Instance) bool {
			return strings.EqualFold(i.Cluster, value)
		}, nil
	},
	domain.FilterSourceCluster: func(value string) (predicate, error) {
		return func(i domain.Instance) bool {
			return strings.EqualFold(i.SourceCluster, value)
		}, nil
	},
	domain.FilterStartedAfter: func(value string) (predicate, error) {
		after, err := domain.ParseDate(value)
		if err != nil {
			return nil, fmt.Errorf("%w: startedAfter: %w", domain.ErrInvalidFilter, err)
		}
		return func(i domain.Instance) bool {
			return !timeKey(i.StartTime).Before(after)
		}, nil
	},
}

// evaluation order of predicates.
var fieldOrder = []domain.FilterField{
	domain.FilterStatus, domain.FilterCluster,
	domain.FilterSourceCluster, domain.FilterStartedAfter,
}

// Filter keeps instances matching every criterion.
//
// The zero value keeps everything.
type Filter struct {
	predicates []predicate
}

// NewFilter validates criteria and builds a Filter.
//
// Criteria with empty value are ignored.
func NewFilter(criteria domain.FilterCriteria) (Filter, error) {
	for field := range criteria {
		if _, ok := predicateBuilders[field]; !ok {
			return Filter{}, domain.NewInvalidFilterError(fmt.Sprintf("unknown field: %s", field))
		}
	}

	f := Filter{}
	for _, field := range fieldOrder {
		value, ok := criteria[field]
		if !ok || value == "" {
			continue
		}
		pred, err := predicateBuilders[field](value)
		if err != nil {
			return Filter{}, err
		}
		f.predicates = append(f.predicates, pred)
	}
	return f, nil
}

// Apply returns a new slice of instances which match all predicates.
func (f Filter) Apply(instances []domain.Instance) []domain.Instance {
	kept := make([]domain.Instance, 0, len(instances))
NEXT:
	for _, i := range instances {
		for _, pred := range f.predicates {
			if !pred(i) {
				continue NEXT
			}
		}
		kept = append(kept, i)
	}
	return kept
}

var epoch = time.Unix(0, 0).UTC()

// missing time compares as epoch-zero.
func timeKey(t *time.Time) time.Time {
	if t == nil {
		return epoch
	}
	return *t
}
