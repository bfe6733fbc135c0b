package query

import (
	"fmt"
	"slices"
	"strings"

	"github.com/opst/knitfleet/pkg/domain"
)

var sortFields = map[string]domain.SortField{
	"status":    domain.SortStatus,
	"cluster":   domain.SortCluster,
	"starttime": domain.SortStartTime,
	"endtime":   domain.SortEndTime,
}

// ParseSort converts orderBy and sortOrder parameters.
//
// Empty orderBy means no sorting. Empty sortOrder is desc for time fields, asc for others.
func ParseSort(orderBy, sortOrder string) (domain.SortSpec, error) {
	orderBy = strings.TrimSpace(orderBy)
	if orderBy == "" {
		return domain.SortSpec{Field: domain.SortNone, Order: domain.Asc}, nil
	}
	field, ok := sortFields[strings.ToLower(orderBy)]
	if !ok {
		return domain.SortSpec{}, domain.NewValidationError(
			fmt.Sprintf("orderBy: unsupported field '%s'", orderBy),
		)
	}

	switch o := domain.SortOrder(strings.ToLower(strings.TrimSpace(sortOrder))); o {
	case "":
		if field.IsTime() {
			return domain.SortSpec{Field: field, Order: domain.Desc}, nil
		}
		return domain.SortSpec{Field: field, Order: domain.Asc}, nil
	case domain.Asc, domain.Desc:
		return domain.SortSpec{Field: field, Order: o}, nil
	default:
		return domain.SortSpec{}, domain.NewValidationError(
			fmt.Sprintf("sortOrder: should be asc or desc, but '%s'", sortOrder),
		)
	}
}

// missing status compares as ERROR.
func statusKey(i domain.Instance) string {
	if i.Status.Missing() {
		return string(domain.StatusError)
	}
	return string(i.Status)
}

func comparator(field domain.SortField) func(a, b domain.Instance) int {
	switch field {
	case domain.SortStatus:
		return func(a, b domain.Instance) int {
			return strings.Compare(statusKey(a), statusKey(b))
		}
	case domain.SortCluster:
		return func(a, b domain.Instance) int {
			return strings.Compare(a.Cluster, b.Cluster)
		}
	case domain.SortStartTime:
		return func(a, b domain.Instance) int {
			return timeKey(a.StartTime).Compare(timeKey(b.StartTime))
		}
	case domain.SortEndTime:
		return func(a, b domain.Instance) int {
			return timeKey(a.EndTime).Compare(timeKey(b.EndTime))
		}
	default:
		return nil
	}
}

// Sort returns a new slice of instances ordered by spec.
//
// It is stable: instances with equal keys keep their relative order.
// The argument is not modified.
func Sort(instances []domain.Instance, spec domain.SortSpec) []domain.Instance {
	sorted := slices.Clone(instances)
	if sorted == nil {
		sorted = []domain.Instance{}
	}
	cmp := comparator(spec.Field)
	if cmp == nil {
		return sorted
	}
	if spec.Order == domain.Desc {
		asc := cmp
		cmp = func(a, b domain.Instance) int { return asc(b, a) }
	}
	slices.SortStableFunc(sorted, cmp)
	return sorted
}
