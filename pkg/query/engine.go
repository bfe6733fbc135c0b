// Package query reshapes instance results: filter, then sort, then paginate.
//
// The order of stages is fixed. Changing it changes which instances are returned.
package query

import (
	"github.com/opst/knitfleet/pkg/domain"
)

// Request is a validated query over an instance result.
type Request struct {
	Filter Filter
	Sort   domain.SortSpec
	Page   domain.Page
}

// Params are raw query parameters, as requested.
type Params struct {
	FilterBy  string
	OrderBy   string
	SortOrder string
	Offset    int

	// <= 0 means all.
	NumResults int
}

// NewRequest validates all of params.
//
// Callers should build Request before calling the backend,
// so that malformed queries fail without any backend access.
func NewRequest(params Params) (Request, error) {
	criteria, err := ParseFilterBy(params.FilterBy)
	if err != nil {
		return Request{}, err
	}
	filter, err := NewFilter(criteria)
	if err != nil {
		return Request{}, err
	}
	spec, err := ParseSort(params.OrderBy, params.SortOrder)
	if err != nil {
		return Request{}, err
	}
	page, err := NewPage(params.Offset, params.NumResults)
	if err != nil {
		return Request{}, err
	}
	return Request{Filter: filter, Sort: spec, Page: page}, nil
}

// Apply reshapes result. Message is kept, and instances are replaced.
func Apply(result domain.InstancesResult, req Request) domain.InstancesResult {
	filtered := req.Filter.Apply(result.Instances)
	sorted := Sort(filtered, req.Sort)
	paged, _ := Paginate(sorted, req.Page)
	return domain.InstancesResult{Message: result.Message, Instances: paged}
}
