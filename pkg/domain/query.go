package domain

import "fmt"

// Field name usable in filterBy.
type FilterField string

const (
	FilterStatus        FilterField = "status"
	FilterCluster       FilterField = "cluster"
	FilterSourceCluster FilterField = "sourcecluster"
	FilterStartedAfter  FilterField = "startedafter"
)

// Filter field name to value. Empty values are ignored.
type FilterCriteria map[FilterField]string

type SortField string

const (
	SortNone      SortField = "none"
	SortStatus    SortField = "status"
	SortCluster   SortField = "cluster"
	SortStartTime SortField = "starttime"
	SortEndTime   SortField = "endtime"
)

func (f SortField) IsTime() bool {
	return f == SortStartTime || f == SortEndTime
}

type SortOrder string

const (
	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"
)

type SortSpec struct {
	Field SortField
	Order SortOrder
}

// Contiguous slice of an ordered, filtered sequence.
//
// Count <= 0 means "all remaining from Offset".
type Page struct {
	Offset int
	Count  int
}

func (p Page) String() string {
	return fmt.Sprintf("offset=%d,count=%d", p.Offset, p.Count)
}
