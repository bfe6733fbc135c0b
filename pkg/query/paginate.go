package query

import (
	"fmt"

	"github.com/opst/knitfleet/pkg/domain"
)

// NewPage validates offset. count <= 0 means all remaining.
func NewPage(offset, count int) (domain.Page, error) {
	if offset < 0 {
		return domain.Page{}, domain.NewValidationError(
			fmt.Sprintf("offset should not be negative: %d", offset),
		)
	}
	if count < 0 {
		count = 0
	}
	return domain.Page{Offset: offset, Count: count}, nil
}

// Paginate slices ordered instances.
//
// It returns the slice and the number of instances available before pagination.
// Offset past the end gives an empty slice.
func Paginate(ordered []domain.Instance, page domain.Page) ([]domain.Instance, int) {
	total := len(ordered)
	offset := max(page.Offset, 0)
	if total <= offset {
		return []domain.Instance{}, total
	}
	count := total - offset
	if 0 < page.Count {
		count = min(page.Count, count)
	}
	return ordered[offset : offset+count], total
}
