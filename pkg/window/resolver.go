// Package window resolves time windows of instance operations.
//
// Requests may omit start and/or end. Missing values are derived
// from "now" and from the entity definition, and results are clamped
// to the validity of the entity.
package window

import (
	"time"

	"github.com/opst/knitfleet/pkg/domain"
)

const (
	// default lookback for instance operations, in scheduling periods of the entity.
	DefaultLookbackPeriods = 10

	// default lookback for entity summaries. Independent of entity frequency.
	SummaryLookback = 2 * 24 * time.Hour
)

type Resolver struct {
	// clock. time.Now is used when it is nil.
	Now func() time.Time
}

func New() *Resolver {
	return &Resolver{Now: time.Now}
}

func (r *Resolver) now() time.Time {
	if r == nil || r.Now == nil {
		return time.Now().UTC()
	}
	return r.Now().UTC()
}

// Resolve decides the window of instances of the entity.
//
// - end is endStr if given, otherwise now. It is clamped not to be after the end of entity validity.
//
// - start is startStr if given, otherwise end - 10 x frequency of the entity
// (or end itself, when the frequency unit is not supported).
// It is clamped not to be before the start of entity validity.
//
// If start is after end, it fails with ErrInvalidWindow:
// the entity is scheduled to start after the end requested (or derived).
func (r *Resolver) Resolve(entity *domain.Entity, startStr, endStr string) (domain.TimeWindow, error) {
	definedStart, definedEnd := entity.Validity()

	end := r.now()
	if endStr != "" {
		e, err := domain.ParseDate(endStr)
		if err != nil {
			return domain.TimeWindow{}, err
		}
		end = e
	}
	if end.After(definedEnd) {
		end = definedEnd
	}

	start := end
	if startStr != "" {
		s, err := domain.ParseDate(startStr)
		if err != nil {
			return domain.TimeWindow{}, err
		}
		start = s
	} else if d, ok := entity.Frequency.Duration(); ok {
		if end.Sub(definedStart)/DefaultLookbackPeriods < d {
			// lookback reaches before validity, and may overflow time.Duration.
			start = definedStart
		} else {
			start = end.Add(-DefaultLookbackPeriods * d)
		}
	}
	if start.Before(definedStart) {
		start = definedStart
	}

	return domain.NewTimeWindow(start, end)
}

// ResolveSummary decides the window for entity summaries.
//
// end is endStr or now, and start is startStr or 2 days before end.
// Entity validity is not involved.
func (r *Resolver) ResolveSummary(startStr, endStr string) (domain.TimeWindow, error) {
	end := r.now()
	if endStr != "" {
		e, err := domain.ParseDate(endStr)
		if err != nil {
			return domain.TimeWindow{}, err
		}
		end = e
	}

	start := end.Add(-SummaryLookback)
	if startStr != "" {
		s, err := domain.ParseDate(startStr)
		if err != nil {
			return domain.TimeWindow{}, err
		}
		start = s
	}

	return domain.NewTimeWindow(start, end)
}
