package domain

import (
	"fmt"
	"time"
)

// Textual format of dates in requests and responses. Always UTC.
const DateFormat = "2006-01-02T15:04Z"

// ParseDate parses s as a UTC date in DateFormat.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateFormat, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: '%s' should be in the form of yyyy-MM-ddTHH:mmZ", ErrInvalidDate, s)
	}
	return t, nil
}

func FormatDate(t time.Time) string {
	return t.UTC().Format(DateFormat)
}

// Closed time range [Start, End] where Start <= End.
type TimeWindow struct {
	start time.Time
	end   time.Time
}

// NewTimeWindow returns a window. start after end is an error; they are never swapped.
func NewTimeWindow(start, end time.Time) (TimeWindow, error) {
	if start.After(end) {
		return TimeWindow{}, NewInvalidWindowError(start, end)
	}
	return TimeWindow{start: start, end: end}, nil
}

func (w TimeWindow) Start() time.Time {
	return w.start
}

func (w TimeWindow) End() time.Time {
	return w.end
}

func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.start) && !t.After(w.end)
}

func (w TimeWindow) Equal(o TimeWindow) bool {
	return w.start.Equal(o.start) && w.end.Equal(o.end)
}

func (w TimeWindow) String() string {
	return fmt.Sprintf("[%s, %s]", FormatDate(w.start), FormatDate(w.end))
}
