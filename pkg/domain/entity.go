package domain

import (
	"fmt"
	"maps"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
)

type EntityType string

const (
	Feed    EntityType = "feed"
	Process EntityType = "process"
	Cluster EntityType = "cluster"
)

func (et EntityType) String() string {
	return string(et)
}

// Schedulable reports whether entities of this type can have instances.
//
// Only Feed and Process are schedulable. Cluster is a placement target.
func (et EntityType) Schedulable() bool {
	switch et {
	case Feed, Process:
		return true
	default:
		return false
	}
}

// AsEntityType parses entity type case-insensitively.
func AsEntityType(s string) (EntityType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(Feed):
		return Feed, nil
	case string(Process):
		return Process, nil
	case string(Cluster):
		return Cluster, nil
	case "":
		return "", NewValidationError("entity type is empty")
	default:
		return "", NewValidationError(fmt.Sprintf("'%s' is not an entity type", s))
	}
}

type TimeUnit string

const (
	Minutes TimeUnit = "minutes"
	Hours   TimeUnit = "hours"
	Days    TimeUnit = "days"
	Months  TimeUnit = "months"
)

const (
	minuteInMillis int64 = 60000
	hourInMillis   int64 = 3600000
	dayInMillis    int64 = 86400000
	monthInMillis  int64 = 2592000000
)

// Millis returns the length of one unit in milliseconds.
//
// Months are a fixed 30 days. Unsupported units report false.
func (u TimeUnit) Millis() (int64, bool) {
	switch u {
	case Minutes:
		return minuteInMillis, true
	case Hours:
		return hourInMillis, true
	case Days:
		return dayInMillis, true
	case Months:
		return monthInMillis, true
	default:
		return 0, false
	}
}

// How often an entity produces an instance: Multiplier x Unit.
type Frequency struct {
	Unit       TimeUnit
	Multiplier int
}

func (f Frequency) String() string {
	return fmt.Sprintf("%s(%d)", f.Unit, f.Multiplier)
}

// the longest frequency in milliseconds which fits in time.Duration.
const maxFrequencyMillis = math.MaxInt64 / int64(time.Millisecond)

// tooLong reports the frequency does not fit in time.Duration.
func (f Frequency) tooLong() bool {
	ms, ok := f.Unit.Millis()
	return ok && 0 < f.Multiplier && maxFrequencyMillis/ms < int64(f.Multiplier)
}

// Duration converts the frequency to a fixed duration.
//
// When the unit is not supported, it returns (0, false).
// Frequencies too long for time.Duration saturate to its maximum.
func (f Frequency) Duration() (time.Duration, bool) {
	ms, ok := f.Unit.Millis()
	if !ok {
		return 0, false
	}
	if f.tooLong() {
		return time.Duration(math.MaxInt64), true
	}
	return time.Duration(ms*int64(f.Multiplier)) * time.Millisecond, true
}

var frequencyExpr = regexp.MustCompile(`^\s*([a-zA-Z]+)\s*\(\s*(\d+)\s*\)\s*$`)

// ParseFrequency parses "unit(multiplier)", like "days(1)" or "minutes(30)".
//
// Unit is kept as written (lower-cased) even if it is not one of the known units.
func ParseFrequency(s string) (Frequency, error) {
	m := frequencyExpr.FindStringSubmatch(s)
	if m == nil {
		return Frequency{}, NewValidationError(fmt.Sprintf("'%s' is not a frequency", s))
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return Frequency{}, NewValidationError(fmt.Sprintf("'%s' is not a frequency", s))
	}
	return Frequency{Unit: TimeUnit(strings.ToLower(m[1])), Multiplier: n}, nil
}

func (f Frequency) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *Frequency) UnmarshalText(b []byte) error {
	p, err := ParseFrequency(string(b))
	if err != nil {
		return err
	}
	*f = p
	return nil
}

// Validity of an entity on a cluster.
type ClusterValidity struct {
	Name  string
	Start time.Time
	End   time.Time
}

// How the execution backend runs an instance.
type WorkflowSpec struct {
	Image   string
	Command []string
	Env     map[string]string
}

// Feed, Process or Cluster definition.
//
// Entities are owned by the entity store. Instance operations only read them.
type Entity struct {
	Type EntityType
	Name string

	// Clusters where the entity is placed, with validity on each.
	//
	// Empty for Cluster entities.
	Clusters []ClusterValidity

	Frequency Frequency

	Tags      []string
	Pipelines []string

	// Colo which the cluster belongs to. Only for Cluster entities.
	Colo string

	Workflow *WorkflowSpec
}

// Validity returns the defined validity window of the entity:
// the earliest start and the latest end among its clusters.
//
// If the entity has no clusters, both are zero time.
func (e *Entity) Validity() (start time.Time, end time.Time) {
	for i, c := range e.Clusters {
		if i == 0 || c.Start.Before(start) {
			start = c.Start
		}
		if i == 0 || c.End.After(end) {
			end = c.End
		}
	}
	return start, end
}

// ClusterNames returns names of clusters the entity is placed on.
func (e *Entity) ClusterNames() []string {
	names := make([]string, 0, len(e.Clusters))
	for _, c := range e.Clusters {
		names = append(names, c.Name)
	}
	return names
}

// Key identifies the entity as "type/name".
func (e *Entity) Key() EntityKey {
	return EntityKey{Type: e.Type, Name: e.Name}
}

type EntityKey struct {
	Type EntityType
	Name string
}

func (k EntityKey) String() string {
	return fmt.Sprintf("%s/%s", k.Type, k.Name)
}

// Entity status as shown in summaries.
type EntityStatus string

const (
	EntitySubmitted EntityStatus = "SUBMITTED"
	EntitySuspended EntityStatus = "SUSPENDED"
	EntityRunning   EntityStatus = "RUNNING"
)

// Clone returns a deep copy of the entity.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	c := *e
	c.Clusters = slices.Clone(e.Clusters)
	c.Tags = slices.Clone(e.Tags)
	c.Pipelines = slices.Clone(e.Pipelines)
	if e.Workflow != nil {
		w := *e.Workflow
		w.Command = slices.Clone(e.Workflow.Command)
		w.Env = maps.Clone(e.Workflow.Env)
		c.Workflow = &w
	}
	return &c
}

// Validate checks the entity is well-formed enough to be stored.
func (e *Entity) Validate() error {
	if e.Name == "" {
		return NewEmptyParameterError("name")
	}
	if _, err := AsEntityType(string(e.Type)); err != nil {
		return err
	}
	if e.Type == Cluster {
		if e.Colo == "" {
			return NewValidationError(fmt.Sprintf("cluster %s has no colo", e.Name))
		}
		return nil
	}
	if len(e.Clusters) == 0 {
		return NewValidationError(fmt.Sprintf("%s(%s) is not placed on any cluster", e.Name, e.Type))
	}
	for _, c := range e.Clusters {
		if c.Name == "" {
			return NewEmptyParameterError("cluster name")
		}
		if c.End.Before(c.Start) {
			return NewValidationError(fmt.Sprintf(
				"validity on %s ends (%s) before it starts (%s)",
				c.Name, FormatDate(c.End), FormatDate(c.Start),
			))
		}
	}
	if e.Frequency.Multiplier <= 0 {
		return NewValidationError(fmt.Sprintf("frequency should be positive: %s", e.Frequency))
	}
	if e.Frequency.tooLong() {
		return NewValidationError(fmt.Sprintf("frequency is too long: %s", e.Frequency))
	}
	return nil
}
