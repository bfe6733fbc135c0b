package domain

import (
	"fmt"
	"strings"
)

// Operational aspect tag of an entity. Each tag is bound to one entity type.
type LifeCycleTag string

const (
	DefaultTag     LifeCycleTag = "DEFAULT"
	RetentionTag   LifeCycleTag = "RETENTION"
	ReplicationTag LifeCycleTag = "REPLICATION"
)

// Type returns the entity type which the tag is bound to.
func (t LifeCycleTag) Type() EntityType {
	switch t {
	case DefaultTag:
		return Process
	case RetentionTag, ReplicationTag:
		return Feed
	default:
		return ""
	}
}

// Which part of an entity an instance query or action is about.
type LifeCycle string

const (
	Execution   LifeCycle = "EXECUTION"
	Eviction    LifeCycle = "EVICTION"
	Replication LifeCycle = "REPLICATION"
)

func (lc LifeCycle) String() string {
	return string(lc)
}

func (lc LifeCycle) Tag() LifeCycleTag {
	switch lc {
	case Execution:
		return DefaultTag
	case Eviction:
		return RetentionTag
	case Replication:
		return ReplicationTag
	default:
		return ""
	}
}

// AsLifeCycle parses lifecycle name case-insensitively.
func AsLifeCycle(s string) (LifeCycle, error) {
	switch LifeCycle(strings.ToUpper(strings.TrimSpace(s))) {
	case Execution:
		return Execution, nil
	case Eviction:
		return Eviction, nil
	case Replication:
		return Replication, nil
	default:
		return "", fmt.Errorf("%w: '%s' is not a lifecycle", ErrInvalidLifecycle, s)
	}
}
