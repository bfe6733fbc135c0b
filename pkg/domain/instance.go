package domain

import (
	"fmt"
	"strings"
	"time"
)

type WorkflowStatus string

const (
	StatusWaiting   WorkflowStatus = "WAITING"
	StatusRunning   WorkflowStatus = "RUNNING"
	StatusSuspended WorkflowStatus = "SUSPENDED"
	StatusKilled    WorkflowStatus = "KILLED"
	StatusFailed    WorkflowStatus = "FAILED"
	StatusSucceeded WorkflowStatus = "SUCCEEDED"
	StatusError     WorkflowStatus = "ERROR"
	StatusSkipped   WorkflowStatus = "SKIPPED"
	StatusUndefined WorkflowStatus = "UNDEFINED"
	StatusReady     WorkflowStatus = "READY"
	StatusTimedOut  WorkflowStatus = "TIMEDOUT"
)

func (s WorkflowStatus) String() string {
	return string(s)
}

// Missing reports the backend did not tell the status.
func (s WorkflowStatus) Missing() bool {
	return s == ""
}

func WorkflowStatuses() []WorkflowStatus {
	return []WorkflowStatus{
		StatusWaiting, StatusRunning, StatusSuspended, StatusKilled,
		StatusFailed, StatusSucceeded, StatusError, StatusSkipped,
		StatusUndefined, StatusReady, StatusTimedOut,
	}
}

func AsWorkflowStatus(s string) (WorkflowStatus, error) {
	u := WorkflowStatus(strings.ToUpper(strings.TrimSpace(s)))
	for _, st := range WorkflowStatuses() {
		if st == u {
			return st, nil
		}
	}
	return "", fmt.Errorf("'%s' is not a workflow status", s)
}

// One time-sliced execution of an entity on a cluster.
//
// Instances are produced by the execution backend.
type Instance struct {
	// Nominal time of the instance, formatted in DateFormat.
	Instance string

	Cluster       string
	SourceCluster string

	// Zero value means the backend did not report the status.
	Status WorkflowStatus

	StartTime *time.Time
	EndTime   *time.Time

	RunID   int
	Details string
	LogFile string

	// Workflow parameters. Filled only by params queries.
	Params map[string]string
}

type InstancesResult struct {
	Message   string
	Instances []Instance
}

type InstanceSummary struct {
	Cluster string
	Counts  map[WorkflowStatus]int64
}

type InstancesSummaryResult struct {
	Message   string
	Summaries []InstanceSummary
}

type APIStatus string

const (
	Succeeded APIStatus = "SUCCEEDED"
	Partial   APIStatus = "PARTIAL"
	Failed    APIStatus = "FAILED"
)

// result of entity level actions.
type APIResult struct {
	Status  APIStatus
	Message string
}

type EntitySummary struct {
	Name      string
	Type      EntityType
	Status    EntityStatus
	Tags      []string
	Pipelines []string
	Instances []Instance
}

type EntitySummaryResult struct {
	Message  string
	Entities []EntitySummary
}

// Opaque key-value properties passed through to the execution backend by instance actions.
type Properties map[string]string
