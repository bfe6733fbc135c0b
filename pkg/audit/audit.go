// Package audit records who requested which lifecycle action.
//
// Recording is fire-and-forget: callers never wait for, nor fail by, audit storage.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/opst/knitfleet/pkg/domain"
)

// Action names recorded.
type Action string

const (
	Scheduled         Action = "SCHEDULED"
	SubmitAndSchedule Action = "SUBMIT_AND_SCHEDULE"
	Suspend           Action = "SUSPEND"
	Resume            Action = "RESUME"
	InstanceKill      Action = "INSTANCE_KILL"
	InstanceSuspend   Action = "INSTANCE_SUSPEND"
	InstanceResume    Action = "INSTANCE_RESUME"
	InstanceRerun     Action = "INSTANCE_RERUN"
)

// Entity name recorded for submit-and-schedule, whose entity is read from request body.
const StreamedData = "STREAMED_DATA"

type Record struct {
	ID         uuid.UUID
	Actor      string
	EntityName string
	EntityType domain.EntityType
	Action     Action
	At         time.Time
}

// NewRecord builds Record with new ID and current time.
func NewRecord(actor string, entityName string, entityType domain.EntityType, action Action) Record {
	return Record{
		ID:         uuid.New(),
		Actor:      actor,
		EntityName: entityName,
		EntityType: entityType,
		Action:     action,
		At:         time.Now().UTC(),
	}
}

// Sink accepts audit records.
//
// Record should return promptly. It has no error to report.
type Sink interface {
	Record(ctx context.Context, rec Record)
}

// Writer persists audit records.
type Writer interface {
	Write(ctx context.Context, rec Record) error
}

type actorKey struct{}

// WithActor returns context carrying the name of the requester.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorOf returns the requester in ctx, or "anonymous".
func ActorOf(ctx context.Context) string {
	if a, ok := ctx.Value(actorKey{}).(string); ok && a != "" {
		return a
	}
	return "anonymous"
}
