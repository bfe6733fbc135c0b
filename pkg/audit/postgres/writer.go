// Package postgres stores audit records in PostgreSQL.
package postgres

import (
	"context"
	_ "embed"

	"github.com/opst/knitfleet/pkg/audit"
	kpool "github.com/opst/knitfleet/pkg/conn/db/postgres/pool"
	"github.com/opst/knitfleet/pkg/domain"
	xe "github.com/opst/knitfleet/pkg/errors"
)

//go:embed schema.sql
var schema string

type Writer struct {
	pool kpool.Queryer
}

func New(pool kpool.Queryer) *Writer {
	return &Writer{pool: pool}
}

var _ audit.Writer = &Writer{}

// Migrate creates the table, if missing.
func (w *Writer) Migrate(ctx context.Context) error {
	if _, err := w.pool.Exec(ctx, schema); err != nil {
		return xe.WrapWithNote("audit schema", err)
	}
	return nil
}

// Write inserts rec. Writing the same record twice is not an error.
func (w *Writer) Write(ctx context.Context, rec audit.Record) error {
	_, err := w.pool.Exec(
		ctx,
		`
		insert into "audit_log" ("id", "actor", "entity_name", "entity_type", "action", "at")
		values ($1, $2, $3, $4, $5, $6)
		on conflict ("id") do nothing
		`,
		rec.ID.String(), rec.Actor, rec.EntityName, string(rec.EntityType), string(rec.Action), rec.At,
	)
	return xe.Wrap(err)
}

// Find returns records of the entity, oldest first.
func (w *Writer) Find(ctx context.Context, entityType string, entityName string) ([]audit.Record, error) {
	rows, err := w.pool.Query(
		ctx,
		`
		select "id"::text, "actor", "entity_name", "entity_type", "action", "at"
		from "audit_log"
		where "entity_type" = $1 and "entity_name" = $2
		order by "at", "id"
		`,
		entityType, entityName,
	)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	defer rows.Close()

	recs := []audit.Record{}
	for rows.Next() {
		var id, etype, action string
		rec := audit.Record{}
		if err := rows.Scan(&id, &rec.Actor, &rec.EntityName, &etype, &action, &rec.At); err != nil {
			return nil, xe.Wrap(err)
		}
		if err := rec.ID.UnmarshalText([]byte(id)); err != nil {
			return nil, xe.Wrap(err)
		}
		rec.EntityType = domain.EntityType(etype)
		rec.Action = audit.Action(action)
		recs = append(recs, rec)
	}
	return recs, xe.Wrap(rows.Err())
}
