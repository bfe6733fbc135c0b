// Package postgres is the entity store backed by PostgreSQL.
//
// Entities are kept as YAML documents, with clusters and tags in text[] columns for selection.
package postgres

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
	"github.com/opst/knitfleet/pkg/api/types/entities"
	kpool "github.com/opst/knitfleet/pkg/conn/db/postgres/pool"
	"github.com/opst/knitfleet/pkg/domain"
	xe "github.com/opst/knitfleet/pkg/errors"
	"github.com/opst/knitfleet/pkg/store"
)

//go:embed schema.sql
var schema string

type Store struct {
	pool kpool.Pool
}

func New(pool kpool.Pool) *Store {
	return &Store{pool: pool}
}

var _ store.Interface = &Store{}

// Migrate creates tables, if missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return xe.WrapWithNote("entity schema", err)
	}
	return nil
}

func textArray(ss []string) (pgtype.TextArray, error) {
	arr := pgtype.TextArray{}
	if ss == nil {
		ss = []string{}
	}
	if err := arr.Set(ss); err != nil {
		return arr, xe.Wrap(err)
	}
	return arr, nil
}

func (s *Store) Submit(ctx context.Context, entity *domain.Entity) error {
	if err := entity.Validate(); err != nil {
		return err
	}
	doc, err := entities.Compose(entity).Encode()
	if err != nil {
		return xe.Wrap(err)
	}
	clusters, err := textArray(entity.ClusterNames())
	if err != nil {
		return err
	}
	tags, err := textArray(entity.Tags)
	if err != nil {
		return err
	}

	return kpool.InTx(ctx, s.pool, func(tx kpool.Tx) error {
		_, err := tx.Exec(
			ctx,
			`
			insert into "entity" ("type", "name", "clusters", "tags", "document")
			values ($1, $2, $3, $4, $5)
			`,
			string(entity.Type), entity.Name, &clusters, &tags, string(doc),
		)
		if pgerr := new(pgconn.PgError); errors.As(err, &pgerr) && pgerr.Code == pgerrcode.UniqueViolation {
			return domain.NewConflictError(entity.Type, entity.Name)
		}
		return xe.Wrap(err)
	})
}

func (s *Store) Get(ctx context.Context, t domain.EntityType, name string) (*domain.Entity, error) {
	var doc string
	err := s.pool.QueryRow(
		ctx,
		`select "document" from "entity" where "type" = $1 and "name" = $2`,
		string(t), name,
	).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NewNotFoundError(t, name)
	} else if err != nil {
		return nil, xe.Wrap(err)
	}
	return decode(doc)
}

func (s *Store) List(ctx context.Context, q store.ListQuery) ([]*domain.Entity, error) {
	q, err := q.Normalize()
	if err != nil {
		return nil, err
	}
	tags, err := textArray(q.Tags)
	if err != nil {
		return nil, err
	}

	// OrderBy and SortOrder are validated by Normalize.
	order := fmt.Sprintf(`"name" %s`, q.SortOrder)
	if q.OrderBy == "type" {
		order = fmt.Sprintf(`"type" %s, "name" %s`, q.SortOrder, q.SortOrder)
	}
	var limit *int
	if 0 < q.Limit {
		limit = &q.Limit
	}

	rows, err := s.pool.Query(
		ctx,
		`
		select "document" from "entity"
		where "type" = $1
			and ($2 = '' or $2 = any("clusters"))
			and "tags" @> $3
		order by `+order+`
		offset $4 limit $5
		`,
		string(q.Type), q.Cluster, &tags, q.Offset, limit,
	)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	defer rows.Close()

	ret := []*domain.Entity{}
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, xe.Wrap(err)
		}
		e, err := decode(doc)
		if err != nil {
			return nil, err
		}
		ret = append(ret, e)
	}
	return ret, xe.Wrap(rows.Err())
}

func decode(doc string) (*domain.Entity, error) {
	d, err := entities.Decode(bytes.NewBufferString(doc))
	if err != nil {
		return nil, xe.WrapWithNote("stored entity is broken", err)
	}
	e, err := d.Entity()
	if err != nil {
		return nil, xe.WrapWithNote("stored entity is broken", err)
	}
	return e, nil
}
