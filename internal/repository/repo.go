package repository

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Shnikita2023/OnlineShop/internal/domain"
	"github.com/Shnikita2023/OnlineShop/pkg/mylogger"
)

// DB is satisfied by both pgx.Tx and *pgxpool.Pool. Repositories never
// commit; the transaction always belongs to the caller.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repo is the generic persistence gateway, one instantiation per entity
// type. Rows map to structs by db tags via pgx.RowToStructByName, so the
// column list must match the entity's tagged fields exactly.
type Repo[T any] struct {
	table      string
	columns    []string
	insertCols []string
	insertVals func(*T) []any
	logger     *zap.Logger
	tracer     trace.Tracer
}

func New[T any](
	logger *zap.Logger,
	table string,
	columns []string,
	insertCols []string,
	insertVals func(*T) []any,
) *Repo[T] {
	return &Repo[T]{
		table:      table,
		columns:    columns,
		insertCols: insertCols,
		insertVals: insertVals,
		logger:     logger,
		tracer:     otel.Tracer("repository/" + table),
	}
}

func (r *Repo[T]) columnList() string {
	return strings.Join(r.columns, ", ")
}

// AddOne inserts the entity and returns the generated id. A uniqueness
// violation surfaces as domain.ErrConflict.
func (r *Repo[T]) AddOne(ctx context.Context, db DB, entity *T) (int64, error) {
	ctx, span := r.tracer.Start(ctx, "Repo.AddOne")
	defer span.End()

	span.SetAttributes(attribute.String("table", r.table))

	placeholders := make([]string, len(r.insertCols))
	for i := range r.insertCols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) RETURNING id",
		r.table,
		strings.Join(r.insertCols, ", "),
		strings.Join(placeholders, ", "),
	)

	var id int64
	if err := db.QueryRow(ctx, query, r.insertVals(entity)...).Scan(&id); err != nil {
		span.RecordError(err)

		mylogger.Warn(
			ctx,
			r.logger,
			"Failed to insert row",
			zap.String("table", r.table),
			zap.Error(err),
		)

		return 0, fmt.Errorf("insert into %s: %w", r.table, translate(err))
	}

	return id, nil
}

func (r *Repo[T]) FindOne(ctx context.Context, db DB, id int64) (*T, error) {
	ctx, span := r.tracer.Start(ctx, "Repo.FindOne")
	defer span.End()

	span.SetAttributes(
		attribute.String("table", r.table),
		attribute.Int64("id", id),
	)

	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", r.columnList(), r.table)

	rows, err := db.Query(ctx, query, id)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("select from %s: %w", r.table, translate(err))
	}

	entity, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[T])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s id %d: %w", r.table, id, domain.ErrNotFound)
		}

		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to scan row",
			zap.String("table", r.table),
			zap.Int64("id", id),
			zap.Error(err),
		)

		return nil, fmt.Errorf("scan %s row: %w", r.table, translate(err))
	}

	return entity, nil
}

// FindOneByField looks an entity up by a single column. The column name
// is always a code-supplied constant, never request input.
func (r *Repo[T]) FindOneByField(ctx context.Context, db DB, column string, value any) (*T, error) {
	ctx, span := r.tracer.Start(ctx, "Repo.FindOneByField")
	defer span.End()

	span.SetAttributes(
		attribute.String("table", r.table),
		attribute.String("column", column),
	)

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1", r.columnList(), r.table, column)

	rows, err := db.Query(ctx, query, value)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("select from %s: %w", r.table, translate(err))
	}

	entity, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[T])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s by %s: %w", r.table, column, domain.ErrNotFound)
		}

		span.RecordError(err)
		return nil, fmt.Errorf("scan %s row: %w", r.table, translate(err))
	}

	return entity, nil
}

func (r *Repo[T]) FindAll(ctx context.Context, db DB) ([]T, error) {
	ctx, span := r.tracer.Start(ctx, "Repo.FindAll")
	defer span.End()

	span.SetAttributes(attribute.String("table", r.table))

	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY id", r.columnList(), r.table)

	return r.collect(ctx, db, query)
}

func (r *Repo[T]) FindAllByField(ctx context.Context, db DB, column string, value any) ([]T, error) {
	ctx, span := r.tracer.Start(ctx, "Repo.FindAllByField")
	defer span.End()

	span.SetAttributes(
		attribute.String("table", r.table),
		attribute.String("column", column),
	)

	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s = $1 ORDER BY id",
		r.columnList(), r.table, column,
	)

	return r.collect(ctx, db, query, value)
}

func (r *Repo[T]) FindAllGreaterThan(ctx context.Context, db DB, column string, value any) ([]T, error) {
	ctx, span := r.tracer.Start(ctx, "Repo.FindAllGreaterThan")
	defer span.End()

	span.SetAttributes(
		attribute.String("table", r.table),
		attribute.String("column", column),
	)

	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s > $1 ORDER BY id",
		r.columnList(), r.table, column,
	)

	return r.collect(ctx, db, query, value)
}

func (r *Repo[T]) collect(ctx context.Context, db DB, query string, args ...any) ([]T, error) {
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		mylogger.Error(
			ctx,
			r.logger,
			"Failed to query rows",
			zap.String("table", r.table),
			zap.Error(err),
		)

		return nil, fmt.Errorf("select from %s: %w", r.table, translate(err))
	}

	entities, err := pgx.CollectRows(rows, pgx.RowToStructByName[T])
	if err != nil {
		mylogger.Error(
			ctx,
			r.logger,
			"Failed to scan rows",
			zap.String("table", r.table),
			zap.Error(err),
		)

		return nil, fmt.Errorf("scan %s rows: %w", r.table, translate(err))
	}

	return entities, nil
}

// UpdateOne applies a partial field update and returns the refreshed row.
// Fields are sorted so the generated statement is deterministic.
func (r *Repo[T]) UpdateOne(ctx context.Context, db DB, id int64, fields map[string]any) (*T, error) {
	ctx, span := r.tracer.Start(ctx, "Repo.UpdateOne")
	defer span.End()

	span.SetAttributes(
		attribute.String("table", r.table),
		attribute.Int64("id", id),
	)

	if len(fields) == 0 {
		return r.FindOne(ctx, db, id)
	}

	setClause, args := buildSetClause(fields)
	args = append(args, id)

	query := fmt.Sprintf(
		"UPDATE %s SET %s WHERE id = $%d RETURNING %s",
		r.table, setClause, len(args), r.columnList(),
	)

	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("update %s: %w", r.table, translate(err))
	}

	entity, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[T])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s id %d: %w", r.table, id, domain.ErrNotFound)
		}

		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to update row",
			zap.String("table", r.table),
			zap.Int64("id", id),
			zap.Error(err),
		)

		return nil, fmt.Errorf("update %s: %w", r.table, translate(err))
	}

	return entity, nil
}

func (r *Repo[T]) DeleteOne(ctx context.Context, db DB, id int64) (int64, error) {
	ctx, span := r.tracer.Start(ctx, "Repo.DeleteOne")
	defer span.End()

	span.SetAttributes(
		attribute.String("table", r.table),
		attribute.Int64("id", id),
	)

	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1 RETURNING id", r.table)

	var deletedID int64
	if err := db.QueryRow(ctx, query, id).Scan(&deletedID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%s id %d: %w", r.table, id, domain.ErrNotFound)
		}

		span.RecordError(err)

		mylogger.Warn(
			ctx,
			r.logger,
			"Failed to delete row",
			zap.String("table", r.table),
			zap.Int64("id", id),
			zap.Error(err),
		)

		return 0, fmt.Errorf("delete from %s: %w", r.table, translate(err))
	}

	return deletedID, nil
}

func buildSetClause(fields map[string]any) (string, []any) {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	updates := make([]string, 0, len(names))
	args := make([]any, 0, len(names))
	argID := 1

	for _, name := range names {
		updates = append(updates, fmt.Sprintf("%s = $%d", name, argID))
		args = append(args, fields[name])
		argID++
	}

	return strings.Join(updates, ", "), args
}

// translate maps store-level failures onto the domain error kinds.
func translate(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%s: %w", pgErr.ConstraintName, domain.ErrConflict)
		case "23503":
			return fmt.Errorf("%s: %w", pgErr.ConstraintName, domain.ErrNotFound)
		}

		return err
	}

	var connErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connErr) || errors.As(err, &netErr) {
		return fmt.Errorf("%v: %w", err, domain.ErrConnectivity)
	}

	return err
}
