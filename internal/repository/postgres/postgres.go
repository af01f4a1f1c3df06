// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

// Package postgres provides a repository.Repository backed by PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/reservd/reservd/internal/apperr"
	"github.com/reservd/reservd/internal/repository"
)

// DB is the subset of *pgxpool.Pool the repository uses.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Repository stores documents in one PostgreSQL table.
type Repository[T any] struct {
	db      DB
	schema  repository.Schema[T]
	columns string
}

// New creates a Repository for schema over db.
func New[T any](db DB, schema repository.Schema[T]) *Repository[T] {
	return &Repository[T]{
		db:      db,
		schema:  schema,
		columns: strings.Join(schema.SortedColumns(), ", "),
	}
}

// Create inserts doc.
func (r *Repository[T]) Create(ctx context.Context, doc T) (T, error) {
	var zero T
	fields, err := r.schema.PrepareCreate(doc)
	if err != nil {
		return zero, err
	}

	cols := r.schema.SortedColumns()
	args := make([]any, len(cols))
	placeholders := make([]string, len(cols))
	for i, col := range cols {
		args[i] = fields[col]
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		r.schema.Table, r.columns, strings.Join(placeholders, ", "), r.columns)

	rows, err := r.collect(ctx, "create", query, args...)
	if err != nil {
		return zero, err
	}
	if len(rows) != 1 {
		return zero, oops.Code("REPOSITORY_CREATE_FAILED").
			With("table", r.schema.Table).
			Errorf("insert returned %d rows", len(rows))
	}
	return rows[0], nil
}

// FindOne returns the first document matching filter.
func (r *Repository[T]) FindOne(ctx context.Context, filter repository.Filter) (repository.Result[T], error) {
	filter, err := r.schema.PrepareFilter(filter)
	if err != nil {
		return repository.NotFound[T](), err
	}

	where, args := whereClause(filter, 1)
	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY id LIMIT 1", r.columns, r.schema.Table, where)

	rows, err := r.collect(ctx, "find one", query, args...)
	if err != nil {
		return repository.NotFound[T](), err
	}
	return first(rows), nil
}

// Find returns every document matching filter, ordered by id.
func (r *Repository[T]) Find(ctx context.Context, filter repository.Filter) ([]T, error) {
	filter, err := r.schema.PrepareFilter(filter)
	if err != nil {
		return nil, err
	}

	where, args := whereClause(filter, 1)
	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY id", r.columns, r.schema.Table, where)

	rows, err := r.collect(ctx, "find", query, args...)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []T{}
	}
	return rows, nil
}

// FindOneAndUpdate applies patch to the first document matching filter.
// The update is a single statement, so it is atomic per document.
func (r *Repository[T]) FindOneAndUpdate(ctx context.Context, filter repository.Filter, patch repository.Patch) (repository.Result[T], error) {
	filter, err := r.schema.PrepareFilter(filter)
	if err != nil {
		return repository.NotFound[T](), err
	}
	patch, err = r.schema.PreparePatch(patch)
	if err != nil {
		return repository.NotFound[T](), err
	}
	if len(patch) == 0 {
		return r.FindOne(ctx, filter)
	}

	keys := sortedKeys(patch)
	sets := make([]string, len(keys))
	args := make([]any, 0, len(keys)+len(filter))
	for i, col := range keys {
		sets[i] = fmt.Sprintf("%s = $%d", col, i+1)
		args = append(args, patch[col])
	}
	where, whereArgs := whereClause(filter, len(keys)+1)
	args = append(args, whereArgs...)

	query := fmt.Sprintf(
		"UPDATE %s SET %s WHERE id = (SELECT id FROM %s%s ORDER BY id LIMIT 1) RETURNING %s",
		r.schema.Table, strings.Join(sets, ", "), r.schema.Table, where, r.columns)

	rows, err := r.collect(ctx, "update", query, args...)
	if err != nil {
		return repository.NotFound[T](), err
	}
	return first(rows), nil
}

// FindOneAndDelete removes the first document matching filter.
func (r *Repository[T]) FindOneAndDelete(ctx context.Context, filter repository.Filter) (repository.Result[T], error) {
	filter, err := r.schema.PrepareFilter(filter)
	if err != nil {
		return repository.NotFound[T](), err
	}

	where, args := whereClause(filter, 1)
	query := fmt.Sprintf(
		"DELETE FROM %s WHERE id = (SELECT id FROM %s%s ORDER BY id LIMIT 1) RETURNING %s",
		r.schema.Table, r.schema.Table, where, r.columns)

	rows, err := r.collect(ctx, "delete", query, args...)
	if err != nil {
		return repository.NotFound[T](), err
	}
	return first(rows), nil
}

// collect runs query and decodes every returned row.
func (r *Repository[T]) collect(ctx context.Context, op, query string, args ...any) ([]T, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, r.wrap(op, err)
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, r.wrap(op, err)
	}

	var docs []T
	for _, m := range maps {
		doc, err := r.schema.Decode(m)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (r *Repository[T]) wrap(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return oops.Code(apperr.CodeConflict).
			With("table", r.schema.Table).
			With("constraint", pgErr.ConstraintName).
			Wrap(repository.ErrConflict)
	}
	return oops.Code("REPOSITORY_QUERY_FAILED").
		With("operation", op).
		With("table", r.schema.Table).
		Wrap(err)
}

func first[T any](docs []T) repository.Result[T] {
	if len(docs) == 0 {
		return repository.NotFound[T]()
	}
	return repository.Found(docs[0])
}

// whereClause renders filter as " WHERE a = $n AND b = $n+1", numbering
// placeholders from start.
func whereClause(filter repository.Filter, start int) (string, []any) {
	if len(filter) == 0 {
		return "", nil
	}
	keys := sortedKeys(filter)
	conds := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, col := range keys {
		conds[i] = fmt.Sprintf("%s = $%d", col, start+i)
		args[i] = filter[col]
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func sortedKeys[M ~map[string]any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

var _ repository.Repository[struct{}] = (*Repository[struct{}])(nil)
