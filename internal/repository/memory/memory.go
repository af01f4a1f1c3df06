// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

// Package memory provides an in-process repository.Repository.
package memory

import (
	"context"
	"maps"
	"reflect"
	"slices"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/reservd/reservd/internal/apperr"
	"github.com/reservd/reservd/internal/repository"
)

// Repository stores documents in a map keyed by id. It is safe for
// concurrent use.
type Repository[T any] struct {
	schema repository.Schema[T]

	mu   sync.RWMutex
	rows map[string]map[string]any
}

// New creates an empty Repository for schema.
func New[T any](schema repository.Schema[T]) *Repository[T] {
	return &Repository[T]{
		schema: schema,
		rows:   make(map[string]map[string]any),
	}
}

// Create stores doc.
func (r *Repository[T]) Create(_ context.Context, doc T) (T, error) {
	var zero T
	fields, err := r.schema.PrepareCreate(doc)
	if err != nil {
		return zero, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkUnique(fields, ""); err != nil {
		return zero, err
	}
	id, _ := fields[repository.ColumnID].(string)
	r.rows[id] = fields
	return r.schema.Decode(maps.Clone(fields))
}

// FindOne returns the first document matching filter.
func (r *Repository[T]) FindOne(_ context.Context, filter repository.Filter) (repository.Result[T], error) {
	filter, err := r.schema.PrepareFilter(filter)
	if err != nil {
		return repository.NotFound[T](), err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.first(filter)
	if !ok {
		return repository.NotFound[T](), nil
	}
	return r.found(r.rows[id])
}

// Find returns every document matching filter, ordered by id.
func (r *Repository[T]) Find(_ context.Context, filter repository.Filter) ([]T, error) {
	filter, err := r.schema.PrepareFilter(filter)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	docs := make([]T, 0)
	for _, id := range r.sortedIDs() {
		row := r.rows[id]
		if !matches(row, filter) {
			continue
		}
		doc, err := r.schema.Decode(maps.Clone(row))
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// FindOneAndUpdate applies patch to the first document matching filter.
func (r *Repository[T]) FindOneAndUpdate(_ context.Context, filter repository.Filter, patch repository.Patch) (repository.Result[T], error) {
	filter, err := r.schema.PrepareFilter(filter)
	if err != nil {
		return repository.NotFound[T](), err
	}
	patch, err = r.schema.PreparePatch(patch)
	if err != nil {
		return repository.NotFound[T](), err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.first(filter)
	if !ok {
		return repository.NotFound[T](), nil
	}

	updated := maps.Clone(r.rows[id])
	maps.Copy(updated, patch)
	if err := r.checkUnique(updated, id); err != nil {
		return repository.NotFound[T](), err
	}
	r.rows[id] = updated
	return r.found(updated)
}

// FindOneAndDelete removes the first document matching filter.
func (r *Repository[T]) FindOneAndDelete(_ context.Context, filter repository.Filter) (repository.Result[T], error) {
	filter, err := r.schema.PrepareFilter(filter)
	if err != nil {
		return repository.NotFound[T](), err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.first(filter)
	if !ok {
		return repository.NotFound[T](), nil
	}
	row := r.rows[id]
	delete(r.rows, id)
	return r.found(row)
}

func (r *Repository[T]) found(row map[string]any) (repository.Result[T], error) {
	doc, err := r.schema.Decode(maps.Clone(row))
	if err != nil {
		return repository.NotFound[T](), err
	}
	return repository.Found(doc), nil
}

// first returns the lowest id matching filter. Callers hold r.mu.
func (r *Repository[T]) first(filter repository.Filter) (string, bool) {
	for _, id := range r.sortedIDs() {
		if matches(r.rows[id], filter) {
			return id, true
		}
	}
	return "", false
}

func (r *Repository[T]) sortedIDs() []string {
	return slices.Sorted(maps.Keys(r.rows))
}

// checkUnique rejects fields that collide with another row on a unique
// column. self is the id of the row being replaced, if any. Callers hold r.mu.
func (r *Repository[T]) checkUnique(fields map[string]any, self string) error {
	for id, row := range r.rows {
		if id == self {
			continue
		}
		for _, col := range r.schema.Columns {
			if !r.schema.IsUnique(col) || fields[col] == nil {
				continue
			}
			if equal(row[col], fields[col]) {
				return oops.Code(apperr.CodeConflict).
					With("table", r.schema.Table).
					With("column", col).
					Wrap(repository.ErrConflict)
			}
		}
	}
	return nil
}

func matches(row map[string]any, filter repository.Filter) bool {
	for col, want := range filter {
		if !equal(row[col], want) {
			return false
		}
	}
	return true
}

func equal(a, b any) bool {
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	if ia, ok := asInt(a); ok {
		ib, ok := asInt(b)
		return ok && ia == ib
	}
	return reflect.DeepEqual(a, b)
}

func asInt(v any) (int64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return int64(rv.Uint()), true //nolint:gosec // bounded by kind
	default:
		return 0, false
	}
}

var _ repository.Repository[struct{}] = (*Repository[struct{}])(nil)
