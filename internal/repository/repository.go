// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

// Package repository defines the persistence contract shared by every
// reservd service.
//
// A Repository stores documents of one entity type in one table. Documents
// are described by a Schema, which names the table, its columns, and the
// Codec that converts between the entity and a column map. Implementations
// live in the postgres and memory subpackages.
//
// Lookups return a Result so call sites decide explicitly what "not found"
// means; the error return is reserved for storage failures, conflicts, and
// unknown columns.
package repository

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/reservd/reservd/internal/apperr"
)

// Well-known columns managed by the repository itself.
const (
	ColumnID        = "id"
	ColumnCreatedAt = "created_at"
	ColumnUpdatedAt = "updated_at"
)

// Sentinel errors. Implementations wrap these with oops codes and context;
// test for them with errors.Is.
var (
	// ErrNotFound is returned by Result.Require when no document matched.
	ErrNotFound = errors.New("document not found")

	// ErrConflict is returned when a write would violate a unique column.
	ErrConflict = errors.New("document conflicts with an existing document")

	// ErrInvalidField is returned when a filter or patch names a column the
	// schema does not declare.
	ErrInvalidField = errors.New("unknown field")
)

// Repository is the generic persistence contract.
type Repository[T any] interface {
	// Create stores doc, assigning an id and timestamps, and returns the
	// stored document.
	Create(ctx context.Context, doc T) (T, error)

	// FindOne returns the first document matching filter.
	FindOne(ctx context.Context, filter Filter) (Result[T], error)

	// Find returns every document matching filter, ordered by id.
	// No matches is an empty slice, not an error.
	Find(ctx context.Context, filter Filter) ([]T, error)

	// FindOneAndUpdate applies patch to the first document matching filter
	// and returns the updated document.
	FindOneAndUpdate(ctx context.Context, filter Filter, patch Patch) (Result[T], error)

	// FindOneAndDelete removes the first document matching filter and
	// returns it as it was before removal.
	FindOneAndDelete(ctx context.Context, filter Filter) (Result[T], error)
}

// Filter is a conjunction of column equality conditions.
// An empty filter matches every document.
type Filter map[string]any

// Patch maps columns to their new values.
type Patch map[string]any

// Result is the outcome of a single-document lookup.
type Result[T any] struct {
	value T
	found bool
}

// Found wraps a matched document.
func Found[T any](v T) Result[T] {
	return Result[T]{value: v, found: true}
}

// NotFound is the result of a lookup that matched nothing.
func NotFound[T any]() Result[T] {
	return Result[T]{}
}

// Get returns the document and whether one was found.
func (r Result[T]) Get() (T, bool) {
	return r.value, r.found
}

// IsFound reports whether a document was found.
func (r Result[T]) IsFound() bool {
	return r.found
}

// Require returns the document, or an error wrapping ErrNotFound.
func (r Result[T]) Require() (T, error) {
	if !r.found {
		var zero T
		return zero, oops.Code(apperr.CodeNotFound).Wrap(ErrNotFound)
	}
	return r.value, nil
}

// Codec converts between an entity and its column values.
type Codec[T any] interface {
	Fields(doc T) map[string]any
	FromFields(fields map[string]any) (T, error)
}

// Schema describes how documents of type T are stored.
type Schema[T any] struct {
	// Table is the table (or collection) name.
	Table string

	// Columns lists every stored column, including id and, when used,
	// created_at and updated_at.
	Columns []string

	// Unique lists columns whose values must be unique across documents.
	// The id column is always unique.
	Unique []string

	// CaseInsensitive lists string columns that are stored and compared
	// trimmed and lower-cased.
	CaseInsensitive []string

	Codec Codec[T]

	// Clock returns the current time. Defaults to time.Now in UTC.
	Clock func() time.Time
}

// HasColumn reports whether the schema declares column.
func (s Schema[T]) HasColumn(column string) bool {
	return slices.Contains(s.Columns, column)
}

// Now returns the schema clock's current time.
func (s Schema[T]) Now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now().UTC()
}

// SortedColumns returns the declared columns in lexical order.
func (s Schema[T]) SortedColumns() []string {
	cols := slices.Clone(s.Columns)
	slices.Sort(cols)
	return cols
}

// IsUnique reports whether column must hold unique values.
func (s Schema[T]) IsUnique(column string) bool {
	return column == ColumnID || slices.Contains(s.Unique, column)
}

// PrepareCreate encodes doc for insertion: it assigns a new id when the
// document has none, stamps created_at and updated_at when declared, and
// normalizes case-insensitive columns.
func (s Schema[T]) PrepareCreate(doc T) (map[string]any, error) {
	fields := s.Codec.Fields(doc)
	if err := s.checkColumns(fields); err != nil {
		return nil, err
	}

	if isZeroID(fields[ColumnID]) {
		fields[ColumnID] = ulid.Make().String()
	}

	now := s.Now()
	if s.HasColumn(ColumnCreatedAt) {
		if t, ok := fields[ColumnCreatedAt].(time.Time); !ok || t.IsZero() {
			fields[ColumnCreatedAt] = now
		}
	}
	if s.HasColumn(ColumnUpdatedAt) {
		fields[ColumnUpdatedAt] = now
	}

	// Every declared column is written so stores see a complete row.
	for _, col := range s.Columns {
		if _, ok := fields[col]; !ok {
			fields[col] = nil
		}
	}
	return s.normalize(fields), nil
}

// PrepareFilter validates filter and normalizes its values.
func (s Schema[T]) PrepareFilter(filter Filter) (Filter, error) {
	if err := s.checkColumns(filter); err != nil {
		return nil, err
	}
	return Filter(s.normalize(filter)), nil
}

// PreparePatch validates patch, normalizes its values, and stamps
// updated_at when declared. The id column cannot be patched.
func (s Schema[T]) PreparePatch(patch Patch) (Patch, error) {
	if err := s.checkColumns(patch); err != nil {
		return nil, err
	}
	if _, ok := patch[ColumnID]; ok {
		return nil, oops.Code(apperr.CodeInvalidArgument).
			With("table", s.Table).
			With("column", ColumnID).
			Wrapf(ErrInvalidField, "column %q is immutable", ColumnID)
	}
	out := s.normalize(patch)
	if s.HasColumn(ColumnUpdatedAt) {
		out[ColumnUpdatedAt] = s.Now()
	}
	return Patch(out), nil
}

// Decode converts a stored column map back into a document.
func (s Schema[T]) Decode(fields map[string]any) (T, error) {
	doc, err := s.Codec.FromFields(fields)
	if err != nil {
		var zero T
		return zero, oops.Code("REPOSITORY_DECODE_FAILED").
			With("table", s.Table).
			Wrap(err)
	}
	return doc, nil
}

func (s Schema[T]) checkColumns(fields map[string]any) error {
	for col := range fields {
		if !s.HasColumn(col) {
			return oops.Code(apperr.CodeInvalidArgument).
				With("table", s.Table).
				With("column", col).
				Wrapf(ErrInvalidField, "unknown column %q", col)
		}
	}
	return nil
}

func (s Schema[T]) normalize(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for col, v := range fields {
		if str, ok := v.(string); ok && slices.Contains(s.CaseInsensitive, col) {
			v = NormalizeCase(str)
		}
		out[col] = v
	}
	return out
}

// NormalizeCase is the canonical form of a case-insensitive value.
func NormalizeCase(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func isZeroID(v any) bool {
	switch id := v.(type) {
	case nil:
		return true
	case string:
		return id == "" || id == (ulid.ULID{}).String()
	case ulid.ULID:
		return id == ulid.ULID{}
	default:
		return false
	}
}
