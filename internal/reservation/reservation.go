// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

// Package reservation manages place reservations for authenticated users.
// Every reservation is paid through the payment service before it is
// stored, and belongs to the user who made it.
package reservation

import (
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/reservd/reservd/internal/apperr"
	"github.com/reservd/reservd/internal/repository"
)

// Reservation is a booked place.
type Reservation struct {
	ID          ulid.ULID `json:"id"`
	UserID      ulid.ULID `json:"user_id"`
	PlaceID     string    `json:"place_id"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	InvoiceID   string    `json:"invoice_id"`
	AmountCents int64     `json:"amount_cents"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Codec maps Reservations onto the reservations table.
type Codec struct{}

// Fields implements repository.Codec.
func (Codec) Fields(r Reservation) map[string]any {
	id := ""
	if r.ID != (ulid.ULID{}) {
		id = r.ID.String()
	}
	return map[string]any{
		"id":           id,
		"user_id":      r.UserID.String(),
		"place_id":     r.PlaceID,
		"start_date":   r.StartDate,
		"end_date":     r.EndDate,
		"invoice_id":   r.InvoiceID,
		"amount_cents": r.AmountCents,
		"created_at":   r.CreatedAt,
		"updated_at":   r.UpdatedAt,
	}
}

// FromFields implements repository.Codec.
func (Codec) FromFields(f map[string]any) (Reservation, error) {
	var r Reservation
	for key, dst := range map[string]*ulid.ULID{"id": &r.ID, "user_id": &r.UserID} {
		raw, _ := f[key].(string)
		id, err := ulid.Parse(raw)
		if err != nil {
			return Reservation{}, oops.Code("RESERVATION_INVALID_ID").With(key, raw).Wrap(err)
		}
		*dst = id
	}
	r.PlaceID, _ = f["place_id"].(string)
	r.StartDate, _ = f["start_date"].(time.Time)
	r.EndDate, _ = f["end_date"].(time.Time)
	r.InvoiceID, _ = f["invoice_id"].(string)
	r.AmountCents, _ = f["amount_cents"].(int64)
	r.CreatedAt, _ = f["created_at"].(time.Time)
	r.UpdatedAt, _ = f["updated_at"].(time.Time)
	return r, nil
}

// Schema describes the reservations table.
func Schema() repository.Schema[Reservation] {
	return repository.Schema[Reservation]{
		Table: "reservations",
		Columns: []string{
			"id", "user_id", "place_id", "start_date", "end_date",
			"invoice_id", "amount_cents", "created_at", "updated_at",
		},
		Codec: Codec{},
	}
}

// CreateInput is a reservation request.
type CreateInput struct {
	PlaceID     string    `json:"place_id"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	AmountCents int64     `json:"amount_cents"`
}

// UpdateInput changes a reservation. Nil fields are left as they are.
type UpdateInput struct {
	PlaceID   *string    `json:"place_id,omitempty"`
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
}

// Empty reports whether u changes nothing.
func (u UpdateInput) Empty() bool {
	return u.PlaceID == nil && u.StartDate == nil && u.EndDate == nil
}

// Validate checks a create request.
func (in CreateInput) Validate() error {
	if err := validatePlace(in.PlaceID); err != nil {
		return err
	}
	if err := validateDates(in.StartDate, in.EndDate); err != nil {
		return err
	}
	if in.AmountCents <= 0 {
		return oops.Code(apperr.CodeInvalidArgument).
			With("amount_cents", in.AmountCents).
			Errorf("amount_cents must be positive")
	}
	return nil
}

func validatePlace(placeID string) error {
	if placeID == "" {
		return oops.Code(apperr.CodeInvalidArgument).Errorf("place_id is required")
	}
	if len(placeID) > 128 {
		return oops.Code(apperr.CodeInvalidArgument).Errorf("place_id must be at most 128 characters")
	}
	return nil
}

func validateDates(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return oops.Code(apperr.CodeInvalidArgument).Errorf("start_date and end_date are required")
	}
	if !end.After(start) {
		return oops.Code(apperr.CodeInvalidArgument).
			With("start_date", start).
			With("end_date", end).
			Errorf("end_date must be after start_date")
	}
	return nil
}
