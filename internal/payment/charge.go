// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

// Package payment records charges for authenticated users and announces
// them to the notification stream.
//
// Charges are recorded locally with a generated invoice id; no payment
// provider is contacted.
package payment

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/reservd/reservd/internal/apperr"
	"github.com/reservd/reservd/internal/repository"
)

// DefaultCurrency is used when a charge names none.
const DefaultCurrency = "usd"

// Charge is a recorded payment.
type Charge struct {
	ID          ulid.ULID `json:"id"`
	UserID      ulid.ULID `json:"user_id"`
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency"`
	InvoiceID   string    `json:"invoice_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewInvoiceID returns a fresh invoice id.
func NewInvoiceID() string {
	return "inv_" + strings.ToLower(ulid.Make().String())
}

// ChargeCodec maps Charges onto the charges table.
type ChargeCodec struct{}

// Fields implements repository.Codec.
func (ChargeCodec) Fields(c Charge) map[string]any {
	id := ""
	if c.ID != (ulid.ULID{}) {
		id = c.ID.String()
	}
	return map[string]any{
		"id":           id,
		"user_id":      c.UserID.String(),
		"amount_cents": c.AmountCents,
		"currency":     c.Currency,
		"invoice_id":   c.InvoiceID,
		"created_at":   c.CreatedAt,
	}
}

// FromFields implements repository.Codec.
func (ChargeCodec) FromFields(f map[string]any) (Charge, error) {
	var c Charge
	var err error
	if c.ID, err = parseULID(f, "id"); err != nil {
		return Charge{}, err
	}
	if c.UserID, err = parseULID(f, "user_id"); err != nil {
		return Charge{}, err
	}
	c.AmountCents, _ = f["amount_cents"].(int64)
	c.Currency, _ = f["currency"].(string)
	c.InvoiceID, _ = f["invoice_id"].(string)
	c.CreatedAt, _ = f["created_at"].(time.Time)
	return c, nil
}

func parseULID(f map[string]any, key string) (ulid.ULID, error) {
	raw, _ := f[key].(string)
	id, err := ulid.Parse(raw)
	if err != nil {
		return ulid.ULID{}, oops.Code("CHARGE_INVALID_ID").With(key, raw).Wrap(err)
	}
	return id, nil
}

// ChargeSchema describes the charges table.
func ChargeSchema() repository.Schema[Charge] {
	return repository.Schema[Charge]{
		Table:           "charges",
		Columns:         []string{"id", "user_id", "amount_cents", "currency", "invoice_id", "created_at"},
		Unique:          []string{"invoice_id"},
		CaseInsensitive: []string{"currency"},
		Codec:           ChargeCodec{},
	}
}

// ChargeStore persists charges.
type ChargeStore interface {
	Create(ctx context.Context, c Charge) (Charge, error)
}

// validateCharge checks a charge request before anything is recorded.
func validateCharge(amountCents int64, currency string) (string, error) {
	if amountCents <= 0 {
		return "", oops.Code(apperr.CodeInvalidArgument).
			With("amount_cents", amountCents).
			Errorf("amount must be positive")
	}
	currency = repository.NormalizeCase(currency)
	if currency == "" {
		currency = DefaultCurrency
	}
	if len(currency) != 3 {
		return "", oops.Code(apperr.CodeInvalidArgument).
			With("currency", currency).
			Errorf("currency must be a three-letter code")
	}
	return currency, nil
}
