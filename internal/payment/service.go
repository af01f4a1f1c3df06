// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

package payment

import (
	"context"
	"log/slog"

	"github.com/samber/oops"

	"github.com/reservd/reservd/internal/auth"
	"github.com/reservd/reservd/internal/notification"
	"github.com/reservd/reservd/pkg/errutil"
)

// Publisher announces events to other services. *notification.Producer
// implements it.
type Publisher interface {
	Publish(ctx context.Context, pattern string, data any) (string, error)
}

// Service records charges.
type Service struct {
	charges   ChargeStore
	publisher Publisher
	logger    *slog.Logger
}

// NewService creates a Service. publisher may be nil, in which case no
// notification is sent.
func NewService(charges ChargeStore, publisher Publisher, logger *slog.Logger) (*Service, error) {
	if charges == nil {
		return nil, oops.Errorf("charge store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{charges: charges, publisher: publisher, logger: logger}, nil
}

// CreateCharge records a charge of amountCents for payer and asks for an
// e-mail notification. A failed notification does not undo the charge.
func (s *Service) CreateCharge(ctx context.Context, payer auth.Identity, amountCents int64, currency string) (Charge, error) {
	currency, err := validateCharge(amountCents, currency)
	if err != nil {
		return Charge{}, err
	}

	charge, err := s.charges.Create(ctx, Charge{
		UserID:      payer.UserID,
		AmountCents: amountCents,
		Currency:    currency,
		InvoiceID:   NewInvoiceID(),
	})
	if err != nil {
		return Charge{}, oops.With("operation", "record charge").With("user_id", payer.UserID.String()).Wrap(err)
	}
	s.logger.InfoContext(ctx, "charge recorded",
		"invoice_id", charge.InvoiceID,
		"user_id", payer.UserID.String(),
		"amount_cents", charge.AmountCents,
	)

	if s.publisher != nil {
		_, err := s.publisher.Publish(ctx, notification.PatternNotifyEmail, notification.EmailNotification{
			Email:       payer.Email,
			UserID:      payer.UserID.String(),
			InvoiceID:   charge.InvoiceID,
			AmountCents: charge.AmountCents,
			Currency:    charge.Currency,
		})
		if err != nil {
			errutil.LogWarn(ctx, s.logger, "charge notification not sent", err, "invoice_id", charge.InvoiceID)
		}
	}
	return charge, nil
}
