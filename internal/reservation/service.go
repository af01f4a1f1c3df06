// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

package reservation

import (
	"context"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/reservd/reservd/internal/apperr"
	"github.com/reservd/reservd/internal/auth"
	"github.com/reservd/reservd/internal/repository"
)

// Charger takes payment for the caller of ctx and returns the invoice id.
// *payment.Client implements it.
type Charger interface {
	Charge(ctx context.Context, amountCents int64) (string, error)
}

// Service manages reservations on behalf of authenticated users.
type Service struct {
	repo    repository.Repository[Reservation]
	charger Charger
	logger  *slog.Logger
}

// NewService creates a Service.
func NewService(repo repository.Repository[Reservation], charger Charger, logger *slog.Logger) (*Service, error) {
	if repo == nil {
		return nil, oops.Errorf("reservation repository is required")
	}
	if charger == nil {
		return nil, oops.Errorf("charger is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, charger: charger, logger: logger}, nil
}

// Create charges owner for in and stores the reservation with the invoice
// the payment service returned. Nothing is stored if the charge fails.
func (s *Service) Create(ctx context.Context, owner auth.Identity, in CreateInput) (Reservation, error) {
	if err := in.Validate(); err != nil {
		return Reservation{}, err
	}

	invoice, err := s.charger.Charge(ctx, in.AmountCents)
	if err != nil {
		return Reservation{}, err
	}

	r, err := s.repo.Create(ctx, Reservation{
		UserID:      owner.UserID,
		PlaceID:     in.PlaceID,
		StartDate:   in.StartDate.UTC(),
		EndDate:     in.EndDate.UTC(),
		InvoiceID:   invoice,
		AmountCents: in.AmountCents,
	})
	if err != nil {
		return Reservation{}, oops.With("operation", "store reservation").With("invoice_id", invoice).Wrap(err)
	}
	s.logger.InfoContext(ctx, "reservation created",
		"reservation_id", r.ID.String(),
		"user_id", owner.UserID.String(),
		"invoice_id", invoice,
	)
	return r, nil
}

// List returns owner's reservations.
func (s *Service) List(ctx context.Context, owner auth.Identity) ([]Reservation, error) {
	return s.repo.Find(ctx, ownedBy(owner, ulid.ULID{}))
}

// Get returns owner's reservation id. Other users' reservations are
// NOT_FOUND.
func (s *Service) Get(ctx context.Context, owner auth.Identity, id ulid.ULID) (Reservation, error) {
	res, err := s.repo.FindOne(ctx, ownedBy(owner, id))
	if err != nil {
		return Reservation{}, err
	}
	return mustExist(res, id)
}

// Update applies in to owner's reservation id.
func (s *Service) Update(ctx context.Context, owner auth.Identity, id ulid.ULID, in UpdateInput) (Reservation, error) {
	if in.Empty() {
		return Reservation{}, oops.Code(apperr.CodeInvalidArgument).Errorf("update changes nothing")
	}

	current, err := s.Get(ctx, owner, id)
	if err != nil {
		return Reservation{}, err
	}

	patch := repository.Patch{}
	start, end := current.StartDate, current.EndDate
	if in.PlaceID != nil {
		if err := validatePlace(*in.PlaceID); err != nil {
			return Reservation{}, err
		}
		patch["place_id"] = *in.PlaceID
	}
	if in.StartDate != nil {
		start = in.StartDate.UTC()
		patch["start_date"] = start
	}
	if in.EndDate != nil {
		end = in.EndDate.UTC()
		patch["end_date"] = end
	}
	if err := validateDates(start, end); err != nil {
		return Reservation{}, err
	}

	res, err := s.repo.FindOneAndUpdate(ctx, ownedBy(owner, id), patch)
	if err != nil {
		return Reservation{}, err
	}
	return mustExist(res, id)
}

// Delete removes owner's reservation id and returns it.
func (s *Service) Delete(ctx context.Context, owner auth.Identity, id ulid.ULID) (Reservation, error) {
	res, err := s.repo.FindOneAndDelete(ctx, ownedBy(owner, id))
	if err != nil {
		return Reservation{}, err
	}
	r, err := mustExist(res, id)
	if err != nil {
		return Reservation{}, err
	}
	s.logger.InfoContext(ctx, "reservation deleted", "reservation_id", id.String(), "user_id", owner.UserID.String())
	return r, nil
}

// ownedBy filters on owner and, when id is set, on the reservation id.
func ownedBy(owner auth.Identity, id ulid.ULID) repository.Filter {
	f := repository.Filter{"user_id": owner.UserID.String()}
	if id != (ulid.ULID{}) {
		f["id"] = id.String()
	}
	return f
}

func mustExist(res repository.Result[Reservation], id ulid.ULID) (Reservation, error) {
	r, err := res.Require()
	if err != nil {
		return Reservation{}, oops.With("reservation_id", id.String()).Wrap(err)
	}
	return r, nil
}
