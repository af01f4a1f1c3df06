// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

package reservation

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/reservd/reservd/internal/apperr"
	"github.com/reservd/reservd/internal/auth"
	"github.com/reservd/reservd/internal/gate"
	"github.com/reservd/reservd/internal/httpapi"
)

// Handler serves the reservation routes. Every route sits behind the gate.
type Handler struct {
	svc    *Service
	gate   *gate.Gate
	logger *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(svc *Service, g *gate.Gate, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, gate: g, logger: logger}
}

// Routes returns the reservation router.
//
//	POST   /reservations
//	GET    /reservations
//	GET    /reservations/{id}
//	PATCH  /reservations/{id}
//	DELETE /reservations/{id}
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(h.gate.HTTP)
	r.Route("/reservations", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Patch("/{id}", h.update)
		r.Delete("/{id}", h.remove)
	})
	return r
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	var in CreateInput
	if err := httpapi.DecodeJSON(w, r, &in); err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	res, err := h.svc.Create(r.Context(), owner, in)
	if err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusCreated, res)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	res, err := h.svc.List(r.Context(), owner)
	if err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	if res == nil {
		res = []Reservation{}
	}
	httpapi.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.target(w, r)
	if !ok {
		return
	}
	res, err := h.svc.Get(r.Context(), owner, id)
	if err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var in UpdateInput
	if err := httpapi.DecodeJSON(w, r, &in); err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	res, err := h.svc.Update(r.Context(), owner, id, in)
	if err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.target(w, r)
	if !ok {
		return
	}
	res, err := h.svc.Delete(r.Context(), owner, id)
	if err != nil {
		httpapi.WriteError(w, r, h.logger, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) owner(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id, ok := gate.IdentityFrom(r.Context())
	if !ok {
		gate.WriteDenied(w, oops.Code(apperr.CodeRejected).Errorf("no identity"))
	}
	return id, ok
}

func (h *Handler) target(w http.ResponseWriter, r *http.Request) (auth.Identity, ulid.ULID, bool) {
	owner, ok := h.owner(w, r)
	if !ok {
		return auth.Identity{}, ulid.ULID{}, false
	}
	raw := chi.URLParam(r, "id")
	id, err := ulid.Parse(raw)
	if err != nil {
		// A malformed id cannot name an existing reservation.
		httpapi.WriteError(w, r, h.logger, oops.Code(apperr.CodeNotFound).With("id", raw).Errorf("reservation not found"))
		return auth.Identity{}, ulid.ULID{}, false
	}
	return owner, id, true
}
