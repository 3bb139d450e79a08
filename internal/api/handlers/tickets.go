package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/depotfs/depotfs/internal/api/middleware"
	"github.com/depotfs/depotfs/internal/logger"
	"github.com/depotfs/depotfs/pkg/ticket"
)

// TicketHandler manages short-lived workspace tickets.
type TicketHandler struct {
	tickets *ticket.Service
}

// NewTicketHandler creates the ticket handler.
func NewTicketHandler(tickets *ticket.Service) *TicketHandler {
	return &TicketHandler{tickets: tickets}
}

type createTicketRequest struct {
	Name string `json:"name,omitempty"`
}

// Create handles POST /v1/tickets.
func (h *TicketHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFrom(r.Context())
	if !ok {
		writeErrorCode(w, http.StatusUnauthorized, "MISSING_TOKEN", "no acting delegate")
		return
	}

	var req createTicketRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	record, err := h.tickets.Create(r.Context(), actor.Realm, req.Name, actor.DelegateID)
	if err != nil {
		writeError(w, err)
		return
	}

	logger.InfoCtx(r.Context(), "Ticket created", "ticket", record.TicketID, "name", record.Name)
	writeJSON(w, http.StatusCreated, record)
}

// Get handles GET /v1/tickets/{id}.
func (h *TicketHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFrom(r.Context())
	if !ok {
		writeErrorCode(w, http.StatusUnauthorized, "MISSING_TOKEN", "no acting delegate")
		return
	}

	record, err := h.tickets.Get(r.Context(), actor.Realm, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// List handles GET /v1/tickets with cursor pagination.
func (h *TicketHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFrom(r.Context())
	if !ok {
		writeErrorCode(w, http.StatusUnauthorized, "MISSING_TOKEN", "no acting delegate")
		return
	}

	limit := 0
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		parsed, err := strconv.Atoi(limitParam)
		if err != nil || parsed < 1 {
			writeErrorCode(w, http.StatusBadRequest, "INVALID_BODY", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	records, next, err := h.tickets.List(r.Context(), actor.Realm, r.URL.Query().Get("cursor"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tickets":    records,
		"nextCursor": next,
	})
}

type submitTicketRequest struct {
	Root string `json:"root"`
}

// Submit handles POST /v1/tickets/{id}/submit.
func (h *TicketHandler) Submit(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFrom(r.Context())
	if !ok {
		writeErrorCode(w, http.StatusUnauthorized, "MISSING_TOKEN", "no acting delegate")
		return
	}

	var req submitTicketRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	root, err := parseNodeParam(req.Root)
	if err != nil {
		writeError(w, err)
		return
	}

	record, err := h.tickets.Submit(r.Context(), actor.Realm, chi.URLParam(r, "id"), root)
	if err != nil {
		writeError(w, err)
		return
	}

	logger.InfoCtx(r.Context(), "Ticket submitted",
		"ticket", record.TicketID, logger.Root(root.String()))
	writeJSON(w, http.StatusOK, record)
}

// Delete handles DELETE /v1/tickets/{id}.
func (h *TicketHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFrom(r.Context())
	if !ok {
		writeErrorCode(w, http.StatusUnauthorized, "MISSING_TOKEN", "no acting delegate")
		return
	}

	if err := h.tickets.Delete(r.Context(), actor.Realm, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
