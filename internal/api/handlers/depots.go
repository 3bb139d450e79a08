package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/depotfs/depotfs/internal/api/middleware"
	"github.com/depotfs/depotfs/internal/logger"
	"github.com/depotfs/depotfs/pkg/cas"
	"github.com/depotfs/depotfs/pkg/depot"
	"github.com/depotfs/depotfs/pkg/fs"
)

// DepotHandler manages named depot records. All mutations require the
// depot management capability; reads only require realm membership.
type DepotHandler struct {
	depots *depot.Registry
}

// NewDepotHandler creates the depot handler.
func NewDepotHandler(depots *depot.Registry) *DepotHandler {
	return &DepotHandler{depots: depots}
}

func (h *DepotHandler) actor(w http.ResponseWriter, r *http.Request, manage bool) (fs.Actor, bool) {
	actor, ok := middleware.ActorFrom(r.Context())
	if !ok {
		writeErrorCode(w, http.StatusUnauthorized, "MISSING_TOKEN", "no acting delegate")
		return fs.Actor{}, false
	}
	if manage {
		record, ok := middleware.DelegateFrom(r.Context())
		if !ok || !record.CanManageDepot {
			writeErrorCode(w, http.StatusForbidden, "DEPOT_ACCESS_DENIED",
				"delegate lacks the depot management capability")
			return fs.Actor{}, false
		}
	}
	return actor, true
}

type createDepotRequest struct {
	Name        string `json:"name"`
	InitialRoot string `json:"initialRoot,omitempty"`
	MaxHistory  int    `json:"maxHistory,omitempty"`
}

// Create handles POST /v1/depots.
func (h *DepotHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r, true)
	if !ok {
		return
	}

	var req createDepotRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	root := cas.ZeroKey
	if req.InitialRoot != "" {
		parsed, err := parseNodeParam(req.InitialRoot)
		if err != nil {
			writeError(w, err)
			return
		}
		root = parsed
	}

	record, err := h.depots.Create(r.Context(), actor.Realm, req.Name, root, req.MaxHistory,
		actor.Chain[0], actor.DelegateID)
	if err != nil {
		writeError(w, err)
		return
	}

	logger.InfoCtx(r.Context(), "Depot created",
		logger.Depot(record.DepotID), "name", record.Name, logger.Realm(record.Realm))
	writeJSON(w, http.StatusCreated, record)
}

// Get handles GET /v1/depots/{id}. With ?version=N the response also
// carries the root that version resolves to.
func (h *DepotHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r, false)
	if !ok {
		return
	}
	depotID := chi.URLParam(r, "id")

	record, err := h.depots.Get(r.Context(), actor.Realm, depotID)
	if err != nil {
		writeError(w, err)
		return
	}

	if versionParam := r.URL.Query().Get("version"); versionParam != "" {
		version, err := strconv.ParseUint(versionParam, 10, 64)
		if err != nil {
			writeErrorCode(w, http.StatusBadRequest, "INVALID_BODY", "version must be a non-negative integer")
			return
		}
		root, err := h.depots.ResolveVersion(r.Context(), actor.Realm, depotID, version)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"depot":        record,
			"version":      version,
			"resolvedRoot": root.Format(cas.PrefixNode),
		})
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// List handles GET /v1/depots with cursor pagination.
func (h *DepotHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r, false)
	if !ok {
		return
	}

	limit := 100
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		parsed, err := strconv.Atoi(limitParam)
		if err != nil || parsed < 1 {
			writeErrorCode(w, http.StatusBadRequest, "INVALID_BODY", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	records, next, err := h.depots.List(r.Context(), actor.Realm, r.URL.Query().Get("cursor"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"depots":     records,
		"nextCursor": next,
	})
}

type commitRequest struct {
	NewRoot string `json:"newRoot"`

	// ExpectedRoot, when present, gates the commit: it must equal the
	// depot's current root. The empty string expects a depot with no root.
	ExpectedRoot *string `json:"expectedRoot,omitempty"`

	Diff string `json:"diff,omitempty"`
}

// Commit handles POST /v1/depots/{id}/commit.
func (h *DepotHandler) Commit(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r, true)
	if !ok {
		return
	}
	depotID := chi.URLParam(r, "id")

	var req commitRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	newRoot, err := parseNodeParam(req.NewRoot)
	if err != nil {
		writeError(w, err)
		return
	}

	params := depot.CommitParams{NewRoot: newRoot, Diff: req.Diff}
	if req.ExpectedRoot != nil {
		expected := cas.ZeroKey
		if *req.ExpectedRoot != "" {
			expected, err = parseNodeParam(*req.ExpectedRoot)
			if err != nil {
				writeError(w, err)
				return
			}
		}
		params.ExpectedRoot = &expected
	}

	record, err := h.depots.Commit(r.Context(), actor.Realm, depotID, params)
	if err != nil {
		writeError(w, err)
		return
	}

	logger.InfoCtx(r.Context(), "Depot committed",
		logger.Depot(depotID), logger.Root(newRoot.String()), "seq", record.History[0].Seq)
	writeJSON(w, http.StatusOK, record)
}

type updateDepotRequest struct {
	Name       *string `json:"name,omitempty"`
	MaxHistory *int    `json:"maxHistory,omitempty"`
}

// Update handles PATCH /v1/depots/{id}.
func (h *DepotHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r, true)
	if !ok {
		return
	}
	depotID := chi.URLParam(r, "id")

	var req updateDepotRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	record, err := h.depots.Update(r.Context(), actor.Realm, depotID, depot.UpdateParams{
		Name:       req.Name,
		MaxHistory: req.MaxHistory,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// Delete handles DELETE /v1/depots/{id}. The depot record disappears; the
// nodes it pointed at stay content-addressed and owned.
func (h *DepotHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r, true)
	if !ok {
		return
	}
	depotID := chi.URLParam(r, "id")

	if err := h.depots.Delete(r.Context(), actor.Realm, depotID); err != nil {
		writeError(w, err)
		return
	}
	logger.InfoCtx(r.Context(), "Depot deleted", logger.Depot(depotID))
	w.WriteHeader(http.StatusNoContent)
}
