package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/starford/tripwatch/internal/apperr"
	"github.com/starford/tripwatch/internal/tripservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *tripservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *tripservice.Service) *Handler {
	return &Handler{svc: svc}
}

// ListTrips handles GET /api/trips.
//
//	@Summary	List known trips, most recently changed first
//	@Tags		trips
//	@Produce	json
//	@Param		limit	query		int	false	"Page size"
//	@Param		offset	query		int	false	"Page offset"
//	@Success	200		{object}	tripservice.TripList
//	@Security	BearerAuth
//	@Router		/trips [get]
func (h *Handler) ListTrips(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	list, err := h.svc.ListTrips(r.Context(), limit, offset)
	if err != nil {
		slog.Error("list trips failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// LookupTrip handles GET /api/trips/lookup?link=.
//
//	@Summary	Get the stored display text of one trip
//	@Tags		trips
//	@Produce	json
//	@Param		link	query		string	true	"Absolute trip link"
//	@Success	200		{object}	models.KnownTrip
//	@Failure	400		{object}	errResponse
//	@Failure	404		{object}	errResponse
//	@Security	BearerAuth
//	@Router		/trips/lookup [get]
func (h *Handler) LookupTrip(w http.ResponseWriter, r *http.Request) {
	link := r.URL.Query().Get("link")
	if link == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'link' is required"))
		return
	}
	kt, err := h.svc.LookupTrip(r.Context(), link)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("trip not found"))
			return
		}
		slog.Error("lookup trip failed", slog.String("link", link), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, kt)
}

// LastCycle handles GET /api/cycles/last.
//
//	@Summary	Outcome of the most recent cycle
//	@Tags		cycles
//	@Produce	json
//	@Success	200	{object}	cycle.Outcome
//	@Failure	404	{object}	errResponse
//	@Security	BearerAuth
//	@Router		/cycles/last [get]
func (h *Handler) LastCycle(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.LastCycle(r.Context())
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody("no cycle has finished yet"))
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// RunCycle handles POST /api/cycles.
//
//	@Summary	Run a cycle now
//	@Tags		cycles
//	@Produce	json
//	@Success	200	{object}	cycle.Outcome
//	@Failure	409	{object}	errResponse
//	@Security	BearerAuth
//	@Router		/cycles [post]
func (h *Handler) RunCycle(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.RunCycle(r.Context())
	if err != nil {
		if errors.Is(err, apperr.ErrCycleRunning) {
			writeJSON(w, http.StatusConflict, errorBody(err.Error()))
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, out)
}
