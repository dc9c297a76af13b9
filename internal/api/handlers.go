package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/portlight/internal/apperr"
	"github.com/starford/portlight/internal/models"
)

// Monitor is the part of the service monitor the API drives.
type Monitor interface {
	View() models.View
	Refresh()
	Kill(ctx context.Context, pid int32) error
}

// Handler holds API route handlers.
type Handler struct {
	mon Monitor
}

// NewHandler creates a new Handler.
func NewHandler(mon Monitor) *Handler {
	return &Handler{mon: mon}
}

// ListServices handles GET /api/services.
//
//	@Summary		List active local services
//	@Tags			services
//	@Produce		json
//	@Success		200	{object}	ServiceListResponse
//	@Security		BearerAuth
//	@Router			/services [get]
func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, listResponse(h.mon.View()))
}

// GetService handles GET /api/services/{id}.
//
//	@Summary		Get a single service by id
//	@Tags			services
//	@Produce		json
//	@Param			id	path		string	true	"Service id (pid:port or external:port)"
//	@Success		200	{object}	Service
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/services/{id} [get]
func (h *Handler) GetService(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	svc, err := findService(h.mon.View(), id)
	if errors.Is(err, apperr.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody("service not found"))
		return
	}
	writeJSON(w, http.StatusOK, svc)
}

func findService(v models.View, id string) (models.Service, error) {
	for _, s := range v.Services {
		if s.ID == id {
			return s, nil
		}
	}
	return models.Service{}, apperr.ErrNotFound
}

// Refresh handles POST /api/refresh.
//
//	@Summary		Request an immediate discovery cycle
//	@Tags			services
//	@Produce		json
//	@Success		202	{object}	AcceptedResponse
//	@Security		BearerAuth
//	@Router			/refresh [post]
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.mon.Refresh()
	writeJSON(w, http.StatusAccepted, AcceptedResponse{Status: "accepted"})
}

// KillProcess handles POST /api/processes/{pid}/kill.
//
//	@Summary		Terminate the process owning a service
//	@Tags			processes
//	@Produce		json
//	@Param			pid	path		int	true	"Process id"
//	@Success		202	{object}	AcceptedResponse
//	@Failure		400	{object}	errResponse
//	@Failure		503	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/processes/{pid}/kill [post]
func (h *Handler) KillProcess(w http.ResponseWriter, r *http.Request) {
	pid, err := strconv.ParseInt(chi.URLParam(r, "pid"), 10, 32)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid pid"))
		return
	}

	err = h.mon.Kill(r.Context(), int32(pid))
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, AcceptedResponse{Status: "accepted", PID: int32(pid)})
	case errors.Is(err, apperr.ErrInvalidPID):
		writeJSON(w, http.StatusBadRequest, errorBody("invalid pid"))
	case errors.Is(err, apperr.ErrClosed):
		writeJSON(w, http.StatusServiceUnavailable, errorBody("monitor stopped"))
	default:
		slog.Error("api: kill failed", slog.Int64("pid", pid), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}
