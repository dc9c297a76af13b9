package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(mon Monitor, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(mon)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/services", h.ListServices)
	r.Get("/services/{id}", h.GetService)
	r.Post("/refresh", h.Refresh)
	r.Post("/processes/{pid}/kill", h.KillProcess)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
