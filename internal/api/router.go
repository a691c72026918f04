package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/soramir/inkwell/internal/capture"
	"github.com/soramir/inkwell/internal/runlog"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *capture.Service, runs *runlog.DB, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc, runs)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Capture surface.
	r.Get("/messages", h.ListMessages)
	r.Post("/messages", h.SendMessage)

	// Diary generation.
	r.Post("/diary", h.GenerateDiary)
	r.Get("/diary/runs", h.ListDiaryRuns)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
