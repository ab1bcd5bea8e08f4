package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/nb2py/internal/convertservice"
)

// NewRouter creates a chi router with all API routes mounted.
// auth selects the authentication mode applied to every route.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *convertservice.Service, auth Auth, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(auth))

	// Stateless conversion.
	r.Post("/convert", h.Convert)

	// Workspace notebooks.
	r.Post("/notebooks/*", h.ConvertNotebook)

	// Ledger.
	r.Get("/conversions", h.ListConversions)
	r.Get("/conversions/*", h.GetConversion)

	// Search.
	r.Get("/search", h.Search)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
