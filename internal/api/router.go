// Package api assembles the HTTP surface of the ingest service.
package api

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ofx-ingest/internal/api/handlers"
	"github.com/dvloznov/ofx-ingest/internal/api/middleware"
)

type Handlers struct {
	Uploads *handlers.UploadsHandler
	Rules   *handlers.RulesHandler
	Jobs    *handlers.JobsHandler
}

// NewRouter registers every route and wraps them in the middleware chain.
// Routes under /api are scoped to a company; /health is not.
func NewRouter(h Handlers, defaultCompanyID string, log zerolog.Logger) http.Handler {
	api := http.NewServeMux()

	api.HandleFunc("POST /api/uploads", h.Uploads.Upload)
	api.HandleFunc("POST /api/uploads/validate", h.Uploads.Validate)
	api.HandleFunc("GET /api/uploads", h.Uploads.ListUploads)
	api.HandleFunc("GET /api/uploads/{id}/progress", h.Uploads.Progress)
	api.HandleFunc("POST /api/uploads/{id}/cancel", h.Uploads.Cancel)

	api.HandleFunc("GET /api/rules/export", h.Rules.Export)
	api.HandleFunc("POST /api/rules/import", h.Rules.Import)

	api.HandleFunc("GET /api/jobs", h.Jobs.ListJobs)
	api.HandleFunc("GET /api/jobs/{id}", h.Jobs.GetJob)

	root := http.NewServeMux()
	root.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	root.Handle("/api/", middleware.Company(defaultCompanyID)(middleware.Logger(log)(api)))

	return middleware.Recovery(log)(
		middleware.RequestID(
			middleware.CORS(root),
		),
	)
}
