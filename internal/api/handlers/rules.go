package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ofx-ingest/internal/api/middleware"
	"github.com/dvloznov/ofx-ingest/internal/logger"
	"github.com/dvloznov/ofx-ingest/internal/rules"
)

type RuleTransfer interface {
	Export(ctx context.Context, companyID string, activeOnly bool) (*rules.ExportDocument, error)
	Import(ctx context.Context, companyID string, doc *rules.ExportDocument, opts rules.ImportOptions) (*rules.ImportResult, error)
}

// RulesHandler serves rule export and import.
type RulesHandler struct {
	svc RuleTransfer
	log zerolog.Logger
	now func() time.Time
}

func NewRulesHandler(svc RuleTransfer, log zerolog.Logger) *RulesHandler {
	return &RulesHandler{svc: svc, log: log, now: time.Now}
}

// Export handles GET /api/rules/export
func (h *RulesHandler) Export(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	companyID := middleware.CompanyFromContext(ctx)

	activeOnly := true
	if v := r.URL.Query().Get("activeOnly"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "activeOnly must be true or false")
			return
		}
		activeOnly = parsed
	}

	doc, err := h.svc.Export(ctx, companyID, activeOnly)
	if err != nil {
		h.writeError(ctx, w, err, "Failed to export rules")
		return
	}

	filename := fmt.Sprintf("rules-export-%s-%d.json", companyID, h.now().UnixMilli())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	middleware.WriteJSON(w, http.StatusOK, doc)
}

type importRequest struct {
	ImportData *rules.ExportDocument `json:"importData"`
	Options    *rules.ImportOptions  `json:"options"`
}

// Import handles POST /api/rules/import
func (h *RulesHandler) Import(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ImportData == nil {
		middleware.WriteError(w, http.StatusBadRequest, "importData is required")
		return
	}
	opts := rules.DefaultImportOptions()
	if req.Options != nil {
		opts = *req.Options
	}

	res, err := h.svc.Import(ctx, middleware.CompanyFromContext(ctx), req.ImportData, opts)
	if err != nil {
		h.writeError(ctx, w, err, "Failed to import rules")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"data":    res,
		"message": res.Message(),
	})
}

func (h *RulesHandler) writeError(ctx context.Context, w http.ResponseWriter, err error, logMsg string) {
	status, msg := statusForError(err)
	logger.FromContext(ctx).Warn().Err(err).Int("status", status).Msg(logMsg)
	middleware.WriteError(w, status, msg)
}
