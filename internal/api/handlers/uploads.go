package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ofx-ingest/internal/api/middleware"
	"github.com/dvloznov/ofx-ingest/internal/domain"
	"github.com/dvloznov/ofx-ingest/internal/ingest"
	"github.com/dvloznov/ofx-ingest/internal/logger"
	"github.com/dvloznov/ofx-ingest/internal/ofx"
	"github.com/dvloznov/ofx-ingest/internal/progress"
)

// multipartOverhead is allowed on top of the file limit for form boundaries
// and headers.
const multipartOverhead = 1 << 20

type UploadService interface {
	Validate(filename string, content []byte) (*ofx.Document, error)
	Ingest(ctx context.Context, req ingest.Request) (*ingest.Receipt, error)
	ListUploads(ctx context.Context, companyID string) ([]*domain.Upload, error)
	Progress(ctx context.Context, companyID, uploadID string) (*progress.Snapshot, error)
	Cancel(ctx context.Context, companyID, uploadID string) error
}

// UploadsHandler handles statement upload endpoints.
type UploadsHandler struct {
	svc      UploadService
	maxBytes int64
	log      zerolog.Logger
}

func NewUploadsHandler(svc UploadService, maxBytes int64, log zerolog.Logger) *UploadsHandler {
	if maxBytes <= 0 {
		maxBytes = ingest.DefaultMaxBytes
	}
	return &UploadsHandler{svc: svc, maxBytes: maxBytes, log: log}
}

type fileInfo struct {
	Name              string `json:"name"`
	Size              int64  `json:"size"`
	TotalTransactions int    `json:"totalTransactions"`
}

type processingInfo struct {
	Status        domain.UploadStatus `json:"status"`
	EstimatedTime int                 `json:"estimatedTime"`
	ProgressURL   string              `json:"progressUrl"`
	CheckInterval int                 `json:"checkInterval"`
}

type accountInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	BankName string `json:"bankName"`
}

type uploadAccepted struct {
	UploadID       string         `json:"uploadId"`
	JobID          string         `json:"jobId,omitempty"`
	Message        string         `json:"message"`
	FileInfo       fileInfo       `json:"fileInfo"`
	ProcessingInfo processingInfo `json:"processingInfo"`
	AccountInfo    accountInfo    `json:"accountInfo"`
	UploadTime     time.Time      `json:"uploadTime"`
}

type duplicateInfo struct {
	UploadID           string              `json:"uploadId"`
	OriginalUploadDate time.Time           `json:"originalUploadDate"`
	TotalTransactions  int                 `json:"totalTransactions"`
	Status             domain.UploadStatus `json:"status"`
}

// Upload handles POST /api/uploads
func (h *UploadsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	companyID := middleware.CompanyFromContext(ctx)

	name, content, ok := h.readFile(w, r)
	if !ok {
		return
	}

	rc, err := h.svc.Ingest(ctx, ingest.Request{CompanyID: companyID, Filename: name, Content: content})
	if err != nil {
		var dup *ingest.DuplicateUploadError
		if errors.As(err, &dup) {
			middleware.WriteJSON(w, http.StatusConflict, map[string]interface{}{
				"error": "File was already uploaded",
				"duplicateInfo": duplicateInfo{
					UploadID:           dup.UploadID,
					OriginalUploadDate: dup.UploadedAt,
					TotalTransactions:  dup.TotalTransactions,
					Status:             dup.Status,
				},
			})
			return
		}
		h.writeError(ctx, w, err, "Failed to ingest upload")
		return
	}

	u := rc.Upload
	middleware.WriteJSON(w, http.StatusAccepted, uploadAccepted{
		UploadID: u.ID,
		JobID:    rc.JobID,
		Message:  "File received. Processing continues in the background.",
		FileInfo: fileInfo{Name: u.OriginalName, Size: u.FileSize, TotalTransactions: u.TotalTransactions},
		ProcessingInfo: processingInfo{
			Status:        u.Status,
			EstimatedTime: rc.EstimatedSeconds,
			ProgressURL:   fmt.Sprintf("/api/uploads/%s/progress", u.ID),
			CheckInterval: progress.CheckIntervalMs,
		},
		AccountInfo: accountInfo{ID: rc.Account.ID, Name: rc.Account.Name, BankName: rc.Account.BankName},
		UploadTime:  u.UploadedAt,
	})
}

type documentSummary struct {
	Valid             bool        `json:"valid"`
	Kind              ofx.Kind    `json:"kind"`
	Org               string      `json:"org,omitempty"`
	Account           accountView `json:"account"`
	PeriodStart       *time.Time  `json:"periodStart,omitempty"`
	PeriodEnd         *time.Time  `json:"periodEnd,omitempty"`
	Balance           string      `json:"balance"`
	BalanceAsOf       *time.Time  `json:"balanceAsOf,omitempty"`
	TotalTransactions int         `json:"totalTransactions"`
	Transactions      []itemView  `json:"transactions"`
}

type accountView struct {
	BankID      string `json:"bankId"`
	BranchID    string `json:"branchId,omitempty"`
	AccountID   string `json:"accountId"`
	AccountType string `json:"accountType"`
	Currency    string `json:"currency"`
}

type itemView struct {
	ExternalID  string           `json:"externalId"`
	PostedAt    time.Time        `json:"postedAt"`
	Amount      string           `json:"amount"`
	Direction   domain.Direction `json:"direction"`
	Description string           `json:"description"`
}

// Validate handles POST /api/uploads/validate
func (h *UploadsHandler) Validate(w http.ResponseWriter, r *http.Request) {
	name, content, ok := h.readFile(w, r)
	if !ok {
		return
	}

	doc, err := h.svc.Validate(name, content)
	if err != nil {
		h.writeError(r.Context(), w, err, "Failed to validate file")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, summarize(doc))
}

func summarize(doc *ofx.Document) documentSummary {
	out := documentSummary{
		Valid: true,
		Kind:  doc.Kind,
		Org:   doc.Headers.Org,
		Account: accountView{
			BankID:      doc.Account.BankID,
			BranchID:    doc.Account.BranchID,
			AccountID:   doc.Account.AccountID,
			AccountType: doc.Account.AccountType,
			Currency:    doc.Account.Currency,
		},
		PeriodStart:       timePtr(doc.Period.Start),
		PeriodEnd:         timePtr(doc.Period.End),
		Balance:           doc.Balance.Amount.StringFixed(2),
		BalanceAsOf:       timePtr(doc.Balance.AsOf),
		TotalTransactions: len(doc.Items),
		Transactions:      make([]itemView, 0, len(doc.Items)),
	}
	for _, it := range doc.Items {
		out.Transactions = append(out.Transactions, itemView{
			ExternalID:  it.ExternalID,
			PostedAt:    it.PostedAt,
			Amount:      it.Amount.StringFixed(2),
			Direction:   it.Direction,
			Description: it.Description(),
		})
	}
	return out
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

type uploadView struct {
	ID                     string              `json:"id"`
	AccountID              string              `json:"accountId"`
	OriginalName           string              `json:"originalName"`
	FileSize               int64               `json:"fileSize"`
	Status                 domain.UploadStatus `json:"status"`
	TotalTransactions      int                 `json:"totalTransactions"`
	SuccessfulTransactions int                 `json:"successfulTransactions"`
	FailedTransactions     int                 `json:"failedTransactions"`
	UploadedAt             time.Time           `json:"uploadedAt"`
	ProcessedAt            *time.Time          `json:"processedAt,omitempty"`
}

// ListUploads handles GET /api/uploads
func (h *UploadsHandler) ListUploads(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	uploads, err := h.svc.ListUploads(ctx, middleware.CompanyFromContext(ctx))
	if err != nil {
		h.writeError(ctx, w, err, "Failed to list uploads")
		return
	}

	views := make([]uploadView, 0, len(uploads))
	for _, u := range uploads {
		views = append(views, uploadView{
			ID:                     u.ID,
			AccountID:              u.AccountID,
			OriginalName:           u.OriginalName,
			FileSize:               u.FileSize,
			Status:                 u.Status,
			TotalTransactions:      u.TotalTransactions,
			SuccessfulTransactions: u.SuccessfulTransactions,
			FailedTransactions:     u.FailedTransactions,
			UploadedAt:             u.UploadedAt,
			ProcessedAt:            u.ProcessedAt,
		})
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"uploads": views,
		"count":   len(views),
	})
}

// Progress handles GET /api/uploads/{id}/progress
func (h *UploadsHandler) Progress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	snap, err := h.svc.Progress(ctx, middleware.CompanyFromContext(ctx), r.PathValue("id"))
	if err != nil {
		h.writeError(ctx, w, err, "Failed to load progress")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, snap)
}

// Cancel handles POST /api/uploads/{id}/cancel
func (h *UploadsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uploadID := r.PathValue("id")

	if err := h.svc.Cancel(ctx, middleware.CompanyFromContext(ctx), uploadID); err != nil {
		h.writeError(ctx, w, err, "Failed to cancel upload")
		return
	}
	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"uploadId": uploadID,
		"message":  "Cancellation requested",
	})
}

// readFile extracts the "file" part of a multipart request. It writes the
// error response itself and reports false on failure.
func (h *UploadsHandler) readFile(w http.ResponseWriter, r *http.Request) (string, []byte, bool) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		middleware.WriteError(w, http.StatusBadRequest, "Request must be multipart/form-data")
		return "", nil, false
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartOverhead)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			middleware.WriteError(w, http.StatusRequestEntityTooLarge, "File is too large")
			return "", nil, false
		}
		middleware.WriteError(w, http.StatusBadRequest, "No OFX file sent")
		return "", nil, false
	}
	defer file.Close()

	if header.Size > h.maxBytes {
		middleware.WriteError(w, http.StatusRequestEntityTooLarge, (&ingest.FileTooLargeError{Size: header.Size, Max: h.maxBytes}).Error())
		return "", nil, false
	}

	content, err := io.ReadAll(file)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Failed to read uploaded file")
		return "", nil, false
	}
	return header.Filename, content, true
}

func (h *UploadsHandler) writeError(ctx context.Context, w http.ResponseWriter, err error, logMsg string) {
	status, msg := statusForError(err)
	log := logger.FromContext(ctx)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Msg(logMsg)
	} else {
		log.Info().Err(err).Int("status", status).Msg(logMsg)
	}
	middleware.WriteError(w, status, msg)
}
