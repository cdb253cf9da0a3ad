package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/ofx-ingest/internal/api/handlers"
	"github.com/dvloznov/ofx-ingest/internal/domain"
	"github.com/dvloznov/ofx-ingest/internal/ingest"
	"github.com/dvloznov/ofx-ingest/internal/jobs"
	"github.com/dvloznov/ofx-ingest/internal/jobs/inmemory"
	"github.com/dvloznov/ofx-ingest/internal/ofx"
	"github.com/dvloznov/ofx-ingest/internal/progress"
	"github.com/dvloznov/ofx-ingest/internal/rules"
	"github.com/dvloznov/ofx-ingest/internal/store"
)

type fakeUploads struct {
	doc       *ofx.Document
	receipt   *ingest.Receipt
	err       error
	uploads   []*domain.Upload
	snap      *progress.Snapshot
	cancelErr error

	lastReq     ingest.Request
	lastCompany string
}

func (f *fakeUploads) Validate(_ string, _ []byte) (*ofx.Document, error) {
	return f.doc, f.err
}

func (f *fakeUploads) Ingest(_ context.Context, req ingest.Request) (*ingest.Receipt, error) {
	f.lastReq = req
	return f.receipt, f.err
}

func (f *fakeUploads) ListUploads(_ context.Context, companyID string) ([]*domain.Upload, error) {
	f.lastCompany = companyID
	return f.uploads, f.err
}

func (f *fakeUploads) Progress(_ context.Context, companyID, _ string) (*progress.Snapshot, error) {
	f.lastCompany = companyID
	if f.snap == nil {
		return nil, store.ErrNotFound
	}
	return f.snap, nil
}

func (f *fakeUploads) Cancel(_ context.Context, _, _ string) error {
	return f.cancelErr
}

type fakeRules struct {
	doc        *rules.ExportDocument
	err        error
	activeOnly bool
	opts       rules.ImportOptions
}

func (f *fakeRules) Export(_ context.Context, _ string, activeOnly bool) (*rules.ExportDocument, error) {
	f.activeOnly = activeOnly
	return f.doc, f.err
}

func (f *fakeRules) Import(_ context.Context, _ string, _ *rules.ExportDocument, opts rules.ImportOptions) (*rules.ImportResult, error) {
	f.opts = opts
	if f.err != nil {
		return nil, f.err
	}
	return &rules.ImportResult{Success: true, Summary: rules.ImportSummary{RulesImported: 2}}, nil
}

type server struct {
	uploads *fakeUploads
	rules   *fakeRules
	jobs    *inmemory.Store
	handler http.Handler
}

func newServer(t *testing.T, defaultCompany string) *server {
	t.Helper()
	log := zerolog.Nop()
	s := &server{uploads: &fakeUploads{}, rules: &fakeRules{}, jobs: inmemory.NewStore()}
	s.handler = NewRouter(Handlers{
		Uploads: handlers.NewUploadsHandler(s.uploads, 64, log),
		Rules:   handlers.NewRulesHandler(s.rules, log),
		Jobs:    handlers.NewJobsHandler(s.jobs, log),
	}, defaultCompany, log)
	return s
}

func (s *server) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func multipartRequest(t *testing.T, path, field, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth_NoCompanyNeeded(t *testing.T) {
	s := newServer(t, "")
	rec := s.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestAPI_RequiresCompany(t *testing.T) {
	s := newServer(t, "")
	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/uploads", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_CompanyHeaderOverridesDefault(t *testing.T) {
	s := newServer(t, "default-co")
	req := httptest.NewRequest(http.MethodGet, "/api/uploads", nil)
	req.Header.Set("X-Company-ID", "acme")

	rec := s.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "acme", s.uploads.lastCompany)
}

func TestUpload_Accepted(t *testing.T) {
	s := newServer(t, "acme")
	uploadedAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.uploads.receipt = &ingest.Receipt{
		Upload: &domain.Upload{
			ID: "up-1", OriginalName: "extrato.ofx", FileSize: 40,
			Status: domain.UploadPending, TotalTransactions: 4, UploadedAt: uploadedAt,
		},
		Account:          &domain.Account{ID: "acc-1", Name: "Conta Itaú - 12345", BankName: "Itaú Unibanco S.A."},
		JobID:            "job-1",
		EstimatedSeconds: 1,
	}

	rec := s.do(multipartRequest(t, "/api/uploads", "file", "extrato.ofx", []byte("OFXHEADER:100")))
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "acme", s.uploads.lastReq.CompanyID)
	assert.Equal(t, "extrato.ofx", s.uploads.lastReq.Filename)

	body := decode(t, rec)
	assert.Equal(t, "up-1", body["uploadId"])
	info := body["processingInfo"].(map[string]interface{})
	assert.Equal(t, "pending", info["status"])
	assert.Equal(t, "/api/uploads/up-1/progress", info["progressUrl"])
	assert.EqualValues(t, 2000, info["checkInterval"])
	assert.Equal(t, "acc-1", body["accountInfo"].(map[string]interface{})["id"])
	assert.EqualValues(t, 4, body["fileInfo"].(map[string]interface{})["totalTransactions"])
}

func TestUpload_Duplicate(t *testing.T) {
	s := newServer(t, "acme")
	s.uploads.err = &ingest.DuplicateUploadError{UploadID: "up-0", Status: domain.UploadCompleted, TotalTransactions: 7}

	rec := s.do(multipartRequest(t, "/api/uploads", "file", "extrato.ofx", []byte("x")))
	require.Equal(t, http.StatusConflict, rec.Code)

	dup := decode(t, rec)["duplicateInfo"].(map[string]interface{})
	assert.Equal(t, "up-0", dup["uploadId"])
	assert.Equal(t, "completed", dup["status"])
	assert.EqualValues(t, 7, dup["totalTransactions"])
}

func TestUpload_RejectsBadRequests(t *testing.T) {
	s := newServer(t, "acme")

	notMultipart := httptest.NewRequest(http.MethodPost, "/api/uploads", strings.NewReader("{}"))
	notMultipart.Header.Set("Content-Type", "application/json")
	assert.Equal(t, http.StatusBadRequest, s.do(notMultipart).Code)

	wrongField := multipartRequest(t, "/api/uploads", "document", "extrato.ofx", []byte("x"))
	assert.Equal(t, http.StatusBadRequest, s.do(wrongField).Code)

	tooLarge := multipartRequest(t, "/api/uploads", "file", "extrato.ofx", bytes.Repeat([]byte("a"), 65))
	assert.Equal(t, http.StatusRequestEntityTooLarge, s.do(tooLarge).Code)
}

func TestUpload_MapsDomainErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"signature", &ofx.SignatureError{Filename: "a.txt", Reason: "bad extension"}, http.StatusBadRequest},
		{"malformed", &ofx.MalformedDocumentError{Reason: "no statement"}, http.StatusBadRequest},
		{"too large", &ingest.FileTooLargeError{Size: 100, Max: 10}, http.StatusRequestEntityTooLarge},
		{"unexpected", assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newServer(t, "acme")
			s.uploads.err = tt.err
			rec := s.do(multipartRequest(t, "/api/uploads", "file", "extrato.ofx", []byte("x")))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestValidate_Summarizes(t *testing.T) {
	s := newServer(t, "acme")
	s.uploads.doc = &ofx.Document{
		Kind:    ofx.KindBank,
		Account: ofx.AccountInfo{BankID: "0341", AccountID: "12345", AccountType: "CHECKING", Currency: "BRL"},
		Balance: ofx.Balance{Amount: decimal.NewFromFloat(150.5)},
		Items: []ofx.Item{{
			ExternalID: "1", Amount: decimal.NewFromInt(-20), Direction: domain.DirectionDebit,
			Memo: "PADARIA", PostedAt: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
		}},
	}

	rec := s.do(multipartRequest(t, "/api/uploads/validate", "file", "extrato.ofx", []byte("x")))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, true, body["valid"])
	assert.Equal(t, "150.50", body["balance"])
	assert.EqualValues(t, 1, body["totalTransactions"])
	item := body["transactions"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "-20.00", item["amount"])
	assert.Equal(t, "PADARIA", item["description"])
}

func TestProgress(t *testing.T) {
	s := newServer(t, "acme")
	assert.Equal(t, http.StatusNotFound, s.do(httptest.NewRequest(http.MethodGet, "/api/uploads/nope/progress", nil)).Code)

	s.uploads.snap = &progress.Snapshot{UploadID: "up-1", Status: domain.UploadProcessing, Percentage: 50}
	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/uploads/up-1/progress", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 50, decode(t, rec)["percentage"])
}

func TestCancel(t *testing.T) {
	s := newServer(t, "acme")
	rec := s.do(httptest.NewRequest(http.MethodPost, "/api/uploads/up-1/cancel", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	s.uploads.cancelErr = ingest.ErrNotRunning
	rec = s.do(httptest.NewRequest(http.MethodPost, "/api/uploads/up-1/cancel", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRulesExport(t *testing.T) {
	s := newServer(t, "acme")
	s.rules.doc = &rules.ExportDocument{Version: rules.ExportVersion, CompanyID: "acme"}

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/rules/export", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, s.rules.activeOnly)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `attachment; filename="rules-export-acme-`)

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/rules/export?activeOnly=false", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, s.rules.activeOnly)

	s.rules.err = &rules.NoRulesFoundError{CompanyID: "acme"}
	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/rules/export", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRulesImport(t *testing.T) {
	s := newServer(t, "acme")

	body := `{"importData":{"version":"1.0","companyId":"other","rules":[]},"options":{"dryRun":true}}`
	rec := s.do(httptest.NewRequest(http.MethodPost, "/api/rules/import", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, s.rules.opts.DryRun)
	assert.Equal(t, rules.ConflictSkip, s.rules.opts.ConflictStrategy)
	assert.True(t, s.rules.opts.CreateMissingCategories)
	assert.Contains(t, decode(t, rec)["message"], "2 imported")

	rec = s.do(httptest.NewRequest(http.MethodPost, "/api/rules/import", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	s.rules.err = &rules.InvalidDocumentError{Reason: "missing version"}
	rec = s.do(httptest.NewRequest(http.MethodPost, "/api/rules/import", strings.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJobs(t *testing.T) {
	s := newServer(t, "acme")
	ctx := context.Background()
	require.NoError(t, s.jobs.SaveJob(ctx, &jobs.ProcessUploadJob{JobID: "j1", UploadID: "up-1", Status: jobs.JobStatusCompleted, CreatedAt: time.Now()}))
	require.NoError(t, s.jobs.SaveJob(ctx, &jobs.ProcessUploadJob{JobID: "j2", UploadID: "up-2", Status: jobs.JobStatusRunning, CreatedAt: time.Now()}))

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/jobs/j1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "up-1", decode(t, rec)["uploadId"])

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/jobs/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/jobs?uploadId=up-2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode(t, rec)["count"])
}
