package handlers

import (
	"errors"
	"net/http"

	"github.com/dvloznov/ofx-ingest/internal/accounts"
	"github.com/dvloznov/ofx-ingest/internal/ingest"
	"github.com/dvloznov/ofx-ingest/internal/jobs"
	"github.com/dvloznov/ofx-ingest/internal/ofx"
	"github.com/dvloznov/ofx-ingest/internal/rules"
	"github.com/dvloznov/ofx-ingest/internal/store"
)

// statusForError maps service errors to an HTTP status and the message shown
// to clients. Unknown errors are 500 with a generic message.
func statusForError(err error) (int, string) {
	var (
		tooLarge  *ingest.FileTooLargeError
		duplicate *ingest.DuplicateUploadError
		signature *ofx.SignatureError
		malformed *ofx.MalformedDocumentError
		noAccount *accounts.NoAccountResolvedError
		noRules   *rules.NoRulesFoundError
		invalid   *rules.InvalidDocumentError
	)

	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, tooLarge.Error()
	case errors.As(err, &signature):
		return http.StatusBadRequest, signature.Error()
	case errors.As(err, &malformed):
		return http.StatusBadRequest, malformed.Error()
	case errors.As(err, &noAccount):
		return http.StatusBadRequest, "No account found and none could be created automatically"
	case errors.As(err, &duplicate):
		return http.StatusConflict, "File was already uploaded"
	case errors.As(err, &noRules):
		return http.StatusNotFound, "No rules found to export"
	case errors.As(err, &invalid):
		return http.StatusBadRequest, invalid.Error()
	case errors.Is(err, ingest.ErrNotRunning):
		return http.StatusConflict, "Upload is not being processed"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "Upload not found"
	case errors.Is(err, jobs.ErrJobNotFound):
		return http.StatusNotFound, "Job not found"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}
