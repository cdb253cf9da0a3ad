// Package filestore keeps the raw statement files received for uploads.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	ProviderLocal = "local"
	ProviderGCS   = "gcs"
)

// ErrNotFound is returned when a stored file does not exist.
var ErrNotFound = errors.New("stored file not found")

// Metadata describes one stored file.
type Metadata struct {
	OriginalName string    `json:"originalName"`
	Filename     string    `json:"filename"`
	Size         int64     `json:"size"`
	MimeType     string    `json:"mimeType"`
	UploadedAt   time.Time `json:"uploadedAt"`
	CompanyID    string    `json:"companyId"`
	RelativePath string    `json:"relativePath"`
}

// FileStore saves and reads raw statement files. Paths are relative,
// slash-separated and laid out as ofx/<company>/<yyyy-mm>/<file>.
type FileStore interface {
	Save(ctx context.Context, companyID, originalName string, content []byte) (*Metadata, error)
	Read(ctx context.Context, relativePath string) ([]byte, error)
	// List returns the company's files, newest first.
	List(ctx context.Context, companyID string) ([]Metadata, error)
	Delete(ctx context.Context, relativePath string) error
	Provider() string
}

// newMetadata names a new file. The name is unique and sortable by time.
func newMetadata(companyID, originalName string, size int64, now time.Time) Metadata {
	now = now.UTC()
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(originalName), "."))
	if ext == "" {
		ext = "ofx"
	}
	stamp := strings.NewReplacer(":", "-", ".", "-").Replace(now.Format("2006-01-02T15:04:05.000Z"))
	filename := fmt.Sprintf("%s_%s.%s", stamp, uuid.NewString(), ext)
	dir := path.Join("ofx", companyID, now.Format("2006-01"))

	return Metadata{
		OriginalName: originalName,
		Filename:     filename,
		Size:         size,
		MimeType:     MimeType(originalName),
		UploadedAt:   now,
		CompanyID:    companyID,
		RelativePath: path.Join(dir, filename),
	}
}

// MimeType maps a statement file name to its content type.
func MimeType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".ofx":
		return "application/x-ofx"
	case ".qfx":
		return "application/vnd.intu.qfx"
	default:
		return "application/octet-stream"
	}
}

// cleanRelative rejects paths that escape the store root.
func cleanRelative(p string) (string, error) {
	clean := path.Clean(strings.TrimPrefix(p, "/"))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("invalid stored path %q", p)
	}
	return clean, nil
}
