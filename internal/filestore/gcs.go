package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCS stores files as objects in a bucket. Metadata is kept as object
// metadata rather than a sidecar.
type GCS struct {
	client *storage.Client
	bucket string
	now    func() time.Time
}

// NewGCS opens a storage client. credentialsFile may be empty to use
// Application Default Credentials.
func NewGCS(ctx context.Context, bucket, credentialsFile string) (*GCS, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewGCS: create storage client: %w", err)
	}
	return &GCS{client: client, bucket: bucket, now: time.Now}, nil
}

func (g *GCS) Provider() string { return ProviderGCS }

func (g *GCS) Close() error { return g.client.Close() }

func (g *GCS) Save(ctx context.Context, companyID, originalName string, content []byte) (*Metadata, error) {
	meta := newMetadata(companyID, originalName, int64(len(content)), g.now())

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := g.client.Bucket(g.bucket).Object(meta.RelativePath).NewWriter(ctx)
	w.ContentType = meta.MimeType
	w.Metadata = map[string]string{
		"originalName": meta.OriginalName,
		"companyId":    meta.CompanyID,
		"uploadedAt":   meta.UploadedAt.Format(time.RFC3339Nano),
		"size":         strconv.FormatInt(meta.Size, 10),
	}

	if _, err := w.Write(content); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("Save: write object: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("Save: finalize upload: %w", err)
	}
	return &meta, nil
}

func (g *GCS) Read(ctx context.Context, relativePath string) ([]byte, error) {
	rel, err := cleanRelative(relativePath)
	if err != nil {
		return nil, fmt.Errorf("Read: %w", err)
	}

	rc, err := g.client.Bucket(g.bucket).Object(rel).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("Read: gs://%s/%s: %w", g.bucket, rel, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("Read: open object reader: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("Read: read object: %w", err)
	}
	return data, nil
}

func (g *GCS) List(ctx context.Context, companyID string) ([]Metadata, error) {
	it := g.client.Bucket(g.bucket).Objects(ctx, &storage.Query{Prefix: "ofx/" + companyID + "/"})

	out := []Metadata{}
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("List: %w", err)
		}
		out = append(out, metadataFromAttrs(attrs))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.After(out[j].UploadedAt) })
	return out, nil
}

func (g *GCS) Delete(ctx context.Context, relativePath string) error {
	rel, err := cleanRelative(relativePath)
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	err = g.client.Bucket(g.bucket).Object(rel).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("Delete: gs://%s/%s: %w", g.bucket, rel, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	return nil
}

func metadataFromAttrs(attrs *storage.ObjectAttrs) Metadata {
	m := Metadata{
		OriginalName: attrs.Metadata["originalName"],
		Filename:     path.Base(attrs.Name),
		Size:         attrs.Size,
		MimeType:     attrs.ContentType,
		UploadedAt:   attrs.Created,
		CompanyID:    attrs.Metadata["companyId"],
		RelativePath: attrs.Name,
	}
	if ts, err := time.Parse(time.RFC3339Nano, attrs.Metadata["uploadedAt"]); err == nil {
		m.UploadedAt = ts
	}
	return m
}

var _ FileStore = (*GCS)(nil)
