package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Local stores files under a directory, each with a <name>.json metadata
// sidecar.
type Local struct {
	root string
	now  func() time.Time
}

func NewLocal(root string) (*Local, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("NewLocal: %w", err)
	}
	return &Local{root: root, now: time.Now}, nil
}

func (l *Local) Provider() string { return ProviderLocal }

func (l *Local) Save(ctx context.Context, companyID, originalName string, content []byte) (*Metadata, error) {
	meta := newMetadata(companyID, originalName, int64(len(content)), l.now())
	full := l.abs(meta.RelativePath)

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, fmt.Errorf("Save: %w", err)
	}
	if err := os.WriteFile(full, content, 0o644); err != nil {
		return nil, fmt.Errorf("Save: write file: %w", err)
	}

	body, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("Save: encode metadata: %w", err)
	}
	if err := os.WriteFile(full+".json", body, 0o644); err != nil {
		_ = os.Remove(full)
		return nil, fmt.Errorf("Save: write metadata: %w", err)
	}
	return &meta, nil
}

func (l *Local) Read(ctx context.Context, relativePath string) ([]byte, error) {
	rel, err := cleanRelative(relativePath)
	if err != nil {
		return nil, fmt.Errorf("Read: %w", err)
	}
	data, err := os.ReadFile(l.abs(rel))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("Read: %s: %w", rel, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("Read: %w", err)
	}
	return data, nil
}

func (l *Local) List(ctx context.Context, companyID string) ([]Metadata, error) {
	companyDir := l.abs("ofx/" + companyID)
	out := []Metadata{}

	err := filepath.WalkDir(companyDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, ".json") {
			return nil
		}
		body, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		var m Metadata
		if err := json.Unmarshal(body, &m); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		out = append(out, m)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.After(out[j].UploadedAt) })
	return out, nil
}

func (l *Local) Delete(ctx context.Context, relativePath string) error {
	rel, err := cleanRelative(relativePath)
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	full := l.abs(rel)
	if err := os.Remove(full); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("Delete: %s: %w", rel, ErrNotFound)
		}
		return fmt.Errorf("Delete: %w", err)
	}
	if err := os.Remove(full + ".json"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("Delete: metadata: %w", err)
	}
	return nil
}

func (l *Local) abs(rel string) string {
	return filepath.Join(l.root, filepath.FromSlash(rel))
}

var _ FileStore = (*Local)(nil)
