package repository

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/cloo-solutions/campaignkb/internal/domain"
)

// ManifestRecord is one line of a chunk manifest.
type ManifestRecord struct {
	ID         string `json:"id"`
	SourceFile string `json:"source_file"`
	Page       int    `json:"page"`
	Session    *int   `json:"session"`
	Offset     int    `json:"offset"`
	SHA256     string `json:"sha256"`
	Len        int    `json:"len"`
}

// ManifestRepository writes {dir}/{stem}.chunks.jsonl files.
type ManifestRepository struct {
	dir string
}

func NewManifestRepository(dir string) *ManifestRepository {
	return &ManifestRepository{dir: dir}
}

// Path returns the manifest location for a document stem.
func (r *ManifestRepository) Path(stem string) string {
	return filepath.Join(r.dir, stem+".chunks.jsonl")
}

// WriteManifest replaces the manifest of stem with one record per chunk, in order.
func (r *ManifestRepository) WriteManifest(ctx context.Context, stem string, chunks []domain.Chunk) error {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create chunk directory: %w", err)
	}

	tmp, err := os.CreateTemp(r.dir, stem+".chunks.*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)
	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			tmp.Close()
			return err
		}
		if err := enc.Encode(ManifestRecord{
			ID:         c.ID,
			SourceFile: c.SourceFile,
			Page:       c.Page,
			Session:    c.Session,
			Offset:     c.Offset,
			SHA256:     c.SHA256,
			Len:        utf8.RuneCountInString(c.Text),
		}); err != nil {
			tmp.Close()
			return err
		}
	}

	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), r.Path(stem))
}

// ReadManifest returns the records of stem's manifest.
func (r *ManifestRepository) ReadManifest(stem string) ([]ManifestRecord, error) {
	f, err := os.Open(r.Path(stem))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, err
	}
	defer f.Close()

	var records []ManifestRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var rec ManifestRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("failed to parse manifest line: %w", err)
		}
		records = append(records, rec)
	}
	return records, scanner.Err()
}
