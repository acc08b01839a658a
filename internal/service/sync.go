package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cloo-solutions/campaignkb/internal/domain"
	"github.com/cloo-solutions/campaignkb/internal/telemetry"
)

// ChatAnswerLimit is the longest answer the chat surfaces send back.
const ChatAnswerLimit = 1900

// SyncFailure records a document that could not be ingested during a sync.
type SyncFailure struct {
	SourceFile string
	Err        error
}

// SyncResult summarizes a directory sync.
type SyncResult struct {
	Documents int
	Chunks    int
	Failed    []SyncFailure
}

// Message renders the result the way the sync command reports it.
func (r *SyncResult) Message() string {
	if r.Documents == 0 && len(r.Failed) == 0 {
		return "No PDFs found in drive_raw directory."
	}
	msg := fmt.Sprintf("Ingested %d PDFs into %d chunks.", r.Documents, r.Chunks)
	if len(r.Failed) > 0 {
		msg += fmt.Sprintf(" %d failed.", len(r.Failed))
	}
	return msg
}

// SyncDirectory ingests every PDF directly inside dir in name order.
// Documents that cannot be read are recorded and skipped; a store outage
// stops the batch.
func (s *KnowledgeBaseService) SyncDirectory(ctx context.Context, dir string) (*SyncResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "kb.sync", telemetry.SpanAttributes{Operation: "sync"})
	defer span.End()

	paths, err := ListPDFs(dir)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	result := &SyncResult{}
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		n, err := s.Ingest(ctx, path)
		if err != nil {
			if errors.Is(err, domain.ErrStoreUnavailable) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				span.SetError(err)
				return result, err
			}
			log.Printf("sync: skipping %s: %v", filepath.Base(path), err)
			telemetry.AddBreadcrumb(ctx, "sync", "skipped document", map[string]interface{}{
				"source_file": filepath.Base(path),
				"code":        domain.CodeOf(err),
			})
			result.Failed = append(result.Failed, SyncFailure{SourceFile: filepath.Base(path), Err: err})
			continue
		}
		result.Documents++
		result.Chunks += n
	}

	span.SetCount("documents", result.Documents)
	span.SetCount("failed", len(result.Failed))
	log.Printf("sync: %s documents=%d chunks=%d failed=%d", dir, result.Documents, result.Chunks, len(result.Failed))
	return result, nil
}

// ListPDFs returns the paths of the *.pdf files directly inside dir, sorted.
// A missing directory yields no paths.
func ListPDFs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}
