package jobs

import (
	"context"
	"fmt"
	"log"

	"github.com/cloo-solutions/campaignkb/internal/service"
	"github.com/cloo-solutions/campaignkb/internal/storage"
)

// DirectorySyncer ingests every PDF of a directory.
type DirectorySyncer interface {
	SyncDirectory(ctx context.Context, dir string) (*service.SyncResult, error)
}

// PDFPuller copies remote PDFs into a local directory.
type PDFPuller interface {
	PullPDFs(ctx context.Context, dir string) (*storage.PullResult, error)
}

// SyncProcessor pulls PDFs from object storage, when configured, and
// re-ingests the drive directory.
type SyncProcessor struct {
	syncer DirectorySyncer
	puller PDFPuller
	dir    string
}

// NewSyncProcessor creates a SyncProcessor. puller may be nil.
func NewSyncProcessor(syncer DirectorySyncer, puller PDFPuller, dir string) *SyncProcessor {
	return &SyncProcessor{syncer: syncer, puller: puller, dir: dir}
}

// ProcessJobs runs one pull and sync pass.
func (p *SyncProcessor) ProcessJobs(ctx context.Context) error {
	if p.puller != nil {
		if _, err := p.puller.PullPDFs(ctx, p.dir); err != nil {
			return fmt.Errorf("failed to pull PDFs: %w", err)
		}
	}

	result, err := p.syncer.SyncDirectory(ctx, p.dir)
	if err != nil {
		return fmt.Errorf("failed to sync %s: %w", p.dir, err)
	}

	log.Printf("sync worker: %s", result.Message())
	return nil
}
