package service

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloo-solutions/campaignkb/internal/domain"
	"github.com/cloo-solutions/campaignkb/internal/telemetry"
)

// DefaultAskK is the number of excerpts returned by Ask when k is not set.
const DefaultAskK = 6

// IngestMode decides what happens to chunks left over from an earlier
// version of the same document.
type IngestMode string

const (
	// IngestModeAccumulate keeps old chunks; changed text adds new records.
	IngestModeAccumulate IngestMode = "accumulate"
	// IngestModeReplace removes records of the document that the new ingest did not produce.
	IngestModeReplace IngestMode = "replace"
)

// IsValid reports whether m is a known mode.
func (m IngestMode) IsValid() bool {
	return m == IngestModeAccumulate || m == IngestModeReplace
}

// TextExtractor produces one text entry per page of a document.
type TextExtractor interface {
	ExtractPages(ctx context.Context, path string) ([]string, error)
}

// Index is the vector index contract the knowledge base depends on.
type Index interface {
	Upsert(ctx context.Context, chunks []domain.Chunk) (UpsertResult, error)
	ReplaceSource(ctx context.Context, sourceFile string, chunks []domain.Chunk) (UpsertResult, error)
	Query(ctx context.Context, text string, k int) ([]domain.SearchHit, error)
}

// ManifestWriter persists the per-document chunk manifest.
type ManifestWriter interface {
	WriteManifest(ctx context.Context, stem string, chunks []domain.Chunk) error
}

// KnowledgeBaseConfig tunes the ingest path.
type KnowledgeBaseConfig struct {
	Chunking ChunkConfig
	Mode     IngestMode
}

// DefaultKnowledgeBaseConfig returns the default chunking in accumulate mode.
func DefaultKnowledgeBaseConfig() KnowledgeBaseConfig {
	return KnowledgeBaseConfig{
		Chunking: DefaultChunkConfig(),
		Mode:     IngestModeAccumulate,
	}
}

// KnowledgeBaseService ingests session PDFs and answers questions about them.
type KnowledgeBaseService struct {
	extractor TextExtractor
	index     Index
	manifest  ManifestWriter
	cfg       KnowledgeBaseConfig
	metrics   *telemetry.Metrics
}

// NewKnowledgeBaseService creates a new KnowledgeBaseService instance
func NewKnowledgeBaseService(extractor TextExtractor, index Index, manifest ManifestWriter, cfg KnowledgeBaseConfig) *KnowledgeBaseService {
	return NewKnowledgeBaseServiceWithMetrics(extractor, index, manifest, cfg, nil)
}

// NewKnowledgeBaseServiceWithMetrics creates a KnowledgeBaseService that reports to metrics.
func NewKnowledgeBaseServiceWithMetrics(
	extractor TextExtractor,
	index Index,
	manifest ManifestWriter,
	cfg KnowledgeBaseConfig,
	metrics *telemetry.Metrics,
) *KnowledgeBaseService {
	if cfg.Mode == "" {
		cfg.Mode = IngestModeAccumulate
	}
	return &KnowledgeBaseService{
		extractor: extractor,
		index:     index,
		manifest:  manifest,
		cfg:       cfg,
		metrics:   metrics,
	}
}

// Ingest extracts, chunks and indexes one PDF and returns the number of chunks produced.
func (s *KnowledgeBaseService) Ingest(ctx context.Context, path string) (int, error) {
	sourceFile := filepath.Base(path)
	session := domain.InferSession(sourceFile)

	ctx, span := telemetry.StartSpan(ctx, "kb.ingest", telemetry.SpanAttributes{
		SourceFile: sourceFile,
		Session:    session,
		Operation:  "ingest",
	})
	defer span.End()

	n, err := s.ingest(ctx, path, sourceFile, session)
	if err != nil {
		span.SetError(err)
		s.metrics.IngestFailed(domain.CodeOf(err))
		return 0, err
	}
	span.SetCount("chunks", n)
	return n, nil
}

func (s *KnowledgeBaseService) ingest(ctx context.Context, path, sourceFile string, session *int) (int, error) {
	pages, err := s.extractor.ExtractPages(ctx, path)
	if err != nil {
		return 0, err
	}

	spans, err := ChunkPages(pages, s.cfg.Chunking)
	if err != nil {
		return 0, err
	}

	chunks := make([]domain.Chunk, 0, len(spans))
	for _, sp := range spans {
		chunks = append(chunks, domain.NewChunk(sourceFile, sp.Page, sp.Offset, sp.Text, session))
	}

	var result UpsertResult
	if s.cfg.Mode == IngestModeReplace {
		result, err = s.index.ReplaceSource(ctx, sourceFile, chunks)
	} else {
		result, err = s.index.Upsert(ctx, chunks)
	}
	if err != nil {
		return 0, err
	}

	if err := s.manifest.WriteManifest(ctx, domain.DocumentStem(sourceFile), chunks); err != nil {
		return 0, fmt.Errorf("failed to write chunk manifest: %w", err)
	}

	s.metrics.ObserveIngest(len(chunks), result.Written, result.Skipped, result.Pruned)
	log.Printf("ingest: %s pages=%d chunks=%d written=%d skipped=%d pruned=%d",
		sourceFile, len(pages), len(chunks), result.Written, result.Skipped, result.Pruned)

	return len(chunks), nil
}

// Ask returns the top-k excerpts for query as a plain-text answer.
func (s *KnowledgeBaseService) Ask(ctx context.Context, query string, k int) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", domain.ErrEmptyQuery
	}
	if k <= 0 {
		k = DefaultAskK
	}

	ctx, span := telemetry.StartSpan(ctx, "kb.ask", telemetry.SpanAttributes{Operation: "ask", K: k})
	defer span.End()

	start := time.Now()
	hits, err := s.index.Query(ctx, query, k)
	if err != nil {
		span.SetError(err)
		return "", err
	}
	s.metrics.ObserveQuery("ask", time.Since(start), len(hits))
	span.SetCount("hits", len(hits))

	return FormatAnswer(hits), nil
}

// SessionEnemies estimates the enemies encountered in a session from the
// excerpts most related to combat. The figure is approximate.
func (s *KnowledgeBaseService) SessionEnemies(ctx context.Context, session int) (string, error) {
	if session < 0 {
		return "", domain.ErrInvalidSession
	}

	ctx, span := telemetry.StartSpan(ctx, "kb.session_enemies", telemetry.SpanAttributes{
		Session:   &session,
		Operation: "session_enemies",
		K:         enemyQueryK,
	})
	defer span.End()

	start := time.Now()
	hits, err := s.index.Query(ctx, enemyQuery(session), enemyQueryK)
	if err != nil {
		span.SetError(err)
		return "", err
	}
	s.metrics.ObserveQuery("enemies", time.Since(start), len(hits))
	span.SetCount("hits", len(hits))

	texts := make([]string, 0, len(hits))
	for _, h := range hits {
		texts = append(texts, h.Text)
	}
	return FormatEnemyTally(session, CountEnemies(texts)), nil
}
