package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloo-solutions/campaignkb/internal/domain"
)

// EmbeddingFunction turns text into a vector. The vector index owns one and
// uses it for both stored chunks and query text.
type EmbeddingFunction interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// ChunkStore is the persistence behind a VectorIndex. Distances are cosine
// distances, smaller meaning more similar.
type ChunkStore interface {
	UpsertChunks(ctx context.Context, records []domain.VectorRecord) error
	SearchByEmbedding(ctx context.Context, embedding []float32, limit int) ([]domain.SearchHit, error)
	GetHashes(ctx context.Context, ids []string) (map[string]string, error)
	PruneSource(ctx context.Context, sourceFile string, keepIDs []string) (int64, error)
}

// UpsertResult reports what an upsert actually wrote.
type UpsertResult struct {
	Written int
	Skipped int
	Pruned  int64
}

// VectorIndex maps chunk ids to text, metadata and embedding and answers
// nearest-neighbour queries by text.
type VectorIndex struct {
	embedder      EmbeddingFunction
	store         ChunkStore
	txRunner      TxRunner
	skipUnchanged bool
}

// NewVectorIndex creates a VectorIndex that embeds every chunk it is given.
func NewVectorIndex(embedder EmbeddingFunction, store ChunkStore) *VectorIndex {
	return &VectorIndex{
		embedder: embedder,
		store:    store,
	}
}

// NewVectorIndexSkippingUnchanged creates a VectorIndex that does not re-embed
// chunks whose stored content hash already matches.
func NewVectorIndexSkippingUnchanged(embedder EmbeddingFunction, store ChunkStore) *VectorIndex {
	idx := NewVectorIndex(embedder, store)
	idx.skipUnchanged = true
	return idx
}

// WithTxRunner makes ReplaceSource write and prune inside one transaction.
func (x *VectorIndex) WithTxRunner(r TxRunner) *VectorIndex {
	x.txRunner = r
	return x
}

// Upsert writes chunks keyed by id, overwriting existing records.
func (x *VectorIndex) Upsert(ctx context.Context, chunks []domain.Chunk) (UpsertResult, error) {
	records, result, err := x.prepare(ctx, chunks)
	if err != nil || len(records) == 0 {
		return result, err
	}

	if err := x.store.UpsertChunks(ctx, records); err != nil {
		return result, storeError(err)
	}

	result.Written = len(records)
	return result, nil
}

// ReplaceSource upserts chunks and then deletes every other record that
// belongs to the same source file. Embeddings are computed before any write.
func (x *VectorIndex) ReplaceSource(ctx context.Context, sourceFile string, chunks []domain.Chunk) (UpsertResult, error) {
	records, result, err := x.prepare(ctx, chunks)
	if err != nil {
		return result, err
	}

	keep := make([]string, 0, len(chunks))
	for _, c := range chunks {
		keep = append(keep, c.ID)
	}

	write := func(store ChunkStore) error {
		if len(records) > 0 {
			if err := store.UpsertChunks(ctx, records); err != nil {
				return err
			}
		}
		pruned, err := store.PruneSource(ctx, sourceFile, keep)
		if err != nil {
			return err
		}
		result.Pruned = pruned
		return nil
	}

	if x.txRunner != nil {
		err = x.txRunner.WithTx(ctx, write)
	} else {
		err = write(x.store)
	}
	if err != nil {
		return UpsertResult{Skipped: result.Skipped}, storeError(err)
	}

	result.Written = len(records)
	return result, nil
}

// Query returns up to k records nearest to text.
func (x *VectorIndex) Query(ctx context.Context, text string, k int) ([]domain.SearchHit, error) {
	if k <= 0 {
		return []domain.SearchHit{}, nil
	}

	embedding, err := x.embedder.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	hits, err := x.store.SearchByEmbedding(ctx, embedding, k)
	if err != nil {
		return nil, storeError(err)
	}
	if hits == nil {
		hits = []domain.SearchHit{}
	}
	return hits, nil
}

// prepare embeds the chunks that need writing. The result carries the skip count.
func (x *VectorIndex) prepare(ctx context.Context, chunks []domain.Chunk) ([]domain.VectorRecord, UpsertResult, error) {
	if len(chunks) == 0 {
		return nil, UpsertResult{}, nil
	}

	pending := chunks
	if x.skipUnchanged {
		var err error
		pending, err = x.changedChunks(ctx, chunks)
		if err != nil {
			return nil, UpsertResult{}, err
		}
	}

	result := UpsertResult{Skipped: len(chunks) - len(pending)}
	records := make([]domain.VectorRecord, 0, len(pending))
	for _, c := range pending {
		embedding, err := x.embedder.GenerateEmbedding(ctx, c.Text)
		if err != nil {
			return nil, result, fmt.Errorf("failed to generate chunk embedding for %s: %w", c.ID, err)
		}
		records = append(records, domain.VectorRecord{Chunk: c, Embedding: embedding})
	}
	return records, result, nil
}

func (x *VectorIndex) changedChunks(ctx context.Context, chunks []domain.Chunk) ([]domain.Chunk, error) {
	ids := make([]string, 0, len(chunks))
	for _, c := range chunks {
		ids = append(ids, c.ID)
	}

	existing, err := x.store.GetHashes(ctx, ids)
	if err != nil {
		return nil, storeError(err)
	}

	changed := make([]domain.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if hash, ok := existing[c.ID]; ok && hash == c.SHA256 {
			continue
		}
		changed = append(changed, c)
	}
	return changed, nil
}

func storeError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, domain.ErrStoreUnavailable) {
		return err
	}
	return domain.NewStoreUnavailable(err)
}
