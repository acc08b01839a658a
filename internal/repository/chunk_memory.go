package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/cloo-solutions/campaignkb/internal/domain"
)

// MemoryStore keeps vector records in process. It is used for tests and
// for runs that do not need persistence.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]domain.VectorRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]domain.VectorRecord)}
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *MemoryStore) UpsertChunks(ctx context.Context, records []domain.VectorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		emb := make([]float32, len(r.Embedding))
		copy(emb, r.Embedding)
		s.records[r.Chunk.ID] = domain.VectorRecord{Chunk: r.Chunk, Embedding: emb}
	}
	return nil
}

func (s *MemoryStore) SearchByEmbedding(ctx context.Context, embedding []float32, limit int) ([]domain.SearchHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hits := make([]domain.SearchHit, 0, len(s.records))
	for id, r := range s.records {
		d := cosineDistance(embedding, r.Embedding)
		hits = append(hits, domain.SearchHit{
			ID:       id,
			Text:     r.Chunk.Text,
			Metadata: r.Chunk.Metadata(),
			Distance: &d,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if *hits[i].Distance != *hits[j].Distance {
			return *hits[i].Distance < *hits[j].Distance
		}
		return hits[i].ID < hits[j].ID
	})

	if limit >= 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *MemoryStore) GetHashes(ctx context.Context, ids []string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(ids))
	for _, id := range ids {
		if r, ok := s.records[id]; ok {
			out[id] = r.Chunk.SHA256
		}
	}
	return out, nil
}

func (s *MemoryStore) PruneSource(ctx context.Context, sourceFile string, keepIDs []string) (int64, error) {
	keep := make(map[string]struct{}, len(keepIDs))
	for _, id := range keepIDs {
		keep[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var pruned int64
	for id, r := range s.records {
		if r.Chunk.SourceFile != sourceFile {
			continue
		}
		if _, ok := keep[id]; ok {
			continue
		}
		delete(s.records, id)
		pruned++
	}
	return pruned, nil
}
