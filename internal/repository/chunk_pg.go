package repository

import (
	"context"
	"time"

	"github.com/cloo-solutions/campaignkb/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// ChunkRepository stores vector records in Postgres with pgvector.
type ChunkRepository struct {
	db         dbtx
	collection string
}

func NewChunkRepository(pool *pgxpool.Pool, collection string) *ChunkRepository {
	return &ChunkRepository{db: pool, collection: collection}
}

func NewChunkRepositoryWithTx(tx pgx.Tx, collection string) *ChunkRepository {
	return &ChunkRepository{db: tx, collection: collection}
}

func (r *ChunkRepository) UpsertChunks(ctx context.Context, records []domain.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for _, rec := range records {
		meta, err := encodeMetadata(rec.Chunk)
		if err != nil {
			return err
		}
		batch.Queue(
			`INSERT INTO chunks (collection, id, source_file, content, metadata, sha256, embedding, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
			 ON CONFLICT (collection, id) DO UPDATE SET
				source_file = EXCLUDED.source_file,
				content     = EXCLUDED.content,
				metadata    = EXCLUDED.metadata,
				sha256      = EXCLUDED.sha256,
				embedding   = EXCLUDED.embedding,
				updated_at  = EXCLUDED.updated_at`,
			r.collection,
			rec.Chunk.ID,
			rec.Chunk.SourceFile,
			rec.Chunk.Text,
			meta,
			rec.Chunk.SHA256,
			pgvector.NewVector(rec.Embedding),
			now,
		)
	}

	results := r.db.SendBatch(ctx, batch)
	for range records {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return err
		}
	}
	return results.Close()
}

func (r *ChunkRepository) SearchByEmbedding(ctx context.Context, embedding []float32, limit int) ([]domain.SearchHit, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, content, metadata, embedding <=> $1 AS distance
		 FROM chunks
		 WHERE collection = $2
		 ORDER BY embedding <=> $1, id
		 LIMIT $3`,
		pgvector.NewVector(embedding), r.collection, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hits := []domain.SearchHit{}
	for rows.Next() {
		var (
			id, content string
			meta        []byte
			distance    float64
		)
		if err := rows.Scan(&id, &content, &meta, &distance); err != nil {
			return nil, err
		}
		d := distance
		hits = append(hits, domain.SearchHit{
			ID:       id,
			Text:     content,
			Metadata: decodeMetadata(id, meta),
			Distance: &d,
		})
	}

	return hits, rows.Err()
}

func (r *ChunkRepository) GetHashes(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, sha256 FROM chunks WHERE collection = $1 AND id = ANY($2)`,
		r.collection, ids,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id, sum string
		if err := rows.Scan(&id, &sum); err != nil {
			return nil, err
		}
		out[id] = sum
	}
	return out, rows.Err()
}

func (r *ChunkRepository) PruneSource(ctx context.Context, sourceFile string, keepIDs []string) (int64, error) {
	if keepIDs == nil {
		keepIDs = []string{}
	}
	tag, err := r.db.Exec(ctx,
		`DELETE FROM chunks WHERE collection = $1 AND source_file = $2 AND NOT (id = ANY($3))`,
		r.collection, sourceFile, keepIDs,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
