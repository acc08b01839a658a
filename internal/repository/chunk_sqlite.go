package repository

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cloo-solutions/campaignkb/internal/domain"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS chunks (
	collection  TEXT NOT NULL,
	id          TEXT NOT NULL,
	source_file TEXT NOT NULL,
	content     TEXT NOT NULL,
	metadata    TEXT NOT NULL,
	sha256      TEXT NOT NULL,
	embedding   BLOB NOT NULL,
	created_at  TIMESTAMP NOT NULL,
	updated_at  TIMESTAMP NOT NULL,
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks (collection, source_file);
`

// SQLiteStore persists vector records in a single SQLite file and searches
// them by brute-force cosine distance.
type SQLiteStore struct {
	db         *sql.DB
	collection string
}

// OpenSQLiteStore opens (creating if needed) the database at
// {dir}/chunks.sqlite and prepares the schema.
func OpenSQLiteStore(ctx context.Context, dir, collection string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create vector directory: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "chunks.sqlite"))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create sqlite schema: %w", err)
	}

	return &SQLiteStore{db: db, collection: collection}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertChunks(ctx context.Context, records []domain.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (collection, id, source_file, content, metadata, sha256, embedding, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET
			source_file = excluded.source_file,
			content     = excluded.content,
			metadata    = excluded.metadata,
			sha256      = excluded.sha256,
			embedding   = excluded.embedding,
			updated_at  = excluded.updated_at`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, r := range records {
		meta, err := encodeMetadata(r.Chunk)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		_, err = stmt.ExecContext(ctx,
			s.collection,
			r.Chunk.ID,
			r.Chunk.SourceFile,
			r.Chunk.Text,
			string(meta),
			r.Chunk.SHA256,
			encodeEmbedding(r.Embedding),
			now,
			now,
		)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) SearchByEmbedding(ctx context.Context, embedding []float32, limit int) ([]domain.SearchHit, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, metadata, embedding FROM chunks WHERE collection = ?`,
		s.collection,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hits := []domain.SearchHit{}
	for rows.Next() {
		var (
			id, content, meta string
			blob              []byte
		)
		if err := rows.Scan(&id, &content, &meta, &blob); err != nil {
			return nil, err
		}
		d := cosineDistance(embedding, decodeEmbedding(blob))
		hits = append(hits, domain.SearchHit{
			ID:       id,
			Text:     content,
			Metadata: decodeMetadata(id, []byte(meta)),
			Distance: &d,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
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

func (s *SQLiteStore) GetHashes(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	list, err := json.Marshal(ids)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sha256 FROM chunks
		 WHERE collection = ? AND id IN (SELECT value FROM json_each(?))`,
		s.collection, string(list),
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

func (s *SQLiteStore) PruneSource(ctx context.Context, sourceFile string, keepIDs []string) (int64, error) {
	if keepIDs == nil {
		keepIDs = []string{}
	}
	list, err := json.Marshal(keepIDs)
	if err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM chunks
		 WHERE collection = ? AND source_file = ? AND id NOT IN (SELECT value FROM json_each(?))`,
		s.collection, sourceFile, string(list),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func encodeEmbedding(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeEmbedding(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v
}
