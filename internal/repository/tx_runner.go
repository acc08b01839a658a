package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TxRunner hands out chunk repositories bound to a single transaction of
// one collection, so a document's upsert and prune land together.
type TxRunner struct {
	pool       *pgxpool.Pool
	collection string
}

func NewTxRunner(pool *pgxpool.Pool, collection string) *TxRunner {
	return &TxRunner{pool: pool, collection: collection}
}

// WithTx commits when fn returns nil and rolls back otherwise.
func (r *TxRunner) WithTx(ctx context.Context, fn func(chunks *ChunkRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin chunk transaction: %w", err)
	}
	// no-op once committed
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(NewChunkRepositoryWithTx(tx, r.collection)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit chunk transaction: %w", err)
	}
	return nil
}
