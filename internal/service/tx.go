package service

import "context"

// TxRunner executes fn with a ChunkStore bound to a single transaction.
// The transaction commits when fn returns nil and rolls back otherwise.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(store ChunkStore) error) error
}
