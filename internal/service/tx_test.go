package service

import (
	"context"
	"errors"
	"testing"

	"github.com/cloo-solutions/campaignkb/internal/domain"
	"github.com/cloo-solutions/campaignkb/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// testTxRunner hands fn a dedicated store and can fail the commit.
type testTxRunner struct {
	store     ChunkStore
	commitErr error
	called    bool
}

func (t *testTxRunner) WithTx(ctx context.Context, fn func(store ChunkStore) error) error {
	t.called = true
	if err := fn(t.store); err != nil {
		return err
	}
	return t.commitErr
}

func TestVectorIndex_ReplaceSourceUsesTransaction(t *testing.T) {
	ctx := context.Background()
	pool := repository.NewMemoryStore()
	txStore := repository.NewMemoryStore()
	runner := &testTxRunner{store: txStore}
	idx := NewVectorIndex(newVocabEmbedder(), pool).WithTxRunner(runner)

	chunk := domain.NewChunk("a.pdf", 1, 0, "goblin ambush", nil)
	result, err := idx.ReplaceSource(ctx, "a.pdf", []domain.Chunk{chunk})

	require.NoError(t, err)
	assert.True(t, runner.called)
	assert.Equal(t, 1, result.Written)
	assert.Equal(t, 1, txStore.Len())
	assert.Equal(t, 0, pool.Len())
}

func TestVectorIndex_ReplaceSourceCommitFailure(t *testing.T) {
	runner := &testTxRunner{store: repository.NewMemoryStore(), commitErr: errors.New("could not serialize access")}
	idx := NewVectorIndex(newVocabEmbedder(), repository.NewMemoryStore()).WithTxRunner(runner)

	result, err := idx.ReplaceSource(context.Background(), "a.pdf", []domain.Chunk{domain.NewChunk("a.pdf", 1, 0, "text", nil)})

	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Equal(t, 0, result.Written)
	assert.Equal(t, int64(0), result.Pruned)
}

func TestVectorIndex_ReplaceSourceEmbedsBeforeTransaction(t *testing.T) {
	embedder := new(MockEmbeddingFunction)
	runner := &testTxRunner{store: repository.NewMemoryStore()}
	idx := NewVectorIndex(embedder, repository.NewMemoryStore()).WithTxRunner(runner)

	embedder.On("GenerateEmbedding", mock.Anything, "text").Return(nil, errors.New("rate limited"))

	_, err := idx.ReplaceSource(context.Background(), "a.pdf", []domain.Chunk{domain.NewChunk("a.pdf", 1, 0, "text", nil)})

	require.Error(t, err)
	assert.False(t, runner.called)
}
