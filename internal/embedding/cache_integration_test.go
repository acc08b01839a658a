//go:build integration

package embedding

import (
	"context"
	"testing"
	"time"

	"github.com/cloo-solutions/campaignkb/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_Redis(t *testing.T) {
	ctx := context.Background()
	rc := testutil.NewRedisContainer(ctx, t)
	defer rc.Terminate(ctx)

	client, err := NewRedisClient(ctx, rc.Addr(), "", 0)
	require.NoError(t, err)
	defer client.Close()

	kv := NewRedisKV(client)
	_, err = kv.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	c := NewCache(NewHashingEmbedder(32), kv, "local", time.Minute)
	first, err := c.GenerateEmbedding(ctx, "the goblin ambush")
	require.NoError(t, err)

	raw, err := kv.Get(ctx, c.key("the goblin ambush"))
	require.NoError(t, err)
	cached, ok := decodeVector(raw)
	require.True(t, ok)
	assert.Equal(t, first, cached)
}
