package repository

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cloo-solutions/campaignkb/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManifestRepository_WriteManifest(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "chunks")
	repo := NewManifestRepository(dir)

	chunks := []domain.Chunk{
		domain.NewChunk("Session_04.pdf", 1, 0, "héllo", intPtr(4)),
		domain.NewChunk("Session_04.pdf", 2, 920, "world", intPtr(4)),
	}
	require.NoError(t, repo.WriteManifest(context.Background(), "Session_04", chunks))

	raw, err := os.ReadFile(filepath.Join(dir, "Session_04.chunks.jsonl"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t,
		`{"id":"`+chunks[0].ID+`","source_file":"Session_04.pdf","page":1,"session":4,"offset":0,"sha256":"`+chunks[0].SHA256+`","len":5}`,
		lines[0])

	records, err := repo.ReadManifest("Session_04")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 920, records[1].Offset)
}

func TestManifestRepository_NullSession(t *testing.T) {
	repo := NewManifestRepository(t.TempDir())

	require.NoError(t, repo.WriteManifest(context.Background(), "Lore", []domain.Chunk{
		domain.NewChunk("Lore.pdf", 1, 0, "text", nil),
	}))

	raw, err := os.ReadFile(repo.Path("Lore"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"session":null`)
}

func TestManifestRepository_Overwrites(t *testing.T) {
	repo := NewManifestRepository(t.TempDir())
	ctx := context.Background()

	require.NoError(t, repo.WriteManifest(ctx, "a", []domain.Chunk{
		domain.NewChunk("a.pdf", 1, 0, "one", nil),
		domain.NewChunk("a.pdf", 1, 3, "two", nil),
	}))
	require.NoError(t, repo.WriteManifest(ctx, "a", []domain.Chunk{
		domain.NewChunk("a.pdf", 1, 0, "three", nil),
	}))

	records, err := repo.ReadManifest("a")
	require.NoError(t, err)
	assert.Len(t, records, 1)

	entries, err := os.ReadDir(filepath.Dir(repo.Path("a")))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestManifestRepository_EmptyChunks(t *testing.T) {
	repo := NewManifestRepository(t.TempDir())

	require.NoError(t, repo.WriteManifest(context.Background(), "blank", nil))

	raw, err := os.ReadFile(repo.Path("blank"))
	require.NoError(t, err)
	assert.Empty(t, raw)
}

func TestManifestRepository_ReadMissing(t *testing.T) {
	repo := NewManifestRepository(t.TempDir())

	_, err := repo.ReadManifest("nope")

	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}
