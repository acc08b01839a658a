package kb

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/cloo-solutions/campaignkb/internal/cli"
	"github.com/cloo-solutions/campaignkb/internal/domain"
	"github.com/cloo-solutions/campaignkb/internal/repository"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupEnv(t *testing.T, enabled bool) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("CAMPAIGNKB_DATA_DIR", dir)
	t.Setenv("CAMPAIGNKB_DRIVE_RAW_DIR", "")
	t.Setenv("CAMPAIGNKB_INGEST_DIR", "")
	t.Setenv("CAMPAIGNKB_CHUNK_DIR", "")
	t.Setenv("CAMPAIGNKB_VECTOR_DIR", "")
	t.Setenv("CAMPAIGNKB_VECTOR_BACKEND", "sqlite")
	t.Setenv("CAMPAIGNKB_EMBEDDINGS_PROVIDER", "local")
	t.Setenv("CAMPAIGNKB_S3_ENDPOINT", "")
	t.Setenv("CAMPAIGNKB_REDIS_ADDR", "")
	if enabled {
		t.Setenv("CAMPAIGNKB_ENABLE_PDF_QA", "true")
	} else {
		t.Setenv("CAMPAIGNKB_ENABLE_PDF_QA", "false")
	}
	return dir
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	root := &cobra.Command{Use: "campaignkb", SilenceUsage: true, SilenceErrors: true}
	root.PersistentFlags().Bool("output", false, "Output as JSON")
	root.AddCommand(Commands()...)

	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestCommands_DeclareRequirements(t *testing.T) {
	for _, cmd := range Commands() {
		assert.NotEmpty(t, cli.Requirements(cmd), cmd.Name())
	}
}

func TestAsk_EmptyIndex(t *testing.T) {
	setupEnv(t, true)

	out, _, err := run(t, "ask", "who", "is", "the", "villain?")

	require.NoError(t, err)
	assert.Equal(t, "No relevant passages found.\n", out)
}

func TestAsk_JSONOutput(t *testing.T) {
	setupEnv(t, true)

	out, _, err := run(t, "ask", "--output", "anything")

	require.NoError(t, err)
	var resp map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "No relevant passages found.", resp["answer"])
}

func TestAsk_MaxChars(t *testing.T) {
	setupEnv(t, true)

	out, _, err := run(t, "ask", "--max-chars", "2", "anything")

	require.NoError(t, err)
	assert.Equal(t, "No\n", out)
}

func TestAsk_NegativeK(t *testing.T) {
	setupEnv(t, true)

	_, _, err := run(t, "ask", "-k", "-1", "anything")

	assert.Error(t, err)
}

func TestCommands_FeatureDisabled(t *testing.T) {
	setupEnv(t, false)

	for _, args := range [][]string{
		{"ask", "anything"},
		{"enemies", "3"},
		{"sync"},
		{"ingest", "a.pdf"},
		{"manifest", "a"},
	} {
		t.Run(args[0], func(t *testing.T) {
			_, _, err := run(t, args...)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrFeatureDisabled)
			assert.Contains(t, err.Error(), "PDF QA feature disabled.")
		})
	}
}

func TestEnemies_NoData(t *testing.T) {
	setupEnv(t, true)

	out, _, err := run(t, "enemies", "7")

	require.NoError(t, err)
	assert.Equal(t, "No enemy data inferred for session 7.\n", out)
}

func TestEnemies_InvalidSession(t *testing.T) {
	setupEnv(t, true)

	_, _, err := run(t, "enemies", "seven")

	assert.ErrorIs(t, err, domain.ErrInvalidSession)
}

func TestSync_EmptyDirectory(t *testing.T) {
	setupEnv(t, true)

	out, _, err := run(t, "sync")

	require.NoError(t, err)
	assert.Equal(t, "No PDFs found in drive_raw directory.\n", out)
}

func TestSync_UnreadableDocumentIsSkipped(t *testing.T) {
	dir := setupEnv(t, true)
	drive := filepath.Join(dir, "drive_raw")
	require.NoError(t, os.MkdirAll(drive, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(drive, "Session 1.pdf"), []byte("not a pdf"), 0o644))

	out, stderr, err := run(t, "sync")

	require.NoError(t, err)
	assert.Equal(t, "Ingested 0 PDFs into 0 chunks. 1 failed.\n", out)
	assert.Contains(t, stderr, "Session 1.pdf")
}

func TestSync_OutputHidesFailureCause(t *testing.T) {
	dir := setupEnv(t, true)
	drive := filepath.Join(dir, "drive_raw")
	require.NoError(t, os.MkdirAll(drive, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(drive, "Session 1.pdf"), []byte("not a pdf"), 0o644))

	out, _, err := run(t, "sync", "--output")
	require.NoError(t, err)

	var summary struct {
		Failed []struct {
			SourceFile string `json:"source_file"`
			Error      string `json:"error"`
		} `json:"failed"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	require.Len(t, summary.Failed, 1)
	assert.Equal(t, "Session 1.pdf", summary.Failed[0].SourceFile)
	assert.Equal(t, "could not read document Session 1.pdf", summary.Failed[0].Error)
	assert.NotContains(t, out, drive)
}

func TestSync_PullWithoutStorage(t *testing.T) {
	setupEnv(t, true)

	_, _, err := run(t, "sync", "--pull")

	assert.ErrorIs(t, err, domain.ErrStorageNotConfigured)
}

func TestIngest_UnreadableDocument(t *testing.T) {
	dir := setupEnv(t, true)
	path := filepath.Join(dir, "broken.pdf")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))

	_, stderr, err := run(t, "ingest", path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 documents failed")
	assert.Contains(t, stderr, "broken.pdf")
}

func TestManifest(t *testing.T) {
	dir := setupEnv(t, true)
	session := 2
	chunks := []domain.Chunk{
		domain.NewChunk("Session 2.pdf", 1, 0, "The party met the duke.", &session),
		domain.NewChunk("Session 2.pdf", 2, 0, "A storm rolled in.", &session),
	}
	require.NoError(t, repository.NewManifestRepository(filepath.Join(dir, "chunks")).
		WriteManifest(context.Background(), "Session 2", chunks))

	out, _, err := run(t, "manifest", "Session 2.pdf")

	require.NoError(t, err)
	assert.Contains(t, out, "PAGE")
	assert.Contains(t, out, chunks[0].ID)
	assert.Contains(t, out, chunks[1].ID)

	out, _, err = run(t, "manifest", "--output", "Session 2")
	require.NoError(t, err)
	var records []repository.ManifestRecord
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 2)
	assert.Equal(t, 23, records[0].Len)
}

func TestManifest_NotFound(t *testing.T) {
	setupEnv(t, true)

	_, _, err := run(t, "manifest", "missing")

	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}

func TestUpload_RequiresStorage(t *testing.T) {
	setupEnv(t, true)

	_, _, err := run(t, "upload", "Session 1.pdf")

	assert.ErrorIs(t, err, domain.ErrStorageNotConfigured)
}

func TestUpload_RejectsNonPDF(t *testing.T) {
	setupEnv(t, true)

	_, _, err := run(t, "upload", "notes.txt")

	assert.ErrorIs(t, err, domain.ErrNotPDF)
}
