package extract

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/cloo-solutions/campaignkb/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDocument struct {
	pages  []string
	errs   map[int]error
	panics map[int]bool
	closed bool
}

func (d *fakeDocument) NumPage() int { return len(d.pages) }

func (d *fakeDocument) Text(i int) (string, error) {
	if d.panics[i] {
		panic("corrupt content stream")
	}
	if err := d.errs[i]; err != nil {
		return "", err
	}
	return d.pages[i], nil
}

func (d *fakeDocument) Close() error {
	d.closed = true
	return nil
}

func touch(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o644))
	return path
}

func TestExtractPages_AllPages(t *testing.T) {
	doc := &fakeDocument{pages: []string{"page one", "page two", "page three"}}
	extractor := NewPDFExtractorWithOpener(func(string) (Document, error) { return doc, nil })

	pages, err := extractor.ExtractPages(context.Background(), touch(t, "Session_01.pdf"))

	require.NoError(t, err)
	assert.Equal(t, []string{"page one", "page two", "page three"}, pages)
	assert.True(t, doc.closed)
}

func TestExtractPages_PageFailuresKeepNumbering(t *testing.T) {
	doc := &fakeDocument{
		pages:  []string{"first", "broken", "exploding", "last"},
		errs:   map[int]error{1: errors.New("bad font")},
		panics: map[int]bool{2: true},
	}
	extractor := NewPDFExtractorWithOpener(func(string) (Document, error) { return doc, nil })

	pages, err := extractor.ExtractPages(context.Background(), touch(t, "Session_02.pdf"))

	require.NoError(t, err)
	require.Len(t, pages, 4)
	assert.Equal(t, "first", pages[0])
	assert.Equal(t, "", pages[1])
	assert.Equal(t, "", pages[2])
	assert.Equal(t, "last", pages[3])
}

func TestExtractPages_UnreadableDocument(t *testing.T) {
	extractor := NewPDFExtractorWithOpener(func(string) (Document, error) {
		return nil, errors.New("not a pdf")
	})

	pages, err := extractor.ExtractPages(context.Background(), touch(t, "garbage.pdf"))

	assert.Nil(t, pages)
	assert.ErrorIs(t, err, domain.ErrExtraction)
	assert.Contains(t, err.Error(), "garbage.pdf")
}

func TestExtractPages_MissingFile(t *testing.T) {
	extractor := NewPDFExtractorWithOpener(func(string) (Document, error) {
		t.Fatal("opener must not be called for a missing file")
		return nil, nil
	})

	_, err := extractor.ExtractPages(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"))

	assert.ErrorIs(t, err, domain.ErrExtraction)
}

func TestExtractPages_OpenerPanic(t *testing.T) {
	extractor := NewPDFExtractorWithOpener(func(string) (Document, error) {
		panic("mupdf abort")
	})

	_, err := extractor.ExtractPages(context.Background(), touch(t, "boom.pdf"))

	assert.ErrorIs(t, err, domain.ErrExtraction)
}

func TestExtractPages_ContextCancelled(t *testing.T) {
	doc := &fakeDocument{pages: []string{"a", "b"}}
	extractor := NewPDFExtractorWithOpener(func(string) (Document, error) { return doc, nil })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := extractor.ExtractPages(ctx, touch(t, "a.pdf"))

	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, doc.closed)
}
