// Package extract turns documents into per-page text.
package extract

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/cloo-solutions/campaignkb/internal/domain"
	"github.com/gen2brain/go-fitz"
)

// Document is the subset of a parsed PDF the extractor needs.
type Document interface {
	NumPage() int
	Text(pageNumber int) (string, error)
	Close() error
}

// Opener opens a document by path.
type Opener func(path string) (Document, error)

// PDFExtractor extracts page text with MuPDF.
type PDFExtractor struct {
	open Opener
}

// NewPDFExtractor creates an extractor backed by go-fitz.
func NewPDFExtractor() *PDFExtractor {
	return NewPDFExtractorWithOpener(openFitz)
}

// NewPDFExtractorWithOpener creates an extractor with a custom document opener.
func NewPDFExtractorWithOpener(open Opener) *PDFExtractor {
	return &PDFExtractor{open: open}
}

func openFitz(path string) (Document, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// ExtractPages returns one entry per page, in order. A page that fails to
// extract yields "" so later pages keep their numbers.
func (e *PDFExtractor) ExtractPages(ctx context.Context, path string) ([]string, error) {
	name := filepath.Base(path)
	if _, err := os.Stat(path); err != nil {
		return nil, domain.NewExtractionError(name, err)
	}

	doc, err := e.openSafe(path)
	if err != nil {
		return nil, domain.NewExtractionError(name, err)
	}
	defer doc.Close()

	numPages := doc.NumPage()
	if numPages < 0 {
		return nil, domain.NewExtractionError(name, fmt.Errorf("invalid page count %d", numPages))
	}

	pages := make([]string, numPages)
	for i := 0; i < numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := pageText(doc, i)
		if err != nil {
			log.Printf("extract: %s page %d: %v (continuing with empty text)", name, i+1, err)
			continue
		}
		pages[i] = text
	}

	return pages, nil
}

func (e *PDFExtractor) openSafe(path string) (doc Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = fmt.Errorf("pdf engine panic: %v", r)
		}
	}()
	return e.open(path)
}

func pageText(doc Document, i int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("pdf engine panic: %v", r)
		}
	}()
	return doc.Text(i)
}
