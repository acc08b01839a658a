package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
)

// ContentHashLength is the number of hex characters kept from the SHA-256 digest.
const ContentHashLength = 16

// Chunk is a bounded span of one page of a document, the unit stored and retrieved.
type Chunk struct {
	ID         string
	SourceFile string
	Page       int
	Session    *int
	Offset     int
	Text       string
	SHA256     string
}

// ChunkMetadata is the provenance stored next to a chunk's text and embedding.
type ChunkMetadata struct {
	SourceFile string `json:"source_file"`
	Page       int    `json:"page"`
	Session    *int   `json:"session"`
	Offset     int    `json:"offset"`
	SHA256     string `json:"sha256"`
}

// SearchHit is one record returned by a nearest-neighbour query.
// Distance is nil when the backend does not report it.
type SearchHit struct {
	ID       string
	Text     string
	Metadata ChunkMetadata
	Distance *float64
}

// NewChunk builds a chunk for the text found at (page, offset) of sourceFile.
func NewChunk(sourceFile string, page, offset int, text string, session *int) Chunk {
	sum := ContentHash(text)
	return Chunk{
		ID:         ChunkID(DocumentStem(sourceFile), page, offset, sum),
		SourceFile: sourceFile,
		Page:       page,
		Session:    session,
		Offset:     offset,
		Text:       text,
		SHA256:     sum,
	}
}

// Metadata projects the chunk onto the fields persisted beside the vector.
func (c Chunk) Metadata() ChunkMetadata {
	return ChunkMetadata{
		SourceFile: c.SourceFile,
		Page:       c.Page,
		Session:    c.Session,
		Offset:     c.Offset,
		SHA256:     c.SHA256,
	}
}

// ContentHash returns the truncated hex SHA-256 of the UTF-8 text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:ContentHashLength]
}

// ChunkID derives the content-addressed identifier of a chunk.
func ChunkID(stem string, page, offset int, hash string) string {
	return fmt.Sprintf("%s_p%d_o%d_%s", stem, page, offset, hash)
}

// DocumentStem is the base filename without its final extension.
func DocumentStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ValidateChunk validates a Chunk instance
func ValidateChunk(c *Chunk) error {
	if c == nil {
		return fmt.Errorf("chunk cannot be nil")
	}

	if c.ID == "" {
		return fmt.Errorf("chunk ID is required")
	}

	if c.SourceFile == "" {
		return fmt.Errorf("chunk SourceFile is required")
	}

	if c.Page < 1 {
		return fmt.Errorf("chunk Page must be at least 1")
	}

	if c.Offset < 0 {
		return fmt.Errorf("chunk Offset cannot be negative")
	}

	if c.SHA256 != ContentHash(c.Text) {
		return fmt.Errorf("chunk SHA256 does not match its text")
	}

	return nil
}

// VectorRecord is a chunk together with the embedding computed for its text.
type VectorRecord struct {
	Chunk     Chunk
	Embedding []float32
}
