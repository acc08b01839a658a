package repository

import (
	"encoding/json"
	"log"
	"math"

	"github.com/cloo-solutions/campaignkb/internal/domain"
)

func encodeMetadata(c domain.Chunk) ([]byte, error) {
	return json.Marshal(c.Metadata())
}

// decodeMetadata never fails: unknown keys are ignored and a record whose
// metadata cannot be parsed is returned with whatever fields survived.
func decodeMetadata(id string, raw []byte) domain.ChunkMetadata {
	var meta domain.ChunkMetadata
	if len(raw) == 0 {
		return meta
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		log.Printf("repository: unreadable metadata for %s: %v", id, err)
		var loose map[string]any
		if json.Unmarshal(raw, &loose) == nil {
			meta = looseMetadata(loose)
		}
	}
	return meta
}

func looseMetadata(m map[string]any) domain.ChunkMetadata {
	var meta domain.ChunkMetadata
	if v, ok := m["source_file"].(string); ok {
		meta.SourceFile = v
	}
	if v, ok := m["page"].(float64); ok {
		meta.Page = int(v)
	}
	if v, ok := m["session"].(float64); ok {
		n := int(v)
		meta.Session = &n
	}
	if v, ok := m["offset"].(float64); ok {
		meta.Offset = int(v)
	}
	if v, ok := m["sha256"].(string); ok {
		meta.SHA256 = v
	}
	return meta
}

// cosineDistance returns 1 - cos(a, b). Mismatched lengths or a zero vector
// give the maximum distance of 2 so they sort last.
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 2
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
