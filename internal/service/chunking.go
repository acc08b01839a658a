package service

import (
	"strings"

	"github.com/cloo-solutions/campaignkb/internal/domain"
)

// ChunkConfig controls how page text is split into overlapping windows.
// Sizes are measured in characters (Unicode code points).
type ChunkConfig struct {
	MaxChars int
	Overlap  int
}

// DefaultChunkConfig provides sane defaults for chunking.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		MaxChars: 1100,
		Overlap:  180,
	}
}

// Validate enforces MaxChars > Overlap >= 0 so every window advances.
func (c ChunkConfig) Validate() error {
	if c.Overlap < 0 || c.MaxChars <= c.Overlap {
		return domain.ErrInvalidChunkConfig
	}
	return nil
}

// PageSpan is a window of one page's stripped text.
type PageSpan struct {
	Page   int
	Offset int
	Text   string
}

// ChunkPages slides a MaxChars window over every non-empty page. Pages are
// numbered from 1 by position, so blank pages leave gaps in numbering.
func ChunkPages(pages []string, cfg ChunkConfig) ([]PageSpan, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	spans := make([]PageSpan, 0, len(pages))
	for i, page := range pages {
		runes := []rune(strings.TrimSpace(page))
		if len(runes) == 0 {
			continue
		}

		start := 0
		for start < len(runes) {
			end := start + cfg.MaxChars
			if end > len(runes) {
				end = len(runes)
			}

			spans = append(spans, PageSpan{
				Page:   i + 1,
				Offset: start,
				Text:   string(runes[start:end]),
			})

			if end == len(runes) {
				break
			}

			start = end - cfg.Overlap
			if start < 0 {
				start = 0
			}
		}
	}

	return spans, nil
}
