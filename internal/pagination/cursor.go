package pagination

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
)

// DefaultLimit and MaxLimit bound a page when the caller does not.
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Cursor represents a decoded pagination cursor
type Cursor struct {
	LastID   string
	Position int
}

// PageResult represents a paginated result set
type PageResult[T any] struct {
	Items   []T    `json:"items"`
	Cursor  string `json:"cursor,omitempty"`
	HasMore bool   `json:"has_more"`
}

var (
	ErrInvalidCursor = errors.New("invalid cursor format")
	// ErrStaleCursor means the list changed since the cursor was issued.
	ErrStaleCursor = errors.New("cursor no longer matches the list")
)

// EncodeCursor creates a base64-encoded cursor from the last item ID and its position
func EncodeCursor(lastID string, position int) string {
	if lastID == "" {
		return ""
	}
	raw := strconv.Itoa(position) + "|" + lastID
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor decodes a base64-encoded cursor and returns the last ID and position
func DecodeCursor(cursor string) (*Cursor, error) {
	if cursor == "" {
		return nil, nil
	}

	decoded, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, ErrInvalidCursor
	}

	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return nil, ErrInvalidCursor
	}

	position, err := strconv.Atoi(parts[0])
	if err != nil || position < 0 {
		return nil, ErrInvalidCursor
	}

	return &Cursor{
		LastID:   parts[1],
		Position: position,
	}, nil
}

// ClampLimit maps a requested page size onto [1, MaxLimit], using
// DefaultLimit for non-positive values.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Paginate returns the page of items that follows cursor. The item at the
// cursor position must still carry the cursor's ID.
func Paginate[T any](items []T, cursor string, limit int, getID func(T) string) (PageResult[T], error) {
	limit = ClampLimit(limit)

	c, err := DecodeCursor(cursor)
	if err != nil {
		return PageResult[T]{}, err
	}

	start := 0
	if c != nil {
		if c.Position >= len(items) || getID(items[c.Position]) != c.LastID {
			return PageResult[T]{}, ErrStaleCursor
		}
		start = c.Position + 1
	}

	end := start + limit
	if end > len(items) {
		end = len(items)
	}

	page := PageResult[T]{Items: items[start:end]}
	if page.Items == nil {
		page.Items = []T{}
	}
	if end < len(items) {
		page.HasMore = true
		page.Cursor = EncodeCursor(getID(items[end-1]), end-1)
	}
	return page, nil
}
