// Package pagination implements keyset cursors for knowledge listings.
package pagination

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"
)

// Cursor marks the last entry of a page. Listings are ordered by creation
// time descending with the id as tie-breaker.
type Cursor struct {
	LastID    int64
	Timestamp time.Time
}

// PageResult represents a paginated result set
type PageResult[T any] struct {
	Items   []T    `json:"items"`
	Cursor  string `json:"cursor,omitempty"`
	HasMore bool   `json:"has_more"`
}

var (
	ErrInvalidCursor = errors.New("invalid cursor format")
)

// EncodeCursor builds the opaque cursor for the entry with lastID created at timestamp.
func EncodeCursor(lastID int64, timestamp time.Time) string {
	if lastID <= 0 {
		return ""
	}
	raw := strconv.FormatInt(lastID, 10) + "|" + timestamp.UTC().Format(time.RFC3339Nano)
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a cursor. An empty cursor means the first page and
// yields nil.
func DecodeCursor(cursor string) (*Cursor, error) {
	if cursor == "" {
		return nil, nil
	}

	decoded, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, ErrInvalidCursor
	}

	idPart, tsPart, ok := strings.Cut(string(decoded), "|")
	if !ok {
		return nil, ErrInvalidCursor
	}

	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id <= 0 {
		return nil, ErrInvalidCursor
	}

	timestamp, err := time.Parse(time.RFC3339Nano, tsPart)
	if err != nil {
		return nil, ErrInvalidCursor
	}

	return &Cursor{
		LastID:    id,
		Timestamp: timestamp,
	}, nil
}

// NextCursor returns the cursor following a page. It is empty unless the
// page was full.
func NextCursor[T any](items []T, limit int, getID func(T) int64, getTimestamp func(T) time.Time) string {
	if len(items) == 0 || len(items) < limit {
		return ""
	}
	last := items[len(items)-1]
	return EncodeCursor(getID(last), getTimestamp(last))
}
