package domain

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// PaginationOptions defines pagination parameters over a result set
type PaginationOptions struct {
	// Cursor-based pagination
	After string `json:"after,omitempty"` // Base64 encoded cursor

	// Limit/offset pagination (fallback)
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`

	MaxLimit int `json:"max_limit,omitempty"` // Maximum allowed limit
}

// PaginationResult contains one page of records and its metadata
type PaginationResult struct {
	Records    []Record `json:"records"`
	Version    uint64   `json:"version"`
	HasNext    bool     `json:"has_next"`
	HasPrev    bool     `json:"has_prev"`
	NextCursor string   `json:"next_cursor,omitempty"`
	Total      int64    `json:"total"`
}

// Cursor points at the last record of a page.
type Cursor struct {
	ID      RecordID `json:"id"`
	Version uint64   `json:"version"`
}

// EncodeCursor encodes a cursor to base64
func EncodeCursor(cursor *Cursor) (string, error) {
	data, err := json.Marshal(cursor)
	if err != nil {
		return "", fmt.Errorf("failed to marshal cursor: %w", err)
	}
	return base64.URLEncoding.EncodeToString(data), nil
}

// DecodeCursor decodes a base64 cursor
func DecodeCursor(encoded string) (*Cursor, error) {
	data, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode cursor: %w", err)
	}

	var cursor Cursor
	if err := json.Unmarshal(data, &cursor); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cursor: %w", err)
	}

	return &cursor, nil
}

// DefaultPaginationOptions returns default pagination settings
func DefaultPaginationOptions() *PaginationOptions {
	return &PaginationOptions{
		Limit:    50,
		MaxLimit: 1000,
	}
}

// Validate validates pagination options
func (po *PaginationOptions) Validate() error {
	if po.Limit < 0 {
		return fmt.Errorf("%w: limit cannot be negative", ErrIllegalArgument)
	}
	if po.Offset < 0 {
		return fmt.Errorf("%w: offset cannot be negative", ErrIllegalArgument)
	}
	if po.MaxLimit > 0 && po.Limit > po.MaxLimit {
		return fmt.Errorf("%w: limit %d exceeds maximum %d", ErrIllegalArgument, po.Limit, po.MaxLimit)
	}
	if po.After != "" && po.Offset > 0 {
		return fmt.Errorf("%w: cannot mix cursor-based and offset-based pagination", ErrIllegalArgument)
	}
	return nil
}

// Paginate slices records (already in result order) according to the options.
func Paginate(records []Record, version uint64, options *PaginationOptions) (*PaginationResult, error) {
	if options == nil {
		options = DefaultPaginationOptions()
	}
	if err := options.Validate(); err != nil {
		return nil, err
	}

	result := &PaginationResult{
		Records: []Record{},
		Version: version,
		Total:   int64(len(records)),
	}

	start := options.Offset
	if options.After != "" {
		cursor, err := DecodeCursor(options.After)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid after cursor: %v", ErrIllegalArgument, err)
		}
		start = len(records)
		for i, rec := range records {
			if rec.ID() == cursor.ID {
				start = i + 1
				break
			}
		}
	}

	limit := options.Limit
	if limit <= 0 {
		limit = 50
	}
	if options.MaxLimit > 0 && limit > options.MaxLimit {
		limit = options.MaxLimit
	}

	if start >= len(records) {
		result.HasPrev = start > 0 && len(records) > 0
		return result, nil
	}

	end := start + limit
	if end < len(records) {
		result.HasNext = true
	} else {
		end = len(records)
	}
	result.HasPrev = start > 0
	result.Records = records[start:end]

	if result.HasNext {
		last := result.Records[len(result.Records)-1]
		next, err := EncodeCursor(&Cursor{ID: last.ID(), Version: version})
		if err != nil {
			return nil, err
		}
		result.NextCursor = next
	}

	return result, nil
}
