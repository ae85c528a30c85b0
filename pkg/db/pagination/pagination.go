package pagination

import (
	"encoding/base64"
	"encoding/json"
)

// Cursor is the opaque keyset position used by append-only listings such as the audit log.
type Cursor struct {
	ID        string `json:"id,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

type CursorPageInfo struct {
	NextPageToken string `json:"next_page_token,omitempty"`
	HasMore       bool   `json:"has_more"`
}

func EncodeCursor(data Cursor) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

func DecodeCursor(data string) (*Cursor, error) {
	b, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		return nil, err
	}

	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return nil, err
	}
	return &cursor, nil
}

// TrimCursorPage expects limit+1 rows and cuts the probe row off.
func TrimCursorPage[T any](data []T, limit int, extractCursor func(T) string) ([]T, CursorPageInfo) {
	if len(data) <= limit {
		return data, CursorPageInfo{}
	}
	data = data[:limit]
	return data, CursorPageInfo{HasMore: true, NextPageToken: extractCursor(data[len(data)-1])}
}

// Page is a 1-based offset page request.
type Page struct {
	Page  int `form:"page"`
	Limit int `form:"limit"`
}

type PageInfo struct {
	Page    int   `json:"page"`
	Limit   int   `json:"limit"`
	Total   int64 `json:"total"`
	HasMore bool  `json:"has_more"`
}

// Normalize applies the default limit, caps it at max and clamps page to at least 1.
func (p Page) Normalize(defaultLimit, max int) Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	if max > 0 && p.Limit > max {
		p.Limit = max
	}
	return p
}

func (p Page) Offset() int {
	return (p.Page - 1) * p.Limit
}

func (p Page) Info(total int64) PageInfo {
	return PageInfo{
		Page:    p.Page,
		Limit:   p.Limit,
		Total:   total,
		HasMore: int64(p.Offset()+p.Limit) < total,
	}
}
