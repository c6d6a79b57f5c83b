package models

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"
)

var ErrInvalidCursor = errors.New("invalid cursor")

// Cursor marks the last booking of a page in (CreatedAt desc, ID desc) order.
type Cursor struct {
	CreatedAt time.Time `json:"c"`
	ID        string    `json:"i"`
}

func CursorFor(b *Booking) Cursor {
	return Cursor{CreatedAt: b.CreatedAt, ID: b.ID}
}

// Encode returns an opaque URL-safe token.
func (c Cursor) Encode() string {
	raw, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(raw)
}

func DecodeCursor(token string) (Cursor, error) {
	var c Cursor
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return c, ErrInvalidCursor
	}
	if err := json.Unmarshal(raw, &c); err != nil || c.ID == "" {
		return Cursor{}, ErrInvalidCursor
	}
	return c, nil
}

// After reports whether b sorts strictly after the cursor position.
func (c Cursor) After(b *Booking) bool {
	if b.CreatedAt.Equal(c.CreatedAt) {
		return b.ID < c.ID
	}
	return b.CreatedAt.Before(c.CreatedAt)
}
