package activity

import (
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ErrInvalidCursor is returned when a feed cursor token cannot be decoded.
var ErrInvalidCursor = errors.New("go-identity: invalid activity cursor")

// ActivityCursor points at the last record of a security feed page.
type ActivityCursor struct {
	OccurredAt time.Time
	ID         uuid.UUID
}

// Token encodes the cursor as an opaque string safe for query parameters.
func (c ActivityCursor) Token() string {
	raw := c.OccurredAt.UTC().Format(time.RFC3339Nano) + "|" + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// ParseCursor decodes a token produced by ActivityCursor.Token. An empty token
// yields a nil cursor, meaning the first page.
func ParseCursor(token string) (*ActivityCursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	at, id, ok := strings.Cut(string(raw), "|")
	if !ok {
		return nil, ErrInvalidCursor
	}
	occurred, err := time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	return &ActivityCursor{OccurredAt: occurred, ID: parsed}, nil
}

// ApplyCursorPagination orders security events newest first and keeps the
// ones strictly older than cursor. The id breaks ties between events logged
// in the same instant.
func ApplyCursorPagination(q *bun.SelectQuery, cursor *ActivityCursor, limit int) *bun.SelectQuery {
	if q == nil {
		return nil
	}
	q = q.OrderExpr("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if cursor == nil || cursor.OccurredAt.IsZero() {
		return q
	}
	if cursor.ID == uuid.Nil {
		return q.Where("created_at < ?", cursor.OccurredAt)
	}
	return q.WhereGroup(" AND ", func(sq *bun.SelectQuery) *bun.SelectQuery {
		return sq.Where("created_at < ?", cursor.OccurredAt).
			WhereOr("created_at = ? AND id < ?", cursor.OccurredAt, cursor.ID)
	})
}
