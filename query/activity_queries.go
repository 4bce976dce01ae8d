package query

import (
	"context"
	"errors"
	"time"

	gocommand "github.com/goliatone/go-command"
	"github.com/goliatone/go-identity/activity"
	"github.com/goliatone/go-identity/pkg/types"
	"github.com/google/uuid"
)

// ErrMissingActivityLister is returned when the feed has no backing store.
var ErrMissingActivityLister = errors.New("go-identity: missing activity lister")

// ActivityLister reads persisted security activity.
type ActivityLister interface {
	ListActivity(ctx context.Context, filter activity.Filter) ([]types.ActivityRecord, error)
}

// SecurityFeedFilter narrows the feed. Cursor values come from a previous
// page's Next; CursorToken accepts the encoded form and is used only when
// Cursor is nil.
type SecurityFeedFilter struct {
	UserID      uuid.UUID
	Verbs       []string
	Since       time.Time
	Limit       int
	Cursor      *activity.ActivityCursor
	CursorToken string
}

// SecurityFeed is one page of activity, newest first.
type SecurityFeed struct {
	Records   []types.ActivityRecord
	Next      *activity.ActivityCursor
	NextToken string
}

// SecurityFeedQuery renders a user's security events (logins, lockouts, MFA
// changes, token revocations).
type SecurityFeedQuery struct {
	repo ActivityLister
}

// NewSecurityFeedQuery constructs the feed query helper.
func NewSecurityFeedQuery(repo ActivityLister) *SecurityFeedQuery {
	return &SecurityFeedQuery{repo: repo}
}

var _ gocommand.Querier[SecurityFeedFilter, SecurityFeed] = (*SecurityFeedQuery)(nil)

// Query fetches a page of activity via the injected repository.
func (q *SecurityFeedQuery) Query(ctx context.Context, filter SecurityFeedFilter) (SecurityFeed, error) {
	if q == nil || q.repo == nil {
		return SecurityFeed{}, ErrMissingActivityLister
	}
	if filter.UserID == uuid.Nil {
		return SecurityFeed{}, types.ErrUserIDRequired
	}
	cursor := filter.Cursor
	if cursor == nil && filter.CursorToken != "" {
		parsed, err := activity.ParseCursor(filter.CursorToken)
		if err != nil {
			return SecurityFeed{}, err
		}
		cursor = parsed
	}
	records, err := q.repo.ListActivity(ctx, activity.Filter{
		UserID: filter.UserID,
		Verbs:  filter.Verbs,
		Since:  filter.Since,
		Limit:  filter.Limit,
		Cursor: cursor,
	})
	if err != nil {
		return SecurityFeed{}, err
	}
	feed := SecurityFeed{Records: records}
	if filter.Limit > 0 && len(records) == filter.Limit {
		last := records[len(records)-1]
		feed.Next = &activity.ActivityCursor{OccurredAt: last.OccurredAt, ID: last.ID}
		feed.NextToken = feed.Next.Token()
	}
	return feed, nil
}
