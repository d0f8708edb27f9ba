package repository

import (
	"context"

	"github.com/fathima-sithara/realtime-service/internal/domain"
)

// StatusFilter selects messages for a status update or lookup. Empty fields
// do not constrain the match.
type StatusFilter struct {
	IDs         []string
	SenderID    string
	RecipientID string
	Statuses    []domain.Status
}

// guarded narrows the filter's statuses to those that may move to target.
func (f StatusFilter) guarded(target domain.Status) []domain.Status {
	allowed := domain.StatusesBefore(target)
	if len(f.Statuses) == 0 {
		return allowed
	}
	out := make([]domain.Status, 0, len(f.Statuses))
	for _, s := range f.Statuses {
		if s.Before(target) {
			out = append(out, s)
		}
	}
	return out
}

type MessageStore interface {
	Create(ctx context.Context, m *domain.Message) error
	Get(ctx context.Context, id string) (*domain.Message, error)
	ListConversation(ctx context.Context, userA, userB string) ([]*domain.Message, error)
	Find(ctx context.Context, f StatusFilter) ([]*domain.Message, error)
	// UpdateStatus moves every matching message to status and returns how
	// many changed. Messages already at or past status never match.
	UpdateStatus(ctx context.Context, f StatusFilter, status domain.Status) (int64, error)
}

type UserDirectory interface {
	Exists(ctx context.Context, id string) (bool, error)
	Get(ctx context.Context, id string) (*domain.User, error)
}

type NotificationQuery struct {
	Page       int
	Limit      int
	UnreadOnly bool
}

// Normalize clamps paging to page >= 1 and 1 <= limit <= 100.
func (q NotificationQuery) Normalize() NotificationQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = 20
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	return q
}

type NotificationStore interface {
	Create(ctx context.Context, n *domain.Notification) error
	List(ctx context.Context, userID string, q NotificationQuery) ([]*domain.Notification, int64, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
	MarkRead(ctx context.Context, userID, id string) (*domain.Notification, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	Delete(ctx context.Context, userID, id string) error
}
