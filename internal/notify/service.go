package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fathima-sithara/realtime-service/internal/domain"
	"github.com/fathima-sithara/realtime-service/internal/events"
	"github.com/fathima-sithara/realtime-service/internal/metrics"
	"github.com/fathima-sithara/realtime-service/internal/protocol"
	"github.com/fathima-sithara/realtime-service/internal/repository"
	"go.uber.org/zap"
)

type Emitter interface {
	EmitToRoom(ctx context.Context, room string, ev protocol.Event) error
}

// Request is a notification to create. It is also the record format read
// from the notification request topic.
type Request struct {
	UserID string                  `json:"userId"`
	Kind   domain.NotificationKind `json:"type"`
	Title  string                  `json:"title"`
	Body   string                  `json:"message"`
	Data   map[string]any          `json:"data,omitempty"`
}

func (r Request) Validate() error {
	if r.UserID == "" {
		return domain.Invalid("user ID is required")
	}
	if !r.Kind.Valid() {
		return domain.Invalid("unknown notification type %q", r.Kind)
	}
	if strings.TrimSpace(r.Title) == "" || strings.TrimSpace(r.Body) == "" {
		return domain.Invalid("title and message are required")
	}
	return nil
}

type Service struct {
	store   repository.NotificationStore
	emitter Emitter
	events  events.Publisher
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewService(store repository.NotificationStore, emitter Emitter, publisher events.Publisher, m *metrics.Metrics, log *zap.Logger) *Service {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Service{store: store, emitter: emitter, events: publisher, metrics: m, log: log}
}

// Notify persists the notification and then pushes it to the user's
// notification and personal rooms. A failed push is logged, not returned.
func (s *Service) Notify(ctx context.Context, req Request) (*domain.Notification, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Data == nil {
		req.Data = map[string]any{}
	}
	n := &domain.Notification{
		UserID: req.UserID,
		Kind:   req.Kind,
		Title:  req.Title,
		Body:   req.Body,
		Data:   req.Data,
	}
	if err := s.store.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("save notification: %w", err)
	}

	ev := protocol.NewNotification{Notification: n}
	for _, room := range []string{protocol.NotificationRoom(n.UserID), protocol.UserRoom(n.UserID)} {
		if err := s.emitter.EmitToRoom(ctx, room, ev); err != nil {
			s.log.Warn("notification push failed", zap.String("room", room), zap.String("notification_id", n.ID), zap.Error(err))
		}
	}
	if s.metrics != nil {
		s.metrics.Notifications.Inc()
	}

	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.events.Publish(pctx, events.New(events.NotificationCreated, n.UserID, n)); err != nil {
		s.log.Warn("publish notification event failed", zap.Error(err))
	}
	return n, nil
}

func (s *Service) List(ctx context.Context, userID string, q repository.NotificationQuery) ([]*domain.Notification, int64, error) {
	return s.store.List(ctx, userID, q)
}

func (s *Service) UnreadCount(ctx context.Context, userID string) (int64, error) {
	return s.store.CountUnread(ctx, userID)
}

func (s *Service) MarkRead(ctx context.Context, userID, id string) (*domain.Notification, error) {
	return s.store.MarkRead(ctx, userID, id)
}

func (s *Service) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return s.store.MarkAllRead(ctx, userID)
}

func (s *Service) Delete(ctx context.Context, userID, id string) error {
	return s.store.Delete(ctx, userID, id)
}
