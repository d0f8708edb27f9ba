package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/fathima-sithara/realtime-service/internal/domain"
	"github.com/fathima-sithara/realtime-service/internal/events"
	"github.com/fathima-sithara/realtime-service/internal/metrics"
	"github.com/fathima-sithara/realtime-service/internal/protocol"
	"github.com/fathima-sithara/realtime-service/internal/repository"
	"go.uber.org/zap"
)

const maxClientMessageID = 64

type Emitter interface {
	EmitToRoom(ctx context.Context, room string, ev protocol.Event) error
}

type Presence interface {
	RoomActive(ctx context.Context, room string) (bool, error)
}

// Service owns message state transitions for both the socket channel and
// the REST fallback.
type Service struct {
	messages repository.MessageStore
	users    repository.UserDirectory
	emitter  Emitter
	presence Presence
	events   events.Publisher
	metrics  *metrics.Metrics
	log      *zap.Logger
	maxBody  int
}

type Option func(*Service)

func WithEvents(p events.Publisher) Option { return func(s *Service) { s.events = p } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

func WithMaxBody(n int) Option { return func(s *Service) { s.maxBody = n } }

func NewService(messages repository.MessageStore, users repository.UserDirectory, emitter Emitter, presence Presence, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		messages: messages,
		users:    users,
		emitter:  emitter,
		presence: presence,
		events:   events.Noop{},
		log:      log,
		maxBody:  domain.DefaultMaxBodyLength,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

type SendInput struct {
	RecipientID     string
	Body            string
	ClientMessageID string
}

// Send validates and persists a message with status sent. It emits nothing.
func (s *Service) Send(ctx context.Context, senderID string, in SendInput) (*domain.Message, error) {
	if in.RecipientID == "" {
		return nil, domain.Invalid("recipient ID is required")
	}
	if in.RecipientID == senderID {
		return nil, domain.Invalid("cannot message yourself")
	}
	if len(in.ClientMessageID) > maxClientMessageID {
		return nil, domain.Invalid("clientMessageId too long")
	}
	body, err := domain.ValidateBody(in.Body, s.maxBody)
	if err != nil {
		return nil, err
	}
	ok, err := s.users.Exists(ctx, in.RecipientID)
	if err != nil {
		return nil, fmt.Errorf("lookup recipient: %w", err)
	}
	if !ok {
		return nil, domain.ErrRecipientNotFound
	}

	msg := &domain.Message{
		SenderID:        senderID,
		RecipientID:     in.RecipientID,
		Body:            body,
		Status:          domain.StatusSent,
		ClientMessageID: in.ClientMessageID,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("save message: %w", err)
	}
	s.metrics.StatusChanged(string(domain.StatusSent), 1)
	s.publish(ctx, events.New(events.MessageCreated, msg.RecipientID, msg))
	return msg, nil
}

// DeliverLive announces a freshly persisted message on the socket channel and
// promotes it to delivered when the recipient has a live connection. It
// returns the message in its final status.
func (s *Service) DeliverLive(ctx context.Context, msg *domain.Message) *domain.Message {
	s.emit(ctx, protocol.UserRoom(msg.SenderID), protocol.MessageSent(msg))
	s.emit(ctx, protocol.UserRoom(msg.RecipientID), protocol.NewMessage(msg))

	active, err := s.presence.RoomActive(ctx, protocol.UserRoom(msg.RecipientID))
	if err != nil {
		s.log.Warn("presence lookup failed", zap.String("recipient_id", msg.RecipientID), zap.Error(err))
		return msg
	}
	if !active {
		return msg
	}

	n, err := s.messages.UpdateStatus(ctx, repository.StatusFilter{
		IDs:      []string{msg.ID},
		Statuses: []domain.Status{domain.StatusSent},
	}, domain.StatusDelivered)
	if err != nil {
		s.log.Warn("promote to delivered failed", zap.String("message_id", msg.ID), zap.Error(err))
		return msg
	}
	if n == 0 {
		return msg
	}
	s.metrics.StatusChanged(string(domain.StatusDelivered), n)

	delivered := *msg
	delivered.Status = domain.StatusDelivered
	s.emit(ctx, protocol.UserRoom(delivered.SenderID), protocol.MessageSent(&delivered))
	s.emit(ctx, protocol.UserRoom(delivered.RecipientID), protocol.NewMessage(&delivered))
	s.publish(ctx, events.New(events.MessageDelivered, delivered.SenderID, []string{delivered.ID}))
	return &delivered
}

// AnnounceFallback tells live connections about a message sent through the
// REST path. No delivery promotion happens here.
func (s *Service) AnnounceFallback(ctx context.Context, msg *domain.Message) {
	s.emit(ctx, protocol.UserRoom(msg.RecipientID), protocol.NewMessage(msg))
	s.emit(ctx, protocol.UserRoom(msg.SenderID), protocol.MessageSent(msg))
}

// History returns the conversation between userID and counterpartID in
// creation order. Messages the counterpart sent that are still pending are
// promoted to delivered first.
func (s *Service) History(ctx context.Context, userID, counterpartID string) ([]*domain.Message, error) {
	if counterpartID == "" {
		return nil, domain.Invalid("recipient ID is required")
	}
	ok, err := s.users.Exists(ctx, counterpartID)
	if err != nil {
		return nil, fmt.Errorf("lookup recipient: %w", err)
	}
	if !ok {
		return nil, domain.ErrRecipientNotFound
	}
	if _, err := s.promote(ctx, repository.StatusFilter{
		SenderID:    counterpartID,
		RecipientID: userID,
		Statuses:    []domain.Status{domain.StatusSending, domain.StatusSent},
	}); err != nil {
		s.log.Warn("history promotion failed", zap.String("user_id", userID), zap.Error(err))
	}
	msgs, err := s.messages.ListConversation(ctx, userID, counterpartID)
	if err != nil {
		return nil, fmt.Errorf("list conversation: %w", err)
	}
	return msgs, nil
}

// PromotePending promotes every pending message addressed to userID. It runs
// when the user opens a socket connection.
func (s *Service) PromotePending(ctx context.Context, userID string) (int, error) {
	promoted, err := s.promote(ctx, repository.StatusFilter{
		RecipientID: userID,
		Statuses:    []domain.Status{domain.StatusSending, domain.StatusSent},
	})
	return len(promoted), err
}

func (s *Service) promote(ctx context.Context, f repository.StatusFilter) ([]*domain.Message, error) {
	pending, err := s.messages.Find(ctx, f)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(pending))
	for _, m := range pending {
		ids = append(ids, m.ID)
	}
	n, err := s.messages.UpdateStatus(ctx, repository.StatusFilter{IDs: ids, Statuses: f.Statuses}, domain.StatusDelivered)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	s.metrics.StatusChanged(string(domain.StatusDelivered), n)

	// re-read so senders see the current status even if a read raced us
	current, err := s.messages.Find(ctx, repository.StatusFilter{IDs: ids})
	if err != nil {
		return nil, err
	}
	for _, m := range current {
		s.emit(ctx, protocol.UserRoom(m.SenderID), protocol.MessageSent(m))
	}
	s.publish(ctx, events.New(events.MessageDelivered, f.RecipientID, ids))
	return current, nil
}

// MarkRead marks every unread message from senderID to readerID as read and
// tells the sender how many changed.
func (s *Service) MarkRead(ctx context.Context, readerID, senderID string) (int64, error) {
	if senderID == "" {
		return 0, domain.Invalid("sender ID is required")
	}
	n, err := s.messages.UpdateStatus(ctx, repository.StatusFilter{
		SenderID:    senderID,
		RecipientID: readerID,
	}, domain.StatusRead)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	s.metrics.StatusChanged(string(domain.StatusRead), n)
	s.emit(ctx, protocol.UserRoom(senderID), protocol.MessagesRead{RecipientID: readerID, Count: n})
	if n > 0 {
		s.publish(ctx, events.New(events.MessagesRead, senderID, map[string]any{
			"reader": readerID, "sender": senderID, "count": n,
		}))
	}
	return n, nil
}

// Typing relays a typing indicator to the recipient's connections only.
func (s *Service) Typing(ctx context.Context, fromID, toID string, isTyping bool) error {
	if toID == "" {
		return domain.Invalid("recipient ID is required")
	}
	if toID == fromID {
		return nil
	}
	s.emit(ctx, protocol.UserRoom(toID), protocol.UserTyping{UserID: fromID, IsTyping: isTyping})
	return nil
}

func (s *Service) emit(ctx context.Context, room string, ev protocol.Event) {
	if err := s.emitter.EmitToRoom(ctx, room, ev); err != nil {
		s.log.Warn("emit failed", zap.String("room", room), zap.String("event", ev.EventName()), zap.Error(err))
	}
}

func (s *Service) publish(ctx context.Context, ev events.Event) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Warn("publish event failed", zap.String("type", ev.Type), zap.Error(err))
	}
}
