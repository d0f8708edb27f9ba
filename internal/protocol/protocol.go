// Package protocol defines the real-time wire format shared by the server and
// the Go client: one typed payload per event name inside a
// {"type","payload"} envelope.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fathima-sithara/realtime-service/internal/domain"
)

// Client to server events.
const (
	TypeSendMessage = "send_message"
	TypeMarkRead    = "mark_read"
	TypeTyping      = "typing"
)

// Server to client events.
const (
	TypeMessageSent     = "message_sent"
	TypeNewMessage      = "new_message"
	TypeMessagesRead    = "messages_read"
	TypeMarkReadSuccess = "mark_read_success"
	TypeUserTyping      = "user_typing"
	TypeNewNotification = "new_notification"
	TypeError           = "error"
)

var ErrInvalidEvent = errors.New("invalid event")

// Envelope is the frame exchanged over the socket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Event is an outbound payload. Validate runs before every emission.
type Event interface {
	EventName() string
	Validate() error
}

// Encode validates ev and wraps it in an envelope.
func Encode(ev Event) ([]byte, error) {
	if err := ev.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", ev.EventName(), err)
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: ev.EventName(), Payload: payload})
}

// Decode parses a raw frame into its envelope.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrInvalidEvent)
	}
	return &env, nil
}

// Bind unmarshals the envelope payload into v.
func (e *Envelope) Bind(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%w: missing payload", ErrInvalidEvent)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return nil
}

// MessageEvent carries a full message record as message_sent or new_message.
type MessageEvent struct {
	Name string `json:"-"`
	*domain.Message
}

func MessageSent(m *domain.Message) MessageEvent {
	return MessageEvent{Name: TypeMessageSent, Message: m}
}

func NewMessage(m *domain.Message) MessageEvent {
	return MessageEvent{Name: TypeNewMessage, Message: m}
}

func (e MessageEvent) EventName() string { return e.Name }

func (e MessageEvent) Validate() error {
	if e.Name != TypeMessageSent && e.Name != TypeNewMessage {
		return fmt.Errorf("%w: unexpected name %q", ErrInvalidEvent, e.Name)
	}
	if e.Message == nil || e.ID == "" || e.SenderID == "" || e.RecipientID == "" {
		return fmt.Errorf("%w: incomplete message", ErrInvalidEvent)
	}
	if !e.Status.Valid() {
		return fmt.Errorf("%w: status %q", ErrInvalidEvent, e.Status)
	}
	return nil
}

type MessagesRead struct {
	RecipientID string `json:"recipientId"`
	Count       int64  `json:"count"`
}

func (MessagesRead) EventName() string { return TypeMessagesRead }

func (e MessagesRead) Validate() error {
	if e.RecipientID == "" || e.Count < 0 {
		return ErrInvalidEvent
	}
	return nil
}

type MarkReadSuccess struct {
	Count int64 `json:"count"`
}

func (MarkReadSuccess) EventName() string { return TypeMarkReadSuccess }

func (e MarkReadSuccess) Validate() error {
	if e.Count < 0 {
		return ErrInvalidEvent
	}
	return nil
}

type UserTyping struct {
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

func (UserTyping) EventName() string { return TypeUserTyping }

func (e UserTyping) Validate() error {
	if e.UserID == "" {
		return ErrInvalidEvent
	}
	return nil
}

type NewNotification struct {
	Notification *domain.Notification `json:"notification"`
}

func (NewNotification) EventName() string { return TypeNewNotification }

func (e NewNotification) Validate() error {
	if e.Notification == nil || e.Notification.ID == "" || e.Notification.UserID == "" {
		return ErrInvalidEvent
	}
	return nil
}

type Error struct {
	Message string `json:"message"`
}

func (Error) EventName() string { return TypeError }

func (e Error) Validate() error {
	if e.Message == "" {
		return ErrInvalidEvent
	}
	return nil
}

// Inbound payloads.

type SendMessage struct {
	RecipientID     string `json:"recipientId"`
	Message         string `json:"message"`
	ClientMessageID string `json:"clientMessageId,omitempty"`
}

type MarkRead struct {
	SenderID string `json:"senderId"`
}

func (p MarkRead) Validate() error {
	if p.SenderID == "" {
		return domain.Invalid("sender ID is required")
	}
	return nil
}

type Typing struct {
	RecipientID string `json:"recipientId"`
	IsTyping    bool   `json:"isTyping"`
}

func (p Typing) Validate() error {
	if p.RecipientID == "" {
		return domain.Invalid("recipient ID is required")
	}
	return nil
}
