package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// DefaultMaxBodyLength caps a message body after trimming.
const DefaultMaxBodyLength = 1000

// Status is the delivery state of a message. It only moves forward.
type Status string

const (
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
)

var statusRank = map[Status]int{
	StatusSending:   0,
	StatusSent:      1,
	StatusDelivered: 2,
	StatusRead:      3,
}

var orderedStatuses = []Status{StatusSending, StatusSent, StatusDelivered, StatusRead}

func (s Status) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// Rank returns the position of s in the lifecycle, -1 if unknown.
func (s Status) Rank() int {
	r, ok := statusRank[s]
	if !ok {
		return -1
	}
	return r
}

// Before reports whether s comes strictly earlier in the lifecycle than o.
func (s Status) Before(o Status) bool {
	return s.Valid() && o.Valid() && s.Rank() < o.Rank()
}

func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.Valid() {
		return "", Invalid("unknown status %q", v)
	}
	return s, nil
}

// StatusesBefore lists every status that may legally transition to target.
func StatusesBefore(target Status) []Status {
	out := make([]Status, 0, len(orderedStatuses))
	for _, s := range orderedStatuses {
		if s.Before(target) {
			out = append(out, s)
		}
	}
	return out
}

// Message is a chat message exchanged between two users.
type Message struct {
	ID              string     `bson:"_id" json:"_id"`
	SenderID        string     `bson:"sender_id" json:"sender"`
	RecipientID     string     `bson:"recipient_id" json:"recipient"`
	Body            string     `bson:"message" json:"message"`
	Status          Status     `bson:"status" json:"status"`
	ClientMessageID string     `bson:"client_message_id,omitempty" json:"clientMessageId,omitempty"`
	CreatedAt       time.Time  `bson:"created_at" json:"createdAt"`
	ReadAt          *time.Time `bson:"read_at,omitempty" json:"readAt"`
}

// Counterpart returns the other participant from userID's point of view.
func (m *Message) Counterpart(userID string) string {
	if m.SenderID == userID {
		return m.RecipientID
	}
	return m.SenderID
}

// ValidateBody trims body and enforces a non-empty, bounded length.
func ValidateBody(body string, max int) (string, error) {
	if max <= 0 {
		max = DefaultMaxBodyLength
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return "", Invalid("message cannot be empty")
	}
	if utf8.RuneCountInString(body) > max {
		return "", Invalid("message exceeds %d characters", max)
	}
	return body, nil
}
