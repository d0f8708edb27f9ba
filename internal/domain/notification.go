package domain

import "time"

type NotificationKind string

const (
	KindOfferReceived   NotificationKind = "offer_received"
	KindOfferAccepted   NotificationKind = "offer_accepted"
	KindOfferRejected   NotificationKind = "offer_rejected"
	KindJobAssigned     NotificationKind = "job_assigned"
	KindJobCompleted    NotificationKind = "job_completed"
	KindJobPickedUp     NotificationKind = "job_picked_up"
	KindPaymentReceived NotificationKind = "payment_received"
	KindPaymentSent     NotificationKind = "payment_sent"
	KindWorkDone        NotificationKind = "work_done"
	KindProfileVerified NotificationKind = "profile_verified"
	KindChatMessage     NotificationKind = "chat_message"
	KindSystem          NotificationKind = "system"
)

var knownKinds = map[NotificationKind]struct{}{
	KindOfferReceived: {}, KindOfferAccepted: {}, KindOfferRejected: {},
	KindJobAssigned: {}, KindJobCompleted: {}, KindJobPickedUp: {},
	KindPaymentReceived: {}, KindPaymentSent: {}, KindWorkDone: {},
	KindProfileVerified: {}, KindChatMessage: {}, KindSystem: {},
}

func (k NotificationKind) Valid() bool {
	_, ok := knownKinds[k]
	return ok
}

func ParseKind(v string) (NotificationKind, error) {
	k := NotificationKind(v)
	if !k.Valid() {
		return "", Invalid("unknown notification type %q", v)
	}
	return k, nil
}

// Notification is a persisted, user-facing event.
type Notification struct {
	ID        string           `bson:"_id" json:"_id"`
	UserID    string           `bson:"user_id" json:"user"`
	Kind      NotificationKind `bson:"type" json:"type"`
	Title     string           `bson:"title" json:"title"`
	Body      string           `bson:"message" json:"message"`
	Data      map[string]any   `bson:"data,omitempty" json:"data,omitempty"`
	Read      bool             `bson:"read" json:"read"`
	ReadAt    *time.Time       `bson:"read_at,omitempty" json:"readAt,omitempty"`
	CreatedAt time.Time        `bson:"created_at" json:"createdAt"`
}

// User is the slice of the user record this service needs.
type User struct {
	ID       string `bson:"_id" json:"_id"`
	FullName string `bson:"full_name,omitempty" json:"fullName,omitempty"`
	Phone    string `bson:"phone,omitempty" json:"phone,omitempty"`
}
