package notification

import (
	"context"
	"errors"
	"time"
)

var ErrInvalidKind = errors.New("invalid notification kind")

// Kind identifies the lifecycle event a message belongs to. It doubles as the
// routing key suffix when messages go through the broker.
type Kind string

const (
	KindConfirmation        Kind = "confirmation"
	KindJoiningInstructions Kind = "joining_instructions"
	KindReminder24h         Kind = "reminder_24h"
	KindReminder1h          Kind = "reminder_1h"
	KindCancellation        Kind = "cancellation"
	KindELearningAccess     Kind = "elearning_access"
	KindLoginCode           Kind = "login_code"
)

// Result reports the outcome of a single send attempt.
type Result struct {
	Success   bool
	MessageID string
}

// Message is a rendered notification ready for delivery.
type Message struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	To         string    `json:"to"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	BookingRef string    `json:"booking_ref,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Details carries the booking facts that messages are rendered from.
type Details struct {
	BookingRef   string
	AttendeeName string
	Email        string
	CourseTitle  string
	StartsAt     *time.Time
	Venue        string
	TrainerName  string

	JoinURL         string
	MeetingPassword string
	DialIn          string

	Amount       int64 // Amounts in pence
	Currency     string
	RefundAmount int64
	Reason       string
}
