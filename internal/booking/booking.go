package booking

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound         = errors.New("booking not found")
	ErrAlreadyCancelled = errors.New("booking already cancelled")
	ErrDuplicateRef     = errors.New("duplicate booking reference")
	ErrInvalidSnapshot  = errors.New("invalid snapshot")
)

// ValidationError is returned before any mutation when the booking request is
// incomplete or inconsistent with the catalogue.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Status represents the booking lifecycle. Cancelled is terminal.
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

type Method string

const (
	MethodCard          Method = "card"
	MethodPurchaseOrder Method = "purchase_order"
)

type PaymentStatus string

const (
	PaymentCompleted     PaymentStatus = "completed"
	PaymentRefunded      PaymentStatus = "refunded"
	PaymentPartialRefund PaymentStatus = "partial_refund"
)

type Attendee struct {
	FirstName    string `json:"first_name" validate:"required"`
	LastName     string `json:"last_name" validate:"required"`
	Email        string `json:"email" validate:"required,email"`
	Phone        string `json:"phone,omitempty"`
	Organisation string `json:"organisation,omitempty"`
	JobTitle     string `json:"job_title,omitempty"`
}

func (a Attendee) FullName() string {
	return a.FirstName + " " + a.LastName
}

type Refund struct {
	Amount     int64     `json:"amount"`
	Reason     string    `json:"reason"`
	RefundedAt time.Time `json:"refunded_at"`
	RefundedBy string    `json:"refunded_by"`
}

type PurchaseOrder struct {
	Number    string    `json:"number"`
	AccountID uuid.UUID `json:"account_id"`
}

type Payment struct {
	Amount        int64          `json:"amount"` // Snapshot of the price at creation, in pence
	Currency      string         `json:"currency"`
	Method        Method         `json:"method"`
	Status        PaymentStatus  `json:"status"`
	Refund        *Refund        `json:"refund,omitempty"`
	PurchaseOrder *PurchaseOrder `json:"purchase_order,omitempty"`
}

type Meeting struct {
	ID       string `json:"id"`
	JoinURL  string `json:"join_url"`
	Password string `json:"password"`
	DialIn   string `json:"dial_in"`
}

// Notifications records which lifecycle messages went out. Flags are only
// ever set, never cleared.
type Notifications struct {
	ConfirmationSent        bool `json:"confirmation_sent"`
	JoiningInstructionsSent bool `json:"joining_instructions_sent"`
	Reminder24hSent         bool `json:"reminder_24h_sent"`
	Reminder1hSent          bool `json:"reminder_1h_sent"`
	ELearningAccessSent     bool `json:"elearning_access_sent"`
}

type Booking struct {
	ID              uuid.UUID  `json:"id"`
	Ref             string     `json:"booking_ref"`
	CourseID        string     `json:"course_id"`
	CourseTitle     string     `json:"course_title"`
	SessionID       *string    `json:"session_id,omitempty"` // Nil for e-learning
	SessionStartsAt *time.Time `json:"session_starts_at,omitempty"`
	Attendee        Attendee   `json:"attendee"`
	Status          Status     `json:"status"`
	Payment         Payment    `json:"payment"`
	Meeting         *Meeting   `json:"meeting,omitempty"`

	Notifications Notifications `json:"notifications"`

	CancellationReason string     `json:"cancellation_reason,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CreatedBy          string     `json:"created_by"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Flag identifies one of the notification flags on a booking.
type Flag string

const (
	FlagConfirmation        Flag = "confirmation_sent"
	FlagJoiningInstructions Flag = "joining_instructions_sent"
	FlagReminder24h         Flag = "reminder_24h_sent"
	FlagReminder1h          Flag = "reminder_1h_sent"
	FlagELearningAccess     Flag = "elearning_access_sent"
)

// Set marks the flag on n and reports whether it changed.
func (n *Notifications) Set(f Flag) (bool, error) {
	var target *bool

	switch f {
	case FlagConfirmation:
		target = &n.ConfirmationSent
	case FlagJoiningInstructions:
		target = &n.JoiningInstructionsSent
	case FlagReminder24h:
		target = &n.Reminder24hSent
	case FlagReminder1h:
		target = &n.Reminder1hSent
	case FlagELearningAccess:
		target = &n.ELearningAccessSent
	default:
		return false, fmt.Errorf("unknown notification flag %q", f)
	}

	if *target {
		return false, nil
	}

	*target = true

	return true, nil
}
