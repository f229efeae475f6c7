package notification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Dispatcher renders lifecycle messages and hands them to a Sender. Each send
// is attempted once; redelivery is the worker's job.
type Dispatcher struct {
	sender Sender
	now    func() time.Time
}

func NewDispatcher(sender Sender) *Dispatcher {
	return &Dispatcher{sender: sender, now: time.Now}
}

func (d *Dispatcher) SendConfirmation(ctx context.Context, det Details) (Result, error) {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Dear %s,\n\n", det.AttendeeName)
	fmt.Fprintf(&sb, "Your booking %s for %s is confirmed.\n", det.BookingRef, det.CourseTitle)

	if det.StartsAt != nil {
		fmt.Fprintf(&sb, "Date: %s\n", formatWhen(*det.StartsAt))
	}

	if det.Venue != "" {
		fmt.Fprintf(&sb, "Venue: %s\n", det.Venue)
	}

	fmt.Fprintf(&sb, "Amount paid: %s\n", FormatAmount(det.Amount, det.Currency))

	return d.send(ctx, KindConfirmation, det, "Booking confirmed: "+det.CourseTitle, sb.String())
}

func (d *Dispatcher) SendJoiningInstructions(ctx context.Context, det Details) (Result, error) {
	if det.JoinURL == "" {
		return Result{}, fmt.Errorf("joining instructions for %s: no meeting link", det.BookingRef)
	}

	var sb strings.Builder

	fmt.Fprintf(&sb, "Dear %s,\n\n", det.AttendeeName)
	fmt.Fprintf(&sb, "Here is how to join %s", det.CourseTitle)

	if det.StartsAt != nil {
		fmt.Fprintf(&sb, " on %s", formatWhen(*det.StartsAt))
	}

	fmt.Fprintf(&sb, ".\n\nJoin link: %s\n", det.JoinURL)

	if det.MeetingPassword != "" {
		fmt.Fprintf(&sb, "Passcode: %s\n", det.MeetingPassword)
	}

	if det.DialIn != "" {
		fmt.Fprintf(&sb, "Dial in: %s\n", det.DialIn)
	}

	if det.TrainerName != "" {
		fmt.Fprintf(&sb, "Your trainer: %s\n", det.TrainerName)
	}

	return d.send(ctx, KindJoiningInstructions, det, "Joining instructions: "+det.CourseTitle, sb.String())
}

// SendReminder sends the 24 hour or 1 hour reminder depending on kind.
func (d *Dispatcher) SendReminder(ctx context.Context, det Details, kind Kind) (Result, error) {
	var lead string

	switch kind {
	case KindReminder24h:
		lead = "tomorrow"
	case KindReminder1h:
		lead = "in one hour"
	default:
		return Result{}, fmt.Errorf("%w: %q is not a reminder", ErrInvalidKind, kind)
	}

	var sb strings.Builder

	fmt.Fprintf(&sb, "Dear %s,\n\n", det.AttendeeName)
	fmt.Fprintf(&sb, "%s starts %s", det.CourseTitle, lead)

	if det.StartsAt != nil {
		fmt.Fprintf(&sb, " (%s)", formatWhen(*det.StartsAt))
	}

	sb.WriteString(".\n")

	if det.JoinURL != "" {
		fmt.Fprintf(&sb, "Join link: %s\n", det.JoinURL)
	}

	return d.send(ctx, kind, det, "Reminder: "+det.CourseTitle, sb.String())
}

func (d *Dispatcher) SendCancellation(ctx context.Context, det Details) (Result, error) {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Dear %s,\n\n", det.AttendeeName)
	fmt.Fprintf(&sb, "Your booking %s for %s has been cancelled.\n", det.BookingRef, det.CourseTitle)

	if det.Reason != "" {
		fmt.Fprintf(&sb, "Reason: %s\n", det.Reason)
	}

	if det.RefundAmount > 0 {
		fmt.Fprintf(&sb, "A refund of %s has been issued.\n", FormatAmount(det.RefundAmount, det.Currency))
	}

	return d.send(ctx, KindCancellation, det, "Booking cancelled: "+det.CourseTitle, sb.String())
}

func (d *Dispatcher) SendELearningAccess(ctx context.Context, det Details) (Result, error) {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Dear %s,\n\n", det.AttendeeName)
	fmt.Fprintf(&sb, "You now have access to the e-learning course %s.\n", det.CourseTitle)
	fmt.Fprintf(&sb, "Sign in with %s to start learning. Your booking reference is %s.\n", det.Email, det.BookingRef)

	return d.send(ctx, KindELearningAccess, det, "Your e-learning access: "+det.CourseTitle, sb.String())
}

// SendLoginCode delivers a one-time sign-in code.
func (d *Dispatcher) SendLoginCode(ctx context.Context, email, code string, ttl time.Duration) (Result, error) {
	body := fmt.Sprintf("Your sign-in code is %s. It expires in %d minutes.\n", code, int(ttl.Minutes()))

	return d.send(ctx, KindLoginCode, Details{Email: email}, "Your sign-in code", body)
}

func (d *Dispatcher) send(ctx context.Context, kind Kind, det Details, subject, body string) (Result, error) {
	if det.Email == "" {
		return Result{}, fmt.Errorf("sending %s: no recipient", kind)
	}

	msg := Message{
		ID:         uuid.NewString(),
		Kind:       kind,
		To:         det.Email,
		Subject:    subject,
		Body:       body,
		BookingRef: det.BookingRef,
		CreatedAt:  d.now(),
	}

	if err := d.sender.Send(ctx, msg); err != nil {
		return Result{MessageID: msg.ID}, fmt.Errorf("sending %s: %w", kind, err)
	}

	return Result{Success: true, MessageID: msg.ID}, nil
}

func formatWhen(t time.Time) string {
	return t.UTC().Format("Mon 2 Jan 2006 15:04 MST")
}

// FormatAmount renders minor units, e.g. 9500 GBP as "£95.00".
func FormatAmount(amount int64, currency string) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}

	symbol := currency + " "

	switch currency {
	case "GBP", "":
		symbol = "£"
	case "EUR":
		symbol = "€"
	case "USD":
		symbol = "$"
	}

	return fmt.Sprintf("%s%s%d.%02d", sign, symbol, amount/100, amount%100)
}
