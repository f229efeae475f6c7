package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/medtrain/internal/account"
	"github.com/MrJamesThe3rd/medtrain/internal/catalogue"
	"github.com/MrJamesThe3rd/medtrain/internal/meeting"
	"github.com/MrJamesThe3rd/medtrain/internal/notification"
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=booking
type Repository interface {
	CreateBooking(ctx context.Context, b *Booking) error
	GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error)
	GetBookingByRef(ctx context.Context, ref string) (*Booking, error)
	ListBookings(ctx context.Context, filter ListFilter) ([]*Booking, error)
	ListUpcoming(ctx context.Context, from time.Time, to time.Time) ([]*Booking, error)
	SetFlag(ctx context.Context, id uuid.UUID, flag Flag) (bool, error)

	BeginUpdate(ctx context.Context, id uuid.UUID) (UpdateTx, error)
}

// UpdateTx holds the booking row lock until Commit or Rollback, so two
// cancellations of the same booking run one after the other.
type UpdateTx interface {
	Booking() *Booking
	SaveBooking(ctx context.Context, b *Booking) error
	// LockAccount locks a credit account inside this transaction. The
	// returned ledger commits and rolls back with the booking.
	LockAccount(ctx context.Context, accountID uuid.UUID) (account.LedgerTx, error)
	Commit() error
	Rollback() error
}

type Catalogue interface {
	Course(ctx context.Context, id string) (*catalogue.Course, error)
	Session(ctx context.Context, id string) (*catalogue.Session, error)
}

type CreditLedger interface {
	Debit(ctx context.Context, params account.LedgerParams) (*account.Account, *account.Transaction, error)
	Credit(ctx context.Context, params account.LedgerParams) (*account.Account, *account.Transaction, error)
	RefundWithin(ctx context.Context, ltx account.LedgerTx, params account.LedgerParams) (*account.Account, *account.Transaction, error)
}

type MeetingProvisioner interface {
	CreateMeeting(ctx context.Context, req meeting.Request) (*meeting.Meeting, error)
	DeleteMeeting(ctx context.Context, id string) error
}

type Notifier interface {
	SendConfirmation(ctx context.Context, det notification.Details) (notification.Result, error)
	SendJoiningInstructions(ctx context.Context, det notification.Details) (notification.Result, error)
	SendReminder(ctx context.Context, det notification.Details, kind notification.Kind) (notification.Result, error)
	SendCancellation(ctx context.Context, det notification.Details) (notification.Result, error)
	SendELearningAccess(ctx context.Context, det notification.Details) (notification.Result, error)
}

type Config struct {
	RefPrefix string
	Currency  string
}

type Service struct {
	repo      Repository
	catalogue Catalogue
	ledger    CreditLedger
	meetings  MeetingProvisioner
	notifier  Notifier
	validate  *validator.Validate
	cfg       Config
	now       func() time.Time
}

func NewService(
	repo Repository,
	cat Catalogue,
	ledger CreditLedger,
	meetings MeetingProvisioner,
	notifier Notifier,
	cfg Config,
) *Service {
	if cfg.RefPrefix == "" {
		cfg.RefPrefix = "MIAD"
	}

	if cfg.Currency == "" {
		cfg.Currency = "GBP"
	}

	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}

		return name
	})

	return &Service{
		repo:      repo,
		catalogue: cat,
		ledger:    ledger,
		meetings:  meetings,
		notifier:  notifier,
		validate:  v,
		cfg:       cfg,
		now:       time.Now,
	}
}

type ListFilter struct {
	Status   *Status
	Email    *string
	CourseID *string
	From     *time.Time // Inclusive, on creation time
	To       *time.Time // Exclusive
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Booking, error) {
	return s.repo.GetBooking(ctx, id)
}

func (s *Service) GetByRef(ctx context.Context, ref string) (*Booking, error) {
	return s.repo.GetBookingByRef(ctx, strings.ToUpper(strings.TrimSpace(ref)))
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Booking, error) {
	return s.repo.ListBookings(ctx, filter)
}

type CreateParams struct {
	CourseID      string
	SessionID     *string
	Attendee      Attendee
	Method        Method
	PurchaseOrder *PurchaseOrder
	CreatedBy     string
}

// Create books an attendee onto a course. Steps run in order: validation,
// price snapshot, purchase-order debit, meeting allocation, persistence and
// notifications. Only validation, the debit and persistence can fail the
// booking; meeting and notification failures are logged.
func (s *Service) Create(ctx context.Context, params CreateParams) (*Booking, error) {
	course, sess, err := s.validateCreate(ctx, &params)
	if err != nil {
		return nil, err
	}

	price := course.Price
	if sess != nil && sess.Price != nil {
		price = *sess.Price
	}

	now := s.now()
	ref := NewRef(s.cfg.RefPrefix, now)

	var debited bool

	if params.Method == MethodPurchaseOrder {
		_, _, err := s.ledger.Debit(ctx, account.LedgerParams{
			AccountID:   params.PurchaseOrder.AccountID,
			Amount:      price,
			BookingRef:  ref,
			Description: fmt.Sprintf("Booking %s: %s (PO %s)", ref, course.Title, params.PurchaseOrder.Number),
			Actor:       params.CreatedBy,
		})
		if err != nil {
			return nil, fmt.Errorf("debiting account: %w", err)
		}

		debited = true
	}

	currency := course.Currency
	if currency == "" {
		currency = s.cfg.Currency
	}

	b := &Booking{
		ID:          uuid.New(),
		Ref:         ref,
		CourseID:    course.ID,
		CourseTitle: course.Title,
		Attendee:    params.Attendee,
		Status:      StatusConfirmed,
		Payment: Payment{
			Amount:        price,
			Currency:      currency,
			Method:        params.Method,
			Status:        PaymentCompleted,
			PurchaseOrder: params.PurchaseOrder,
		},
		CreatedBy: params.CreatedBy,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if sess != nil {
		b.SessionID = new(sess.ID)
		b.SessionStartsAt = new(sess.StartsAt)
		b.Meeting = s.provisionMeeting(ctx, course, sess)
	}

	if err := s.repo.CreateBooking(ctx, b); err != nil {
		s.undoCreate(ctx, b, debited)
		return nil, fmt.Errorf("saving booking: %w", err)
	}

	det := details(b, sess)
	s.notify(ctx, b, FlagConfirmation, func() (notification.Result, error) {
		return s.notifier.SendConfirmation(ctx, det)
	})

	if b.Meeting != nil {
		s.notify(ctx, b, FlagJoiningInstructions, func() (notification.Result, error) {
			return s.notifier.SendJoiningInstructions(ctx, det)
		})
	}

	if course.Delivery == catalogue.DeliveryELearning {
		s.notify(ctx, b, FlagELearningAccess, func() (notification.Result, error) {
			return s.notifier.SendELearningAccess(ctx, det)
		})
	}

	return b, nil
}

func (s *Service) validateCreate(ctx context.Context, params *CreateParams) (*catalogue.Course, *catalogue.Session, error) {
	a := &params.Attendee
	a.FirstName = strings.TrimSpace(a.FirstName)
	a.LastName = strings.TrimSpace(a.LastName)
	a.Email = strings.ToLower(strings.TrimSpace(a.Email))

	if err := s.validate.Struct(a); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return nil, nil, attendeeError(fieldErrs[0])
		}

		return nil, nil, fmt.Errorf("validating attendee: %w", err)
	}

	if params.CourseID == "" {
		return nil, nil, &ValidationError{Field: "course", Message: "is required"}
	}

	course, err := s.catalogue.Course(ctx, params.CourseID)
	if err != nil {
		if errors.Is(err, catalogue.ErrCourseNotFound) {
			return nil, nil, &ValidationError{Field: "course", Message: "not found"}
		}

		return nil, nil, fmt.Errorf("loading course: %w", err)
	}

	if !course.Active {
		return nil, nil, &ValidationError{Field: "course", Message: "is not available for booking"}
	}

	var sess *catalogue.Session

	switch course.Delivery {
	case catalogue.DeliveryLive:
		if params.SessionID == nil || *params.SessionID == "" {
			return nil, nil, &ValidationError{Field: "session", Message: "is required for live courses"}
		}

		sess, err = s.catalogue.Session(ctx, *params.SessionID)
		if err != nil {
			if errors.Is(err, catalogue.ErrSessionNotFound) {
				return nil, nil, &ValidationError{Field: "session", Message: "not found"}
			}

			return nil, nil, fmt.Errorf("loading session: %w", err)
		}

		if sess.CourseID != course.ID {
			return nil, nil, &ValidationError{Field: "session", Message: "does not belong to the course"}
		}
	case catalogue.DeliveryELearning:
		if params.SessionID != nil && *params.SessionID != "" {
			return nil, nil, &ValidationError{Field: "session", Message: "must be empty for e-learning courses"}
		}
	}

	switch params.Method {
	case MethodCard:
		params.PurchaseOrder = nil
	case MethodPurchaseOrder:
		if params.PurchaseOrder == nil || params.PurchaseOrder.AccountID == uuid.Nil {
			return nil, nil, &ValidationError{Field: "purchase_order.account_id", Message: "is required"}
		}

		params.PurchaseOrder.Number = strings.TrimSpace(params.PurchaseOrder.Number)
		if params.PurchaseOrder.Number == "" {
			return nil, nil, &ValidationError{Field: "purchase_order.number", Message: "is required"}
		}
	default:
		return nil, nil, &ValidationError{Field: "payment_method", Message: "must be card or purchase_order"}
	}

	return course, sess, nil
}

func attendeeError(fe validator.FieldError) *ValidationError {
	msg := "is invalid"

	switch fe.Tag() {
	case "required":
		msg = "is required"
	case "email":
		msg = "must be a valid email address"
	}

	return &ValidationError{Field: "attendee." + fe.Field(), Message: msg}
}

func (s *Service) provisionMeeting(ctx context.Context, course *catalogue.Course, sess *catalogue.Session) *Meeting {
	m, err := s.meetings.CreateMeeting(ctx, meeting.Request{
		Topic:     course.Title,
		StartTime: sess.StartsAt,
		Duration:  sess.DurationMinutes,
		HostEmail: sess.TrainerEmail,
	})
	if err != nil {
		slog.Warn("failed to provision meeting", "course", course.ID, "session", sess.ID, "error", err)
		return nil
	}

	return &Meeting{ID: m.ID, JoinURL: m.JoinURL, Password: m.Password, DialIn: m.DialIn}
}

// undoCreate reverses the side effects of a booking that could not be saved.
// It runs detached from ctx so a cancelled request still releases the credit.
func (s *Service) undoCreate(ctx context.Context, b *Booking, debited bool) {
	ctx = context.WithoutCancel(ctx)

	if debited {
		_, _, err := s.ledger.Credit(ctx, account.LedgerParams{
			AccountID:   b.Payment.PurchaseOrder.AccountID,
			Amount:      b.Payment.Amount,
			BookingRef:  b.Ref,
			Description: fmt.Sprintf("Reversal of debit for unsaved booking %s", b.Ref),
			Actor:       b.CreatedBy,
		})
		if err != nil {
			slog.Error("failed to reverse purchase order debit", "booking_ref", b.Ref, "error", err)
		}
	}

	if b.Meeting != nil {
		if err := s.meetings.DeleteMeeting(ctx, b.Meeting.ID); err != nil {
			slog.Warn("failed to delete meeting", "booking_ref", b.Ref, "meeting", b.Meeting.ID, "error", err)
		}
	}
}

type CancelParams struct {
	BookingID    uuid.UUID
	Reason       string
	IssueRefund  bool
	RefundAmount *int64 // Nil refunds the full payment
	Actor        string
}

// EffectiveRefund returns the requested refund clamped to [0, paid], or the
// full payment when nothing was requested.
func EffectiveRefund(paid int64, requested *int64) int64 {
	if requested == nil {
		return paid
	}

	return min(max(*requested, 0), paid)
}

// CancelWithRefund cancels a confirmed booking under its row lock. A
// purchase-order refund is written in the same transaction as the
// cancellation, so either both land or neither does.
func (s *Service) CancelWithRefund(ctx context.Context, params CancelParams) (*Booking, error) {
	utx, err := s.repo.BeginUpdate(ctx, params.BookingID)
	if err != nil {
		return nil, err
	}
	defer utx.Rollback()

	b := *utx.Booking()
	if b.Status == StatusCancelled {
		return nil, ErrAlreadyCancelled
	}

	now := s.now()
	amount := EffectiveRefund(b.Payment.Amount, params.RefundAmount)
	refunded := params.IssueRefund && amount > 0

	if refunded {
		switch b.Payment.Method {
		case MethodPurchaseOrder:
			if b.Payment.PurchaseOrder == nil {
				return nil, fmt.Errorf("booking %s has no purchase order account", b.Ref)
			}

			ltx, err := utx.LockAccount(ctx, b.Payment.PurchaseOrder.AccountID)
			if err != nil {
				return nil, fmt.Errorf("locking account: %w", err)
			}

			_, _, err = s.ledger.RefundWithin(ctx, ltx, account.LedgerParams{
				AccountID:   b.Payment.PurchaseOrder.AccountID,
				Amount:      amount,
				BookingRef:  b.Ref,
				Description: fmt.Sprintf("Refund for cancelled booking %s", b.Ref),
				Actor:       params.Actor,
			})
			if err != nil {
				return nil, fmt.Errorf("crediting account: %w", err)
			}
		case MethodCard:
			slog.Info("recorded card refund", "booking_ref", b.Ref, "amount", amount)
		}

		b.Payment.Refund = &Refund{
			Amount:     amount,
			Reason:     params.Reason,
			RefundedAt: now,
			RefundedBy: params.Actor,
		}

		b.Payment.Status = PaymentPartialRefund
		if amount >= b.Payment.Amount {
			b.Payment.Status = PaymentRefunded
		}
	}

	b.Status = StatusCancelled
	b.CancellationReason = params.Reason
	b.CancelledAt = new(now)
	b.UpdatedAt = now

	if err := utx.SaveBooking(ctx, &b); err != nil {
		return nil, fmt.Errorf("saving booking: %w", err)
	}

	if err := utx.Commit(); err != nil {
		return nil, fmt.Errorf("committing booking: %w", err)
	}

	// The meeting is only released once the cancellation is durable.
	if b.Meeting != nil {
		if err := s.meetings.DeleteMeeting(ctx, b.Meeting.ID); err != nil {
			slog.Warn("failed to delete meeting", "booking_ref", b.Ref, "meeting", b.Meeting.ID, "error", err)
		}
	}

	det := details(&b, nil)
	if b.Payment.Refund != nil {
		det.RefundAmount = b.Payment.Refund.Amount
	}

	s.notify(ctx, &b, "", func() (notification.Result, error) {
		return s.notifier.SendCancellation(ctx, det)
	})

	return &b, nil
}

// MarkNotificationSent sets a notification flag. It reports false when the
// flag was already set.
func (s *Service) MarkNotificationSent(ctx context.Context, id uuid.UUID, flag Flag) (bool, error) {
	changed, err := s.repo.SetFlag(ctx, id, flag)
	if err != nil {
		return false, fmt.Errorf("setting %s: %w", flag, err)
	}

	return changed, nil
}

// notify runs a best-effort send and records the flag when it succeeded. An
// empty flag sends without recording anything.
func (s *Service) notify(ctx context.Context, b *Booking, flag Flag, send func() (notification.Result, error)) bool {
	res, err := send()
	if err != nil || !res.Success {
		slog.Warn("failed to send notification", "booking_ref", b.Ref, "flag", flag, "error", err)
		return false
	}

	if flag == "" {
		return true
	}

	if _, err := s.MarkNotificationSent(ctx, b.ID, flag); err != nil {
		slog.Error("failed to record notification", "booking_ref", b.Ref, "flag", flag, "error", err)
		return true
	}

	_, _ = b.Notifications.Set(flag)

	return true
}

// Reminder is a reminder that is due for a booking.
type Reminder struct {
	Booking *Booking
	Kind    notification.Kind
	Flag    Flag
}

// DueReminders returns the reminders owed at now. A session starting within
// the hour gets only the 1 hour reminder; one starting within a day gets the
// 24 hour reminder.
func (s *Service) DueReminders(ctx context.Context, now time.Time) ([]Reminder, error) {
	bookings, err := s.repo.ListUpcoming(ctx, now, now.Add(24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("listing upcoming bookings: %w", err)
	}

	var due []Reminder

	for _, b := range bookings {
		if b.Status != StatusConfirmed || b.SessionStartsAt == nil {
			continue
		}

		until := b.SessionStartsAt.Sub(now)

		switch {
		case until <= 0:
			continue
		case until <= time.Hour:
			if !b.Notifications.Reminder1hSent {
				due = append(due, Reminder{Booking: b, Kind: notification.KindReminder1h, Flag: FlagReminder1h})
			}
		case until <= 24*time.Hour:
			if !b.Notifications.Reminder24hSent {
				due = append(due, Reminder{Booking: b, Kind: notification.KindReminder24h, Flag: FlagReminder24h})
			}
		}
	}

	return due, nil
}

// SendReminder dispatches a due reminder and records its flag.
func (s *Service) SendReminder(ctx context.Context, r Reminder) bool {
	det := details(r.Booking, nil)

	return s.notify(ctx, r.Booking, r.Flag, func() (notification.Result, error) {
		return s.notifier.SendReminder(ctx, det, r.Kind)
	})
}

func details(b *Booking, sess *catalogue.Session) notification.Details {
	det := notification.Details{
		BookingRef:   b.Ref,
		AttendeeName: b.Attendee.FullName(),
		Email:        b.Attendee.Email,
		CourseTitle:  b.CourseTitle,
		StartsAt:     b.SessionStartsAt,
		Amount:       b.Payment.Amount,
		Currency:     b.Payment.Currency,
		Reason:       b.CancellationReason,
	}

	if sess != nil {
		det.Venue = sess.Venue
		det.TrainerName = sess.TrainerName
	}

	if b.Meeting != nil {
		det.JoinURL = b.Meeting.JoinURL
		det.MeetingPassword = b.Meeting.Password
		det.DialIn = b.Meeting.DialIn
	}

	return det
}
