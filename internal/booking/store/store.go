package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MrJamesThe3rd/medtrain/internal/account"
	accountStore "github.com/MrJamesThe3rd/medtrain/internal/account/store"
	"github.com/MrJamesThe3rd/medtrain/internal/booking"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique constraint violations.
const uniqueViolation = "23505"

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

const selectBookingColumns = `
	id, booking_ref, course_id, course_title, session_id, session_starts_at,
	attendee_first_name, attendee_last_name, attendee_email, attendee_phone,
	attendee_organisation, attendee_job_title, status,
	payment_amount, payment_currency, payment_method, payment_status,
	po_number, po_account_id, refund_amount, refund_reason, refunded_at, refunded_by,
	meeting_id, meeting_join_url, meeting_password, meeting_dial_in,
	confirmation_sent, joining_instructions_sent, reminder_24h_sent, reminder_1h_sent,
	elearning_access_sent, cancellation_reason, cancelled_at, created_by, created_at, updated_at
`

func scanBooking(s scanner) (*booking.Booking, error) {
	var (
		b               booking.Booking
		status          string
		method          string
		paymentStatus   string
		sessionID       sql.NullString
		sessionStartsAt sql.NullTime
		poNumber        sql.NullString
		poAccountID     uuid.NullUUID
		refundAmount    sql.NullInt64
		refundReason    sql.NullString
		refundedAt      sql.NullTime
		refundedBy      sql.NullString
		meetingID       sql.NullString
		meetingJoinURL  sql.NullString
		meetingPassword sql.NullString
		meetingDialIn   sql.NullString
		cancelledAt     sql.NullTime
	)

	if err := s.Scan(
		&b.ID, &b.Ref, &b.CourseID, &b.CourseTitle, &sessionID, &sessionStartsAt,
		&b.Attendee.FirstName, &b.Attendee.LastName, &b.Attendee.Email, &b.Attendee.Phone,
		&b.Attendee.Organisation, &b.Attendee.JobTitle, &status,
		&b.Payment.Amount, &b.Payment.Currency, &method, &paymentStatus,
		&poNumber, &poAccountID, &refundAmount, &refundReason, &refundedAt, &refundedBy,
		&meetingID, &meetingJoinURL, &meetingPassword, &meetingDialIn,
		&b.Notifications.ConfirmationSent, &b.Notifications.JoiningInstructionsSent,
		&b.Notifications.Reminder24hSent, &b.Notifications.Reminder1hSent,
		&b.Notifications.ELearningAccessSent, &b.CancellationReason, &cancelledAt,
		&b.CreatedBy, &b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		return nil, err
	}

	b.Status = booking.Status(status)
	b.Payment.Method = booking.Method(method)
	b.Payment.Status = booking.PaymentStatus(paymentStatus)

	if sessionID.Valid {
		b.SessionID = new(sessionID.String)
	}

	if sessionStartsAt.Valid {
		b.SessionStartsAt = new(sessionStartsAt.Time)
	}

	if poAccountID.Valid {
		b.Payment.PurchaseOrder = &booking.PurchaseOrder{
			Number:    poNumber.String,
			AccountID: poAccountID.UUID,
		}
	}

	if refundAmount.Valid {
		b.Payment.Refund = &booking.Refund{
			Amount:     refundAmount.Int64,
			Reason:     refundReason.String,
			RefundedAt: refundedAt.Time,
			RefundedBy: refundedBy.String,
		}
	}

	if meetingID.Valid {
		b.Meeting = &booking.Meeting{
			ID:       meetingID.String,
			JoinURL:  meetingJoinURL.String,
			Password: meetingPassword.String,
			DialIn:   meetingDialIn.String,
		}
	}

	if cancelledAt.Valid {
		b.CancelledAt = new(cancelledAt.Time)
	}

	return &b, nil
}

func (s *Store) CreateBooking(ctx context.Context, b *booking.Booking) error {
	query := `
		INSERT INTO bookings (` + selectBookingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19,
			$20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32, $33, $34, $35, $36, $37)
	`

	args := []any{
		b.ID, b.Ref, b.CourseID, b.CourseTitle, b.SessionID, b.SessionStartsAt,
		b.Attendee.FirstName, b.Attendee.LastName, b.Attendee.Email, b.Attendee.Phone,
		b.Attendee.Organisation, b.Attendee.JobTitle, b.Status,
		b.Payment.Amount, b.Payment.Currency, b.Payment.Method, b.Payment.Status,
	}
	args = append(args, purchaseOrderArgs(b.Payment.PurchaseOrder)...)
	args = append(args, refundArgs(b.Payment.Refund)...)
	args = append(args, meetingArgs(b.Meeting)...)
	args = append(args,
		b.Notifications.ConfirmationSent, b.Notifications.JoiningInstructionsSent,
		b.Notifications.Reminder24hSent, b.Notifications.Reminder1hSent,
		b.Notifications.ELearningAccessSent, b.CancellationReason, b.CancelledAt,
		b.CreatedBy, b.CreatedAt, b.UpdatedAt,
	)

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == "bookings_booking_ref_key" {
			return fmt.Errorf("%w: %s", booking.ErrDuplicateRef, b.Ref)
		}

		return fmt.Errorf("inserting booking: %w", err)
	}

	return nil
}

func purchaseOrderArgs(po *booking.PurchaseOrder) []any {
	if po == nil {
		return []any{nil, nil}
	}

	return []any{po.Number, po.AccountID}
}

func refundArgs(r *booking.Refund) []any {
	if r == nil {
		return []any{nil, nil, nil, nil}
	}

	return []any{r.Amount, r.Reason, r.RefundedAt, r.RefundedBy}
}

func meetingArgs(m *booking.Meeting) []any {
	if m == nil {
		return []any{nil, nil, nil, nil}
	}

	return []any{m.ID, m.JoinURL, m.Password, m.DialIn}
}

func (s *Store) GetBooking(ctx context.Context, id uuid.UUID) (*booking.Booking, error) {
	return s.getBy(ctx, "id", id)
}

func (s *Store) GetBookingByRef(ctx context.Context, ref string) (*booking.Booking, error) {
	return s.getBy(ctx, "booking_ref", ref)
}

func (s *Store) getBy(ctx context.Context, column string, value any) (*booking.Booking, error) {
	query := `SELECT ` + selectBookingColumns + ` FROM bookings WHERE ` + column + ` = $1`

	b, err := scanBooking(s.db.QueryRowContext(ctx, query, value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, booking.ErrNotFound
		}

		return nil, fmt.Errorf("getting booking: %w", err)
	}

	return b, nil
}

func (s *Store) ListBookings(ctx context.Context, filter booking.ListFilter) ([]*booking.Booking, error) {
	query := `SELECT ` + selectBookingColumns + ` FROM bookings WHERE TRUE`

	var args []any

	argIdx := 1

	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIdx)

		args = append(args, *filter.Status)
		argIdx++
	}

	if filter.Email != nil {
		query += fmt.Sprintf(" AND attendee_email = LOWER($%d)", argIdx)

		args = append(args, *filter.Email)
		argIdx++
	}

	if filter.CourseID != nil {
		query += fmt.Sprintf(" AND course_id = $%d", argIdx)

		args = append(args, *filter.CourseID)
		argIdx++
	}

	if filter.From != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)

		args = append(args, *filter.From)
		argIdx++
	}

	if filter.To != nil {
		query += fmt.Sprintf(" AND created_at < $%d", argIdx)

		args = append(args, *filter.To)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	return s.query(ctx, query, args...)
}

func (s *Store) ListUpcoming(ctx context.Context, from, to time.Time) ([]*booking.Booking, error) {
	query := `SELECT ` + selectBookingColumns + `
		FROM bookings
		WHERE status = 'confirmed' AND session_starts_at > $1 AND session_starts_at <= $2
		ORDER BY session_starts_at ASC`

	return s.query(ctx, query, from, to)
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]*booking.Booking, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*booking.Booking

	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning booking: %w", err)
		}

		bookings = append(bookings, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating booking rows: %w", err)
	}

	return bookings, nil
}

func flagColumn(flag booking.Flag) (string, error) {
	switch flag {
	case booking.FlagConfirmation, booking.FlagJoiningInstructions, booking.FlagReminder24h,
		booking.FlagReminder1h, booking.FlagELearningAccess:
		return string(flag), nil
	default:
		return "", fmt.Errorf("unknown notification flag %q", flag)
	}
}

// SetFlag sets a notification flag only if it is not already set, so a flag
// can never be reset or set twice.
func (s *Store) SetFlag(ctx context.Context, id uuid.UUID, flag booking.Flag) (bool, error) {
	column, err := flagColumn(flag)
	if err != nil {
		return false, err
	}

	query := `UPDATE bookings SET ` + column + ` = TRUE, updated_at = NOW() WHERE id = $1 AND NOT ` + column

	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("updating %s: %w", column, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}

	if n > 0 {
		return true, nil
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM bookings WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking booking: %w", err)
	}

	if !exists {
		return false, booking.ErrNotFound
	}

	return false, nil
}

type updateTx struct {
	tx *sql.Tx
	b  *booking.Booking
}

// BeginUpdate opens a transaction and locks the booking row with FOR UPDATE.
func (s *Store) BeginUpdate(ctx context.Context, id uuid.UUID) (booking.UpdateTx, error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning booking tx: %w", err)
	}

	query := `SELECT ` + selectBookingColumns + ` FROM bookings WHERE id = $1 FOR UPDATE`

	b, err := scanBooking(dbTx.QueryRowContext(ctx, query, id))
	if err != nil {
		dbTx.Rollback()

		if errors.Is(err, sql.ErrNoRows) {
			return nil, booking.ErrNotFound
		}

		return nil, fmt.Errorf("locking booking: %w", err)
	}

	return &updateTx{tx: dbTx, b: b}, nil
}

func (u *updateTx) Booking() *booking.Booking { return u.b }

func (u *updateTx) LockAccount(ctx context.Context, accountID uuid.UUID) (account.LedgerTx, error) {
	return accountStore.JoinLedger(ctx, u.tx, accountID)
}

func (u *updateTx) Commit() error   { return u.tx.Commit() }
func (u *updateTx) Rollback() error { return u.tx.Rollback() }

// SaveBooking writes the fields a cancellation can change. Notification flags
// are left alone; they only move through SetFlag.
func (u *updateTx) SaveBooking(ctx context.Context, b *booking.Booking) error {
	query := `
		UPDATE bookings
		SET status = $1, payment_status = $2, refund_amount = $3, refund_reason = $4,
			refunded_at = $5, refunded_by = $6, cancellation_reason = $7, cancelled_at = $8, updated_at = $9
		WHERE id = $10
	`

	args := []any{b.Status, b.Payment.Status}
	args = append(args, refundArgs(b.Payment.Refund)...)
	args = append(args, b.CancellationReason, b.CancelledAt, b.UpdatedAt, b.ID)

	if _, err := u.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("updating booking: %w", err)
	}

	u.b = b

	return nil
}
