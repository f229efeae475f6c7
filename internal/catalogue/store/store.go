package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrJamesThe3rd/medtrain/internal/catalogue"
)

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

const selectCourseColumns = `id, code, title, delivery, price, currency, duration_minutes, active, finance_code, created_at`

func scanCourse(s scanner) (*catalogue.Course, error) {
	var c catalogue.Course

	var delivery string

	if err := s.Scan(
		&c.ID, &c.Code, &c.Title, &delivery, &c.Price, &c.Currency,
		&c.DurationMinutes, &c.Active, &c.FinanceCode, &c.CreatedAt,
	); err != nil {
		return nil, err
	}

	c.Delivery = catalogue.Delivery(delivery)

	return &c, nil
}

func (s *Store) GetCourse(ctx context.Context, id string) (*catalogue.Course, error) {
	query := `SELECT ` + selectCourseColumns + ` FROM courses WHERE id = $1`

	c, err := scanCourse(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, catalogue.ErrCourseNotFound
		}

		return nil, fmt.Errorf("getting course: %w", err)
	}

	return c, nil
}

func (s *Store) GetCourseByCode(ctx context.Context, code string) (*catalogue.Course, error) {
	query := `SELECT ` + selectCourseColumns + ` FROM courses WHERE code = $1`

	c, err := scanCourse(s.db.QueryRowContext(ctx, query, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, catalogue.ErrCourseNotFound
		}

		return nil, fmt.Errorf("getting course by code: %w", err)
	}

	return c, nil
}

func (s *Store) ListCourses(ctx context.Context) ([]*catalogue.Course, error) {
	query := `SELECT ` + selectCourseColumns + ` FROM courses ORDER BY title ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing courses: %w", err)
	}
	defer rows.Close()

	var courses []*catalogue.Course

	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning course: %w", err)
		}

		courses = append(courses, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating course rows: %w", err)
	}

	return courses, nil
}

func scanSettings(s scanner) (string, *catalogue.Settings, error) {
	var (
		courseID    string
		price       sql.NullInt64
		active      sql.NullBool
		financeCode sql.NullString
		st          catalogue.Settings
	)

	if err := s.Scan(&courseID, &price, &active, &financeCode, &st.UpdatedAt, &st.UpdatedBy); err != nil {
		return "", nil, err
	}

	if price.Valid {
		st.Price = new(price.Int64)
	}

	if active.Valid {
		st.Active = new(active.Bool)
	}

	if financeCode.Valid {
		st.FinanceCode = new(financeCode.String)
	}

	return courseID, &st, nil
}

// GetSettings returns nil without error when the course has no overrides.
func (s *Store) GetSettings(ctx context.Context, courseID string) (*catalogue.Settings, error) {
	query := `
		SELECT course_id, price, active, finance_code, updated_at, updated_by
		FROM course_settings WHERE course_id = $1`

	_, st, err := scanSettings(s.db.QueryRowContext(ctx, query, courseID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("getting course settings: %w", err)
	}

	return st, nil
}

func (s *Store) ListSettings(ctx context.Context) (map[string]*catalogue.Settings, error) {
	query := `SELECT course_id, price, active, finance_code, updated_at, updated_by FROM course_settings`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing course settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]*catalogue.Settings)

	for rows.Next() {
		id, st, err := scanSettings(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning course settings: %w", err)
		}

		settings[id] = st
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating course settings rows: %w", err)
	}

	return settings, nil
}

func (s *Store) SaveSettings(ctx context.Context, courseID string, st *catalogue.Settings) error {
	query := `
		INSERT INTO course_settings (course_id, price, active, finance_code, updated_at, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (course_id) DO UPDATE SET
			price = EXCLUDED.price,
			active = EXCLUDED.active,
			finance_code = EXCLUDED.finance_code,
			updated_at = EXCLUDED.updated_at,
			updated_by = EXCLUDED.updated_by
	`

	_, err := s.db.ExecContext(ctx, query, courseID, st.Price, st.Active, st.FinanceCode, st.UpdatedAt, st.UpdatedBy)
	if err != nil {
		return fmt.Errorf("saving course settings: %w", err)
	}

	return nil
}

const selectSessionColumns = `
	id, course_id, starts_at, duration_minutes, trainer_name, trainer_email,
	venue, capacity, spots_remaining, price
`

func scanSession(s scanner) (*catalogue.Session, error) {
	var (
		sess  catalogue.Session
		price sql.NullInt64
	)

	if err := s.Scan(
		&sess.ID, &sess.CourseID, &sess.StartsAt, &sess.DurationMinutes, &sess.TrainerName,
		&sess.TrainerEmail, &sess.Venue, &sess.Capacity, &sess.SpotsRemaining, &price,
	); err != nil {
		return nil, err
	}

	if price.Valid {
		sess.Price = new(price.Int64)
	}

	return &sess, nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*catalogue.Session, error) {
	query := `SELECT ` + selectSessionColumns + ` FROM sessions WHERE id = $1`

	sess, err := scanSession(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, catalogue.ErrSessionNotFound
		}

		return nil, fmt.Errorf("getting session: %w", err)
	}

	return sess, nil
}

func (s *Store) ListSessions(ctx context.Context, courseID string, from *time.Time) ([]*catalogue.Session, error) {
	query := `SELECT ` + selectSessionColumns + ` FROM sessions WHERE course_id = $1`
	args := []any{courseID}

	if from != nil {
		query += ` AND starts_at >= $2`

		args = append(args, *from)
	}

	query += ` ORDER BY starts_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*catalogue.Session

	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}

		sessions = append(sessions, sess)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session rows: %w", err)
	}

	return sessions, nil
}

// UpsertSessions writes all sessions in one database transaction. A session
// is never moved to another course, and a new start time is copied onto the
// confirmed bookings that hold it.
func (s *Store) UpsertSessions(ctx context.Context, sessions []*catalogue.Session) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer dbTx.Rollback()

	upsert := `
		INSERT INTO sessions (id, course_id, starts_at, duration_minutes, trainer_name, trainer_email,
			venue, capacity, spots_remaining, price)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			starts_at = EXCLUDED.starts_at,
			duration_minutes = EXCLUDED.duration_minutes,
			trainer_name = EXCLUDED.trainer_name,
			trainer_email = EXCLUDED.trainer_email,
			venue = EXCLUDED.venue,
			capacity = EXCLUDED.capacity,
			price = EXCLUDED.price
		WHERE sessions.course_id = EXCLUDED.course_id
		RETURNING id
	`

	reschedule := `
		UPDATE bookings SET session_starts_at = $2, updated_at = NOW()
		WHERE session_id = $1 AND status = 'confirmed' AND session_starts_at IS DISTINCT FROM $2
	`

	for _, sess := range sessions {
		var id string

		err := dbTx.QueryRowContext(ctx, upsert,
			sess.ID,
			sess.CourseID,
			sess.StartsAt,
			sess.DurationMinutes,
			sess.TrainerName,
			sess.TrainerEmail,
			sess.Venue,
			sess.Capacity,
			sess.SpotsRemaining,
			sess.Price,
		).Scan(&id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("upserting session %s: %w", sess.ID, catalogue.ErrSessionMoved)
			}

			return fmt.Errorf("upserting session %s: %w", sess.ID, err)
		}

		res, err := dbTx.ExecContext(ctx, reschedule, sess.ID, sess.StartsAt)
		if err != nil {
			return fmt.Errorf("rescheduling bookings for session %s: %w", sess.ID, err)
		}

		if n, _ := res.RowsAffected(); n > 0 {
			slog.Info("rescheduled bookings", "session", sess.ID, "bookings", n, "starts_at", sess.StartsAt)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}
