package catalogue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=catalogue
type Repository interface {
	GetCourse(ctx context.Context, id string) (*Course, error)
	GetCourseByCode(ctx context.Context, code string) (*Course, error)
	ListCourses(ctx context.Context) ([]*Course, error)

	GetSettings(ctx context.Context, courseID string) (*Settings, error)
	ListSettings(ctx context.Context) (map[string]*Settings, error)
	SaveSettings(ctx context.Context, courseID string, settings *Settings) error

	GetSession(ctx context.Context, id string) (*Session, error)
	ListSessions(ctx context.Context, courseID string, from *time.Time) ([]*Session, error)
	UpsertSessions(ctx context.Context, sessions []*Session) error
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Course returns the course with admin overrides applied.
func (s *Service) Course(ctx context.Context, id string) (*Course, error) {
	c, err := s.repo.GetCourse(ctx, id)
	if err != nil {
		return nil, err
	}

	st, err := s.repo.GetSettings(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading course settings: %w", err)
	}

	effective := st.Apply(*c)

	return &effective, nil
}

// Courses lists the catalogue. Inactive courses are skipped when activeOnly is set.
func (s *Service) Courses(ctx context.Context, activeOnly bool) ([]*Course, error) {
	courses, err := s.repo.ListCourses(ctx)
	if err != nil {
		return nil, err
	}

	settings, err := s.repo.ListSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading course settings: %w", err)
	}

	out := make([]*Course, 0, len(courses))

	for _, c := range courses {
		effective := settings[c.ID].Apply(*c)
		if activeOnly && !effective.Active {
			continue
		}

		out = append(out, &effective)
	}

	return out, nil
}

func (s *Service) Session(ctx context.Context, id string) (*Session, error) {
	return s.repo.GetSession(ctx, id)
}

// Sessions lists the sessions of a course ordered by start time. With
// upcomingOnly, sessions that already started are left out.
func (s *Service) Sessions(ctx context.Context, courseID string, upcomingOnly bool) ([]*Session, error) {
	var from *time.Time
	if upcomingOnly {
		from = new(time.Now())
	}

	return s.repo.ListSessions(ctx, courseID, from)
}

type SettingsParams struct {
	Price       *int64
	Active      *bool
	FinanceCode *string
	Actor       string
}

// UpdateSettings merges the given overrides into the stored settings and
// returns the effective course.
func (s *Service) UpdateSettings(ctx context.Context, courseID string, params SettingsParams) (*Course, error) {
	if params.Price != nil && *params.Price < 0 {
		return nil, ErrInvalidPrice
	}

	c, err := s.repo.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}

	st, err := s.repo.GetSettings(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("loading course settings: %w", err)
	}

	if st == nil {
		st = &Settings{}
	}

	if params.Price != nil {
		st.Price = params.Price
	}

	if params.Active != nil {
		st.Active = params.Active
	}

	if params.FinanceCode != nil {
		st.FinanceCode = new(strings.TrimSpace(*params.FinanceCode))
	}

	st.UpdatedAt = time.Now()
	st.UpdatedBy = params.Actor

	if err := s.repo.SaveSettings(ctx, courseID, st); err != nil {
		return nil, fmt.Errorf("saving course settings: %w", err)
	}

	effective := st.Apply(*c)

	return &effective, nil
}

// SessionParams is one row of a session schedule import.
type SessionParams struct {
	ID              string
	CourseCode      string
	StartsAt        time.Time
	DurationMinutes int
	TrainerName     string
	TrainerEmail    string
	Venue           string
	Capacity        int
	Price           *int64
}

// ImportSessions resolves each row's course by code and upserts the sessions.
// Rows without an id get one derived from the course code and start time so
// re-importing the same schedule updates instead of duplicating. An existing
// session keeps its course; a changed start time is carried onto its
// confirmed bookings by the store.
func (s *Service) ImportSessions(ctx context.Context, params []SessionParams) ([]*Session, error) {
	if len(params) == 0 {
		return nil, nil
	}

	courses := make(map[string]*Course)
	sessions := make([]*Session, 0, len(params))

	for i, p := range params {
		c, ok := courses[p.CourseCode]
		if !ok {
			found, err := s.repo.GetCourseByCode(ctx, p.CourseCode)
			if err != nil {
				return nil, fmt.Errorf("row %d: course %q: %w", i+1, p.CourseCode, err)
			}

			c = found
			courses[p.CourseCode] = c
		}

		if c.Delivery != DeliveryLive {
			return nil, fmt.Errorf("row %d: course %q: %w", i+1, p.CourseCode, ErrNotLive)
		}

		id := p.ID
		if id == "" {
			id = fmt.Sprintf("%s-%s", strings.ToLower(c.Code), p.StartsAt.UTC().Format("200601021504"))
		}

		existing, err := s.repo.GetSession(ctx, id)
		switch {
		case errors.Is(err, ErrSessionNotFound):
		case err != nil:
			return nil, fmt.Errorf("row %d: session %s: %w", i+1, id, err)
		case existing.CourseID != c.ID:
			return nil, fmt.Errorf("row %d: session %s: %w", i+1, id, ErrSessionMoved)
		}

		duration := p.DurationMinutes
		if duration == 0 {
			duration = c.DurationMinutes
		}

		sessions = append(sessions, &Session{
			ID:              id,
			CourseID:        c.ID,
			StartsAt:        p.StartsAt,
			DurationMinutes: duration,
			TrainerName:     p.TrainerName,
			TrainerEmail:    p.TrainerEmail,
			Venue:           p.Venue,
			Capacity:        p.Capacity,
			SpotsRemaining:  p.Capacity,
			Price:           p.Price,
		})
	}

	if err := s.repo.UpsertSessions(ctx, sessions); err != nil {
		return nil, fmt.Errorf("upserting sessions: %w", err)
	}

	return sessions, nil
}
