package catalogue

import (
	"errors"
	"time"
)

var (
	ErrCourseNotFound  = errors.New("course not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidPrice    = errors.New("price must not be negative")
	ErrNotLive         = errors.New("course is not delivered live")
	// ErrSessionMoved is returned when an import would move an existing
	// session to another course.
	ErrSessionMoved = errors.New("session belongs to another course")
)

// Delivery is how a course is delivered to attendees.
type Delivery string

const (
	DeliveryLive      Delivery = "live"
	DeliveryELearning Delivery = "elearning"
)

// Course is a bookable course. Price, Active and FinanceCode already have the
// admin overrides from Settings applied when returned by the Service.
type Course struct {
	ID              string
	Code            string
	Title           string
	Delivery        Delivery
	Price           int64 // Amount in pence
	Currency        string
	DurationMinutes int
	Active          bool
	FinanceCode     string
	CreatedAt       time.Time
}

// Settings holds admin overrides for a course. Nil fields keep the catalogue value.
type Settings struct {
	Price       *int64
	Active      *bool
	FinanceCode *string
	UpdatedAt   time.Time
	UpdatedBy   string
}

// Session is a scheduled live delivery of a course.
type Session struct {
	ID              string
	CourseID        string
	StartsAt        time.Time
	DurationMinutes int
	TrainerName     string
	TrainerEmail    string
	Venue           string
	Capacity        int
	SpotsRemaining  int    // Informational only, never decremented by bookings
	Price           *int64 // Overrides the course price when set
}

func (s *Session) EndsAt() time.Time {
	return s.StartsAt.Add(time.Duration(s.DurationMinutes) * time.Minute)
}

// Apply returns the course with the overrides applied.
func (st *Settings) Apply(c Course) Course {
	if st == nil {
		return c
	}

	if st.Price != nil {
		c.Price = *st.Price
	}

	if st.Active != nil {
		c.Active = *st.Active
	}

	if st.FinanceCode != nil {
		c.FinanceCode = *st.FinanceCode
	}

	return c
}
