package meeting

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"
)

var ErrNotFound = errors.New("meeting not found")

// Request describes the meeting to allocate for a live session.
type Request struct {
	Topic     string
	StartTime time.Time
	Duration  int // Minutes
	HostEmail string
}

// Meeting is a provisioned virtual meeting.
type Meeting struct {
	ID       string
	JoinURL  string
	Password string
	DialIn   string
}

type Provisioner interface {
	CreateMeeting(ctx context.Context, req Request) (*Meeting, error)
	DeleteMeeting(ctx context.Context, id string) error
}

// Simulated allocates meetings locally without any network call. It is used
// when no meeting API token is configured.
type Simulated struct {
	mu       sync.Mutex
	meetings map[string]Meeting
	dialIn   string
}

func NewSimulated() *Simulated {
	return &Simulated{
		meetings: make(map[string]Meeting),
		dialIn:   "+44 203 481 5240",
	}
}

func (s *Simulated) CreateMeeting(ctx context.Context, req Request) (*Meeting, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if req.Topic == "" {
		return nil, fmt.Errorf("meeting topic is required")
	}

	id, err := randomDigits(11)
	if err != nil {
		return nil, fmt.Errorf("generating meeting id: %w", err)
	}

	password, err := randomDigits(6)
	if err != nil {
		return nil, fmt.Errorf("generating meeting password: %w", err)
	}

	m := Meeting{
		ID:       id,
		JoinURL:  fmt.Sprintf("https://zoom.us/j/%s?pwd=%s", id, password),
		Password: password,
		DialIn:   s.dialIn,
	}

	s.mu.Lock()
	s.meetings[id] = m
	s.mu.Unlock()

	return &m, nil
}

func (s *Simulated) DeleteMeeting(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.meetings[id]; !ok {
		return ErrNotFound
	}

	delete(s.meetings, id)

	return nil
}

func randomDigits(n int) (string, error) {
	buf := make([]byte, n)

	for i := range buf {
		d, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}

		buf[i] = byte('0' + d.Int64())
	}

	if buf[0] == '0' {
		buf[0] = '1'
	}

	return string(buf), nil
}
