package reminder

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrJamesThe3rd/medtrain/internal/booking"
)

//go:generate mockgen -source=scheduler.go -destination=source_mock.go -package=reminder
type Source interface {
	DueReminders(ctx context.Context, now time.Time) ([]booking.Reminder, error)
	SendReminder(ctx context.Context, r booking.Reminder) bool
}

// Scheduler periodically sends the 24h and 1h session reminders that are due.
// Flags on the booking make repeated ticks idempotent.
type Scheduler struct {
	source   Source
	interval time.Duration
	now      func() time.Time
}

func NewScheduler(source Source, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	return &Scheduler{source: source, interval: interval, now: time.Now}
}

// Run ticks once immediately and then every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("reminder scheduler started", "interval", s.interval)

	s.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("reminder scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick sends every reminder due now and reports how many went out.
func (s *Scheduler) Tick(ctx context.Context) (sent, failed int) {
	due, err := s.source.DueReminders(ctx, s.now())
	if err != nil {
		slog.Error("failed to list due reminders", "error", err)
		return 0, 0
	}

	for _, r := range due {
		if ctx.Err() != nil {
			break
		}

		if s.source.SendReminder(ctx, r) {
			sent++
		} else {
			failed++
		}
	}

	if len(due) > 0 {
		slog.Info("reminders processed", "sent", sent, "failed", failed)
	}

	return sent, failed
}
