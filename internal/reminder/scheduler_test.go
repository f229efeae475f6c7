package reminder_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"github.com/MrJamesThe3rd/medtrain/internal/booking"
	"github.com/MrJamesThe3rd/medtrain/internal/notification"
	"github.com/MrJamesThe3rd/medtrain/internal/reminder"
)

func TestScheduler_Tick(t *testing.T) {
	a := booking.Reminder{Booking: &booking.Booking{Ref: "MIAD-1"}, Kind: notification.KindReminder24h, Flag: booking.FlagReminder24h}
	b := booking.Reminder{Booking: &booking.Booking{Ref: "MIAD-2"}, Kind: notification.KindReminder1h, Flag: booking.FlagReminder1h}

	type testCase struct {
		name       string
		setup      func(src *reminder.MockSource)
		wantSent   int
		wantFailed int
	}

	tests := []testCase{
		{
			name: "SendsAllDue",
			setup: func(src *reminder.MockSource) {
				src.EXPECT().DueReminders(gomock.Any(), gomock.Any()).Return([]booking.Reminder{a, b}, nil)
				src.EXPECT().SendReminder(gomock.Any(), a).Return(true)
				src.EXPECT().SendReminder(gomock.Any(), b).Return(true)
			},
			wantSent: 2,
		},
		{
			name: "CountsFailures",
			setup: func(src *reminder.MockSource) {
				src.EXPECT().DueReminders(gomock.Any(), gomock.Any()).Return([]booking.Reminder{a, b}, nil)
				src.EXPECT().SendReminder(gomock.Any(), a).Return(false)
				src.EXPECT().SendReminder(gomock.Any(), b).Return(true)
			},
			wantSent:   1,
			wantFailed: 1,
		},
		{
			name: "NothingDue",
			setup: func(src *reminder.MockSource) {
				src.EXPECT().DueReminders(gomock.Any(), gomock.Any()).Return(nil, nil)
			},
		},
		{
			name: "ListFails",
			setup: func(src *reminder.MockSource) {
				src.EXPECT().DueReminders(gomock.Any(), gomock.Any()).Return(nil, errors.New("db down"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			src := reminder.NewMockSource(ctrl)
			tt.setup(src)

			sent, failed := reminder.NewScheduler(src, time.Minute).Tick(context.Background())
			assert.Equal(t, tt.wantSent, sent)
			assert.Equal(t, tt.wantFailed, failed)
		})
	}
}

func TestScheduler_RunStopsOnCancel(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx, cancel := context.WithCancel(context.Background())

	src := reminder.NewMockSource(ctrl)
	src.EXPECT().DueReminders(gomock.Any(), gomock.Any()).DoAndReturn(func(context.Context, time.Time) ([]booking.Reminder, error) {
		cancel()
		return nil, nil
	})

	done := make(chan struct{})

	go func() {
		reminder.NewScheduler(src, time.Hour).Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
