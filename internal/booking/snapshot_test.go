package booking_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/MrJamesThe3rd/medtrain/internal/booking"
)

func fullBooking() *booking.Booking {
	created := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	starts := time.Date(2026, 11, 3, 9, 0, 0, 0, time.UTC)
	cancelled := time.Date(2026, 10, 5, 8, 30, 0, 0, time.UTC)

	return &booking.Booking{
		ID:              uuid.New(),
		Ref:             "MIAD-261001-QWERTY",
		CourseID:        "bls",
		CourseTitle:     "Basic Life Support",
		SessionID:       new("bls-202611030900"),
		SessionStartsAt: &starts,
		Attendee: booking.Attendee{
			FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com",
			Phone: "+44 7700 900123", Organisation: "St Mary's", JobTitle: "Staff Nurse",
		},
		Status: booking.StatusCancelled,
		Payment: booking.Payment{
			Amount:   15000,
			Currency: "GBP",
			Method:   booking.MethodPurchaseOrder,
			Status:   booking.PaymentPartialRefund,
			Refund: &booking.Refund{
				Amount: 5000, Reason: "Moved", RefundedAt: cancelled, RefundedBy: "admin",
			},
			PurchaseOrder: &booking.PurchaseOrder{Number: "PO-77", AccountID: uuid.New()},
		},
		Meeting: &booking.Meeting{ID: "123", JoinURL: "https://zoom.us/j/123", Password: "999", DialIn: "+44 20"},
		Notifications: booking.Notifications{
			ConfirmationSent: true, JoiningInstructionsSent: true, Reminder24hSent: true,
		},
		CancellationReason: "Moved",
		CancelledAt:        &cancelled,
		CreatedBy:          "ada@example.com",
		CreatedAt:          created,
		UpdatedAt:          cancelled,
	}
}

func TestSnapshot_RoundTrip(t *testing.T) {
	card := &booking.Booking{
		ID:       uuid.New(),
		Ref:      "MIAD-261002-ASDFGH",
		CourseID: "ig",
		Attendee: booking.Attendee{FirstName: "Alan", LastName: "Turing", Email: "alan@example.com"},
		Status:   booking.StatusConfirmed,
		Payment: booking.Payment{
			Amount: 4500, Currency: "GBP", Method: booking.MethodCard, Status: booking.PaymentCompleted,
		},
		Notifications: booking.Notifications{ConfirmationSent: true, ELearningAccessSent: true},
		CreatedAt:     time.Date(2026, 10, 2, 10, 0, 0, 0, time.UTC),
		UpdatedAt:     time.Date(2026, 10, 2, 10, 0, 0, 0, time.UTC),
	}

	in := []*booking.Booking{fullBooking(), card}

	var buf bytes.Buffer
	require.NoError(t, booking.WriteSnapshot(&buf, in, time.Now()))

	out, err := booking.ReadSnapshot(&buf)
	require.NoError(t, err)
	require.Len(t, out, len(in))

	for i := range in {
		assert.Equal(t, in[i], out[i])
	}
}

func TestSnapshot_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, booking.WriteSnapshot(&buf, nil, time.Now()))
	assert.Contains(t, buf.String(), `"bookings": []`)

	out, err := booking.ReadSnapshot(&buf)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestReadSnapshot_Rejects(t *testing.T) {
	id := uuid.NewString()

	tests := map[string]string{
		"WrongVersion":  `{"version": 2, "bookings": []}`,
		"UnknownField":  `{"version": 1, "bookings": [], "extra": true}`,
		"DuplicateID":   `{"version": 1, "bookings": [{"id": "` + id + `"}, {"id": "` + id + `"}]}`,
		"NotJSON":       `bookings`,
		"UnknownNested": `{"version": 1, "bookings": [{"id": "` + id + `", "colour": "red"}]}`,
		"NullEntry":     `{"version": 1, "bookings": [null]}`,
	}

	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := booking.ReadSnapshot(strings.NewReader(input))
			assert.ErrorIs(t, err, booking.ErrInvalidSnapshot)
		})
	}
}

func TestReadSnapshot_NullAfterValidEntry(t *testing.T) {
	input := `{"version": 1, "bookings": [{"id": "` + uuid.NewString() + `"}, null]}`

	var (
		out []*booking.Booking
		err error
	)

	require.NotPanics(t, func() { out, err = booking.ReadSnapshot(strings.NewReader(input)) })
	assert.Nil(t, out)
	assert.ErrorContains(t, err, "empty booking at index 1")
}

func TestService_VerifySnapshot(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	unchanged := fullBooking()
	cancelledSince := fullBooking()
	cancelledSince.Ref = "MIAD-261001-CHANGE"
	cancelledSince.Status = booking.StatusConfirmed
	cancelledSince.Payment.Status = booking.PaymentCompleted
	gone := fullBooking()
	gone.Ref = "MIAD-261001-GONEAA"

	exported := time.Date(2026, 10, 10, 6, 0, 0, 0, time.UTC)

	var buf bytes.Buffer
	require.NoError(t, booking.WriteSnapshot(&buf, []*booking.Booking{unchanged, cancelledSince, gone}, exported))

	d := newDeps(ctrl)
	d.repo.EXPECT().GetBooking(gomock.Any(), unchanged.ID).Return(unchanged, nil)
	d.repo.EXPECT().GetBooking(gomock.Any(), cancelledSince.ID).DoAndReturn(func(context.Context, uuid.UUID) (*booking.Booking, error) {
		now := *cancelledSince
		now.Status = booking.StatusCancelled
		return &now, nil
	})
	d.repo.EXPECT().GetBooking(gomock.Any(), gone.ID).Return(nil, booking.ErrNotFound)

	report, err := d.service(nil).VerifySnapshot(context.Background(), &buf)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Bookings)
	assert.True(t, exported.Equal(report.ExportedAt))
	assert.Equal(t, []string{gone.Ref}, report.Missing)
	assert.Equal(t, []string{cancelledSince.Ref}, report.Changed)
}

func TestService_VerifySnapshot_RejectsBeforeLookup(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	d := newDeps(ctrl)

	report, err := d.service(nil).VerifySnapshot(context.Background(), strings.NewReader(`{"version": 1, "bookings": [null]}`))
	assert.Nil(t, report)
	assert.ErrorIs(t, err, booking.ErrInvalidSnapshot)
}

func TestService_Snapshot(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	d := newDeps(ctrl)
	d.repo.EXPECT().ListBookings(gomock.Any(), booking.ListFilter{}).Return([]*booking.Booking{fullBooking()}, nil)

	var buf bytes.Buffer

	n, err := d.service(nil).Snapshot(context.Background(), &buf, booking.ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	out, err := booking.ReadSnapshot(&buf)
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestNewRef(t *testing.T) {
	now := time.Date(2026, 3, 9, 23, 59, 0, 0, time.UTC)

	ref := booking.NewRef("MIAD", now)
	assert.Regexp(t, `^MIAD-260309-[A-Z2-7]{6}$`, ref)

	seen := make(map[string]struct{})
	for range 1000 {
		seen[booking.NewRef("MIAD", now)] = struct{}{}
	}

	assert.Len(t, seen, 1000)
}
