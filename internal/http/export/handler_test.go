package export_test

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/medtrain/internal/booking"
	"github.com/MrJamesThe3rd/medtrain/internal/export"
	exporthttp "github.com/MrJamesThe3rd/medtrain/internal/http/export"
)

type fakeExporter struct {
	gotFilter booking.ListFilter
	err       error
}

func (f *fakeExporter) Export(_ context.Context, filter booking.ListFilter) ([]export.Row, error) {
	f.gotFilter = filter
	if f.err != nil {
		return nil, f.err
	}

	b := &booking.Booking{
		Ref:         "MIAD-261001-AAAAAA",
		CourseTitle: "Basic Life Support",
		Attendee:    booking.Attendee{FirstName: "Ada", LastName: "Lovelace"},
		Status:      booking.StatusConfirmed,
		Payment:     booking.Payment{Amount: 9500, Currency: "GBP", Method: booking.MethodCard},
		CreatedAt:   time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC),
	}

	return []export.Row{{Booking: b, FinanceCode: "TRN-BLS", Net: 9500}}, nil
}

func serve(svc *fakeExporter, path, body string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	exporthttp.NewHandler(svc).Routes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)))

	return rec
}

func TestHandler_Metadata(t *testing.T) {
	svc := &fakeExporter{}

	rec := serve(svc, "/", `{"start_date":"2026-10-01T00:00:00Z","course_id":"bls"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	require.NotNil(t, svc.gotFilter.From)
	require.NotNil(t, svc.gotFilter.CourseID)
	assert.Equal(t, "bls", *svc.gotFilter.CourseID)

	var got struct {
		Rows []struct {
			BookingRef  string `json:"booking_ref"`
			FinanceCode string `json:"finance_code"`
			Net         int64  `json:"net"`
		} `json:"rows"`
		Summary   export.Summary `json:"summary"`
		EmailBody string         `json:"email_body"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))

	require.Len(t, got.Rows, 1)
	assert.Equal(t, "TRN-BLS", got.Rows[0].FinanceCode)
	assert.Equal(t, int64(9500), got.Summary.Net)
	assert.Contains(t, got.EmailBody, "MIAD-261001-AAAAAA")
}

func TestHandler_Download(t *testing.T) {
	rec := serve(&fakeExporter{}, "/download", `{}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))

	body := rec.Body.Bytes()

	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)

	f, err := zr.Open("bookings.csv")
	require.NoError(t, err)

	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Contains(t, string(data), "MIAD-261001-AAAAAA,2026-10-01,")
}

func TestHandler_Errors(t *testing.T) {
	type testCase struct {
		name       string
		body       string
		err        error
		wantStatus int
	}

	tests := []testCase{
		{name: "Malformed", body: `{`, wantStatus: http.StatusBadRequest},
		{
			name:       "EndBeforeStart",
			body:       `{"start_date":"2026-10-02T00:00:00Z","end_date":"2026-10-01T00:00:00Z"}`,
			wantStatus: http.StatusBadRequest,
		},
		{name: "StoreDown", body: `{}`, err: errors.New("boom"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(&fakeExporter{err: tt.err}, "/download", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}
