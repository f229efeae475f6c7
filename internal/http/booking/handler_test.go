package booking_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/medtrain/internal/account"
	"github.com/MrJamesThe3rd/medtrain/internal/auth"
	"github.com/MrJamesThe3rd/medtrain/internal/booking"
	bookinghttp "github.com/MrJamesThe3rd/medtrain/internal/http/booking"
	"github.com/MrJamesThe3rd/medtrain/internal/http/guard"
)

type fakeService struct {
	bookings  map[uuid.UUID]*booking.Booking
	createErr error
	cancelErr error

	gotCreate booking.CreateParams
	gotCancel booking.CancelParams
	gotFilter booking.ListFilter
}

func (f *fakeService) Create(_ context.Context, params booking.CreateParams) (*booking.Booking, error) {
	f.gotCreate = params
	if f.createErr != nil {
		return nil, f.createErr
	}

	return &booking.Booking{ID: uuid.New(), Ref: "MIAD-261016-AAAAAA", CourseID: params.CourseID, CreatedBy: params.CreatedBy}, nil
}

func (f *fakeService) Get(_ context.Context, id uuid.UUID) (*booking.Booking, error) {
	b, ok := f.bookings[id]
	if !ok {
		return nil, booking.ErrNotFound
	}

	return b, nil
}

func (f *fakeService) GetByRef(_ context.Context, ref string) (*booking.Booking, error) {
	for _, b := range f.bookings {
		if b.Ref == ref {
			return b, nil
		}
	}

	return nil, booking.ErrNotFound
}

func (f *fakeService) List(_ context.Context, filter booking.ListFilter) ([]*booking.Booking, error) {
	f.gotFilter = filter
	return []*booking.Booking{}, nil
}

func (f *fakeService) CancelWithRefund(_ context.Context, params booking.CancelParams) (*booking.Booking, error) {
	f.gotCancel = params
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}

	b := *f.bookings[params.BookingID]
	b.Status = booking.StatusCancelled

	return &b, nil
}

func (f *fakeService) Snapshot(_ context.Context, w io.Writer, _ booking.ListFilter) (int, error) {
	_, err := io.WriteString(w, `{"version":1,"bookings":[]}`)
	return 0, err
}

func (f *fakeService) VerifySnapshot(_ context.Context, r io.Reader) (*booking.SnapshotReport, error) {
	bookings, err := booking.ReadSnapshot(r)
	if err != nil {
		return nil, err
	}

	return &booking.SnapshotReport{Bookings: len(bookings), Missing: []string{}, Changed: []string{}}, nil
}

var (
	bookingID = uuid.MustParse("6f1c1f5e-7d7a-4d7c-9a55-0f5f3f1e2a10")
	customer  = &auth.Claims{Email: "ada@example.com", Role: auth.RoleCustomer, RegisteredClaims: jwt.RegisteredClaims{Subject: "ada@example.com"}}
	stranger  = &auth.Claims{Email: "eve@example.com", Role: auth.RoleCustomer, RegisteredClaims: jwt.RegisteredClaims{Subject: "eve@example.com"}}
	admin     = &auth.Claims{Email: "grace@example.com", Role: auth.RoleAdmin, RegisteredClaims: jwt.RegisteredClaims{Subject: "1"}}
)

func newService() *fakeService {
	return &fakeService{bookings: map[uuid.UUID]*booking.Booking{
		bookingID: {
			ID:        bookingID,
			Ref:       "MIAD-261016-BBBBBB",
			Attendee:  booking.Attendee{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"},
			Status:    booking.StatusConfirmed,
			CreatedBy: "ada@example.com",
		},
	}}
}

func serve(svc *fakeService, claims *auth.Claims, method, path, body string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(guard.WithClaims(req.Context(), claims)))
		})
	})
	bookinghttp.NewHandler(svc).Routes(r, guard.RequireRole(auth.RoleAdmin))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))

	return rec
}

const cardBooking = `{"course_id":"bls","session_id":"bls-1","payment_method":"card",
	"attendee":{"first_name":"Ada","last_name":"Lovelace","email":"ada@example.com"}}`

const poBooking = `{"course_id":"bls","session_id":"bls-1","payment_method":"purchase_order",
	"purchase_order":{"number":"PO-9","account_id":"6f1c1f5e-7d7a-4d7c-9a55-0f5f3f1e2a11"},
	"attendee":{"first_name":"Ada","last_name":"Lovelace","email":"ada@example.com"}}`

func TestHandler_Create(t *testing.T) {
	type testCase struct {
		name          string
		claims        *auth.Claims
		body          string
		createErr     error
		wantStatus    int
		wantCreatedBy string
	}

	tests := []testCase{
		{name: "CustomerCard", claims: customer, body: cardBooking, wantStatus: http.StatusCreated, wantCreatedBy: "ada@example.com"},
		{name: "CustomerPurchaseOrder", claims: customer, body: poBooking, wantStatus: http.StatusForbidden},
		{name: "AdminPurchaseOrder", claims: admin, body: poBooking, wantStatus: http.StatusCreated, wantCreatedBy: "admin:grace@example.com"},
		{
			name: "Invalid", claims: customer, body: cardBooking,
			createErr:  &booking.ValidationError{Field: "session", Message: "not found"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "Suspended", claims: admin, body: poBooking,
			createErr:  fmt.Errorf("debiting account: %w", account.ErrSuspended),
			wantStatus: http.StatusConflict,
		},
		{
			name: "UnknownAccount", claims: admin, body: poBooking,
			createErr:  fmt.Errorf("debiting account: %w", account.ErrNotFound),
			wantStatus: http.StatusUnprocessableEntity,
		},
		{name: "Malformed", claims: customer, body: `{`, wantStatus: http.StatusBadRequest},
		{name: "StoreDown", claims: customer, body: cardBooking, createErr: fmt.Errorf("boom"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newService()
			svc.createErr = tt.createErr

			rec := serve(svc, tt.claims, http.MethodPost, "/", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			if tt.wantCreatedBy != "" {
				assert.Equal(t, tt.wantCreatedBy, svc.gotCreate.CreatedBy)
			}
		})
	}
}

func TestHandler_Create_InsufficientCredit(t *testing.T) {
	svc := newService()
	svc.createErr = fmt.Errorf("debiting account: %w", &account.InsufficientCreditError{Available: 5000, Requested: 9500})

	rec := serve(svc, admin, http.MethodPost, "/", poBooking)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var got map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.InDelta(t, 4500, got["shortfall"], 0)
	assert.InDelta(t, 5000, got["available"], 0)
	assert.Equal(t, "PO-9", svc.gotCreate.PurchaseOrder.Number)
}

func TestHandler_Get(t *testing.T) {
	type testCase struct {
		name       string
		claims     *auth.Claims
		path       string
		wantStatus int
	}

	tests := []testCase{
		{name: "Owner", claims: customer, path: "/" + bookingID.String(), wantStatus: http.StatusOK},
		{name: "OwnerByRef", claims: customer, path: "/ref/MIAD-261016-BBBBBB", wantStatus: http.StatusOK},
		{name: "Stranger", claims: stranger, path: "/" + bookingID.String(), wantStatus: http.StatusNotFound},
		{name: "StrangerByRef", claims: stranger, path: "/ref/MIAD-261016-BBBBBB", wantStatus: http.StatusNotFound},
		{name: "Admin", claims: admin, path: "/" + bookingID.String(), wantStatus: http.StatusOK},
		{name: "Unknown", claims: admin, path: "/" + uuid.NewString(), wantStatus: http.StatusNotFound},
		{name: "BadID", claims: admin, path: "/not-a-uuid", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(newService(), tt.claims, http.MethodGet, tt.path, "")
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestHandler_Mine(t *testing.T) {
	svc := newService()

	rec := serve(svc, customer, http.MethodGet, "/mine", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.gotFilter.Email)
	assert.Equal(t, "ada@example.com", *svc.gotFilter.Email)
}

func TestHandler_List(t *testing.T) {
	type testCase struct {
		name       string
		claims     *auth.Claims
		query      string
		wantStatus int
	}

	tests := []testCase{
		{name: "Customer", claims: customer, wantStatus: http.StatusForbidden},
		{name: "Admin", claims: admin, query: "?status=cancelled&course_id=bls&from=2026-10-01&to=2026-11-01", wantStatus: http.StatusOK},
		{name: "BadStatus", claims: admin, query: "?status=pending", wantStatus: http.StatusBadRequest},
		{name: "BadDate", claims: admin, query: "?from=01/10/2026", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newService()

			rec := serve(svc, tt.claims, http.MethodGet, "/"+tt.query, "")
			assert.Equal(t, tt.wantStatus, rec.Code)

			if tt.wantStatus == http.StatusOK {
				require.NotNil(t, svc.gotFilter.Status)
				assert.Equal(t, booking.StatusCancelled, *svc.gotFilter.Status)
				require.NotNil(t, svc.gotFilter.From)
				require.NotNil(t, svc.gotFilter.To)
				assert.Equal(t, 10, int(svc.gotFilter.From.Month()))
				assert.Equal(t, 11, int(svc.gotFilter.To.Month()))
			}
		})
	}
}

func TestHandler_Cancel(t *testing.T) {
	type testCase struct {
		name       string
		claims     *auth.Claims
		cancelErr  error
		wantStatus int
	}

	tests := []testCase{
		{name: "Admin", claims: admin, wantStatus: http.StatusOK},
		{name: "Customer", claims: customer, wantStatus: http.StatusForbidden},
		{name: "AlreadyCancelled", claims: admin, cancelErr: booking.ErrAlreadyCancelled, wantStatus: http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newService()
			svc.cancelErr = tt.cancelErr

			rec := serve(svc, tt.claims, http.MethodPost, "/"+bookingID.String()+"/cancel",
				`{"reason":"Unwell","issue_refund":true,"refund_amount":2500}`)
			assert.Equal(t, tt.wantStatus, rec.Code)

			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, "admin:grace@example.com", svc.gotCancel.Actor)
				assert.True(t, svc.gotCancel.IssueRefund)
				require.NotNil(t, svc.gotCancel.RefundAmount)
				assert.Equal(t, int64(2500), *svc.gotCancel.RefundAmount)
			}
		})
	}
}

func TestHandler_Snapshot(t *testing.T) {
	rec := serve(newService(), admin, http.MethodGet, "/snapshot", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "bookings_")
	assert.JSONEq(t, `{"version":1,"bookings":[]}`, rec.Body.String())
}

func TestHandler_VerifySnapshot(t *testing.T) {
	type testCase struct {
		name       string
		claims     *auth.Claims
		body       string
		wantStatus int
		wantBody   string
	}

	tests := []testCase{
		{
			name:       "Valid",
			claims:     admin,
			body:       `{"version":1,"bookings":[]}`,
			wantStatus: http.StatusOK,
			wantBody:   `"bookings":0`,
		},
		{
			name:       "NullEntry",
			claims:     admin,
			body:       `{"version":1,"bookings":[null]}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   "empty booking at index 0",
		},
		{
			name:       "CustomerForbidden",
			claims:     customer,
			body:       `{"version":1,"bookings":[]}`,
			wantStatus: http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(newService(), tt.claims, http.MethodPost, "/snapshot/verify", tt.body)

			require.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}
