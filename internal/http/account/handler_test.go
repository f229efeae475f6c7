package account_test

import (
	"context"
	"encoding/json"
	"fmt"
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
	accounthttp "github.com/MrJamesThe3rd/medtrain/internal/http/account"
	"github.com/MrJamesThe3rd/medtrain/internal/http/guard"
)

var accountID = uuid.MustParse("0b5d7a44-1c2e-4f0e-8d59-3a3c9c1b2f01")

type fakeService struct {
	acc       *account.Account
	err       error
	gotLedger account.LedgerParams
	gotCreate account.CreateParams
	gotAmount int64
}

func (f *fakeService) lookup(id uuid.UUID) (*account.Account, error) {
	if f.err != nil {
		return nil, f.err
	}

	if id != f.acc.ID {
		return nil, account.ErrNotFound
	}

	return f.acc, nil
}

func (f *fakeService) Create(_ context.Context, params account.CreateParams) (*account.Account, error) {
	f.gotCreate = params
	if f.err != nil {
		return nil, f.err
	}

	return f.acc, nil
}

func (f *fakeService) Get(_ context.Context, id uuid.UUID) (*account.Account, error) {
	return f.lookup(id)
}

func (f *fakeService) List(context.Context, account.ListFilter) ([]*account.Account, error) {
	return []*account.Account{f.acc}, nil
}

func (f *fakeService) Transactions(_ context.Context, id uuid.UUID) ([]*account.Transaction, error) {
	if _, err := f.lookup(id); err != nil {
		return nil, err
	}

	return []*account.Transaction{{ID: uuid.New(), AccountID: id, Type: account.TxDebit, Amount: 9500, BookingRef: "MIAD-261016-AAAAAA"}}, nil
}

func (f *fakeService) CheckAvailability(_ context.Context, _ uuid.UUID, amount int64) (*account.Availability, error) {
	f.gotAmount = amount
	if amount > f.acc.AvailableCredit {
		return &account.Availability{Reason: "insufficient credit", AvailableCredit: f.acc.AvailableCredit, Shortfall: amount - f.acc.AvailableCredit}, nil
	}

	return &account.Availability{Available: true, AvailableCredit: f.acc.AvailableCredit}, nil
}

func (f *fakeService) Debit(_ context.Context, params account.LedgerParams) (*account.Account, *account.Transaction, error) {
	f.gotLedger = params

	acc, err := f.lookup(params.AccountID)
	if err != nil {
		return nil, nil, err
	}

	if params.Amount > acc.AvailableCredit {
		return nil, nil, &account.InsufficientCreditError{Available: acc.AvailableCredit, Requested: params.Amount}
	}

	return acc, &account.Transaction{ID: uuid.New(), Type: account.TxDebit, Amount: params.Amount}, nil
}

func (f *fakeService) Credit(_ context.Context, params account.LedgerParams) (*account.Account, *account.Transaction, error) {
	f.gotLedger = params

	acc, err := f.lookup(params.AccountID)
	if err != nil {
		return nil, nil, err
	}

	return acc, &account.Transaction{ID: uuid.New(), Type: account.TxCredit, Amount: params.Amount}, nil
}

func (f *fakeService) Suspend(_ context.Context, id uuid.UUID) (*account.Account, error) {
	acc, err := f.lookup(id)
	if err != nil {
		return nil, err
	}

	if acc.Status == account.StatusSuspended {
		return nil, account.ErrStatusUnchanged
	}

	return acc, nil
}

func (f *fakeService) Activate(_ context.Context, id uuid.UUID) (*account.Account, error) {
	return f.lookup(id)
}

func (f *fakeService) SetCreditLimit(_ context.Context, id uuid.UUID, limit int64) (*account.Account, error) {
	if limit < 0 {
		return nil, account.ErrInvalidLimit
	}

	return f.lookup(id)
}

func (f *fakeService) Reconcile(_ context.Context, id uuid.UUID) (*account.Reconciliation, error) {
	if _, err := f.lookup(id); err != nil {
		return nil, err
	}

	return &account.Reconciliation{Balance: 9500, LedgerSum: 9500, Balanced: true}, nil
}

func newService() *fakeService {
	return &fakeService{acc: &account.Account{
		ID:               accountID,
		AccountNumber:    "STMARY-0001",
		OrganisationName: "St Mary's",
		CreditLimit:      100000,
		CurrentBalance:   9500,
		AvailableCredit:  90500,
		Status:           account.StatusActive,
	}}
}

func serve(svc *fakeService, method, path, body string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			c := &auth.Claims{Email: "grace@example.com", Role: auth.RoleAdmin, RegisteredClaims: jwt.RegisteredClaims{Subject: "1"}}
			next.ServeHTTP(w, req.WithContext(guard.WithClaims(req.Context(), c)))
		})
	})
	accounthttp.NewHandler(svc).Routes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))

	return rec
}

func TestHandler_Create(t *testing.T) {
	svc := newService()

	rec := serve(svc, http.MethodPost, "/", `{"organisation_name":"St Mary's","credit_limit":100000}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "admin:grace@example.com", svc.gotCreate.Actor)
	assert.Equal(t, int64(100000), svc.gotCreate.CreditLimit)

	var got map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "STMARY-0001", got["account_number"])
	assert.InDelta(t, 90500, got["available_credit"], 0)
}

func TestHandler_Routes(t *testing.T) {
	base := "/" + accountID.String()

	type args struct {
		method string
		path   string
		body   string
	}

	type testCase struct {
		name       string
		args       args
		svcErr     error
		suspended  bool
		wantStatus int
		wantBody   string
	}

	tests := []testCase{
		{name: "Get", args: args{method: http.MethodGet, path: base}, wantStatus: http.StatusOK},
		{name: "GetUnknown", args: args{method: http.MethodGet, path: "/" + uuid.NewString()}, wantStatus: http.StatusNotFound},
		{name: "GetBadID", args: args{method: http.MethodGet, path: "/nope"}, wantStatus: http.StatusBadRequest},
		{name: "List", args: args{method: http.MethodGet, path: "/?status=active"}, wantStatus: http.StatusOK},
		{name: "Transactions", args: args{method: http.MethodGet, path: base + "/transactions"}, wantStatus: http.StatusOK, wantBody: "MIAD-261016-AAAAAA"},
		{name: "Available", args: args{method: http.MethodGet, path: base + "/availability?amount=5000"}, wantStatus: http.StatusOK, wantBody: `"available":true`},
		{name: "Unavailable", args: args{method: http.MethodGet, path: base + "/availability?amount=95000"}, wantStatus: http.StatusOK, wantBody: `"shortfall":4500`},
		{name: "AvailabilityBadAmount", args: args{method: http.MethodGet, path: base + "/availability?amount=lots"}, wantStatus: http.StatusBadRequest},
		{name: "Reconcile", args: args{method: http.MethodGet, path: base + "/reconcile"}, wantStatus: http.StatusOK, wantBody: `"balanced":true`},
		{name: "Debit", args: args{method: http.MethodPost, path: base + "/debit", body: `{"amount":5000}`}, wantStatus: http.StatusOK},
		{name: "DebitTooMuch", args: args{method: http.MethodPost, path: base + "/debit", body: `{"amount":95000}`}, wantStatus: http.StatusUnprocessableEntity},
		{name: "Credit", args: args{method: http.MethodPost, path: base + "/credit", body: `{"amount":5000,"description":"Payment received"}`}, wantStatus: http.StatusOK},
		{name: "CreditMalformed", args: args{method: http.MethodPost, path: base + "/credit", body: `{`}, wantStatus: http.StatusBadRequest},
		{name: "Suspend", args: args{method: http.MethodPost, path: base + "/suspend"}, wantStatus: http.StatusOK},
		{name: "SuspendTwice", args: args{method: http.MethodPost, path: base + "/suspend"}, suspended: true, wantStatus: http.StatusConflict},
		{name: "DebitSuspended", args: args{method: http.MethodPost, path: base + "/debit", body: `{"amount":1}`}, svcErr: account.ErrSuspended, wantStatus: http.StatusConflict},
		{name: "Activate", args: args{method: http.MethodPost, path: base + "/activate"}, wantStatus: http.StatusOK},
		{name: "Limit", args: args{method: http.MethodPatch, path: base + "/limit", body: `{"credit_limit":200000}`}, wantStatus: http.StatusOK},
		{name: "NegativeLimit", args: args{method: http.MethodPatch, path: base + "/limit", body: `{"credit_limit":-1}`}, wantStatus: http.StatusBadRequest},
		{name: "StoreDown", args: args{method: http.MethodGet, path: base}, svcErr: fmt.Errorf("boom"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newService()
			svc.err = tt.svcErr

			if tt.suspended {
				svc.acc.Status = account.StatusSuspended
			}

			rec := serve(svc, tt.args.method, tt.args.path, tt.args.body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			if tt.wantBody != "" {
				assert.Contains(t, rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestHandler_LedgerActor(t *testing.T) {
	svc := newService()

	rec := serve(svc, http.MethodPost, "/"+accountID.String()+"/credit", `{"amount":2500,"booking_ref":"MIAD-261016-AAAAAA"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, account.LedgerParams{
		AccountID:  accountID,
		Amount:     2500,
		BookingRef: "MIAD-261016-AAAAAA",
		Actor:      "admin:grace@example.com",
	}, svc.gotLedger)
}
