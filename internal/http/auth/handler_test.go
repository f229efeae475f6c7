package auth_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/medtrain/internal/auth"
	authhttp "github.com/MrJamesThe3rd/medtrain/internal/http/auth"
	"github.com/MrJamesThe3rd/medtrain/internal/http/guard"
)

type fakeService struct {
	verifyErr  error
	loggedOut  string
	lastEmail  string
	lastAdmin  uuid.UUID
	requestErr error
}

func (f *fakeService) RequestCustomerCode(_ context.Context, email string) (*auth.PendingChallenge, error) {
	f.lastEmail = email
	if f.requestErr != nil {
		return nil, f.requestErr
	}

	return &auth.PendingChallenge{Subject: email, ExpiresAt: time.Now().Add(10 * time.Minute)}, nil
}

func (f *fakeService) VerifyCustomerCode(_ context.Context, email, _ string) (*auth.Session, error) {
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}

	return &auth.Session{Token: "tok-" + email, Role: auth.RoleCustomer}, nil
}

func (f *fakeService) AdminLogin(context.Context, string, string) (*auth.PendingChallenge, error) {
	return nil, auth.ErrInvalidCredentials
}

func (f *fakeService) VerifyAdminCode(_ context.Context, id uuid.UUID, _ string) (*auth.Session, error) {
	f.lastAdmin = id
	return &auth.Session{Token: "admin-tok", Role: auth.RoleAdmin}, nil
}

func (f *fakeService) Logout(_ context.Context, c *auth.Claims) error {
	f.loggedOut = c.Subject
	return nil
}

// fakeAuthn lets every request through as a fixed customer.
func fakeAuthn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := &auth.Claims{Role: auth.RoleCustomer, RegisteredClaims: jwt.RegisteredClaims{Subject: "ada@example.com"}}
		next.ServeHTTP(w, r.WithContext(guard.WithClaims(r.Context(), c)))
	})
}

func newRouter(svc *fakeService) http.Handler {
	r := chi.NewRouter()
	authhttp.NewHandler(svc).Routes(r, fakeAuthn)

	return r
}

func do(h http.Handler, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)))

	return rec
}

func TestHandler_CustomerFlow(t *testing.T) {
	svc := &fakeService{}
	h := newRouter(svc)

	rec := do(h, "/customer/code", `{"email":"ada@example.com"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "ada@example.com", svc.lastEmail)

	rec = do(h, "/customer/verify", `{"email":"ada@example.com","code":"123456"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var sess auth.Session
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&sess))
	assert.Equal(t, "tok-ada@example.com", sess.Token)
	assert.Equal(t, auth.RoleCustomer, sess.Role)
}

func TestHandler_Errors(t *testing.T) {
	type testCase struct {
		name       string
		svc        *fakeService
		path       string
		body       string
		wantStatus int
	}

	tests := []testCase{
		{name: "MalformedJSON", svc: &fakeService{}, path: "/customer/code", body: `{`, wantStatus: http.StatusBadRequest},
		{name: "InvalidEmail", svc: &fakeService{requestErr: auth.ErrInvalidEmail}, path: "/customer/code", body: `{}`, wantStatus: http.StatusBadRequest},
		{name: "TooManyAttempts", svc: &fakeService{verifyErr: auth.ErrTooManyAttempts}, path: "/customer/verify", body: `{}`, wantStatus: http.StatusUnauthorized},
		{name: "Expired", svc: &fakeService{verifyErr: auth.ErrChallengeExpired}, path: "/customer/verify", body: `{}`, wantStatus: http.StatusUnauthorized},
		{name: "StoreDown", svc: &fakeService{verifyErr: errors.New("redis down")}, path: "/customer/verify", body: `{}`, wantStatus: http.StatusInternalServerError},
		{name: "BadPassword", svc: &fakeService{}, path: "/admin/login", body: `{"username":"a","password":"b"}`, wantStatus: http.StatusUnauthorized},
		{name: "BadAdminID", svc: &fakeService{}, path: "/admin/verify", body: `{"admin_id":"x","code":"1"}`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(newRouter(tt.svc), tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestHandler_AdminVerifyAndLogout(t *testing.T) {
	svc := &fakeService{}
	h := newRouter(svc)
	id := uuid.New()

	rec := do(h, "/admin/verify", `{"admin_id":"`+id.String()+`","code":"123456"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, svc.lastAdmin)

	rec = do(h, "/logout", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "ada@example.com", svc.loggedOut)
}
