package guard_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"

	"github.com/MrJamesThe3rd/medtrain/internal/auth"
	"github.com/MrJamesThe3rd/medtrain/internal/http/guard"
)

type fakeAuth map[string]*auth.Claims

func (f fakeAuth) Authenticate(_ context.Context, token string) (*auth.Claims, error) {
	c, ok := f[token]
	if !ok {
		return nil, errors.New("unknown token")
	}

	return c, nil
}

func TestAuthenticateAndRequireRole(t *testing.T) {
	sessions := fakeAuth{
		"cust":  {Email: "ada@example.com", Role: auth.RoleCustomer, RegisteredClaims: jwt.RegisteredClaims{Subject: "ada@example.com"}},
		"admin": {Email: "grace@example.com", Role: auth.RoleAdmin, RegisteredClaims: jwt.RegisteredClaims{Subject: "42"}},
	}

	var actor string

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor = guard.Actor(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	h := guard.Authenticate(sessions)(guard.RequireRole(auth.RoleAdmin)(ok))

	type testCase struct {
		name       string
		header     string
		wantStatus int
		wantActor  string
	}

	tests := []testCase{
		{name: "NoHeader", wantStatus: http.StatusUnauthorized},
		{name: "NotBearer", header: "Basic abc", wantStatus: http.StatusUnauthorized},
		{name: "UnknownToken", header: "Bearer nope", wantStatus: http.StatusUnauthorized},
		{name: "WrongRole", header: "Bearer cust", wantStatus: http.StatusForbidden},
		{name: "Admin", header: "Bearer admin", wantStatus: http.StatusNoContent, wantActor: "admin:grace@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actor = ""

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantActor, actor)
		})
	}
}

func TestRequireRole_WithoutClaims(t *testing.T) {
	h := guard.RequireRole(auth.RoleCustomer)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIdentify(t *testing.T) {
	sessions := fakeAuth{"admin": {Email: "grace@example.com", Role: auth.RoleAdmin, RegisteredClaims: jwt.RegisteredClaims{Subject: "42"}}}

	var admin bool

	h := guard.Identify(sessions)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		admin = guard.IsAdmin(r.Context())
	}))

	type testCase struct {
		name      string
		header    string
		wantAdmin bool
	}

	tests := []testCase{
		{name: "Anonymous"},
		{name: "StaleToken", header: "Bearer gone"},
		{name: "Admin", header: "Bearer admin", wantAdmin: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			admin = false

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.wantAdmin, admin)
		})
	}
}
