package auth_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/MrJamesThe3rd/medtrain/internal/auth"
	"github.com/MrJamesThe3rd/medtrain/internal/notification"
)

var secret = []byte("test-secret")

// memStore is an in-memory ChallengeStore and SessionStore.
type memStore struct {
	mu         sync.Mutex
	challenges map[string]*auth.Challenge
	sessions   map[string]string
}

func newMemStore() *memStore {
	return &memStore{challenges: map[string]*auth.Challenge{}, sessions: map[string]string{}}
}

func (m *memStore) SaveChallenge(_ context.Context, key string, c *auth.Challenge, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *c
	m.challenges[key] = &cp

	return nil
}

func (m *memStore) GetChallenge(_ context.Context, key string) (*auth.Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.challenges[key]
	if !ok {
		return nil, auth.ErrNotFound
	}

	cp := *c

	return &cp, nil
}

func (m *memStore) IncrementAttempts(_ context.Context, key string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.challenges[key]
	if !ok {
		return 0, auth.ErrNotFound
	}

	c.Attempts++

	return c.Attempts, nil
}

func (m *memStore) DeleteChallenge(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.challenges, key)

	return nil
}

func (m *memStore) SetCurrent(_ context.Context, subject, tokenID string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[subject] = tokenID

	return nil
}

func (m *memStore) Current(_ context.Context, subject string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.sessions[subject]
	if !ok {
		return "", auth.ErrNotFound
	}

	return id, nil
}

func (m *memStore) DeleteCurrent(_ context.Context, subject string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, subject)

	return nil
}

// codeBox captures the last code handed to the sender.
type codeBox struct {
	email string
	code  string
}

type fixture struct {
	store  *memStore
	admins *auth.MockAdminRepository
	codes  *auth.MockCodeSender
	box    *codeBox
	svc    *auth.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ctrl := gomock.NewController(t)
	f := &fixture{
		store:  newMemStore(),
		admins: auth.NewMockAdminRepository(ctrl),
		codes:  auth.NewMockCodeSender(ctrl),
		box:    &codeBox{},
	}

	f.svc = auth.NewService(f.store, f.store, f.admins, f.codes, auth.Config{Secret: secret})

	return f
}

func (f *fixture) captureCodes() {
	f.codes.EXPECT().SendLoginCode(gomock.Any(), gomock.Any(), gomock.Any(), 10*time.Minute).
		DoAndReturn(func(_ context.Context, email, code string, _ time.Duration) (notification.Result, error) {
			f.box.email = email
			f.box.code = code

			return notification.Result{Success: true, MessageID: "m"}, nil
		}).AnyTimes()
}

func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}

	return "000000"
}

func TestService_CustomerLogin(t *testing.T) {
	f := newFixture(t)
	f.captureCodes()
	ctx := context.Background()

	pending, err := f.svc.RequestCustomerCode(ctx, "  Ada@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", pending.Subject)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), pending.ExpiresAt, 5*time.Second)

	assert.Equal(t, "ada@example.com", f.box.email)
	assert.Regexp(t, `^\d{6}$`, f.box.code)

	sess, err := f.svc.VerifyCustomerCode(ctx, "ADA@example.com", f.box.code)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleCustomer, sess.Role)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), sess.ExpiresAt, 5*time.Second)

	claims, err := f.svc.Authenticate(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", claims.Subject)
	assert.Equal(t, "ada@example.com", claims.Email)

	sub, err := claims.GetSubject()
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", sub, "the token carries the registered sub claim")
	assert.Equal(t, auth.RoleCustomer, claims.Role)

	_, err = f.svc.VerifyCustomerCode(ctx, "ada@example.com", f.box.code)
	assert.ErrorIs(t, err, auth.ErrChallengeExpired, "a code is single use")
}

func TestService_VerifyCustomerCode_Attempts(t *testing.T) {
	f := newFixture(t)
	f.captureCodes()
	ctx := context.Background()

	_, err := f.svc.RequestCustomerCode(ctx, "ada@example.com")
	require.NoError(t, err)

	bad := wrongCode(f.box.code)

	for range 4 {
		_, err = f.svc.VerifyCustomerCode(ctx, "ada@example.com", bad)
		assert.ErrorIs(t, err, auth.ErrInvalidCode)
	}

	_, err = f.svc.VerifyCustomerCode(ctx, "ada@example.com", bad)
	assert.ErrorIs(t, err, auth.ErrTooManyAttempts)

	_, err = f.svc.VerifyCustomerCode(ctx, "ada@example.com", f.box.code)
	assert.ErrorIs(t, err, auth.ErrChallengeExpired, "challenge must be restarted")

	_, err = f.svc.RequestCustomerCode(ctx, "ada@example.com")
	require.NoError(t, err)

	_, err = f.svc.VerifyCustomerCode(ctx, "ada@example.com", f.box.code)
	assert.NoError(t, err)
}

func TestService_VerifyCustomerCode_Expired(t *testing.T) {
	f := newFixture(t)
	f.captureCodes()
	ctx := context.Background()

	_, err := f.svc.RequestCustomerCode(ctx, "ada@example.com")
	require.NoError(t, err)

	f.store.challenges["customer:ada@example.com"].ExpiresAt = time.Now().Add(-time.Second)

	_, err = f.svc.VerifyCustomerCode(ctx, "ada@example.com", f.box.code)
	assert.ErrorIs(t, err, auth.ErrChallengeExpired)
	assert.Empty(t, f.store.challenges)
}

func TestService_RequestCustomerCode_Failures(t *testing.T) {
	t.Run("InvalidEmail", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.svc.RequestCustomerCode(context.Background(), "not-an-email")
		assert.ErrorIs(t, err, auth.ErrInvalidEmail)
	})

	t.Run("SendFails", func(t *testing.T) {
		f := newFixture(t)
		f.codes.EXPECT().SendLoginCode(gomock.Any(), "ada@example.com", gomock.Any(), gomock.Any()).
			Return(notification.Result{}, errors.New("smtp down"))

		_, err := f.svc.RequestCustomerCode(context.Background(), "ada@example.com")
		assert.ErrorContains(t, err, "sending code")
		assert.Empty(t, f.store.challenges)
	})
}

func TestService_AdminLogin(t *testing.T) {
	f := newFixture(t)
	f.captureCodes()
	ctx := context.Background()

	var stored *auth.Admin

	f.admins.EXPECT().CreateAdmin(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, a *auth.Admin) error {
		stored = a
		return nil
	})

	admin, err := f.svc.CreateAdmin(ctx, " grace ", "Grace@Example.com", "correct horse battery")
	require.NoError(t, err)
	assert.Equal(t, "grace", admin.Username)
	assert.Equal(t, "grace@example.com", admin.Email)
	assert.NotEqual(t, "correct horse battery", admin.PasswordHash)

	f.admins.EXPECT().AdminByUsername(gomock.Any(), "grace").Return(stored, nil).Times(2)
	f.admins.EXPECT().AdminByUsername(gomock.Any(), "nobody").Return(nil, auth.ErrNotFound)
	f.admins.EXPECT().AdminByID(gomock.Any(), admin.ID).Return(stored, nil)

	_, err = f.svc.AdminLogin(ctx, "grace", "wrong password")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = f.svc.AdminLogin(ctx, "nobody", "correct horse battery")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	pending, err := f.svc.AdminLogin(ctx, "grace", "correct horse battery")
	require.NoError(t, err)
	assert.Equal(t, admin.ID.String(), pending.Subject)
	assert.Equal(t, "grace@example.com", f.box.email)

	sess, err := f.svc.VerifyAdminCode(ctx, admin.ID, f.box.code)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, sess.Role)
	assert.WithinDuration(t, time.Now().Add(8*time.Hour), sess.ExpiresAt, 5*time.Second)

	claims, err := f.svc.Authenticate(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, claims.Role)
	assert.Equal(t, admin.ID.String(), claims.Subject)

	sub, err := claims.GetSubject()
	require.NoError(t, err)
	assert.Equal(t, admin.ID.String(), sub)
}

func TestService_CreateAdmin_Rejects(t *testing.T) {
	type args struct {
		username string
		email    string
		password string
	}

	type testCase struct {
		name    string
		args    args
		wantErr error
	}

	tests := []testCase{
		{name: "NoUsername", args: args{username: " ", email: "a@example.com", password: "long enough password"}, wantErr: auth.ErrInvalidCredentials},
		{name: "BadEmail", args: args{username: "a", email: "nope", password: "long enough password"}, wantErr: auth.ErrInvalidEmail},
		{name: "ShortPassword", args: args{username: "a", email: "a@example.com", password: "short"}, wantErr: auth.ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			_, err := f.svc.CreateAdmin(context.Background(), tt.args.username, tt.args.email, tt.args.password)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestService_OneSessionPerIdentity(t *testing.T) {
	f := newFixture(t)
	f.captureCodes()
	ctx := context.Background()

	login := func() *auth.Session {
		_, err := f.svc.RequestCustomerCode(ctx, "ada@example.com")
		require.NoError(t, err)

		sess, err := f.svc.VerifyCustomerCode(ctx, "ada@example.com", f.box.code)
		require.NoError(t, err)

		return sess
	}

	first := login()
	second := login()

	_, err := f.svc.Authenticate(ctx, first.Token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken, "a new login replaces the previous session")

	claims, err := f.svc.Authenticate(ctx, second.Token)
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, claims))

	_, err = f.svc.Authenticate(ctx, second.Token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestService_Authenticate_Rejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sign := func(key any, method jwt.SigningMethod, expires time.Time) string {
		claims := auth.Claims{
			Role: auth.RoleCustomer,
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        "tok",
				Subject:   "ada@example.com",
				ExpiresAt: jwt.NewNumericDate(expires),
			},
		}

		token, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)

		return token
	}

	f.store.sessions["ada@example.com"] = "tok"

	valid := sign(secret, jwt.SigningMethodHS256, time.Now().Add(time.Hour))
	_, err := f.svc.Authenticate(ctx, valid)
	require.NoError(t, err)

	tests := map[string]string{
		"OtherSecret": sign([]byte("other"), jwt.SigningMethodHS256, time.Now().Add(time.Hour)),
		"OtherMethod": sign(secret, jwt.SigningMethodHS512, time.Now().Add(time.Hour)),
		"Expired":     sign(secret, jwt.SigningMethodHS256, time.Now().Add(-time.Minute)),
		"Garbage":     "not.a.token",
		"Unsigned":    sign(jwt.UnsafeAllowNoneSignatureType, jwt.SigningMethodNone, time.Now().Add(time.Hour)),
	}

	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Authenticate(ctx, token)
			assert.ErrorIs(t, err, auth.ErrInvalidToken)
		})
	}

	delete(f.store.sessions, "ada@example.com")

	_, err = f.svc.Authenticate(ctx, valid)
	assert.ErrorIs(t, err, auth.ErrInvalidToken, "token without a current session")
}

func TestService_Authenticate_RequiresSubject(t *testing.T) {
	f := newFixture(t)

	claims := auth.Claims{
		Role:  auth.RoleCustomer,
		Email: "ada@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "tok",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)

	f.store.sessions[""] = "tok"

	_, err = f.svc.Authenticate(context.Background(), token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestService_VerifyAdminCode_UnknownAdmin(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.VerifyAdminCode(context.Background(), uuid.New(), "123456")
	assert.ErrorIs(t, err, auth.ErrChallengeExpired)
}
