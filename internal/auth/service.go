package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/MrJamesThe3rd/medtrain/internal/notification"
)

const codeDigits = 6

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=auth
type ChallengeStore interface {
	SaveChallenge(ctx context.Context, key string, c *Challenge, ttl time.Duration) error
	GetChallenge(ctx context.Context, key string) (*Challenge, error)
	IncrementAttempts(ctx context.Context, key string) (int, error)
	DeleteChallenge(ctx context.Context, key string) error
}

// SessionStore keeps the id of the one current token per subject.
type SessionStore interface {
	SetCurrent(ctx context.Context, subject string, tokenID string, ttl time.Duration) error
	Current(ctx context.Context, subject string) (string, error)
	DeleteCurrent(ctx context.Context, subject string) error
}

type AdminRepository interface {
	CreateAdmin(ctx context.Context, a *Admin) error
	AdminByUsername(ctx context.Context, username string) (*Admin, error)
	AdminByID(ctx context.Context, id uuid.UUID) (*Admin, error)
}

type CodeSender interface {
	SendLoginCode(ctx context.Context, email string, code string, ttl time.Duration) (notification.Result, error)
}

type Config struct {
	Secret      []byte
	CustomerTTL time.Duration
	AdminTTL    time.Duration
	CodeTTL     time.Duration
	MaxAttempts int
}

type Service struct {
	challenges ChallengeStore
	sessions   SessionStore
	admins     AdminRepository
	codes      CodeSender
	cfg        Config
	validate   *validator.Validate
	now        func() time.Time
}

func NewService(challenges ChallengeStore, sessions SessionStore, admins AdminRepository, codes CodeSender, cfg Config) *Service {
	if cfg.CustomerTTL <= 0 {
		cfg.CustomerTTL = 24 * time.Hour
	}

	if cfg.AdminTTL <= 0 {
		cfg.AdminTTL = 8 * time.Hour
	}

	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = 10 * time.Minute
	}

	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}

	return &Service{
		challenges: challenges,
		sessions:   sessions,
		admins:     admins,
		codes:      codes,
		cfg:        cfg,
		validate:   validator.New(),
		now:        time.Now,
	}
}

func customerKey(email string) string { return "customer:" + email }

func adminKey(id uuid.UUID) string { return "admin:" + id.String() }

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// RequestCustomerCode starts a customer login by mailing a one-time code.
// A new request replaces any pending challenge for the same email.
func (s *Service) RequestCustomerCode(ctx context.Context, email string) (*PendingChallenge, error) {
	email = normaliseEmail(email)
	if err := s.validate.Var(email, "required,email"); err != nil {
		return nil, ErrInvalidEmail
	}

	expiresAt, err := s.issueChallenge(ctx, customerKey(email), email)
	if err != nil {
		return nil, err
	}

	return &PendingChallenge{Subject: email, ExpiresAt: expiresAt}, nil
}

func (s *Service) VerifyCustomerCode(ctx context.Context, email, code string) (*Session, error) {
	email = normaliseEmail(email)

	if err := s.verify(ctx, customerKey(email), code); err != nil {
		return nil, err
	}

	return s.issueSession(ctx, email, RoleCustomer, email, s.cfg.CustomerTTL)
}

// AdminLogin checks the password and mails the second factor code to the
// admin's address.
func (s *Service) AdminLogin(ctx context.Context, username, password string) (*PendingChallenge, error) {
	admin, err := s.admins.AdminByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}

	if err != nil {
		return nil, fmt.Errorf("getting admin: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	expiresAt, err := s.issueChallenge(ctx, adminKey(admin.ID), admin.Email)
	if err != nil {
		return nil, err
	}

	return &PendingChallenge{Subject: admin.ID.String(), ExpiresAt: expiresAt}, nil
}

func (s *Service) VerifyAdminCode(ctx context.Context, adminID uuid.UUID, code string) (*Session, error) {
	if err := s.verify(ctx, adminKey(adminID), code); err != nil {
		return nil, err
	}

	admin, err := s.admins.AdminByID(ctx, adminID)
	if err != nil {
		return nil, fmt.Errorf("getting admin: %w", err)
	}

	return s.issueSession(ctx, admin.ID.String(), RoleAdmin, admin.Email, s.cfg.AdminTTL)
}

// Authenticate validates the token signature and expiry and that it is still
// the current session of its subject.
func (s *Service) Authenticate(ctx context.Context, token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return s.cfg.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	current, err := s.sessions.Current(ctx, claims.Subject)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidToken
	}

	if err != nil {
		return nil, fmt.Errorf("getting current session: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(current), []byte(claims.ID)) != 1 {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func (s *Service) Logout(ctx context.Context, claims *Claims) error {
	if err := s.sessions.DeleteCurrent(ctx, claims.Subject); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}

	return nil
}

func (s *Service) CreateAdmin(ctx context.Context, username, email, password string) (*Admin, error) {
	username = strings.TrimSpace(username)
	email = normaliseEmail(email)

	if username == "" {
		return nil, ErrInvalidCredentials
	}

	if err := s.validate.Var(email, "required,email"); err != nil {
		return nil, ErrInvalidEmail
	}

	if len(password) < 12 {
		return nil, fmt.Errorf("%w: password must be at least 12 characters", ErrInvalidCredentials)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	admin := &Admin{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}

	if err := s.admins.CreateAdmin(ctx, admin); err != nil {
		return nil, fmt.Errorf("creating admin: %w", err)
	}

	return admin, nil
}

func (s *Service) issueChallenge(ctx context.Context, key, email string) (time.Time, error) {
	code, err := newCode()
	if err != nil {
		return time.Time{}, fmt.Errorf("generating code: %w", err)
	}

	expiresAt := s.now().Add(s.cfg.CodeTTL)

	if err := s.challenges.SaveChallenge(ctx, key, &Challenge{
		CodeHash:  hashCode(code),
		ExpiresAt: expiresAt,
	}, s.cfg.CodeTTL); err != nil {
		return time.Time{}, fmt.Errorf("saving challenge: %w", err)
	}

	if _, err := s.codes.SendLoginCode(ctx, email, code, s.cfg.CodeTTL); err != nil {
		_ = s.challenges.DeleteChallenge(context.WithoutCancel(ctx), key)
		return time.Time{}, fmt.Errorf("sending code: %w", err)
	}

	return expiresAt, nil
}

// verify consumes the challenge on success. Expiry or running out of attempts
// also removes it, so the caller has to start over.
func (s *Service) verify(ctx context.Context, key, code string) error {
	c, err := s.challenges.GetChallenge(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return ErrChallengeExpired
	}

	if err != nil {
		return fmt.Errorf("getting challenge: %w", err)
	}

	if !s.now().Before(c.ExpiresAt) {
		s.dropChallenge(ctx, key)
		return ErrChallengeExpired
	}

	if c.Attempts >= s.cfg.MaxAttempts {
		s.dropChallenge(ctx, key)
		return ErrTooManyAttempts
	}

	if subtle.ConstantTimeCompare([]byte(hashCode(strings.TrimSpace(code))), []byte(c.CodeHash)) == 1 {
		s.dropChallenge(ctx, key)
		return nil
	}

	attempts, err := s.challenges.IncrementAttempts(ctx, key)
	if err != nil {
		return fmt.Errorf("recording attempt: %w", err)
	}

	if attempts >= s.cfg.MaxAttempts {
		s.dropChallenge(ctx, key)
		return ErrTooManyAttempts
	}

	return ErrInvalidCode
}

func (s *Service) dropChallenge(ctx context.Context, key string) {
	if err := s.challenges.DeleteChallenge(ctx, key); err != nil {
		slog.Warn("failed to delete challenge", "key", key, "error", err)
	}
}

func (s *Service) issueSession(ctx context.Context, sub string, role Role, email string, ttl time.Duration) (*Session, error) {
	now := s.now()
	expiresAt := now.Add(ttl)

	claims := Claims{
		Role:  role,
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.Secret)
	if err != nil {
		return nil, fmt.Errorf("signing token: %w", err)
	}

	if err := s.sessions.SetCurrent(ctx, sub, claims.ID, ttl); err != nil {
		return nil, fmt.Errorf("saving session: %w", err)
	}

	return &Session{Token: token, ExpiresAt: expiresAt, Role: role}, nil
}

func newCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}

func hashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}
