package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MrJamesThe3rd/medtrain/internal/auth"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const selectAdminColumns = `id, username, email, password_hash, created_at`

func (s *Store) CreateAdmin(ctx context.Context, a *auth.Admin) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO admin_users (id, username, email, password_hash, created_at) VALUES ($1, $2, $3, $4, $5)`,
		a.ID, a.Username, a.Email, a.PasswordHash, a.CreatedAt,
	)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return auth.ErrUsernameTaken
	}

	if err != nil {
		return fmt.Errorf("inserting admin: %w", err)
	}

	return nil
}

func (s *Store) AdminByUsername(ctx context.Context, username string) (*auth.Admin, error) {
	return s.getBy(ctx, "username", username)
}

func (s *Store) AdminByID(ctx context.Context, id uuid.UUID) (*auth.Admin, error) {
	return s.getBy(ctx, "id", id)
}

func (s *Store) getBy(ctx context.Context, column string, value any) (*auth.Admin, error) {
	var a auth.Admin

	err := s.db.QueryRowContext(ctx,
		`SELECT `+selectAdminColumns+` FROM admin_users WHERE `+column+` = $1`, value,
	).Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("querying admin: %w", err)
	}

	return &a, nil
}
