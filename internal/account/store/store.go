package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/medtrain/internal/account"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// Expected column order: id, account_number, organisation_name, contact_email, credit_limit,
// current_balance, available_credit, status, created_at, created_by, updated_at
const selectAccountColumns = `
	id, account_number, organisation_name, contact_email, credit_limit,
	current_balance, available_credit, status, created_at, created_by, updated_at
`

func scanAccount(s scanner) (*account.Account, error) {
	var acc account.Account

	var status string

	if err := s.Scan(
		&acc.ID, &acc.AccountNumber, &acc.OrganisationName, &acc.ContactEmail, &acc.CreditLimit,
		&acc.CurrentBalance, &acc.AvailableCredit, &status, &acc.CreatedAt, &acc.CreatedBy, &acc.UpdatedAt,
	); err != nil {
		return nil, err
	}

	acc.Status = account.Status(status)

	return &acc, nil
}

func numberLockKey(prefix string) int64 {
	h := fnv.New64a()
	h.Write([]byte("account-number"))
	h.Write([]byte{0})
	h.Write([]byte(prefix))

	return int64(h.Sum64())
}

// CreateAccount assigns the next account number for the prefix. The advisory
// lock serialises concurrent creations sharing a prefix.
func (s *Store) CreateAccount(ctx context.Context, acc *account.Account, numberPrefix string) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer dbTx.Rollback()

	if _, err := dbTx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", numberLockKey(numberPrefix)); err != nil {
		return fmt.Errorf("acquiring account number lock: %w", err)
	}

	var count int
	if err := dbTx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM customer_accounts WHERE account_number LIKE $1 || '-%'`,
		numberPrefix,
	).Scan(&count); err != nil {
		return fmt.Errorf("counting account numbers: %w", err)
	}

	acc.AccountNumber = fmt.Sprintf("%s-%04d", numberPrefix, count+1)

	query := `
		INSERT INTO customer_accounts (account_number, organisation_name, contact_email, credit_limit,
			current_balance, available_credit, status, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`

	err = dbTx.QueryRowContext(ctx, query,
		acc.AccountNumber,
		acc.OrganisationName,
		acc.ContactEmail,
		acc.CreditLimit,
		acc.CurrentBalance,
		acc.AvailableCredit,
		acc.Status,
		acc.CreatedBy,
	).Scan(&acc.ID, &acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating account: %w", err)
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	query := `SELECT ` + selectAccountColumns + ` FROM customer_accounts WHERE id = $1`

	acc, err := scanAccount(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, account.ErrNotFound
		}

		return nil, fmt.Errorf("getting account: %w", err)
	}

	return acc, nil
}

func (s *Store) ListAccounts(ctx context.Context, filter account.ListFilter) ([]*account.Account, error) {
	query := `SELECT ` + selectAccountColumns + ` FROM customer_accounts WHERE TRUE`

	var args []any

	argIdx := 1

	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIdx)

		args = append(args, *filter.Status)
		argIdx++
	}

	if filter.Search != "" {
		query += fmt.Sprintf(" AND (organisation_name ILIKE '%%' || $%d || '%%' OR account_number ILIKE $%d || '%%')", argIdx, argIdx)

		args = append(args, filter.Search)
		argIdx++
	}

	query += " ORDER BY organisation_name ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*account.Account

	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning account: %w", err)
		}

		accounts = append(accounts, acc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating account rows: %w", err)
	}

	return accounts, nil
}

func (s *Store) ListTransactions(ctx context.Context, accountID uuid.UUID) ([]*account.Transaction, error) {
	query := `
		SELECT id, account_id, type, amount, booking_ref, description, created_at, created_by
		FROM account_transactions
		WHERE account_id = $1
		ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	defer rows.Close()

	var txs []*account.Transaction

	for rows.Next() {
		var (
			tx     account.Transaction
			txType string
		)

		if err := rows.Scan(
			&tx.ID, &tx.AccountID, &txType, &tx.Amount, &tx.BookingRef,
			&tx.Description, &tx.CreatedAt, &tx.CreatedBy,
		); err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}

		tx.Type = account.TxType(txType)
		txs = append(txs, &tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transaction rows: %w", err)
	}

	return txs, nil
}

type ledgerTx struct {
	tx  *sql.Tx
	acc *account.Account
	// owned is false when the transaction belongs to another store; Commit
	// and Rollback are then left to that owner.
	owned bool
}

// BeginLedger opens a transaction and locks the account row with FOR UPDATE.
func (s *Store) BeginLedger(ctx context.Context, accountID uuid.UUID) (account.LedgerTx, error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning ledger tx: %w", err)
	}

	acc, err := lockAccount(ctx, dbTx, accountID)
	if err != nil {
		dbTx.Rollback()
		return nil, err
	}

	return &ledgerTx{tx: dbTx, acc: acc, owned: true}, nil
}

// JoinLedger locks the account row inside an existing transaction, so a
// caller already holding a connection never needs a second one.
func JoinLedger(ctx context.Context, dbTx *sql.Tx, accountID uuid.UUID) (account.LedgerTx, error) {
	acc, err := lockAccount(ctx, dbTx, accountID)
	if err != nil {
		return nil, err
	}

	return &ledgerTx{tx: dbTx, acc: acc}, nil
}

func lockAccount(ctx context.Context, dbTx *sql.Tx, accountID uuid.UUID) (*account.Account, error) {
	query := `SELECT ` + selectAccountColumns + ` FROM customer_accounts WHERE id = $1 FOR UPDATE`

	acc, err := scanAccount(dbTx.QueryRowContext(ctx, query, accountID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, account.ErrNotFound
		}

		return nil, fmt.Errorf("locking account: %w", err)
	}

	return acc, nil
}

func (l *ledgerTx) Account() *account.Account { return l.acc }

func (l *ledgerTx) Commit() error {
	if !l.owned {
		return nil
	}

	return l.tx.Commit()
}

func (l *ledgerTx) Rollback() error {
	if !l.owned {
		return nil
	}

	return l.tx.Rollback()
}

func (l *ledgerTx) SaveAccount(ctx context.Context, acc *account.Account) error {
	query := `
		UPDATE customer_accounts
		SET credit_limit = $1, current_balance = $2, available_credit = $3, status = $4, updated_at = $5
		WHERE id = $6
	`

	_, err := l.tx.ExecContext(ctx, query,
		acc.CreditLimit,
		acc.CurrentBalance,
		acc.AvailableCredit,
		acc.Status,
		acc.UpdatedAt,
		acc.ID,
	)
	if err != nil {
		return fmt.Errorf("updating account: %w", err)
	}

	l.acc = acc

	return nil
}

func (l *ledgerTx) AppendTransaction(ctx context.Context, tx *account.Transaction) error {
	query := `
		INSERT INTO account_transactions (account_id, type, amount, booking_ref, description, created_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	err := l.tx.QueryRowContext(ctx, query,
		tx.AccountID,
		tx.Type,
		tx.Amount,
		tx.BookingRef,
		tx.Description,
		tx.CreatedAt,
		tx.CreatedBy,
	).Scan(&tx.ID)
	if err != nil {
		return fmt.Errorf("inserting transaction: %w", err)
	}

	return nil
}
