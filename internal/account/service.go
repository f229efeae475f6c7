package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=account
type Repository interface {
	CreateAccount(ctx context.Context, acc *Account, numberPrefix string) error
	GetAccount(ctx context.Context, id uuid.UUID) (*Account, error)
	ListAccounts(ctx context.Context, filter ListFilter) ([]*Account, error)
	ListTransactions(ctx context.Context, accountID uuid.UUID) ([]*Transaction, error)

	BeginLedger(ctx context.Context, accountID uuid.UUID) (LedgerTx, error)
}

// LedgerTx holds an exclusive lock on one account until Commit or Rollback.
// Every balance change goes through it so a credit check and the debit that
// follows it cannot interleave with another writer.
type LedgerTx interface {
	Account() *Account
	SaveAccount(ctx context.Context, acc *Account) error
	AppendTransaction(ctx context.Context, tx *Transaction) error
	Commit() error
	Rollback() error
}

type Service struct {
	repo     Repository
	validate *validator.Validate
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, validate: validator.New()}
}

type ListFilter struct {
	Status *Status
	Search string
}

type CreateParams struct {
	OrganisationName string `validate:"required"`
	ContactEmail     string `validate:"omitempty,email"`
	CreditLimit      int64  `validate:"gte=0"`
	Actor            string
}

func (s *Service) Create(ctx context.Context, params CreateParams) (*Account, error) {
	params.OrganisationName = strings.TrimSpace(params.OrganisationName)
	params.ContactEmail = strings.TrimSpace(params.ContactEmail)

	if params.OrganisationName == "" {
		return nil, ErrInvalidName
	}

	if params.CreditLimit < 0 {
		return nil, ErrInvalidLimit
	}

	if err := s.validate.Struct(params); err != nil {
		return nil, fmt.Errorf("validating account: %w", err)
	}

	acc := &Account{
		OrganisationName: params.OrganisationName,
		ContactEmail:     params.ContactEmail,
		CreditLimit:      params.CreditLimit,
		CurrentBalance:   0,
		AvailableCredit:  params.CreditLimit,
		Status:           StatusActive,
		CreatedBy:        params.Actor,
	}

	if err := s.repo.CreateAccount(ctx, acc, NumberPrefix(params.OrganisationName)); err != nil {
		return nil, err
	}

	return acc, nil
}

// NumberPrefix derives the account number prefix from the organisation name:
// its first six letters or digits, upper-cased.
func NumberPrefix(organisation string) string {
	var sb strings.Builder

	for _, r := range organisation {
		if sb.Len() == 6 {
			break
		}

		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			continue
		}

		sb.WriteRune(unicode.ToUpper(r))
	}

	if sb.Len() == 0 {
		return "ACCT"
	}

	return sb.String()
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Account, error) {
	return s.repo.GetAccount(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Account, error) {
	return s.repo.ListAccounts(ctx, filter)
}

func (s *Service) Transactions(ctx context.Context, id uuid.UUID) ([]*Transaction, error) {
	if _, err := s.repo.GetAccount(ctx, id); err != nil {
		return nil, err
	}

	return s.repo.ListTransactions(ctx, id)
}

// Availability is the outcome of a credit check. It never carries an error for
// business reasons: unknown or suspended accounts are simply unavailable.
type Availability struct {
	Available       bool
	Reason          string
	AvailableCredit int64
	Shortfall       int64
}

func (s *Service) CheckAvailability(ctx context.Context, id uuid.UUID, amount int64) (*Availability, error) {
	acc, err := s.repo.GetAccount(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return &Availability{Reason: ErrNotFound.Error()}, nil
		}

		return nil, err
	}

	if acc.Status != StatusActive {
		return &Availability{Reason: ErrSuspended.Error(), AvailableCredit: acc.AvailableCredit}, nil
	}

	if acc.AvailableCredit < amount {
		insufficient := &InsufficientCreditError{Available: acc.AvailableCredit, Requested: amount}

		return &Availability{
			Reason:          insufficient.Error(),
			AvailableCredit: acc.AvailableCredit,
			Shortfall:       insufficient.Shortfall(),
		}, nil
	}

	return &Availability{Available: true, AvailableCredit: acc.AvailableCredit}, nil
}

type LedgerParams struct {
	AccountID   uuid.UUID
	Amount      int64
	BookingRef  string
	Description string
	Actor       string
}

// Debit draws the amount against the account's credit. Availability is
// checked again under the account lock, so a stale CheckAvailability result
// can never push available credit below zero.
func (s *Service) Debit(ctx context.Context, params LedgerParams) (*Account, *Transaction, error) {
	if params.Amount <= 0 {
		return nil, nil, ErrInvalidAmount
	}

	return s.apply(ctx, params, TxDebit, func(acc *Account) error {
		if acc.AvailableCredit < params.Amount {
			return &InsufficientCreditError{Available: acc.AvailableCredit, Requested: params.Amount}
		}

		acc.CurrentBalance += params.Amount
		acc.AvailableCredit -= params.Amount

		return nil
	})
}

// Credit pays down the balance. The balance is clamped at zero while the full
// amount is added to available credit, so over-crediting can raise available
// credit above the limit.
func (s *Service) Credit(ctx context.Context, params LedgerParams) (*Account, *Transaction, error) {
	if params.Amount <= 0 {
		return nil, nil, ErrInvalidAmount
	}

	return s.apply(ctx, params, TxCredit, creditBy(params.Amount))
}

// RefundWithin records a refund on a ledger the caller already holds, such
// as an account locked inside the transaction cancelling a purchase-order
// booking. It does not commit; the
// refund becomes visible when the caller commits ltx's owner.
func (s *Service) RefundWithin(ctx context.Context, ltx LedgerTx, params LedgerParams) (*Account, *Transaction, error) {
	if params.Amount <= 0 {
		return nil, nil, ErrInvalidAmount
	}

	if ltx.Account().ID != params.AccountID {
		return nil, nil, fmt.Errorf("ledger holds account %s, not %s", ltx.Account().ID, params.AccountID)
	}

	return s.applyTo(ctx, ltx, params, TxRefund, creditBy(params.Amount))
}

func creditBy(amount int64) func(acc *Account) error {
	return func(acc *Account) error {
		acc.CurrentBalance = max(0, acc.CurrentBalance-amount)
		acc.AvailableCredit += amount

		return nil
	}
}

func (s *Service) apply(ctx context.Context, params LedgerParams, txType TxType, mutate func(acc *Account) error) (*Account, *Transaction, error) {
	ltx, err := s.repo.BeginLedger(ctx, params.AccountID)
	if err != nil {
		return nil, nil, err
	}
	defer ltx.Rollback()

	acc, tx, err := s.applyTo(ctx, ltx, params, txType, mutate)
	if err != nil {
		return nil, nil, err
	}

	if err := ltx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("committing ledger: %w", err)
	}

	return acc, tx, nil
}

// applyTo mutates the locked account and appends the transaction without
// committing.
func (s *Service) applyTo(ctx context.Context, ltx LedgerTx, params LedgerParams, txType TxType, mutate func(acc *Account) error) (*Account, *Transaction, error) {
	acc := *ltx.Account()
	if acc.Status != StatusActive {
		return nil, nil, ErrSuspended
	}

	if err := mutate(&acc); err != nil {
		return nil, nil, err
	}

	now := time.Now()
	acc.UpdatedAt = now

	tx := &Transaction{
		AccountID:   acc.ID,
		Type:        txType,
		Amount:      params.Amount,
		BookingRef:  params.BookingRef,
		Description: params.Description,
		CreatedAt:   now,
		CreatedBy:   params.Actor,
	}

	if err := ltx.SaveAccount(ctx, &acc); err != nil {
		return nil, nil, fmt.Errorf("saving account: %w", err)
	}

	if err := ltx.AppendTransaction(ctx, tx); err != nil {
		return nil, nil, fmt.Errorf("appending transaction: %w", err)
	}

	return &acc, tx, nil
}

func (s *Service) Suspend(ctx context.Context, id uuid.UUID) (*Account, error) {
	return s.setStatus(ctx, id, StatusSuspended)
}

func (s *Service) Activate(ctx context.Context, id uuid.UUID) (*Account, error) {
	return s.setStatus(ctx, id, StatusActive)
}

func (s *Service) setStatus(ctx context.Context, id uuid.UUID, status Status) (*Account, error) {
	return s.update(ctx, id, func(acc *Account) error {
		if acc.Status == status {
			return ErrStatusUnchanged
		}

		acc.Status = status

		return nil
	})
}

// SetCreditLimit changes the limit and recomputes available credit from the
// current balance.
func (s *Service) SetCreditLimit(ctx context.Context, id uuid.UUID, limit int64) (*Account, error) {
	if limit < 0 {
		return nil, ErrInvalidLimit
	}

	return s.update(ctx, id, func(acc *Account) error {
		acc.CreditLimit = limit
		acc.AvailableCredit = limit - acc.CurrentBalance

		return nil
	})
}

func (s *Service) update(ctx context.Context, id uuid.UUID, mutate func(acc *Account) error) (*Account, error) {
	ltx, err := s.repo.BeginLedger(ctx, id)
	if err != nil {
		return nil, err
	}
	defer ltx.Rollback()

	acc := *ltx.Account()
	if err := mutate(&acc); err != nil {
		return nil, err
	}

	acc.UpdatedAt = time.Now()

	if err := ltx.SaveAccount(ctx, &acc); err != nil {
		return nil, fmt.Errorf("saving account: %w", err)
	}

	if err := ltx.Commit(); err != nil {
		return nil, fmt.Errorf("committing account: %w", err)
	}

	return &acc, nil
}

// Reconciliation compares the stored balance with the signed sum of the
// account's transactions.
type Reconciliation struct {
	Balance   int64
	LedgerSum int64
	Balanced  bool
}

func (s *Service) Reconcile(ctx context.Context, id uuid.UUID) (*Reconciliation, error) {
	acc, err := s.repo.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}

	txs, err := s.repo.ListTransactions(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}

	var sum int64
	for _, tx := range txs {
		sum += tx.Signed()
	}

	return &Reconciliation{
		Balance:   acc.CurrentBalance,
		LedgerSum: sum,
		Balanced:  sum == acc.CurrentBalance,
	}, nil
}
