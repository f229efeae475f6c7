package account

import (
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/medtrain/internal/account"
)

type accountResponse struct {
	ID               uuid.UUID      `json:"id"`
	AccountNumber    string         `json:"account_number"`
	OrganisationName string         `json:"organisation_name"`
	ContactEmail     string         `json:"contact_email,omitempty"`
	CreditLimit      int64          `json:"credit_limit"`
	CurrentBalance   int64          `json:"current_balance"`
	AvailableCredit  int64          `json:"available_credit"`
	Status           account.Status `json:"status"`
	CreatedAt        time.Time      `json:"created_at"`
	CreatedBy        string         `json:"created_by,omitempty"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

type transactionResponse struct {
	ID          uuid.UUID      `json:"id"`
	Type        account.TxType `json:"type"`
	Amount      int64          `json:"amount"`
	BookingRef  string         `json:"booking_ref,omitempty"`
	Description string         `json:"description,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	CreatedBy   string         `json:"created_by,omitempty"`
}

type ledgerResponse struct {
	Account     accountResponse     `json:"account"`
	Transaction transactionResponse `json:"transaction"`
}

type availabilityResponse struct {
	Available       bool   `json:"available"`
	Reason          string `json:"reason,omitempty"`
	AvailableCredit int64  `json:"available_credit"`
	Shortfall       int64  `json:"shortfall,omitempty"`
}

type reconciliationResponse struct {
	Balance   int64 `json:"balance"`
	LedgerSum int64 `json:"ledger_sum"`
	Balanced  bool  `json:"balanced"`
}

func toResponse(acc *account.Account) accountResponse {
	return accountResponse{
		ID:               acc.ID,
		AccountNumber:    acc.AccountNumber,
		OrganisationName: acc.OrganisationName,
		ContactEmail:     acc.ContactEmail,
		CreditLimit:      acc.CreditLimit,
		CurrentBalance:   acc.CurrentBalance,
		AvailableCredit:  acc.AvailableCredit,
		Status:           acc.Status,
		CreatedAt:        acc.CreatedAt,
		CreatedBy:        acc.CreatedBy,
		UpdatedAt:        acc.UpdatedAt,
	}
}

func toResponseList(accs []*account.Account) []accountResponse {
	resp := make([]accountResponse, len(accs))
	for i, acc := range accs {
		resp[i] = toResponse(acc)
	}

	return resp
}

func toTxResponse(tx *account.Transaction) transactionResponse {
	return transactionResponse{
		ID:          tx.ID,
		Type:        tx.Type,
		Amount:      tx.Amount,
		BookingRef:  tx.BookingRef,
		Description: tx.Description,
		CreatedAt:   tx.CreatedAt,
		CreatedBy:   tx.CreatedBy,
	}
}
