package account

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/medtrain/internal/account"
	"github.com/MrJamesThe3rd/medtrain/internal/http/guard"
)

type Service interface {
	Create(ctx context.Context, params account.CreateParams) (*account.Account, error)
	Get(ctx context.Context, id uuid.UUID) (*account.Account, error)
	List(ctx context.Context, filter account.ListFilter) ([]*account.Account, error)
	Transactions(ctx context.Context, id uuid.UUID) ([]*account.Transaction, error)
	CheckAvailability(ctx context.Context, id uuid.UUID, amount int64) (*account.Availability, error)
	Debit(ctx context.Context, params account.LedgerParams) (*account.Account, *account.Transaction, error)
	Credit(ctx context.Context, params account.LedgerParams) (*account.Account, *account.Transaction, error)
	Suspend(ctx context.Context, id uuid.UUID) (*account.Account, error)
	Activate(ctx context.Context, id uuid.UUID) (*account.Account, error)
	SetCreditLimit(ctx context.Context, id uuid.UUID, limit int64) (*account.Account, error)
	Reconcile(ctx context.Context, id uuid.UUID) (*account.Reconciliation, error)
}

type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Get("/{id}/transactions", h.transactions)
	r.Get("/{id}/availability", h.availability)
	r.Get("/{id}/reconcile", h.reconcile)
	r.Post("/{id}/debit", h.debit)
	r.Post("/{id}/credit", h.credit)
	r.Post("/{id}/suspend", h.suspend)
	r.Post("/{id}/activate", h.activate)
	r.Patch("/{id}/limit", h.setLimit)
}

type createAccountRequest struct {
	OrganisationName string `json:"organisation_name"`
	ContactEmail     string `json:"contact_email"`
	CreditLimit      int64  `json:"credit_limit"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	acc, err := h.svc.Create(r.Context(), account.CreateParams{
		OrganisationName: req.OrganisationName,
		ContactEmail:     req.ContactEmail,
		CreditLimit:      req.CreditLimit,
		Actor:            guard.Actor(r.Context()),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toResponse(acc))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := account.ListFilter{Search: r.URL.Query().Get("search")}

	if s := r.URL.Query().Get("status"); s != "" {
		filter.Status = new(account.Status(s))
	}

	accs, err := h.svc.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toResponseList(accs))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	acc, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toResponse(acc))
}

func (h *Handler) transactions(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	txs, err := h.svc.Transactions(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]transactionResponse, len(txs))
	for i, tx := range txs {
		resp[i] = toTxResponse(tx)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) availability(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	amount, err := strconv.ParseInt(r.URL.Query().Get("amount"), 10, 64)
	if err != nil || amount < 0 {
		http.Error(w, "amount must be a non-negative number of pence", http.StatusBadRequest)
		return
	}

	av, err := h.svc.CheckAvailability(r.Context(), id, amount)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, availabilityResponse{
		Available:       av.Available,
		Reason:          av.Reason,
		AvailableCredit: av.AvailableCredit,
		Shortfall:       av.Shortfall,
	})
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	rec, err := h.svc.Reconcile(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, reconciliationResponse{
		Balance:   rec.Balance,
		LedgerSum: rec.LedgerSum,
		Balanced:  rec.Balanced,
	})
}

type ledgerRequest struct {
	Amount      int64  `json:"amount"`
	BookingRef  string `json:"booking_ref"`
	Description string `json:"description"`
}

func (h *Handler) debit(w http.ResponseWriter, r *http.Request) {
	h.ledger(w, r, h.svc.Debit)
}

func (h *Handler) credit(w http.ResponseWriter, r *http.Request) {
	h.ledger(w, r, h.svc.Credit)
}

type ledgerFunc func(ctx context.Context, params account.LedgerParams) (*account.Account, *account.Transaction, error)

func (h *Handler) ledger(w http.ResponseWriter, r *http.Request, apply ledgerFunc) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req ledgerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	acc, tx, err := apply(r.Context(), account.LedgerParams{
		AccountID:   id,
		Amount:      req.Amount,
		BookingRef:  req.BookingRef,
		Description: req.Description,
		Actor:       guard.Actor(r.Context()),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ledgerResponse{
		Account:     toResponse(acc),
		Transaction: toTxResponse(tx),
	})
}

func (h *Handler) suspend(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, h.svc.Suspend)
}

func (h *Handler) activate(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, h.svc.Activate)
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request, apply func(context.Context, uuid.UUID) (*account.Account, error)) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	acc, err := apply(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	slog.Info("account status changed", "account", acc.AccountNumber, "status", acc.Status, "actor", guard.Actor(r.Context()))

	writeJSON(w, http.StatusOK, toResponse(acc))
}

type setLimitRequest struct {
	CreditLimit int64 `json:"credit_limit"`
}

func (h *Handler) setLimit(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req setLimitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	acc, err := h.svc.SetCreditLimit(r.Context(), id, req.CreditLimit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toResponse(acc))
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return uuid.Nil, false
	}

	return id, true
}

func writeError(w http.ResponseWriter, err error) {
	var (
		credit    *account.InsufficientCreditError
		fieldErrs validator.ValidationErrors
	)

	switch {
	case errors.As(err, &credit):
		http.Error(w, credit.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, account.ErrNotFound):
		http.Error(w, "account not found", http.StatusNotFound)
	case errors.Is(err, account.ErrSuspended), errors.Is(err, account.ErrStatusUnchanged):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, account.ErrInvalidAmount),
		errors.Is(err, account.ErrInvalidLimit),
		errors.Is(err, account.ErrInvalidName),
		errors.As(err, &fieldErrs):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		slog.Error("account request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
