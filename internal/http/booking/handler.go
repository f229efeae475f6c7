package booking

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/medtrain/internal/account"
	"github.com/MrJamesThe3rd/medtrain/internal/booking"
	"github.com/MrJamesThe3rd/medtrain/internal/http/guard"
)

type Service interface {
	Create(ctx context.Context, params booking.CreateParams) (*booking.Booking, error)
	Get(ctx context.Context, id uuid.UUID) (*booking.Booking, error)
	GetByRef(ctx context.Context, ref string) (*booking.Booking, error)
	List(ctx context.Context, filter booking.ListFilter) ([]*booking.Booking, error)
	CancelWithRefund(ctx context.Context, params booking.CancelParams) (*booking.Booking, error)
	Snapshot(ctx context.Context, w io.Writer, filter booking.ListFilter) (int, error)
	VerifySnapshot(ctx context.Context, r io.Reader) (*booking.SnapshotReport, error)
}

type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// Routes expects an authenticated caller. Listing, cancelling and snapshots
// additionally go through admin.
func (h *Handler) Routes(r chi.Router, admin func(http.Handler) http.Handler) {
	r.Post("/", h.create)
	r.Get("/mine", h.mine)
	r.Get("/ref/{ref}", h.getByRef)
	r.Get("/{id}", h.get)

	r.Group(func(r chi.Router) {
		r.Use(admin)
		r.Get("/", h.list)
		r.Get("/snapshot", h.snapshot)
		r.Post("/snapshot/verify", h.verifySnapshot)
		r.Post("/{id}/cancel", h.cancel)
	})
}

type purchaseOrderRequest struct {
	Number    string    `json:"number"`
	AccountID uuid.UUID `json:"account_id"`
}

type createBookingRequest struct {
	CourseID      string                `json:"course_id"`
	SessionID     *string               `json:"session_id,omitempty"`
	Attendee      booking.Attendee      `json:"attendee"`
	PaymentMethod booking.Method        `json:"payment_method"`
	PurchaseOrder *purchaseOrderRequest `json:"purchase_order,omitempty"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Purchase orders draw on an organisation's credit, which only staff may commit.
	if req.PaymentMethod == booking.MethodPurchaseOrder && !guard.IsAdmin(r.Context()) {
		http.Error(w, "purchase order bookings are made by administrators", http.StatusForbidden)
		return
	}

	params := booking.CreateParams{
		CourseID:  req.CourseID,
		SessionID: req.SessionID,
		Attendee:  req.Attendee,
		Method:    req.PaymentMethod,
		CreatedBy: guard.Actor(r.Context()),
	}

	if req.PurchaseOrder != nil {
		params.PurchaseOrder = &booking.PurchaseOrder{
			Number:    req.PurchaseOrder.Number,
			AccountID: req.PurchaseOrder.AccountID,
		}
	}

	b, err := h.svc.Create(r.Context(), params)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, b)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	b, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	h.writeOwned(w, r, b)
}

func (h *Handler) getByRef(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.GetByRef(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		writeError(w, err)
		return
	}

	h.writeOwned(w, r, b)
}

// writeOwned answers not found to callers who neither own the booking nor are
// admins, so booking ids cannot be probed.
func (h *Handler) writeOwned(w http.ResponseWriter, r *http.Request, b *booking.Booking) {
	if !canView(r.Context(), b) {
		http.Error(w, "booking not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, b)
}

func canView(ctx context.Context, b *booking.Booking) bool {
	if guard.IsAdmin(ctx) {
		return true
	}

	claims, ok := guard.ClaimsFrom(ctx)
	if !ok || claims.Email == "" {
		return false
	}

	return strings.EqualFold(b.Attendee.Email, claims.Email) || strings.EqualFold(b.CreatedBy, claims.Email)
}

func (h *Handler) mine(w http.ResponseWriter, r *http.Request) {
	claims, ok := guard.ClaimsFrom(r.Context())
	if !ok {
		http.Error(w, "authorization required", http.StatusUnauthorized)
		return
	}

	bookings, err := h.svc.List(r.Context(), booking.ListFilter{Email: new(strings.ToLower(claims.Email))})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, bookings)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	bookings, err := h.svc.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, bookings)
}

func parseFilter(q url.Values) (booking.ListFilter, error) {
	var filter booking.ListFilter

	if s := q.Get("status"); s != "" {
		st := booking.Status(s)
		if st != booking.StatusConfirmed && st != booking.StatusCancelled {
			return filter, fmt.Errorf("invalid status %q", s)
		}

		filter.Status = &st
	}

	if s := q.Get("email"); s != "" {
		filter.Email = new(strings.ToLower(s))
	}

	if s := q.Get("course_id"); s != "" {
		filter.CourseID = new(s)
	}

	for name, dst := range map[string]**time.Time{"from": &filter.From, "to": &filter.To} {
		s := q.Get(name)
		if s == "" {
			continue
		}

		t, err := time.Parse(time.DateOnly, s)
		if err != nil {
			return filter, fmt.Errorf("invalid %s date %q", name, s)
		}

		*dst = &t
	}

	return filter, nil
}

func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var buf bytes.Buffer

	n, err := h.svc.Snapshot(r.Context(), &buf, filter)
	if err != nil {
		writeError(w, err)
		return
	}

	slog.Info("wrote booking snapshot", "bookings", n, "actor", guard.Actor(r.Context()))

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=\"bookings_%s.json\"", time.Now().Format("20060102")))

	if _, err := buf.WriteTo(w); err != nil {
		slog.Error("failed to write snapshot", "error", err)
	}
}

const maxSnapshotBytes = 64 << 20

func (h *Handler) verifySnapshot(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.VerifySnapshot(r.Context(), http.MaxBytesReader(w, r.Body, maxSnapshotBytes))
	if err != nil {
		writeError(w, err)
		return
	}

	slog.Info("verified booking snapshot",
		"bookings", report.Bookings, "missing", len(report.Missing), "changed", len(report.Changed),
		"actor", guard.Actor(r.Context()))

	writeJSON(w, http.StatusOK, report)
}

type cancelRequest struct {
	Reason       string `json:"reason"`
	IssueRefund  bool   `json:"issue_refund"`
	RefundAmount *int64 `json:"refund_amount,omitempty"`
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	b, err := h.svc.CancelWithRefund(r.Context(), booking.CancelParams{
		BookingID:    id,
		Reason:       req.Reason,
		IssueRefund:  req.IssueRefund,
		RefundAmount: req.RefundAmount,
		Actor:        guard.Actor(r.Context()),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, b)
}

type insufficientCreditResponse struct {
	Error     string `json:"error"`
	Available int64  `json:"available"`
	Requested int64  `json:"requested"`
	Shortfall int64  `json:"shortfall"`
}

func writeError(w http.ResponseWriter, err error) {
	var (
		verr   *booking.ValidationError
		credit *account.InsufficientCreditError
	)

	switch {
	case errors.As(err, &verr):
		http.Error(w, verr.Error(), http.StatusBadRequest)
	case errors.As(err, &credit):
		writeJSON(w, http.StatusUnprocessableEntity, insufficientCreditResponse{
			Error:     credit.Error(),
			Available: credit.Available,
			Requested: credit.Requested,
			Shortfall: credit.Shortfall(),
		})
	case errors.Is(err, booking.ErrNotFound):
		http.Error(w, "booking not found", http.StatusNotFound)
	case errors.Is(err, booking.ErrInvalidSnapshot):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, booking.ErrAlreadyCancelled):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, account.ErrSuspended):
		http.Error(w, "purchase order account is suspended", http.StatusConflict)
	case errors.Is(err, account.ErrNotFound):
		http.Error(w, "purchase order account not found", http.StatusUnprocessableEntity)
	case errors.Is(err, account.ErrInvalidAmount):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		slog.Error("booking request failed", "error", err)
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
