package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/medtrain/internal/auth"
	"github.com/MrJamesThe3rd/medtrain/internal/http/guard"
)

type Service interface {
	RequestCustomerCode(ctx context.Context, email string) (*auth.PendingChallenge, error)
	VerifyCustomerCode(ctx context.Context, email, code string) (*auth.Session, error)
	AdminLogin(ctx context.Context, username, password string) (*auth.PendingChallenge, error)
	VerifyAdminCode(ctx context.Context, adminID uuid.UUID, code string) (*auth.Session, error)
	Logout(ctx context.Context, claims *auth.Claims) error
}

type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// Routes registers the login flows. Logout goes through authn since it needs
// the caller's session.
func (h *Handler) Routes(r chi.Router, authn func(http.Handler) http.Handler) {
	r.Post("/customer/code", h.requestCustomerCode)
	r.Post("/customer/verify", h.verifyCustomerCode)
	r.Post("/admin/login", h.adminLogin)
	r.Post("/admin/verify", h.verifyAdminCode)
	r.With(authn).Post("/logout", h.logout)
}

type emailRequest struct {
	Email string `json:"email"`
}

type verifyRequest struct {
	Email   string `json:"email"`
	AdminID string `json:"admin_id"`
	Code    string `json:"code"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) requestCustomerCode(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	pending, err := h.svc.RequestCustomerCode(r.Context(), req.Email)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, pending)
}

func (h *Handler) verifyCustomerCode(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sess, err := h.svc.VerifyCustomerCode(r.Context(), req.Email, req.Code)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sess)
}

func (h *Handler) adminLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	pending, err := h.svc.AdminLogin(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, pending)
}

func (h *Handler) verifyAdminCode(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id, err := uuid.Parse(req.AdminID)
	if err != nil {
		http.Error(w, "invalid admin_id", http.StatusBadRequest)
		return
	}

	sess, err := h.svc.VerifyAdminCode(r.Context(), id, req.Code)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sess)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := guard.ClaimsFrom(r.Context())
	if !ok {
		http.Error(w, "authorization required", http.StatusUnauthorized)
		return
	}

	if err := h.svc.Logout(r.Context(), claims); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidEmail):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidCode),
		errors.Is(err, auth.ErrChallengeExpired),
		errors.Is(err, auth.ErrTooManyAttempts):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	default:
		slog.Error("auth request failed", "error", err)
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
