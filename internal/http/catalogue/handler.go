package catalogue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MrJamesThe3rd/medtrain/internal/catalogue"
	"github.com/MrJamesThe3rd/medtrain/internal/encoding"
	"github.com/MrJamesThe3rd/medtrain/internal/http/guard"
	"github.com/MrJamesThe3rd/medtrain/internal/importer"
)

type Service interface {
	Course(ctx context.Context, id string) (*catalogue.Course, error)
	Courses(ctx context.Context, activeOnly bool) ([]*catalogue.Course, error)
	Sessions(ctx context.Context, courseID string, upcomingOnly bool) ([]*catalogue.Session, error)
	UpdateSettings(ctx context.Context, courseID string, params catalogue.SettingsParams) (*catalogue.Course, error)
}

type Importer interface {
	Import(ctx context.Context, r io.Reader, dryRun bool) (*importer.Result, error)
}

type Handler struct {
	svc       Service
	importSvc Importer
}

func NewHandler(svc Service, importSvc Importer) *Handler {
	return &Handler{svc: svc, importSvc: importSvc}
}

// Routes registers the public catalogue. Settings changes go through admin.
// The public routes expect guard.Identify upstream so admins can see
// inactive courses.
func (h *Handler) Routes(r chi.Router, admin func(http.Handler) http.Handler) {
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Get("/{id}/sessions", h.sessions)
	r.With(admin).Patch("/{id}/settings", h.updateSettings)
}

// ImportRoutes registers the schedule upload. The caller is expected to have
// restricted it to admins.
func (h *Handler) ImportRoutes(r chi.Router) {
	r.Post("/import", h.importSessions)
}

type courseResponse struct {
	ID              string             `json:"id"`
	Code            string             `json:"code"`
	Title           string             `json:"title"`
	Delivery        catalogue.Delivery `json:"delivery"`
	Price           int64              `json:"price"`
	Currency        string             `json:"currency"`
	DurationMinutes int                `json:"duration_minutes"`
	Active          bool               `json:"active"`
	FinanceCode     string             `json:"finance_code,omitempty"`
}

type sessionResponse struct {
	ID              string    `json:"id"`
	CourseID        string    `json:"course_id"`
	StartsAt        time.Time `json:"starts_at"`
	EndsAt          time.Time `json:"ends_at"`
	DurationMinutes int       `json:"duration_minutes"`
	TrainerName     string    `json:"trainer_name,omitempty"`
	Venue           string    `json:"venue,omitempty"`
	Capacity        int       `json:"capacity"`
	SpotsRemaining  int       `json:"spots_remaining"`
	Price           *int64    `json:"price,omitempty"`
}

func toCourseResponse(c *catalogue.Course) courseResponse {
	return courseResponse{
		ID:              c.ID,
		Code:            c.Code,
		Title:           c.Title,
		Delivery:        c.Delivery,
		Price:           c.Price,
		Currency:        c.Currency,
		DurationMinutes: c.DurationMinutes,
		Active:          c.Active,
		FinanceCode:     c.FinanceCode,
	}
}

func toSessionResponse(s *catalogue.Session) sessionResponse {
	return sessionResponse{
		ID:              s.ID,
		CourseID:        s.CourseID,
		StartsAt:        s.StartsAt,
		EndsAt:          s.EndsAt(),
		DurationMinutes: s.DurationMinutes,
		TrainerName:     s.TrainerName,
		Venue:           s.Venue,
		Capacity:        s.Capacity,
		SpotsRemaining:  s.SpotsRemaining,
		Price:           s.Price,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	// Inactive courses are only listed for admins who ask for them.
	activeOnly := !(guard.IsAdmin(r.Context()) && r.URL.Query().Get("include_inactive") == "true")

	courses, err := h.svc.Courses(r.Context(), activeOnly)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]courseResponse, len(courses))
	for i, c := range courses {
		resp[i] = toCourseResponse(c)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Course(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toCourseResponse(c))
}

func (h *Handler) sessions(w http.ResponseWriter, r *http.Request) {
	upcomingOnly := true
	if s := r.URL.Query().Get("upcoming"); s != "" {
		v, err := strconv.ParseBool(s)
		if err != nil {
			http.Error(w, "invalid upcoming", http.StatusBadRequest)
			return
		}

		upcomingOnly = v
	}

	id := chi.URLParam(r, "id")

	if _, err := h.svc.Course(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	sessions, err := h.svc.Sessions(r.Context(), id, upcomingOnly)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]sessionResponse, len(sessions))
	for i, s := range sessions {
		resp[i] = toSessionResponse(s)
	}

	writeJSON(w, http.StatusOK, resp)
}

type updateSettingsRequest struct {
	Price       *int64  `json:"price,omitempty"`
	Active      *bool   `json:"active,omitempty"`
	FinanceCode *string `json:"finance_code,omitempty"`
}

func (h *Handler) updateSettings(w http.ResponseWriter, r *http.Request) {
	var req updateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	c, err := h.svc.UpdateSettings(r.Context(), chi.URLParam(r, "id"), catalogue.SettingsParams{
		Price:       req.Price,
		Active:      req.Active,
		FinanceCode: req.FinanceCode,
		Actor:       guard.Actor(r.Context()),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toCourseResponse(c))
}

type importResponse struct {
	Parsed   int    `json:"parsed"`
	Saved    int    `json:"saved"`
	DryRun   bool   `json:"dry_run"`
	Encoding string `json:"encoding"`
}

func (h *Handler) importSessions(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		http.Error(w, "failed to parse form: "+err.Error(), http.StatusBadRequest)
		return
	}

	dryRun, _ := strconv.ParseBool(r.FormValue("dry_run"))

	file, _, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file field is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	head := make([]byte, 4096)

	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		http.Error(w, "failed to read file", http.StatusBadRequest)
		return
	}

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.importSvc.Import(r.Context(), file, dryRun)
	if err != nil {
		if errors.Is(err, catalogue.ErrCourseNotFound) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		writeError(w, err)

		return
	}

	status := http.StatusCreated
	if res.DryRun {
		status = http.StatusOK
	}

	writeJSON(w, status, importResponse{
		Parsed:   res.Parsed,
		Saved:    res.Saved,
		DryRun:   res.DryRun,
		Encoding: encoding.Detect(head[:n]),
	})
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalogue.ErrCourseNotFound):
		http.Error(w, "course not found", http.StatusNotFound)
	case errors.Is(err, catalogue.ErrInvalidPrice):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, importer.ErrEmpty),
		errors.Is(err, importer.ErrInvalidFile),
		errors.Is(err, catalogue.ErrNotLive):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, catalogue.ErrSessionMoved):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		slog.Error("catalogue request failed", "error", err)
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
