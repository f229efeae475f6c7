package export

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MrJamesThe3rd/medtrain/internal/booking"
	"github.com/MrJamesThe3rd/medtrain/internal/export"
	"github.com/MrJamesThe3rd/medtrain/internal/http/guard"
)

type Service interface {
	Export(ctx context.Context, filter booking.ListFilter) ([]export.Row, error)
}

type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.metadata)
	r.Post("/download", h.download)
}

type exportRequest struct {
	StartDate *time.Time      `json:"start_date,omitempty"`
	EndDate   *time.Time      `json:"end_date,omitempty"`
	Status    *booking.Status `json:"status,omitempty"`
	CourseID  *string         `json:"course_id,omitempty"`
}

func (req exportRequest) filter() booking.ListFilter {
	return booking.ListFilter{
		From:     req.StartDate,
		To:       req.EndDate,
		Status:   req.Status,
		CourseID: req.CourseID,
	}
}

type rowResponse struct {
	BookingRef  string         `json:"booking_ref"`
	BookedOn    time.Time      `json:"booked_on"`
	CourseTitle string         `json:"course_title"`
	FinanceCode string         `json:"finance_code"`
	Attendee    string         `json:"attendee"`
	Method      booking.Method `json:"payment_method"`
	Status      booking.Status `json:"status"`
	Currency    string         `json:"currency"`
	Amount      int64          `json:"amount"`
	Refunded    int64          `json:"refunded"`
	Net         int64          `json:"net"`
}

type exportMetadataResponse struct {
	Rows      []rowResponse  `json:"rows"`
	Summary   export.Summary `json:"summary"`
	EmailBody string         `json:"email_body"`
}

func toRowResponse(r export.Row) rowResponse {
	b := r.Booking

	return rowResponse{
		BookingRef:  b.Ref,
		BookedOn:    b.CreatedAt,
		CourseTitle: b.CourseTitle,
		FinanceCode: r.FinanceCode,
		Attendee:    b.Attendee.FullName(),
		Method:      b.Payment.Method,
		Status:      b.Status,
		Currency:    b.Payment.Currency,
		Amount:      b.Payment.Amount,
		Refunded:    r.Refunded,
		Net:         r.Net,
	}
}

func (h *Handler) rows(w http.ResponseWriter, r *http.Request) ([]export.Row, bool) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}

	if req.StartDate != nil && req.EndDate != nil && !req.EndDate.After(*req.StartDate) {
		http.Error(w, "end_date must be after start_date", http.StatusBadRequest)
		return nil, false
	}

	rows, err := h.svc.Export(r.Context(), req.filter())
	if err != nil {
		slog.Error("export failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)

		return nil, false
	}

	return rows, true
}

func (h *Handler) metadata(w http.ResponseWriter, r *http.Request) {
	rows, ok := h.rows(w, r)
	if !ok {
		return
	}

	resp := exportMetadataResponse{
		Rows:      make([]rowResponse, 0, len(rows)),
		Summary:   export.Summarise(rows),
		EmailBody: export.GenerateEmailBody(rows),
	}

	for _, row := range rows {
		resp.Rows = append(resp.Rows, toRowResponse(row))
	}

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	rows, ok := h.rows(w, r)
	if !ok {
		return
	}

	var csvBuf bytes.Buffer
	if err := export.WriteCSV(&csvBuf, rows); err != nil {
		slog.Error("failed to write export csv", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)

		return
	}

	slog.Info("downloaded finance export", "rows", len(rows), "actor", guard.Actor(r.Context()))

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=\"export_%s.zip\"", time.Now().Format("20060102")))

	zipWriter := zip.NewWriter(w)
	defer zipWriter.Close()

	files := []struct {
		name string
		body io.Reader
	}{
		{name: "bookings.csv", body: &csvBuf},
		{name: "email_body.txt", body: bytes.NewBufferString(export.GenerateEmailBody(rows))},
	}

	for _, f := range files {
		zf, err := zipWriter.Create(f.name)
		if err != nil {
			slog.Error("failed to create zip", "error", err)
			return
		}

		if _, err := io.Copy(zf, f.body); err != nil {
			slog.Error("failed to create zip", "error", err)
			return
		}
	}
}
