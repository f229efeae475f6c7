package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/MrJamesThe3rd/medtrain/internal/booking"
	"github.com/MrJamesThe3rd/medtrain/internal/catalogue"
)

// Unassigned is the finance code reported for courses without one.
const Unassigned = "UNASSIGNED"

type BookingLister interface {
	List(ctx context.Context, filter booking.ListFilter) ([]*booking.Booking, error)
}

type CourseLister interface {
	Courses(ctx context.Context, activeOnly bool) ([]*catalogue.Course, error)
}

// Row is one booking line of a finance export.
type Row struct {
	Booking     *booking.Booking
	FinanceCode string
	Refunded    int64
	Net         int64
}

type CodeTotal struct {
	FinanceCode string `json:"finance_code"`
	Bookings    int    `json:"bookings"`
	Net         int64  `json:"net"`
}

type Summary struct {
	Bookings  int         `json:"bookings"`
	Cancelled int         `json:"cancelled"`
	Gross     int64       `json:"gross"`
	Refunded  int64       `json:"refunded"`
	Net       int64       `json:"net"`
	ByCode    []CodeTotal `json:"by_finance_code"`
}

// Service builds finance exports of bookings.
type Service struct {
	bookings BookingLister
	courses  CourseLister
}

func NewService(bookings BookingLister, courses CourseLister) *Service {
	return &Service{bookings: bookings, courses: courses}
}

// Export returns the bookings matching the filter with their finance code and
// net amount after refunds.
func (s *Service) Export(ctx context.Context, filter booking.ListFilter) ([]Row, error) {
	bookings, err := s.bookings.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing bookings: %w", err)
	}

	courses, err := s.courses.Courses(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("listing courses: %w", err)
	}

	codes := make(map[string]string, len(courses))
	for _, c := range courses {
		codes[c.ID] = c.FinanceCode
	}

	rows := make([]Row, 0, len(bookings))

	for _, b := range bookings {
		code := codes[b.CourseID]
		if code == "" {
			code = Unassigned
		}

		var refunded int64
		if b.Payment.Refund != nil {
			refunded = b.Payment.Refund.Amount
		}

		rows = append(rows, Row{
			Booking:     b,
			FinanceCode: code,
			Refunded:    refunded,
			Net:         b.Payment.Amount - refunded,
		})
	}

	return rows, nil
}

func Summarise(rows []Row) Summary {
	var sum Summary

	byCode := make(map[string]*CodeTotal)

	for _, r := range rows {
		sum.Bookings++
		if r.Booking.Status == booking.StatusCancelled {
			sum.Cancelled++
		}

		sum.Gross += r.Booking.Payment.Amount
		sum.Refunded += r.Refunded
		sum.Net += r.Net

		ct, ok := byCode[r.FinanceCode]
		if !ok {
			ct = &CodeTotal{FinanceCode: r.FinanceCode}
			byCode[r.FinanceCode] = ct
		}

		ct.Bookings++
		ct.Net += r.Net
	}

	sum.ByCode = make([]CodeTotal, 0, len(byCode))
	for _, ct := range byCode {
		sum.ByCode = append(sum.ByCode, *ct)
	}

	sort.Slice(sum.ByCode, func(i, j int) bool {
		return sum.ByCode[i].FinanceCode < sum.ByCode[j].FinanceCode
	})

	return sum
}

var header = []string{
	"booking_ref", "booked_on", "course_id", "course_title", "finance_code",
	"attendee", "organisation", "email", "payment_method", "po_number",
	"status", "payment_status", "currency", "amount", "refunded", "net",
}

func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for _, r := range rows {
		b := r.Booking

		var po string
		if b.Payment.PurchaseOrder != nil {
			po = b.Payment.PurchaseOrder.Number
		}

		if err := cw.Write([]string{
			b.Ref,
			b.CreatedAt.Format("2006-01-02"),
			b.CourseID,
			b.CourseTitle,
			r.FinanceCode,
			b.Attendee.FullName(),
			b.Attendee.Organisation,
			b.Attendee.Email,
			string(b.Payment.Method),
			po,
			string(b.Status),
			string(b.Payment.Status),
			b.Payment.Currency,
			decimal(b.Payment.Amount),
			decimal(r.Refunded),
			decimal(r.Net),
		}); err != nil {
			return fmt.Errorf("writing row %s: %w", b.Ref, err)
		}
	}

	cw.Flush()

	return cw.Error()
}

// GenerateEmailBody creates a plain text summary for the finance team.
func GenerateEmailBody(rows []Row) string {
	var sb strings.Builder

	for _, r := range rows {
		b := r.Booking

		status := "Paid"
		if b.Status == booking.StatusCancelled {
			status = "Cancelled"
		}

		fmt.Fprintf(&sb, "* %s | %s | %s | %s %s | %s | %s\n",
			b.CreatedAt.Format("2006-01-02"), b.Ref, b.CourseTitle,
			decimal(r.Net), b.Payment.Currency, r.FinanceCode, status)
	}

	sum := Summarise(rows)

	fmt.Fprintf(&sb, "\nBookings: %d (cancelled %d)\nGross: %s\nRefunded: %s\nNet: %s\n",
		sum.Bookings, sum.Cancelled, decimal(sum.Gross), decimal(sum.Refunded), decimal(sum.Net))

	return sb.String()
}

func decimal(pence int64) string {
	sign := ""
	if pence < 0 {
		sign = "-"
		pence = -pence
	}

	return fmt.Sprintf("%s%d.%02d", sign, pence/100, pence%100)
}
