package view

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/MrJamesThe3rd/medtrain/internal/booking"
)

type bookingsState int

const (
	bookingsStateBrowse bookingsState = iota
	bookingsStateCancel
)

type BookingsModel struct {
	CommonModel
	bookingService *booking.Service

	state    bookingsState
	table    table.Model
	bookings []*booking.Booking
	form     *huh.Form

	// Filter cycling
	statusFilterIdx int
	dateFilterIdx   int

	filter  booking.ListFilter
	loading bool
	err     error
	status  string

	// Form bindings live behind a pointer so they survive model copies.
	input *cancelInput
}

type cancelInput struct {
	reason string
	refund bool
	amount string
}

func NewBookingsModel(svc *booking.Service) BookingsModel {
	columns := []table.Column{
		{Title: "Booked", Width: 12},
		{Title: "Ref", Width: 20},
		{Title: "Course", Width: 30},
		{Title: "Attendee", Width: 24},
		{Title: "Paid", Width: 10},
		{Title: "Status", Width: 16},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(15),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return BookingsModel{
		bookingService: svc,
		table:          t,
	}
}

func (m BookingsModel) Title() string { return "Bookings" }
func (m BookingsModel) ShortHelp() string {
	if m.state == bookingsStateCancel {
		return "Navigate form | Esc: cancel"
	}
	return "Esc: back | c: cancel booking | s: status filter | d: date filter | r: refresh"
}

func (m BookingsModel) Init() tea.Cmd {
	return m.loadBookingsCmd()
}

func (m BookingsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case loadBookingsMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.bookings = msg.bookings
		m.refreshTable()
		return m, nil

	case cancelDoneMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("Error cancelling: %v", msg.err)
		} else {
			m.status = fmt.Sprintf("Cancelled %s", msg.ref)
		}
		m.state = bookingsStateBrowse
		m.form = nil
		m.table.Focus()
		return m, m.loadBookingsCmd()

	case tea.WindowSizeMsg:
		m.table.SetHeight(msg.Height - 10)
		return m, nil
	}

	switch m.state {
	case bookingsStateBrowse:
		return m.updateBrowse(msg)
	case bookingsStateCancel:
		return m.updateCancel(msg)
	}

	return m, nil
}

func (m BookingsModel) updateBrowse(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if ok {
		switch keyMsg.String() {
		case "esc":
			return m, Back
		case "r":
			m.loading = true
			return m, m.loadBookingsCmd()
		case "c":
			return m.enterCancelMode()
		case "s":
			m.statusFilterIdx = (m.statusFilterIdx + 1) % 3
			m.applyFilter()
			return m, m.loadBookingsCmd()
		case "d":
			m.dateFilterIdx = (m.dateFilterIdx + 1) % 3
			m.applyFilter()
			return m, m.loadBookingsCmd()
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m BookingsModel) selected() *booking.Booking {
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.bookings) {
		return nil
	}

	return m.bookings[idx]
}

func (m BookingsModel) enterCancelMode() (tea.Model, tea.Cmd) {
	b := m.selected()
	if b == nil {
		return m, nil
	}

	if b.Status == booking.StatusCancelled {
		m.status = fmt.Sprintf("%s is already cancelled", b.Ref)
		return m, nil
	}

	m.input = &cancelInput{refund: true, amount: FormatAmount(b.Payment.Amount)}
	paid := b.Payment.Amount

	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Key("reason").
				Title("Reason").
				Value(&m.input.reason).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("reason cannot be empty")
					}
					return nil
				}),

			huh.NewConfirm().
				Key("refund").
				Title("Issue refund?").
				Value(&m.input.refund),

			huh.NewInput().
				Key("amount").
				Title("Refund amount").
				Description(fmt.Sprintf("Paid %s %s", FormatAmount(paid), b.Payment.Currency)).
				Value(&m.input.amount).
				Validate(func(s string) error {
					amount, err := ParseAmount(s)
					if err != nil {
						return err
					}
					if amount > paid {
						return fmt.Errorf("refund exceeds the amount paid")
					}
					return nil
				}),
		),
	).WithWidth(45).WithShowHelp(false)

	m.state = bookingsStateCancel
	m.table.Blur()
	return m, m.form.Init()
}

func (m BookingsModel) updateCancel(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		if keyMsg.Type == tea.KeyEsc {
			m.state = bookingsStateBrowse
			m.form = nil
			m.table.Focus()
			return m, nil
		}
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State != huh.StateCompleted {
		return m, cmd
	}

	return m, m.cancelCmd()
}

func (m BookingsModel) View() string {
	if m.loading {
		return lipgloss.NewStyle().Padding(2).Render("Loading bookings...")
	}

	if m.err != nil {
		return lipgloss.NewStyle().Padding(2).Render(fmt.Sprintf("Error: %v", m.err))
	}

	statusLabels := []string{"All", "Confirmed", "Cancelled"}
	dateLabels := []string{"All Time", "This Month", "Last Month"}

	header := fmt.Sprintf(
		"Filter: [s] Status: %s | [d] Booked: %s",
		activeStyle(statusLabels[m.statusFilterIdx]),
		activeStyle(dateLabels[m.dateFilterIdx]),
	)

	tableView := lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		Render(m.table.View())

	content := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().PaddingBottom(1).Render(header),
		tableView,
	)

	if m.state == bookingsStateCancel && m.form != nil {
		ref := ""
		if b := m.selected(); b != nil {
			ref = fmt.Sprintf("%s\n%s", b.Ref, b.Attendee.FullName())
		}

		panel := lipgloss.NewStyle().
			Padding(1, 2).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Width(48).
			Render(
				fmt.Sprintf("Cancel Booking\n\n%s\n\n%s", ref, m.form.View()),
			)

		content = lipgloss.JoinHorizontal(lipgloss.Top, content, panel)
	}

	if m.status != "" {
		content = lipgloss.NewStyle().Faint(true).Render(m.status) + "\n" + content
	}

	return lipgloss.NewStyle().Padding(1).Render(content)
}

func activeStyle(s string) string {
	return lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Render(s)
}

func (m *BookingsModel) applyFilter() {
	switch m.statusFilterIdx {
	case 1:
		m.filter.Status = new(booking.StatusConfirmed)
	case 2:
		m.filter.Status = new(booking.StatusCancelled)
	default:
		m.filter.Status = nil
	}

	now := time.Now()
	switch m.dateFilterIdx {
	case 1:
		from, to := timeframeToDateRange(TimeframeThisMonth, now)
		m.filter.From, m.filter.To = &from, &to
	case 2:
		from, to := timeframeToDateRange(TimeframeLastMonth, now)
		m.filter.From, m.filter.To = &from, &to
	default:
		m.filter.From = nil
		m.filter.To = nil
	}
}

func bookingStatus(b *booking.Booking) string {
	if b.Status != booking.StatusCancelled {
		return string(b.Status)
	}

	if b.Payment.Refund != nil {
		return "cancelled/" + string(b.Payment.Status)
	}

	return string(b.Status)
}

func (m *BookingsModel) refreshTable() {
	rows := make([]table.Row, 0, len(m.bookings))
	for _, b := range m.bookings {
		rows = append(rows, table.Row{
			FormatDate(b.CreatedAt),
			b.Ref,
			b.CourseTitle,
			b.Attendee.FullName(),
			FormatAmount(b.Payment.Amount),
			bookingStatus(b),
		})
	}
	m.table.SetRows(rows)
}

// Messages

type loadBookingsMsg struct {
	bookings []*booking.Booking
	err      error
}

func (m BookingsModel) loadBookingsCmd() tea.Cmd {
	filter := m.filter

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		bookings, err := m.bookingService.List(ctx, filter)
		return loadBookingsMsg{bookings: bookings, err: err}
	}
}

type cancelDoneMsg struct {
	ref string
	err error
}

func (m BookingsModel) cancelCmd() tea.Cmd {
	b := m.selected()
	if b == nil {
		return nil
	}

	params := booking.CancelParams{
		BookingID:   b.ID,
		Reason:      strings.TrimSpace(m.input.reason),
		IssueRefund: m.input.refund,
		Actor:       Actor(),
	}

	if m.input.refund {
		amount, err := ParseAmount(m.input.amount)
		if err != nil {
			return func() tea.Msg { return cancelDoneMsg{ref: b.Ref, err: err} }
		}

		params.RefundAmount = &amount
	}

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		_, err := m.bookingService.CancelWithRefund(ctx, params)
		return cancelDoneMsg{ref: b.Ref, err: err}
	}
}
