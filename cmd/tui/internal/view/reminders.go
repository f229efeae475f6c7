package view

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/MrJamesThe3rd/medtrain/internal/booking"
)

// RemindersModel steps through the reminders due now so an operator can send
// them ahead of the scheduler.
type RemindersModel struct {
	CommonModel
	bookingService *booking.Service

	queue   []booking.Reminder
	current *booking.Reminder

	loading    bool
	status     string
	totalCount int
	sent       int
}

func NewRemindersModel(svc *booking.Service) RemindersModel {
	return RemindersModel{
		bookingService: svc,
		loading:        true,
	}
}

func (m RemindersModel) Title() string { return "Due Reminders" }
func (m RemindersModel) ShortHelp() string {
	return "Enter: send | s: skip | Esc: back"
}

func (m RemindersModel) Init() tea.Cmd {
	return m.loadDueCmd()
}

func (m RemindersModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "esc":
			return m, Back
		case "enter":
			if m.current != nil {
				return m, m.sendCmd(*m.current)
			}
		case "s":
			if m.current != nil {
				m.next()
			}
		}

	case loadDueMsg:
		m.loading = false
		if msg.err != nil {
			m.status = fmt.Sprintf("Error: %v", msg.err)
			return m, nil
		}

		m.queue = msg.due
		m.totalCount = len(m.queue)
		m.next()

	case reminderSentMsg:
		if !msg.sent {
			m.status = fmt.Sprintf("%s was not sent, it stays due.", msg.ref)
		} else {
			m.sent++
			m.status = ""
		}

		m.next()
	}

	return m, nil
}

func (m RemindersModel) View() string {
	if m.loading {
		return lipgloss.NewStyle().Padding(2).Render("Loading due reminders...")
	}

	if m.current == nil {
		if m.totalCount == 0 && m.status == "" {
			return lipgloss.NewStyle().Padding(2).Render("No reminders due.\n\n(Esc to back)")
		}

		return lipgloss.NewStyle().Padding(2).Render(
			fmt.Sprintf("%s\nSent %d of %d.\n\n(Esc to back)", m.status, m.sent, m.totalCount),
		)
	}

	b := m.current.Booking

	starts := ""
	if b.SessionStartsAt != nil {
		starts = b.SessionStartsAt.Local().Format("2006-01-02 15:04")
	}

	info := fmt.Sprintf(
		"Ref: %s\nAttendee: %s <%s>\nCourse: %s\nStarts: %s\nKind: %s\n",
		b.Ref,
		b.Attendee.FullName(),
		b.Attendee.Email,
		b.CourseTitle,
		starts,
		m.current.Kind,
	)

	statusLine := ""
	if m.status != "" {
		statusLine = lipgloss.NewStyle().Faint(true).Render(m.status) + "\n\n"
	}

	return lipgloss.NewStyle().Padding(2).Render(
		fmt.Sprintf("%sDue Reminder (%d remaining)\n\n%s\n(Enter to send, 's' to skip, Esc to back)",
			statusLine, len(m.queue)+1, info),
	)
}

func (m *RemindersModel) next() {
	if len(m.queue) == 0 {
		m.current = nil
		if m.status == "" {
			m.status = "All done!"
		}

		return
	}

	m.current = &m.queue[0]
	m.queue = m.queue[1:]
}

type loadDueMsg struct {
	due []booking.Reminder
	err error
}

func (m RemindersModel) loadDueCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		due, err := m.bookingService.DueReminders(ctx, time.Now())

		return loadDueMsg{due: due, err: err}
	}
}

type reminderSentMsg struct {
	ref  string
	sent bool
}

func (m RemindersModel) sendCmd(r booking.Reminder) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		return reminderSentMsg{ref: r.Booking.Ref, sent: m.bookingService.SendReminder(ctx, r)}
	}
}
