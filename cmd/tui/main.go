package main

import (
	"log/slog"
	"os"
	"time"
	_ "time/tzdata"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"

	"github.com/MrJamesThe3rd/medtrain/cmd/tui/internal/view"
	"github.com/MrJamesThe3rd/medtrain/internal/account"
	accountStore "github.com/MrJamesThe3rd/medtrain/internal/account/store"
	"github.com/MrJamesThe3rd/medtrain/internal/booking"
	bookingStore "github.com/MrJamesThe3rd/medtrain/internal/booking/store"
	"github.com/MrJamesThe3rd/medtrain/internal/catalogue"
	catalogueStore "github.com/MrJamesThe3rd/medtrain/internal/catalogue/store"
	"github.com/MrJamesThe3rd/medtrain/internal/config"
	"github.com/MrJamesThe3rd/medtrain/internal/database"
	"github.com/MrJamesThe3rd/medtrain/internal/export"
	"github.com/MrJamesThe3rd/medtrain/internal/importer"
	"github.com/MrJamesThe3rd/medtrain/internal/meeting"
	"github.com/MrJamesThe3rd/medtrain/internal/notification"
)

type model struct {
	bookingService *booking.Service
	accountService *account.Service
	importService  *importer.Service
	exportService  *export.Service

	currentView View

	bookingsView  view.BookingsModel
	accountsView  view.AccountsModel
	remindersView view.RemindersModel
	importView    view.ImportModel
	exportView    view.ExportModel
}

type View int

const (
	ViewMenu      View = 0
	ViewBookings  View = 1
	ViewAccounts  View = 2
	ViewReminders View = 3
	ViewImport    View = 4
	ViewExport    View = 5
)

func initialModel() (model, func()) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	db, err := database.New(cfg.ConnectionString())
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	london, err := time.LoadLocation("Europe/London")
	if err != nil {
		slog.Error("failed to load schedule time zone", "error", err)
		os.Exit(1)
	}

	var sender notification.Sender = notification.NewLogSender(nil)
	closeSender := func() {}

	if cfg.AMQP.URL != "" {
		amqpSender, err := notification.NewAMQPSender(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			slog.Error("failed to connect to message broker", "error", err)
			os.Exit(1)
		}

		sender = amqpSender
		closeSender = func() { _ = amqpSender.Close() }
	}

	var meetings booking.MeetingProvisioner = meeting.NewSimulated()
	if cfg.Meeting.APIToken != "" {
		meetings = meeting.NewClient(cfg.Meeting.BaseURL, cfg.Meeting.HostUser, cfg.Meeting.APIToken)
	}

	catalogueSvc := catalogue.NewService(catalogueStore.New(db))
	accountSvc := account.NewService(accountStore.New(db))
	bookingSvc := booking.NewService(
		bookingStore.New(db),
		catalogueSvc,
		accountSvc,
		meetings,
		notification.NewDispatcher(sender),
		booking.Config{RefPrefix: cfg.Booking.RefPrefix, Currency: cfg.Booking.Currency},
	)
	impSvc := importer.NewService(catalogueSvc, london)
	expSvc := export.NewService(bookingSvc, catalogueSvc)

	m := model{
		bookingService: bookingSvc,
		accountService: accountSvc,
		importService:  impSvc,
		exportService:  expSvc,
		currentView:    ViewMenu,
		bookingsView:   view.NewBookingsModel(bookingSvc),
		accountsView:   view.NewAccountsModel(accountSvc),
		remindersView:  view.NewRemindersModel(bookingSvc),
		importView:     view.NewImportModel(impSvc),
		exportView:     view.NewExportModel(expSvc),
	}

	return m, func() {
		closeSender()
		_ = db.Close()
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.currentView == ViewMenu {
			switch msg.String() {
			case "ctrl+c", "q":
				return m, tea.Quit
			case "1":
				m.currentView = ViewBookings
				m.bookingsView = view.NewBookingsModel(m.bookingService)

				return m, m.bookingsView.Init()
			case "2":
				m.currentView = ViewAccounts
				m.accountsView = view.NewAccountsModel(m.accountService)

				return m, m.accountsView.Init()
			case "3":
				m.currentView = ViewReminders
				m.remindersView = view.NewRemindersModel(m.bookingService)

				return m, m.remindersView.Init()
			case "4":
				m.currentView = ViewImport
				m.importView = view.NewImportModel(m.importService)

				return m, m.importView.Init()
			case "5":
				m.currentView = ViewExport
				m.exportView = view.NewExportModel(m.exportService)

				return m, m.exportView.Init()
			}
		}
	case view.BackMsg:
		m.currentView = ViewMenu
		return m, nil
	}

	switch m.currentView {
	case ViewBookings:
		var newModel tea.Model
		newModel, cmd = m.bookingsView.Update(msg)
		m.bookingsView = newModel.(view.BookingsModel)
	case ViewAccounts:
		var newModel tea.Model
		newModel, cmd = m.accountsView.Update(msg)
		m.accountsView = newModel.(view.AccountsModel)
	case ViewReminders:
		var newModel tea.Model
		newModel, cmd = m.remindersView.Update(msg)
		m.remindersView = newModel.(view.RemindersModel)
	case ViewImport:
		var newModel tea.Model
		newModel, cmd = m.importView.Update(msg)
		m.importView = newModel.(view.ImportModel)
	case ViewExport:
		var newModel tea.Model
		newModel, cmd = m.exportView.Update(msg)
		m.exportView = newModel.(view.ExportModel)
	}

	return m, cmd
}

func (m model) View() string {
	switch m.currentView {
	case ViewMenu:
		return lipgloss.NewStyle().Padding(2).Render(
			"Medtrain Back Office\n\n" +
				"1. Bookings\n" +
				"2. Credit Accounts\n" +
				"3. Due Reminders\n" +
				"4. Import Sessions\n" +
				"5. Finance Export\n\n" +
				"q. Quit",
		)
	case ViewBookings:
		return m.bookingsView.View()
	case ViewAccounts:
		return m.accountsView.View()
	case ViewReminders:
		return m.remindersView.View()
	case ViewImport:
		return m.importView.View()
	case ViewExport:
		return m.exportView.View()
	}

	return "Unknown View"
}

func main() {
	// Logs would draw over the UI, so they go to a file instead.
	logFile, err := tea.LogToFile("medtrain-tui.log", "")
	if err != nil {
		slog.Error("failed to open log file", "error", err)
		os.Exit(1)
	}
	defer logFile.Close()

	slog.SetDefault(slog.New(slog.NewTextHandler(logFile, nil)))

	m, cleanup := initialModel()
	defer cleanup()

	p := tea.NewProgram(m)
	if _, err := p.Run(); err != nil {
		slog.Error("failed to run TUI", "error", err)
		os.Exit(1)
	}
}
