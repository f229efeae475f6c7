package view

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/MrJamesThe3rd/medtrain/internal/account"
)

type accState int

const (
	accStateList accState = iota
	accStateDetail
	accStateForm
)

// accItem wraps an account to implement list.Item.
type accItem struct {
	acc *account.Account
}

func (i accItem) Title() string {
	status := lipgloss.NewStyle().Faint(true).Render(fmt.Sprintf("[%s]", i.acc.Status))

	return fmt.Sprintf("%s  %s  %s", i.acc.AccountNumber, status, i.acc.OrganisationName)
}

func (i accItem) Description() string {
	return fmt.Sprintf("Balance %s / limit %s, available %s",
		FormatAmount(i.acc.CurrentBalance),
		FormatAmount(i.acc.CreditLimit),
		FormatAmount(i.acc.AvailableCredit),
	)
}

func (i accItem) FilterValue() string {
	return i.acc.OrganisationName + " " + i.acc.AccountNumber
}

type accFormKind int

const (
	accFormCreate accFormKind = iota
	accFormLimit
)

type AccountsModel struct {
	CommonModel
	accountService *account.Service

	state    accState
	list     list.Model
	form     *huh.Form
	formKind accFormKind
	accounts []*account.Account
	selected *account.Account
	ledger   []*account.Transaction

	loading bool
	status  string

	// Form field bindings live behind a pointer so they survive model copies.
	input *accountInput
}

type accountInput struct {
	name  string
	email string
	limit string
}

func NewAccountsModel(svc *account.Service) AccountsModel {
	l := list.New([]list.Item{}, accItemDelegate{}, 0, 0)
	l.Title = "Credit Accounts"
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.SetShowHelp(true)

	return AccountsModel{
		accountService: svc,
		list:           l,
		loading:        true,
	}
}

func (m AccountsModel) Title() string { return "Credit Accounts" }

func (m AccountsModel) ShortHelp() string {
	switch m.state {
	case accStateList:
		return "Esc: back | Enter: ledger | n: new | l: limit | s: suspend/activate | /: filter"
	case accStateDetail:
		return "Esc: back to list"
	case accStateForm:
		return "Esc: cancel | Enter/Tab: navigate form"
	}

	return ""
}

func (m AccountsModel) Init() tea.Cmd {
	return m.loadAccountsCmd()
}

func (m AccountsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case loadAccountsMsg:
		m.loading = false
		if msg.err != nil {
			m.status = fmt.Sprintf("Error: %v", msg.err)
			return m, nil
		}

		m.accounts = msg.accounts
		m.refreshListItems()

		if len(msg.accounts) == 0 {
			m.status = "No accounts yet. Press n to create one."
		}

		return m, nil

	case loadLedgerMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("Error: %v", msg.err)
			m.state = accStateList

			return m, nil
		}

		m.ledger = msg.txs

		return m, nil

	case saveAccResultMsg:
		m.state = accStateList
		m.form = nil

		if msg.err != nil {
			m.status = fmt.Sprintf("Error saving: %v", msg.err)
			return m, nil
		}

		m.status = msg.status

		return m, m.loadAccountsCmd()

	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width-4, msg.Height-8)
		return m, nil
	}

	switch m.state {
	case accStateList:
		return m.updateList(msg)
	case accStateDetail:
		if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEsc {
			m.state = accStateList
			m.ledger = nil
		}

		return m, nil
	case accStateForm:
		return m.updateForm(msg)
	}

	return m, nil
}

func (m AccountsModel) updateList(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && m.list.FilterState() != list.Filtering {
		switch keyMsg.String() {
		case "esc":
			return m, Back
		case "enter":
			if !m.selectCurrent() {
				return m, nil
			}

			m.state = accStateDetail

			return m, m.loadLedgerCmd(m.selected)
		case "n":
			return m.startForm(accFormCreate)
		case "l":
			if !m.selectCurrent() {
				return m, nil
			}

			return m.startForm(accFormLimit)
		case "s":
			if !m.selectCurrent() {
				return m, nil
			}

			return m, m.toggleStatusCmd(m.selected)
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)

	return m, cmd
}

func (m *AccountsModel) selectCurrent() bool {
	item, ok := m.list.SelectedItem().(accItem)
	if !ok {
		return false
	}

	m.selected = item.acc

	return true
}

func validateAmount(s string) error {
	_, err := ParseAmount(s)
	return err
}

func (m AccountsModel) startForm(kind accFormKind) (tea.Model, tea.Cmd) {
	m.formKind = kind

	switch kind {
	case accFormCreate:
		m.input = &accountInput{limit: "0.00"}

		m.form = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Key("organisation").
					Title("Organisation").
					Value(&m.input.name).
					Validate(func(s string) error {
						if strings.TrimSpace(s) == "" {
							return errors.New("organisation cannot be empty")
						}
						return nil
					}),

				huh.NewInput().
					Key("email").
					Title("Contact email (optional)").
					Value(&m.input.email),

				huh.NewInput().
					Key("limit").
					Title("Credit limit").
					Value(&m.input.limit).
					Validate(validateAmount),
			),
		).WithWidth(50).WithShowHelp(false)

	case accFormLimit:
		m.input = &accountInput{limit: FormatAmount(m.selected.CreditLimit)}

		m.form = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Key("limit").
					Title(fmt.Sprintf("New credit limit for %s", m.selected.OrganisationName)).
					Description(fmt.Sprintf("Current balance %s", FormatAmount(m.selected.CurrentBalance))).
					Value(&m.input.limit).
					Validate(validateAmount),
			),
		).WithWidth(50).WithShowHelp(false)
	}

	m.state = accStateForm

	return m, m.form.Init()
}

func (m AccountsModel) updateForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		if keyMsg.Type == tea.KeyEsc {
			m.state = accStateList
			m.form = nil

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

	return m, m.saveAccCmd()
}

func (m AccountsModel) View() string {
	switch m.state {
	case accStateList:
		if m.loading {
			return lipgloss.NewStyle().Padding(2).Render("Loading accounts...")
		}

		statusLine := ""
		if m.status != "" {
			statusLine = lipgloss.NewStyle().Faint(true).Render(m.status) + "\n"
		}

		return lipgloss.NewStyle().Padding(1).Render(statusLine + m.list.View())

	case accStateDetail:
		return lipgloss.NewStyle().Padding(1).Render(m.accInfoView() + "\n" + m.ledgerView())

	case accStateForm:
		if m.form == nil {
			return ""
		}

		info := ""
		if m.formKind == accFormLimit {
			info = m.accInfoView() + "\n"
		}

		return lipgloss.NewStyle().Padding(1).Render(info + m.form.View())
	}

	return ""
}

func (m AccountsModel) accInfoView() string {
	if m.selected == nil {
		return ""
	}

	a := m.selected

	return lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1).
		Render(fmt.Sprintf(
			"%s  |  %s  |  %s\nLimit: %s  |  Balance: %s  |  Available: %s",
			a.AccountNumber,
			a.OrganisationName,
			a.Status,
			FormatAmount(a.CreditLimit),
			FormatAmount(a.CurrentBalance),
			FormatAmount(a.AvailableCredit),
		))
}

func (m AccountsModel) ledgerView() string {
	if len(m.ledger) == 0 {
		return lipgloss.NewStyle().Faint(true).Render("No transactions.")
	}

	var sb strings.Builder
	for _, tx := range m.ledger {
		fmt.Fprintf(&sb, "%s  %-7s %10s  %-20s %s\n",
			FormatDate(tx.CreatedAt), tx.Type, FormatAmount(tx.Amount), tx.BookingRef, tx.Description)
	}

	return sb.String()
}

func (m *AccountsModel) refreshListItems() {
	items := make([]list.Item, len(m.accounts))
	for i, acc := range m.accounts {
		items[i] = accItem{acc: acc}
	}

	m.list.SetItems(items)
}

// Messages

type loadAccountsMsg struct {
	accounts []*account.Account
	err      error
}

func (m AccountsModel) loadAccountsCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		accounts, err := m.accountService.List(ctx, account.ListFilter{})

		return loadAccountsMsg{accounts: accounts, err: err}
	}
}

type loadLedgerMsg struct {
	txs []*account.Transaction
	err error
}

func (m AccountsModel) loadLedgerCmd(acc *account.Account) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		txs, err := m.accountService.Transactions(ctx, acc.ID)

		return loadLedgerMsg{txs: txs, err: err}
	}
}

type saveAccResultMsg struct {
	status string
	err    error
}

func (m AccountsModel) saveAccCmd() tea.Cmd {
	kind := m.formKind
	selected := m.selected
	name := m.input.name
	email := m.input.email
	svc := m.accountService

	limit, err := ParseAmount(m.input.limit)
	if err != nil {
		return func() tea.Msg { return saveAccResultMsg{err: err} }
	}

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		if kind == accFormLimit {
			acc, err := svc.SetCreditLimit(ctx, selected.ID, limit)
			if err != nil {
				return saveAccResultMsg{err: err}
			}

			return saveAccResultMsg{status: fmt.Sprintf("Limit for %s set to %s.", acc.AccountNumber, FormatAmount(acc.CreditLimit))}
		}

		acc, err := svc.Create(ctx, account.CreateParams{
			OrganisationName: name,
			ContactEmail:     email,
			CreditLimit:      limit,
			Actor:            Actor(),
		})
		if err != nil {
			return saveAccResultMsg{err: err}
		}

		return saveAccResultMsg{status: fmt.Sprintf("Created %s.", acc.AccountNumber)}
	}
}

func (m AccountsModel) toggleStatusCmd(acc *account.Account) tea.Cmd {
	svc := m.accountService

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		var (
			updated *account.Account
			err     error
		)

		if acc.Status == account.StatusSuspended {
			updated, err = svc.Activate(ctx, acc.ID)
		} else {
			updated, err = svc.Suspend(ctx, acc.ID)
		}

		if err != nil {
			return saveAccResultMsg{err: err}
		}

		return saveAccResultMsg{status: fmt.Sprintf("%s is now %s.", updated.AccountNumber, updated.Status)}
	}
}

// accItemDelegate renders items in the list.
type accItemDelegate struct{}

func (d accItemDelegate) Height() int                             { return 2 }
func (d accItemDelegate) Spacing() int                            { return 0 }
func (d accItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

func (d accItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	i, ok := item.(accItem)
	if !ok {
		return
	}

	title := i.Title()
	if index == m.Index() {
		title = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true).Render("> " + title)
	}

	fmt.Fprintf(w, "  %s\n", title)
	fmt.Fprintf(w, "    %s\n", lipgloss.NewStyle().Faint(true).Render(i.Description()))
}
