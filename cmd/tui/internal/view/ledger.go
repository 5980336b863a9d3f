package view

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/klubb/internal/ledger"
)

type ledgerState int

const (
	ledgerStateTimeframe ledgerState = iota
	ledgerStateList
	ledgerStateConfirmDelete
)

// LedgerModel shows the ledger for a period with split expenses folded into
// one row, and deletes rows.
type LedgerModel struct {
	CommonModel
	ledgerService *ledger.Service

	state           ledgerState
	timeframePicker TimeframePicker
	table           table.Model
	groups          []*ledger.Group
	form            *huh.Form

	filter  ledger.ListFilter
	loading bool
	status  string
}

func NewLedgerModel(svc *ledger.Service) LedgerModel {
	return LedgerModel{
		ledgerService:   svc,
		timeframePicker: NewTimeframePicker(TimeframeThisMonth),
		table: newTable([]table.Column{
			{Title: "Date", Width: 12},
			{Title: "Category", Width: 18},
			{Title: "Amount", Width: 12},
			{Title: "Description", Width: 34},
			{Title: "Members", Width: 30},
		}),
	}
}

func (m LedgerModel) Title() string { return "Ledger" }

func (m LedgerModel) ShortHelp() string {
	switch m.state {
	case ledgerStateTimeframe:
		return "Esc: back | Enter: select"
	case ledgerStateConfirmDelete:
		return "Navigate form | Esc: cancel"
	}

	return "Esc: timeframe | x: delete row | r: refresh"
}

func (m LedgerModel) Init() tea.Cmd {
	return nil
}

func (m LedgerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case TimeframeSelectedMsg:
		m.filter = ledger.ListFilter{}
		if !msg.All {
			m.filter.StartDate = &msg.Start
			m.filter.EndDate = &msg.End
		}

		m.state = ledgerStateList
		m.loading = true

		return m, m.loadCmd()

	case loadLedgerMsg:
		m.loading = false
		if msg.err != nil {
			m.status = fmt.Sprintf("Error: %v", msg.err)
			return m, nil
		}

		m.groups = ledger.GroupForDisplay(msg.txs)
		m.refreshTable()

		if len(m.groups) == 0 {
			m.status = "No transactions found."
		}

		return m, nil

	case deleteGroupMsg:
		m.state = ledgerStateList
		m.form = nil
		m.table.Focus()

		if msg.err != nil {
			m.status = fmt.Sprintf("Error deleting: %v", msg.err)
			return m, nil
		}

		m.status = msg.status

		return m, m.loadCmd()

	case tea.WindowSizeMsg:
		m.table.SetHeight(msg.Height - 10)
		return m, nil
	}

	switch m.state {
	case ledgerStateTimeframe:
		return m.updateTimeframe(msg)
	case ledgerStateList:
		return m.updateList(msg)
	case ledgerStateConfirmDelete:
		return m.updateConfirm(msg)
	}

	return m, nil
}

func (m LedgerModel) updateTimeframe(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		if keyMsg.Type == tea.KeyEsc && m.timeframePicker.IsSelecting() {
			return m, Back
		}
	}

	var cmd tea.Cmd
	m.timeframePicker, cmd = m.timeframePicker.Update(msg)

	return m, cmd
}

func (m LedgerModel) updateList(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "esc":
			m.state = ledgerStateTimeframe
			m.timeframePicker.Reset()
			m.status = ""

			return m, nil
		case "r":
			m.loading = true
			return m, m.loadCmd()
		case "x":
			g := m.selected()
			if g == nil {
				return m, nil
			}

			m.form = huh.NewForm(huh.NewGroup(
				huh.NewConfirm().
					Key("confirm").
					Title(fmt.Sprintf("Delete %d transaction(s) of %q?", len(g.TransactionIDs), g.Description)).
					Description("Balances are adjusted and linked payment requests reopen."),
			)).WithWidth(50).WithShowHelp(false)
			m.state = ledgerStateConfirmDelete
			m.table.Blur()

			return m, m.form.Init()
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)

	return m, cmd
}

func (m LedgerModel) updateConfirm(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEsc {
		m.state = ledgerStateList
		m.form = nil
		m.table.Focus()

		return m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State != huh.StateCompleted {
		return m, cmd
	}

	g := m.selected()
	if g == nil || !m.form.GetBool("confirm") {
		return m, func() tea.Msg { return deleteGroupMsg{status: "Cancelled."} }
	}

	return m, m.deleteCmd(g)
}

func (m LedgerModel) selected() *ledger.Group {
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.groups) {
		return nil
	}

	return m.groups[idx]
}

func (m LedgerModel) View() string {
	if m.state == ledgerStateTimeframe {
		return lipgloss.NewStyle().Padding(1).Render(m.timeframePicker.View())
	}

	if m.loading {
		return lipgloss.NewStyle().Padding(2).Render("Loading transactions...")
	}

	income, expense := decimal.Zero, decimal.Zero

	for _, g := range m.groups {
		if g.Amount.IsNegative() {
			expense = expense.Sub(g.Amount)
		} else {
			income = income.Add(g.Amount)
		}
	}

	header := fmt.Sprintf("Income: %s | Expenses: %s | Result: %s",
		activeStyle(FormatAmount(income)),
		activeStyle(FormatAmount(expense)),
		activeStyle(FormatAmount(income.Sub(expense))),
	)

	content := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().PaddingBottom(1).Render(header),
		boxed(m.table.View()),
	)

	if m.state == ledgerStateConfirmDelete && m.form != nil {
		panel := lipgloss.NewStyle().
			Padding(1, 2).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Width(54).
			Render(m.form.View())

		content = lipgloss.JoinHorizontal(lipgloss.Top, content, panel)
	}

	if m.status != "" {
		content = faintStyle.Render(m.status) + "\n" + content
	}

	return lipgloss.NewStyle().Padding(1).Render(content)
}

func (m *LedgerModel) refreshTable() {
	rows := make([]table.Row, 0, len(m.groups))
	for _, g := range m.groups {
		rows = append(rows, table.Row{
			FormatDate(g.Date),
			g.Category,
			FormatAmount(g.Amount),
			g.Description,
			strings.Join(g.MemberNames, ", "),
		})
	}

	m.table.SetRows(rows)
}

// Messages

type loadLedgerMsg struct {
	txs []*ledger.Transaction
	err error
}

type deleteGroupMsg struct {
	status string
	err    error
}

func (m LedgerModel) loadCmd() tea.Cmd {
	filter := m.filter

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		txs, err := m.ledgerService.List(ctx, filter)

		return loadLedgerMsg{txs: txs, err: err}
	}
}

func (m LedgerModel) deleteCmd(g *ledger.Group) tea.Cmd {
	ids := g.TransactionIDs

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		if err := m.ledgerService.DeleteMany(ctx, ids); err != nil {
			return deleteGroupMsg{err: err}
		}

		return deleteGroupMsg{status: fmt.Sprintf("Deleted %d transaction(s) from %s.", len(ids), g.Date.Format(time.DateOnly))}
	}
}
