package view

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/klubb/internal/ledger"
	"github.com/MrJamesThe3rd/klubb/internal/member"
)

type balanceState int

const (
	balanceStateBrowse balanceState = iota
	balanceStateEdit
)

// BalancesModel lists member balances and runs the balance repair tools.
type BalancesModel struct {
	CommonModel
	memberService *member.Service
	ledgerService *ledger.Service

	state   balanceState
	table   table.Model
	members []*member.Member
	form    *huh.Form

	loading bool
	err     error
	status  string

	// Form bindings
	formTarget string
	formReason string
}

func NewBalancesModel(memberSvc *member.Service, ledgerSvc *ledger.Service) BalancesModel {
	return BalancesModel{
		memberService: memberSvc,
		ledgerService: ledgerSvc,
		table: newTable([]table.Column{
			{Title: "Name", Width: 30},
			{Title: "Type", Width: 12},
			{Title: "Role", Width: 10},
			{Title: "Balance", Width: 12},
		}),
		loading: true,
	}
}

func (m BalancesModel) Title() string { return "Member Balances" }

func (m BalancesModel) ShortHelp() string {
	if m.state == balanceStateEdit {
		return "Navigate form | Esc: cancel"
	}

	return "Esc: back | s: set balance | c: recalculate all | r: refresh"
}

func (m BalancesModel) Init() tea.Cmd {
	return m.loadCmd()
}

func (m BalancesModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case loadMembersMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}

		m.members = msg.members
		m.refreshTable()

		return m, nil

	case recalculateMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("Error: %v", msg.err)
			return m, nil
		}

		m.status = fmt.Sprintf("Recalculated. %d balance(s) corrected.", len(msg.drifts))

		return m, m.loadCmd()

	case setBalanceMsg:
		m.state = balanceStateBrowse
		m.form = nil
		m.table.Focus()

		if msg.err != nil {
			m.status = fmt.Sprintf("Error: %v", msg.err)
			return m, nil
		}

		m.status = "Balance updated."

		return m, m.loadCmd()

	case tea.WindowSizeMsg:
		m.table.SetHeight(msg.Height - 10)
		return m, nil
	}

	if m.state == balanceStateEdit {
		return m.updateEdit(msg)
	}

	return m.updateBrowse(msg)
}

func (m BalancesModel) updateBrowse(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "esc":
			return m, Back
		case "r":
			m.loading = true
			return m, m.loadCmd()
		case "c":
			m.status = "Recalculating..."
			return m, m.recalculateCmd()
		case "s":
			return m.enterEditMode()
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)

	return m, cmd
}

func (m BalancesModel) selected() *member.Member {
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.members) {
		return nil
	}

	return m.members[idx]
}

func (m BalancesModel) enterEditMode() (tea.Model, tea.Cmd) {
	mem := m.selected()
	if mem == nil {
		return m, nil
	}

	m.formTarget = FormatAmount(mem.Balance)
	m.formReason = ""

	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Key("target").
				Title("New balance").
				Value(&m.formTarget).
				Validate(func(s string) error {
					_, err := decimal.NewFromString(strings.TrimSpace(s))
					return err
				}),
			huh.NewInput().
				Key("reason").
				Title("Reason").
				Placeholder("Correction after bank reconciliation").
				Value(&m.formReason).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("reason cannot be empty")
					}

					return nil
				}),
		),
	).WithWidth(45).WithShowHelp(false)

	m.state = balanceStateEdit
	m.table.Blur()

	return m, m.form.Init()
}

func (m BalancesModel) updateEdit(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEsc {
		m.state = balanceStateBrowse
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

	return m, m.setBalanceCmd()
}

func (m BalancesModel) View() string {
	if m.loading {
		return lipgloss.NewStyle().Padding(2).Render("Loading members...")
	}

	if m.err != nil {
		return lipgloss.NewStyle().Padding(2).Render(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
	}

	total := decimal.Zero
	for _, mem := range m.members {
		total = total.Add(mem.Balance)
	}

	header := fmt.Sprintf("Members: %d | Sum of balances: %s", len(m.members), activeStyle(FormatAmount(total)))

	content := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().PaddingBottom(1).Render(header),
		boxed(m.table.View()),
	)

	if m.state == balanceStateEdit && m.form != nil {
		name := ""
		if mem := m.selected(); mem != nil {
			name = mem.Name
		}

		panel := lipgloss.NewStyle().
			Padding(1, 2).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Width(48).
			Render(fmt.Sprintf("Set balance for %s\n\n%s", name, m.form.View()))

		content = lipgloss.JoinHorizontal(lipgloss.Top, content, panel)
	}

	if m.status != "" {
		content = faintStyle.Render(m.status) + "\n" + content
	}

	return lipgloss.NewStyle().Padding(1).Render(content)
}

func (m *BalancesModel) refreshTable() {
	rows := make([]table.Row, 0, len(m.members))
	for _, mem := range m.members {
		rows = append(rows, table.Row{
			mem.Name,
			string(mem.MembershipType),
			string(mem.Role),
			FormatAmount(mem.Balance),
		})
	}

	m.table.SetRows(rows)
}

// Messages

type loadMembersMsg struct {
	members []*member.Member
	err     error
}

func (m BalancesModel) loadCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		members, err := m.memberService.List(ctx, member.ListFilter{})

		return loadMembersMsg{members: members, err: err}
	}
}

type recalculateMsg struct {
	drifts []ledger.Drift
	err    error
}

func (m BalancesModel) recalculateCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		drifts, err := m.ledgerService.Recalculate(ctx)

		return recalculateMsg{drifts: drifts, err: err}
	}
}

type setBalanceMsg struct {
	err error
}

func (m BalancesModel) setBalanceCmd() tea.Cmd {
	mem := m.selected()
	if mem == nil {
		return nil
	}

	// Bound fields live on the model copy that built the form.
	target := strings.TrimSpace(m.form.GetString("target"))
	reason := m.form.GetString("reason")

	return func() tea.Msg {
		d, err := decimal.NewFromString(target)
		if err != nil {
			return setBalanceMsg{err: err}
		}

		ctx, cancel := DbCtx()
		defer cancel()

		_, err = m.ledgerService.SetBalance(ctx, mem.ID, d, reason)

		return setBalanceMsg{err: err}
	}
}
