package view

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/klubb/internal/categorize"
	"github.com/MrJamesThe3rd/klubb/internal/importer"
	"github.com/MrJamesThe3rd/klubb/internal/ledger"
	"github.com/MrJamesThe3rd/klubb/internal/member"
)

const importTimeout = 2 * time.Minute

var importBanks = []importer.Bank{importer.BankAuto, importer.BankDNB, importer.BankSpareBank1, importer.BankNordea}

// Order the category key cycles through. Rule categories outside this list
// fall back to the first entry.
var importCategories = []string{ledger.CategoryOther, ledger.CategoryEvent, ledger.CategoryMembershipFee}

type importState int

const (
	importStateBank importState = iota
	importStateFile
	importStateWorking
	importStateReview
	importStateDone
)

// importRow is a statement row as it will be written. existing is set when
// the ledger already holds a transaction with the same bank fingerprint.
type importRow struct {
	params   ledger.CreateParams
	existing *ledger.Transaction
	skip     bool
}

// ImportModel imports a bank statement. Rows are categorized by the stored
// rules and deposits naming a member are credited to that member. Nothing is
// written until the operator has reviewed the rows.
type ImportModel struct {
	CommonModel
	ledgerService   *ledger.Service
	importService   *importer.Service
	categoryService *categorize.Service
	memberService   *member.Service

	state      importState
	form       *huh.Form
	bank       importer.Bank
	filePicker filepicker.Model
	table      table.Model

	members []*member.Member
	rows    []importRow

	// checked is set once the rows went through duplicate detection.
	checked bool

	status string
	err    error
}

func NewImportModel(ledgerSvc *ledger.Service, impSvc *importer.Service, categorySvc *categorize.Service, memberSvc *member.Service) ImportModel {
	fp := filepicker.New()
	fp.CurrentDirectory, _ = os.Getwd()
	fp.DirAllowed = false
	fp.FileAllowed = true
	fp.SetHeight(15)

	return ImportModel{
		ledgerService:   ledgerSvc,
		importService:   impSvc,
		categoryService: categorySvc,
		memberService:   memberSvc,
		form:            newBankForm(),
		filePicker:      fp,
		table: newTable([]table.Column{
			{Title: "", Width: 3},
			{Title: "Date", Width: 12},
			{Title: "Amount", Width: 11},
			{Title: "Category", Width: 16},
			{Title: "Description", Width: 30},
			{Title: "Member", Width: 18},
			{Title: "Already in ledger", Width: 30},
		}),
	}
}

func newBankForm() *huh.Form {
	options := make([]huh.Option[string], len(importBanks))
	for i, b := range importBanks {
		options[i] = huh.NewOption(bankLabel(b), string(b))
	}

	return huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Key("bank").
			Title("Bank").
			Options(options...),
	)).WithWidth(50).WithShowHelp(false)
}

func (m ImportModel) Title() string { return "Import Bank Statement" }

func (m ImportModel) ShortHelp() string {
	if m.state == importStateReview {
		return "Space: skip/keep | m: member | c: category | Enter: import | Esc: cancel"
	}

	return "Esc: back | Enter: select"
}

func (m ImportModel) Init() tea.Cmd {
	return tea.Batch(m.form.Init(), m.loadMembersCmd())
}

func (m ImportModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case importMembersMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("Could not load members: %v", msg.err)
			return m, nil
		}

		m.members = msg.members

		return m, nil

	case statementReadMsg:
		if msg.err != nil {
			return m.finish(0, msg.err)
		}

		m.rows = make([]importRow, len(msg.params))
		for i, p := range msg.params {
			if p.MemberID == nil && p.Type == ledger.TypeIncome {
				p.MemberID = suggestMember(p.RawDescription, m.members)
			}

			m.rows[i] = importRow{params: p}
		}

		m.checked = false
		m.status = ""
		m.state = importStateReview
		m.refreshTable()
		m.table.SetCursor(0)
		m.table.Focus()

		return m, nil

	case importWrittenMsg:
		if msg.err != nil {
			return m.finish(0, msg.err)
		}

		if len(msg.conflicts) == 0 {
			return m.finish(msg.count, nil)
		}

		n := markDuplicates(m.rows, msg.conflicts)
		m.checked = true
		m.state = importStateReview
		m.status = fmt.Sprintf("%d row(s) are already in the ledger and will be skipped. Space keeps one anyway.", n)
		m.refreshTable()

		return m, nil

	case tea.WindowSizeMsg:
		m.table.SetHeight(msg.Height - 12)
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyEsc {
			return m.handleEsc()
		}
	}

	switch m.state {
	case importStateBank:
		return m.updateBank(msg)
	case importStateFile:
		return m.updateFile(msg)
	case importStateReview:
		return m.updateReview(msg)
	}

	return m, nil
}

func (m ImportModel) finish(count int, err error) (tea.Model, tea.Cmd) {
	m.state = importStateDone
	m.err = err
	m.rows = nil

	if err != nil {
		m.status = fmt.Sprintf("Error: %v", err)
	} else {
		m.status = fmt.Sprintf("Imported %d transaction(s).", count)
	}

	return m, nil
}

func (m ImportModel) handleEsc() (tea.Model, tea.Cmd) {
	switch m.state {
	case importStateBank:
		return m, Back
	case importStateWorking:
		return m, nil
	}

	m.state = importStateBank
	m.rows = nil
	m.checked = false
	m.err = nil
	m.status = ""
	m.form = newBankForm()

	return m, m.form.Init()
}

func (m ImportModel) updateBank(msg tea.Msg) (tea.Model, tea.Cmd) {
	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State != huh.StateCompleted {
		return m, cmd
	}

	m.bank = importer.Bank(m.form.GetString("bank"))
	m.state = importStateFile

	return m, m.filePicker.Init()
}

func (m ImportModel) updateFile(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	m.filePicker, cmd = m.filePicker.Update(msg)

	if ok, path := m.filePicker.DidSelectFile(msg); ok {
		m.state = importStateWorking
		m.status = fmt.Sprintf("Reading %s...", path)

		return m, m.readCmd(path)
	}

	return m, cmd
}

func (m ImportModel) updateReview(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	idx := m.table.Cursor()
	inRange := idx >= 0 && idx < len(m.rows)

	switch keyMsg.String() {
	case " ":
		if inRange {
			m.rows[idx].skip = !m.rows[idx].skip
			m.refreshTable()
		}

		return m, nil
	case "m":
		if inRange {
			m.rows[idx].params.MemberID = nextMember(m.rows[idx].params.MemberID, m.members)
			m.refreshTable()
		}

		return m, nil
	case "c":
		if inRange {
			m.rows[idx].params.Category = nextCategory(m.rows[idx].params.Category)
			m.refreshTable()
		}

		return m, nil
	case "enter":
		m.state = importStateWorking
		m.status = "Importing..."

		return m, m.writeCmd()
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)

	return m, cmd
}

func (m *ImportModel) refreshTable() {
	rows := make([]table.Row, len(m.rows))

	for i, r := range m.rows {
		mark := "[x]"
		if r.skip {
			mark = "[ ]"
		}

		existing := ""
		if r.existing != nil {
			existing = fmt.Sprintf("%s %s", FormatDate(r.existing.Date), r.existing.Description)
		}

		rows[i] = table.Row{
			mark,
			FormatDate(r.params.Date),
			FormatAmount(signed(r.params.Type, r.params.Amount)),
			r.params.Category,
			r.params.Description,
			m.memberName(r.params.MemberID),
			existing,
		}
	}

	m.table.SetRows(rows)
}

func (m ImportModel) memberName(id *uuid.UUID) string {
	if id == nil {
		return ""
	}

	for _, mb := range m.members {
		if mb.ID == *id {
			return mb.Name
		}
	}

	return id.String()[:8]
}

func (m ImportModel) View() string {
	switch m.state {
	case importStateBank:
		s := m.form.View()
		if m.status != "" {
			s += "\n" + errorStyle.Render(m.status)
		}

		return lipgloss.NewStyle().Padding(1).Render(s)

	case importStateFile:
		return lipgloss.NewStyle().Padding(1).Render(
			fmt.Sprintf("Statement file (%s):\n\n%s", bankLabel(m.bank), m.filePicker.View()),
		)

	case importStateWorking:
		return lipgloss.NewStyle().Padding(2).Render(m.status)

	case importStateReview:
		return m.viewReview()

	case importStateDone:
		style := successStyle
		if m.err != nil {
			style = errorStyle
		}

		return lipgloss.NewStyle().Padding(2).Render(style.Render(m.status) + "\n\n(Esc to import another)")
	}

	return ""
}

func (m ImportModel) viewReview() string {
	var (
		kept     int
		credited int
		net      = decimal.Zero
	)

	for _, r := range m.rows {
		if r.skip {
			continue
		}

		kept++
		net = net.Add(signed(r.params.Type, r.params.Amount))

		if r.params.MemberID != nil {
			credited++
		}
	}

	header := fmt.Sprintf("%d of %d row(s) | net %s | %d on member accounts",
		kept, len(m.rows), activeStyle(FormatAmount(net)), credited)

	s := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().PaddingBottom(1).Render(header),
		boxed(m.table.View()),
	)

	if m.status != "" {
		s += "\n" + faintStyle.Render(m.status)
	}

	return lipgloss.NewStyle().Padding(1).Render(s)
}

func bankLabel(b importer.Bank) string {
	switch b {
	case importer.BankAuto:
		return "Detect automatically"
	case importer.BankDNB:
		return "DNB"
	case importer.BankSpareBank1:
		return "SpareBank 1"
	case importer.BankNordea:
		return "Nordea"
	}

	return string(b)
}

func signed(t ledger.Type, amount decimal.Decimal) decimal.Decimal {
	if t == ledger.TypeExpense {
		return amount.Neg()
	}

	return amount
}

// suggestMember returns the member whose full name appears in a bank text.
// Texts naming more than one member get no suggestion.
func suggestMember(raw string, members []*member.Member) *uuid.UUID {
	text := strings.ToLower(raw)

	var found *uuid.UUID

	for _, mb := range members {
		name := strings.ToLower(strings.TrimSpace(mb.Name))
		if name == "" || !strings.Contains(text, name) {
			continue
		}

		if found != nil {
			return nil
		}

		found = new(mb.ID)
	}

	return found
}

// nextMember steps through no member, then each member in order.
func nextMember(current *uuid.UUID, members []*member.Member) *uuid.UUID {
	if len(members) == 0 {
		return nil
	}

	if current == nil {
		return new(members[0].ID)
	}

	for i, mb := range members {
		if mb.ID != *current {
			continue
		}

		if i == len(members)-1 {
			return nil
		}

		return new(members[i+1].ID)
	}

	return nil
}

func nextCategory(current string) string {
	for i, c := range importCategories {
		if c == current {
			return importCategories[(i+1)%len(importCategories)]
		}
	}

	return importCategories[0]
}

// markDuplicates flags the rows reported as conflicts and skips them. It
// returns how many rows were flagged.
func markDuplicates(rows []importRow, conflicts []ledger.Conflict) int {
	n := 0

	for _, c := range conflicts {
		for i := range rows {
			r := &rows[i]
			if r.existing != nil || !sameRow(r.params, c.Incoming) {
				continue
			}

			r.existing = c.Existing
			r.skip = true
			n++

			break
		}
	}

	return n
}

func sameRow(a, b ledger.CreateParams) bool {
	return a.Date.Equal(b.Date) &&
		a.Type == b.Type &&
		a.Amount.Equal(b.Amount) &&
		a.RawDescription == b.RawDescription
}

type importMembersMsg struct {
	members []*member.Member
	err     error
}

type statementReadMsg struct {
	params []ledger.CreateParams
	err    error
}

type importWrittenMsg struct {
	count     int
	conflicts []ledger.Conflict
	err       error
}

func (m ImportModel) loadMembersCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		members, err := m.memberService.List(ctx, member.ListFilter{ActiveOnly: true})

		return importMembersMsg{members: members, err: err}
	}
}

func (m ImportModel) readCmd(path string) tea.Cmd {
	bank := m.bank

	return func() tea.Msg {
		f, err := os.Open(path)
		if err != nil {
			return statementReadMsg{err: err}
		}
		defer f.Close()

		params, err := m.importService.Import(bank, f)
		if err != nil {
			return statementReadMsg{err: err}
		}

		ctx, cancel := context.WithTimeout(context.Background(), importTimeout)
		defer cancel()

		params, err = m.categoryService.Apply(ctx, params)

		return statementReadMsg{params: params, err: err}
	}
}

// writeCmd runs duplicate detection on the first submit. After the operator
// has seen the duplicates, the kept rows are written as they are.
func (m ImportModel) writeCmd() tea.Cmd {
	var params []ledger.CreateParams

	for _, r := range m.rows {
		if !r.skip {
			params = append(params, r.params)
		}
	}

	checked := m.checked

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), importTimeout)
		defer cancel()

		if checked {
			txs, err := m.ledgerService.CreateBatch(ctx, params)
			return importWrittenMsg{count: len(txs), err: err}
		}

		res, err := m.ledgerService.ImportBatch(ctx, params)
		if err != nil {
			return importWrittenMsg{err: err}
		}

		return importWrittenMsg{count: len(res.Imported), conflicts: res.Conflicts}
	}
}
