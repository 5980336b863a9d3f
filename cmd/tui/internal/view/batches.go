package view

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/klubb/internal/invoice"
)

// Marking a large batch paid runs one database transaction per request.
const batchTimeout = 2 * time.Minute

type batchState int

const (
	batchStateBrowse batchState = iota
	batchStateGenerate
	batchStateConfirmDelete
)

// BatchesModel manages payment-request batches, monthly membership fees in
// particular.
type BatchesModel struct {
	CommonModel
	invoiceService *invoice.Service

	state   batchState
	table   table.Model
	batches []*invoice.BatchSummary
	form    *huh.Form

	loading bool
	err     error
	status  string
}

func NewBatchesModel(svc *invoice.Service) BatchesModel {
	return BatchesModel{
		invoiceService: svc,
		table: newTable([]table.Column{
			{Title: "Title", Width: 32},
			{Title: "Due", Width: 12},
			{Title: "Pending", Width: 8},
			{Title: "Paid", Width: 8},
			{Title: "Waived", Width: 8},
			{Title: "Amount", Width: 12},
			{Title: "Collected", Width: 12},
		}),
		loading: true,
	}
}

func (m BatchesModel) Title() string { return "Payment Batches" }

func (m BatchesModel) ShortHelp() string {
	if m.state != batchStateBrowse {
		return "Navigate form | Esc: cancel"
	}

	return "Esc: back | g: generate monthly fees | p: mark batch paid | x: delete batch | r: refresh"
}

func (m BatchesModel) Init() tea.Cmd {
	return m.loadCmd()
}

func (m BatchesModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case loadBatchesMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}

		m.batches = msg.batches
		m.refreshTable()

		return m, nil

	case batchActionMsg:
		m.state = batchStateBrowse
		m.form = nil
		m.table.Focus()

		if msg.err != nil {
			m.status = fmt.Sprintf("Error: %v", msg.err)
			return m, nil
		}

		m.status = msg.status

		return m, m.loadCmd()

	case tea.WindowSizeMsg:
		m.table.SetHeight(msg.Height - 10)
		return m, nil
	}

	if m.state != batchStateBrowse {
		return m.updateForm(msg)
	}

	return m.updateBrowse(msg)
}

func (m BatchesModel) updateBrowse(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "esc":
			return m, Back
		case "r":
			m.loading = true
			return m, m.loadCmd()
		case "g":
			return m.enterForm(batchStateGenerate, m.generateForm())
		case "p":
			b := m.selected()
			if b == nil {
				return m, nil
			}

			m.status = fmt.Sprintf("Marking %q paid...", b.Title)

			return m, m.markPaidCmd(b.BatchID)
		case "x":
			b := m.selected()
			if b == nil {
				return m, nil
			}

			return m.enterForm(batchStateConfirmDelete, huh.NewForm(huh.NewGroup(
				huh.NewConfirm().
					Key("confirm").
					Title(fmt.Sprintf("Delete all %d requests of %q?", b.Total, b.Title)).
					Description("Batches with paid requests cannot be deleted."),
			)).WithWidth(50).WithShowHelp(false))
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)

	return m, cmd
}

func (m BatchesModel) generateForm() *huh.Form {
	now := time.Now()
	year := strconv.Itoa(now.Year())
	month := strconv.Itoa(int(now.Month()))

	validInt := func(lo, hi int) func(string) error {
		return func(s string) error {
			n, err := strconv.Atoi(s)
			if err != nil || n < lo || n > hi {
				return fmt.Errorf("enter a number between %d and %d", lo, hi)
			}

			return nil
		}
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Key("year").Title("Year").Value(&year).Validate(validInt(2000, 2100)),
			huh.NewInput().Key("month").Title("Month").Value(&month).Validate(validInt(1, 12)),
		),
	).WithWidth(40).WithShowHelp(false)
}

func (m BatchesModel) enterForm(state batchState, form *huh.Form) (tea.Model, tea.Cmd) {
	m.state = state
	m.form = form
	m.table.Blur()

	return m, m.form.Init()
}

func (m BatchesModel) updateForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEsc {
		m.state = batchStateBrowse
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

	switch m.state {
	case batchStateGenerate:
		year, _ := strconv.Atoi(m.form.GetString("year"))
		month, _ := strconv.Atoi(m.form.GetString("month"))

		return m, m.generateCmd(year, time.Month(month))
	case batchStateConfirmDelete:
		if !m.form.GetBool("confirm") {
			return m, func() tea.Msg { return batchActionMsg{status: "Cancelled."} }
		}

		if b := m.selected(); b != nil {
			return m, m.deleteCmd(b.BatchID)
		}
	}

	return m, nil
}

func (m BatchesModel) selected() *invoice.BatchSummary {
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.batches) {
		return nil
	}

	return m.batches[idx]
}

func (m BatchesModel) View() string {
	if m.loading {
		return lipgloss.NewStyle().Padding(2).Render("Loading batches...")
	}

	if m.err != nil {
		return lipgloss.NewStyle().Padding(2).Render(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
	}

	content := boxed(m.table.View())

	if m.state != batchStateBrowse && m.form != nil {
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

func (m *BatchesModel) refreshTable() {
	rows := make([]table.Row, 0, len(m.batches))
	for _, b := range m.batches {
		rows = append(rows, table.Row{
			b.Title,
			FormatDate(b.DueDate),
			strconv.Itoa(b.Pending),
			strconv.Itoa(b.Paid),
			strconv.Itoa(b.Waived),
			FormatAmount(b.Amount),
			FormatAmount(b.Collected),
		})
	}

	m.table.SetRows(rows)
}

// Messages

type loadBatchesMsg struct {
	batches []*invoice.BatchSummary
	err     error
}

type batchActionMsg struct {
	status string
	err    error
}

func (m BatchesModel) loadCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		batches, err := m.invoiceService.Batches(ctx)

		return loadBatchesMsg{batches: batches, err: err}
	}
}

func (m BatchesModel) generateCmd(year int, month time.Month) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
		defer cancel()

		res, err := m.invoiceService.GenerateMonthlyFees(ctx, year, month)
		if err != nil {
			return batchActionMsg{err: err}
		}

		return batchActionMsg{status: fmt.Sprintf("%s: %d created, %d already had one.", res.Title, res.Created, res.Skipped)}
	}
}

func (m BatchesModel) markPaidCmd(id uuid.UUID) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
		defer cancel()

		res, err := m.invoiceService.MarkBatchPaid(ctx, id)
		if err != nil {
			return batchActionMsg{err: err}
		}

		status := fmt.Sprintf("%d paid, %d skipped.", res.Paid, res.Skipped)
		if res.Failed > 0 {
			status += fmt.Sprintf(" %d failed, run again to retry.", res.Failed)
		}

		return batchActionMsg{status: status}
	}
}

func (m BatchesModel) deleteCmd(id uuid.UUID) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		n, err := m.invoiceService.DeleteBatch(ctx, id)
		if err != nil {
			return batchActionMsg{err: err}
		}

		return batchActionMsg{status: fmt.Sprintf("Deleted %d requests.", n)}
	}
}
