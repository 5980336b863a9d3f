package view

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/klubb/internal/invoice"
	"github.com/MrJamesThe3rd/klubb/internal/ledger"
	"github.com/MrJamesThe3rd/klubb/internal/member"
	"github.com/MrJamesThe3rd/klubb/internal/report"
)

const (
	reportTimeout = 2 * time.Minute
	defaultReport = "./regnskap"
)

type reportState int

const (
	reportStateTimeframe reportState = iota
	reportStateForm
	reportStateRunning
	reportStateDone
)

// ReportModel writes the auditor report for a period and shows what the
// club is still owed next to it.
type ReportModel struct {
	CommonModel
	reportService  *report.Service
	invoiceService *invoice.Service
	memberService  *member.Service

	state           reportState
	timeframePicker TimeframePicker
	filter          ledger.ListFilter
	form            *huh.Form
	spinner         spinner.Model

	out reportResultMsg
}

func NewReportModel(reportSvc *report.Service, invoiceSvc *invoice.Service, memberSvc *member.Service) ReportModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return ReportModel{
		reportService:   reportSvc,
		invoiceService:  invoiceSvc,
		memberService:   memberSvc,
		timeframePicker: NewTimeframePicker(TimeframeThisMonth),
		spinner:         s,
	}
}

func (m ReportModel) Title() string { return "Auditor Report" }

func (m ReportModel) ShortHelp() string {
	switch m.state {
	case reportStateRunning:
		return "Working..."
	case reportStateDone:
		return "Esc: back to menu"
	}

	return "Esc: back | Enter: confirm"
}

func (m ReportModel) Init() tea.Cmd {
	return nil
}

func (m ReportModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case TimeframeSelectedMsg:
		m.filter = ledger.ListFilter{}
		if !msg.All {
			m.filter.StartDate = &msg.Start
			m.filter.EndDate = &msg.End
		}

		m.form = newReportForm()
		m.state = reportStateForm

		return m, m.form.Init()

	case reportResultMsg:
		m.out = msg
		m.state = reportStateDone

		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyEsc {
			return m.handleEsc()
		}
	}

	var cmd tea.Cmd

	switch m.state {
	case reportStateTimeframe:
		m.timeframePicker, cmd = m.timeframePicker.Update(msg)
	case reportStateForm:
		return m.updateForm(msg)
	case reportStateRunning:
		m.spinner, cmd = m.spinner.Update(msg)
	}

	return m, cmd
}

func (m ReportModel) handleEsc() (tea.Model, tea.Cmd) {
	switch m.state {
	case reportStateTimeframe:
		if m.timeframePicker.IsSelecting() {
			return m, Back
		}

		var cmd tea.Cmd
		m.timeframePicker, cmd = m.timeframePicker.Update(tea.KeyMsg{Type: tea.KeyEsc})

		return m, cmd
	case reportStateForm:
		m.state = reportStateTimeframe
		m.timeframePicker.Reset()

		return m, nil
	case reportStateDone:
		return m, Back
	}

	return m, nil
}

func newReportForm() *huh.Form {
	dir := defaultReport

	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Key("dir").
				Title("Output directory").
				Description("Created if missing. Receipts are downloaded next to the CSV.").
				Value(&dir),
		),
	).WithWidth(50).WithShowHelp(false)
}

func (m ReportModel) updateForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State != huh.StateCompleted {
		return m, cmd
	}

	dir := strings.TrimSpace(m.form.GetString("dir"))
	if dir == "" {
		dir = defaultReport
	}

	m.state = reportStateRunning

	return m, tea.Batch(m.spinner.Tick, m.runCmd(m.filter, dir))
}

func (m ReportModel) View() string {
	style := lipgloss.NewStyle().Padding(1)

	switch m.state {
	case reportStateTimeframe:
		return style.Render(m.timeframePicker.View())
	case reportStateForm:
		return style.Render(m.form.View())
	case reportStateRunning:
		return style.Render(m.spinner.View() + " Collecting transactions and downloading receipts...")
	case reportStateDone:
		return style.Render(m.viewDone())
	}

	return ""
}

func (m ReportModel) viewDone() string {
	if m.out.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v", m.out.err))
	}

	written := lipgloss.JoinVertical(lipgloss.Left,
		successStyle.Bold(true).Render("Report written to "+m.out.dir),
		"",
		m.out.summary,
	)

	if m.out.owedErr != nil {
		return written + "\n" + errorStyle.Render(fmt.Sprintf("Could not load outstanding amounts: %v", m.out.owedErr))
	}

	return lipgloss.JoinHorizontal(lipgloss.Top,
		written,
		lipgloss.NewStyle().MarginLeft(4).Render(boxed(m.out.owed)),
	)
}

type reportResultMsg struct {
	dir     string
	summary string
	owed    string
	err     error
	owedErr error
}

func (m ReportModel) runCmd(filter ledger.ListFilter, dir string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), reportTimeout)
		defer cancel()

		items, err := m.reportService.Export(ctx, filter, dir)
		if err != nil {
			return reportResultMsg{err: err}
		}

		if err := m.reportService.WriteFiles(items, dir); err != nil {
			return reportResultMsg{err: err}
		}

		out := reportResultMsg{dir: dir, summary: report.Summary(items)}
		out.owed, out.owedErr = m.outstanding(ctx)

		return out
	}
}

func (m ReportModel) outstanding(ctx context.Context) (string, error) {
	pending := invoice.StatusPending

	requests, err := m.invoiceService.List(ctx, invoice.ListFilter{Status: &pending})
	if err != nil {
		return "", fmt.Errorf("list pending requests: %w", err)
	}

	members, err := m.memberService.List(ctx, member.ListFilter{})
	if err != nil {
		return "", fmt.Errorf("list members: %w", err)
	}

	return outstandingSummary(requests, members), nil
}

// outstandingSummary lists open payment requests and the members whose
// balance is below zero, largest debt first.
func outstandingSummary(requests []*invoice.Request, members []*member.Member) string {
	open := decimal.Zero
	for _, r := range requests {
		open = open.Add(r.Amount)
	}

	var b strings.Builder

	fmt.Fprintf(&b, "Open payment requests: %d (%s)\n", len(requests), FormatAmount(open))

	var owing []*member.Member

	for _, mb := range members {
		if mb.Balance.IsNegative() {
			owing = append(owing, mb)
		}
	}

	if len(owing) == 0 {
		b.WriteString("No member owes the club.")
		return b.String()
	}

	sort.Slice(owing, func(i, j int) bool { return owing[i].Balance.LessThan(owing[j].Balance) })

	b.WriteString("\nOwing:\n")

	for _, mb := range owing {
		fmt.Fprintf(&b, "  %-24s %10s\n", mb.Name, FormatAmount(mb.Balance))
	}

	return strings.TrimRight(b.String(), "\n")
}
