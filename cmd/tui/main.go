package main

import (
	"context"
	"io"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"

	"github.com/MrJamesThe3rd/klubb/cmd/tui/internal/view"
	"github.com/MrJamesThe3rd/klubb/internal/app"
	"github.com/MrJamesThe3rd/klubb/internal/config"
)

type model struct {
	app *app.App

	currentView View

	balancesView view.BalancesModel
	batchesView  view.BatchesModel
	ledgerView   view.LedgerModel
	importView   view.ImportModel
	reportView   view.ReportModel
}

type View int

const (
	ViewMenu     View = 0
	ViewBalances View = 1
	ViewBatches  View = 2
	ViewLedger   View = 3
	ViewImport   View = 4
	ViewReport   View = 5
)

func initialModel(a *app.App) model {
	return model{
		app:          a,
		currentView:  ViewMenu,
		balancesView: view.NewBalancesModel(a.Members, a.Ledger),
		batchesView:  view.NewBatchesModel(a.Invoices),
		ledgerView:   view.NewLedgerModel(a.Ledger),
		importView:   view.NewImportModel(a.Ledger, a.Importer, a.Categories, a.Members),
		reportView:   view.NewReportModel(a.Reports, a.Invoices, a.Members),
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
				m.currentView = ViewBalances
				m.balancesView = view.NewBalancesModel(m.app.Members, m.app.Ledger)

				return m, m.balancesView.Init()
			case "2":
				m.currentView = ViewBatches
				m.batchesView = view.NewBatchesModel(m.app.Invoices)

				return m, m.batchesView.Init()
			case "3":
				m.currentView = ViewLedger
				m.ledgerView = view.NewLedgerModel(m.app.Ledger)

				return m, m.ledgerView.Init()
			case "4":
				m.currentView = ViewImport
				return m, m.importView.Init()
			case "5":
				m.currentView = ViewReport
				m.reportView = view.NewReportModel(m.app.Reports, m.app.Invoices, m.app.Members)

				return m, m.reportView.Init()
			}
		}
	case view.BackMsg:
		m.currentView = ViewMenu
		return m, nil
	}

	switch m.currentView {
	case ViewBalances:
		var newModel tea.Model
		newModel, cmd = m.balancesView.Update(msg)
		m.balancesView = newModel.(view.BalancesModel)
	case ViewBatches:
		var newModel tea.Model
		newModel, cmd = m.batchesView.Update(msg)
		m.batchesView = newModel.(view.BatchesModel)
	case ViewLedger:
		var newModel tea.Model
		newModel, cmd = m.ledgerView.Update(msg)
		m.ledgerView = newModel.(view.LedgerModel)
	case ViewImport:
		var newModel tea.Model
		newModel, cmd = m.importView.Update(msg)
		m.importView = newModel.(view.ImportModel)
	case ViewReport:
		var newModel tea.Model
		newModel, cmd = m.reportView.Update(msg)
		m.reportView = newModel.(view.ReportModel)
	}

	return m, cmd
}

func (m model) View() string {
	switch m.currentView {
	case ViewMenu:
		return lipgloss.NewStyle().Padding(2).Render(
			"Klubb\n\n" +
				"1. Member Balances\n" +
				"2. Payment Batches\n" +
				"3. Ledger\n" +
				"4. Import Bank Statement\n" +
				"5. Auditor Report\n\n" +
				"q. Quit",
		)
	case ViewBalances:
		return m.balancesView.View()
	case ViewBatches:
		return m.batchesView.View()
	case ViewLedger:
		return m.ledgerView.View()
	case ViewImport:
		return m.importView.View()
	case ViewReport:
		return m.reportView.View()
	}

	return "Unknown View"
}

// logOutput keeps log lines off the terminal the program draws on. Set
// KLUBB_TUI_LOG to a file path to keep them.
func logOutput() io.Writer {
	path := os.Getenv("KLUBB_TUI_LOG")
	if path == "" {
		return io.Discard
	}

	f, err := tea.LogToFile(path, "klubb")
	if err != nil {
		return io.Discard
	}

	return f
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	a, err := app.New(context.Background(), cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(logOutput(), &slog.HandlerOptions{Level: cfg.App.LogLevel})))

	p := tea.NewProgram(initialModel(a))

	_, err = p.Run()

	a.Close()

	if err != nil {
		slog.Error("failed to run TUI", "error", err)
		os.Exit(1)
	}
}
