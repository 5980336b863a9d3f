// Package app wires repositories and services from configuration. Both the
// API server and the operator console start from here.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/MrJamesThe3rd/klubb/internal/categorize"
	categorizestore "github.com/MrJamesThe3rd/klubb/internal/categorize/store"
	"github.com/MrJamesThe3rd/klubb/internal/config"
	"github.com/MrJamesThe3rd/klubb/internal/database"
	"github.com/MrJamesThe3rd/klubb/internal/email"
	"github.com/MrJamesThe3rd/klubb/internal/importer"
	"github.com/MrJamesThe3rd/klubb/internal/invoice"
	invoicestore "github.com/MrJamesThe3rd/klubb/internal/invoice/store"
	"github.com/MrJamesThe3rd/klubb/internal/ledger"
	ledgerstore "github.com/MrJamesThe3rd/klubb/internal/ledger/store"
	"github.com/MrJamesThe3rd/klubb/internal/member"
	memberstore "github.com/MrJamesThe3rd/klubb/internal/member/store"
	"github.com/MrJamesThe3rd/klubb/internal/notification"
	notificationstore "github.com/MrJamesThe3rd/klubb/internal/notification/store"
	"github.com/MrJamesThe3rd/klubb/internal/receipt"
	"github.com/MrJamesThe3rd/klubb/internal/report"
	"github.com/MrJamesThe3rd/klubb/internal/store/memory"
)

type repositories struct {
	members       member.Repository
	ledger        ledger.Repository
	invoices      invoice.Repository
	notifications notification.Repository
	rules         categorize.Repository
}

type App struct {
	Members       *member.Service
	Ledger        *ledger.Service
	Invoices      *invoice.Service
	Notifications *notification.Service
	Categories    *categorize.Service
	Importer      *importer.Service
	Reports       *report.Service
	Dispatcher    *notification.Dispatcher
	// Receipts is nil when Cloudinary is not configured.
	Receipts receipt.Storage

	db *sql.DB
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{}

	repos, err := a.openRepositories(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if cfg.ReceiptsEnabled() {
		cld, err := receipt.NewCloudinary(cfg.Cloudinary.CloudName, cfg.Cloudinary.APIKey, cfg.Cloudinary.APISecret, cfg.Cloudinary.Folder)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("creating receipt storage: %w", err)
		}

		a.Receipts = cld
	} else {
		slog.Warn("cloudinary not configured, receipt uploads are disabled")
	}

	var mailer notification.Mailer
	if cfg.EmailEnabled() {
		mailer = email.NewClient(cfg.Email.APIURL, cfg.Email.APIKey, cfg.Email.From)
	} else {
		slog.Warn("email not configured, only in-app notifications are stored")
	}

	a.Members = member.NewService(repos.members, cfg.Fees.Fallback)
	a.Dispatcher = notification.NewDispatcher(repos.notifications, a.Members, mailer, cfg.App.PublicURL)
	a.Notifications = notification.NewService(repos.notifications)
	a.Ledger = ledger.NewService(repos.ledger, a.Receipts, a.Dispatcher)
	a.Invoices = invoice.NewService(repos.invoices, a.Members, a.Dispatcher)
	a.Categories = categorize.NewService(repos.rules)
	a.Reports = report.NewService(a.Ledger)

	a.Importer, err = importer.NewService()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating importer: %w", err)
	}

	return a, nil
}

func (a *App) openRepositories(ctx context.Context, cfg *config.Config) (*repositories, error) {
	if cfg.DB.Driver == "memory" {
		slog.Warn("using in-memory store, data is lost on exit")

		s := memory.New()

		return &repositories{
			members:       s.Members(),
			ledger:        s.Ledger(),
			invoices:      s.Invoices(),
			notifications: s.Notifications(),
			rules:         s.Rules(),
		}, nil
	}

	db, err := database.New(cfg.ConnectionString(), cfg.DB.MaxOpenConns)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if err := database.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	a.db = db

	return &repositories{
		members:       memberstore.New(db),
		ledger:        ledgerstore.New(db),
		invoices:      invoicestore.New(db),
		notifications: notificationstore.New(db),
		rules:         categorizestore.New(db),
	}, nil
}

// Close waits for pending notifications and closes the database.
func (a *App) Close() {
	if a.Dispatcher != nil {
		a.Dispatcher.Close()
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			slog.Error("failed to close database", "error", err)
		}
	}
}
