package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/MrJamesThe3rd/klubb/internal/app"
	"github.com/MrJamesThe3rd/klubb/internal/auth"
	"github.com/MrJamesThe3rd/klubb/internal/config"
	klubbHttp "github.com/MrJamesThe3rd/klubb/internal/http"
	categoryHandler "github.com/MrJamesThe3rd/klubb/internal/http/categorize"
	importHandler "github.com/MrJamesThe3rd/klubb/internal/http/importcsv"
	invoiceHandler "github.com/MrJamesThe3rd/klubb/internal/http/invoice"
	ledgerHandler "github.com/MrJamesThe3rd/klubb/internal/http/ledger"
	meHandler "github.com/MrJamesThe3rd/klubb/internal/http/me"
	memberHandler "github.com/MrJamesThe3rd/klubb/internal/http/member"
	reportHandler "github.com/MrJamesThe3rd/klubb/internal/http/report"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.App.LogLevel})))

	if cfg.Auth.Secret == "" {
		slog.Error("AUTH_JWT_SECRET is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	handlers := klubbHttp.Handlers{
		Me:         meHandler.NewHandler(a.Ledger, a.Invoices, a.Notifications),
		Members:    memberHandler.NewHandler(a.Members),
		Ledger:     ledgerHandler.NewHandler(a.Ledger, a.Receipts),
		Invoices:   invoiceHandler.NewHandler(a.Invoices),
		Import:     importHandler.NewHandler(a.Importer, a.Ledger, a.Categories),
		Categories: categoryHandler.NewHandler(a.Categories),
		Reports:    reportHandler.NewHandler(a.Reports),
	}

	verifier := auth.NewVerifier(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.Audience)
	router := klubbHttp.New(handlers, verifier, a.Members, cfg.Server.AllowedOrigin)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	errCh := make(chan error, 1)

	go func() {
		slog.Info("starting server", "name", cfg.App.Name, "addr", srv.Addr, "db", cfg.DB.Driver)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
		}
	case <-ctx.Done():
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("failed to shut down gracefully", "error", err)
		}
	}
}
