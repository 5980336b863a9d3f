package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/MrJamesThe3rd/klubb/internal/auth"
	"github.com/MrJamesThe3rd/klubb/internal/http/categorize"
	"github.com/MrJamesThe3rd/klubb/internal/http/importcsv"
	"github.com/MrJamesThe3rd/klubb/internal/http/invoice"
	"github.com/MrJamesThe3rd/klubb/internal/http/ledger"
	"github.com/MrJamesThe3rd/klubb/internal/http/me"
	"github.com/MrJamesThe3rd/klubb/internal/http/member"
	"github.com/MrJamesThe3rd/klubb/internal/http/report"
	"github.com/MrJamesThe3rd/klubb/internal/http/respond"
)

type Handlers struct {
	Me         *me.Handler
	Members    *member.Handler
	Ledger     *ledger.Handler
	Invoices   *invoice.Handler
	Import     *importcsv.Handler
	Categories *categorize.Handler
	Reports    *report.Handler
}

func New(h Handlers, verifier *auth.Verifier, members auth.Directory, allowedOrigins []string) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respond.OK(w, nil)
	})

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware(verifier, members))

		r.Route("/me", h.Me.Routes)
		r.Route("/notifications", h.Me.NotificationRoutes)

		r.Route("/members", h.Members.Routes)
		r.Route("/membership-fees", h.Members.FeeRoutes)

		r.Group(func(r chi.Router) {
			r.Use(auth.Require(auth.CapManageFinance))

			r.Route("/transactions", h.Ledger.Routes)
			r.Route("/balances", h.Ledger.BalanceRoutes)
			r.Route("/payment-requests", h.Invoices.Routes)
			r.Route("/fee-batches", h.Invoices.FeeRoutes)
			r.Route("/import", h.Import.Routes)
			r.Route("/categories", h.Categories.Routes)

			r.Route("/reports", func(r chi.Router) {
				r.Use(middleware.AllowContentType("application/json"))
				h.Reports.Routes(r)
			})
		})
	})

	return router
}
