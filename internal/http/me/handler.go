// Package me serves the authenticated member's own finances and
// notifications.
package me

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/klubb/internal/auth"
	invoicehttp "github.com/MrJamesThe3rd/klubb/internal/http/invoice"
	ledgerhttp "github.com/MrJamesThe3rd/klubb/internal/http/ledger"
	memberhttp "github.com/MrJamesThe3rd/klubb/internal/http/member"
	"github.com/MrJamesThe3rd/klubb/internal/http/respond"
	"github.com/MrJamesThe3rd/klubb/internal/invoice"
	"github.com/MrJamesThe3rd/klubb/internal/ledger"
	"github.com/MrJamesThe3rd/klubb/internal/notification"
)

type Handler struct {
	ledger        *ledger.Service
	invoices      *invoice.Service
	notifications *notification.Service
}

func NewHandler(ledgerSvc *ledger.Service, invoiceSvc *invoice.Service, notificationSvc *notification.Service) *Handler {
	return &Handler{ledger: ledgerSvc, invoices: invoiceSvc, notifications: notificationSvc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Use(auth.Require(auth.CapViewOwnFinance))
	r.Get("/", h.profile)
	r.Get("/transactions", h.transactions)
	r.Get("/payment-requests", h.paymentRequests)
}

func (h *Handler) NotificationRoutes(r chi.Router) {
	r.Get("/", h.listNotifications)
	r.Post("/read", h.markAllRead)
	r.Post("/{id}/read", h.markRead)
}

func (h *Handler) profile(w http.ResponseWriter, r *http.Request) {
	m, ok := auth.FromContext(r.Context())
	if !ok {
		respond.Unauthorized(w)
		return
	}

	respond.OK(w, memberhttp.ToResponse(m))
}

func (h *Handler) transactions(w http.ResponseWriter, r *http.Request) {
	m, ok := auth.FromContext(r.Context())
	if !ok {
		respond.Unauthorized(w)
		return
	}

	txs, err := h.ledger.List(r.Context(), ledger.ListFilter{MemberID: &m.ID})
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.OK(w, ledgerhttp.ToResponseList(txs))
}

func (h *Handler) paymentRequests(w http.ResponseWriter, r *http.Request) {
	m, ok := auth.FromContext(r.Context())
	if !ok {
		respond.Unauthorized(w)
		return
	}

	filter := invoice.ListFilter{MemberID: &m.ID}
	if s := r.URL.Query().Get("status"); s != "" {
		filter.Status = new(invoice.Status(s))
	}

	rs, err := h.invoices.List(r.Context(), filter)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.OK(w, invoicehttp.ToResponseList(rs))
}

type notificationResponse struct {
	ID        uuid.UUID         `json:"id"`
	Type      notification.Type `json:"type"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Link      string            `json:"link,omitempty"`
	Read      bool              `json:"read"`
	CreatedAt time.Time         `json:"created_at"`
}

func (h *Handler) listNotifications(w http.ResponseWriter, r *http.Request) {
	m, ok := auth.FromContext(r.Context())
	if !ok {
		respond.Unauthorized(w)
		return
	}

	ns, err := h.notifications.List(r.Context(), m.ID, r.URL.Query().Get("unread") == "true")
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	out := make([]notificationResponse, 0, len(ns))
	for _, n := range ns {
		out = append(out, notificationResponse{
			ID:        n.ID,
			Type:      n.Type,
			Title:     n.Title,
			Message:   n.Message,
			Link:      n.Link,
			Read:      n.Read,
			CreatedAt: n.CreatedAt,
		})
	}

	respond.OK(w, out)
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	m, ok := auth.FromContext(r.Context())
	if !ok {
		respond.Unauthorized(w)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond.BadRequest(w, "invalid id")
		return
	}

	if err := h.notifications.MarkRead(r.Context(), id, m.ID); err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.OK(w, nil)
}

func (h *Handler) markAllRead(w http.ResponseWriter, r *http.Request) {
	m, ok := auth.FromContext(r.Context())
	if !ok {
		respond.Unauthorized(w)
		return
	}

	n, err := h.notifications.MarkAllRead(r.Context(), m.ID)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.OK(w, map[string]int64{"updated": n})
}
