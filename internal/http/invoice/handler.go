package invoice

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/klubb/internal/http/respond"
	"github.com/MrJamesThe3rd/klubb/internal/invoice"
)

type Handler struct {
	svc *invoice.Service
}

func NewHandler(svc *invoice.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/payments", h.payments)
	r.Get("/batches", h.batches)
	r.Delete("/batches/{batchID}", h.deleteBatch)
	r.Post("/batches/{batchID}/pay", h.payBatch)
	r.Get("/{id}", h.get)
	r.Delete("/{id}", h.delete)
	r.Post("/{id}/pay", h.transition(h.svc.MarkPaid))
	r.Post("/{id}/toggle", h.transition(h.svc.TogglePaid))
	r.Post("/{id}/waive", h.transition(h.svc.Waive))
}

// FeeRoutes serves the monthly membership-fee batch of /{year}/{month}.
func (h *Handler) FeeRoutes(r chi.Router) {
	r.Post("/{year}/{month}", h.generateFees)
	r.Post("/{year}/{month}/pay", h.payFees)
	r.Delete("/{year}/{month}", h.deleteFees)
}

type createRequest struct {
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Amount      decimal.Decimal  `json:"amount"`
	Category    invoice.Category `json:"category"`
	DueDate     time.Time        `json:"due_date"`
	MemberIDs   []uuid.UUID      `json:"member_ids"`
	EventID     *uuid.UUID       `json:"event_id,omitempty"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}

	rs, err := h.svc.Create(r.Context(), invoice.CreateParams{
		Title:       req.Title,
		Description: req.Description,
		Amount:      req.Amount,
		Category:    req.Category,
		DueDate:     req.DueDate,
		MemberIDs:   req.MemberIDs,
		EventID:     req.EventID,
	})
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.Created(w, ToResponseList(rs))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := invoice.ListFilter{}

	if s := q.Get("member_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			respond.BadRequest(w, "invalid member_id")
			return
		}

		filter.MemberID = &id
	}

	if s := q.Get("batch_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			respond.BadRequest(w, "invalid batch_id")
			return
		}

		filter.BatchID = &id
	}

	if s := q.Get("status"); s != "" {
		filter.Status = new(invoice.Status(s))
	}

	if s := q.Get("category"); s != "" {
		filter.Category = new(invoice.Category(s))
	}

	rs, err := h.svc.List(r.Context(), filter)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.OK(w, ToResponseList(rs))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond.BadRequest(w, "invalid id")
		return
	}

	req, err := h.svc.Get(r.Context(), id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.OK(w, ToResponse(req))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond.BadRequest(w, "invalid id")
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.OK(w, nil)
}

type versionRequest struct {
	Version int64 `json:"version"`
}

// transition adapts a versioned state change to a handler. The body carries
// the version the caller last saw; 0 skips the check.
func (h *Handler) transition(fn func(ctx context.Context, id uuid.UUID, version int64) (*invoice.Request, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			respond.BadRequest(w, "invalid id")
			return
		}

		var req versionRequest
		if r.ContentLength != 0 {
			if err := respond.Decode(r, &req); err != nil {
				respond.Error(w, r, err)
				return
			}
		}

		updated, err := fn(r.Context(), id, req.Version)
		if err != nil {
			respond.Error(w, r, err)
			return
		}

		respond.OK(w, ToResponse(updated))
	}
}

func (h *Handler) payments(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	if _, err := time.Parse("2006-01", period); err != nil {
		respond.BadRequest(w, "period must be YYYY-MM")
		return
	}

	ps, err := h.svc.ListPayments(r.Context(), period)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.OK(w, toPaymentList(ps))
}

func (h *Handler) batches(w http.ResponseWriter, r *http.Request) {
	bs, err := h.svc.Batches(r.Context())
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.OK(w, toBatchList(bs))
}

func (h *Handler) deleteBatch(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "batchID"))
	if err != nil {
		respond.BadRequest(w, "invalid batch id")
		return
	}

	n, err := h.svc.DeleteBatch(r.Context(), id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.OK(w, map[string]int{"deleted": n})
}

func (h *Handler) payBatch(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "batchID"))
	if err != nil {
		respond.BadRequest(w, "invalid batch id")
		return
	}

	res, err := h.svc.MarkBatchPaid(r.Context(), id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.OK(w, toBatchResult(res))
}

// period reads {year}/{month}. Range checks are left to the service.
func period(w http.ResponseWriter, r *http.Request) (int, time.Month, bool) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		respond.BadRequest(w, "invalid year")
		return 0, 0, false
	}

	month, err := strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil {
		respond.BadRequest(w, "invalid month")
		return 0, 0, false
	}

	return year, time.Month(month), true
}

type generateResponse struct {
	BatchID uuid.UUID `json:"batch_id"`
	Title   string    `json:"title"`
	Created int       `json:"created"`
	Skipped int       `json:"skipped"`
}

func (h *Handler) generateFees(w http.ResponseWriter, r *http.Request) {
	year, month, ok := period(w, r)
	if !ok {
		return
	}

	res, err := h.svc.GenerateMonthlyFees(r.Context(), year, month)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.OK(w, generateResponse{
		BatchID: res.BatchID,
		Title:   res.Title,
		Created: res.Created,
		Skipped: res.Skipped,
	})
}

func (h *Handler) payFees(w http.ResponseWriter, r *http.Request) {
	year, month, ok := period(w, r)
	if !ok {
		return
	}

	res, err := h.svc.MarkMonthlyFeesPaid(r.Context(), year, month)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.OK(w, toBatchResult(res))
}

func (h *Handler) deleteFees(w http.ResponseWriter, r *http.Request) {
	year, month, ok := period(w, r)
	if !ok {
		return
	}

	n, err := h.svc.DeleteMonthlyFees(r.Context(), year, month)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.OK(w, map[string]int{"deleted": n})
}
