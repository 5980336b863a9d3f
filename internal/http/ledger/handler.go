package ledger

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/klubb/internal/http/respond"
	"github.com/MrJamesThe3rd/klubb/internal/ledger"
	"github.com/MrJamesThe3rd/klubb/internal/receipt"
)

const maxReceiptSize = 10 << 20

type Handler struct {
	svc      *ledger.Service
	receipts receipt.Storage
}

// NewHandler returns the ledger handler. receipts may be nil, in which case
// receipt uploads are rejected.
func NewHandler(svc *ledger.Service, receipts receipt.Storage) *Handler {
	return &Handler{svc: svc, receipts: receipts}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/grouped", h.grouped)
	r.Post("/expenses", h.registerExpense)
	r.Post("/receipts", h.uploadReceipt)
	r.Post("/delete", h.deleteMany)
	r.Delete("/", h.deleteAll)
	r.Get("/{id}", h.get)
	r.Delete("/{id}", h.delete)
}

func (h *Handler) BalanceRoutes(r chi.Router) {
	r.Post("/recalculate", h.recalculate)
	r.Put("/{memberID}", h.setBalance)
}

type createTransactionRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Type        ledger.Type     `json:"type"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Date        time.Time       `json:"date"`
	MemberID    *uuid.UUID      `json:"member_id,omitempty"`
	EventID     *uuid.UUID      `json:"event_id,omitempty"`
	ReceiptURL  string          `json:"receipt_url,omitempty"`
	ReceiptKey  string          `json:"receipt_key,omitempty"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}

	t, err := h.svc.Create(r.Context(), ledger.CreateParams{
		Amount:      req.Amount,
		Type:        req.Type,
		Description: req.Description,
		Category:    req.Category,
		Date:        req.Date,
		MemberID:    req.MemberID,
		EventID:     req.EventID,
		ReceiptURL:  req.ReceiptURL,
		ReceiptKey:  req.ReceiptKey,
	})
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.Created(w, ToResponse(t))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter, ok := parseFilter(w, r)
	if !ok {
		return
	}

	txs, err := h.svc.List(r.Context(), filter)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.OK(w, ToResponseList(txs))
}

func (h *Handler) grouped(w http.ResponseWriter, r *http.Request) {
	filter, ok := parseFilter(w, r)
	if !ok {
		return
	}

	txs, err := h.svc.List(r.Context(), filter)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.OK(w, toGroupList(ledger.GroupForDisplay(txs)))
}

// parseFilter reads member_id, category, start_date and end_date. It writes
// the error response itself and reports false on bad input.
func parseFilter(w http.ResponseWriter, r *http.Request) (ledger.ListFilter, bool) {
	q := r.URL.Query()
	filter := ledger.ListFilter{}

	if s := q.Get("member_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			respond.BadRequest(w, "invalid member_id")
			return filter, false
		}

		filter.MemberID = &id
	}

	if s := q.Get("category"); s != "" {
		filter.Category = new(s)
	}

	for key, dst := range map[string]**time.Time{"start_date": &filter.StartDate, "end_date": &filter.EndDate} {
		s := q.Get(key)
		if s == "" {
			continue
		}

		t, err := time.Parse(time.DateOnly, s)
		if err != nil {
			respond.BadRequest(w, "invalid "+key)
			return filter, false
		}

		*dst = &t
	}

	return filter, true
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond.BadRequest(w, "invalid id")
		return
	}

	t, err := h.svc.Get(r.Context(), id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.OK(w, ToResponse(t))
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

type deleteManyRequest struct {
	IDs []uuid.UUID `json:"ids"`
}

func (h *Handler) deleteMany(w http.ResponseWriter, r *http.Request) {
	var req deleteManyRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}

	if err := h.svc.DeleteMany(r.Context(), req.IDs); err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.OK(w, map[string]int{"deleted": len(req.IDs)})
}

// deleteAll wipes the ledger. The caller must pass confirm=all.
func (h *Handler) deleteAll(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("confirm") != "all" {
		respond.BadRequest(w, "pass confirm=all to delete every transaction")
		return
	}

	if err := h.svc.DeleteAll(r.Context()); err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.OK(w, nil)
}

type expenseRequest struct {
	Total       decimal.Decimal `json:"total"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Date        time.Time       `json:"date"`
	MemberIDs   []uuid.UUID     `json:"member_ids"`
	EventID     *uuid.UUID      `json:"event_id,omitempty"`
	ReceiptURL  string          `json:"receipt_url,omitempty"`
	ReceiptKey  string          `json:"receipt_key,omitempty"`
}

func (h *Handler) registerExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}

	txs, err := h.svc.RegisterExpense(r.Context(), ledger.ExpenseParams{
		Total:       req.Total,
		Description: req.Description,
		Category:    req.Category,
		Date:        req.Date,
		MemberIDs:   req.MemberIDs,
		EventID:     req.EventID,
		ReceiptURL:  req.ReceiptURL,
		ReceiptKey:  req.ReceiptKey,
	})
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.Created(w, ToResponseList(txs))
}

type uploadResponse struct {
	URL string `json:"url"`
	Key string `json:"key"`
}

func (h *Handler) uploadReceipt(w http.ResponseWriter, r *http.Request) {
	if h.receipts == nil {
		respond.Fail(w, http.StatusServiceUnavailable, "receipt storage is not configured")
		return
	}

	if err := r.ParseMultipartForm(maxReceiptSize); err != nil {
		respond.BadRequest(w, "failed to parse form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respond.BadRequest(w, "file field is required")
		return
	}
	defer file.Close()

	up, err := h.receipts.Upload(r.Context(), file, header.Filename)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.Created(w, uploadResponse{URL: up.URL, Key: up.Key})
}

func (h *Handler) recalculate(w http.ResponseWriter, r *http.Request) {
	drifts, err := h.svc.Recalculate(r.Context())
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.OK(w, toDriftList(drifts))
}

type setBalanceRequest struct {
	Balance decimal.Decimal `json:"balance"`
	Reason  string          `json:"reason"`
}

func (h *Handler) setBalance(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "memberID"))
	if err != nil {
		respond.BadRequest(w, "invalid member id")
		return
	}

	var req setBalanceRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}

	t, err := h.svc.SetBalance(r.Context(), id, req.Balance, req.Reason)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	if t == nil {
		respond.OK(w, nil)
		return
	}

	respond.OK(w, ToResponse(t))
}
