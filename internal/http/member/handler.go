package member

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/klubb/internal/auth"
	"github.com/MrJamesThe3rd/klubb/internal/http/respond"
	"github.com/MrJamesThe3rd/klubb/internal/member"
)

type Handler struct {
	svc *member.Service
}

func NewHandler(svc *member.Service) *Handler {
	return &Handler{svc: svc}
}

// Routes serves /members. Moderators may read, only admins may change.
func (h *Handler) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(auth.Require(auth.CapReadMembers))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.Require(auth.CapManageMembers))
		r.Post("/", h.create)
		r.Put("/{id}/role", h.setRole)
		r.Post("/{id}/deactivate", h.deactivate)
		r.Delete("/{id}", h.delete)
	})
}

// FeeRoutes serves /membership-fees.
func (h *Handler) FeeRoutes(r chi.Router) {
	r.With(auth.Require(auth.CapReadMembers)).Get("/", h.listFees)
	r.With(auth.Require(auth.CapManageFinance)).Put("/{type}", h.setFee)
}

type memberResponse struct {
	ID             uuid.UUID             `json:"id"`
	Name           string                `json:"name"`
	Email          string                `json:"email,omitempty"`
	Role           member.Role           `json:"role"`
	MembershipType member.MembershipType `json:"membership_type"`
	Balance        decimal.Decimal       `json:"balance"`
	Active         bool                  `json:"active"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      *time.Time            `json:"updated_at,omitempty"`
}

func ToResponse(m *member.Member) memberResponse {
	return memberResponse{
		ID:             m.ID,
		Name:           m.Name,
		Email:          m.Email,
		Role:           m.Role,
		MembershipType: m.MembershipType,
		Balance:        m.Balance,
		Active:         m.Active,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := member.ListFilter{ActiveOnly: r.URL.Query().Get("active") == "true"}

	ms, err := h.svc.List(r.Context(), filter)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	out := make([]memberResponse, 0, len(ms))
	for _, m := range ms {
		out = append(out, ToResponse(m))
	}

	respond.OK(w, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond.BadRequest(w, "invalid id")
		return
	}

	m, err := h.svc.Get(r.Context(), id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.OK(w, ToResponse(m))
}

type createRequest struct {
	ExternalID     string                `json:"external_id"`
	Name           string                `json:"name"`
	Email          string                `json:"email"`
	Role           member.Role           `json:"role"`
	MembershipType member.MembershipType `json:"membership_type"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}

	m, err := h.svc.Create(r.Context(), member.CreateParams{
		ExternalID:     req.ExternalID,
		Name:           req.Name,
		Email:          req.Email,
		Role:           req.Role,
		MembershipType: req.MembershipType,
	})
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.Created(w, ToResponse(m))
}

type roleRequest struct {
	Role member.Role `json:"role"`
}

func (h *Handler) setRole(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond.BadRequest(w, "invalid id")
		return
	}

	var req roleRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}

	if err := h.svc.SetRole(r.Context(), id, req.Role); err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.OK(w, nil)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond.BadRequest(w, "invalid id")
		return
	}

	if err := h.svc.Deactivate(r.Context(), id); err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.OK(w, nil)
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

type feeResponse struct {
	Type   member.MembershipType `json:"type"`
	Amount decimal.Decimal       `json:"amount"`
}

func (h *Handler) listFees(w http.ResponseWriter, r *http.Request) {
	fees, err := h.svc.ListFees(r.Context())
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	out := make([]feeResponse, 0, len(fees))
	for _, f := range fees {
		out = append(out, feeResponse{Type: f.Type, Amount: f.Amount})
	}

	respond.OK(w, out)
}

type feeRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (h *Handler) setFee(w http.ResponseWriter, r *http.Request) {
	var req feeRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}

	t := member.MembershipType(chi.URLParam(r, "type"))

	if err := h.svc.SetFee(r.Context(), t, req.Amount); err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.OK(w, feeResponse{Type: t, Amount: req.Amount.Round(2)})
}
