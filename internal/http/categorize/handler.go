package categorize

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/klubb/internal/categorize"
	"github.com/MrJamesThe3rd/klubb/internal/http/respond"
)

type Handler struct {
	svc *categorize.Service
}

func NewHandler(svc *categorize.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/suggest", h.suggest)
	r.Post("/", h.learn)
	r.Delete("/{id}", h.delete)
}

type ruleResponse struct {
	ID                   uuid.UUID `json:"id"`
	RawPattern           string    `json:"raw_pattern"`
	PreferredDescription string    `json:"preferred_description"`
	Category             string    `json:"category"`
	CreatedAt            time.Time `json:"created_at"`
}

func toResponse(r *categorize.Rule) ruleResponse {
	return ruleResponse{
		ID:                   r.ID,
		RawPattern:           r.RawPattern,
		PreferredDescription: r.PreferredDescription,
		Category:             r.Category,
		CreatedAt:            r.CreatedAt,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	rules, err := h.svc.List(r.Context())
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	out := make([]ruleResponse, 0, len(rules))
	for _, rule := range rules {
		out = append(out, toResponse(rule))
	}

	respond.OK(w, out)
}

// suggest returns the matching rule, or null data when none matches.
func (h *Handler) suggest(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("raw_description")
	if raw == "" {
		respond.BadRequest(w, "raw_description query parameter is required")
		return
	}

	rule, err := h.svc.Suggest(r.Context(), raw)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	if rule == nil {
		respond.OK(w, nil)
		return
	}

	respond.OK(w, toResponse(rule))
}

type learnRequest struct {
	RawPattern           string `json:"raw_pattern"`
	PreferredDescription string `json:"preferred_description"`
	Category             string `json:"category"`
}

func (h *Handler) learn(w http.ResponseWriter, r *http.Request) {
	var req learnRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}

	rule, err := h.svc.Learn(r.Context(), req.RawPattern, req.PreferredDescription, req.Category)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.Created(w, toResponse(rule))
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
