package importcsv

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/klubb/internal/categorize"
	ledgerhttp "github.com/MrJamesThe3rd/klubb/internal/http/ledger"
	"github.com/MrJamesThe3rd/klubb/internal/http/respond"
	"github.com/MrJamesThe3rd/klubb/internal/importer"
	"github.com/MrJamesThe3rd/klubb/internal/ledger"
)

const maxUploadSize = 10 << 20

type Handler struct {
	importSvc   *importer.Service
	ledgerSvc   *ledger.Service
	categorySvc *categorize.Service
}

func NewHandler(importSvc *importer.Service, ledgerSvc *ledger.Service, categorySvc *categorize.Service) *Handler {
	return &Handler{
		importSvc:   importSvc,
		ledgerSvc:   ledgerSvc,
		categorySvc: categorySvc,
	}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.importCSV)
	r.Post("/confirm", h.confirmImport)
}

type importSuccessResponse struct {
	Imported     int `json:"imported"`
	Transactions any `json:"transactions"`
}

type paramsDTO struct {
	Amount         decimal.Decimal `json:"amount"`
	Type           ledger.Type     `json:"type"`
	Description    string          `json:"description"`
	RawDescription string          `json:"raw_description"`
	Category       string          `json:"category"`
	Date           time.Time       `json:"date"`
}

type conflictDTO struct {
	Incoming paramsDTO `json:"incoming"`
	Existing any       `json:"existing"`
}

type importConflictResponse struct {
	New       []paramsDTO   `json:"new"`
	Conflicts []conflictDTO `json:"conflicts"`
}

type confirmRequest struct {
	Params []paramsDTO `json:"params"`
}

// importCSV parses an uploaded statement, applies the learned
// categorization rules and imports it. When rows match existing
// transactions nothing is written and the conflicts are returned with 409 so
// the operator can confirm the rows to keep.
func (h *Handler) importCSV(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		respond.BadRequest(w, "failed to parse form")
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		respond.BadRequest(w, "file field is required")
		return
	}
	defer file.Close()

	params, err := h.importSvc.Import(importer.Bank(r.FormValue("bank")), file)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	params, err = h.categorySvc.Apply(r.Context(), params)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	result, err := h.ledgerSvc.ImportBatch(r.Context(), params)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	if len(result.Conflicts) > 0 {
		resp := importConflictResponse{
			New:       make([]paramsDTO, 0, len(result.New)),
			Conflicts: make([]conflictDTO, 0, len(result.Conflicts)),
		}
		for _, p := range result.New {
			resp.New = append(resp.New, toParamsDTO(p))
		}

		for _, c := range result.Conflicts {
			resp.Conflicts = append(resp.Conflicts, conflictDTO{
				Incoming: toParamsDTO(c.Incoming),
				Existing: ledgerhttp.ToResponse(c.Existing),
			})
		}

		respond.Conflict(w, "some rows are already in the ledger", resp)

		return
	}

	respond.Created(w, importSuccessResponse{
		Imported:     len(result.Imported),
		Transactions: ledgerhttp.ToResponseList(result.Imported),
	})
}

func (h *Handler) confirmImport(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}

	params := make([]ledger.CreateParams, 0, len(req.Params))
	for _, p := range req.Params {
		params = append(params, ledger.CreateParams{
			Amount:         p.Amount,
			Type:           p.Type,
			Description:    p.Description,
			RawDescription: p.RawDescription,
			Category:       p.Category,
			Date:           p.Date,
		})
	}

	txs, err := h.ledgerSvc.CreateBatch(r.Context(), params)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.Created(w, importSuccessResponse{
		Imported:     len(txs),
		Transactions: ledgerhttp.ToResponseList(txs),
	})
}

func toParamsDTO(p ledger.CreateParams) paramsDTO {
	return paramsDTO{
		Amount:         p.Amount,
		Type:           p.Type,
		Description:    p.Description,
		RawDescription: p.RawDescription,
		Category:       p.Category,
		Date:           p.Date,
	}
}
