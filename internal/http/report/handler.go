package report

import (
	"archive/zip"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"

	ledgerhttp "github.com/MrJamesThe3rd/klubb/internal/http/ledger"
	"github.com/MrJamesThe3rd/klubb/internal/http/respond"
	"github.com/MrJamesThe3rd/klubb/internal/ledger"
	"github.com/MrJamesThe3rd/klubb/internal/report"
)

type Handler struct {
	svc *report.Service
}

func NewHandler(svc *report.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.metadata)
	r.Post("/download", h.download)
}

type reportRequest struct {
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
}

type metadataResponse struct {
	Transactions any    `json:"transactions"`
	Summary      string `json:"summary"`
}

// export downloads the period into a temporary directory. The caller must
// remove dir.
func (h *Handler) export(w http.ResponseWriter, r *http.Request) ([]report.Item, string, bool) {
	var req reportRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, r, err)
		return nil, "", false
	}

	dir, err := os.MkdirTemp("", "klubb-report-*")
	if err != nil {
		respond.Error(w, r, fmt.Errorf("creating temp dir: %w", err))
		return nil, "", false
	}

	items, err := h.svc.Export(r.Context(), ledger.ListFilter{StartDate: req.StartDate, EndDate: req.EndDate}, dir)
	if err != nil {
		os.RemoveAll(dir)
		respond.Error(w, r, err)

		return nil, "", false
	}

	return items, dir, true
}

func (h *Handler) metadata(w http.ResponseWriter, r *http.Request) {
	items, dir, ok := h.export(w, r)
	if !ok {
		return
	}
	defer os.RemoveAll(dir)

	txs := make([]*ledger.Transaction, 0, len(items))
	for _, item := range items {
		txs = append(txs, item.Transaction)
	}

	respond.OK(w, metadataResponse{
		Transactions: ledgerhttp.ToResponseList(txs),
		Summary:      report.Summary(items),
	})
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	items, dir, ok := h.export(w, r)
	if !ok {
		return
	}
	defer os.RemoveAll(dir)

	if err := h.svc.WriteFiles(items, dir); err != nil {
		respond.Error(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=\"regnskap_%s.zip\"", time.Now().Format("20060102")))

	zw := zip.NewWriter(w)
	defer zw.Close()

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		zf, err := zw.Create(rel)
		if err != nil {
			return err
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		_, err = io.Copy(zf, f)

		return err
	})
	if err != nil {
		slog.Error("failed to create zip", "error", err)
	}
}
