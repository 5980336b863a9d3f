package invoice

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/klubb/internal/invoice"
)

type requestResponse struct {
	ID            uuid.UUID        `json:"id"`
	Title         string           `json:"title"`
	Description   string           `json:"description,omitempty"`
	Amount        decimal.Decimal  `json:"amount"`
	Category      invoice.Category `json:"category"`
	Status        invoice.Status   `json:"status"`
	DueDate       time.Time        `json:"due_date"`
	MemberID      uuid.UUID        `json:"member_id"`
	MemberName    string           `json:"member_name,omitempty"`
	EventID       *uuid.UUID       `json:"event_id,omitempty"`
	TransactionID *uuid.UUID       `json:"transaction_id,omitempty"`
	BatchID       *uuid.UUID       `json:"batch_id,omitempty"`
	Version       int64            `json:"version"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     *time.Time       `json:"updated_at,omitempty"`
}

func ToResponse(r *invoice.Request) requestResponse {
	return requestResponse{
		ID:            r.ID,
		Title:         r.Title,
		Description:   r.Description,
		Amount:        r.Amount,
		Category:      r.Category,
		Status:        r.Status,
		DueDate:       r.DueDate,
		MemberID:      r.MemberID,
		MemberName:    r.MemberName,
		EventID:       r.EventID,
		TransactionID: r.TransactionID,
		BatchID:       r.BatchID,
		Version:       r.Version,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func ToResponseList(rs []*invoice.Request) []requestResponse {
	out := make([]requestResponse, 0, len(rs))
	for _, r := range rs {
		out = append(out, ToResponse(r))
	}

	return out
}

type paymentResponse struct {
	MemberID uuid.UUID             `json:"member_id"`
	Period   string                `json:"period"`
	Status   invoice.PaymentStatus `json:"status"`
	Amount   *decimal.Decimal      `json:"amount"`
	PaidAt   *time.Time            `json:"paid_at"`
}

func toPaymentList(ps []*invoice.Payment) []paymentResponse {
	out := make([]paymentResponse, 0, len(ps))
	for _, p := range ps {
		out = append(out, paymentResponse{
			MemberID: p.MemberID,
			Period:   p.Period,
			Status:   p.Status,
			Amount:   p.Amount,
			PaidAt:   p.PaidAt,
		})
	}

	return out
}

type batchResponse struct {
	BatchID   uuid.UUID        `json:"batch_id"`
	Title     string           `json:"title"`
	Category  invoice.Category `json:"category"`
	CreatedAt time.Time        `json:"created_at"`
	DueDate   time.Time        `json:"due_date"`
	Total     int              `json:"total"`
	Pending   int              `json:"pending"`
	Paid      int              `json:"paid"`
	Waived    int              `json:"waived"`
	Amount    decimal.Decimal  `json:"amount"`
	Collected decimal.Decimal  `json:"collected"`
}

func toBatchList(bs []*invoice.BatchSummary) []batchResponse {
	out := make([]batchResponse, 0, len(bs))
	for _, b := range bs {
		out = append(out, batchResponse{
			BatchID:   b.BatchID,
			Title:     b.Title,
			Category:  b.Category,
			CreatedAt: b.CreatedAt,
			DueDate:   b.DueDate,
			Total:     b.Total,
			Pending:   b.Pending,
			Paid:      b.Paid,
			Waived:    b.Waived,
			Amount:    b.Amount,
			Collected: b.Collected,
		})
	}

	return out
}

type batchResultResponse struct {
	Paid      int         `json:"paid"`
	Skipped   int         `json:"skipped"`
	Failed    int         `json:"failed"`
	FailedIDs []uuid.UUID `json:"failed_ids,omitempty"`
}

func toBatchResult(res *invoice.BatchResult) batchResultResponse {
	return batchResultResponse{
		Paid:      res.Paid,
		Skipped:   res.Skipped,
		Failed:    res.Failed,
		FailedIDs: res.FailedIDs,
	}
}
