package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/klubb/internal/ledger"
)

type transactionResponse struct {
	ID               uuid.UUID       `json:"id"`
	Amount           decimal.Decimal `json:"amount"`
	Type             ledger.Type     `json:"type"`
	Description      string          `json:"description"`
	RawDescription   string          `json:"raw_description,omitempty"`
	Category         string          `json:"category"`
	Date             time.Time       `json:"date"`
	MemberID         *uuid.UUID      `json:"member_id,omitempty"`
	MemberName       string          `json:"member_name,omitempty"`
	EventID          *uuid.UUID      `json:"event_id,omitempty"`
	PaymentRequestID *uuid.UUID      `json:"payment_request_id,omitempty"`
	ReceiptURL       string          `json:"receipt_url,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

func ToResponse(t *ledger.Transaction) transactionResponse {
	return transactionResponse{
		ID:               t.ID,
		Amount:           t.Amount,
		Type:             t.Type,
		Description:      t.Description,
		RawDescription:   t.RawDescription,
		Category:         t.Category,
		Date:             t.Date,
		MemberID:         t.MemberID,
		MemberName:       t.MemberName,
		EventID:          t.EventID,
		PaymentRequestID: t.PaymentRequestID,
		ReceiptURL:       t.ReceiptURL,
		CreatedAt:        t.CreatedAt,
	}
}

func ToResponseList(txs []*ledger.Transaction) []transactionResponse {
	out := make([]transactionResponse, 0, len(txs))
	for _, t := range txs {
		out = append(out, ToResponse(t))
	}

	return out
}

type groupResponse struct {
	Date           time.Time       `json:"date"`
	Category       string          `json:"category"`
	Description    string          `json:"description"`
	Amount         decimal.Decimal `json:"amount"`
	MemberNames    []string        `json:"member_names"`
	TransactionIDs []uuid.UUID     `json:"transaction_ids"`
	ReceiptURL     string          `json:"receipt_url,omitempty"`
}

func toGroupList(groups []*ledger.Group) []groupResponse {
	out := make([]groupResponse, 0, len(groups))
	for _, g := range groups {
		out = append(out, groupResponse{
			Date:           g.Date,
			Category:       g.Category,
			Description:    g.Description,
			Amount:         g.Amount,
			MemberNames:    g.MemberNames,
			TransactionIDs: g.TransactionIDs,
			ReceiptURL:     g.ReceiptURL,
		})
	}

	return out
}

type driftResponse struct {
	MemberID uuid.UUID       `json:"member_id"`
	Previous decimal.Decimal `json:"previous"`
	Current  decimal.Decimal `json:"current"`
}

func toDriftList(ds []ledger.Drift) []driftResponse {
	out := make([]driftResponse, 0, len(ds))
	for _, d := range ds {
		out = append(out, driftResponse{MemberID: d.MemberID, Previous: d.Previous, Current: d.Current})
	}

	return out
}
