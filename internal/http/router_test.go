package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/klubb/internal/auth"
	"github.com/MrJamesThe3rd/klubb/internal/categorize"
	klubbhttp "github.com/MrJamesThe3rd/klubb/internal/http"
	categorizehttp "github.com/MrJamesThe3rd/klubb/internal/http/categorize"
	"github.com/MrJamesThe3rd/klubb/internal/http/importcsv"
	invoicehttp "github.com/MrJamesThe3rd/klubb/internal/http/invoice"
	ledgerhttp "github.com/MrJamesThe3rd/klubb/internal/http/ledger"
	"github.com/MrJamesThe3rd/klubb/internal/http/me"
	memberhttp "github.com/MrJamesThe3rd/klubb/internal/http/member"
	reporthttp "github.com/MrJamesThe3rd/klubb/internal/http/report"
	"github.com/MrJamesThe3rd/klubb/internal/importer"
	"github.com/MrJamesThe3rd/klubb/internal/invoice"
	"github.com/MrJamesThe3rd/klubb/internal/ledger"
	"github.com/MrJamesThe3rd/klubb/internal/member"
	"github.com/MrJamesThe3rd/klubb/internal/notification"
	"github.com/MrJamesThe3rd/klubb/internal/report"
	"github.com/MrJamesThe3rd/klubb/internal/store/memory"
)

const secret = "router-test-secret"

type server struct {
	handler http.Handler
	members *member.Service
}

func newServer(t *testing.T) *server {
	t.Helper()

	store := memory.New()

	var (
		memberSvc       = member.NewService(store.Members(), decimal.NewFromInt(300))
		ledgerSvc       = ledger.NewService(store.Ledger(), nil, nil)
		invoiceSvc      = invoice.NewService(store.Invoices(), memberSvc, nil)
		notificationSvc = notification.NewService(store.Notifications())
		categorySvc     = categorize.NewService(store.Rules())
	)

	importSvc, err := importer.NewService()
	require.NoError(t, err)

	h := klubbhttp.New(klubbhttp.Handlers{
		Me:         me.NewHandler(ledgerSvc, invoiceSvc, notificationSvc),
		Members:    memberhttp.NewHandler(memberSvc),
		Ledger:     ledgerhttp.NewHandler(ledgerSvc, nil),
		Invoices:   invoicehttp.NewHandler(invoiceSvc),
		Import:     importcsv.NewHandler(importSvc, ledgerSvc, categorySvc),
		Categories: categorizehttp.NewHandler(categorySvc),
		Reports:    reporthttp.NewHandler(report.NewService(ledgerSvc)),
	}, auth.NewVerifier(secret, "", ""), memberSvc, []string{"http://localhost:5173"})

	return &server{handler: h, members: memberSvc}
}

// addMember creates a member and returns its id with a token for it.
func (s *server) addMember(t *testing.T, name string, role member.Role) (uuid.UUID, string) {
	t.Helper()

	m, err := s.members.Create(context.Background(), member.CreateParams{
		ExternalID: "auth|" + name,
		Name:       name,
		Email:      name + "@example.com",
		Role:       role,
	})
	require.NoError(t, err)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   m.ExternalID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	return m.ID, token
}

type envelope struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

func (s *server) do(t *testing.T, method, path, token string, body any) (int, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())

	return rec.Code, env
}

type requestDTO struct {
	ID      uuid.UUID       `json:"id"`
	Status  string          `json:"status"`
	Amount  decimal.Decimal `json:"amount"`
	Version int64           `json:"version"`
}

func TestRouter_Health(t *testing.T) {
	s := newServer(t)

	code, env := s.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)
}

func TestRouter_Authorization(t *testing.T) {
	s := newServer(t)
	_, memberToken := s.addMember(t, "kari", member.RoleMember)
	_, modToken := s.addMember(t, "ola", member.RoleModerator)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{name: "NoToken", method: http.MethodGet, path: "/api/v1/me", want: http.StatusUnauthorized},
		{name: "MemberReadsSelf", method: http.MethodGet, path: "/api/v1/me", token: memberToken, want: http.StatusOK},
		{name: "MemberCannotListMembers", method: http.MethodGet, path: "/api/v1/members", token: memberToken, want: http.StatusForbidden},
		{name: "MemberCannotReadLedger", method: http.MethodGet, path: "/api/v1/transactions", token: memberToken, want: http.StatusForbidden},
		{name: "ModeratorListsMembers", method: http.MethodGet, path: "/api/v1/members", token: modToken, want: http.StatusOK},
		{name: "ModeratorCannotSetFees", method: http.MethodPut, path: "/api/v1/membership-fees/STUDENT", token: modToken, want: http.StatusForbidden},
		{name: "ModeratorCannotRecalculate", method: http.MethodPost, path: "/api/v1/balances/recalculate", token: modToken, want: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := s.do(t, tt.method, tt.path, tt.token, nil)
			assert.Equal(t, tt.want, code)

			if code == http.StatusUnauthorized || code == http.StatusForbidden {
				assert.False(t, env.Success)
				assert.Equal(t, "Unauthorized", env.Error)
			}
		})
	}
}

func TestRouter_PaymentRequestFlow(t *testing.T) {
	s := newServer(t)
	_, adminToken := s.addMember(t, "admin", member.RoleAdmin)
	kariID, kariToken := s.addMember(t, "kari", member.RoleMember)

	code, env := s.do(t, http.MethodPost, "/api/v1/payment-requests", adminToken, map[string]any{
		"title":      "Cup-påmelding",
		"amount":     "500",
		"category":   "OTHER",
		"due_date":   "2026-05-01T00:00:00Z",
		"member_ids": []uuid.UUID{kariID},
	})
	require.Equal(t, http.StatusCreated, code, env.Error)

	var created []requestDTO
	require.NoError(t, json.Unmarshal(env.Data, &created))
	require.Len(t, created, 1)
	assert.Equal(t, "PENDING", created[0].Status)

	payPath := "/api/v1/payment-requests/" + created[0].ID.String() + "/pay"

	code, env = s.do(t, http.MethodPost, payPath, adminToken, map[string]int64{"version": created[0].Version})
	require.Equal(t, http.StatusOK, code, env.Error)

	var paid requestDTO
	require.NoError(t, json.Unmarshal(env.Data, &paid))
	assert.Equal(t, "PAID", paid.Status)
	assert.Greater(t, paid.Version, created[0].Version)

	t.Run("SecondPayConflicts", func(t *testing.T) {
		code, env := s.do(t, http.MethodPost, payPath, adminToken, map[string]int64{"version": paid.Version})
		assert.Equal(t, http.StatusConflict, code)
		assert.False(t, env.Success)
		assert.NotEmpty(t, env.Error)
	})

	t.Run("MemberSeesBalance", func(t *testing.T) {
		code, env := s.do(t, http.MethodGet, "/api/v1/me", kariToken, nil)
		require.Equal(t, http.StatusOK, code)

		var me struct {
			Balance decimal.Decimal `json:"balance"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &me))
		assert.Equal(t, "500.00", me.Balance.StringFixed(2))
	})

	t.Run("MemberSeesOwnRequests", func(t *testing.T) {
		code, env := s.do(t, http.MethodGet, "/api/v1/me/payment-requests", kariToken, nil)
		require.Equal(t, http.StatusOK, code)

		var rs []requestDTO
		require.NoError(t, json.Unmarshal(env.Data, &rs))
		require.Len(t, rs, 1)
		assert.Equal(t, "PAID", rs[0].Status)
	})
}

func TestRouter_FeeBatches(t *testing.T) {
	s := newServer(t)
	_, adminToken := s.addMember(t, "admin", member.RoleAdmin)
	s.addMember(t, "kari", member.RoleMember)

	code, env := s.do(t, http.MethodPost, "/api/v1/fee-batches/2025/6", adminToken, nil)
	require.Equal(t, http.StatusOK, code, env.Error)

	var res struct {
		Title   string `json:"title"`
		Created int    `json:"created"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, "Medlemskontingent 2025-06", res.Title)
	assert.Equal(t, 2, res.Created)

	code, env = s.do(t, http.MethodPost, "/api/v1/fee-batches/2025/6", adminToken, nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, 0, res.Created)

	code, env = s.do(t, http.MethodPost, "/api/v1/fee-batches/2025/13", adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid year or month", env.Error)
}

func TestRouter_RejectsUnknownFields(t *testing.T) {
	s := newServer(t)
	_, adminToken := s.addMember(t, "admin", member.RoleAdmin)

	code, env := s.do(t, http.MethodPost, "/api/v1/transactions", adminToken, map[string]any{"amaunt": "10"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.False(t, env.Success)
}
