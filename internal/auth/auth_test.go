package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/klubb/internal/auth"
	"github.com/MrJamesThe3rd/klubb/internal/member"
)

const secret = "test-secret"

func sign(t *testing.T, key string, claims jwt.RegisteredClaims) string {
	t.Helper()

	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	require.NoError(t, err)

	return s
}

func validClaims(subject string) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    "https://id.example.com",
		Audience:  jwt.ClaimStrings{"klubb"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
}

func TestVerifier_Verify(t *testing.T) {
	v := auth.NewVerifier(secret, "https://id.example.com", "klubb")

	expired := validClaims("auth|1")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))

	wrongAudience := validClaims("auth|1")
	wrongAudience.Audience = jwt.ClaimStrings{"other"}

	noExpiry := validClaims("auth|1")
	noExpiry.ExpiresAt = nil

	tests := []struct {
		name    string
		token   string
		want    string
		wantErr bool
	}{
		{name: "Valid", token: sign(t, secret, validClaims("auth|1")), want: "auth|1"},
		{name: "WrongSecret", token: sign(t, "other", validClaims("auth|1")), wantErr: true},
		{name: "Expired", token: sign(t, secret, expired), wantErr: true},
		{name: "WrongAudience", token: sign(t, secret, wrongAudience), wantErr: true},
		{name: "NoExpiry", token: sign(t, secret, noExpiry), wantErr: true},
		{name: "NoSubject", token: sign(t, secret, validClaims("")), wantErr: true},
		{name: "Garbage", token: "not.a.token", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.Verify(tt.token)
			if tt.wantErr {
				assert.ErrorIs(t, err, auth.ErrInvalidToken)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type directory map[string]*member.Member

func (d directory) GetByExternalID(_ context.Context, id string) (*member.Member, error) {
	if m, ok := d[id]; ok {
		return m, nil
	}

	return nil, member.ErrNotFound
}

func TestMiddleware(t *testing.T) {
	v := auth.NewVerifier(secret, "", "")
	dir := directory{
		"auth|admin":  {ID: uuid.New(), Role: member.RoleAdmin, Active: true},
		"auth|member": {ID: uuid.New(), Role: member.RoleMember, Active: true},
		"auth|gone":   {ID: uuid.New(), Role: member.RoleAdmin, Active: false},
	}

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, found := auth.FromContext(r.Context())
		assert.True(t, found)
		w.WriteHeader(http.StatusNoContent)
	})

	handler := auth.Middleware(v, dir)(auth.Require(auth.CapManageFinance)(ok))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "Admin", header: "Bearer " + sign(t, secret, validClaims("auth|admin")), want: http.StatusNoContent},
		{name: "MemberLacksCapability", header: "Bearer " + sign(t, secret, validClaims("auth|member")), want: http.StatusForbidden},
		{name: "Deactivated", header: "Bearer " + sign(t, secret, validClaims("auth|gone")), want: http.StatusUnauthorized},
		{name: "UnknownSubject", header: "Bearer " + sign(t, secret, validClaims("auth|who")), want: http.StatusUnauthorized},
		{name: "MissingHeader", want: http.StatusUnauthorized},
		{name: "NotBearer", header: "Basic abc", want: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)

			if tt.want != http.StatusNoContent {
				assert.JSONEq(t, `{"success":false,"error":"Unauthorized"}`, rec.Body.String())
			}
		})
	}
}

func TestCan(t *testing.T) {
	assert.True(t, auth.Can(member.RoleMember, auth.CapViewOwnFinance))
	assert.False(t, auth.Can(member.RoleMember, auth.CapReadMembers))
	assert.True(t, auth.Can(member.RoleModerator, auth.CapReadMembers))
	assert.False(t, auth.Can(member.RoleModerator, auth.CapManageFinance))
	assert.True(t, auth.Can(member.RoleAdmin, auth.CapManageFinance))
	assert.False(t, auth.Can("OWNER", auth.CapViewOwnFinance))
}
