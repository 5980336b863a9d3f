// Package auth verifies bearer tokens issued by the identity provider and
// decides what the authenticated member may do.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/MrJamesThe3rd/klubb/internal/http/respond"
	"github.com/MrJamesThe3rd/klubb/internal/member"
)

var ErrInvalidToken = errors.New("invalid token")

// Verifier validates HS256 tokens and returns their subject.
type Verifier struct {
	secret   []byte
	issuer   string
	audience string
}

func NewVerifier(secret, issuer, audience string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer, audience: audience}
}

func (v *Verifier) Verify(token string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}

	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	var claims jwt.RegisteredClaims

	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return claims.Subject, nil
}

// Capability is a single permission. Roles map to a fixed set of them.
type Capability int

const (
	CapViewOwnFinance Capability = iota
	CapReadMembers
	CapManageMembers
	CapManageFinance
)

var capabilities = map[member.Role][]Capability{
	member.RoleMember:    {CapViewOwnFinance},
	member.RoleModerator: {CapViewOwnFinance, CapReadMembers},
	member.RoleAdmin:     {CapViewOwnFinance, CapReadMembers, CapManageMembers, CapManageFinance},
}

func Can(role member.Role, c Capability) bool {
	return slices.Contains(capabilities[role], c)
}

type Directory interface {
	GetByExternalID(ctx context.Context, externalID string) (*member.Member, error)
}

type contextKey struct{}

// FromContext returns the member authenticated by Middleware.
func FromContext(ctx context.Context) (*member.Member, bool) {
	m, ok := ctx.Value(contextKey{}).(*member.Member)
	return m, ok
}

// WithMember stores m as the authenticated member.
func WithMember(ctx context.Context, m *member.Member) context.Context {
	return context.WithValue(ctx, contextKey{}, m)
}

// Middleware authenticates the bearer token and loads the member it belongs
// to. Unknown and deactivated members are rejected.
func Middleware(v *Verifier, members Directory) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearer(r.Header.Get("Authorization"))
			if !ok {
				respond.Unauthorized(w)
				return
			}

			subject, err := v.Verify(token)
			if err != nil {
				slog.Debug("rejected token", "error", err)
				respond.Unauthorized(w)

				return
			}

			m, err := members.GetByExternalID(r.Context(), subject)
			if err != nil {
				if !errors.Is(err, member.ErrNotFound) {
					slog.Error("failed to load member", "error", err)
				}

				respond.Unauthorized(w)

				return
			}

			if !m.Active {
				respond.Unauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithMember(r.Context(), m)))
		})
	}
}

// Require rejects requests whose member lacks c.
func Require(c Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m, ok := FromContext(r.Context())
			if !ok {
				respond.Unauthorized(w)
				return
			}

			if !Can(m.Role, c) {
				respond.Forbidden(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func bearer(header string) (string, bool) {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "", false
	}

	token = strings.TrimSpace(token)

	return token, token != ""
}
