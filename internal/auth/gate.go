package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const bearerPrefix = "Bearer "

// Guard inspects a request before dispatch. It either lets the request
// through, possibly with an enriched context, or rejects it.
type Guard func(r *http.Request) (*http.Request, error)

// PrincipalResolver looks up the stored user behind a subject.
type PrincipalResolver interface {
	Resolve(ctx context.Context, email string) (Principal, bool, error)
}

// Run evaluates guards in order. The first failure stops evaluation.
func Run(r *http.Request, guards ...Guard) (*http.Request, error) {
	for _, g := range guards {
		next, err := g(r)
		if err != nil {
			return r, err
		}
		if next != nil {
			r = next
		}
	}
	return r, nil
}

// Gate builds the guards used by the API.
type Gate struct {
	tokens     *TokenService
	principals PrincipalResolver
}

// NewGate wires a Gate.
func NewGate(tokens *TokenService, principals PrincipalResolver) *Gate {
	return &Gate{tokens: tokens, principals: principals}
}

// Authenticate verifies the bearer token and attaches its claims. A missing
// header is ErrUnauthorized; anything presented but unusable is ErrForbidden.
func (g *Gate) Authenticate() Guard {
	return func(r *http.Request) (*http.Request, error) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" {
			return nil, ErrUnauthorized
		}
		raw, ok := BearerToken(header)
		if !ok {
			return nil, fmt.Errorf("%w: authorization header is not a bearer token", ErrForbidden)
		}
		claims, err := g.tokens.Verify(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrForbidden, err)
		}
		return r.WithContext(ContextWithClaims(r.Context(), claims)), nil
	}
}

// RequireRole lets the request through only when the subject's stored
// record carries role.
func (g *Gate) RequireRole(role Role) Guard {
	return func(r *http.Request) (*http.Request, error) {
		r, p, err := g.principal(r)
		if err != nil {
			return nil, err
		}
		if !p.HasRole(role) {
			return nil, fmt.Errorf("%w: role %q required", ErrForbidden, role)
		}
		return r, nil
	}
}

// RequireSelf lets the request through when the email named by param matches
// the subject. Admins pass as well.
func (g *Gate) RequireSelf(param func(*http.Request) string) Guard {
	return func(r *http.Request) (*http.Request, error) {
		subject, ok := SubjectFromContext(r.Context())
		if !ok {
			return nil, ErrUnauthorized
		}
		if NormalizeEmail(param(r)) == subject {
			return r, nil
		}
		r, p, err := g.principal(r)
		if err != nil {
			return nil, err
		}
		if !p.IsAdmin() {
			return nil, fmt.Errorf("%w: resource belongs to another user", ErrForbidden)
		}
		return r, nil
	}
}

// principal resolves the subject once per request and caches it on the context.
func (g *Gate) principal(r *http.Request) (*http.Request, Principal, error) {
	if p, ok := PrincipalFromContext(r.Context()); ok {
		return r, p, nil
	}
	subject, ok := SubjectFromContext(r.Context())
	if !ok {
		return nil, Principal{}, ErrUnauthorized
	}
	p, found, err := g.principals.Resolve(r.Context(), subject)
	if err != nil {
		return nil, Principal{}, err
	}
	if !found {
		return nil, Principal{}, fmt.Errorf("%w: no user record for subject", ErrForbidden)
	}
	return r.WithContext(ContextWithPrincipal(r.Context(), p)), p, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return "", false
	}
	return token, true
}
