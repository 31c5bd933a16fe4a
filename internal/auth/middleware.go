package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/noah-isme/toko-cart/internal/common"
)

var errNoToken = errors.New("auth: token missing")

// Middleware wires the customer identity into HTTP handlers.
type Middleware struct {
	Verifier     *Verifier
	AccessCookie string
}

// Authenticate attaches the customer to the request context when a valid token
// is present. Guests and invalid tokens pass through anonymously.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		customer, err := m.authenticateRequest(r)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(common.WithCustomer(r.Context(), customer)))
	})
}

// RequireAuth enforces that a valid token is present before executing the next handler.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		customer, err := m.authenticateRequest(r)
		if err != nil {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(common.WithCustomer(r.Context(), customer)))
	})
}

func (m Middleware) authenticateRequest(r *http.Request) (common.Customer, error) {
	if m.Verifier == nil {
		return common.Customer{}, errors.New("auth: verifier not configured")
	}
	token := m.extractToken(r)
	if token == "" {
		return common.Customer{}, errNoToken
	}
	return m.Verifier.Customer(token)
}

func (m Middleware) extractToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	if m.AccessCookie != "" {
		if cookie, err := r.Cookie(m.AccessCookie); err == nil {
			if value := strings.TrimSpace(cookie.Value); value != "" {
				return value
			}
		}
	}
	return ""
}
