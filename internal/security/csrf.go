// Package security holds the anti-forgery and payload guards in front of the
// cart endpoints.
package security

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/toko-cart/internal/common"
	"github.com/noah-isme/toko-cart/internal/notice"
)

const defaultCSRFName = "X-CSRF-Token"

// CSRF protects cookie based cart sessions with a double-submit token of the
// form <unix>.<nonce>. Tokens older than MaxAge are refused.
type CSRF struct {
	Header string
	MaxAge time.Duration
	Secure bool
	Now    func() time.Time
}

func (c CSRF) name() string {
	if name := strings.TrimSpace(c.Header); name != "" {
		return name
	}
	return defaultCSRFName
}

func (c CSRF) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Issue hands out a fresh token as cookie and JSON body.
func (c CSRF) Issue(w http.ResponseWriter, _ *http.Request) {
	token := strconv.FormatInt(c.now().Unix(), 10) + "." + uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     c.name(),
		Value:    token,
		Path:     "/",
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	common.JSON(w, http.StatusOK, map[string]string{"token": token})
}

// Middleware enforces that non-idempotent requests carry a header token matching the cookie.
func (c CSRF) Middleware(next http.Handler) http.Handler {
	headerName := c.name()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.Method
		if method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions || method == http.MethodTrace {
			next.ServeHTTP(w, r)
			return
		}

		auth := strings.TrimSpace(r.Header.Get("Authorization"))
		if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
			next.ServeHTTP(w, r)
			return
		}

		token := strings.TrimSpace(r.Header.Get(headerName))
		cookie, err := r.Cookie(headerName)
		if token == "" || err != nil || strings.TrimSpace(cookie.Value) == "" {
			reject(w, notice.CodeTokenMissing)
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(cookie.Value)) != 1 || !c.fresh(token) {
			reject(w, notice.CodeTokenInvalid)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (c CSRF) fresh(token string) bool {
	stamp, nonce, ok := strings.Cut(token, ".")
	if !ok || nonce == "" {
		return false
	}
	unix, err := strconv.ParseInt(stamp, 10, 64)
	if err != nil {
		return false
	}
	if c.MaxAge <= 0 {
		return true
	}
	age := c.now().Sub(time.Unix(unix, 0))
	return age >= 0 && age <= c.MaxAge
}

func reject(w http.ResponseWriter, code notice.Code) {
	common.JSONError(w, http.StatusForbidden, "REJECTED", "anti-forgery check failed", notice.Rejections{code})
}
