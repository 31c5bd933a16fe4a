package security_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-cart/internal/security"
)

func issue(t *testing.T, csrf security.CSRF) string {
	t.Helper()
	rec := httptest.NewRecorder()
	csrf.Issue(rec, httptest.NewRequest(http.MethodGet, "/csrf", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.Token)
	return body.Token
}

func post(h http.Handler, token, cookie string, bearer bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/carts/c1/lines", nil)
	if token != "" {
		req.Header.Set("X-CSRF-Token", token)
	}
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: "X-CSRF-Token", Value: cookie})
	}
	if bearer {
		req.Header.Set("Authorization", "Bearer abc.def")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCSRFMiddleware(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	csrf := security.CSRF{MaxAge: time.Hour, Now: func() time.Time { return now }}
	handler := csrf.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	token := issue(t, csrf)

	require.Equal(t, http.StatusOK, post(handler, token, token, false).Code)
	require.Equal(t, http.StatusOK, post(handler, "", "", true).Code)

	rec := post(handler, "", "", false)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Body.String(), "token_missing")

	rec = post(handler, token, token+"x", false)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Body.String(), "token_invalid")

	expired := security.CSRF{MaxAge: time.Hour, Now: func() time.Time { return now.Add(2 * time.Hour) }}
	rec = post(expired.Middleware(handler), token, token, false)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Body.String(), "token_invalid")

	req := httptest.NewRequest(http.MethodGet, "/carts/c1", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
