package security_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-cart/internal/security"
)

func TestBodyLimit(t *testing.T) {
	t.Parallel()

	var captured string
	handler := security.BodyLimit{Max: 10}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		captured = string(data)
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/carts/c1/lines", strings.NewReader("hello")))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "hello", captured)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/carts/c1/lines", strings.NewReader("much too excessive")))
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/carts/c1/lines", strings.NewReader("content"))
	req.ContentLength = 100
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	require.Contains(t, rec.Body.String(), "PAYLOAD_TOO_LARGE")
}
