package common_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-cart/internal/common"
)

func TestWriteAppError(t *testing.T) {
	t.Parallel()

	base := errors.New("line 7 not found")
	appErr := common.NotFound(base)
	require.ErrorIs(t, appErr, base)
	require.Equal(t, "NOT_FOUND: line 7 not found", appErr.Error())

	rr := httptest.NewRecorder()
	common.WriteAppError(rr, appErr)

	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "application/json; charset=utf-8", rr.Header().Get("Content-Type"))
	var body map[string]common.ErrorBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "NOT_FOUND", body["error"].Code)
	require.Equal(t, "line 7 not found", body["error"].Message)
}

func TestJSONUnencodableValue(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	common.JSON(rr, http.StatusOK, map[string]any{"bad": make(chan int)})

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.Contains(t, rr.Body.String(), "response encoding failed")
}

func TestClientIPSkipsGarbage(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[2001:db8::1]:443"
	req.Header.Set("X-Forwarded-For", "unknown, 10.0.0.1")
	require.Equal(t, "2001:db8::1", common.ClientIP(req))

	req.Header.Set("X-Real-IP", "198.51.100.4")
	require.Equal(t, "198.51.100.4", common.ClientIP(req))
}
