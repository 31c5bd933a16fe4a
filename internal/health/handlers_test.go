package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-cart/internal/health"
)

func probe(name string, err error) health.Probe {
	return health.Probe{Name: name, Check: func(context.Context) error { return err }}
}

func ready(t *testing.T, h health.Handler) (int, map[string]string) {
	t.Helper()
	rr := httptest.NewRecorder()
	h.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return rr.Code, body
}

func TestLive(t *testing.T) {
	rr := httptest.NewRecorder()
	health.Handler{}.Live(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok", rr.Body.String())
}

func TestReadyReportsEachProbe(t *testing.T) {
	code, body := ready(t, health.Handler{Probes: []health.Probe{probe("redis", nil), probe("postgres", nil)}})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, map[string]string{"redis": "ok", "postgres": "ok"}, body)

	code, body = ready(t, health.Handler{Probes: []health.Probe{probe("redis", errors.New("dial tcp: refused"))}})
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, "dial tcp: refused", body["redis"])
}

func TestReadinessAfterShutdown(t *testing.T) {
	h := health.Handler{Probes: []health.Probe{probe("redis", nil)}}

	health.SetReady(false)
	t.Cleanup(func() { health.SetReady(true) })
	code, body := ready(t, h)
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, "shutting_down", body["status"])
}
