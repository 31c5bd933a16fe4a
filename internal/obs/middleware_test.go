package obs_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-cart/internal/common"
	"github.com/noah-isme/toko-cart/internal/obs"
)

func TestHTTPMetricsLabels(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	metrics := obs.NewHTTPMetrics("toko_cart", []float64{1, 10}, registry)
	r := chi.NewRouter()
	r.Use(obs.HTTPObs{Metrics: metrics}.Middleware)
	r.Get("/carts/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/carts/c1", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodGet, "/carts/{id}", "204")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodGet, "unknown", "404")))
	require.Positive(t, testutil.CollectAndCount(metrics.ReqDur))
	require.Zero(t, testutil.ToFloat64(metrics.InFlight))
}

func TestHTTPMetricsReuseRegisteredCollectors(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	first := obs.NewHTTPMetrics("toko_cart", nil, registry)
	second := obs.NewHTTPMetrics("toko_cart", nil, registry)
	require.Same(t, first.ReqTotal, second.ReqTotal)
}

func TestRequestLoggerRecordsCartAndCustomer(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := obs.NewLoggerTo(&buf, "json", "info")

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(common.WithCustomer(req.Context(), common.Customer{ID: 7})))
		})
	})
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Get("/carts/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/carts/abc", nil))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "http_request", entry["message"])
	require.Equal(t, "/carts/{id}", entry["route"])
	require.Equal(t, "abc", entry["cart_id"])
	require.Equal(t, float64(7), entry["customer_id"])
	require.Equal(t, float64(200), entry["status"])
}

func TestParseBucketsCSV(t *testing.T) {
	t.Parallel()

	require.Equal(t, []float64{1, 2.5}, obs.ParseBucketsCSV("1, 2.5, x, -3"))
	require.Nil(t, obs.ParseBucketsCSV(" "))
}
