package cart_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/noah-isme/toko-cart/internal/cart"
	"github.com/noah-isme/toko-cart/internal/common"
)

type cartEnvelope struct {
	Data    cart.Cart `json:"data"`
	Notices []struct {
		Code string `json:"code"`
	} `json:"notices"`
	HandedOff bool `json:"handedOff"`
}

type errorEnvelope struct {
	Error struct {
		Code    string   `json:"code"`
		Details []string `json:"details"`
	} `json:"error"`
}

func newRouter(f *fixture, rate limiter.Rate) http.Handler {
	h := &cart.Handler{
		Svc:           f.svc,
		CouponLimiter: limiter.New(memory.NewStore(), rate),
		Validate:      validator.New(),
	}
	r := chi.NewRouter()
	h.Routes(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerAddAndGet(t *testing.T) {
	t.Parallel()

	router := newRouter(newFixture(), limiter.Rate{Period: time.Minute, Limit: 10})

	rec := do(t, router, http.MethodPost, "/carts/c1/lines", map[string]any{"productId": shirtID, "quantity": "2"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodGet, "/carts/c1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got cartEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Data.Lines, 1)
	require.True(t, got.Data.Lines[0].Quantity.Equal(dec("2")))
}

func TestHandlerRejectionsAndErrors(t *testing.T) {
	t.Parallel()

	router := newRouter(newFixture(), limiter.Rate{Period: time.Minute, Limit: 10})

	rec := do(t, router, http.MethodPost, "/carts/c1/lines", map[string]any{"productId": shirtID, "quantity": "1.5"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var rejected errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rejected))
	require.Equal(t, "REJECTED", rejected.Error.Code)
	require.Equal(t, []string{"not_divisible"}, rejected.Error.Details)

	rec = do(t, router, http.MethodPost, "/carts/c1/lines", map[string]any{"quantity": "1"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPatch, "/carts/c1/lines", map[string]any{"quantities": map[string]string{"missing": "1"}})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerLimitsCouponAttempts(t *testing.T) {
	t.Parallel()

	router := newRouter(newFixture(), limiter.Rate{Period: time.Minute, Limit: 1})

	rec := do(t, router, http.MethodPost, "/carts/c1/coupon", map[string]string{"code": "NOPE"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, router, http.MethodPost, "/carts/c1/coupon", map[string]string{"code": "NOPE"})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	var limited errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &limited))
	require.Equal(t, []string{"coupon_attempts_exceeded"}, limited.Error.Details)
}

func TestHandlerBindsAuthenticatedCustomer(t *testing.T) {
	t.Parallel()

	f := newFixture()
	router := newRouter(f, limiter.Rate{Period: time.Minute, Limit: 10})

	body, err := json.Marshal(map[string]any{"productId": shirtID, "quantity": "1"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/carts/c1/lines", bytes.NewReader(body))
	req = req.WithContext(common.WithCustomer(context.Background(), common.Customer{ID: 42, GroupID: 3}))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	stored, err := f.store.Load(context.Background(), "c1")
	require.NoError(t, err)
	require.Equal(t, int64(42), stored.Context.CustomerID)
	require.Equal(t, int64(3), stored.Context.CustomerGroupID)
}

func TestHandlerCheckout(t *testing.T) {
	t.Parallel()

	f := newFixture()
	router := newRouter(f, limiter.Rate{Period: time.Minute, Limit: 10})

	rec := do(t, router, http.MethodPost, "/carts/c1/checkout", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	do(t, router, http.MethodPost, "/carts/c1/lines", map[string]any{"productId": shirtID, "quantity": "1"})
	rec = do(t, router, http.MethodPost, "/carts/c1/checkout", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got cartEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.True(t, got.HandedOff)
}
