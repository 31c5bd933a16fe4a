package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-cart/internal/auth"
	"github.com/noah-isme/toko-cart/internal/common"
)

var issuedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func verifier() *auth.Verifier {
	v := auth.NewVerifier("secret", "shop")
	v.Now = func() time.Time { return issuedAt }
	return v
}

func TestVerifierRoundTrip(t *testing.T) {
	t.Parallel()

	v := verifier()
	token, err := v.Issue(common.Customer{ID: 42, GroupID: 3, NewCustomer: true}, time.Hour)
	require.NoError(t, err)

	customer, err := v.Customer(token)
	require.NoError(t, err)
	require.Equal(t, common.Customer{ID: 42, GroupID: 3, NewCustomer: true}, customer)
}

func TestVerifierRejects(t *testing.T) {
	t.Parallel()

	v := verifier()
	valid, err := v.Issue(common.Customer{ID: 42}, time.Hour)
	require.NoError(t, err)

	other := auth.NewVerifier("another-secret", "shop")
	other.Now = v.Now
	forged, err := other.Issue(common.Customer{ID: 42}, time.Hour)
	require.NoError(t, err)

	foreign := auth.NewVerifier("secret", "elsewhere")
	foreign.Now = v.Now
	wrongIssuer, err := foreign.Issue(common.Customer{ID: 42}, time.Hour)
	require.NoError(t, err)

	late := verifier()
	late.Now = func() time.Time { return issuedAt.Add(2 * time.Hour) }

	_, err = v.Customer("")
	require.ErrorIs(t, err, auth.ErrInvalidToken)
	_, err = v.Customer("not-a-token")
	require.ErrorIs(t, err, auth.ErrInvalidToken)
	_, err = v.Customer(forged)
	require.ErrorIs(t, err, auth.ErrInvalidToken)
	_, err = v.Customer(wrongIssuer)
	require.ErrorIs(t, err, auth.ErrInvalidToken)
	_, err = late.Customer(valid)
	require.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestTokenValidatorChecks(t *testing.T) {
	t.Parallel()

	now := issuedAt
	build := func(issuer string, nbf, exp time.Time) jwt.Token {
		tok, err := jwt.NewBuilder().Issuer(issuer).Subject("1").IssuedAt(now).NotBefore(nbf).Expiration(exp).Build()
		require.NoError(t, err)
		return tok
	}
	v := auth.TokenValidator{Issuer: "shop", ClockSkew: time.Second, Algorithm: jwa.HS256}

	require.NoError(t, v.Validate(build("shop", now, now.Add(time.Minute)), jwa.HS256, now))
	require.Error(t, v.Validate(build("other", now, now.Add(time.Minute)), jwa.HS256, now))
	require.Error(t, v.Validate(build("shop", now.Add(-time.Hour), now.Add(-time.Minute)), jwa.HS256, now))
	require.Error(t, v.Validate(build("shop", now.Add(5*time.Minute), now.Add(10*time.Minute)), jwa.HS256, now))
	require.Error(t, v.Validate(build("shop", now, now.Add(time.Minute)), jwa.RS256, now))
	require.Error(t, v.Validate(nil, jwa.HS256, now))

	anonymous, err := jwt.NewBuilder().Issuer("shop").IssuedAt(now).Expiration(now.Add(time.Minute)).Build()
	require.NoError(t, err)
	require.Error(t, v.Validate(anonymous, jwa.HS256, now))
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	v := verifier()
	token, err := v.Issue(common.Customer{ID: 7, GroupID: 2}, time.Hour)
	require.NoError(t, err)

	var seen common.Customer
	var identified bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, identified = common.CustomerFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	mw := auth.Middleware{Verifier: v, AccessCookie: "access_token"}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	mw.Authenticate(next).ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.True(t, identified)
	require.Equal(t, int64(7), seen.ID)
	require.Equal(t, int64(2), seen.GroupID)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: "garbage"})
	rec = httptest.NewRecorder()
	mw.Authenticate(next).ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.False(t, identified)

	rec = httptest.NewRecorder()
	mw.RequireAuth(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
