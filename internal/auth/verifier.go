// Package auth turns bearer tokens issued by the shop login into the customer
// identity the cart engines price and validate coupons for.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/toko-cart/internal/common"
)

const (
	claimGroup       = "grp"
	claimNewCustomer = "new"
)

// ErrInvalidToken wraps every verification failure.
var ErrInvalidToken = errors.New("auth: invalid token")

// Verifier checks HMAC signed access tokens.
type Verifier struct {
	Secret    []byte
	Validator TokenValidator
	Now       func() time.Time
}

// NewVerifier returns a verifier accepting HS256 tokens from issuer.
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{
		Secret:    []byte(secret),
		Validator: TokenValidator{Issuer: issuer, ClockSkew: 30 * time.Second, Algorithm: jwa.HS256},
	}
}

func (v *Verifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

// Customer parses and validates token and returns the customer it was issued for.
func (v *Verifier) Customer(token string) (common.Customer, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return common.Customer{}, fmt.Errorf("empty token: %w", ErrInvalidToken)
	}
	algorithm, err := tokenAlgorithm(trimmed)
	if err != nil {
		return common.Customer{}, fmt.Errorf("%v: %w", err, ErrInvalidToken)
	}
	if v.Validator.Algorithm != "" && algorithm != v.Validator.Algorithm {
		return common.Customer{}, fmt.Errorf("unexpected algorithm %s: %w", algorithm, ErrInvalidToken)
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, v.Secret), jwt.WithValidate(false))
	if err != nil {
		return common.Customer{}, fmt.Errorf("%v: %w", err, ErrInvalidToken)
	}
	if err := v.Validator.Validate(parsed, algorithm, v.now()); err != nil {
		return common.Customer{}, fmt.Errorf("%v: %w", err, ErrInvalidToken)
	}
	id, err := strconv.ParseInt(parsed.Subject(), 10, 64)
	if err != nil || id <= 0 {
		return common.Customer{}, fmt.Errorf("subject %q is not a customer id: %w", parsed.Subject(), ErrInvalidToken)
	}
	customer := common.Customer{ID: id}
	if raw, ok := parsed.Get(claimGroup); ok {
		if group, ok := raw.(float64); ok {
			customer.GroupID = int64(group)
		}
	}
	if raw, ok := parsed.Get(claimNewCustomer); ok {
		customer.NewCustomer, _ = raw.(bool)
	}
	return customer, nil
}

// Issue signs a token for c. It backs the seeder and tests; production tokens
// come from the shop login.
func (v *Verifier) Issue(c common.Customer, ttl time.Duration) (string, error) {
	now := v.now()
	builder := jwt.NewBuilder().
		Subject(strconv.FormatInt(c.ID, 10)).
		IssuedAt(now).
		NotBefore(now).
		Expiration(now.Add(ttl)).
		Claim(claimGroup, c.GroupID).
		Claim(claimNewCustomer, c.NewCustomer)
	if v.Validator.Issuer != "" {
		builder = builder.Issuer(v.Validator.Issuer)
	}
	tok, err := builder.Build()
	if err != nil {
		return "", fmt.Errorf("build token: %w", err)
	}
	alg := v.Validator.Algorithm
	if alg == "" {
		alg = jwa.HS256
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(alg, v.Secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return string(signed), nil
}

func tokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) == 0 {
		return "", errors.New("token contains no signatures")
	}
	var algorithm jwa.SignatureAlgorithm
	for _, sig := range signatures {
		headers := sig.ProtectedHeaders()
		if headers == nil {
			return "", errors.New("token missing protected headers")
		}
		alg := headers.Algorithm()
		if alg == "" || alg == jwa.NoSignature {
			return "", fmt.Errorf("token algorithm %q not accepted", alg)
		}
		if algorithm == "" {
			algorithm = alg
		} else if algorithm != alg {
			return "", errors.New("mixed token algorithms detected")
		}
	}
	return algorithm, nil
}
