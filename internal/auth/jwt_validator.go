package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// TokenValidator holds the claim policy for customer access tokens. Every
// token must carry a subject, and the issuer and audience are checked when set.
type TokenValidator struct {
	Issuer    string
	Audience  string
	ClockSkew time.Duration
	Algorithm jwa.SignatureAlgorithm
}

// Validate checks the claims of a token signed with algorithm at instant now.
func (v TokenValidator) Validate(tok jwt.Token, algorithm jwa.SignatureAlgorithm, now time.Time) error {
	switch {
	case tok == nil:
		return errors.New("auth: token is nil")
	case algorithm == "":
		return errors.New("auth: token missing algorithm")
	case v.Algorithm != "" && algorithm != v.Algorithm:
		return fmt.Errorf("auth: unexpected token algorithm %s", algorithm)
	}
	return jwt.Validate(tok, v.options(now)...)
}

func (v TokenValidator) options(now time.Time) []jwt.ValidateOption {
	opts := []jwt.ValidateOption{
		jwt.WithClock(jwt.ClockFunc(func() time.Time { return now })),
		jwt.WithAcceptableSkew(v.ClockSkew),
		jwt.WithRequiredClaim(jwt.SubjectKey),
	}
	if v.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.Issuer))
	}
	if v.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.Audience))
	}
	return opts
}
