// Package auth verifies the signed, time-bound tokens minted by the
// platform's credential service. Tokens are HMAC-signed JWTs carrying the
// subject identity; this package only verifies them against the shared
// secret, it never issues production credentials.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
)

var validMethods = []string{"HS256", "HS384", "HS512"}

// Verifier checks presented tokens against the shared secret.
type Verifier struct {
	secret []byte
	clock  clockwork.Clock
}

// NewVerifier creates a verifier for the given shared secret.
// The clock is injected so expiry checks are testable.
func NewVerifier(secret string, clock clockwork.Clock) *Verifier {
	return &Verifier{secret: []byte(secret), clock: clock}
}

// Verify parses and validates a token and returns the subject bound in its
// claims. Any failure (bad signature, expired, malformed, missing subject)
// is returned as an error; callers decide how to surface it.
func (v *Verifier) Verify(token string) (string, error) {
	parsed, err := jwt.Parse(token,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return v.secret, nil
		},
		jwt.WithValidMethods(validMethods),
		jwt.WithTimeFunc(v.clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("token verification failed: %w", err)
	}

	subject, err := parsed.Claims.GetSubject()
	if err != nil {
		return "", fmt.Errorf("failed to read subject claim: %w", err)
	}
	if subject == "" {
		return "", errors.New("token has no subject claim")
	}

	return subject, nil
}

// Generate mints an HS256 token for the given subject. Used by tests and
// local tooling; production tokens come from the credential service.
func Generate(secret, subject string, ttl time.Duration, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
