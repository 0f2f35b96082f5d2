// Package session carries the authenticated user through request contexts and
// verifies the bearer access tokens issued by the auth provider.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/starford/folio/internal/apperr"
)

// Session is an active authenticated session.
type Session struct {
	UserID    string
	ExpiresAt time.Time
}

type ctxKey struct{}

// NewContext returns a copy of ctx carrying s.
func NewContext(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session stored in ctx, if any.
func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(Session)
	if !ok || s.UserID == "" {
		return Session{}, false
	}
	return s, true
}

// UserID returns the user of the active session or apperr.ErrUnauthenticated.
func UserID(ctx context.Context) (string, error) {
	s, ok := FromContext(ctx)
	if !ok {
		return "", apperr.ErrUnauthenticated
	}
	if !s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt) {
		return "", apperr.ErrUnauthenticated
	}
	return s.UserID, nil
}

// ErrInvalidToken is returned for malformed, expired or wrongly signed tokens.
var ErrInvalidToken = errors.New("invalid token")

// claims mirrors the access tokens of the hosted auth provider: the user id
// is the subject.
type claims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
}

// Verifier validates HS256 access tokens.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

// NewVerifier creates a Verifier for tokens signed with secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret), now: time.Now}
}

// Verify parses token and returns the session it describes.
func (v *Verifier) Verify(token string) (Session, error) {
	c := &claims{}
	parsed, err := jwt.ParseWithClaims(token, c, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || c.Subject == "" {
		return Session{}, ErrInvalidToken
	}
	return Session{UserID: c.Subject, ExpiresAt: c.ExpiresAt.Time}, nil
}

// Issue signs an access token for userID valid for ttl. It is used for local
// development and tooling; production tokens come from the auth provider.
func (v *Verifier) Issue(userID string, ttl time.Duration) (string, error) {
	now := v.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: "authenticated",
	})
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("session: sign token: %w", err)
	}
	return signed, nil
}
