// Package auth tells who is requesting, from bearer tokens.
//
// Tokens are JWS signed with HS256. The subject of a token is the actor recorded in audit.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	apierr "github.com/opst/knitfleet/pkg/api/types/errors"
	"github.com/opst/knitfleet/pkg/audit"
)

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	jwt.RegisteredClaims
}

type Verifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

type Option func(*Verifier)

// WithIssuer requires "iss" claim to be issuer.
func WithIssuer(issuer string) Option {
	return func(v *Verifier) { v.issuer = issuer }
}

// WithClock replaces the clock used to check expiry.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

func NewVerifier(secret []byte, options ...Option) (*Verifier, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth: secret is empty")
	}
	v := &Verifier{secret: secret, now: time.Now}
	for _, o := range options {
		o(v)
	}
	return v, nil
}

// Sign issues a token for subject, expiring after ttl.
func (v *Verifier) Sign(subject string, ttl time.Duration) (string, error) {
	now := v.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Verify checks token and returns its claims.
//
// Malformed, expired, wrongly signed tokens and tokens without subject are ErrInvalidToken.
func (v *Verifier) Verify(token string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := new(Claims)
	if _, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...); err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: no subject", ErrInvalidToken)
	}
	return claims, nil
}

const bearer = "bearer "

// Middleware puts the subject of the bearer token into the request context as the audit actor.
//
// Requests without Authorization header go through as anonymous unless required is true.
// Requests with a broken token are rejected with 401.
func Middleware(v *Verifier, required bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				if required {
					return apierr.Unauthorized("set Authorization header with bearer token.", nil)
				}
				return next(c)
			}
			if len(header) < len(bearer) || !strings.EqualFold(header[:len(bearer)], bearer) {
				return apierr.Unauthorized("Authorization header should be a bearer token.", nil)
			}

			claims, err := v.Verify(strings.TrimSpace(header[len(bearer):]))
			if err != nil {
				return apierr.Unauthorized("token is invalid or expired.", err)
			}

			req := c.Request()
			c.SetRequest(req.WithContext(audit.WithActor(req.Context(), claims.Subject)))
			return next(c)
		}
	}
}
