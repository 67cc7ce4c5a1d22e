package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/astra-social/entitlements/pkg/jwt"
)

// UserIDHeader carries the caller's user id when a trusted gateway
// authenticates requests.
const UserIDHeader = "X-User-ID"

var ErrUnauthenticated = errors.New("request is not authenticated")

// Authenticator resolves the user making a request.
type Authenticator interface {
	Authenticate(r *http.Request) (uuid.UUID, error)
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(r *http.Request) (uuid.UUID, error)

func (f AuthenticatorFunc) Authenticate(r *http.Request) (uuid.UUID, error) { return f(r) }

// HeaderAuthenticator trusts the X-User-ID header set by an upstream gateway.
type HeaderAuthenticator struct{}

func (HeaderAuthenticator) Authenticate(r *http.Request) (uuid.UUID, error) {
	raw := r.Header.Get(UserIDHeader)
	if raw == "" {
		return uuid.Nil, fmt.Errorf("%w: missing %s header", ErrUnauthenticated, UserIDHeader)
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: malformed %s header", ErrUnauthenticated, UserIDHeader)
	}
	return id, nil
}

// TokenAuthenticator verifies the bearer access token issued by the auth
// server and uses its subject as the user id.
type TokenAuthenticator struct {
	Verifier *jwt.Verifier
}

func (a TokenAuthenticator) Authenticate(r *http.Request) (uuid.UUID, error) {
	token, err := jwt.BearerToken(r)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	claims, err := a.Verifier.Verify(token)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	id, err := claims.UserID()
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	return id, nil
}
