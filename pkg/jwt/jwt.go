package jwt

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// JWT header constants required by RFC 7519
const (
	HeaderType      = "JWT"
	HeaderAlgorithm = "HS256"

	// DefaultAudience is the audience of access tokens issued to signed-in users.
	DefaultAudience = "authenticated"
)

// Header represents the JWT header as defined in RFC 7515
type Header struct {
	Type      string `json:"typ"`
	Algorithm string `json:"alg"`
	KeyID     string `json:"kid,omitempty"`
}

// Audience accepts both the string and the array form of "aud".
type Audience []string

func (a Audience) MarshalJSON() ([]byte, error) {
	if len(a) == 1 {
		return json.Marshal(a[0])
	}
	return json.Marshal([]string(a))
}

func (a *Audience) UnmarshalJSON(b []byte) error {
	var single string
	if err := json.Unmarshal(b, &single); err == nil {
		*a = Audience{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return fmt.Errorf("%w: aud", ErrInvalidClaims)
	}
	*a = many
	return nil
}

// Claims are the claims of an auth access token. The subject is the user id.
type Claims struct {
	Subject   string   `json:"sub"`
	Audience  Audience `json:"aud,omitempty"`
	Issuer    string   `json:"iss,omitempty"`
	Role      string   `json:"role,omitempty"`
	Email     string   `json:"email,omitempty"`
	SessionID string   `json:"session_id,omitempty"`
	ExpiresAt int64    `json:"exp,omitempty"`
	NotBefore int64    `json:"nbf,omitempty"`
	IssuedAt  int64    `json:"iat,omitempty"`
}

// UserID parses the subject.
func (c Claims) UserID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: subject is not a user id", ErrInvalidClaims)
	}
	return id, nil
}

// valid checks the temporal claims at now. Zero values are treated as unset.
func (c Claims) valid(now time.Time) error {
	ts := now.Unix()
	if c.ExpiresAt > 0 && ts >= c.ExpiresAt {
		return ErrExpiredToken
	}
	if c.NotBefore > 0 && ts < c.NotBefore {
		return ErrInvalidToken
	}
	return nil
}

// Verifier signs and verifies HS256 access tokens with the project's JWT secret.
type Verifier struct {
	secret   []byte
	audience string
	now      func() time.Time
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithAudience sets the required audience. An empty audience disables the check.
func WithAudience(aud string) Option {
	return func(v *Verifier) { v.audience = aud }
}

// WithClock overrides time.Now for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

// New creates a verifier for secret. Tokens must carry DefaultAudience unless
// WithAudience says otherwise.
func New(secret string, opts ...Option) (*Verifier, error) {
	if secret == "" {
		return nil, ErrMissingSigningKey
	}
	v := &Verifier{
		secret:   []byte(secret),
		audience: DefaultAudience,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Sign creates a token for claims. Used by tests and local tooling; production
// tokens come from the auth server.
func (v *Verifier) Sign(claims Claims) (string, error) {
	headerJSON, err := json.Marshal(Header{Type: HeaderType, Algorithm: HeaderAlgorithm})
	if err != nil {
		return "", fmt.Errorf("failed to marshal header: %w", err)
	}
	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("failed to marshal claims: %w", err)
	}

	payload := base64URLEncode(headerJSON) + "." + base64URLEncode(claimsJSON)
	return payload + "." + v.sign(payload), nil
}

// Verify checks the signature, algorithm, expiry and audience of token and
// returns its claims.
func (v *Verifier) Verify(token string) (Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return Claims{}, ErrInvalidToken
	}

	payload := parts[0] + "." + parts[1]
	if subtle.ConstantTimeCompare([]byte(parts[2]), []byte(v.sign(payload))) != 1 {
		return Claims{}, ErrInvalidSignature
	}

	var header Header
	if err := decodeSegment(parts[0], &header); err != nil {
		return Claims{}, fmt.Errorf("failed to decode header: %w", err)
	}
	// Reject unexpected algorithms to prevent algorithm confusion.
	if header.Algorithm != HeaderAlgorithm {
		return Claims{}, ErrUnexpectedSigningMethod
	}

	var claims Claims
	if err := decodeSegment(parts[1], &claims); err != nil {
		return Claims{}, fmt.Errorf("%w: %w", ErrInvalidClaims, err)
	}
	if err := claims.valid(v.now()); err != nil {
		return Claims{}, err
	}
	if v.audience != "" && !slices.Contains(claims.Audience, v.audience) {
		return Claims{}, fmt.Errorf("%w: audience", ErrInvalidClaims)
	}
	return claims, nil
}

// BearerToken extracts the token of an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) (string, error) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

func (v *Verifier) sign(payload string) string {
	h := hmac.New(sha256.New, v.secret)
	h.Write([]byte(payload))
	return base64URLEncode(h.Sum(nil))
}

func decodeSegment(seg string, out any) error {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(seg, "="))
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func base64URLEncode(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}
