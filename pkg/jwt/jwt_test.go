package jwt_test

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astra-social/entitlements/pkg/jwt"
)

var testNow = time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)

func newVerifier(t *testing.T, opts ...jwt.Option) *jwt.Verifier {
	t.Helper()
	v, err := jwt.New("super-secret-jwt-token-with-at-least-32-characters", append([]jwt.Option{
		jwt.WithClock(func() time.Time { return testNow }),
	}, opts...)...)
	require.NoError(t, err)
	return v
}

func validClaims(userID uuid.UUID) jwt.Claims {
	return jwt.Claims{
		Subject:   userID.String(),
		Audience:  jwt.Audience{jwt.DefaultAudience},
		Role:      "authenticated",
		Email:     "nova@astra.test",
		IssuedAt:  testNow.Add(-time.Minute).Unix(),
		ExpiresAt: testNow.Add(time.Hour).Unix(),
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	_, err := jwt.New("")
	assert.ErrorIs(t, err, jwt.ErrMissingSigningKey)
}

func TestVerifier_RoundTrip(t *testing.T) {
	t.Parallel()

	v := newVerifier(t)
	userID := uuid.New()

	token, err := v.Sign(validClaims(userID))
	require.NoError(t, err)
	assert.Len(t, strings.Split(token, "."), 3)

	claims, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "nova@astra.test", claims.Email)
	assert.Equal(t, jwt.Audience{"authenticated"}, claims.Audience)

	got, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, userID, got)
}

func TestVerifier_Rejects(t *testing.T) {
	t.Parallel()

	v := newVerifier(t)
	userID := uuid.New()

	sign := func(t *testing.T, mutate func(*jwt.Claims)) string {
		t.Helper()
		c := validClaims(userID)
		mutate(&c)
		token, err := v.Sign(c)
		require.NoError(t, err)
		return token
	}

	t.Run("malformed", func(t *testing.T) {
		_, err := v.Verify("not-a-token")
		assert.ErrorIs(t, err, jwt.ErrInvalidToken)
	})

	t.Run("foreign secret", func(t *testing.T) {
		other, err := jwt.New("another-secret")
		require.NoError(t, err)
		token, err := other.Sign(validClaims(userID))
		require.NoError(t, err)

		_, err = v.Verify(token)
		assert.ErrorIs(t, err, jwt.ErrInvalidSignature)
	})

	t.Run("tampered claims", func(t *testing.T) {
		token := sign(t, func(*jwt.Claims) {})
		parts := strings.Split(token, ".")
		forged := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"` + uuid.NewString() + `","aud":"authenticated"}`))

		_, err := v.Verify(parts[0] + "." + forged + "." + parts[2])
		assert.ErrorIs(t, err, jwt.ErrInvalidSignature)
	})

	t.Run("expired", func(t *testing.T) {
		token := sign(t, func(c *jwt.Claims) { c.ExpiresAt = testNow.Add(-time.Second).Unix() })
		_, err := v.Verify(token)
		assert.ErrorIs(t, err, jwt.ErrExpiredToken)
	})

	t.Run("not yet valid", func(t *testing.T) {
		token := sign(t, func(c *jwt.Claims) { c.NotBefore = testNow.Add(time.Minute).Unix() })
		_, err := v.Verify(token)
		assert.ErrorIs(t, err, jwt.ErrInvalidToken)
	})

	t.Run("wrong audience", func(t *testing.T) {
		token := sign(t, func(c *jwt.Claims) { c.Audience = jwt.Audience{"anon"} })
		_, err := v.Verify(token)
		assert.ErrorIs(t, err, jwt.ErrInvalidClaims)
	})
}

func TestVerifier_AudienceCheckCanBeDisabled(t *testing.T) {
	t.Parallel()

	v := newVerifier(t, jwt.WithAudience(""))
	c := validClaims(uuid.New())
	c.Audience = nil
	token, err := v.Sign(c)
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.NoError(t, err)
}

func TestAudience_ArrayForm(t *testing.T) {
	t.Parallel()

	var a jwt.Audience
	require.NoError(t, a.UnmarshalJSON([]byte(`["authenticated","admin"]`)))
	assert.Equal(t, jwt.Audience{"authenticated", "admin"}, a)

	require.NoError(t, a.UnmarshalJSON([]byte(`"authenticated"`)))
	assert.Equal(t, jwt.Audience{"authenticated"}, a)

	assert.ErrorIs(t, a.UnmarshalJSON([]byte(`42`)), jwt.ErrInvalidClaims)
}

func TestClaims_UserID(t *testing.T) {
	t.Parallel()

	_, err := jwt.Claims{Subject: "service-role"}.UserID()
	assert.ErrorIs(t, err, jwt.ErrInvalidClaims)

	_, err = jwt.Claims{Subject: uuid.Nil.String()}.UserID()
	assert.ErrorIs(t, err, jwt.ErrInvalidClaims)
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{name: "bearer", header: "Bearer abc.def.ghi", want: "abc.def.ghi"},
		{name: "lowercase scheme", header: "bearer abc.def.ghi", want: "abc.def.ghi"},
		{name: "missing", header: "", wantErr: true},
		{name: "basic", header: "Basic dXNlcjpwYXNz", wantErr: true},
		{name: "no token", header: "Bearer ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}

			got, err := jwt.BearerToken(r)
			if tt.wantErr {
				assert.ErrorIs(t, err, jwt.ErrMissingToken)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
