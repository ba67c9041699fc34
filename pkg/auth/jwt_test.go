package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/covenant/pkg/auth"
	"github.com/Mindburn-Labs/covenant/pkg/authority"
)

func TestValidator_RoundTrip(t *testing.T) {
	v := auth.NewHMACValidator("test-secret")
	token, err := v.Issue("alice", time.Hour)
	require.NoError(t, err)

	p, err := v.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, authority.Principal("alice"), p)
}

func TestValidator_Rejects(t *testing.T) {
	v := auth.NewHMACValidator("test-secret")
	other := auth.NewHMACValidator("other-secret")

	expired, err := v.Issue("alice", -time.Minute)
	require.NoError(t, err)
	_, err = v.Validate(expired)
	assert.Error(t, err, "expired token")

	forged, err := other.Issue("alice", time.Hour)
	require.NoError(t, err)
	_, err = v.Validate(forged)
	assert.Error(t, err, "wrong secret")

	noSubject, err := v.Issue("", time.Hour)
	require.NoError(t, err)
	_, err = v.Validate(noSubject)
	assert.Error(t, err, "empty subject")

	// alg=none must never be accepted
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice",
			Issuer:    auth.DefaultIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = v.Validate(unsigned)
	assert.Error(t, err, "alg none")
}

func TestValidator_NilFailsClosed(t *testing.T) {
	v := auth.NewHMACValidator("")
	assert.Nil(t, v)
	_, err := v.Validate("anything")
	assert.Error(t, err)
	_, err = v.Issue("alice", time.Hour)
	assert.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	tok, err := auth.BearerToken("Bearer abc.def")
	require.NoError(t, err)
	assert.Equal(t, "abc.def", tok)

	for _, h := range []string{"", "Basic abc", "Bearer", "Bearer   "} {
		_, err := auth.BearerToken(h)
		assert.Error(t, err, h)
	}
}

func TestPrincipalContext(t *testing.T) {
	_, err := auth.GetPrincipal(context.Background())
	assert.Error(t, err)

	ctx := auth.WithPrincipal(context.Background(), "bob")
	p, err := auth.GetPrincipal(ctx)
	require.NoError(t, err)
	assert.Equal(t, authority.Principal("bob"), p)
}
