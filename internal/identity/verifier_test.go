package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyRoundTrip(t *testing.T) {
	v := NewVerifier("test-secret")

	token, err := v.Sign(42, "Dr. Smith", "doctor")
	require.NoError(t, err)

	claims, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "Dr. Smith", claims.DisplayName)
	assert.Equal(t, "doctor", claims.Role)
}

func TestVerifyBearerHeader(t *testing.T) {
	v := NewVerifier("test-secret")
	token, err := v.Sign(7, "", "patient")
	require.NoError(t, err)

	claims, err := v.VerifyBearer("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.UserID)

	_, err = v.VerifyBearer(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = v.VerifyBearer("")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyWrongSecret(t *testing.T) {
	token, err := NewVerifier("secret-a").Sign(7, "", "")
	require.NoError(t, err)

	_, err = NewVerifier("secret-b").Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyGarbageToken(t *testing.T) {
	v := NewVerifier("test-secret")
	_, err := v.Verify("not.a.jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyMissingSubject(t *testing.T) {
	v := NewVerifier("test-secret")
	token, err := v.Sign(0, "", "")
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
