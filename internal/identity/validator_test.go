package identity

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"limsd/pkg/requestcontext"
)

const testKey = "unit-test-signing-key"

func signToken(t *testing.T, key string, sub string, role string, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  sub,
		"role": role,
		"exp":  exp.Unix(),
	})
	signed, err := token.SignedString([]byte(key))
	require.NoError(t, err)
	return signed
}

func TestValidateToken(t *testing.T) {
	v := NewValidator(testKey)
	userID := uuid.New()

	t.Run("valid token yields actor", func(t *testing.T) {
		tok := signToken(t, testKey, userID.String(), "ANALYST", time.Now().Add(time.Hour))
		actor, err := v.ValidateToken(tok)
		require.NoError(t, err)
		assert.Equal(t, userID.String(), actor.ID.String())
		assert.Equal(t, requestcontext.RoleAnalyst, actor.Role)
	})

	t.Run("wrong key rejected", func(t *testing.T) {
		tok := signToken(t, "other-key", userID.String(), "ANALYST", time.Now().Add(time.Hour))
		_, err := v.ValidateToken(tok)
		assert.Error(t, err)
	})

	t.Run("expired token rejected", func(t *testing.T) {
		tok := signToken(t, testKey, userID.String(), "ANALYST", time.Now().Add(-time.Minute))
		_, err := v.ValidateToken(tok)
		assert.Error(t, err)
	})

	t.Run("missing role rejected", func(t *testing.T) {
		tok := signToken(t, testKey, userID.String(), "", time.Now().Add(time.Hour))
		_, err := v.ValidateToken(tok)
		assert.Error(t, err)
	})
}
