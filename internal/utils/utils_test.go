package utils_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/class-seat-booking/internal/utils"
)

func TestNewAccessToken_Claims(t *testing.T) {
	at, err := utils.NewAccessToken("k", "ops", "ADMIN", 15*time.Minute)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), at.Exp, 5*time.Second)

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(at.Token, claims, func(*jwt.Token) (interface{}, error) { return []byte("k"), nil })
	require.NoError(t, err)
	sub, err := claims.GetSubject()
	require.NoError(t, err)
	assert.Equal(t, "ops", sub)
	assert.Equal(t, "ADMIN", claims["role"])
}

func TestVerifyPassword(t *testing.T) {
	hash, err := utils.HashPassword("hunter2", bcrypt.MinCost)
	require.NoError(t, err)

	assert.True(t, utils.VerifyPassword(hash, "hunter2"))
	assert.False(t, utils.VerifyPassword(hash, "hunter3"))
	assert.False(t, utils.VerifyPassword("", ""))
}
