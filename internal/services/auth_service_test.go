// internal/services/auth_service_test.go
package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackdrive/stackdrive-backend/internal/apperrors"
	"github.com/stackdrive/stackdrive-backend/internal/utils"
)

func TestRegisterAndLogin(t *testing.T) {
	db := setupTestDB(t)
	cfg := testConfig()
	utils.SetJWTSecret(cfg.JWT.SecretKey)
	svc := NewAuthService(db, cfg)

	resp, err := svc.Register(&RegisterRequest{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "Sup3rSecret",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEqual(t, "Sup3rSecret", resp.User.PasswordHash)

	claims, err := utils.ValidateJWT(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID.String(), claims.UserID)

	login, err := svc.Login(&LoginRequest{Email: "alice@example.com", Password: "Sup3rSecret"})
	require.NoError(t, err)
	assert.NotNil(t, login.User.LastLoginAt)

	_, err = svc.Login(&LoginRequest{Email: "alice@example.com", Password: "WrongPass1"})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindUnauthorized))
}

func TestRegister_DuplicateRejected(t *testing.T) {
	db := setupTestDB(t)
	svc := NewAuthService(db, testConfig())

	req := &RegisterRequest{Username: "alice", Email: "alice@example.com", Password: "Sup3rSecret"}
	_, err := svc.Register(req)
	require.NoError(t, err)

	_, err = svc.Register(req)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindConflict))
}

func TestRegister_WeakPasswordRejected(t *testing.T) {
	db := setupTestDB(t)
	svc := NewAuthService(db, testConfig())

	_, err := svc.Register(&RegisterRequest{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "weak",
	})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))
}

func TestUpdateWallet(t *testing.T) {
	db := setupTestDB(t)
	svc := NewAuthService(db, testConfig())
	user := createTestUser(t, db, "alice", "")

	updated, err := svc.UpdateWallet(user.ID, &UpdateWalletRequest{
		WalletAddress: "0x1234567890abcdef1234567890abcdef12345678",
	})
	require.NoError(t, err)
	assert.Equal(t, "0x1234567890abcdef1234567890abcdef12345678", updated.WalletAddress)

	// Malformed address is rejected.
	_, err = svc.UpdateWallet(user.ID, &UpdateWalletRequest{WalletAddress: "not-an-address"})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))
}
