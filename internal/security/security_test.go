package security

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestTokenManager_AccessToken(t *testing.T) {
	tm := NewTokenManager(testSecret, "cashback-ledger", time.Minute, time.Minute)

	token, err := tm.GenerateAccessToken("user-1", map[string]string{"org-1": RoleAdmin, "org-2": "SELLER"})
	require.NoError(t, err)

	claims, err := tm.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, TokenTypeAccess, claims.Type)
	assert.Equal(t, "user-1", claims.Subject)
	assert.True(t, claims.HasRole("org-1", RoleAdmin))
	assert.False(t, claims.HasRole("org-2", RoleAdmin))
	assert.False(t, claims.HasRole("org-3", RoleAdmin))
}

func TestTokenManager_ServiceToken(t *testing.T) {
	tm := NewTokenManager(testSecret, "cashback-ledger", time.Minute, time.Minute)

	token, err := tm.GenerateServiceToken("sales-api")
	require.NoError(t, err)

	claims, err := tm.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, TokenTypeService, claims.Type)
	assert.Equal(t, "sales-api", claims.Subject)
	assert.Nil(t, claims.OrgRoles)
}

func TestTokenManager_Rejects(t *testing.T) {
	tm := NewTokenManager(testSecret, "cashback-ledger", -time.Minute, time.Minute)

	expired, err := tm.GenerateAccessToken("user-1", nil)
	require.NoError(t, err)
	_, err = tm.ValidateToken(expired)
	assert.ErrorIs(t, err, ErrExpiredToken)

	other := NewTokenManager("another-secret-another-secret-xx", "cashback-ledger", time.Minute, time.Minute)
	foreign, err := other.GenerateServiceToken("sales-api")
	require.NoError(t, err)
	_, err = tm.ValidateToken(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	wrongIssuer := NewTokenManager(testSecret, "someone-else", time.Minute, time.Minute)
	token, err := wrongIssuer.GenerateServiceToken("sales-api")
	require.NoError(t, err)
	_, err = tm.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Type: TokenTypeService})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = tm.ValidateToken(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = tm.ValidateToken("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestClaims_CanActFor(t *testing.T) {
	service := &Claims{Type: TokenTypeService}
	assert.True(t, service.CanActFor("org-1"))

	seller := &Claims{Type: TokenTypeAccess, OrgRoles: map[string]string{"org-1": "SELLER"}}
	assert.True(t, seller.CanActFor("org-1"))
	assert.False(t, seller.CanActFor("org-2"))
	assert.False(t, seller.CanActFor(""))

	bare := &Claims{Type: TokenTypeAccess}
	assert.False(t, bare.CanActFor("org-1"))
	assert.False(t, (&Claims{Type: "refresh"}).CanActFor("org-1"))
}

func TestPIN(t *testing.T) {
	hash, err := HashPIN("4321")
	require.NoError(t, err)
	assert.NotEqual(t, "4321", hash)

	assert.True(t, CheckPIN(hash, "4321"))
	assert.False(t, CheckPIN(hash, "1234"))
	assert.False(t, CheckPIN(hash, ""))
	assert.False(t, CheckPIN("", "4321"))
}
