package service

import (
	"testing"
	"time"

	"care-ledger/internal/core/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "test-jwt-secret-key-for-unit-tests"

func TestJWTTokenService_GenerateAndValidate(t *testing.T) {
	svc := NewJWTTokenService(testJWTSecret, "test-issuer")
	operatorID := uuid.New()
	principal := domain.Principal{
		UserID:     uuid.New(),
		Role:       domain.RoleOperator,
		OperatorID: &operatorID,
	}

	tokenStr, err := svc.Generate(principal, time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, tokenStr)

	got, err := svc.Validate(tokenStr)
	require.NoError(t, err)
	assert.Equal(t, principal.UserID, got.UserID)
	assert.Equal(t, domain.RoleOperator, got.Role)
	require.NotNil(t, got.OperatorID)
	assert.Equal(t, operatorID, *got.OperatorID)
	assert.Nil(t, got.FamilyID)
}

func TestJWTTokenService_FamilyClaim(t *testing.T) {
	svc := NewJWTTokenService(testJWTSecret, "")
	familyID := uuid.New()

	tokenStr, err := svc.Generate(domain.Principal{UserID: uuid.New(), Role: domain.RoleFamily, FamilyID: &familyID}, time.Hour)
	require.NoError(t, err)

	got, err := svc.Validate(tokenStr)
	require.NoError(t, err)
	require.NotNil(t, got.FamilyID)
	assert.Equal(t, familyID, *got.FamilyID)
}

func TestJWTTokenService_ExpiredToken(t *testing.T) {
	svc := NewJWTTokenService(testJWTSecret, "test-issuer")

	tokenStr, err := svc.Generate(domain.Principal{UserID: uuid.New(), Role: domain.RoleFamily}, -time.Hour)
	require.NoError(t, err)

	_, err = svc.Validate(tokenStr)
	assert.Error(t, err, "expired token should fail validation")
}

func TestJWTTokenService_InvalidSignature(t *testing.T) {
	svc1 := NewJWTTokenService("secret-1", "issuer")
	svc2 := NewJWTTokenService("secret-2", "issuer")

	tokenStr, err := svc1.Generate(domain.Principal{UserID: uuid.New(), Role: domain.RoleFamily}, time.Hour)
	require.NoError(t, err)

	_, err = svc2.Validate(tokenStr)
	assert.Error(t, err, "token signed with different secret should fail")
}

func TestJWTTokenService_WrongIssuer(t *testing.T) {
	issued := NewJWTTokenService(testJWTSecret, "someone-else")
	svc := NewJWTTokenService(testJWTSecret, "identity")

	tokenStr, err := issued.Generate(domain.Principal{UserID: uuid.New(), Role: domain.RoleFamily}, time.Hour)
	require.NoError(t, err)

	_, err = svc.Validate(tokenStr)
	assert.Error(t, err)
}

func TestJWTTokenService_MissingRole(t *testing.T) {
	svc := NewJWTTokenService(testJWTSecret, "")

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": uuid.New().String(),
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	tokenStr, err := token.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)

	_, err = svc.Validate(tokenStr)
	assert.ErrorContains(t, err, "role")
}

func TestJWTTokenService_MalformedOperatorClaim(t *testing.T) {
	svc := NewJWTTokenService(testJWTSecret, "")

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":         uuid.New().String(),
		"role":        "OPERATOR",
		"operator_id": "not-a-uuid",
		"exp":         time.Now().Add(time.Hour).Unix(),
	})
	tokenStr, err := token.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)

	_, err = svc.Validate(tokenStr)
	assert.ErrorContains(t, err, "operator_id")
}

func TestJWTTokenService_InvalidTokenString(t *testing.T) {
	svc := NewJWTTokenService(testJWTSecret, "issuer")

	_, err := svc.Validate("not.a.valid.jwt")
	assert.Error(t, err)
}

func TestJWTTokenService_EmptyToken(t *testing.T) {
	svc := NewJWTTokenService(testJWTSecret, "issuer")

	_, err := svc.Validate("")
	assert.Error(t, err)
}
