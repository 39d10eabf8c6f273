package service

import (
	"errors"
	"fmt"
	"time"

	"care-ledger/internal/core/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// JWTTokenService implements ports.TokenService using HS256 JWT. Tokens are
// issued by the marketplace identity service; Generate exists for tooling
// and tests.
type JWTTokenService struct {
	secret []byte
	issuer string
}

// NewJWTTokenService creates a new JWT token service. An empty issuer
// disables the issuer check.
func NewJWTTokenService(secret string, issuer string) *JWTTokenService {
	return &JWTTokenService{
		secret: []byte(secret),
		issuer: issuer,
	}
}

// Generate creates a signed JWT for the given principal.
func (s *JWTTokenService) Generate(principal domain.Principal, ttl time.Duration) (string, error) {
	now := time.Now()

	claims := jwt.MapClaims{
		"sub":  principal.UserID.String(),
		"role": string(principal.Role),
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}
	if s.issuer != "" {
		claims["iss"] = s.issuer
	}
	if principal.FamilyID != nil {
		claims["family_id"] = principal.FamilyID.String()
	}
	if principal.OperatorID != nil {
		claims["operator_id"] = principal.OperatorID.String()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return tokenString, nil
}

// Validate parses and validates a JWT token, returning the caller.
func (s *JWTTokenService) Validate(tokenString string) (*domain.Principal, error) {
	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}

	sub, ok := claims["sub"].(string)
	if !ok {
		return nil, errors.New("missing subject claim")
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return nil, fmt.Errorf("invalid user ID in token: %w", err)
	}

	role, _ := claims["role"].(string)
	if role == "" {
		return nil, errors.New("missing role claim")
	}

	principal := &domain.Principal{
		UserID: userID,
		Role:   domain.Role(role),
	}
	if principal.FamilyID, err = optionalUUIDClaim(claims, "family_id"); err != nil {
		return nil, err
	}
	if principal.OperatorID, err = optionalUUIDClaim(claims, "operator_id"); err != nil {
		return nil, err
	}
	return principal, nil
}

func optionalUUIDClaim(claims jwt.MapClaims, name string) (*uuid.UUID, error) {
	raw, _ := claims[name].(string)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s claim: %w", name, err)
	}
	return &id, nil
}
