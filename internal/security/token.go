package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrExpiredToken   = errors.New("token has expired")
	ErrWrongTokenType = errors.New("wrong token type for this endpoint")
)

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeService TokenType = "service"
)

const RoleAdmin = "ADMIN"

// Claims defines the claims carried by our tokens. Access tokens carry the
// caller's role per organization. Service tokens identify a calling system.
type Claims struct {
	Type     TokenType         `json:"type"`
	OrgRoles map[string]string `json:"org_roles,omitempty"`
	jwt.RegisteredClaims
}

// HasRole reports whether the token grants role in orgID.
func (c *Claims) HasRole(orgID, role string) bool {
	return c.OrgRoles != nil && c.OrgRoles[orgID] == role
}

// CanActFor reports whether the token may operate on orgID's data. Service
// tokens act for any org; access tokens need a role in it.
func (c *Claims) CanActFor(orgID string) bool {
	switch c.Type {
	case TokenTypeService:
		return true
	case TokenTypeAccess:
		return orgID != "" && c.OrgRoles[orgID] != ""
	default:
		return false
	}
}

type TokenManager interface {
	GenerateAccessToken(userID string, orgRoles map[string]string) (string, error)
	GenerateServiceToken(service string) (string, error)
	ValidateToken(tokenString string) (*Claims, error)
}

type tokenManager struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	serviceTTL time.Duration
}

func NewTokenManager(secret, issuer string, accessTTL, serviceTTL time.Duration) TokenManager {
	return &tokenManager{
		secret:     []byte(secret),
		issuer:     issuer,
		accessTTL:  accessTTL,
		serviceTTL: serviceTTL,
	}
}

func (m *tokenManager) sign(subject string, typ TokenType, ttl time.Duration, audience string, orgRoles map[string]string) (string, error) {
	now := time.Now()
	claims := Claims{
		Type:     typ,
		OrgRoles: orgRoles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.issuer,
			Audience:  jwt.ClaimStrings{audience},
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

func (m *tokenManager) GenerateAccessToken(userID string, orgRoles map[string]string) (string, error) {
	return m.sign(userID, TokenTypeAccess, m.accessTTL, "api-access", orgRoles)
}

func (m *tokenManager) GenerateServiceToken(service string) (string, error) {
	return m.sign(service, TokenTypeService, m.serviceTTL, "internal-api", nil)
}

func (m *tokenManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.Subject != "" {
		return claims, nil
	}

	return nil, ErrInvalidToken
}
