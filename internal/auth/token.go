// Package auth provides JWT token issuance and verification plus the gin
// middleware that guards the API. Tokens are HS256-signed and carry the user
// id, email, and role.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/taskloop/taskloop/internal/common/apperr"
)

// Role distinguishes interactive users from internal services.
type Role string

const (
	// RoleUser is an interactive account authenticated by password.
	RoleUser Role = "user"

	// RoleService is an internal worker. Service tokens act on behalf of
	// a user named in the X-Acting-User-ID header.
	RoleService Role = "service"
)

// serviceTokenTTL bounds service tokens; workers mint a fresh one per call.
const serviceTokenTTL = 5 * time.Minute

// Claims is the JWT claim set.
type Claims struct {
	UserID string `json:"uid"`
	Email  string `json:"email,omitempty"`
	Role   Role   `json:"role"`
	jwt.RegisteredClaims
}

// TokenManager mints and verifies tokens with a shared HS256 secret.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenManager creates a TokenManager.
func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), ttl: ttl}
}

// Mint issues a user token.
func (m *TokenManager) Mint(userID, email string) (string, error) {
	return m.mint(&Claims{
		UserID: userID,
		Email:  email,
		Role:   RoleUser,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwt.NewNumericDate(time.Now().UTC().Add(m.ttl)),
		},
	})
}

// MintService issues a short-lived service token for the named worker.
func (m *TokenManager) MintService(service string) (string, error) {
	return m.mint(&Claims{
		UserID: service,
		Role:   RoleService,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   service,
			IssuedAt:  jwt.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwt.NewNumericDate(time.Now().UTC().Add(serviceTokenTTL)),
		},
	})
}

func (m *TokenManager) mint(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", apperr.Wrap(apperr.Unknown, "failed to sign token", err)
	}
	return signed, nil
}

// Parse verifies a token and returns its claims. Only HS256 is accepted;
// every failure maps to Unauthorized so callers cannot distinguish a bad
// signature from an expired token.
func (m *TokenManager) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, apperr.Unauthorizedf("invalid credentials")
	}
	if claims.UserID == "" {
		return nil, apperr.Unauthorizedf("invalid credentials")
	}
	if claims.Role != RoleUser && claims.Role != RoleService {
		return nil, apperr.Unauthorizedf("invalid credentials")
	}
	return claims, nil
}
