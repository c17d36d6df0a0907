// Package auth verifies the bearer tokens issued by the marketplace identity
// service. Tokens are HMAC-signed JWTs; a "kid" header selects the key so
// that keys can be rotated without invalidating tokens already in flight.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnknownKey is returned for tokens whose kid names no configured key.
var ErrUnknownKey = errors.New("unknown signing key")

// JWTManager signs and validates JWT tokens used by the API.
type JWTManager struct {
	keys      map[string][]byte // kid -> HMAC secret
	activeKid string            // kid used for new tokens; "" for single-key mode
	duration  time.Duration
}

// Claims is the JWT payload the service relies on.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// NewJWTManager returns a single-key manager.
func NewJWTManager(secretKey string, duration time.Duration) *JWTManager {
	return &JWTManager{
		keys:     map[string][]byte{"": []byte(secretKey)},
		duration: duration,
	}
}

// NewJWTManagerFromKeys returns a manager that verifies tokens signed with any
// of keys and signs new tokens with activeKid. When activeKid is empty or
// unknown the lexically smallest kid is used so startup stays deterministic.
func NewJWTManagerFromKeys(keys map[string]string, activeKid string, duration time.Duration) *JWTManager {
	m := &JWTManager{keys: make(map[string][]byte, len(keys)), duration: duration}
	for kid, secret := range keys {
		m.keys[kid] = []byte(secret)
	}
	if _, ok := m.keys[activeKid]; !ok {
		activeKid = ""
		for kid := range m.keys {
			if activeKid == "" || kid < activeKid {
				activeKid = kid
			}
		}
	}
	m.activeKid = activeKid
	return m
}

// GenerateToken issues a signed token. The identity service owns issuance in
// production; this is used by tooling and tests.
func (m *JWTManager) GenerateToken(userID, role string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(m.duration)

	claims := &Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	if m.activeKid != "" {
		token.Header["kid"] = m.activeKid
	}

	signed, err := token.SignedString(m.keys[m.activeKid])
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// VerifyToken parses and validates a token and returns its claims.
func (m *JWTManager) VerifyToken(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// Reject anything that is not HMAC so a public key can never be used as a secret.
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		kid, _ := token.Header["kid"].(string)
		key, ok := m.keys[kid]
		if !ok {
			return nil, ErrUnknownKey
		}
		return key, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.UserID == "" {
		return nil, errors.New("token carries no user id")
	}
	return claims, nil
}

// RoleAdmin is the role allowed to moderate reports.
const RoleAdmin = "admin"

// IsAdmin reports whether the claims grant moderation rights.
func (c *Claims) IsAdmin() bool { return c != nil && c.Role == RoleAdmin }
