package signaling

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionTokenExpiry bounds how long Validate accepts a signed session
// token. No signaling request accepts a token in place of the secret check
// in internal/admission: every connection authenticates with the secret.
const SessionTokenExpiry = 12 * time.Hour

// SessionClaims is the JWT payload issued on a successful authenticate,
// generalized from the teacher's auth.Claims to carry clientId + admin
// flag instead of a GitHub identity.
type SessionClaims struct {
	ClientID string `json:"cid"`
	Admin    bool   `json:"adm"`
	jwt.RegisteredClaims
}

// TokenManager signs and validates SessionClaims with a single HS256
// secret, mirroring the teacher's JWTManager shape without the
// access/refresh pair this server has no use for.
type TokenManager struct {
	secret []byte
}

// NewTokenManager constructs a TokenManager. The secret must be at least
// 32 bytes, matching the teacher's HS256 floor.
func NewTokenManager(secret string) (*TokenManager, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("signaling: session token secret must be at least 32 characters, got %d", len(secret))
	}
	return &TokenManager{secret: []byte(secret)}, nil
}

// Issue signs a session token for clientID, valid for SessionTokenExpiry.
func (m *TokenManager) Issue(clientID string, admin bool) (string, int64, error) {
	now := time.Now()
	expiresAt := now.Add(SessionTokenExpiry)
	claims := SessionClaims{
		ClientID: clientID,
		Admin:    admin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "intercom-router",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", 0, fmt.Errorf("signaling: sign session token: %w", err)
	}
	return signed, expiresAt.Unix(), nil
}

// Validate parses and verifies a session token, returning its claims.
func (m *TokenManager) Validate(tokenStr string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &SessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("signaling: invalid session token: %w", err)
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("signaling: invalid session token claims")
	}
	return claims, nil
}
