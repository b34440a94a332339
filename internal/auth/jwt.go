package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"tranche-vault/internal/access"
)

// Claims represents JWT claims used by this service.
// The subject is the holder or operator address.
type Claims struct {
	Role         string   `json:"role"`
	Capabilities []string `json:"caps,omitempty"`
	jwt.RegisteredClaims
}

// ParseJWT validates a JWT and returns claims.
func ParseJWT(tokenString string, secret []byte) (*Claims, error) {
	if tokenString == "" {
		return nil, errors.New("auth: empty token")
	}
	if len(secret) == 0 {
		return nil, errors.New("auth: empty secret")
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("auth: invalid signing method")
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("auth: invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("auth: missing subject")
	}
	if _, ok := NormalizeRole(claims.Role); !ok {
		return nil, errors.New("auth: invalid role")
	}
	if _, err := claims.ExtraCapabilities(); err != nil {
		return nil, err
	}
	if claims.ExpiresAt != nil && time.Now().After(claims.ExpiresAt.Time) {
		return nil, errors.New("auth: token expired")
	}
	return claims, nil
}

// ExtraCapabilities parses capabilities granted beyond the role.
func (c *Claims) ExtraCapabilities() ([]access.Capability, error) {
	out := make([]access.Capability, 0, len(c.Capabilities))
	for _, raw := range c.Capabilities {
		capability, ok := access.ParseCapability(raw)
		if !ok {
			return nil, errors.New("auth: invalid capability " + raw)
		}
		out = append(out, capability)
	}
	return out, nil
}

// SignToken issues an HS256 token for subject.
func SignToken(secret []byte, subject string, role Role, ttl time.Duration, caps ...access.Capability) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("auth: empty secret")
	}
	now := time.Now()
	claims := Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	for _, capability := range caps {
		claims.Capabilities = append(claims.Capabilities, string(capability))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
