// README: JWT issuance and parsing with role claims.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"dishpatch/internal/types"
)

type actorClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateToken creates a signed JWT carrying the actor's id and role.
func GenerateToken(secret string, actor types.Actor, ttl time.Duration) (string, error) {
	claims := &actorClaims{
		Role: string(actor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(actor.ID),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken validates the token and returns the embedded actor.
func ParseToken(secret, tokenString string) (types.Actor, error) {
	token, err := jwt.ParseWithClaims(tokenString, &actorClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return types.Actor{}, ErrInvalidToken
	}
	claims, ok := token.Claims.(*actorClaims)
	if !ok || !token.Valid {
		return types.Actor{}, ErrInvalidToken
	}
	role, err := types.ParseRole(claims.Role)
	if err != nil {
		return types.Actor{}, ErrInvalidToken
	}
	return types.Actor{ID: types.ID(claims.Subject), Role: role}, nil
}
