package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/gmsas95/docsheet/internal/errors"
	"github.com/gmsas95/docsheet/internal/store"
)

// TokenIssuer signs and verifies session tokens
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl}
}

// Claims carried in session tokens
type Claims struct {
	Email string
	Role  string
}

// Issue signs an HS256 token with the user's email as subject
func (t *TokenIssuer) Issue(user *store.User) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  user.Email,
		"role": user.Role,
		"iat":  time.Now().Unix(),
		"exp":  time.Now().Add(t.ttl).Unix(),
	})
	return token.SignedString(t.secret)
}

// Verify parses a token and returns its claims
func (t *TokenIssuer) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apperrors.ErrUnauthorized
		}
		return t.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, apperrors.ErrUnauthorized
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, apperrors.ErrUnauthorized
	}
	email, _ := mapClaims["sub"].(string)
	role, _ := mapClaims["role"].(string)
	if email == "" {
		return nil, apperrors.ErrUnauthorized
	}
	return &Claims{Email: email, Role: role}, nil
}
