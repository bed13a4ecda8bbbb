package utils

import (
	"errors"
	"fmt"
	"time"

	"spotsort-be/models"

	"github.com/dgrijalva/jwt-go"
)

var ErrInvalidToken = errors.New("invalid authorization token")

// TokenIssuer signs and parses HS256 bearer tokens carrying the caller's
// user id, role and zone.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret string, ttl time.Duration) (*TokenIssuer, error) {
	if secret == "" {
		return nil, fmt.Errorf("JWT secret is not set")
	}
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// GenerateToken generates a JWT token for the given identity
func (t *TokenIssuer) GenerateToken(id models.Identity) (string, error) {
	claims := jwt.MapClaims{
		"user_id": id.UserID,
		"role":    string(id.Role),
		"exp":     t.now().Add(t.ttl).Unix(),
	}
	if id.Zone != "" {
		claims["zone"] = id.Zone
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(t.secret)
	if err != nil {
		return "", err
	}
	return tokenString, nil
}

// ParseToken validates the signature and expiry and returns the user id claim.
// Role and zone are re-read from the user record by the caller, so a demoted
// user does not keep stale privileges until the token expires.
func (t *TokenIssuer) ParseToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return "", ErrInvalidToken
	}
	return userID, nil
}
