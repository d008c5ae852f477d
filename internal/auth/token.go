package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"ticket-wallet/internal/models"
)

var (
	ErrMissingToken = errors.New("authorization header is missing")
	ErrTokenFormat  = errors.New("authorization header format must be 'Bearer {token}'")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims is what a wallet session token carries about its user.
type Claims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// ExtractTokenFromRequest extracts a JWT token from an HTTP request's Authorization header
func ExtractTokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", ErrMissingToken
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", ErrTokenFormat
	}

	return parts[1], nil
}

// ParseUser verifies an HS256 token and returns the user it was issued to.
// The subject claim is the user id and must be present.
func ParseUser(tokenString string, secret []byte) (models.User, error) {
	if tokenString == "" {
		return models.User{}, ErrMissingToken
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return models.User{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.Subject == "" {
		return models.User{}, fmt.Errorf("%w: subject claim not found in token", ErrInvalidToken)
	}

	return models.User{ID: claims.Subject, Email: claims.Email, Name: claims.Name, External: true}, nil
}

// IssueToken signs a token for a user that expires after ttl.
func IssueToken(user models.User, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: user.Email,
		Name:  user.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
