package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"ms-checkin/internal/models"
)

// OperatorClaims are the JWT claims carried by staff-portal tokens. The
// subject is the operator id; Name is the display name shown in audit rows.
type OperatorClaims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// ExtractTokenFromRequest extracts a JWT token from an HTTP request's
// Authorization header.
func ExtractTokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("authorization header is missing")
	}

	// Bearer token format: "Bearer {token}"
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("authorization header format must be 'Bearer {token}'")
	}

	return parts[1], nil
}

// ParseOperatorToken validates an operator token and returns the operator
// identity it carries.
func ParseOperatorToken(tokenString, secret string) (*models.Operator, error) {
	if tokenString == "" {
		return nil, errors.New("empty token")
	}

	claims := &OperatorClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("subject claim not found in token")
	}

	name := claims.Name
	if name == "" {
		name = claims.Subject
	}
	return &models.Operator{ID: claims.Subject, Name: name}, nil
}
