package auth

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrNoCredential means the handshake carried no token at all.
	ErrNoCredential = errors.New("no credential")
	// ErrInvalidCredential means a token was presented but failed validation.
	ErrInvalidCredential = errors.New("invalid credential")
)

func secret() []byte {
	if s := os.Getenv("JWT_SECRET"); s != "" {
		return []byte(s)
	}
	return []byte("my_secret_key") // dev fallback
}

type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

type contextKey string

// UserKey carries the authenticated claims through request contexts.
const UserKey contextKey = "user"

// GenerateToken creates a new JWT token for a given user ID.
func GenerateToken(userID string) (string, error) {
	expirationTime := time.Now().Add(24 * time.Hour)
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expirationTime),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret())
}

// ValidateToken parses and validates a JWT token.
func ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return secret(), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	if !token.Valid {
		return nil, ErrInvalidCredential
	}

	return claims, nil
}

// Authenticate resolves the user identity for a websocket handshake.
// The token comes from the Authorization header or, for clients that
// cannot set headers, the "token" query param. Runs exactly once, before
// the upgrade; a connection is never admitted without it.
func Authenticate(r *http.Request) (string, error) {
	tokenString := r.Header.Get("Authorization")
	if tokenString == "" {
		tokenString = r.URL.Query().Get("token")
	}
	if tokenString == "" {
		return "", ErrNoCredential
	}

	if len(tokenString) > 7 && tokenString[:7] == "Bearer " {
		tokenString = tokenString[7:]
	}

	claims, err := ValidateToken(tokenString)
	if err != nil {
		return "", err
	}
	if claims.UserID == "" {
		return "", ErrInvalidCredential
	}
	return claims.UserID, nil
}
