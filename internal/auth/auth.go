// Package auth implements the authentication collaborator for the realtime
// hub: bearer-token verification and the ban check. Token issuance lives in
// a separate service and is not handled here.
package auth

import (
	"fmt"

	"resonate/backend/internal/apperr"
	"resonate/backend/internal/storage"

	jwt "github.com/golang-jwt/jwt/v5"
)

// Verifier validates HS256 bearer tokens and answers ban checks.
type Verifier struct {
	secret  []byte
	storage storage.Storage
}

func NewVerifier(secret string, s storage.Storage) *Verifier {
	return &Verifier{secret: []byte(secret), storage: s}
}

// Verify checks the token signature and expiry and returns the user ID from
// its claims. Any failure maps to Unauthenticated.
func (v *Verifier) Verify(tokenString string) (string, error) {
	if tokenString == "" {
		return "", apperr.ErrUnauthenticated.WithMessage("authorization token missing")
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return "", apperr.ErrUnauthenticated.WithMessage("invalid token or expired").Wrap(err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", apperr.ErrUnauthenticated.WithMessage("invalid token claims")
	}
	userID, _ := claims["user_id"].(string)
	if userID == "" {
		return "", apperr.ErrUnauthenticated.WithMessage("token has no user id")
	}
	return userID, nil
}

// IsBanned reports whether the user is currently banned.
func (v *Verifier) IsBanned(userID string) (bool, error) {
	return v.storage.IsUserBanned(userID)
}
