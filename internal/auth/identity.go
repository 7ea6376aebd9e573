package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tullo/messenger/internal/models"
)

// Claims mirrors the token claims issued by the backend.
type Claims struct {
	UserID         string `json:"user_id"`
	Username       string `json:"username"`
	ProfilePicture string `json:"profile_picture,omitempty"`
	jwt.RegisteredClaims
}

// Identity extracts the current user from a bearer token without
// verifying the signature. The server is the verifier; the client only
// needs to know who it is acting as (reconciliation and unread logic
// both key on the own user id).
func Identity(token string) (models.User, error) {
	var claims Claims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return models.User{}, fmt.Errorf("parse token: %w", err)
	}
	if claims.UserID == "" {
		return models.User{}, fmt.Errorf("token carries no user_id claim")
	}
	return models.User{
		ID:             claims.UserID,
		Username:       claims.Username,
		ProfilePicture: claims.ProfilePicture,
	}, nil
}
