package service

import "github.com/noah-isme/church-music-api/internal/models"

// Actor is the authenticated caller of a service operation.
type Actor struct {
	UserID   string
	ChurchID string
	Role     models.UserRole
}

// ActorFromClaims builds an Actor from validated token claims.
func ActorFromClaims(claims *models.JWTClaims) Actor {
	if claims == nil {
		return Actor{}
	}
	return Actor{UserID: claims.UserID, ChurchID: claims.ChurchID, Role: claims.Role}
}
