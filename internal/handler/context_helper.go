package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/church-music-api/internal/middleware"
	"github.com/noah-isme/church-music-api/internal/models"
	"github.com/noah-isme/church-music-api/internal/service"
	appErrors "github.com/noah-isme/church-music-api/pkg/errors"
	"github.com/noah-isme/church-music-api/pkg/response"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// actorFromContext writes a 401 and returns false when the request carries
// no church-scoped claims.
func actorFromContext(c *gin.Context) (service.Actor, bool) {
	claims := claimsFromContext(c)
	if claims == nil || claims.ChurchID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return service.Actor{}, false
	}
	return service.ActorFromClaims(claims), true
}
