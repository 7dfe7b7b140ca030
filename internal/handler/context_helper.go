package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/univern/academics-api/internal/middleware"
	"github.com/univern/academics-api/internal/models"
)

// claimsFromContext returns the authenticated caller's token claims, or nil
// on routes that never passed through the JWT middleware.
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
