package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/account-service/internal/middleware"
	"github.com/noah-isme/account-service/internal/models"
)

func claimsFromContext(c *gin.Context) *models.TokenClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.TokenClaims)
	if !ok {
		return nil
	}
	return claims
}

// currentUserID prefers the request context and falls back to the gin claims.
func currentUserID(c *gin.Context) (string, bool) {
	if id, ok := middleware.UserIDFromContext(c.Request.Context()); ok {
		return id, true
	}
	if claims := claimsFromContext(c); claims != nil && claims.UserID() != "" {
		return claims.UserID(), true
	}
	return "", false
}
