package middleware

import (
	"net/http"

	"ekh_mining/internal/domain"
	"ekh_mining/internal/identity"
	"ekh_mining/internal/logger"

	"github.com/gin-gonic/gin"
)

const (
	ctxUserID   = "user_id"
	ctxIdentity = "identity"
	ctxToken    = "token"
)

// Auth verifies the bearer token and stores the identity in the gin context.
// Browsers can't set headers on websocket upgrades, so the "token" query
// parameter is accepted as well.
func Auth(verifier identity.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := identity.TokenFromHeader(c.GetHeader("Authorization"))
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		ident, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			logger.WithContext(c.Request.Context()).Debug("token rejected", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(ctxUserID, ident.ID)
		c.Set(ctxIdentity, ident)
		c.Set(ctxToken, token)
		c.Request = c.Request.WithContext(logger.ContextWith(c.Request.Context(), "user_id", ident.ID))
		c.Next()
	}
}

// UserID returns the id stored by Auth.
func UserID(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxUserID)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

// Identity returns the identity stored by Auth.
func Identity(c *gin.Context) (*domain.Identity, bool) {
	v, ok := c.Get(ctxIdentity)
	if !ok {
		return nil, false
	}
	ident, ok := v.(*domain.Identity)
	return ident, ok
}

// Token returns the raw token that authenticated the request.
func Token(c *gin.Context) string {
	return c.GetString(ctxToken)
}
