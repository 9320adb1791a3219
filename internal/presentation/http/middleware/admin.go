package middleware

import (
	"net/http"
	"strings"

	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/observability/logging"
	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/security"
	"github.com/gin-gonic/gin"
)

const adminContextKey = "adminSubject"

// AdminAuthMiddleware requires a bearer admin JWT signed with secret. With
// no secret configured the admin surface is unavailable.
func AdminAuthMiddleware(secret string, logger *logging.ChanneledLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "admin access not configured"})
			return
		}

		authHeader := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}

		subject, err := security.ValidateAdminToken(token, secret)
		if err != nil {
			logger.System().Warn("Rejected admin token", "path", c.Request.URL.Path, "ip", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(adminContextKey, subject)
		c.Next()
	}
}

// AdminSubject returns the subject of the authenticated admin token.
func AdminSubject(c *gin.Context) string {
	return c.GetString(adminContextKey)
}
