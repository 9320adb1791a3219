package middleware

import (
	"net/http"

	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/security"
	"github.com/gin-gonic/gin"
)

const (
	// VisitorHeader lets non-browser clients name their visitor id.
	VisitorHeader = "X-Visitor-ID"
	// VisitorCookie holds the visitor id issued on first contact.
	VisitorCookie = "visitor_id"

	visitorContextKey   = "visitorID"
	visitorCookieMaxAge = 365 * 24 * 60 * 60
)

// VisitorMiddleware resolves the visitor id from the header or cookie,
// issuing a new ULID when neither holds a valid one.
func VisitorMiddleware(secureCookies bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		visitorID := c.GetHeader(VisitorHeader)
		if !security.IsULID(visitorID) {
			visitorID, _ = c.Cookie(VisitorCookie)
		}
		if !security.IsULID(visitorID) {
			visitorID = security.GenerateULID()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(VisitorCookie, visitorID, visitorCookieMaxAge, "/", "", secureCookies, true)
		}

		c.Set(visitorContextKey, visitorID)
		c.Header(VisitorHeader, visitorID)
		c.Next()
	}
}

// GetVisitorID retrieves the visitor id set by VisitorMiddleware.
func GetVisitorID(c *gin.Context) (string, bool) {
	value, exists := c.Get(visitorContextKey)
	if !exists {
		return "", false
	}
	visitorID, ok := value.(string)
	return visitorID, ok && visitorID != ""
}
