package handlers

import (
	"errors"
	"net/http"

	"github.com/MichaelMishaev/signals-sub003/internal/application/services"
	"github.com/MichaelMishaev/signals-sub003/internal/presentation/http/middleware"
	"github.com/gin-gonic/gin"
)

// statusForOutcome maps a verification outcome to an HTTP status.
func statusForOutcome(outcome services.Outcome) int {
	switch outcome {
	case services.OutcomeSent, services.OutcomeVerified:
		return http.StatusOK
	case services.OutcomeInvalidEmail, services.OutcomeInvalidCode, services.OutcomeInvalidToken:
		return http.StatusBadRequest
	case services.OutcomeExpired, services.OutcomeExpiredToken:
		return http.StatusGone
	case services.OutcomeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

// requireVisitor returns the visitor id or aborts the request.
func requireVisitor(c *gin.Context) (string, bool) {
	visitorID, ok := middleware.GetVisitorID(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "visitor context not found"})
		return "", false
	}
	return visitorID, true
}

// engineError answers a failed engine lookup.
func engineError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidVisitor):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid visitor"})
	case errors.Is(err, services.ErrServiceClosed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "shutting down"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
