package handlers

import (
	"errors"
	"net/http"

	"github.com/MichaelMishaev/signals-sub003/internal/application/services"
	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/observability/logging"
	"github.com/MichaelMishaev/signals-sub003/internal/presentation/http/middleware"
	"github.com/gin-gonic/gin"
)

// AdminHandlers contains the authenticated operator endpoints.
type AdminHandlers struct {
	verifier *services.VerificationService
	visitors *services.VisitorService
	logger   *logging.ChanneledLogger
}

// NewAdminHandlers creates admin handlers with injected dependencies
func NewAdminHandlers(verifier *services.VerificationService, visitors *services.VisitorService, logger *logging.ChanneledLogger) *AdminHandlers {
	return &AdminHandlers{verifier: verifier, visitors: visitors, logger: logger}
}

// GetEmailStatus handles GET /api/v1/admin/email-status?email=...
func (h *AdminHandlers) GetEmailStatus(c *gin.Context) {
	address := c.Query("email")
	if address == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}

	lookup, err := h.verifier.LookupEmailStatus(c.Request.Context(), address)
	if err != nil {
		if errors.Is(err, services.ErrVerificationUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "verification not configured"})
			return
		}
		h.logger.Verification().Error("Admin email lookup failed", "email", logging.MaskEmail(address), "error", err.Error())
		c.JSON(http.StatusBadGateway, gin.H{"error": "lookup failed", "retryable": true})
		return
	}
	c.JSON(http.StatusOK, lookup)
}

// GetVisitors handles GET /api/v1/admin/visitors
func (h *AdminHandlers) GetVisitors(c *gin.Context) {
	active := h.visitors.ActiveVisitors()
	c.JSON(http.StatusOK, gin.H{"visitors": active, "count": len(active)})
}

// PostResetVisitor handles POST /api/v1/admin/visitors/:id/reset
func (h *AdminHandlers) PostResetVisitor(c *gin.Context) {
	visitorID := c.Param("id")
	if err := h.visitors.Reset(visitorID); err != nil {
		engineError(c, err)
		return
	}
	h.logger.System().Info("Visitor state reset by admin", "visitorId", visitorID, "admin", middleware.AdminSubject(c))
	c.JSON(http.StatusOK, gin.H{"reset": visitorID})
}

// PostBrokerAccount handles POST /api/v1/admin/visitors/:id/broker. The
// broker onboarding backend calls it once an account is funded.
func (h *AdminHandlers) PostBrokerAccount(c *gin.Context) {
	visitorID := c.Param("id")
	eng, err := h.visitors.Engine(visitorID)
	if err != nil {
		engineError(c, err)
		return
	}
	snap := eng.ConfirmBrokerAccount()
	h.logger.Gate().Info("Broker account confirmed by admin", "visitorId", visitorID, "admin", middleware.AdminSubject(c))
	c.JSON(http.StatusOK, snap)
}
