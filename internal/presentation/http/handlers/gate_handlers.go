package handlers

import (
	"net/http"
	"time"

	"github.com/MichaelMishaev/signals-sub003/internal/application/engine"
	"github.com/MichaelMishaev/signals-sub003/internal/application/services"
	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/observability/logging"
	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/observability/performance"
	"github.com/gin-gonic/gin"
)

// GateHandlers exposes a visitor's engine over HTTP.
type GateHandlers struct {
	visitors    *services.VisitorService
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
}

// NewGateHandlers creates gate handlers with injected dependencies
func NewGateHandlers(visitors *services.VisitorService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *GateHandlers {
	return &GateHandlers{
		visitors:    visitors,
		logger:      logger,
		perfTracker: perfTracker,
	}
}

// ViewRequest is the body of POST /gate/views.
type ViewRequest struct {
	DrillID string `json:"drillId" binding:"required"`
}

// ActionRequest is the body of POST /gate/actions.
type ActionRequest struct {
	Kind string `json:"kind"`
}

// ExitIntentRequest is the body of POST /gate/exit-intent.
type ExitIntentRequest struct {
	ClientY          float64 `json:"clientY"`
	HasRelatedTarget bool    `json:"hasRelatedTarget"`
}

// GetState handles GET /api/v1/gate/state. It is the page-load hook: it
// applies session expiry and re-arms the idle timer.
func (h *GateHandlers) GetState(c *gin.Context) {
	visitorID, ok := requireVisitor(c)
	if !ok {
		return
	}
	marker := h.perfTracker.StartOperation("get_gate_state_request", visitorID)
	defer marker.Complete()

	snap, err := h.visitors.Mount(visitorID)
	if err != nil {
		marker.SetError(err)
		engineError(c, err)
		return
	}

	marker.SetSuccess(true)
	c.JSON(http.StatusOK, snap)
}

// PostView handles POST /api/v1/gate/views
func (h *GateHandlers) PostView(c *gin.Context) {
	visitorID, ok := requireVisitor(c)
	if !ok {
		return
	}
	start := time.Now()
	marker := h.perfTracker.StartOperation("post_gate_view_request", visitorID)
	defer marker.Complete()

	var req ViewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithVisitor(logging.ChannelGate, visitorID).Debug("View request binding failed", "error", err.Error())
		c.JSON(http.StatusBadRequest, gin.H{"error": "drillId is required"})
		return
	}

	eng, err := h.visitors.Engine(visitorID)
	if err != nil {
		marker.SetError(err)
		engineError(c, err)
		return
	}
	res := eng.ViewDrill(req.DrillID)

	marker.SetSuccess(true)
	h.logger.Perf().Info("Performance for PostView request", "duration", time.Since(start), "visitorId", visitorID, "decision", res.Decision)
	c.JSON(http.StatusOK, res)
}

// PostAction handles POST /api/v1/gate/actions
func (h *GateHandlers) PostAction(c *gin.Context) {
	visitorID, ok := requireVisitor(c)
	if !ok {
		return
	}
	marker := h.perfTracker.StartOperation("post_gate_action_request", visitorID)
	defer marker.Complete()

	var req ActionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
			return
		}
	}

	eng, err := h.visitors.Engine(visitorID)
	if err != nil {
		marker.SetError(err)
		engineError(c, err)
		return
	}
	res := eng.TrackAction()
	h.logger.WithVisitor(logging.ChannelPopup, visitorID).Debug("Action tracked", "kind", req.Kind, "actionCount", res.ActionCount, "counted", res.Counted)

	marker.SetSuccess(true)
	c.JSON(http.StatusOK, res)
}

// PostExitIntent handles POST /api/v1/gate/exit-intent
func (h *GateHandlers) PostExitIntent(c *gin.Context) {
	visitorID, ok := requireVisitor(c)
	if !ok {
		return
	}
	marker := h.perfTracker.StartOperation("post_exit_intent_request", visitorID)
	defer marker.Complete()

	var req ExitIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	eng, err := h.visitors.Engine(visitorID)
	if err != nil {
		marker.SetError(err)
		engineError(c, err)
		return
	}
	res := eng.PointerLeave(engine.PointerLeave{ClientY: req.ClientY, HasRelatedTarget: req.HasRelatedTarget})

	marker.SetSuccess(true)
	c.JSON(http.StatusOK, res)
}

// PostDismiss handles POST /api/v1/gate/dismiss. A blocking prompt answers
// 409 and stays on screen.
func (h *GateHandlers) PostDismiss(c *gin.Context) {
	visitorID, ok := requireVisitor(c)
	if !ok {
		return
	}
	marker := h.perfTracker.StartOperation("post_dismiss_request", visitorID)
	defer marker.Complete()

	eng, err := h.visitors.Engine(visitorID)
	if err != nil {
		marker.SetError(err)
		engineError(c, err)
		return
	}

	result := eng.Dismiss()
	status := http.StatusOK
	if result == engine.NotDismissible {
		status = http.StatusConflict
	}
	marker.SetSuccess(status == http.StatusOK)
	c.JSON(status, gin.H{"result": result})
}
