package handlers

import (
	"net/http"
	"net/url"
	"time"

	"github.com/MichaelMishaev/signals-sub003/internal/application/services"
	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/observability/logging"
	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/observability/performance"
	"github.com/gin-gonic/gin"
)

// VerificationHandlers contains the email verification endpoints.
type VerificationHandlers struct {
	verifier    *services.VerificationService
	visitors    *services.VisitorService
	cookies     CookieConfig
	redirectTo  string
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
}

// NewVerificationHandlers creates verification handlers. redirectTo is
// where a redeemed magic link lands.
func NewVerificationHandlers(verifier *services.VerificationService, visitors *services.VisitorService, cookies CookieConfig, redirectTo string, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *VerificationHandlers {
	if redirectTo == "" {
		redirectTo = "/"
	}
	return &VerificationHandlers{
		verifier:    verifier,
		visitors:    visitors,
		cookies:     cookies,
		redirectTo:  redirectTo,
		logger:      logger,
		perfTracker: perfTracker,
	}
}

// EmailRequest is the body of the status and request endpoints.
type EmailRequest struct {
	Email string `json:"email" binding:"required"`
}

// CodeRequest is the body of POST /verify/code.
type CodeRequest struct {
	Email string `json:"email" binding:"required"`
	Code  string `json:"code" binding:"required"`
}

// PostStatus handles POST /api/v1/verify/status
func (h *VerificationHandlers) PostStatus(c *gin.Context) {
	var req EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}
	c.JSON(http.StatusOK, h.verifier.CheckEmailStatus(c.Request.Context(), req.Email))
}

// PostRequestCode handles POST /api/v1/verify/code/request
func (h *VerificationHandlers) PostRequestCode(c *gin.Context) {
	var req EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}
	res := h.verifier.RequestCode(c.Request.Context(), req.Email)
	c.JSON(statusForOutcome(res.Outcome), res)
}

// PostVerifyCode handles POST /api/v1/verify/code. On success the
// visitor's gate state is updated and the marker cookie is set.
func (h *VerificationHandlers) PostVerifyCode(c *gin.Context) {
	visitorID, ok := requireVisitor(c)
	if !ok {
		return
	}
	start := time.Now()
	marker := h.perfTracker.StartOperation("post_verify_code_request", visitorID)
	defer marker.Complete()

	var req CodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and code are required"})
		return
	}

	res, err := h.visitors.SubmitCode(c.Request.Context(), visitorID, req.Email, req.Code)
	if err != nil {
		marker.SetError(err)
		engineError(c, err)
		return
	}
	if res.MarkerToken != "" {
		h.cookies.setMarker(c, res.MarkerToken)
	}

	marker.SetSuccess(res.Verification.Success)
	h.logger.Perf().Info("Performance for PostVerifyCode request", "duration", time.Since(start), "visitorId", visitorID, "outcome", res.Verification.Outcome)
	c.JSON(statusForOutcome(res.Verification.Outcome), res)
}

// PostRequestMagicLink handles POST /api/v1/verify/magic-link/request
func (h *VerificationHandlers) PostRequestMagicLink(c *gin.Context) {
	var req EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}
	res := h.verifier.RequestMagicLink(c.Request.Context(), req.Email)
	c.JSON(statusForOutcome(res.Outcome), res)
}

// GetMagicLink handles GET /api/v1/verify/magic-link?token=... It always
// redirects; the outcome travels in the verify query parameter and, on
// success, in the marker, toast and sync cookies.
func (h *VerificationHandlers) GetMagicLink(c *gin.Context) {
	visitorID, ok := requireVisitor(c)
	if !ok {
		return
	}
	marker := h.perfTracker.StartOperation("get_magic_link_request", visitorID)
	defer marker.Complete()

	res, err := h.visitors.RedeemMagicLink(c.Request.Context(), visitorID, c.Query("token"))
	if err != nil {
		marker.SetError(err)
		engineError(c, err)
		return
	}

	if res.Verification.Success && res.MarkerToken != "" {
		h.cookies.setMarker(c, res.MarkerToken)
		h.cookies.setNotices(c)
	}
	marker.SetSuccess(res.Verification.Success)
	c.Redirect(http.StatusSeeOther, h.redirectURL(res.Verification.Outcome))
}

func (h *VerificationHandlers) redirectURL(outcome services.Outcome) string {
	target, err := url.Parse(h.redirectTo)
	if err != nil {
		target = &url.URL{Path: "/"}
	}
	q := target.Query()
	q.Set("verify", string(outcome))
	target.RawQuery = q.Encode()
	return target.String()
}

// GetReconcile handles GET /api/v1/gate/reconcile. The toast and sync
// cookies are consumed; a marker that fails validation is cleared.
func (h *VerificationHandlers) GetReconcile(c *gin.Context) {
	visitorID, ok := requireVisitor(c)
	if !ok {
		return
	}
	marker := h.perfTracker.StartOperation("get_reconcile_request", visitorID)
	defer marker.Complete()

	in := services.ReconcileInput{
		MarkerToken: cookieValue(c, MarkerCookie),
		Toast:       cookieValue(c, ToastCookie),
		Sync:        cookieValue(c, SyncCookie),
	}

	res, err := h.visitors.Reconcile(c.Request.Context(), visitorID, in)
	if err != nil {
		marker.SetError(err)
		engineError(c, err)
		return
	}

	if in.Toast != "" {
		h.cookies.clear(c, ToastCookie)
	}
	if in.Sync != "" {
		h.cookies.clear(c, SyncCookie)
	}
	if res.ClearMarker {
		h.cookies.clear(c, MarkerCookie)
	}

	marker.SetSuccess(true)
	c.JSON(http.StatusOK, res)
}
