// Package routes provides HTTP route configuration for the presentation layer.
package routes

import (
	"github.com/MichaelMishaev/signals-sub003/internal/application/container"
	"github.com/MichaelMishaev/signals-sub003/internal/presentation/http/handlers"
	"github.com/MichaelMishaev/signals-sub003/internal/presentation/http/middleware"
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all HTTP routes and middleware with dependency injection.
func SetupRoutes(container *container.Container) *gin.Engine {
	cfg := container.Config

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	cookies := handlers.CookieConfig{
		Secure:    cfg.CookieSecure,
		MarkerTTL: cfg.MarkerTTL,
		NoticeTTL: cfg.NoticeCookieTTL,
	}

	// Initialize handlers
	healthHandlers := handlers.NewHealthHandlers(container.DB, container.Logger)
	gateHandlers := handlers.NewGateHandlers(container.VisitorService, container.Logger, container.PerfTracker)
	verificationHandlers := handlers.NewVerificationHandlers(container.VerificationService, container.VisitorService, cookies, cfg.MagicLinkSuccess, container.Logger, container.PerfTracker)
	eventsHandlers := handlers.NewEventsHandlers(container.VisitorService, container.Hub, cfg.AllowedOrigins, container.Logger)
	adminHandlers := handlers.NewAdminHandlers(container.VerificationService, container.VisitorService, container.Logger)

	api := r.Group("/api/v1")
	api.GET("/health", healthHandlers.GetHealth)

	gate := api.Group("/gate", middleware.VisitorMiddleware(cfg.CookieSecure))
	{
		gate.GET("/state", gateHandlers.GetState)
		gate.POST("/views", gateHandlers.PostView)
		gate.POST("/actions", gateHandlers.PostAction)
		gate.POST("/exit-intent", gateHandlers.PostExitIntent)
		gate.POST("/dismiss", gateHandlers.PostDismiss)
		gate.GET("/reconcile", verificationHandlers.GetReconcile)
		gate.GET("/events", eventsHandlers.GetEvents)
	}

	verify := api.Group("/verify", middleware.VisitorMiddleware(cfg.CookieSecure))
	{
		verify.POST("/status", verificationHandlers.PostStatus)
		verify.POST("/code/request", verificationHandlers.PostRequestCode)
		verify.POST("/code", verificationHandlers.PostVerifyCode)
		verify.POST("/magic-link/request", verificationHandlers.PostRequestMagicLink)
		verify.GET("/magic-link", verificationHandlers.GetMagicLink)
	}

	admin := api.Group("/admin", middleware.AdminAuthMiddleware(cfg.AdminSecret, container.Logger))
	{
		admin.GET("/email-status", adminHandlers.GetEmailStatus)
		admin.GET("/visitors", adminHandlers.GetVisitors)
		admin.POST("/visitors/:id/reset", adminHandlers.PostResetVisitor)
		admin.POST("/visitors/:id/broker", adminHandlers.PostBrokerAccount)
	}

	return r
}
