package router

import (
	"github.com/NomadCrew/dojo-portal/config"
	"github.com/NomadCrew/dojo-portal/handlers"
	"github.com/NomadCrew/dojo-portal/internal/websocket"
	"github.com/NomadCrew/dojo-portal/middleware"
	"github.com/NomadCrew/dojo-portal/services"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Dependencies struct holds all dependencies required for setting up routes.
type Dependencies struct {
	Config              *config.Config
	HealthHandler       *handlers.HealthHandler
	InboxHandler        *handlers.InboxHandler
	ProfileHandler      *handlers.ProfileHandler
	VerificationHandler *handlers.VerificationHandler
	WSHandler           *websocket.Handler
	// CodeLimiter backs the per-IP limit on verification code requests.
	CodeLimiter services.RateLimiterInterface
	Logger      *zap.SugaredLogger
}

// SetupRouter configures and returns the main Gin engine with all routes defined.
func SetupRouter(deps Dependencies) *gin.Engine {
	r := gin.Default()

	if err := r.SetTrustedProxies(deps.Config.Server.TrustedProxies); err != nil && deps.Logger != nil {
		deps.Logger.Warnw("Invalid trusted proxies, trusting none", "error", err)
		_ = r.SetTrustedProxies(nil)
	}

	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(&deps.Config.Server))
	r.Use(middleware.SecurityHeadersMiddleware(deps.Config))

	// Health and metrics
	r.GET("/health", deps.HealthHandler.DetailedHealth)
	r.GET("/health/liveness", deps.HealthHandler.LivenessCheck)
	r.GET("/health/readiness", deps.HealthHandler.ReadinessCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	{
		// Public verification routes
		verificationRoutes := v1.Group("/verification")
		{
			window := deps.Config.RateLimit.Window()
			verificationRoutes.POST("/codes",
				middleware.CodeRateLimiter(deps.CodeLimiter, deps.Config.RateLimit.CodeRequestsPerWindow, window),
				deps.VerificationHandler.IssueCode)
			verificationRoutes.POST("/verify", deps.VerificationHandler.VerifyCode)
		}

		// Member routes, identified by the gateway's actor headers
		memberRoutes := v1.Group("")
		memberRoutes.Use(middleware.ActorMiddleware())
		{
			memberRoutes.GET("/ws", deps.WSHandler.HandleWebSocket)
			memberRoutes.GET("/profile", deps.ProfileHandler.GetProfile)
			memberRoutes.GET("/payments", deps.ProfileHandler.GetPayments)

			notificationRoutes := memberRoutes.Group("/notifications")
			{
				notificationRoutes.GET("", deps.InboxHandler.ListNotifications)
				notificationRoutes.GET("/unread-count", deps.InboxHandler.UnreadCount)
				notificationRoutes.POST("/page/next", deps.InboxHandler.NextPage)
				notificationRoutes.POST("/page/previous", deps.InboxHandler.PreviousPage)
				notificationRoutes.POST("/:id/select", deps.InboxHandler.ToggleSelect)
				notificationRoutes.PUT("/read", deps.InboxHandler.MarkRead)
				notificationRoutes.PUT("/read-all", deps.InboxHandler.MarkAllRead)
				notificationRoutes.DELETE("", deps.InboxHandler.Delete)
				notificationRoutes.DELETE("/all", deps.InboxHandler.DeleteAll)
			}
		}
	}

	return r
}
