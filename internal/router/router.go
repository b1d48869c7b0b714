// Package router assembles the gin engine: middleware chain, API routes
// and the operational endpoints.
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/campus-hub/campus-ops-api/internal/handler"
	"github.com/campus-hub/campus-ops-api/internal/middleware"
	"github.com/campus-hub/campus-ops-api/internal/models"
	"github.com/campus-hub/campus-ops-api/internal/service"
	"github.com/campus-hub/campus-ops-api/pkg/config"
	"github.com/campus-hub/campus-ops-api/pkg/logger"
	"github.com/campus-hub/campus-ops-api/pkg/middleware/cors"
	"github.com/campus-hub/campus-ops-api/pkg/middleware/requestid"
)

// mutationVerbs registers a state-changing route under PUT, the
// documented verb, and POST, which older clients still send.
var mutationVerbs = []string{http.MethodPut, http.MethodPost}

// Handlers groups everything the router mounts.
type Handlers struct {
	Auth         *handler.AuthHandler
	Facility     *handler.FacilityHandler
	Booking      *handler.BookingHandler
	Ticket       *handler.TicketHandler
	Comment      *handler.CommentHandler
	Notification *handler.NotificationHandler
	Dashboard    *handler.DashboardHandler
}

// Dependencies carries cross-cutting services the router needs directly.
type Dependencies struct {
	Config  *config.Config
	Logger  *zap.Logger
	Auth    *service.AuthService
	Metrics *service.MetricsService
	Ready   func() error
}

// New builds the configured gin engine.
func New(deps Dependencies, h Handlers) *gin.Engine {
	if deps.Config.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestid.Middleware())
	engine.Use(logger.GinMiddleware(deps.Logger))
	engine.Use(cors.New(deps.Config.CORS.AllowedOrigins))
	if deps.Config.Metrics.Enabled && deps.Metrics != nil {
		engine.Use(middleware.Metrics(deps.Metrics))
	}

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/ready", func(c *gin.Context) {
		if deps.Ready != nil {
			if err := deps.Ready(); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	if deps.Config.Metrics.Enabled && deps.Metrics != nil {
		engine.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}
	engine.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := engine.Group(deps.Config.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/register", h.Auth.Register)
		auth.POST("/login", h.Auth.Login)
		auth.POST("/google", h.Auth.Google)
		auth.GET("/me", middleware.JWT(deps.Auth), h.Auth.Me)
	}

	// Signed tokens carry their own authorization.
	api.GET("/files/download", h.Ticket.Download)

	protected := api.Group("")
	protected.Use(middleware.JWT(deps.Auth))
	{
		users := protected.Group("/users", middleware.RequireRoles(models.RoleAdmin))
		{
			users.GET("", h.Auth.ListUsers)
			users.PUT("/:id/roles", h.Auth.UpdateRoles)
		}

		facilities := protected.Group("/facilities")
		{
			facilities.GET("", h.Facility.List)
			facilities.GET("/search", h.Facility.List)
			facilities.GET("/:id", h.Facility.Get)
			facilities.POST("", middleware.RequireRoles(models.RoleAdmin), h.Facility.Create)
			facilities.PUT("/:id", middleware.RequireRoles(models.RoleAdmin), h.Facility.Update)
			facilities.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), h.Facility.Delete)
		}

		bookings := protected.Group("/bookings")
		{
			bookings.POST("", h.Booking.Create)
			bookings.GET("", h.Booking.List)
			bookings.GET("/my", h.Booking.ListMine)
			bookings.GET("/facility/:facilityId", h.Booking.ListByFacility)
			bookings.GET("/export", middleware.RequireRoles(models.RoleAdmin), h.Booking.Export)
			bookings.GET("/:id", h.Booking.Get)
			bookings.Match(mutationVerbs, "/:id/approve", middleware.RequireRoles(models.RoleAdmin), h.Booking.Approve)
			bookings.Match(mutationVerbs, "/:id/reject", middleware.RequireRoles(models.RoleAdmin), h.Booking.Reject)
			bookings.Match(mutationVerbs, "/:id/cancel", h.Booking.Cancel)
		}

		tickets := protected.Group("/tickets")
		{
			tickets.POST("", h.Ticket.Create)
			tickets.POST("/simple", h.Ticket.Create)
			tickets.GET("", h.Ticket.List)
			tickets.GET("/my", h.Ticket.ListMine)
			tickets.GET("/assigned", h.Ticket.ListAssigned)
			tickets.GET("/:id", h.Ticket.Get)
			tickets.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), h.Ticket.Delete)
			tickets.Match(mutationVerbs, "/:id/assign", middleware.RequireRoles(models.RoleAdmin), h.Ticket.Assign)
			tickets.PUT("/:id/status", middleware.RequireRoles(models.RoleTechnician, models.RoleAdmin), h.Ticket.UpdateStatus)
			tickets.GET("/:id/attachments", h.Ticket.AttachmentToken)
			tickets.GET("/:id/comments", h.Comment.List)
			tickets.POST("/:id/comments", h.Comment.Create)
		}

		comments := protected.Group("/comments")
		{
			comments.PUT("/:id", h.Comment.Update)
			comments.DELETE("/:id", h.Comment.Delete)
		}

		notifications := protected.Group("/notifications")
		{
			notifications.GET("", h.Notification.List)
			notifications.GET("/unread", h.Notification.ListUnread)
			notifications.GET("/unread/count", h.Notification.UnreadCount)
			notifications.GET("/unread-count", h.Notification.UnreadCount)
			notifications.Match(mutationVerbs, "/read-all", h.Notification.MarkAllRead)
			notifications.Match(mutationVerbs, "/:id/read", h.Notification.MarkRead)
			notifications.DELETE("/:id", h.Notification.Delete)
		}

		if deps.Config.Dashboard.Enabled {
			protected.GET("/dashboard/stats", middleware.RequireRoles(models.RoleAdmin), h.Dashboard.Stats)
		}
	}

	return engine
}
