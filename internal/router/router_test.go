package router

import (
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/campus-hub/campus-ops-api/internal/handler"
	"github.com/campus-hub/campus-ops-api/pkg/config"
)

func newTestEngine(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{APIPrefix: "/api/v1"}
	cfg.Dashboard.Enabled = true
	return New(Dependencies{Config: cfg, Logger: zap.NewNop()}, Handlers{
		Auth:         handler.NewAuthHandler(nil),
		Facility:     handler.NewFacilityHandler(nil),
		Booking:      handler.NewBookingHandler(nil),
		Ticket:       handler.NewTicketHandler(nil),
		Comment:      handler.NewCommentHandler(nil),
		Notification: handler.NewNotificationHandler(nil),
		Dashboard:    handler.NewDashboardHandler(nil),
	})
}

func TestRouterExposesDocumentedSurface(t *testing.T) {
	engine := newTestEngine(t)

	registered := map[string]bool{}
	for _, route := range engine.Routes() {
		registered[route.Method+" "+route.Path] = true
	}

	want := []string{
		"POST /api/v1/auth/register",
		"POST /api/v1/auth/login",
		"POST /api/v1/auth/google",
		"GET /api/v1/auth/me",
		"GET /api/v1/users",
		"PUT /api/v1/users/:id/roles",

		"GET /api/v1/facilities",
		"GET /api/v1/facilities/search",
		"GET /api/v1/facilities/:id",
		"POST /api/v1/facilities",
		"PUT /api/v1/facilities/:id",
		"DELETE /api/v1/facilities/:id",

		"POST /api/v1/bookings",
		"GET /api/v1/bookings",
		"GET /api/v1/bookings/my",
		"GET /api/v1/bookings/facility/:facilityId",
		"GET /api/v1/bookings/export",
		"GET /api/v1/bookings/:id",
		"PUT /api/v1/bookings/:id/approve",
		"PUT /api/v1/bookings/:id/reject",
		"PUT /api/v1/bookings/:id/cancel",

		"POST /api/v1/tickets",
		"POST /api/v1/tickets/simple",
		"GET /api/v1/tickets",
		"GET /api/v1/tickets/my",
		"GET /api/v1/tickets/assigned",
		"GET /api/v1/tickets/:id",
		"DELETE /api/v1/tickets/:id",
		"PUT /api/v1/tickets/:id/assign",
		"PUT /api/v1/tickets/:id/status",
		"GET /api/v1/tickets/:id/attachments",
		"GET /api/v1/tickets/:id/comments",
		"POST /api/v1/tickets/:id/comments",

		"PUT /api/v1/comments/:id",
		"DELETE /api/v1/comments/:id",

		"GET /api/v1/notifications",
		"GET /api/v1/notifications/unread",
		"GET /api/v1/notifications/unread/count",
		"PUT /api/v1/notifications/:id/read",
		"PUT /api/v1/notifications/read-all",
		"DELETE /api/v1/notifications/:id",

		"GET /api/v1/dashboard/stats",
		"GET /api/v1/files/download",
		"GET /health",
		"GET /ready",
	}
	for _, route := range want {
		assert.True(t, registered[route], "missing route %s", route)
	}
}

// Mutations predating the verb cleanup still accept POST.
func TestRouterKeepsPostAliases(t *testing.T) {
	engine := newTestEngine(t)

	registered := map[string]bool{}
	for _, route := range engine.Routes() {
		registered[route.Method+" "+route.Path] = true
	}

	for _, route := range []string{
		"POST /api/v1/bookings/:id/approve",
		"POST /api/v1/bookings/:id/reject",
		"POST /api/v1/bookings/:id/cancel",
		"POST /api/v1/tickets/:id/assign",
		"POST /api/v1/notifications/:id/read",
		"POST /api/v1/notifications/read-all",
	} {
		assert.True(t, registered[route], "missing route %s", route)
	}
}
