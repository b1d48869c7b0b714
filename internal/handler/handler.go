// Package handler wires HTTP endpoints to the services. Handlers bind and
// hand the authenticated principal through; all policy lives below.
package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/campus-hub/campus-ops-api/internal/middleware"
	"github.com/campus-hub/campus-ops-api/internal/models"
	appErrors "github.com/campus-hub/campus-ops-api/pkg/errors"
	"github.com/campus-hub/campus-ops-api/pkg/response"
)

// principal fetches the authenticated principal or writes a 401.
func principal(c *gin.Context) (models.Principal, bool) {
	p, ok := middleware.Principal(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
	}
	return p, ok
}
