package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/campus-hub/campus-ops-api/internal/service"
	appErrors "github.com/campus-hub/campus-ops-api/pkg/errors"
	"github.com/campus-hub/campus-ops-api/pkg/response"
)

// FacilityHandler wires HTTP endpoints to the facility service.
type FacilityHandler struct {
	service *service.FacilityService
}

// NewFacilityHandler creates a new handler.
func NewFacilityHandler(svc *service.FacilityService) *FacilityHandler {
	return &FacilityHandler{service: svc}
}

// List godoc
// @Summary List facilities
// @Tags Facilities
// @Produce json
// @Param type query string false "Facility type"
// @Param status query string false "Facility status"
// @Param location query string false "Location substring"
// @Param minCapacity query int false "Minimum capacity"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /facilities [get]
func (h *FacilityHandler) List(c *gin.Context) {
	req := service.FacilityListRequest{
		Type:     c.Query("type"),
		Status:   c.Query("status"),
		Location: c.Query("location"),
	}
	if raw := c.Query("minCapacity"); raw != "" {
		capacity, err := strconv.Atoi(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "minCapacity must be an integer"))
			return
		}
		req.MinCapacity = &capacity
	}

	facilities, err := h.service.List(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, facilities, nil)
}

// Get godoc
// @Summary Get facility
// @Tags Facilities
// @Produce json
// @Param id path string true "Facility ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /facilities/{id} [get]
func (h *FacilityHandler) Get(c *gin.Context) {
	facility, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, facility, nil)
}

// Create godoc
// @Summary Create facility
// @Tags Facilities
// @Accept json
// @Produce json
// @Param payload body service.FacilityRequest true "Facility payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /facilities [post]
func (h *FacilityHandler) Create(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req service.FacilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid facility payload"))
		return
	}

	facility, err := h.service.Create(c.Request.Context(), p, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, facility)
}

// Update godoc
// @Summary Update facility
// @Tags Facilities
// @Accept json
// @Produce json
// @Param id path string true "Facility ID"
// @Param payload body service.FacilityRequest true "Facility payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /facilities/{id} [put]
func (h *FacilityHandler) Update(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req service.FacilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid facility payload"))
		return
	}

	facility, err := h.service.Update(c.Request.Context(), p, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, facility, nil)
}

// Delete godoc
// @Summary Delete facility
// @Tags Facilities
// @Param id path string true "Facility ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /facilities/{id} [delete]
func (h *FacilityHandler) Delete(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), p, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
