package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/campus-hub/campus-ops-api/internal/service"
	appErrors "github.com/campus-hub/campus-ops-api/pkg/errors"
	"github.com/campus-hub/campus-ops-api/pkg/response"
)

// TicketHandler wires HTTP endpoints to the ticket service.
type TicketHandler struct {
	service *service.TicketService
}

// NewTicketHandler creates a new handler.
func NewTicketHandler(svc *service.TicketService) *TicketHandler {
	return &TicketHandler{service: svc}
}

// Create godoc
// @Summary Report a ticket
// @Description Accepts application/json or multipart/form-data with a
// @Description "payload" JSON part and up to three "attachments" files
// @Tags Tickets
// @Accept json
// @Accept multipart/form-data
// @Produce json
// @Param payload body service.CreateTicketRequest true "Ticket payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /tickets [post]
func (h *TicketHandler) Create(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req service.CreateTicketRequest
	var uploads []service.AttachmentUpload
	var closers []io.Closer
	defer func() {
		for _, closer := range closers {
			closer.Close() //nolint:errcheck
		}
	}()

	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		form, err := c.MultipartForm()
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid multipart form"))
			return
		}
		if err := json.Unmarshal([]byte(c.PostForm("payload")), &req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid ticket payload"))
			return
		}
		for _, header := range form.File["attachments"] {
			file, err := header.Open()
			if err != nil {
				response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unreadable attachment"))
				return
			}
			closers = append(closers, file)
			uploads = append(uploads, service.AttachmentUpload{
				Filename: header.Filename,
				Size:     header.Size,
				Reader:   file,
			})
		}
	} else if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid ticket payload"))
		return
	}

	ticket, err := h.service.Create(c.Request.Context(), p, req, uploads)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, ticket)
}

// List godoc
// @Summary List tickets
// @Description Own tickets by default; all=true or assignedToMe=true require TECHNICIAN/ADMIN
// @Tags Tickets
// @Produce json
// @Param all query bool false "List all tickets"
// @Param assignedToMe query bool false "Only tickets assigned to the caller"
// @Param status query string false "Filter by status"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /tickets [get]
func (h *TicketHandler) List(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	req := service.TicketListRequest{
		All:          c.Query("all") == "true",
		AssignedToMe: c.Query("assignedToMe") == "true",
		Status:       c.Query("status"),
	}

	tickets, err := h.service.List(c.Request.Context(), p, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tickets, nil)
}

// ListMine godoc
// @Summary List the caller's tickets
// @Tags Tickets
// @Produce json
// @Param status query string false "Filter by status"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /tickets/my [get]
func (h *TicketHandler) ListMine(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	tickets, err := h.service.List(c.Request.Context(), p, service.TicketListRequest{Status: c.Query("status")})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tickets, nil)
}

// ListAssigned godoc
// @Summary List tickets assigned to the caller
// @Tags Tickets
// @Produce json
// @Param status query string false "Filter by status"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /tickets/assigned [get]
func (h *TicketHandler) ListAssigned(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	req := service.TicketListRequest{AssignedToMe: true, Status: c.Query("status")}
	tickets, err := h.service.List(c.Request.Context(), p, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tickets, nil)
}

// Get godoc
// @Summary Get ticket
// @Tags Tickets
// @Produce json
// @Param id path string true "Ticket ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /tickets/{id} [get]
func (h *TicketHandler) Get(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	ticket, err := h.service.Get(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ticket, nil)
}

// Assign godoc
// @Summary Assign ticket
// @Tags Tickets
// @Accept json
// @Produce json
// @Param id path string true "Ticket ID"
// @Param payload body service.AssignTicketRequest true "Assignment payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /tickets/{id}/assign [put]
func (h *TicketHandler) Assign(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req service.AssignTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid assignment payload"))
		return
	}

	ticket, err := h.service.Assign(c.Request.Context(), p, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ticket, nil)
}

// UpdateStatus godoc
// @Summary Update ticket status
// @Tags Tickets
// @Accept json
// @Produce json
// @Param id path string true "Ticket ID"
// @Param payload body service.UpdateTicketStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /tickets/{id}/status [put]
func (h *TicketHandler) UpdateStatus(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req service.UpdateTicketStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid status payload"))
		return
	}

	ticket, err := h.service.UpdateStatus(c.Request.Context(), p, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ticket, nil)
}

// Delete godoc
// @Summary Delete ticket
// @Tags Tickets
// @Param id path string true "Ticket ID"
// @Success 204
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /tickets/{id} [delete]
func (h *TicketHandler) Delete(c *gin.Context) {
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

// AttachmentToken godoc
// @Summary Issue an attachment download token
// @Tags Tickets
// @Produce json
// @Param id path string true "Ticket ID"
// @Param path query string true "Attachment path"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /tickets/{id}/attachments [get]
func (h *TicketHandler) AttachmentToken(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	relPath := c.Query("path")
	token, err := h.service.DownloadToken(c.Request.Context(), p, c.Param("id"), relPath)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"token": token}, nil)
}

// Download godoc
// @Summary Download an attachment
// @Description Streams the file behind a signed token; no session required
// @Tags Tickets
// @Produce octet-stream
// @Param token query string true "Signed download token"
// @Success 200 {file} file
// @Failure 401 {object} response.Envelope
// @Router /files/download [get]
func (h *TicketHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}

	file, name, err := h.service.OpenAttachment(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	c.Header("Content-Disposition", "attachment; filename=\""+name+"\"")
	c.Header("Content-Type", "application/octet-stream")
	if _, err := io.Copy(c.Writer, file); err != nil {
		c.Abort()
	}
}
