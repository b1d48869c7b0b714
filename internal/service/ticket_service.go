package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campus-hub/campus-ops-api/internal/authz"
	"github.com/campus-hub/campus-ops-api/internal/models"
	appErrors "github.com/campus-hub/campus-ops-api/pkg/errors"
)

type ticketRepository interface {
	List(ctx context.Context, filter models.TicketFilter) ([]models.Ticket, error)
	FindByID(ctx context.Context, id string) (*models.Ticket, error)
	Create(ctx context.Context, ticket *models.Ticket) error
	Assign(ctx context.Context, id, assigneeID, assigneeName string) (bool, error)
	UpdateStatus(ctx context.Context, id string, from, to models.TicketStatus, notes, reason *string) (bool, error)
	Delete(ctx context.Context, id string) error
}

type assigneeDirectory interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type attachmentStore interface {
	SaveStream(filename string, r io.Reader) (int64, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
}

type downloadSigner interface {
	Generate(ownerID, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (string, string, time.Time, error)
}

// TicketService runs the maintenance ticket workflow: reporting with
// attachments, assignment, supervised status transitions and deletion.
type TicketService struct {
	repo       ticketRepository
	users      assigneeDirectory
	facilities facilityReader
	store      attachmentStore
	signer     downloadSigner
	audit      auditWriter
	dispatcher Dispatcher
	validator  *validator.Validate
	logger     *zap.Logger

	maxFiles    int
	maxFileSize int64
}

// TicketUploadLimits bounds multipart attachments.
type TicketUploadLimits struct {
	MaxFiles    int
	MaxFileSize int64
}

// NewTicketService constructs the service.
func NewTicketService(repo ticketRepository, users assigneeDirectory, facilities facilityReader, store attachmentStore, signer downloadSigner, audit auditWriter, dispatcher Dispatcher, validate *validator.Validate, logger *zap.Logger, limits TicketUploadLimits) *TicketService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if limits.MaxFiles <= 0 {
		limits.MaxFiles = 3
	}
	if limits.MaxFileSize <= 0 {
		limits.MaxFileSize = 5 << 20
	}
	return &TicketService{
		repo:        repo,
		users:       users,
		facilities:  facilities,
		store:       store,
		signer:      signer,
		audit:       audit,
		dispatcher:  dispatcher,
		validator:   validate,
		logger:      logger,
		maxFiles:    limits.MaxFiles,
		maxFileSize: limits.MaxFileSize,
	}
}

// CreateTicketRequest is the ticket reporting payload.
type CreateTicketRequest struct {
	Title        string  `json:"title" validate:"required"`
	FacilityID   *string `json:"facilityId"`
	Location     string  `json:"location" validate:"required"`
	Category     string  `json:"category" validate:"required"`
	Description  string  `json:"description" validate:"required"`
	Priority     string  `json:"priority" validate:"required"`
	ContactEmail *string `json:"contactEmail" validate:"omitempty,email"`
	ContactPhone *string `json:"contactPhone"`
}

// AssignTicketRequest names the assignee.
type AssignTicketRequest struct {
	AssigneeID string `json:"assigneeId" validate:"required"`
}

// UpdateTicketStatusRequest moves a ticket through its workflow.
type UpdateTicketStatusRequest struct {
	Status          string `json:"status" validate:"required"`
	ResolutionNotes string `json:"resolutionNotes"`
	Reason          string `json:"reason"`
}

// TicketListRequest captures list query parameters.
type TicketListRequest struct {
	All          bool
	AssignedToMe bool
	Status       string
}

// AttachmentUpload is one multipart file handed to Create.
type AttachmentUpload struct {
	Filename string
	Size     int64
	Reader   io.Reader
}

// Create opens a ticket, storing up to the configured number of
// attachments before the row is inserted.
func (s *TicketService) Create(ctx context.Context, principal models.Principal, req CreateTicketRequest, uploads []AttachmentUpload) (*models.Ticket, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid ticket payload")
	}
	if !models.ValidTicketPriority(req.Priority) {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "unknown ticket priority", map[string]string{"priority": req.Priority})
	}
	if len(uploads) > s.maxFiles {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "too many attachments", map[string]int{"max": s.maxFiles})
	}

	ticket := &models.Ticket{
		ID:             uuid.NewString(),
		Title:          req.Title,
		Location:       req.Location,
		Category:       req.Category,
		Description:    req.Description,
		Priority:       models.TicketPriority(req.Priority),
		ReportedBy:     principal.ID,
		ReportedByName: principal.Name,
		ContactEmail:   req.ContactEmail,
		ContactPhone:   req.ContactPhone,
	}
	if req.FacilityID != nil && *req.FacilityID != "" {
		facility, err := s.facilities.FindByID(ctx, *req.FacilityID)
		if err != nil {
			if isNoRows(err) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "facility not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch facility")
		}
		ticket.FacilityID = &facility.ID
		ticket.FacilityName = &facility.Name
	}

	for _, upload := range uploads {
		if upload.Size > s.maxFileSize {
			s.cleanupAttachments(ticket.AttachmentURLs)
			return nil, appErrors.WithDetails(appErrors.ErrValidation, "attachment too large", map[string]interface{}{"file": upload.Filename, "maxBytes": s.maxFileSize})
		}
		relPath := fmt.Sprintf("tickets/%s/%s_%s", ticket.ID, uuid.NewString()[:8], sanitizeFilename(upload.Filename))
		if _, err := s.store.SaveStream(relPath, upload.Reader); err != nil {
			s.cleanupAttachments(ticket.AttachmentURLs)
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store attachment")
		}
		ticket.AttachmentURLs = append(ticket.AttachmentURLs, relPath)
	}

	if err := s.repo.Create(ctx, ticket); err != nil {
		s.cleanupAttachments(ticket.AttachmentURLs)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create ticket")
	}

	s.dispatcher.Dispatch(Event{
		Type:          models.NotifyTicketCreated,
		Title:         "New Maintenance Ticket",
		Message:       fmt.Sprintf("%s reported %q at %s (%s priority)", principal.Name, ticket.Title, ticket.Location, ticket.Priority),
		FanOutRoles:   []models.UserRole{models.RoleAdmin, models.RoleTechnician},
		ReferenceID:   ticket.ID,
		ReferenceType: models.ReferenceTicket,
	})
	return ticket, nil
}

// List returns tickets. Reporters see their own; ticket:list_all
// (TECHNICIAN, ADMIN) unlocks the full set and the assigned-to-me filter.
func (s *TicketService) List(ctx context.Context, principal models.Principal, req TicketListRequest) ([]models.Ticket, error) {
	filter := models.TicketFilter{}
	switch {
	case req.AssignedToMe:
		if !authz.Allowed(principal.Roles, authz.OpTicketListAll) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "listing assigned tickets requires TECHNICIAN or ADMIN")
		}
		filter.AssignedTo = principal.ID
	case req.All:
		if !authz.Allowed(principal.Roles, authz.OpTicketListAll) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "listing all tickets requires TECHNICIAN or ADMIN")
		}
	default:
		filter.ReportedBy = principal.ID
	}
	if req.Status != "" {
		if !models.ValidTicketStatus(req.Status) {
			return nil, appErrors.WithDetails(appErrors.ErrValidation, "unknown ticket status", map[string]string{"status": req.Status})
		}
		st := models.TicketStatus(req.Status)
		filter.Status = &st
	}

	tickets, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list tickets")
	}
	return tickets, nil
}

// Get returns one ticket, visible to its reporter, its assignee and anyone
// with ticket:list_all.
func (s *TicketService) Get(ctx context.Context, principal models.Principal, id string) (*models.Ticket, error) {
	ticket, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.canView(principal, ticket) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "ticket belongs to another user")
	}
	return ticket, nil
}

// Assign records the assignee on an OPEN ticket without advancing the
// status. ADMIN only; the assignee must hold the TECHNICIAN or ADMIN role.
func (s *TicketService) Assign(ctx context.Context, principal models.Principal, id string, req AssignTicketRequest) (*models.Ticket, error) {
	if !authz.Allowed(principal.Roles, authz.OpTicketAssign) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "ticket assignment requires ADMIN")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}

	ticket, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if ticket.Status != models.TicketOpen {
		return nil, s.transitionError(ticket.Status, ticket.Status, "tickets can only be assigned while OPEN")
	}

	assignee, err := s.users.FindByID(ctx, req.AssigneeID)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignee not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch assignee")
	}
	if !assignee.Roles.Has(models.RoleTechnician) && !assignee.Roles.Has(models.RoleAdmin) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "assignee must be a TECHNICIAN or ADMIN")
	}

	applied, err := s.repo.Assign(ctx, ticket.ID, assignee.ID, assignee.Name)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign ticket")
	}
	if !applied {
		return nil, s.transitionError(ticket.Status, ticket.Status, "tickets can only be assigned while OPEN")
	}
	ticket.AssignedTo = &assignee.ID
	ticket.AssignedToName = &assignee.Name

	s.recordAudit(ctx, principal, models.AuditActionTicketAssign, ticket, map[string]string{"assignee": assignee.ID})
	s.dispatcher.Dispatch(Event{
		Type:          models.NotifyTicketAssigned,
		Title:         "Ticket Assigned",
		Message:       fmt.Sprintf("You were assigned ticket %q at %s", ticket.Title, ticket.Location),
		Recipients:    []string{assignee.ID},
		ReferenceID:   ticket.ID,
		ReferenceType: models.ReferenceTicket,
	})
	s.dispatcher.Dispatch(Event{
		Type:          models.NotifyTicketAssigned,
		Title:         "Ticket Assigned",
		Message:       fmt.Sprintf("Your ticket %q was assigned to %s", ticket.Title, assignee.Name),
		Recipients:    []string{ticket.ReportedBy},
		ReferenceID:   ticket.ID,
		ReferenceType: models.ReferenceTicket,
	})
	return ticket, nil
}

// UpdateStatus moves a ticket along the workflow. RESOLVED requires
// resolution notes, REJECTED requires a reason and the ADMIN role; other
// transitions require TECHNICIAN or ADMIN, and technicians may only touch
// tickets assigned to them.
func (s *TicketService) UpdateStatus(ctx context.Context, principal models.Principal, id string, req UpdateTicketStatusRequest) (*models.Ticket, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	if !models.ValidTicketStatus(req.Status) {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "unknown ticket status", map[string]string{"status": req.Status})
	}
	target := models.TicketStatus(req.Status)

	requiredOp := authz.OpTicketUpdateStatus
	if target == models.TicketRejected {
		requiredOp = authz.OpTicketReject
	}
	if !authz.Allowed(principal.Roles, requiredOp) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "status update not permitted for your role")
	}

	notes := strings.TrimSpace(req.ResolutionNotes)
	reason := strings.TrimSpace(req.Reason)
	if target == models.TicketResolved && notes == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "resolution notes are required")
	}
	if target == models.TicketRejected && reason == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a rejection reason is required")
	}

	ticket, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !principal.IsAdmin() {
		if ticket.AssignedTo == nil || *ticket.AssignedTo != principal.ID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "ticket is assigned to another technician")
		}
	}
	if !models.CanTransition(ticket.Status, target) {
		return nil, s.transitionError(ticket.Status, target, "")
	}

	var notesPtr, reasonPtr *string
	if notes != "" {
		notesPtr = &notes
	}
	if reason != "" {
		reasonPtr = &reason
	}
	applied, err := s.repo.UpdateStatus(ctx, ticket.ID, ticket.Status, target, notesPtr, reasonPtr)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update ticket status")
	}
	if !applied {
		return nil, s.transitionError(ticket.Status, target, "ticket status changed concurrently")
	}
	from := ticket.Status
	ticket.Status = target
	ticket.ResolutionNotes = notesPtr
	ticket.RejectionReason = reasonPtr

	s.notifyStatusChange(ticket, from, target, reason)
	return ticket, nil
}

func (s *TicketService) notifyStatusChange(ticket *models.Ticket, from, to models.TicketStatus, reason string) {
	event := Event{
		Recipients:    []string{ticket.ReportedBy},
		ReferenceID:   ticket.ID,
		ReferenceType: models.ReferenceTicket,
	}
	switch to {
	case models.TicketResolved:
		event.Type = models.NotifyTicketResolved
		event.Title = "Ticket Resolved"
		event.Message = fmt.Sprintf("Your ticket %q has been resolved", ticket.Title)
	case models.TicketClosed:
		event.Type = models.NotifyTicketClosed
		event.Title = "Ticket Closed"
		event.Message = fmt.Sprintf("Your ticket %q has been closed", ticket.Title)
	case models.TicketRejected:
		event.Type = models.NotifyTicketRejected
		event.Title = "Ticket Rejected"
		event.Message = fmt.Sprintf("Your ticket %q was rejected: %s", ticket.Title, reason)
	default:
		event.Type = models.NotifyTicketStatusChanged
		event.Title = "Ticket Status Updated"
		event.Message = fmt.Sprintf("Your ticket %q moved from %s to %s", ticket.Title, from, to)
	}
	s.dispatcher.Dispatch(event)
}

// Delete removes a ticket, its comments and its stored attachments. ADMIN
// only.
func (s *TicketService) Delete(ctx context.Context, principal models.Principal, id string) error {
	if !authz.Allowed(principal.Roles, authz.OpTicketDelete) {
		return appErrors.Clone(appErrors.ErrForbidden, "ticket deletion requires ADMIN")
	}
	ticket, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, ticket.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete ticket")
	}
	s.cleanupAttachments(ticket.AttachmentURLs)
	s.recordAudit(ctx, principal, models.AuditActionTicketDelete, ticket, nil)
	return nil
}

// DownloadToken issues a signed, expiring token for one of the ticket's
// attachments.
func (s *TicketService) DownloadToken(ctx context.Context, principal models.Principal, ticketID, relPath string) (string, error) {
	ticket, err := s.find(ctx, ticketID)
	if err != nil {
		return "", err
	}
	if !s.canView(principal, ticket) {
		return "", appErrors.Clone(appErrors.ErrForbidden, "ticket belongs to another user")
	}
	found := false
	for _, url := range ticket.AttachmentURLs {
		if url == relPath {
			found = true
			break
		}
	}
	if !found {
		return "", appErrors.Clone(appErrors.ErrNotFound, "attachment not found")
	}
	token, _, err := s.signer.Generate(ticket.ID, relPath)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download token")
	}
	return token, nil
}

// OpenAttachment validates a signed token and opens the underlying file.
func (s *TicketService) OpenAttachment(token string) (*os.File, string, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token")
	}
	file, err := s.store.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "attachment not found")
	}
	return file, path.Base(relPath), nil
}

func (s *TicketService) canView(principal models.Principal, ticket *models.Ticket) bool {
	if ticket.ReportedBy == principal.ID {
		return true
	}
	if ticket.AssignedTo != nil && *ticket.AssignedTo == principal.ID {
		return true
	}
	return authz.Allowed(principal.Roles, authz.OpTicketListAll)
}

func (s *TicketService) find(ctx context.Context, id string) (*models.Ticket, error) {
	ticket, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "ticket not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch ticket")
	}
	return ticket, nil
}

func (s *TicketService) transitionError(from, to models.TicketStatus, message string) error {
	if message == "" {
		message = fmt.Sprintf("ticket cannot move from %s to %s", from, to)
	}
	return appErrors.WithDetails(appErrors.ErrInvalidTransition, message,
		map[string]string{"from": string(from), "to": string(to)})
}

func (s *TicketService) cleanupAttachments(relPaths []string) {
	for _, relPath := range relPaths {
		if err := s.store.Delete(relPath); err != nil {
			s.logger.Warn("failed to delete attachment", zap.String("path", relPath), zap.Error(err))
		}
	}
}

func (s *TicketService) recordAudit(ctx context.Context, principal models.Principal, action string, ticket *models.Ticket, extra map[string]string) {
	payload := map[string]string{"title": ticket.Title}
	for k, v := range extra {
		payload[k] = v
	}
	detail, _ := json.Marshal(payload)
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &principal.ID,
		Action:     action,
		Resource:   "ticket",
		ResourceID: &ticket.ID,
		Detail:     detail,
	}); err != nil {
		s.logger.Warn("failed to record ticket audit log", zap.Error(err))
	}
}

func sanitizeFilename(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		base = "attachment"
	}
	return base
}
