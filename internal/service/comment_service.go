package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campus-hub/campus-ops-api/internal/authz"
	"github.com/campus-hub/campus-ops-api/internal/models"
	appErrors "github.com/campus-hub/campus-ops-api/pkg/errors"
)

type commentRepository interface {
	ListByTicket(ctx context.Context, ticketID string) ([]models.Comment, error)
	FindByID(ctx context.Context, id string) (*models.Comment, error)
	Create(ctx context.Context, comment *models.Comment) error
	UpdateContent(ctx context.Context, id, content string) error
	Delete(ctx context.Context, id string) error
}

type ticketReader interface {
	FindByID(ctx context.Context, id string) (*models.Ticket, error)
}

// CommentService manages ticket discussion threads.
type CommentService struct {
	repo       commentRepository
	tickets    ticketReader
	dispatcher Dispatcher
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewCommentService constructs the service.
func NewCommentService(repo commentRepository, tickets ticketReader, dispatcher Dispatcher, validate *validator.Validate, logger *zap.Logger) *CommentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommentService{repo: repo, tickets: tickets, dispatcher: dispatcher, validator: validate, logger: logger}
}

// CommentRequest carries the comment body.
type CommentRequest struct {
	Content string `json:"content" validate:"required"`
}

// List returns a ticket's comment thread, oldest first. Visibility follows
// the ticket's.
func (s *CommentService) List(ctx context.Context, principal models.Principal, ticketID string) ([]models.Comment, error) {
	ticket, err := s.loadVisibleTicket(ctx, principal, ticketID)
	if err != nil {
		return nil, err
	}
	comments, err := s.repo.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list comments")
	}
	return comments, nil
}

// Create adds a comment to a ticket the principal can see. Comments are
// rejected once the ticket reaches a terminal status.
func (s *CommentService) Create(ctx context.Context, principal models.Principal, ticketID string, req CommentRequest) (*models.Comment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid comment payload")
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "comment content is required")
	}

	ticket, err := s.loadVisibleTicket(ctx, principal, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status.Terminal() {
		return nil, appErrors.WithDetails(appErrors.ErrInvalidTransition, "ticket no longer accepts comments",
			map[string]string{"status": string(ticket.Status)})
	}

	comment := &models.Comment{
		TicketID:   ticket.ID,
		Content:    content,
		AuthorID:   principal.ID,
		AuthorName: principal.Name,
		AuthorRole: primaryRole(principal.Roles),
	}
	if err := s.repo.Create(ctx, comment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create comment")
	}

	// Notify the other side of the conversation.
	recipients := []string{}
	if ticket.ReportedBy != principal.ID {
		recipients = append(recipients, ticket.ReportedBy)
	}
	if ticket.AssignedTo != nil && *ticket.AssignedTo != principal.ID {
		recipients = append(recipients, *ticket.AssignedTo)
	}
	if len(recipients) > 0 {
		s.dispatcher.Dispatch(Event{
			Type:          models.NotifyCommentAdded,
			Title:         "New Comment",
			Message:       fmt.Sprintf("%s commented on ticket %q", principal.Name, ticket.Title),
			Recipients:    recipients,
			ReferenceID:   ticket.ID,
			ReferenceType: models.ReferenceTicket,
		})
	}
	return comment, nil
}

// Update edits a comment's text. Authors only; the edited flag is set.
func (s *CommentService) Update(ctx context.Context, principal models.Principal, id string, req CommentRequest) (*models.Comment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid comment payload")
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "comment content is required")
	}

	comment, err := s.findComment(ctx, id)
	if err != nil {
		return nil, err
	}
	if comment.AuthorID != principal.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the author can edit a comment")
	}

	if err := s.repo.UpdateContent(ctx, comment.ID, content); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update comment")
	}
	comment.Content = content
	comment.Edited = true
	return comment, nil
}

// Delete removes a comment. Authors delete their own; comment:moderate
// (ADMIN) removes any.
func (s *CommentService) Delete(ctx context.Context, principal models.Principal, id string) error {
	comment, err := s.findComment(ctx, id)
	if err != nil {
		return err
	}
	if comment.AuthorID != principal.ID && !authz.Allowed(principal.Roles, authz.OpCommentModerate) {
		return appErrors.Clone(appErrors.ErrForbidden, "comment belongs to another user")
	}
	if err := s.repo.Delete(ctx, comment.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete comment")
	}
	return nil
}

func (s *CommentService) loadVisibleTicket(ctx context.Context, principal models.Principal, ticketID string) (*models.Ticket, error) {
	ticket, err := s.tickets.FindByID(ctx, ticketID)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "ticket not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch ticket")
	}
	visible := ticket.ReportedBy == principal.ID ||
		(ticket.AssignedTo != nil && *ticket.AssignedTo == principal.ID) ||
		authz.Allowed(principal.Roles, authz.OpTicketListAll)
	if !visible {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "ticket belongs to another user")
	}
	return ticket, nil
}

func (s *CommentService) findComment(ctx context.Context, id string) (*models.Comment, error) {
	comment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "comment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch comment")
	}
	return comment, nil
}

// primaryRole picks the most privileged role for the denormalized author
// label on comments.
func primaryRole(roles models.RoleSet) string {
	for _, candidate := range []models.UserRole{models.RoleAdmin, models.RoleTechnician, models.RoleManager} {
		if roles.Has(candidate) {
			return string(candidate)
		}
	}
	return string(models.RoleUser)
}
