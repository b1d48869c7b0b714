package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campus-hub/campus-ops-api/internal/models"
)

// CommentRepository provides persistence for ticket comments.
type CommentRepository struct {
	db *sqlx.DB
}

// NewCommentRepository creates the repository.
func NewCommentRepository(db *sqlx.DB) *CommentRepository {
	return &CommentRepository{db: db}
}

const commentColumns = "id, ticket_id, content, author_id, author_name, author_role, edited, created_at, updated_at"

// ListByTicket returns a ticket's comments newest first.
func (r *CommentRepository) ListByTicket(ctx context.Context, ticketID string) ([]models.Comment, error) {
	query := fmt.Sprintf("SELECT %s FROM comments WHERE ticket_id = $1 ORDER BY created_at DESC", commentColumns)
	var comments []models.Comment
	if err := r.db.SelectContext(ctx, &comments, query, ticketID); err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return comments, nil
}

// FindByID returns a comment by identifier.
func (r *CommentRepository) FindByID(ctx context.Context, id string) (*models.Comment, error) {
	query := fmt.Sprintf("SELECT %s FROM comments WHERE id = $1", commentColumns)
	var comment models.Comment
	if err := r.db.GetContext(ctx, &comment, query, id); err != nil {
		return nil, err
	}
	return &comment, nil
}

// Create inserts a new comment.
func (r *CommentRepository) Create(ctx context.Context, comment *models.Comment) error {
	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	comment.CreatedAt = now
	comment.UpdatedAt = now
	query := `INSERT INTO comments (id, ticket_id, content, author_id, author_name, author_role, edited, created_at, updated_at)
VALUES (:id, :ticket_id, :content, :author_id, :author_name, :author_role, :edited, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, comment); err != nil {
		return fmt.Errorf("create comment: %w", err)
	}
	return nil
}

// UpdateContent replaces a comment's text and marks it edited.
func (r *CommentRepository) UpdateContent(ctx context.Context, id, content string) error {
	query := "UPDATE comments SET content = $2, edited = TRUE, updated_at = $3 WHERE id = $1"
	if _, err := r.db.ExecContext(ctx, query, id, content, time.Now().UTC()); err != nil {
		return fmt.Errorf("update comment: %w", err)
	}
	return nil
}

// Delete removes a comment.
func (r *CommentRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM comments WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	return nil
}
