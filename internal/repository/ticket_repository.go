package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campus-hub/campus-ops-api/internal/models"
)

// TicketRepository provides persistence for maintenance tickets. Status
// changes are conditional single-row updates so a stale caller loses the
// race instead of clobbering a concurrent transition.
type TicketRepository struct {
	db *sqlx.DB
}

// NewTicketRepository creates the repository.
func NewTicketRepository(db *sqlx.DB) *TicketRepository {
	return &TicketRepository{db: db}
}

const ticketColumns = "id, title, facility_id, facility_name, location, category, description, priority, status, reported_by, reported_by_name, assigned_to, assigned_to_name, contact_email, contact_phone, attachment_urls, resolution_notes, rejection_reason, created_at, updated_at, resolved_at, closed_at"

// List returns tickets matching the filter, newest first.
func (r *TicketRepository) List(ctx context.Context, filter models.TicketFilter) ([]models.Ticket, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.ReportedBy != "" {
		where = append(where, fmt.Sprintf("reported_by = $%d", len(args)+1))
		args = append(args, filter.ReportedBy)
	}
	if filter.AssignedTo != "" {
		where = append(where, fmt.Sprintf("assigned_to = $%d", len(args)+1))
		args = append(args, filter.AssignedTo)
	}
	if filter.Status != nil {
		where = append(where, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, string(*filter.Status))
	}

	query := fmt.Sprintf("SELECT %s FROM tickets WHERE %s ORDER BY created_at DESC",
		ticketColumns, strings.Join(where, " AND "))
	var tickets []models.Ticket
	if err := r.db.SelectContext(ctx, &tickets, query, args...); err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	return tickets, nil
}

// FindByID returns a ticket by identifier.
func (r *TicketRepository) FindByID(ctx context.Context, id string) (*models.Ticket, error) {
	query := fmt.Sprintf("SELECT %s FROM tickets WHERE id = $1", ticketColumns)
	var ticket models.Ticket
	if err := r.db.GetContext(ctx, &ticket, query, id); err != nil {
		return nil, err
	}
	return &ticket, nil
}

// Create inserts a new OPEN ticket.
func (r *TicketRepository) Create(ctx context.Context, ticket *models.Ticket) error {
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	ticket.CreatedAt = now
	ticket.UpdatedAt = now
	ticket.Status = models.TicketOpen
	query := `INSERT INTO tickets (id, title, facility_id, facility_name, location, category, description, priority, status, reported_by, reported_by_name, assigned_to, assigned_to_name, contact_email, contact_phone, attachment_urls, created_at, updated_at)
VALUES (:id, :title, :facility_id, :facility_name, :location, :category, :description, :priority, :status, :reported_by, :reported_by_name, :assigned_to, :assigned_to_name, :contact_email, :contact_phone, :attachment_urls, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, ticket); err != nil {
		return fmt.Errorf("create ticket: %w", err)
	}
	return nil
}

// Assign records the assignee while the ticket is still OPEN. Assignment
// does not advance the status. Returns false when the ticket had already
// left OPEN.
func (r *TicketRepository) Assign(ctx context.Context, id, assigneeID, assigneeName string) (bool, error) {
	query := `UPDATE tickets SET assigned_to = $2, assigned_to_name = $3, updated_at = $4
WHERE id = $1 AND status = 'OPEN'`
	return r.conditional(ctx, query, id, assigneeID, assigneeName, time.Now().UTC())
}

// UpdateStatus moves the ticket from one status to another, recording the
// fields the target status carries. The WHERE clause pins the expected
// current status so concurrent transitions cannot interleave.
func (r *TicketRepository) UpdateStatus(ctx context.Context, id string, from, to models.TicketStatus, notes, reason *string) (bool, error) {
	now := time.Now().UTC()
	set := []string{"status = $3", "updated_at = $4"}
	args := []interface{}{id, string(from), string(to), now}
	switch to {
	case models.TicketResolved:
		set = append(set, fmt.Sprintf("resolution_notes = $%d", len(args)+1), fmt.Sprintf("resolved_at = $%d", len(args)+2))
		args = append(args, notes, now)
	case models.TicketClosed:
		set = append(set, fmt.Sprintf("closed_at = $%d", len(args)+1))
		args = append(args, now)
	case models.TicketRejected:
		set = append(set, fmt.Sprintf("rejection_reason = $%d", len(args)+1))
		args = append(args, reason)
	}
	query := fmt.Sprintf("UPDATE tickets SET %s WHERE id = $1 AND status = $2", strings.Join(set, ", "))
	return r.conditional(ctx, query, args...)
}

// Delete removes a ticket together with its comments.
func (r *TicketRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ticket delete: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM comments WHERE ticket_id = $1", id); err != nil {
		return fmt.Errorf("delete ticket comments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM tickets WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete ticket: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ticket delete: %w", err)
	}
	return nil
}

func (r *TicketRepository) conditional(ctx context.Context, query string, args ...interface{}) (bool, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("transition ticket: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition ticket rows: %w", err)
	}
	return affected == 1, nil
}
