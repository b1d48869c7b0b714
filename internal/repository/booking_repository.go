package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campus-hub/campus-ops-api/internal/models"
)

// BookingRepository provides persistence for bookings. Creation runs the
// conflict check and the insert inside one transaction serialized per
// facility; all other mutations are conditional single-row updates.
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository creates the repository.
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

const bookingColumns = "id, facility_id, facility_name, user_id, user_name, booking_date, start_time, end_time, purpose, expected_attendees, status, reviewed_by, rejection_reason, cancellation_reason, created_at, updated_at"

// List returns bookings matching the filter, newest first.
func (r *BookingRepository) List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.UserID != "" {
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)+1))
		args = append(args, filter.UserID)
	}
	if filter.FacilityID != "" {
		where = append(where, fmt.Sprintf("facility_id = $%d", len(args)+1))
		args = append(args, filter.FacilityID)
	}
	if filter.Status != nil {
		where = append(where, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, string(*filter.Status))
	}

	query := fmt.Sprintf("SELECT %s FROM bookings WHERE %s ORDER BY created_at DESC",
		bookingColumns, strings.Join(where, " AND "))
	var bookings []models.Booking
	if err := r.db.SelectContext(ctx, &bookings, query, args...); err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return bookings, nil
}

// FindByID returns a booking by identifier.
func (r *BookingRepository) FindByID(ctx context.Context, id string) (*models.Booking, error) {
	query := fmt.Sprintf("SELECT %s FROM bookings WHERE id = $1", bookingColumns)
	var booking models.Booking
	if err := r.db.GetContext(ctx, &booking, query, id); err != nil {
		return nil, err
	}
	return &booking, nil
}

// CreateAdmitted inserts the booking as PENDING unless a PENDING/APPROVED
// booking overlaps its half-open window. The advisory lock serializes
// writers on the same facility so two concurrent creates cannot both pass
// the overlap check; writers on other facilities are unaffected.
func (r *BookingRepository) CreateAdmitted(ctx context.Context, booking *models.Booking) (*models.BookingSummary, error) {
	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	booking.CreatedAt = now
	booking.UpdatedAt = now
	booking.Status = models.BookingPending

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin booking tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", booking.FacilityID); err != nil {
		return nil, fmt.Errorf("lock facility: %w", err)
	}

	conflictQuery := fmt.Sprintf(`SELECT %s FROM bookings
WHERE facility_id = $1 AND booking_date = $2 AND status IN ('PENDING', 'APPROVED')
AND start_time < $4 AND end_time > $3
ORDER BY start_time LIMIT 1`, bookingColumns)
	var colliding models.Booking
	err = tx.GetContext(ctx, &colliding, conflictQuery,
		booking.FacilityID, booking.Date, booking.StartTime, booking.EndTime)
	switch {
	case err == nil:
		summary := colliding.Summary()
		return &summary, nil
	case errors.Is(err, sql.ErrNoRows):
		// window is free
	default:
		return nil, fmt.Errorf("check booking conflicts: %w", err)
	}

	insert := `INSERT INTO bookings (id, facility_id, facility_name, user_id, user_name, booking_date, start_time, end_time, purpose, expected_attendees, status, created_at, updated_at)
VALUES (:id, :facility_id, :facility_name, :user_id, :user_name, :booking_date, :start_time, :end_time, :purpose, :expected_attendees, :status, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insert, booking); err != nil {
		return nil, fmt.Errorf("insert booking: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit booking: %w", err)
	}
	return nil, nil
}

// Approve flips PENDING to APPROVED and stamps the reviewer. Returns false
// when the booking was not in PENDING (raced or stale client).
func (r *BookingRepository) Approve(ctx context.Context, id, reviewer string) (bool, error) {
	query := `UPDATE bookings SET status = 'APPROVED', reviewed_by = $2, updated_at = $3
WHERE id = $1 AND status = 'PENDING'`
	return r.conditional(ctx, query, id, reviewer, time.Now().UTC())
}

// Reject flips PENDING to REJECTED with the reviewer and reason.
func (r *BookingRepository) Reject(ctx context.Context, id, reviewer, reason string) (bool, error) {
	query := `UPDATE bookings SET status = 'REJECTED', reviewed_by = $2, rejection_reason = $3, updated_at = $4
WHERE id = $1 AND status = 'PENDING'`
	return r.conditional(ctx, query, id, reviewer, reason, time.Now().UTC())
}

// Cancel flips PENDING or APPROVED to CANCELLED with an optional reason.
func (r *BookingRepository) Cancel(ctx context.Context, id string, reason *string) (bool, error) {
	query := `UPDATE bookings SET status = 'CANCELLED', cancellation_reason = $2, updated_at = $3
WHERE id = $1 AND status IN ('PENDING', 'APPROVED')`
	return r.conditional(ctx, query, id, reason, time.Now().UTC())
}

func (r *BookingRepository) conditional(ctx context.Context, query string, args ...interface{}) (bool, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("transition booking: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition booking rows: %w", err)
	}
	return affected == 1, nil
}
