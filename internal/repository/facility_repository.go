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

// FacilityRepository provides persistence for facilities.
type FacilityRepository struct {
	db *sqlx.DB
}

// NewFacilityRepository creates the repository.
func NewFacilityRepository(db *sqlx.DB) *FacilityRepository {
	return &FacilityRepository{db: db}
}

const facilityColumns = "id, name, facility_type, capacity, location, building, floor, description, amenities, image_urls, status, availability_windows, created_by, created_at, updated_at"

// List returns facilities matching the filter, newest first.
func (r *FacilityRepository) List(ctx context.Context, filter models.FacilityFilter) ([]models.Facility, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.Type != nil {
		where = append(where, fmt.Sprintf("facility_type = $%d", len(args)+1))
		args = append(args, string(*filter.Type))
	}
	if filter.Status != nil {
		where = append(where, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, string(*filter.Status))
	}
	if filter.Location != "" {
		where = append(where, fmt.Sprintf("location ILIKE $%d", len(args)+1))
		args = append(args, "%"+filter.Location+"%")
	}
	if filter.MinCapacity != nil {
		where = append(where, fmt.Sprintf("capacity >= $%d", len(args)+1))
		args = append(args, *filter.MinCapacity)
	}

	query := fmt.Sprintf("SELECT %s FROM facilities WHERE %s ORDER BY created_at DESC",
		facilityColumns, strings.Join(where, " AND "))
	var facilities []models.Facility
	if err := r.db.SelectContext(ctx, &facilities, query, args...); err != nil {
		return nil, fmt.Errorf("list facilities: %w", err)
	}
	return facilities, nil
}

// FindByID returns a facility by identifier.
func (r *FacilityRepository) FindByID(ctx context.Context, id string) (*models.Facility, error) {
	query := fmt.Sprintf("SELECT %s FROM facilities WHERE id = $1", facilityColumns)
	var facility models.Facility
	if err := r.db.GetContext(ctx, &facility, query, id); err != nil {
		return nil, err
	}
	return &facility, nil
}

// Create inserts a new facility.
func (r *FacilityRepository) Create(ctx context.Context, facility *models.Facility) error {
	if facility.ID == "" {
		facility.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if facility.CreatedAt.IsZero() {
		facility.CreatedAt = now
	}
	facility.UpdatedAt = now
	query := `INSERT INTO facilities (id, name, facility_type, capacity, location, building, floor, description, amenities, image_urls, status, availability_windows, created_by, created_at, updated_at)
VALUES (:id, :name, :facility_type, :capacity, :location, :building, :floor, :description, :amenities, :image_urls, :status, :availability_windows, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, facility); err != nil {
		return fmt.Errorf("create facility: %w", err)
	}
	return nil
}

// Update modifies an existing facility.
func (r *FacilityRepository) Update(ctx context.Context, facility *models.Facility) error {
	facility.UpdatedAt = time.Now().UTC()
	query := `UPDATE facilities SET name = :name, facility_type = :facility_type, capacity = :capacity,
location = :location, building = :building, floor = :floor, description = :description,
amenities = :amenities, image_urls = :image_urls, status = :status,
availability_windows = :availability_windows, updated_at = :updated_at
WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, facility); err != nil {
		return fmt.Errorf("update facility: %w", err)
	}
	return nil
}

// Delete removes a facility.
func (r *FacilityRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM facilities WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete facility: %w", err)
	}
	return nil
}
