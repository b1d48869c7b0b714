package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/campus-hub/campus-ops-api/internal/authz"
	"github.com/campus-hub/campus-ops-api/internal/models"
	appErrors "github.com/campus-hub/campus-ops-api/pkg/errors"
)

type facilityRepository interface {
	List(ctx context.Context, filter models.FacilityFilter) ([]models.Facility, error)
	FindByID(ctx context.Context, id string) (*models.Facility, error)
	Create(ctx context.Context, facility *models.Facility) error
	Update(ctx context.Context, facility *models.Facility) error
	Delete(ctx context.Context, id string) error
}

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// FacilityService manages the bookable facility catalogue.
type FacilityService struct {
	repo      facilityRepository
	audit     auditWriter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewFacilityService constructs the service.
func NewFacilityService(repo facilityRepository, audit auditWriter, validate *validator.Validate, logger *zap.Logger) *FacilityService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FacilityService{repo: repo, audit: audit, validator: validate, logger: logger}
}

// FacilityRequest is the create/update payload.
type FacilityRequest struct {
	Name                string                     `json:"name" validate:"required"`
	Type                string                     `json:"type" validate:"required"`
	Capacity            int                        `json:"capacity" validate:"gte=0"`
	Location            string                     `json:"location" validate:"required"`
	Building            string                     `json:"building"`
	Floor               string                     `json:"floor"`
	Description         string                     `json:"description"`
	Amenities           []string                   `json:"amenities"`
	ImageURLs           []string                   `json:"imageUrls"`
	Status              string                     `json:"status"`
	AvailabilityWindows models.AvailabilityWindows `json:"availabilityWindows"`
}

// FacilityListRequest captures list query parameters.
type FacilityListRequest struct {
	Type        string
	Status      string
	Location    string
	MinCapacity *int
}

// List returns facilities matching the filters. Readable by any principal.
func (s *FacilityService) List(ctx context.Context, req FacilityListRequest) ([]models.Facility, error) {
	filter := models.FacilityFilter{Location: req.Location, MinCapacity: req.MinCapacity}
	if req.Type != "" {
		if !models.ValidFacilityType(req.Type) {
			return nil, appErrors.WithDetails(appErrors.ErrValidation, "unknown facility type", map[string]string{"type": req.Type})
		}
		t := models.FacilityType(req.Type)
		filter.Type = &t
	}
	if req.Status != "" {
		if !models.ValidFacilityStatus(req.Status) {
			return nil, appErrors.WithDetails(appErrors.ErrValidation, "unknown facility status", map[string]string{"status": req.Status})
		}
		st := models.FacilityStatus(req.Status)
		filter.Status = &st
	}

	facilities, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list facilities")
	}
	return facilities, nil
}

// Get returns one facility.
func (s *FacilityService) Get(ctx context.Context, id string) (*models.Facility, error) {
	facility, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "facility not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch facility")
	}
	return facility, nil
}

// Create adds a facility to the catalogue. ADMIN only.
func (s *FacilityService) Create(ctx context.Context, principal models.Principal, req FacilityRequest) (*models.Facility, error) {
	if !authz.Allowed(principal.Roles, authz.OpFacilityWrite) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "facility management requires ADMIN")
	}
	facility, err := s.buildFacility(req)
	if err != nil {
		return nil, err
	}
	facility.CreatedBy = principal.ID

	if err := s.repo.Create(ctx, facility); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create facility")
	}
	s.recordAudit(ctx, principal, models.AuditActionFacilityCreate, facility)
	return facility, nil
}

// Update replaces a facility's mutable fields. ADMIN only.
func (s *FacilityService) Update(ctx context.Context, principal models.Principal, id string, req FacilityRequest) (*models.Facility, error) {
	if !authz.Allowed(principal.Roles, authz.OpFacilityWrite) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "facility management requires ADMIN")
	}
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	facility, err := s.buildFacility(req)
	if err != nil {
		return nil, err
	}
	facility.ID = existing.ID
	facility.CreatedBy = existing.CreatedBy
	facility.CreatedAt = existing.CreatedAt

	if err := s.repo.Update(ctx, facility); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update facility")
	}
	s.recordAudit(ctx, principal, models.AuditActionFacilityUpdate, facility)
	return facility, nil
}

// Delete removes a facility. ADMIN only. Bookings keep their denormalized
// facility name so history survives the removal.
func (s *FacilityService) Delete(ctx context.Context, principal models.Principal, id string) error {
	if !authz.Allowed(principal.Roles, authz.OpFacilityWrite) {
		return appErrors.Clone(appErrors.ErrForbidden, "facility management requires ADMIN")
	}
	facility, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, facility.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete facility")
	}
	s.recordAudit(ctx, principal, models.AuditActionFacilityDelete, facility)
	return nil
}

func (s *FacilityService) buildFacility(req FacilityRequest) (*models.Facility, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid facility payload")
	}
	if !models.ValidFacilityType(req.Type) {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "unknown facility type", map[string]string{"type": req.Type})
	}
	status := models.FacilityActive
	if req.Status != "" {
		if !models.ValidFacilityStatus(req.Status) {
			return nil, appErrors.WithDetails(appErrors.ErrValidation, "unknown facility status", map[string]string{"status": req.Status})
		}
		status = models.FacilityStatus(req.Status)
	}
	windows := make(models.AvailabilityWindows, 0, len(req.AvailabilityWindows))
	for _, window := range req.AvailabilityWindows {
		start, okStart := models.CanonicalClock(window.StartTime)
		end, okEnd := models.CanonicalClock(window.EndTime)
		if !okStart || !okEnd {
			return nil, appErrors.WithDetails(appErrors.ErrValidation, "availability window times must be HH:MM clock values", window)
		}
		if start >= end {
			return nil, appErrors.WithDetails(appErrors.ErrValidation, "availability window start must precede end", window)
		}
		windows = append(windows, models.AvailabilityWindow{
			DayOfWeek: strings.ToUpper(window.DayOfWeek),
			StartTime: start,
			EndTime:   end,
		})
	}
	return &models.Facility{
		Name:                req.Name,
		Type:                models.FacilityType(req.Type),
		Capacity:            req.Capacity,
		Location:            req.Location,
		Building:            req.Building,
		Floor:               req.Floor,
		Description:         req.Description,
		Amenities:           pq.StringArray(req.Amenities),
		ImageURLs:           pq.StringArray(req.ImageURLs),
		Status:              status,
		AvailabilityWindows: windows,
	}, nil
}

func (s *FacilityService) recordAudit(ctx context.Context, principal models.Principal, action string, facility *models.Facility) {
	detail, _ := json.Marshal(map[string]string{"name": facility.Name})
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &principal.ID,
		Action:     action,
		Resource:   "facility",
		ResourceID: &facility.ID,
		Detail:     detail,
	}); err != nil {
		s.logger.Warn("failed to record facility audit log", zap.Error(err))
	}
}
