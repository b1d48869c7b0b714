package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campus-hub/campus-ops-api/internal/authz"
	"github.com/campus-hub/campus-ops-api/internal/models"
	appErrors "github.com/campus-hub/campus-ops-api/pkg/errors"
	"github.com/campus-hub/campus-ops-api/pkg/export"
)

type bookingRepository interface {
	List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error)
	FindByID(ctx context.Context, id string) (*models.Booking, error)
	CreateAdmitted(ctx context.Context, booking *models.Booking) (*models.BookingSummary, error)
	Approve(ctx context.Context, id, reviewer string) (bool, error)
	Reject(ctx context.Context, id, reviewer, reason string) (bool, error)
	Cancel(ctx context.Context, id string, reason *string) (bool, error)
}

type facilityReader interface {
	FindByID(ctx context.Context, id string) (*models.Facility, error)
}

// BookingService runs the booking lifecycle: admission with conflict
// resolution, admin review and cancellation.
type BookingService struct {
	repo       bookingRepository
	facilities facilityReader
	audit      auditWriter
	dispatcher Dispatcher
	validator  *validator.Validate
	logger     *zap.Logger

	csv *export.CSVExporter
	pdf *export.PDFExporter
	now func() time.Time
}

// NewBookingService constructs the service.
func NewBookingService(repo bookingRepository, facilities facilityReader, audit auditWriter, dispatcher Dispatcher, validate *validator.Validate, logger *zap.Logger) *BookingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookingService{
		repo:       repo,
		facilities: facilities,
		audit:      audit,
		dispatcher: dispatcher,
		validator:  validate,
		logger:     logger,
		csv:        export.NewCSVExporter(),
		pdf:        export.NewPDFExporter(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// CreateBookingRequest is the booking admission payload.
type CreateBookingRequest struct {
	FacilityID        string `json:"facilityId" validate:"required"`
	Date              string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime         string `json:"startTime" validate:"required,datetime=15:04"`
	EndTime           string `json:"endTime" validate:"required,datetime=15:04"`
	Purpose           string `json:"purpose" validate:"required"`
	ExpectedAttendees int    `json:"expectedAttendees" validate:"gte=1"`
}

// ReviewBookingRequest carries the optional review reason.
type ReviewBookingRequest struct {
	Reason string `json:"reason"`
}

// BookingListRequest captures list query parameters.
type BookingListRequest struct {
	All        bool
	FacilityID string
	Status     string
}

// Create admits a booking as PENDING after checking the facility state,
// availability windows and overlap with existing PENDING/APPROVED bookings
// on the same facility and date.
func (s *BookingService) Create(ctx context.Context, principal models.Principal, req CreateBookingRequest) (*models.Booking, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid booking payload")
	}
	startTime, okStart := models.CanonicalClock(req.StartTime)
	endTime, okEnd := models.CanonicalClock(req.EndTime)
	if !okStart || !okEnd {
		return nil, appErrors.Clone(appErrors.ErrValidation, "times must be HH:MM clock values")
	}
	if startTime >= endTime {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start time must precede end time")
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid booking date")
	}
	today := s.now().Format("2006-01-02")
	if req.Date < today {
		return nil, appErrors.Clone(appErrors.ErrValidation, "booking date is in the past")
	}

	facility, err := s.facilities.FindByID(ctx, req.FacilityID)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "facility not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch facility")
	}
	if facility.Status != models.FacilityActive {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "facility is not available for booking", map[string]string{"status": string(facility.Status)})
	}
	if facility.Capacity > 0 && req.ExpectedAttendees > facility.Capacity {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "expected attendees exceed facility capacity", map[string]int{"capacity": facility.Capacity})
	}
	if !fitsAvailability(facility.AvailabilityWindows, date, startTime, endTime) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "requested window is outside the facility's availability")
	}

	booking := &models.Booking{
		FacilityID:        facility.ID,
		FacilityName:      facility.Name,
		UserID:            principal.ID,
		UserName:          principal.Name,
		Date:              req.Date,
		StartTime:         startTime,
		EndTime:           endTime,
		Purpose:           req.Purpose,
		ExpectedAttendees: req.ExpectedAttendees,
	}

	colliding, err := s.repo.CreateAdmitted(ctx, booking)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create booking")
	}
	if colliding != nil {
		return nil, appErrors.WithDetails(appErrors.ErrConflict, "", colliding)
	}

	s.dispatcher.Dispatch(Event{
		Type:          models.NotifyBookingCreated,
		Title:         "New Booking Request",
		Message:       fmt.Sprintf("%s requested %s on %s from %s to %s", principal.Name, facility.Name, booking.Date, booking.StartTime, booking.EndTime),
		FanOutRoles:   []models.UserRole{models.RoleAdmin},
		ReferenceID:   booking.ID,
		ReferenceType: models.ReferenceBooking,
	})
	return booking, nil
}

// fitsAvailability checks the booking window against the facility's weekly
// windows. A facility with no declared windows is open at all hours.
func fitsAvailability(windows models.AvailabilityWindows, date time.Time, start, end string) bool {
	if len(windows) == 0 {
		return true
	}
	weekday := strings.ToUpper(date.Weekday().String())
	for _, w := range windows {
		if w.DayOfWeek == weekday && w.StartTime <= start && end <= w.EndTime {
			return true
		}
	}
	return false
}

// List returns bookings. Callers see their own; booking:list_all (ADMIN)
// unlocks the full set and the facility filter.
func (s *BookingService) List(ctx context.Context, principal models.Principal, req BookingListRequest) ([]models.Booking, error) {
	filter := models.BookingFilter{FacilityID: req.FacilityID}
	if req.All || req.FacilityID != "" {
		if !authz.Allowed(principal.Roles, authz.OpBookingListAll) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "listing all bookings requires ADMIN")
		}
	} else {
		filter.UserID = principal.ID
	}
	if req.Status != "" {
		if !models.ValidBookingStatus(req.Status) {
			return nil, appErrors.WithDetails(appErrors.ErrValidation, "unknown booking status", map[string]string{"status": req.Status})
		}
		st := models.BookingStatus(req.Status)
		filter.Status = &st
	}

	bookings, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list bookings")
	}
	return bookings, nil
}

// Get returns one booking, visible to its owner and admins.
func (s *BookingService) Get(ctx context.Context, principal models.Principal, id string) (*models.Booking, error) {
	booking, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking.UserID != principal.ID && !authz.Allowed(principal.Roles, authz.OpBookingListAll) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "booking belongs to another user")
	}
	return booking, nil
}

// Approve moves a PENDING booking to APPROVED. ADMIN only.
func (s *BookingService) Approve(ctx context.Context, principal models.Principal, id string) (*models.Booking, error) {
	if !authz.Allowed(principal.Roles, authz.OpBookingReview) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "booking review requires ADMIN")
	}
	booking, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking.Status != models.BookingPending {
		return nil, s.transitionError(booking.Status, models.BookingApproved)
	}

	applied, err := s.repo.Approve(ctx, booking.ID, principal.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve booking")
	}
	if !applied {
		return nil, s.transitionError(booking.Status, models.BookingApproved)
	}
	booking.Status = models.BookingApproved
	booking.ReviewedBy = &principal.ID

	s.recordReview(ctx, principal, booking, "approve")
	s.dispatcher.Dispatch(Event{
		Type:          models.NotifyBookingApproved,
		Title:         "Booking Approved",
		Message:       fmt.Sprintf("Your booking for %s on %s (%s - %s) has been approved", booking.FacilityName, booking.Date, booking.StartTime, booking.EndTime),
		Recipients:    []string{booking.UserID},
		ReferenceID:   booking.ID,
		ReferenceType: models.ReferenceBooking,
	})
	return booking, nil
}

// Reject moves a PENDING booking to REJECTED with a mandatory reason.
// ADMIN only.
func (s *BookingService) Reject(ctx context.Context, principal models.Principal, id string, req ReviewBookingRequest) (*models.Booking, error) {
	if !authz.Allowed(principal.Roles, authz.OpBookingReview) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "booking review requires ADMIN")
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a rejection reason is required")
	}
	booking, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking.Status != models.BookingPending {
		return nil, s.transitionError(booking.Status, models.BookingRejected)
	}

	applied, err := s.repo.Reject(ctx, booking.ID, principal.ID, reason)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject booking")
	}
	if !applied {
		return nil, s.transitionError(booking.Status, models.BookingRejected)
	}
	booking.Status = models.BookingRejected
	booking.ReviewedBy = &principal.ID
	booking.RejectionReason = &reason

	s.recordReview(ctx, principal, booking, "reject")
	s.dispatcher.Dispatch(Event{
		Type:          models.NotifyBookingRejected,
		Title:         "Booking Rejected",
		Message:       fmt.Sprintf("Your booking for %s on %s was rejected: %s", booking.FacilityName, booking.Date, reason),
		Recipients:    []string{booking.UserID},
		ReferenceID:   booking.ID,
		ReferenceType: models.ReferenceBooking,
	})
	return booking, nil
}

// Cancel moves a PENDING or APPROVED booking to CANCELLED. Owners cancel
// their own; admins may cancel any.
func (s *BookingService) Cancel(ctx context.Context, principal models.Principal, id string, req ReviewBookingRequest) (*models.Booking, error) {
	booking, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	isOwner := booking.UserID == principal.ID
	if !isOwner && !principal.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "booking belongs to another user")
	}
	if booking.Status != models.BookingPending && booking.Status != models.BookingApproved {
		return nil, s.transitionError(booking.Status, models.BookingCancelled)
	}

	var reason *string
	if trimmed := strings.TrimSpace(req.Reason); trimmed != "" {
		reason = &trimmed
	}
	applied, err := s.repo.Cancel(ctx, booking.ID, reason)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel booking")
	}
	if !applied {
		return nil, s.transitionError(booking.Status, models.BookingCancelled)
	}
	booking.Status = models.BookingCancelled
	booking.CancellationReason = reason

	event := Event{
		Type:          models.NotifyBookingCancelled,
		Title:         "Booking Cancelled",
		Message:       fmt.Sprintf("Booking for %s on %s (%s - %s) was cancelled", booking.FacilityName, booking.Date, booking.StartTime, booking.EndTime),
		ReferenceID:   booking.ID,
		ReferenceType: models.ReferenceBooking,
	}
	if isOwner {
		event.FanOutRoles = []models.UserRole{models.RoleAdmin}
	} else {
		event.Recipients = []string{booking.UserID}
	}
	s.dispatcher.Dispatch(event)
	return booking, nil
}

// Export renders all bookings as CSV or PDF. ADMIN only.
func (s *BookingService) Export(ctx context.Context, principal models.Principal, format string) ([]byte, string, error) {
	if !authz.Allowed(principal.Roles, authz.OpBookingExport) {
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "booking export requires ADMIN")
	}

	bookings, err := s.repo.List(ctx, models.BookingFilter{})
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list bookings")
	}

	dataset := export.Dataset{
		Headers: []string{"ID", "Facility", "User", "Date", "Start", "End", "Status", "Attendees"},
	}
	for _, b := range bookings {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"ID":        b.ID,
			"Facility":  b.FacilityName,
			"User":      b.UserName,
			"Date":      b.Date,
			"Start":     b.StartTime,
			"End":       b.EndTime,
			"Status":    string(b.Status),
			"Attendees": strconv.Itoa(b.ExpectedAttendees),
		})
	}

	switch strings.ToLower(format) {
	case "", "csv":
		payload, err := s.csv.Render(dataset)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return payload, "text/csv", nil
	case "pdf":
		payload, err := s.pdf.Render(dataset, "Facility Bookings")
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return payload, "application/pdf", nil
	default:
		return nil, "", appErrors.WithDetails(appErrors.ErrValidation, "unsupported export format", map[string]string{"format": format})
	}
}

func (s *BookingService) find(ctx context.Context, id string) (*models.Booking, error) {
	booking, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "booking not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch booking")
	}
	return booking, nil
}

func (s *BookingService) transitionError(from, to models.BookingStatus) error {
	return appErrors.WithDetails(appErrors.ErrInvalidTransition,
		fmt.Sprintf("booking cannot move from %s to %s", from, to),
		map[string]string{"from": string(from), "to": string(to)})
}

func (s *BookingService) recordReview(ctx context.Context, principal models.Principal, booking *models.Booking, decision string) {
	detail, _ := json.Marshal(map[string]string{"decision": decision})
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &principal.ID,
		Action:     models.AuditActionBookingReview,
		Resource:   "booking",
		ResourceID: &booking.ID,
		Detail:     detail,
	}); err != nil {
		s.logger.Warn("failed to record booking audit log", zap.Error(err))
	}
}
