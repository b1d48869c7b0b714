package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-hub/campus-ops-api/internal/models"
	appErrors "github.com/campus-hub/campus-ops-api/pkg/errors"
)

type facilityRepoStub struct {
	facilities map[string]*models.Facility
	seq        int
	err        error
}

func newFacilityRepoStub() *facilityRepoStub {
	return &facilityRepoStub{facilities: map[string]*models.Facility{}}
}

func (r *facilityRepoStub) List(_ context.Context, filter models.FacilityFilter) ([]models.Facility, error) {
	if r.err != nil {
		return nil, r.err
	}
	var out []models.Facility
	for _, f := range r.facilities {
		if filter.Type != nil && f.Type != *filter.Type {
			continue
		}
		if filter.Status != nil && f.Status != *filter.Status {
			continue
		}
		if filter.MinCapacity != nil && f.Capacity < *filter.MinCapacity {
			continue
		}
		out = append(out, *f)
	}
	return out, nil
}

func (r *facilityRepoStub) FindByID(_ context.Context, id string) (*models.Facility, error) {
	if r.err != nil {
		return nil, r.err
	}
	if f, ok := r.facilities[id]; ok {
		copied := *f
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (r *facilityRepoStub) Create(_ context.Context, facility *models.Facility) error {
	if r.err != nil {
		return r.err
	}
	r.seq++
	facility.ID = fmt.Sprintf("fac-%d", r.seq)
	stored := *facility
	r.facilities[facility.ID] = &stored
	return nil
}

func (r *facilityRepoStub) Update(_ context.Context, facility *models.Facility) error {
	if r.err != nil {
		return r.err
	}
	if _, ok := r.facilities[facility.ID]; !ok {
		return sql.ErrNoRows
	}
	stored := *facility
	r.facilities[facility.ID] = &stored
	return nil
}

func (r *facilityRepoStub) Delete(_ context.Context, id string) error {
	if r.err != nil {
		return r.err
	}
	delete(r.facilities, id)
	return nil
}

func validFacilityRequest() FacilityRequest {
	return FacilityRequest{
		Name:     "Lecture Hall A",
		Type:     "LECTURE_HALL",
		Capacity: 120,
		Location: "Main Building",
		AvailabilityWindows: models.AvailabilityWindows{
			{DayOfWeek: "MONDAY", StartTime: "08:00", EndTime: "18:00"},
		},
	}
}

func TestFacilityCreateRequiresAdmin(t *testing.T) {
	repo := newFacilityRepoStub()
	audit := &auditStub{}
	svc := NewFacilityService(repo, audit, nil, nil)

	_, err := svc.Create(context.Background(), bookingUser, validFacilityRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	facility, err := svc.Create(context.Background(), bookingAdmin, validFacilityRequest())
	require.NoError(t, err)
	assert.Equal(t, models.FacilityActive, facility.Status, "status defaults to ACTIVE")
	assert.Equal(t, bookingAdmin.ID, facility.CreatedBy)
	assert.NotEmpty(t, facility.ID)

	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionFacilityCreate, audit.logs[0].Action)
}

func TestFacilityCreateValidation(t *testing.T) {
	svc := NewFacilityService(newFacilityRepoStub(), &auditStub{}, nil, nil)

	req := validFacilityRequest()
	req.Type = "SWIMMING_POOL"
	_, err := svc.Create(context.Background(), bookingAdmin, req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	req = validFacilityRequest()
	req.AvailabilityWindows = models.AvailabilityWindows{{DayOfWeek: "MONDAY", StartTime: "18:00", EndTime: "08:00"}}
	_, err = svc.Create(context.Background(), bookingAdmin, req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	req = validFacilityRequest()
	req.Status = "RETIRED"
	_, err = svc.Create(context.Background(), bookingAdmin, req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestFacilityCreateNormalizesWindows(t *testing.T) {
	svc := NewFacilityService(newFacilityRepoStub(), &auditStub{}, nil, nil)

	req := validFacilityRequest()
	req.AvailabilityWindows = models.AvailabilityWindows{
		{DayOfWeek: "monday", StartTime: "8:00", EndTime: "9:30"},
	}
	facility, err := svc.Create(context.Background(), bookingAdmin, req)
	require.NoError(t, err)
	require.Len(t, facility.AvailabilityWindows, 1)
	assert.Equal(t, "MONDAY", facility.AvailabilityWindows[0].DayOfWeek)
	assert.Equal(t, "08:00", facility.AvailabilityWindows[0].StartTime)
	assert.Equal(t, "09:30", facility.AvailabilityWindows[0].EndTime)

	req = validFacilityRequest()
	req.AvailabilityWindows = models.AvailabilityWindows{{DayOfWeek: "MONDAY", StartTime: "8:xx", EndTime: "18:00"}}
	_, err = svc.Create(context.Background(), bookingAdmin, req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestFacilityUpdateKeepsProvenance(t *testing.T) {
	repo := newFacilityRepoStub()
	svc := NewFacilityService(repo, &auditStub{}, nil, nil)

	created, err := svc.Create(context.Background(), bookingAdmin, validFacilityRequest())
	require.NoError(t, err)

	req := validFacilityRequest()
	req.Name = "Lecture Hall A (renovated)"
	req.Status = "UNDER_MAINTENANCE"
	updated, err := svc.Update(context.Background(), bookingAdmin, created.ID, req)
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, created.CreatedBy, updated.CreatedBy)
	assert.Equal(t, models.FacilityUnderMaintenance, updated.Status)

	_, err = svc.Update(context.Background(), bookingAdmin, "missing", req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestFacilityListFilters(t *testing.T) {
	repo := newFacilityRepoStub()
	svc := NewFacilityService(repo, &auditStub{}, nil, nil)
	_, err := svc.Create(context.Background(), bookingAdmin, validFacilityRequest())
	require.NoError(t, err)
	labReq := validFacilityRequest()
	labReq.Name = "Chem Lab"
	labReq.Type = "LAB"
	labReq.Capacity = 24
	_, err = svc.Create(context.Background(), bookingAdmin, labReq)
	require.NoError(t, err)

	labs, err := svc.List(context.Background(), FacilityListRequest{Type: "LAB"})
	require.NoError(t, err)
	assert.Len(t, labs, 1)

	min := 100
	big, err := svc.List(context.Background(), FacilityListRequest{MinCapacity: &min})
	require.NoError(t, err)
	assert.Len(t, big, 1)

	_, err = svc.List(context.Background(), FacilityListRequest{Status: "RETIRED"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestFacilityDelete(t *testing.T) {
	repo := newFacilityRepoStub()
	audit := &auditStub{}
	svc := NewFacilityService(repo, audit, nil, nil)
	created, err := svc.Create(context.Background(), bookingAdmin, validFacilityRequest())
	require.NoError(t, err)

	err = svc.Delete(context.Background(), bookingUser, created.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	require.NoError(t, svc.Delete(context.Background(), bookingAdmin, created.ID))
	assert.Empty(t, repo.facilities)
	assert.Equal(t, models.AuditActionFacilityDelete, audit.logs[len(audit.logs)-1].Action)
}
