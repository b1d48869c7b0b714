package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-hub/campus-ops-api/internal/models"
	appErrors "github.com/campus-hub/campus-ops-api/pkg/errors"
)

// bookingRepoStub keeps bookings in memory and mirrors the conditional
// update semantics of the SQL repository: transitions apply only from the
// expected current status.
type bookingRepoStub struct {
	mu       sync.Mutex
	bookings map[string]*models.Booking
	seq      int
	err      error

	// stale forces conditional updates to report zero rows affected,
	// simulating a concurrent writer between precheck and update.
	stale bool
}

func newBookingRepoStub() *bookingRepoStub {
	return &bookingRepoStub{bookings: map[string]*models.Booking{}}
}

func (r *bookingRepoStub) add(b models.Booking) *models.Booking {
	r.seq++
	if b.ID == "" {
		b.ID = fmt.Sprintf("bk-%d", r.seq)
	}
	r.bookings[b.ID] = &b
	return r.bookings[b.ID]
}

func (r *bookingRepoStub) List(_ context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	var out []models.Booking
	for _, b := range r.bookings {
		if filter.UserID != "" && b.UserID != filter.UserID {
			continue
		}
		if filter.FacilityID != "" && b.FacilityID != filter.FacilityID {
			continue
		}
		if filter.Status != nil && b.Status != *filter.Status {
			continue
		}
		out = append(out, *b)
	}
	return out, nil
}

func (r *bookingRepoStub) FindByID(_ context.Context, id string) (*models.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	if b, ok := r.bookings[id]; ok {
		copied := *b
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (r *bookingRepoStub) CreateAdmitted(_ context.Context, booking *models.Booking) (*models.BookingSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	for _, existing := range r.bookings {
		if existing.FacilityID != booking.FacilityID || existing.Date != booking.Date {
			continue
		}
		if existing.Status != models.BookingPending && existing.Status != models.BookingApproved {
			continue
		}
		if models.Overlaps(existing.StartTime, existing.EndTime, booking.StartTime, booking.EndTime) {
			summary := existing.Summary()
			return &summary, nil
		}
	}
	r.seq++
	booking.ID = fmt.Sprintf("bk-%d", r.seq)
	booking.Status = models.BookingPending
	booking.CreatedAt = time.Now()
	booking.UpdatedAt = booking.CreatedAt
	stored := *booking
	r.bookings[booking.ID] = &stored
	return nil, nil
}

func (r *bookingRepoStub) conditional(id string, from []models.BookingStatus, apply func(*models.Booking)) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}
	if r.stale {
		return false, nil
	}
	b, ok := r.bookings[id]
	if !ok {
		return false, nil
	}
	for _, status := range from {
		if b.Status == status {
			apply(b)
			return true, nil
		}
	}
	return false, nil
}

func (r *bookingRepoStub) Approve(_ context.Context, id, reviewer string) (bool, error) {
	return r.conditional(id, []models.BookingStatus{models.BookingPending}, func(b *models.Booking) {
		b.Status = models.BookingApproved
		b.ReviewedBy = &reviewer
	})
}

func (r *bookingRepoStub) Reject(_ context.Context, id, reviewer, reason string) (bool, error) {
	return r.conditional(id, []models.BookingStatus{models.BookingPending}, func(b *models.Booking) {
		b.Status = models.BookingRejected
		b.ReviewedBy = &reviewer
		b.RejectionReason = &reason
	})
}

func (r *bookingRepoStub) Cancel(_ context.Context, id string, reason *string) (bool, error) {
	return r.conditional(id, []models.BookingStatus{models.BookingPending, models.BookingApproved}, func(b *models.Booking) {
		b.Status = models.BookingCancelled
		b.CancellationReason = reason
	})
}

func newBookingServiceForTest(repo *bookingRepoStub, facilities *facilityReaderStub) (*BookingService, *dispatcherStub, *auditStub) {
	dispatcher := &dispatcherStub{}
	audit := &auditStub{}
	svc := NewBookingService(repo, facilities, audit, dispatcher, nil, nil)
	svc.now = func() time.Time { return time.Date(2030, 1, 1, 9, 0, 0, 0, time.UTC) }
	return svc, dispatcher, audit
}

func activeFacility() *facilityReaderStub {
	return &facilityReaderStub{facilities: map[string]models.Facility{
		"fac-1": {
			ID:       "fac-1",
			Name:     "Lecture Hall A",
			Status:   models.FacilityActive,
			Capacity: 50,
			AvailabilityWindows: models.AvailabilityWindows{
				{DayOfWeek: "MONDAY", StartTime: "08:00", EndTime: "18:00"},
			},
		},
	}}
}

var bookingUser = models.Principal{ID: "user-1", Name: "Dewi", Roles: models.RoleSet{models.RoleUser}}
var bookingAdmin = models.Principal{ID: "admin-1", Name: "Root", Roles: models.RoleSet{models.RoleAdmin}}

// 2030-01-07 is a Monday.
func validBookingRequest() CreateBookingRequest {
	return CreateBookingRequest{
		FacilityID:        "fac-1",
		Date:              "2030-01-07",
		StartTime:         "09:00",
		EndTime:           "10:00",
		Purpose:           "Study group",
		ExpectedAttendees: 10,
	}
}

func TestBookingCreateAdmitsPending(t *testing.T) {
	repo := newBookingRepoStub()
	svc, dispatcher, _ := newBookingServiceForTest(repo, activeFacility())

	booking, err := svc.Create(context.Background(), bookingUser, validBookingRequest())
	require.NoError(t, err)

	assert.Equal(t, models.BookingPending, booking.Status)
	assert.Equal(t, "Lecture Hall A", booking.FacilityName)
	assert.Equal(t, bookingUser.ID, booking.UserID)
	assert.NotEmpty(t, booking.ID)

	events := dispatcher.all()
	require.Len(t, events, 1)
	assert.Equal(t, models.NotifyBookingCreated, events[0].Type)
	assert.Equal(t, []models.UserRole{models.RoleAdmin}, events[0].FanOutRoles)
	assert.Equal(t, booking.ID, events[0].ReferenceID)
}

func TestBookingCreateConflictCarriesCollidingSummary(t *testing.T) {
	repo := newBookingRepoStub()
	existing := repo.add(models.Booking{
		FacilityID: "fac-1",
		Date:       "2030-01-07",
		StartTime:  "09:00",
		EndTime:    "11:00",
		Status:     models.BookingApproved,
	})
	svc, dispatcher, _ := newBookingServiceForTest(repo, activeFacility())

	req := validBookingRequest()
	req.StartTime = "10:00"
	req.EndTime = "12:00"
	_, err := svc.Create(context.Background(), bookingUser, req)
	require.Error(t, err)

	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	summary, ok := appErr.Details.(*models.BookingSummary)
	require.True(t, ok)
	assert.Equal(t, existing.ID, summary.ID)
	assert.Empty(t, dispatcher.all())
}

func TestBookingCreateTouchingWindowsAdmit(t *testing.T) {
	repo := newBookingRepoStub()
	repo.add(models.Booking{
		FacilityID: "fac-1",
		Date:       "2030-01-07",
		StartTime:  "09:00",
		EndTime:    "10:00",
		Status:     models.BookingPending,
	})
	svc, _, _ := newBookingServiceForTest(repo, activeFacility())

	req := validBookingRequest()
	req.StartTime = "10:00"
	req.EndTime = "11:00"
	booking, err := svc.Create(context.Background(), bookingUser, req)
	require.NoError(t, err)
	assert.Equal(t, models.BookingPending, booking.Status)
}

func TestBookingCreateNormalizesClockTimes(t *testing.T) {
	repo := newBookingRepoStub()
	svc, _, _ := newBookingServiceForTest(repo, activeFacility())

	req := validBookingRequest()
	req.StartTime = "9:00"
	req.EndTime = "10:30"
	booking, err := svc.Create(context.Background(), bookingUser, req)
	require.NoError(t, err, "an unpadded hour is a valid clock value")
	assert.Equal(t, "09:00", booking.StartTime)
	assert.Equal(t, "10:30", booking.EndTime)
}

func TestBookingCreateUnpaddedTimesStillConflict(t *testing.T) {
	repo := newBookingRepoStub()
	repo.add(models.Booking{
		FacilityID: "fac-1",
		Date:       "2030-01-07",
		StartTime:  "09:00",
		EndTime:    "17:00",
		Status:     models.BookingPending,
	})
	svc, _, _ := newBookingServiceForTest(repo, activeFacility())

	// "9:30" sorts after "17:00" as a raw string; canonicalization must
	// keep the window inside the existing one.
	req := validBookingRequest()
	req.StartTime = "9:30"
	req.EndTime = "9:45"
	_, err := svc.Create(context.Background(), bookingUser, req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestBookingCreateConcurrentAdmitsSingleWinner(t *testing.T) {
	repo := newBookingRepoStub()
	svc, _, _ := newBookingServiceForTest(repo, activeFacility())

	const writers = 8
	errs := make(chan error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create(context.Background(), bookingUser, validBookingRequest())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	successes, conflicts := 0, 0
	for err := range errs {
		if err == nil {
			successes++
			continue
		}
		require.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
		conflicts++
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, writers-1, conflicts)
}

func TestBookingCreateValidation(t *testing.T) {
	svc, dispatcher, _ := newBookingServiceForTest(newBookingRepoStub(), activeFacility())

	cases := []struct {
		name    string
		mutate  func(*CreateBookingRequest)
		message string
	}{
		{"inverted window", func(r *CreateBookingRequest) { r.StartTime = "12:00"; r.EndTime = "10:00" }, "start time must precede end time"},
		{"past date", func(r *CreateBookingRequest) { r.Date = "2029-12-31" }, "booking date is in the past"},
		{"outside availability", func(r *CreateBookingRequest) { r.StartTime = "06:00"; r.EndTime = "07:00" }, "outside the facility's availability"},
		{"wrong weekday", func(r *CreateBookingRequest) { r.Date = "2030-01-08" }, "outside the facility's availability"},
		{"over capacity", func(r *CreateBookingRequest) { r.ExpectedAttendees = 51 }, "exceed facility capacity"},
		{"zero attendees", func(r *CreateBookingRequest) { r.ExpectedAttendees = 0 }, "invalid booking payload"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validBookingRequest()
			tc.mutate(&req)
			_, err := svc.Create(context.Background(), bookingUser, req)
			require.Error(t, err)
			appErr := appErrors.FromError(err)
			assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
			assert.Contains(t, appErr.Message, tc.message)
		})
	}
	assert.Empty(t, dispatcher.all())
}

func TestBookingCreateInactiveFacility(t *testing.T) {
	facilities := activeFacility()
	f := facilities.facilities["fac-1"]
	f.Status = models.FacilityUnderMaintenance
	facilities.facilities["fac-1"] = f
	svc, _, _ := newBookingServiceForTest(newBookingRepoStub(), facilities)

	_, err := svc.Create(context.Background(), bookingUser, validBookingRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestBookingApprove(t *testing.T) {
	repo := newBookingRepoStub()
	pending := repo.add(models.Booking{
		FacilityID:   "fac-1",
		FacilityName: "Lecture Hall A",
		UserID:       bookingUser.ID,
		Date:         "2030-01-07",
		StartTime:    "09:00",
		EndTime:      "10:00",
		Status:       models.BookingPending,
	})
	svc, dispatcher, audit := newBookingServiceForTest(repo, activeFacility())

	_, err := svc.Approve(context.Background(), bookingUser, pending.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	booking, err := svc.Approve(context.Background(), bookingAdmin, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingApproved, booking.Status)
	require.NotNil(t, booking.ReviewedBy)
	assert.Equal(t, bookingAdmin.ID, *booking.ReviewedBy)

	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionBookingReview, audit.logs[0].Action)

	events := dispatcher.all()
	require.Len(t, events, 1)
	assert.Equal(t, models.NotifyBookingApproved, events[0].Type)
	assert.Equal(t, []string{bookingUser.ID}, events[0].Recipients)

	// A second approval finds the booking out of PENDING.
	_, err = svc.Approve(context.Background(), bookingAdmin, pending.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestBookingApproveLosesRace(t *testing.T) {
	repo := newBookingRepoStub()
	pending := repo.add(models.Booking{UserID: bookingUser.ID, Status: models.BookingPending})
	repo.stale = true
	svc, dispatcher, _ := newBookingServiceForTest(repo, activeFacility())

	_, err := svc.Approve(context.Background(), bookingAdmin, pending.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
	assert.Empty(t, dispatcher.all())
}

func TestBookingRejectRequiresReason(t *testing.T) {
	repo := newBookingRepoStub()
	pending := repo.add(models.Booking{UserID: bookingUser.ID, Status: models.BookingPending})
	svc, dispatcher, _ := newBookingServiceForTest(repo, activeFacility())

	_, err := svc.Reject(context.Background(), bookingAdmin, pending.ID, ReviewBookingRequest{Reason: "   "})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	booking, err := svc.Reject(context.Background(), bookingAdmin, pending.ID, ReviewBookingRequest{Reason: "double booked offline"})
	require.NoError(t, err)
	assert.Equal(t, models.BookingRejected, booking.Status)
	require.NotNil(t, booking.RejectionReason)
	assert.Equal(t, "double booked offline", *booking.RejectionReason)

	events := dispatcher.all()
	require.Len(t, events, 1)
	assert.Equal(t, models.NotifyBookingRejected, events[0].Type)
}

func TestBookingCancel(t *testing.T) {
	repo := newBookingRepoStub()
	approved := repo.add(models.Booking{UserID: bookingUser.ID, Status: models.BookingApproved})
	svc, dispatcher, _ := newBookingServiceForTest(repo, activeFacility())

	stranger := models.Principal{ID: "user-2", Roles: models.RoleSet{models.RoleUser}}
	_, err := svc.Cancel(context.Background(), stranger, approved.ID, ReviewBookingRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	booking, err := svc.Cancel(context.Background(), bookingUser, approved.ID, ReviewBookingRequest{Reason: "event moved"})
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, booking.Status)
	require.NotNil(t, booking.CancellationReason)

	events := dispatcher.all()
	require.Len(t, events, 1)
	assert.Equal(t, models.NotifyBookingCancelled, events[0].Type)
	assert.Equal(t, []models.UserRole{models.RoleAdmin}, events[0].FanOutRoles, "owner cancellations fan out to admins")

	_, err = svc.Cancel(context.Background(), bookingUser, approved.ID, ReviewBookingRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestBookingCancelByAdminNotifiesOwner(t *testing.T) {
	repo := newBookingRepoStub()
	pending := repo.add(models.Booking{UserID: bookingUser.ID, Status: models.BookingPending})
	svc, dispatcher, _ := newBookingServiceForTest(repo, activeFacility())

	_, err := svc.Cancel(context.Background(), bookingAdmin, pending.ID, ReviewBookingRequest{})
	require.NoError(t, err)

	events := dispatcher.all()
	require.Len(t, events, 1)
	assert.Equal(t, []string{bookingUser.ID}, events[0].Recipients)
	assert.Empty(t, events[0].FanOutRoles)
}

func TestBookingListScoping(t *testing.T) {
	repo := newBookingRepoStub()
	repo.add(models.Booking{UserID: bookingUser.ID, Status: models.BookingPending})
	repo.add(models.Booking{UserID: "someone-else", Status: models.BookingPending})
	svc, _, _ := newBookingServiceForTest(repo, activeFacility())

	own, err := svc.List(context.Background(), bookingUser, BookingListRequest{})
	require.NoError(t, err)
	assert.Len(t, own, 1)

	_, err = svc.List(context.Background(), bookingUser, BookingListRequest{All: true})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	all, err := svc.List(context.Background(), bookingAdmin, BookingListRequest{All: true})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = svc.List(context.Background(), bookingAdmin, BookingListRequest{Status: "WAITLISTED"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestBookingExport(t *testing.T) {
	repo := newBookingRepoStub()
	repo.add(models.Booking{UserID: bookingUser.ID, UserName: "Dewi", FacilityName: "Lecture Hall A", Date: "2030-01-07", StartTime: "09:00", EndTime: "10:00", Status: models.BookingPending})
	svc, _, _ := newBookingServiceForTest(repo, activeFacility())

	_, _, err := svc.Export(context.Background(), bookingUser, "csv")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	payload, contentType, err := svc.Export(context.Background(), bookingAdmin, "")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", contentType)
	assert.True(t, strings.HasPrefix(string(payload), "ID,Facility,User,Date,Start,End,Status,Attendees"))
	assert.Contains(t, string(payload), "Lecture Hall A")

	pdfPayload, contentType, err := svc.Export(context.Background(), bookingAdmin, "pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", contentType)
	assert.NotEmpty(t, pdfPayload)

	_, _, err = svc.Export(context.Background(), bookingAdmin, "xlsx")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
