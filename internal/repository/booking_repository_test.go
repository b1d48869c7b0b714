package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/campus-hub/campus-ops-api/internal/models"
)

func newBookingRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var bookingRows = []string{"id", "facility_id", "facility_name", "user_id", "user_name", "booking_date", "start_time", "end_time", "purpose", "expected_attendees", "status", "reviewed_by", "rejection_reason", "cancellation_reason", "created_at", "updated_at"}

func TestBookingRepositoryCreateAdmittedFreeWindow(t *testing.T) {
	db, mock, cleanup := newBookingRepoMock(t)
	defer cleanup()

	repo := NewBookingRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1))")).
		WithArgs("fac-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, facility_id, facility_name")).
		WithArgs("fac-1", "2030-01-07", "09:00", "10:00").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO bookings")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	booking := &models.Booking{
		FacilityID:   "fac-1",
		FacilityName: "Lecture Hall A",
		UserID:       "user-1",
		UserName:     "Dewi",
		Date:         "2030-01-07",
		StartTime:    "09:00",
		EndTime:      "10:00",
		Purpose:      "Study group",
	}
	colliding, err := repo.CreateAdmitted(context.Background(), booking)
	require.NoError(t, err)
	require.Nil(t, colliding)
	require.NotEmpty(t, booking.ID)
	require.Equal(t, models.BookingPending, booking.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryCreateAdmittedConflict(t *testing.T) {
	db, mock, cleanup := newBookingRepoMock(t)
	defer cleanup()

	repo := NewBookingRepository(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1))")).
		WithArgs("fac-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, facility_id, facility_name")).
		WithArgs("fac-1", "2030-01-07", "09:30", "10:30").
		WillReturnRows(sqlmock.NewRows(bookingRows).
			AddRow("bk-existing", "fac-1", "Lecture Hall A", "user-2", "Budi", "2030-01-07", "09:00", "10:00", "Seminar", 20, "APPROVED", nil, nil, nil, now, now))
	mock.ExpectRollback()

	booking := &models.Booking{
		FacilityID: "fac-1",
		Date:       "2030-01-07",
		StartTime:  "09:30",
		EndTime:    "10:30",
	}
	colliding, err := repo.CreateAdmitted(context.Background(), booking)
	require.NoError(t, err)
	require.NotNil(t, colliding)
	require.Equal(t, "bk-existing", colliding.ID)
	require.Equal(t, models.BookingApproved, colliding.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryApproveConditional(t *testing.T) {
	db, mock, cleanup := newBookingRepoMock(t)
	defer cleanup()

	repo := NewBookingRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE bookings SET status = 'APPROVED'")).
		WithArgs("bk-1", "admin-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	applied, err := repo.Approve(context.Background(), "bk-1", "admin-1")
	require.NoError(t, err)
	require.True(t, applied)

	// Booking already left PENDING: zero rows, no error.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE bookings SET status = 'APPROVED'")).
		WithArgs("bk-1", "admin-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	applied, err = repo.Approve(context.Background(), "bk-1", "admin-1")
	require.NoError(t, err)
	require.False(t, applied)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryCancelConditional(t *testing.T) {
	db, mock, cleanup := newBookingRepoMock(t)
	defer cleanup()

	repo := NewBookingRepository(db)
	reason := "event moved"

	mock.ExpectExec(regexp.QuoteMeta("UPDATE bookings SET status = 'CANCELLED'")).
		WithArgs("bk-1", &reason, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	applied, err := repo.Cancel(context.Background(), "bk-1", &reason)
	require.NoError(t, err)
	require.True(t, applied)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newBookingRepoMock(t)
	defer cleanup()

	repo := NewBookingRepository(db)
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, facility_id, facility_name")).
		WithArgs("user-1", "PENDING").
		WillReturnRows(sqlmock.NewRows(bookingRows).
			AddRow("bk-1", "fac-1", "Lecture Hall A", "user-1", "Dewi", "2030-01-07", "09:00", "10:00", "Study group", 10, "PENDING", nil, nil, nil, now, now))

	status := models.BookingPending
	list, err := repo.List(context.Background(), models.BookingFilter{UserID: "user-1", Status: &status})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "bk-1", list[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
