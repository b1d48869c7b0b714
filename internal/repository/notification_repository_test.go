package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/campus-hub/campus-ops-api/internal/models"
)

func newNotificationRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestNotificationRepositoryCreateAndList(t *testing.T) {
	db, mock, cleanup := newNotificationRepoMock(t)
	defer cleanup()

	repo := NewNotificationRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notifications")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	n := &models.Notification{
		UserID:  "user-1",
		Title:   "Booking Approved",
		Message: "Your booking was approved",
		Type:    models.NotifyBookingApproved,
	}
	require.NoError(t, repo.Create(context.Background(), n))
	require.NotEmpty(t, n.ID)

	rows := sqlmock.NewRows([]string{"id", "user_id", "title", "message", "notification_type", "reference_id", "reference_type", "is_read", "created_at"}).
		AddRow(n.ID, "user-1", "Booking Approved", "Your booking was approved", "BOOKING_APPROVED", nil, nil, false, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, title, message")).
		WithArgs("user-1").
		WillReturnRows(rows)

	list, err := repo.ListByUser(context.Background(), "user-1", true)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, models.NotifyBookingApproved, list[0].Type)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryCountAndMarkAll(t *testing.T) {
	db, mock, cleanup := newNotificationRepoMock(t)
	defer cleanup()

	repo := NewNotificationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT is_read")).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	count, err := repo.CountUnread(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(3), count)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND NOT is_read")).
		WithArgs("user-1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	changed, err := repo.MarkAllRead(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(3), changed)
	require.NoError(t, mock.ExpectationsWereMet())
}
