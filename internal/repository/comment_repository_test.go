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

func newCommentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestCommentRepositoryListNewestFirst(t *testing.T) {
	db, mock, cleanup := newCommentRepoMock(t)
	defer cleanup()

	repo := NewCommentRepository(db)
	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "ticket_id", "content", "author_id", "author_name", "author_role", "edited", "created_at", "updated_at"}).
		AddRow("cm-2", "tk-1", "later reply", "tech-1", "Budi", "TECHNICIAN", false, now, now).
		AddRow("cm-1", "tk-1", "first report", "user-1", "Dewi", "USER", false, now.Add(-time.Hour), now.Add(-time.Hour))
	mock.ExpectQuery(regexp.QuoteMeta("FROM comments WHERE ticket_id = $1 ORDER BY created_at DESC")).
		WithArgs("tk-1").
		WillReturnRows(rows)

	comments, err := repo.ListByTicket(context.Background(), "tk-1")
	require.NoError(t, err)
	require.Len(t, comments, 2)
	require.Equal(t, "cm-2", comments[0].ID)
	require.Equal(t, "cm-1", comments[1].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCommentRepositoryCreateAndUpdate(t *testing.T) {
	db, mock, cleanup := newCommentRepoMock(t)
	defer cleanup()

	repo := NewCommentRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO comments")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	comment := &models.Comment{
		TicketID:   "tk-1",
		Content:    "On my way",
		AuthorID:   "tech-1",
		AuthorName: "Budi",
		AuthorRole: "TECHNICIAN",
	}
	require.NoError(t, repo.Create(context.Background(), comment))
	require.NotEmpty(t, comment.ID)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE comments SET content = $2, edited = TRUE")).
		WithArgs(comment.ID, "Arrived on site", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateContent(context.Background(), comment.ID, "Arrived on site"))
	require.NoError(t, mock.ExpectationsWereMet())
}
