package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustteams/trustteams-api/internal/models"
)

func applicationRows(now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "opportunity_id", "student_id", "status", "application_date",
		"reviewed_by", "reviewed_at", "review_notes", "cover_letter", "gpa",
		"expected_graduation", "relevant_courses", "skills", "experience_summary",
		"created_at", "updated_at",
	}).AddRow("app-1", "o1", "s1", string(models.ApplicationPending), now,
		nil, nil, nil, nil, nil, nil, nil, nil, nil, now, now)
}

func TestApplicationFindByID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM opportunity_applications a WHERE a.id = $1 LIMIT 1")).
		WithArgs("app-1").
		WillReturnRows(applicationRows(time.Now()))

	app, err := repo.FindByID(context.Background(), "app-1")
	require.NoError(t, err)
	assert.Equal(t, "s1", app.StudentID)
	assert.Equal(t, models.ApplicationPending, app.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationExists(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("o1", "s1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.Exists(context.Background(), "o1", "s1")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationCreateDefaultsPending(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	mock.ExpectExec("INSERT INTO opportunity_applications").
		WillReturnResult(sqlmock.NewResult(0, 1))

	app := &models.Application{OpportunityID: "o1", StudentID: "s1"}
	require.NoError(t, repo.Create(context.Background(), app))
	assert.NotEmpty(t, app.ID)
	assert.Equal(t, models.ApplicationPending, app.Status)
	assert.False(t, app.ApplicationDate.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationListForOpportunityJoinsStudent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	rows := sqlmock.NewRows([]string{
		"id", "opportunity_id", "student_id", "status", "application_date",
		"reviewed_by", "reviewed_at", "review_notes", "cover_letter", "gpa",
		"expected_graduation", "relevant_courses", "skills", "experience_summary",
		"created_at", "updated_at", "student_name", "student_email",
	}).AddRow("app-1", "o1", "s1", string(models.ApplicationPending), time.Now(),
		nil, nil, nil, nil, nil, nil, nil, nil, nil, time.Now(), time.Now(), "Ana", "ana@uni.edu")
	mock.ExpectQuery(regexp.QuoteMeta("JOIN users s ON s.id = a.student_id")).
		WithArgs("o1").
		WillReturnRows(rows)

	apps, err := repo.ListForOpportunity(context.Background(), "o1")
	require.NoError(t, err)
	require.Len(t, apps, 1)
	require.NotNil(t, apps[0].StudentName)
	assert.Equal(t, "Ana", *apps[0].StudentName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationCountForPoster(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	rows := sqlmock.NewRows([]string{"total_applications", "recent_applications"}).AddRow(12, 3)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE o.posted_by = $1")).
		WithArgs("icm-1", sqlmock.AnyArg()).
		WillReturnRows(rows)

	total, recent, err := repo.CountForPoster(context.Background(), "icm-1", time.Now().AddDate(0, 0, -7))
	require.NoError(t, err)
	assert.Equal(t, 12, total)
	assert.Equal(t, 3, recent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationUpdateStatusRecordsReviewer(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	notes := "strong fit"
	mock.ExpectExec(regexp.QuoteMeta("SET status = $2, reviewed_by = $3, reviewed_at = $4, review_notes = $5")).
		WithArgs("app-1", string(models.ApplicationApproved), "icm-1", sqlmock.AnyArg(), &notes).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateStatus(context.Background(), "app-1", models.ApplicationApproved, "icm-1", &notes))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationWithdrawOnlyPending(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SET status = 'withdrawn', updated_at = $3 WHERE id = $1 AND student_id = $2 AND status = 'pending'")).
		WithArgs("app-1", "s1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("app-1"))

	require.NoError(t, repo.Withdraw(context.Background(), "app-1", "s1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationWithdrawNotPending(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	mock.ExpectQuery("SET status = 'withdrawn'").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	err := repo.Withdraw(context.Background(), "app-1", "s1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
