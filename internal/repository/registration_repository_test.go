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

func TestRegistrationCreateWithUserIsTransactional(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO users").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO registration_requests").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	user := &models.User{Name: "Ana", Email: "ana@uni.edu", PasswordHash: "hash", Role: models.RoleStudent}
	req := &models.RegistrationRequest{Role: models.RoleStudent}
	require.NoError(t, repo.CreateWithUser(context.Background(), user, req))
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, user.ID, req.UserID)
	assert.Equal(t, models.ApprovalPending, req.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationCreateWithUserRollsBack(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO users").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO registration_requests").WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	user := &models.User{Name: "Ana", Email: "ana@uni.edu", PasswordHash: "hash", Role: models.RoleStudent}
	err := repo.CreateWithUser(context.Background(), user, &models.RegistrationRequest{Role: models.RoleStudent})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationListForUniversityStatusFilter(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "user_id", "university_id", "institute_name", "role", "status", "note",
		"reviewed_by", "reviewed_at", "created_at", "user_name", "user_email",
	}).AddRow("rr-1", "s1", "uni-1", "CS Dept", string(models.RoleStudent), string(models.ApprovalPending),
		nil, nil, nil, now, "Ana", "ana@uni.edu")
	mock.ExpectQuery(regexp.QuoteMeta("WHERE rr.university_id = $1 AND rr.status = $2 ORDER BY rr.created_at DESC")).
		WithArgs("uni-1", "pending").
		WillReturnRows(rows)

	requests, err := repo.ListForUniversity(context.Background(), "uni-1", "pending")
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, "Ana", requests[0].UserName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationDecideApproveSyncsUser(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1 AND status = 'pending' RETURNING user_id")).
		WithArgs("rr-1", string(models.ApprovalApproved), nil, "admin-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("s1"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET approval_status = $2, is_active = $3")).
		WithArgs("s1", string(models.ApprovalApproved), true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Decide(context.Background(), "rr-1", "admin-1", models.ApprovalApproved, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationDecideRejectDeactivates(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	note := "incomplete transcript"
	mock.ExpectBegin()
	mock.ExpectQuery("RETURNING user_id").
		WithArgs("rr-1", string(models.ApprovalRejected), &note, "admin-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("s1"))
	mock.ExpectExec("UPDATE users SET approval_status").
		WithArgs("s1", string(models.ApprovalRejected), false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Decide(context.Background(), "rr-1", "admin-1", models.ApprovalRejected, &note))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationDecideAlreadyDecided(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("RETURNING user_id").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}))
	mock.ExpectRollback()

	err := repo.Decide(context.Background(), "rr-1", "admin-1", models.ApprovalApproved, nil)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
