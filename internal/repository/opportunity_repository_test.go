package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustteams/trustteams-api/internal/models"
)

func opportunityRows(now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "title", "type", "description", "requirements", "stipend", "duration",
		"location", "status", "closing_date", "posted_by", "contact_email",
		"contact_phone", "deleted_at", "created_at", "updated_at", "poster_name",
	}).AddRow("o1", "Backend Intern", string(models.OpportunityInternship), "Platform work",
		nil, nil, nil, nil, string(models.OpportunityOpen), nil, "icm-1", nil, nil, nil, now, now, "Recruiter")
}

func TestOpportunityFindByID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewOpportunityRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE o.id = $1 AND o.deleted_at IS NULL LIMIT 1")).
		WithArgs("o1").
		WillReturnRows(opportunityRows(time.Now()))

	opp, err := repo.FindByID(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, "Backend Intern", opp.Title)
	require.NotNil(t, opp.PosterName)
	assert.Equal(t, "Recruiter", *opp.PosterName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpportunityListWithFilters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewOpportunityRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("o.type = $2 AND o.status = $3 ORDER BY o.title ASC LIMIT 5 OFFSET 0")).
		WithArgs("%intern%", "internship", "open").
		WillReturnRows(opportunityRows(time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs("%intern%", "internship", "open").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	items, total, err := repo.List(context.Background(), models.OpportunityFilter{
		Search:  "Intern",
		Type:    "internship",
		Status:  "open",
		SortBy:  "title",
		SortDir: "asc",
		Limit:   5,
	})
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Unknown sort columns fall back to created_at DESC rather than reaching the
// database.
func TestOpportunityListSortAllowList(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewOpportunityRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY o.created_at DESC LIMIT 10 OFFSET 0")).
		WillReturnRows(opportunityRows(time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	_, _, err := repo.List(context.Background(), models.OpportunityFilter{
		SortBy:  "posted_by; DROP TABLE opportunities",
		SortDir: "sideways",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpportunityCountForPoster(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewOpportunityRepository(db)

	rows := sqlmock.NewRows([]string{"total_opportunities", "open_opportunities"}).AddRow(5, 2)
	mock.ExpectQuery("COUNT\\(\\*\\) FILTER").
		WithArgs("icm-1").
		WillReturnRows(rows)

	total, open, err := repo.CountForPoster(context.Background(), "icm-1")
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Equal(t, 2, open)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpportunityCreateWritesAudit(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewOpportunityRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO opportunities").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO opportunity_audit").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), string(models.AuditCreate), sqlmock.AnyArg(), nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	opp := &models.Opportunity{Title: "Backend Intern", Type: models.OpportunityInternship, Description: "Platform work", PostedBy: "icm-1"}
	require.NoError(t, repo.Create(context.Background(), opp))
	assert.NotEmpty(t, opp.ID)
	assert.Equal(t, models.OpportunityOpen, opp.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpportunitySoftDeleteWritesAudit(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewOpportunityRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL")).
		WithArgs("o1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO opportunity_audit").
		WithArgs(sqlmock.AnyArg(), "o1", string(models.AuditDelete), sqlmock.AnyArg(), sqlmock.AnyArg(), nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	opp := &models.Opportunity{ID: "o1", Title: "Backend Intern"}
	require.NoError(t, repo.SoftDelete(context.Background(), opp, "admin-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpportunityCloseExpired(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewOpportunityRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = 'open' AND deleted_at IS NULL AND closing_date IS NOT NULL AND closing_date < $1")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("o1").AddRow("o2"))
	mock.ExpectExec("INSERT INTO opportunity_audit").
		WithArgs(sqlmock.AnyArg(), "o1", string(models.AuditAutoClose), nil, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO opportunity_audit").
		WithArgs(sqlmock.AnyArg(), "o2", string(models.AuditAutoClose), nil, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ids, err := repo.CloseExpired(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, []string{"o1", "o2"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpportunityCloseExpiredNothingToDo(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewOpportunityRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("RETURNING id").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	ids, err := repo.CloseExpired(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpportunityListAudit(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewOpportunityRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "opportunity_id", "action", "changed_by", "old_values", "new_values", "created_at", "changed_by_name"}).
		AddRow("a2", "o1", string(models.AuditAutoClose), nil, []byte(`{"status":"open"}`), []byte(`{"status":"closed"}`), now, nil).
		AddRow("a1", "o1", string(models.AuditCreate), "icm-1", nil, []byte(`{"title":"Backend Intern"}`), now.Add(-time.Hour), "Recruiter")
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY a.created_at DESC")).
		WithArgs("o1").
		WillReturnRows(rows)

	entries, err := repo.ListAudit(context.Background(), "o1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.AuditAutoClose, entries[0].Action)
	assert.Nil(t, entries[0].ChangedBy)
	require.NotNil(t, entries[1].ChangedByName)
	assert.Equal(t, "Recruiter", *entries[1].ChangedByName)
	assert.NoError(t, mock.ExpectationsWereMet())
}
