package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trustteams/trustteams-api/internal/models"
	appErrors "github.com/trustteams/trustteams-api/pkg/errors"
)

type mockOpportunities struct {
	byID         map[string]*models.Opportunity
	listResult   []models.Opportunity
	listTotal    int
	created      []*models.Opportunity
	updated      []*models.Opportunity
	deleted      []string
	expiredIDs   []string
	sweeps       int
	auditEntries []models.OpportunityAudit
	createErr    error
}

func (m *mockOpportunities) FindByID(ctx context.Context, id string) (*models.Opportunity, error) {
	if opp, ok := m.byID[id]; ok {
		return opp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockOpportunities) List(ctx context.Context, filter models.OpportunityFilter) ([]models.Opportunity, int, error) {
	return m.listResult, m.listTotal, nil
}

func (m *mockOpportunities) Create(ctx context.Context, opp *models.Opportunity) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = append(m.created, opp)
	return nil
}

func (m *mockOpportunities) Update(ctx context.Context, before, after *models.Opportunity, changedBy string) error {
	m.updated = append(m.updated, after)
	return nil
}

func (m *mockOpportunities) SoftDelete(ctx context.Context, opp *models.Opportunity, changedBy string) error {
	m.deleted = append(m.deleted, opp.ID)
	return nil
}

func (m *mockOpportunities) CloseExpired(ctx context.Context, now time.Time) ([]string, error) {
	m.sweeps++
	for _, id := range m.expiredIDs {
		if opp, ok := m.byID[id]; ok {
			opp.Status = models.OpportunityClosed
		}
	}
	return m.expiredIDs, nil
}

func (m *mockOpportunities) ListAudit(ctx context.Context, opportunityID string) ([]models.OpportunityAudit, error) {
	return m.auditEntries, nil
}

type mockOppUsers struct {
	byID     map[string]*models.User
	students []models.User
}

func (m *mockOppUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.byID[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockOppUsers) ActiveVerifiedStudents(ctx context.Context) ([]models.User, error) {
	return m.students, nil
}

type mockAnnouncer struct {
	announced  []*models.Opportunity
	recipients []models.User
}

func (m *mockAnnouncer) Announce(opp *models.Opportunity, recipients []models.User) {
	m.announced = append(m.announced, opp)
	m.recipients = recipients
}

func newOpportunityService(repo *mockOpportunities, users *mockOppUsers, ann *mockAnnouncer) *OpportunityService {
	return NewOpportunityService(repo, users, ann, validator.New(), zap.NewNop())
}

func TestCreateOpportunityBroadcasts(t *testing.T) {
	poster := &models.User{ID: "icm-1", Role: models.RoleICM, Email: "hr@corp.com"}
	repo := &mockOpportunities{byID: map[string]*models.Opportunity{}}
	users := &mockOppUsers{
		byID:     map[string]*models.User{poster.ID: poster},
		students: []models.User{{ID: "s1", Email: "s1@uni.edu"}, {ID: "s2", Email: "s2@uni.edu"}},
	}
	ann := &mockAnnouncer{}
	svc := newOpportunityService(repo, users, ann)

	opp, err := svc.Create(context.Background(), poster.ID, models.CreateOpportunityRequest{
		Title:       "Backend Intern",
		Type:        "internship",
		Description: "Work on the platform team",
	})
	require.NoError(t, err)
	assert.Equal(t, models.OpportunityOpen, opp.Status)
	require.Len(t, repo.created, 1)
	require.Len(t, ann.announced, 1)
	assert.Len(t, ann.recipients, 2)
}

func TestCreateOpportunityRejectsStudents(t *testing.T) {
	student := &models.User{ID: "s1", Role: models.RoleStudent}
	users := &mockOppUsers{byID: map[string]*models.User{student.ID: student}}
	svc := newOpportunityService(&mockOpportunities{}, users, &mockAnnouncer{})

	_, err := svc.Create(context.Background(), student.ID, models.CreateOpportunityRequest{
		Title:       "Nope",
		Type:        "internship",
		Description: "Students cannot post",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestCreateOpportunityUnknownType(t *testing.T) {
	poster := &models.User{ID: "icm-1", Role: models.RoleICM}
	users := &mockOppUsers{byID: map[string]*models.User{poster.ID: poster}}
	svc := newOpportunityService(&mockOpportunities{}, users, &mockAnnouncer{})

	_, err := svc.Create(context.Background(), poster.ID, models.CreateOpportunityRequest{
		Title:       "Bad",
		Type:        "volunteering",
		Description: "Unknown type",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCreateOpportunityAcceptsBareDateDeadline(t *testing.T) {
	poster := &models.User{ID: "al-1", Role: models.RoleAcademicLeader}
	repo := &mockOpportunities{}
	users := &mockOppUsers{byID: map[string]*models.User{poster.ID: poster}}
	svc := newOpportunityService(repo, users, &mockAnnouncer{})

	deadline := "2030-06-01"
	opp, err := svc.Create(context.Background(), poster.ID, models.CreateOpportunityRequest{
		Title:       "Research Assistant",
		Type:        "research",
		Description: "Lab work",
		Deadline:    &deadline,
	})
	require.NoError(t, err)
	require.NotNil(t, opp.ClosingDate)
	assert.Equal(t, 2030, opp.ClosingDate.Year())
}

// A read must never observe a posting that is past its deadline but still
// open; the lookup triggers the sweep and reloads.
func TestGetClosesExpiredPosting(t *testing.T) {
	past := time.Now().UTC().Add(-time.Hour)
	opp := &models.Opportunity{ID: "o1", Status: models.OpportunityOpen, ClosingDate: &past}
	repo := &mockOpportunities{
		byID:       map[string]*models.Opportunity{"o1": opp},
		expiredIDs: []string{"o1"},
	}
	svc := newOpportunityService(repo, &mockOppUsers{}, &mockAnnouncer{})

	got, err := svc.Get(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, models.OpportunityClosed, got.Status)
	assert.Equal(t, 1, repo.sweeps)
}

func TestListRunsSweepFirst(t *testing.T) {
	repo := &mockOpportunities{listResult: []models.Opportunity{{ID: "o1"}}, listTotal: 1}
	svc := newOpportunityService(repo, &mockOppUsers{}, &mockAnnouncer{})

	items, pagination, err := svc.List(context.Background(), models.OpportunityFilter{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 1, pagination.Total)
	assert.Equal(t, 1, repo.sweeps)
}

func TestUpdateOpportunityPosterOnly(t *testing.T) {
	opp := &models.Opportunity{ID: "o1", PostedBy: "owner", Status: models.OpportunityOpen}
	intruder := &models.User{ID: "other", Role: models.RoleICM}
	repo := &mockOpportunities{byID: map[string]*models.Opportunity{"o1": opp}}
	users := &mockOppUsers{byID: map[string]*models.User{intruder.ID: intruder}}
	svc := newOpportunityService(repo, users, &mockAnnouncer{})

	_, err := svc.Update(context.Background(), "o1", intruder.ID, models.UpdateOpportunityRequest{
		Title:       "Hijacked",
		Type:        "job",
		Description: "Edited by a stranger",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.updated)
}

func TestUpdateOpportunityAdminOverride(t *testing.T) {
	opp := &models.Opportunity{ID: "o1", PostedBy: "owner", Status: models.OpportunityOpen}
	admin := &models.User{ID: "admin-1", Role: models.RoleAdmin}
	repo := &mockOpportunities{byID: map[string]*models.Opportunity{"o1": opp}}
	users := &mockOppUsers{byID: map[string]*models.User{admin.ID: admin}}
	svc := newOpportunityService(repo, users, &mockAnnouncer{})

	status := "closed"
	after, err := svc.Update(context.Background(), "o1", admin.ID, models.UpdateOpportunityRequest{
		Title:       "Updated",
		Type:        "job",
		Description: "Admin edit",
		Status:      &status,
	})
	require.NoError(t, err)
	assert.Equal(t, models.OpportunityClosed, after.Status)
	require.Len(t, repo.updated, 1)
}

func TestDeleteOpportunityRequiresAdmin(t *testing.T) {
	opp := &models.Opportunity{ID: "o1", PostedBy: "owner"}
	owner := &models.User{ID: "owner", Role: models.RoleICM}
	repo := &mockOpportunities{byID: map[string]*models.Opportunity{"o1": opp}}
	users := &mockOppUsers{byID: map[string]*models.User{owner.ID: owner}}
	svc := newOpportunityService(repo, users, &mockAnnouncer{})

	err := svc.Delete(context.Background(), "o1", owner.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.deleted)
}

func TestDeleteOpportunityAsAdmin(t *testing.T) {
	opp := &models.Opportunity{ID: "o1", PostedBy: "owner"}
	admin := &models.User{ID: "admin-1", Role: models.RoleAdmin}
	repo := &mockOpportunities{byID: map[string]*models.Opportunity{"o1": opp}}
	users := &mockOppUsers{byID: map[string]*models.User{admin.ID: admin}}
	svc := newOpportunityService(repo, users, &mockAnnouncer{})

	require.NoError(t, svc.Delete(context.Background(), "o1", admin.ID))
	assert.Equal(t, []string{"o1"}, repo.deleted)
}

func TestCloseExpiredReportsCount(t *testing.T) {
	repo := &mockOpportunities{expiredIDs: []string{"o1", "o2"}}
	svc := newOpportunityService(repo, &mockOppUsers{}, &mockAnnouncer{})

	n, err := svc.CloseExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Second sweep finds nothing and stays quiet.
	repo.expiredIDs = nil
	n, err = svc.CloseExpired(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAuditUnknownOpportunity(t *testing.T) {
	svc := newOpportunityService(&mockOpportunities{}, &mockOppUsers{}, &mockAnnouncer{})

	_, err := svc.Audit(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
