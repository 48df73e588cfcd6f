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

const testOppID = "3e2f9a54-1f6c-4a8e-9a2b-7c1d5e8f0a42"

type mockApplications struct {
	byID          map[string]*models.Application
	existing      map[string]bool
	created       []*models.Application
	statusUpdates []models.ApplicationStatus
	lastReviewer  string
	withdrawn     []string
	withdrawErr   error
}

func (m *mockApplications) FindByID(ctx context.Context, id string) (*models.Application, error) {
	if app, ok := m.byID[id]; ok {
		return app, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockApplications) Exists(ctx context.Context, opportunityID, studentID string) (bool, error) {
	return m.existing[opportunityID+"/"+studentID], nil
}

func (m *mockApplications) Create(ctx context.Context, app *models.Application) error {
	m.created = append(m.created, app)
	return nil
}

func (m *mockApplications) ListForOpportunity(ctx context.Context, opportunityID string) ([]models.Application, error) {
	var out []models.Application
	for _, app := range m.byID {
		if app.OpportunityID == opportunityID {
			out = append(out, *app)
		}
	}
	return out, nil
}

func (m *mockApplications) ListForStudent(ctx context.Context, studentID string) ([]models.Application, error) {
	var out []models.Application
	for _, app := range m.byID {
		if app.StudentID == studentID {
			out = append(out, *app)
		}
	}
	return out, nil
}

func (m *mockApplications) UpdateStatus(ctx context.Context, id string, status models.ApplicationStatus, reviewerID string, notes *string) error {
	m.statusUpdates = append(m.statusUpdates, status)
	m.lastReviewer = reviewerID
	return nil
}

func (m *mockApplications) Withdraw(ctx context.Context, id, studentID string) error {
	if m.withdrawErr != nil {
		return m.withdrawErr
	}
	m.withdrawn = append(m.withdrawn, id)
	return nil
}

type mockAppOpportunities struct {
	byID map[string]*models.Opportunity
}

func (m *mockAppOpportunities) FindByID(ctx context.Context, id string) (*models.Opportunity, error) {
	if opp, ok := m.byID[id]; ok {
		return opp, nil
	}
	return nil, sql.ErrNoRows
}

type mockAppUsers struct {
	byID map[string]*models.User
}

func (m *mockAppUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.byID[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func newApplicationService(apps *mockApplications, opps *mockAppOpportunities, users *mockAppUsers, mail *mockMailer) *ApplicationService {
	return NewApplicationService(apps, opps, users, mail, validator.New(), zap.NewNop())
}

func openOpportunity() *models.Opportunity {
	return &models.Opportunity{ID: testOppID, Title: "Backend Intern", Status: models.OpportunityOpen, PostedBy: "icm-1"}
}

func TestApplySuccess(t *testing.T) {
	student := &models.User{ID: "s1", Name: "Ana", Email: "ana@uni.edu", Role: models.RoleStudent}
	apps := &mockApplications{existing: map[string]bool{}}
	opps := &mockAppOpportunities{byID: map[string]*models.Opportunity{testOppID: openOpportunity()}}
	users := &mockAppUsers{byID: map[string]*models.User{student.ID: student}}
	mail := &mockMailer{}
	svc := newApplicationService(apps, opps, users, mail)

	app, err := svc.Apply(context.Background(), student.ID, models.ApplyRequest{OpportunityID: testOppID})
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationPending, app.Status)
	require.Len(t, apps.created, 1)
	assert.Equal(t, []string{"ana@uni.edu"}, mail.confirmations)
}

func TestApplyDuplicate(t *testing.T) {
	student := &models.User{ID: "s1", Email: "ana@uni.edu", Role: models.RoleStudent}
	apps := &mockApplications{existing: map[string]bool{testOppID + "/s1": true}}
	opps := &mockAppOpportunities{byID: map[string]*models.Opportunity{testOppID: openOpportunity()}}
	users := &mockAppUsers{byID: map[string]*models.User{student.ID: student}}
	svc := newApplicationService(apps, opps, users, &mockMailer{})

	_, err := svc.Apply(context.Background(), student.ID, models.ApplyRequest{OpportunityID: testOppID})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDuplicateApplication.Code, appErrors.FromError(err).Code)
	assert.Empty(t, apps.created)
}

func TestApplyClosedOpportunity(t *testing.T) {
	student := &models.User{ID: "s1", Role: models.RoleStudent}
	opp := openOpportunity()
	opp.Status = models.OpportunityClosed
	opps := &mockAppOpportunities{byID: map[string]*models.Opportunity{testOppID: opp}}
	users := &mockAppUsers{byID: map[string]*models.User{student.ID: student}}
	svc := newApplicationService(&mockApplications{existing: map[string]bool{}}, opps, users, &mockMailer{})

	_, err := svc.Apply(context.Background(), student.ID, models.ApplyRequest{OpportunityID: testOppID})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrOpportunityClosed.Code, appErrors.FromError(err).Code)
}

// An opportunity whose deadline has passed refuses applications even when the
// sweep has not flipped its status yet.
func TestApplyPastDeadline(t *testing.T) {
	student := &models.User{ID: "s1", Role: models.RoleStudent}
	past := time.Now().UTC().Add(-time.Minute)
	opp := openOpportunity()
	opp.ClosingDate = &past
	opps := &mockAppOpportunities{byID: map[string]*models.Opportunity{testOppID: opp}}
	users := &mockAppUsers{byID: map[string]*models.User{student.ID: student}}
	svc := newApplicationService(&mockApplications{existing: map[string]bool{}}, opps, users, &mockMailer{})

	_, err := svc.Apply(context.Background(), student.ID, models.ApplyRequest{OpportunityID: testOppID})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrOpportunityClosed.Code, appErrors.FromError(err).Code)
}

func TestApplyNonStudent(t *testing.T) {
	leader := &models.User{ID: "al-1", Role: models.RoleAcademicLeader}
	users := &mockAppUsers{byID: map[string]*models.User{leader.ID: leader}}
	opps := &mockAppOpportunities{byID: map[string]*models.Opportunity{testOppID: openOpportunity()}}
	svc := newApplicationService(&mockApplications{existing: map[string]bool{}}, opps, users, &mockMailer{})

	_, err := svc.Apply(context.Background(), leader.ID, models.ApplyRequest{OpportunityID: testOppID})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func reviewFixture() (*mockApplications, *mockAppOpportunities, *mockAppUsers) {
	uniID := "uni-1"
	apps := &mockApplications{byID: map[string]*models.Application{
		"app-1": {ID: "app-1", OpportunityID: testOppID, StudentID: "s1", Status: models.ApplicationPending},
	}}
	opps := &mockAppOpportunities{byID: map[string]*models.Opportunity{testOppID: openOpportunity()}}
	users := &mockAppUsers{byID: map[string]*models.User{
		"s1":    {ID: "s1", Name: "Ana", Email: "ana@uni.edu", Role: models.RoleStudent, UniversityID: &uniID},
		"icm-1": {ID: "icm-1", Name: "Recruiter", Email: "hr@corp.com", Role: models.RoleICM},
		"icm-2": {ID: "icm-2", Name: "Other", Email: "other@corp.com", Role: models.RoleICM},
		"al-1":  {ID: "al-1", Name: "Prof", Email: "prof@uni.edu", Role: models.RoleAcademicLeader, UniversityID: &uniID},
		"al-2":  {ID: "al-2", Name: "Elsewhere", Email: "prof@other.edu", Role: models.RoleAcademicLeader},
	}}
	return apps, opps, users
}

func TestUpdateStatusPosterApproves(t *testing.T) {
	apps, opps, users := reviewFixture()
	mail := &mockMailer{}
	svc := newApplicationService(apps, opps, users, mail)

	app, err := svc.UpdateStatus(context.Background(), "app-1", "icm-1", models.UpdateApplicationStatusRequest{Status: "approved"})
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationApproved, app.Status)
	require.NotNil(t, app.ReviewedBy)
	assert.Equal(t, "icm-1", *app.ReviewedBy)
	assert.Equal(t, "icm-1", apps.lastReviewer)
	assert.Equal(t, []string{"ana@uni.edu"}, mail.decisions)
	assert.True(t, mail.lastDecisionOK)
}

func TestUpdateStatusNonPosterManagerRejected(t *testing.T) {
	apps, opps, users := reviewFixture()
	svc := newApplicationService(apps, opps, users, &mockMailer{})

	_, err := svc.UpdateStatus(context.Background(), "app-1", "icm-2", models.UpdateApplicationStatusRequest{Status: "approved"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Empty(t, apps.statusUpdates)
}

func TestUpdateStatusLeaderSameUniversity(t *testing.T) {
	apps, opps, users := reviewFixture()
	mail := &mockMailer{}
	svc := newApplicationService(apps, opps, users, mail)

	app, err := svc.UpdateStatus(context.Background(), "app-1", "al-1", models.UpdateApplicationStatusRequest{Status: "rejected"})
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationRejected, app.Status)
	assert.False(t, mail.lastDecisionOK)
}

func TestUpdateStatusLeaderDifferentUniversity(t *testing.T) {
	apps, opps, users := reviewFixture()
	svc := newApplicationService(apps, opps, users, &mockMailer{})

	_, err := svc.UpdateStatus(context.Background(), "app-1", "al-2", models.UpdateApplicationStatusRequest{Status: "rejected"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestUpdateStatusAlreadyDecided(t *testing.T) {
	apps, opps, users := reviewFixture()
	apps.byID["app-1"].Status = models.ApplicationApproved
	svc := newApplicationService(apps, opps, users, &mockMailer{})

	_, err := svc.UpdateStatus(context.Background(), "app-1", "icm-1", models.UpdateApplicationStatusRequest{Status: "rejected"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidStatus.Code, appErrors.FromError(err).Code)
}

func TestUpdateStatusRejectsWithdrawnValue(t *testing.T) {
	apps, opps, users := reviewFixture()
	svc := newApplicationService(apps, opps, users, &mockMailer{})

	_, err := svc.UpdateStatus(context.Background(), "app-1", "icm-1", models.UpdateApplicationStatusRequest{Status: "withdrawn"})
	require.Error(t, err)
}

func TestWithdrawOwnPending(t *testing.T) {
	apps, opps, users := reviewFixture()
	svc := newApplicationService(apps, opps, users, &mockMailer{})

	require.NoError(t, svc.Withdraw(context.Background(), "app-1", "s1"))
	assert.Equal(t, []string{"app-1"}, apps.withdrawn)
}

func TestWithdrawSomeoneElses(t *testing.T) {
	apps, opps, users := reviewFixture()
	svc := newApplicationService(apps, opps, users, &mockMailer{})

	err := svc.Withdraw(context.Background(), "app-1", "s2")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestWithdrawDecidedApplication(t *testing.T) {
	apps, opps, users := reviewFixture()
	apps.byID["app-1"].Status = models.ApplicationRejected
	svc := newApplicationService(apps, opps, users, &mockMailer{})

	err := svc.Withdraw(context.Background(), "app-1", "s1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidStatus.Code, appErrors.FromError(err).Code)
}

func TestListForOpportunityRequiresPosterOrAdmin(t *testing.T) {
	apps, opps, users := reviewFixture()
	svc := newApplicationService(apps, opps, users, &mockMailer{})

	_, err := svc.ListForOpportunity(context.Background(), testOppID, "icm-2")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	got, err := svc.ListForOpportunity(context.Background(), testOppID, "icm-1")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestListForStudentSelfAndLeader(t *testing.T) {
	apps, opps, users := reviewFixture()
	svc := newApplicationService(apps, opps, users, &mockMailer{})

	got, err := svc.ListForStudent(context.Background(), "s1", "s1")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = svc.ListForStudent(context.Background(), "s1", "al-1")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = svc.ListForStudent(context.Background(), "s1", "al-2")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
