package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trustteams/trustteams-api/internal/models"
	appErrors "github.com/trustteams/trustteams-api/pkg/errors"
)

type mockUniRepo struct {
	byID    map[string]*models.University
	listed  []models.University
	created []*models.University
}

func (m *mockUniRepo) FindByID(ctx context.Context, id string) (*models.University, error) {
	if u, ok := m.byID[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUniRepo) List(ctx context.Context) ([]models.University, error) {
	return m.listed, nil
}

func (m *mockUniRepo) Create(ctx context.Context, u *models.University) error {
	m.created = append(m.created, u)
	return nil
}

type mockUniUsers struct {
	byID       map[string]*models.User
	members    []models.User
	counts     map[models.UserRole]models.RoleCounts
	updated    []*models.User
	deleted    []string
	deleteErr  error
	lastRole   models.UserRole
	lastStatus string
}

func (m *mockUniUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.byID[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUniUsers) Update(ctx context.Context, user *models.User) error {
	m.updated = append(m.updated, user)
	return nil
}

func (m *mockUniUsers) ListByUniversityRole(ctx context.Context, universityID string, role models.UserRole, status string) ([]models.User, error) {
	m.lastRole = role
	m.lastStatus = status
	return m.members, nil
}

func (m *mockUniUsers) CountByRole(ctx context.Context, universityID string, role models.UserRole) (models.RoleCounts, error) {
	return m.counts[role], nil
}

func (m *mockUniUsers) DeleteCascade(ctx context.Context, id string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deleted = append(m.deleted, id)
	return nil
}

type mockUniRegistrations struct {
	byID      map[string]*models.RegistrationRequest
	listed    []models.RegistrationRequest
	decisions []models.ApprovalStatus
	decideErr error
}

func (m *mockUniRegistrations) FindByID(ctx context.Context, id string) (*models.RegistrationRequest, error) {
	if r, ok := m.byID[id]; ok {
		return r, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUniRegistrations) ListForUniversity(ctx context.Context, universityID, status string) ([]models.RegistrationRequest, error) {
	return m.listed, nil
}

func (m *mockUniRegistrations) Decide(ctx context.Context, requestID, reviewerID string, status models.ApprovalStatus, note *string) error {
	if m.decideErr != nil {
		return m.decideErr
	}
	m.decisions = append(m.decisions, status)
	if r, ok := m.byID[requestID]; ok {
		r.Status = status
		r.ReviewedBy = &reviewerID
	}
	return nil
}

func universityFixture() (*mockUniRepo, *mockUniUsers, *mockUniRegistrations, *models.User) {
	uniID := "uni-1"
	admin := &models.User{ID: "ua-1", Role: models.RoleUniversityAdmin, UniversityID: &uniID}
	unis := &mockUniRepo{byID: map[string]*models.University{uniID: {ID: uniID, Name: "Test U", Domain: "uni.edu"}}}
	users := &mockUniUsers{byID: map[string]*models.User{admin.ID: admin}, counts: map[models.UserRole]models.RoleCounts{}}
	regs := &mockUniRegistrations{byID: map[string]*models.RegistrationRequest{}}
	return unis, users, regs, admin
}

func newUniversityService(unis *mockUniRepo, users *mockUniUsers, regs *mockUniRegistrations) *UniversityService {
	return NewUniversityService(unis, users, regs, validator.New(), zap.NewNop())
}

func TestCreateUniversityAdminOnly(t *testing.T) {
	unis, users, regs, _ := universityFixture()
	platformAdmin := &models.User{ID: "root", Role: models.RoleAdmin}
	users.byID[platformAdmin.ID] = platformAdmin
	svc := newUniversityService(unis, users, regs)

	u, err := svc.Create(context.Background(), platformAdmin.ID, models.CreateUniversityRequest{Name: "New U", Domain: "new.edu"})
	require.NoError(t, err)
	assert.Equal(t, "New U", u.Name)
	require.Len(t, unis.created, 1)

	// A university admin is not a platform admin.
	_, err = svc.Create(context.Background(), "ua-1", models.CreateUniversityRequest{Name: "Another", Domain: "another.edu"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestStatsCountsBothRoles(t *testing.T) {
	unis, users, regs, admin := universityFixture()
	users.counts[models.RoleStudent] = models.RoleCounts{Total: 10, Approved: 7, Pending: 2, Rejected: 1}
	users.counts[models.RoleAcademicLeader] = models.RoleCounts{Total: 3, Approved: 3}
	svc := newUniversityService(unis, users, regs)

	stats, err := svc.Stats(context.Background(), admin.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, stats.Students.Total)
	assert.Equal(t, 2, stats.Students.Pending)
	assert.Equal(t, 3, stats.AcademicLeaders.Approved)
}

func TestDecideApprovesRequest(t *testing.T) {
	unis, users, regs, admin := universityFixture()
	regs.byID["req-1"] = &models.RegistrationRequest{ID: "req-1", UserID: "s1", UniversityID: admin.UniversityID, Status: models.ApprovalPending}
	svc := newUniversityService(unis, users, regs)

	decided, err := svc.Decide(context.Background(), "req-1", admin.ID, models.DecideRegistrationRequest{Approve: true})
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalApproved, decided.Status)
	require.NotNil(t, decided.ReviewedBy)
	assert.Equal(t, admin.ID, *decided.ReviewedBy)
	assert.Equal(t, []models.ApprovalStatus{models.ApprovalApproved}, regs.decisions)
}

func TestDecideRejectsWithNote(t *testing.T) {
	unis, users, regs, admin := universityFixture()
	regs.byID["req-1"] = &models.RegistrationRequest{ID: "req-1", UserID: "s1", UniversityID: admin.UniversityID, Status: models.ApprovalPending}
	svc := newUniversityService(unis, users, regs)

	note := "missing enrollment proof"
	decided, err := svc.Decide(context.Background(), "req-1", admin.ID, models.DecideRegistrationRequest{Approve: false, Note: &note})
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalRejected, decided.Status)
}

func TestDecideAlreadyDecided(t *testing.T) {
	unis, users, regs, admin := universityFixture()
	regs.byID["req-1"] = &models.RegistrationRequest{ID: "req-1", UniversityID: admin.UniversityID, Status: models.ApprovalApproved}
	svc := newUniversityService(unis, users, regs)

	_, err := svc.Decide(context.Background(), "req-1", admin.ID, models.DecideRegistrationRequest{Approve: false})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidStatus.Code, appErrors.FromError(err).Code)
	assert.Empty(t, regs.decisions)
}

func TestDecideForeignUniversity(t *testing.T) {
	unis, users, regs, admin := universityFixture()
	otherUni := "uni-2"
	regs.byID["req-1"] = &models.RegistrationRequest{ID: "req-1", UniversityID: &otherUni, Status: models.ApprovalPending}
	svc := newUniversityService(unis, users, regs)

	_, err := svc.Decide(context.Background(), "req-1", admin.ID, models.DecideRegistrationRequest{Approve: true})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestMembersRoleGate(t *testing.T) {
	unis, users, regs, admin := universityFixture()
	users.members = []models.User{{ID: "s1"}}
	svc := newUniversityService(unis, users, regs)

	got, err := svc.Members(context.Background(), admin.ID, models.RoleStudent, "approved")
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, models.RoleStudent, users.lastRole)
	assert.Equal(t, "approved", users.lastStatus)

	_, err = svc.Members(context.Background(), admin.ID, models.RoleICM, "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestDeleteMemberGuards(t *testing.T) {
	unis, users, regs, admin := universityFixture()
	uniID := *admin.UniversityID
	student := &models.User{ID: "s1", Role: models.RoleStudent, UniversityID: &uniID}
	peer := &models.User{ID: "ua-2", Role: models.RoleUniversityAdmin, UniversityID: &uniID}
	users.byID[student.ID] = student
	users.byID[peer.ID] = peer
	svc := newUniversityService(unis, users, regs)

	// Not yourself.
	err := svc.DeleteMember(context.Background(), admin.ID, admin.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	// Not a fellow admin.
	err = svc.DeleteMember(context.Background(), admin.ID, peer.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	// A student of the same university is fair game.
	require.NoError(t, svc.DeleteMember(context.Background(), admin.ID, student.ID))
	assert.Equal(t, []string{"s1"}, users.deleted)
}

func TestDeleteMemberForeignUniversity(t *testing.T) {
	unis, users, regs, admin := universityFixture()
	otherUni := "uni-2"
	outsider := &models.User{ID: "s9", Role: models.RoleStudent, UniversityID: &otherUni}
	users.byID[outsider.ID] = outsider
	svc := newUniversityService(unis, users, regs)

	err := svc.DeleteMember(context.Background(), admin.ID, outsider.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Empty(t, users.deleted)
}

func TestUpdateMemberRename(t *testing.T) {
	unis, users, regs, admin := universityFixture()
	uniID := *admin.UniversityID
	student := &models.User{ID: "s1", Name: "Old Name", Role: models.RoleStudent, UniversityID: &uniID}
	users.byID[student.ID] = student
	svc := newUniversityService(unis, users, regs)

	name := "New Name"
	info, err := svc.UpdateMember(context.Background(), admin.ID, student.ID, models.UpdateProfileRequest{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "New Name", info.Name)
	require.Len(t, users.updated, 1)

	// Same payload again is a no-op.
	_, err = svc.UpdateMember(context.Background(), admin.ID, student.ID, models.UpdateProfileRequest{Name: &name})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNoChanges.Code, appErrors.FromError(err).Code)
}

func TestUniversityAdminCallerChecks(t *testing.T) {
	unis, users, regs, _ := universityFixture()
	noUni := &models.User{ID: "ua-x", Role: models.RoleUniversityAdmin}
	student := &models.User{ID: "s1", Role: models.RoleStudent}
	users.byID[noUni.ID] = noUni
	users.byID[student.ID] = student
	svc := newUniversityService(unis, users, regs)

	_, err := svc.Stats(context.Background(), student.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.Stats(context.Background(), noUni.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.Stats(context.Background(), "ghost")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
