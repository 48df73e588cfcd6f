package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/trustteams/trustteams-api/internal/mailer"
	"github.com/trustteams/trustteams-api/internal/models"
	appErrors "github.com/trustteams/trustteams-api/pkg/errors"
)

const verificationTokenTTL = 24 * time.Hour

type accountUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByVerificationToken(ctx context.Context, token string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	UpdateLastLogin(ctx context.Context, id string, ts time.Time) error
	SetVerificationToken(ctx context.Context, id, token string, expires time.Time) error
	MarkVerified(ctx context.Context, id string) error
	CountByRole(ctx context.Context, universityID string, role models.UserRole) (models.RoleCounts, error)
}

type accountRegistrationRepository interface {
	CreateWithUser(ctx context.Context, user *models.User, req *models.RegistrationRequest) error
}

type accountUniversityRepository interface {
	FindByID(ctx context.Context, id string) (*models.University, error)
	FindByDomain(ctx context.Context, domain string) (*models.University, error)
	CreateWithAdmin(ctx context.Context, u *models.University, admin *models.User) error
}

// AccountService provides registration, login, verification, and profile use
// cases.
type AccountService struct {
	users           accountUserRepository
	registrations   accountRegistrationRepository
	universities    accountUniversityRepository
	mail            mailer.Mailer
	validator       *validator.Validate
	logger          *zap.Logger
	frontendBaseURL string
}

// NewAccountService constructs an AccountService instance.
func NewAccountService(
	users accountUserRepository,
	registrations accountRegistrationRepository,
	universities accountUniversityRepository,
	mail mailer.Mailer,
	validate *validator.Validate,
	logger *zap.Logger,
	frontendBaseURL string,
) *AccountService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AccountService{
		users:           users,
		registrations:   registrations,
		universities:    universities,
		mail:            mail,
		validator:       validate,
		logger:          logger,
		frontendBaseURL: strings.TrimRight(frontendBaseURL, "/"),
	}
}

// Signup registers a new account. Students and academic leaders start
// inactive with a pending registration request; a university admin signup
// creates the institution record when one does not exist yet. Everyone gets
// a verification email.
func (s *AccountService) Signup(ctx context.Context, req models.SignupRequest) (*models.AuthResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid signup payload")
	}
	name := req.DisplayName()
	if name == "" {
		name = strings.SplitN(req.Email, "@", 2)[0]
	}

	if _, err := s.users.FindByEmail(ctx, req.Email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email is already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	token, err := generateToken()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create verification token")
	}
	expires := time.Now().UTC().Add(verificationTokenTTL)

	role := models.DeriveRole(req.Role, req.UserType)
	user := &models.User{
		Name:                name,
		Email:               strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash:        string(hash),
		Role:                role,
		VerificationToken:   &token,
		VerificationExpires: &expires,
	}
	if req.InstituteName != "" {
		user.InstituteName = &req.InstituteName
	}

	message := "Account created. Please verify your email."
	switch {
	case role.RequiresApproval():
		user.Active = false
		user.ApprovalStatus = models.ApprovalPending
		university, err := s.admittingUniversity(ctx, req)
		if err != nil {
			return nil, err
		}
		user.UniversityID = &university.ID

		request := &models.RegistrationRequest{
			UniversityID:  &university.ID,
			InstituteName: &req.InstituteName,
			Role:          role,
			Status:        models.ApprovalPending,
		}
		if err := s.registrations.CreateWithUser(ctx, user, request); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create account")
		}
		message = "Account created. Verify your email; your university will review your registration."

	case role == models.RoleUniversityAdmin:
		user.Active = true
		user.ApprovalStatus = models.ApprovalApproved
		if err := s.signupUniversityAdmin(ctx, user, req); err != nil {
			return nil, err
		}

	default:
		user.Active = true
		user.ApprovalStatus = models.ApprovalApproved
		if err := s.users.Create(ctx, user); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create account")
		}
	}

	// Best effort: a transport failure must not roll back the account.
	if err := s.mail.SendVerification(user.Email, user.Name, s.verificationLink(token)); err != nil {
		s.logger.Warn("failed to send verification email", zap.String("email", user.Email), zap.Error(err))
	}

	info := user.Info()
	return &models.AuthResult{User: info, Message: message}, nil
}

// admittingUniversity enforces the registration gate for students and
// academic leaders: the payload must name an existing university with at
// least one approved administrator, plus an institute name.
func (s *AccountService) admittingUniversity(ctx context.Context, req models.SignupRequest) (*models.University, error) {
	if req.UniversityID == "" || req.InstituteName == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "universityId and instituteName are required for this role")
	}

	university, err := s.universities.FindByID(ctx, req.UniversityID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "university not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up university")
	}

	admins, err := s.users.CountByRole(ctx, university.ID, models.RoleUniversityAdmin)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check university administrators")
	}
	if admins.Approved == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "university has no approved administrator yet")
	}
	return university, nil
}

func (s *AccountService) signupUniversityAdmin(ctx context.Context, user *models.User, req models.SignupRequest) error {
	if req.UniversityID != "" {
		existing, err := s.universities.FindByID(ctx, req.UniversityID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "university not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up university")
		}
		return s.joinAsAdmin(ctx, user, existing)
	}

	domain := user.EmailDomain()
	existing, err := s.universities.FindByDomain(ctx, domain)
	if err == nil {
		return s.joinAsAdmin(ctx, user, existing)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up university")
	}

	name := req.InstituteName
	if name == "" {
		name = domain
	}
	university := &models.University{Name: name, Domain: domain}
	if err := s.universities.CreateWithAdmin(ctx, university, user); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create university")
	}
	return nil
}

// joinAsAdmin attaches the signup to an existing institution. An institution
// holds at most one university admin.
func (s *AccountService) joinAsAdmin(ctx context.Context, user *models.User, university *models.University) error {
	admins, err := s.users.CountByRole(ctx, university.ID, models.RoleUniversityAdmin)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check university administrators")
	}
	if admins.Total > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "university already has an administrator")
	}

	user.UniversityID = &university.ID
	if err := s.users.Create(ctx, user); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create account")
	}
	return nil
}

// Login authenticates by email and password. Account-state failures are
// reported in a fixed order so the client can branch: bad credentials first,
// then unverified email, then approval state, then deactivation.
func (s *AccountService) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
	}

	if !user.EmailVerified {
		return nil, appErrors.Clone(appErrors.ErrVerificationRequired, "please verify your email before logging in")
	}

	if user.Role.RequiresApproval() {
		switch user.ApprovalStatus {
		case models.ApprovalPending:
			return nil, appErrors.Clone(appErrors.ErrApprovalPending, "your registration is awaiting university approval")
		case models.ApprovalRejected:
			return nil, appErrors.Clone(appErrors.ErrApprovalRejected, "your registration was rejected by the university")
		}
	}

	if !user.Active {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "account is deactivated")
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID, time.Now().UTC()); err != nil {
		s.logger.Warn("failed to update last login", zap.Error(err))
	}

	return &models.AuthResult{User: user.Info()}, nil
}

// VerifyEmail consumes a verification token and activates the email.
func (s *AccountService) VerifyEmail(ctx context.Context, token string) (*models.UserInfo, error) {
	if token == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidToken, "verification token is required")
	}

	user, err := s.users.FindByVerificationToken(ctx, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Some clients submit the address itself. When that account is
			// already verified, answer as verified instead of failing.
			if strings.Contains(token, "@") {
				if byEmail, ferr := s.users.FindByEmail(ctx, strings.ToLower(token)); ferr == nil && byEmail.EmailVerified {
					info := byEmail.Info()
					return &info, nil
				}
			}
			return nil, appErrors.Clone(appErrors.ErrInvalidToken, "verification token is invalid")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up token")
	}

	if user.EmailVerified {
		return s.refreshVerification(ctx, user)
	}
	if user.VerificationExpires == nil || time.Now().UTC().After(*user.VerificationExpires) {
		return nil, appErrors.Clone(appErrors.ErrTokenExpired, "Verification token has expired. Please request a new one.")
	}

	if err := s.users.MarkVerified(ctx, user.ID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify email")
	}

	if err := s.mail.SendWelcome(user.Email, user.Name); err != nil {
		s.logger.Warn("failed to send welcome email", zap.String("email", user.Email), zap.Error(err))
	}

	user.EmailVerified = true
	info := user.Info()
	return &info, nil
}

// refreshVerification handles a verified account re-submitting a token:
// rotate the token and resend the mail rather than erroring.
func (s *AccountService) refreshVerification(ctx context.Context, user *models.User) (*models.UserInfo, error) {
	token, err := generateToken()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create verification token")
	}
	expires := time.Now().UTC().Add(verificationTokenTTL)
	if err := s.users.SetVerificationToken(ctx, user.ID, token, expires); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store verification token")
	}

	if err := s.mail.SendVerificationResend(user.Email, user.Name, s.verificationLink(token)); err != nil {
		s.logger.Warn("failed to resend verification email", zap.String("email", user.Email), zap.Error(err))
	}

	info := user.Info()
	return &info, nil
}

// ResendVerification issues a fresh token and sends a new verification email.
// Delivery is the deliverable here, so a transport failure is the caller's
// error.
func (s *AccountService) ResendVerification(ctx context.Context, req models.ResendVerificationRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid resend payload")
	}

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "no account with that email")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	if user.EmailVerified {
		return appErrors.Clone(appErrors.ErrAlreadyVerified, "email is already verified")
	}

	token, err := generateToken()
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create verification token")
	}
	expires := time.Now().UTC().Add(verificationTokenTTL)
	if err := s.users.SetVerificationToken(ctx, user.ID, token, expires); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store verification token")
	}

	if err := s.mail.SendVerificationResend(user.Email, user.Name, s.verificationLink(token)); err != nil {
		return appErrors.Wrap(err, appErrors.ErrMailDelivery.Code, appErrors.ErrMailDelivery.Status, "failed to send verification email")
	}
	return nil
}

// Me returns the caller's account projection.
func (s *AccountService) Me(ctx context.Context, userID string) (*models.UserInfo, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	info := user.Info()
	return &info, nil
}

// UpdateProfile applies a partial account update. Fails with NoChanges when
// nothing differs from the stored values.
func (s *AccountService) UpdateProfile(ctx context.Context, userID string, req models.UpdateProfileRequest) (*models.UserInfo, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	changed := false

	if req.Name != nil && *req.Name != "" && *req.Name != user.Name {
		user.Name = *req.Name
		changed = true
	}

	if req.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		if email != "" && email != user.Email {
			if _, err := s.users.FindByEmail(ctx, email); err == nil {
				return nil, appErrors.Clone(appErrors.ErrConflict, "email is already registered")
			} else if !errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
			}
			user.Email = email
			changed = true
		}
	}

	if req.InstituteName != nil && (user.InstituteName == nil || *req.InstituteName != *user.InstituteName) {
		user.InstituteName = req.InstituteName
		changed = true
	}

	if req.NewPassword != nil {
		if req.CurrentPassword == nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "current password is required to change password")
		}
		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(*req.CurrentPassword)); err != nil {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "current password does not match")
		}
		if len(*req.NewPassword) < 6 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "new password must be at least 6 characters")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.NewPassword), bcrypt.DefaultCost)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
		}
		user.PasswordHash = string(hash)
		changed = true
	}

	if !changed {
		return nil, appErrors.Clone(appErrors.ErrNoChanges, "nothing to update")
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update profile")
	}

	info := user.Info()
	return &info, nil
}

func (s *AccountService) verificationLink(token string) string {
	return fmt.Sprintf("%s/verify-email/%s", s.frontendBaseURL, token)
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
