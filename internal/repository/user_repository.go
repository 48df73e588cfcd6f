package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/trustteams/trustteams-api/internal/models"
)

const userColumns = `id, name, email, password_hash, role, is_active, email_verified, approval_status, university_id, institute_name, email_verification_token, email_verification_expires, last_login, created_at, updated_at`

// UserRepository provides database access for user accounts.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByEmail returns a user by email address.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE LOWER(email) = LOWER($1) LIMIT 1`, userColumns)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &user, nil
}

// FindByID returns a user by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1 LIMIT 1`, userColumns)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// FindByVerificationToken returns the user holding an outstanding email
// verification token.
func (r *UserRepository) FindByVerificationToken(ctx context.Context, token string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE email_verification_token = $1 LIMIT 1`, userColumns)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, token); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by verification token: %w", err)
	}
	return &user, nil
}

// Create inserts a new user record.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	const query = `INSERT INTO users (id, name, email, password_hash, role, is_active, email_verified, approval_status, university_id, institute_name, email_verification_token, email_verification_expires, created_at, updated_at)
		VALUES (:id, :name, :email, :password_hash, :role, :is_active, :email_verified, :approval_status, :university_id, :institute_name, :email_verification_token, :email_verification_expires, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// Update updates mutable account fields.
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now().UTC()
	const query = `UPDATE users SET name = :name, email = :email, password_hash = :password_hash, institute_name = :institute_name, university_id = :university_id, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

// UpdateLastLogin updates the last_login timestamp for a user.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	const query = `UPDATE users SET last_login = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, ts, ts); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// SetVerificationToken stores a fresh email verification token and expiry.
func (r *UserRepository) SetVerificationToken(ctx context.Context, id, token string, expires time.Time) error {
	const query = `UPDATE users SET email_verification_token = $2, email_verification_expires = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, token, expires, time.Now().UTC()); err != nil {
		return fmt.Errorf("set verification token: %w", err)
	}
	return nil
}

// MarkVerified flips email_verified and clears the outstanding token.
func (r *UserRepository) MarkVerified(ctx context.Context, id string) error {
	const query = `UPDATE users SET email_verified = TRUE, email_verification_token = NULL, email_verification_expires = NULL, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark user verified: %w", err)
	}
	return nil
}

// ListByUniversityRole returns users of one role within a university,
// optionally narrowed to an approval status.
func (r *UserRepository) ListByUniversityRole(ctx context.Context, universityID string, role models.UserRole, status string) ([]models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE university_id = $1 AND role = $2`, userColumns)
	args := []interface{}{universityID, role}
	if status != "" {
		query += ` AND approval_status = $3`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, fmt.Errorf("list users by university role: %w", err)
	}
	return users, nil
}

// ListByEmailDomain returns users of one role whose email domain matches.
// Fallback heuristic for institutions with no explicit affiliation rows.
func (r *UserRepository) ListByEmailDomain(ctx context.Context, domain string, role models.UserRole) ([]models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE role = $1 AND LOWER(email) LIKE $2 ORDER BY created_at DESC`, userColumns)
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query, role, "%@"+strings.ToLower(domain)); err != nil {
		return nil, fmt.Errorf("list users by email domain: %w", err)
	}
	return users, nil
}

// CountByRole aggregates approval-status counts for one role within a
// university.
func (r *UserRepository) CountByRole(ctx context.Context, universityID string, role models.UserRole) (models.RoleCounts, error) {
	const query = `SELECT
		COUNT(*) AS total,
		COUNT(*) FILTER (WHERE approval_status = 'approved') AS approved,
		COUNT(*) FILTER (WHERE approval_status = 'pending') AS pending,
		COUNT(*) FILTER (WHERE approval_status = 'rejected') AS rejected
		FROM users WHERE university_id = $1 AND role = $2`
	var counts models.RoleCounts
	if err := r.db.GetContext(ctx, &counts, query, universityID, role); err != nil {
		return models.RoleCounts{}, fmt.Errorf("count users by role: %w", err)
	}
	return counts, nil
}

// ActiveVerifiedStudents returns the broadcast audience for opportunity
// notifications.
func (r *UserRepository) ActiveVerifiedStudents(ctx context.Context) ([]models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE role = 'student' AND is_active = TRUE AND email_verified = TRUE`, userColumns)
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query); err != nil {
		return nil, fmt.Errorf("list broadcast audience: %w", err)
	}
	return users, nil
}

// DeleteCascade hard-deletes a user together with their registration
// requests, in one transaction.
func (r *UserRepository) DeleteCascade(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete user: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM registration_requests WHERE user_id = $1`, id); err != nil {
		return fmt.Errorf("delete registration requests: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete user: %w", err)
	}
	return nil
}
