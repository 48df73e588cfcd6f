package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/trustteams/trustteams-api/internal/models"
)

// RegistrationRepository provides database access for account registration
// requests.
type RegistrationRepository struct {
	db *sqlx.DB
}

// NewRegistrationRepository creates a new instance of RegistrationRepository.
func NewRegistrationRepository(db *sqlx.DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

// Create inserts a pending registration request.
func (r *RegistrationRepository) Create(ctx context.Context, req *models.RegistrationRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	if req.Status == "" {
		req.Status = models.ApprovalPending
	}

	const query = `INSERT INTO registration_requests (id, user_id, university_id, institute_name, role, status, note, created_at)
		VALUES (:id, :user_id, :university_id, :institute_name, :role, :status, :note, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, req); err != nil {
		return fmt.Errorf("create registration request: %w", err)
	}
	return nil
}

// CreateWithUser inserts the account row and its pending registration
// request in one transaction, leaving no partial signup on failure.
func (r *RegistrationRepository) CreateWithUser(ctx context.Context, user *models.User, req *models.RegistrationRequest) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	req.UserID = user.ID
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	if req.Status == "" {
		req.Status = models.ApprovalPending
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin signup: %w", err)
	}
	defer tx.Rollback()

	const userQuery = `INSERT INTO users (id, name, email, password_hash, role, is_active, email_verified, approval_status, university_id, institute_name, email_verification_token, email_verification_expires, created_at, updated_at)
		VALUES (:id, :name, :email, :password_hash, :role, :is_active, :email_verified, :approval_status, :university_id, :institute_name, :email_verification_token, :email_verification_expires, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, userQuery, user); err != nil {
		return fmt.Errorf("create signup user: %w", err)
	}

	const reqQuery = `INSERT INTO registration_requests (id, user_id, university_id, institute_name, role, status, note, created_at)
		VALUES (:id, :user_id, :university_id, :institute_name, :role, :status, :note, :created_at)`
	if _, err := tx.NamedExecContext(ctx, reqQuery, req); err != nil {
		return fmt.Errorf("create signup registration request: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit signup: %w", err)
	}
	return nil
}

// FindByID returns one registration request with joined applicant columns.
func (r *RegistrationRepository) FindByID(ctx context.Context, id string) (*models.RegistrationRequest, error) {
	const query = `SELECT rr.id, rr.user_id, rr.university_id, rr.institute_name, rr.role, rr.status, rr.note, rr.reviewed_by, rr.reviewed_at, rr.created_at,
		u.name AS user_name, u.email AS user_email
		FROM registration_requests rr
		JOIN users u ON u.id = rr.user_id
		WHERE rr.id = $1 LIMIT 1`
	var req models.RegistrationRequest
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find registration request: %w", err)
	}
	return &req, nil
}

// ListForUniversity returns a university's registration inbox, optionally
// narrowed to one status, newest first.
func (r *RegistrationRepository) ListForUniversity(ctx context.Context, universityID, status string) ([]models.RegistrationRequest, error) {
	query := `SELECT rr.id, rr.user_id, rr.university_id, rr.institute_name, rr.role, rr.status, rr.note, rr.reviewed_by, rr.reviewed_at, rr.created_at,
		u.name AS user_name, u.email AS user_email
		FROM registration_requests rr
		JOIN users u ON u.id = rr.user_id
		WHERE rr.university_id = $1`
	args := []interface{}{universityID}
	if status != "" {
		query += ` AND rr.status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY rr.created_at DESC`

	var requests []models.RegistrationRequest
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, fmt.Errorf("list registration requests: %w", err)
	}
	return requests, nil
}

// Decide records an approval decision and synchronizes the subject account in
// the same transaction: the request row gets status/reviewer/timestamp, the
// user row gets approval_status and, on approval, is_active = TRUE.
func (r *RegistrationRepository) Decide(ctx context.Context, requestID, reviewerID string, status models.ApprovalStatus, note *string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin decide registration: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	var userID string
	const requestQuery = `UPDATE registration_requests
		SET status = $2, note = COALESCE($3, note), reviewed_by = $4, reviewed_at = $5
		WHERE id = $1 AND status = 'pending'
		RETURNING user_id`
	if err := tx.GetContext(ctx, &userID, requestQuery, requestID, status, note, reviewerID, now); err != nil {
		if err == sql.ErrNoRows {
			return err
		}
		return fmt.Errorf("update registration request: %w", err)
	}

	const userQuery = `UPDATE users SET approval_status = $2, is_active = $3, updated_at = $4 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, userQuery, userID, status, status == models.ApprovalApproved, now); err != nil {
		return fmt.Errorf("update user approval: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit decide registration: %w", err)
	}
	return nil
}
