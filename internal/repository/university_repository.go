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

// UniversityRepository provides database access for universities.
type UniversityRepository struct {
	db *sqlx.DB
}

// NewUniversityRepository creates a new instance of UniversityRepository.
func NewUniversityRepository(db *sqlx.DB) *UniversityRepository {
	return &UniversityRepository{db: db}
}

// FindByID returns a university by identifier.
func (r *UniversityRepository) FindByID(ctx context.Context, id string) (*models.University, error) {
	const query = `SELECT id, name, domain, created_at, updated_at FROM universities WHERE id = $1 LIMIT 1`
	var u models.University
	if err := r.db.GetContext(ctx, &u, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find university by id: %w", err)
	}
	return &u, nil
}

// FindByDomain returns the university owning an email domain.
func (r *UniversityRepository) FindByDomain(ctx context.Context, domain string) (*models.University, error) {
	const query = `SELECT id, name, domain, created_at, updated_at FROM universities WHERE LOWER(domain) = LOWER($1) LIMIT 1`
	var u models.University
	if err := r.db.GetContext(ctx, &u, query, strings.TrimSpace(domain)); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find university by domain: %w", err)
	}
	return &u, nil
}

// List returns all universities ordered by name.
func (r *UniversityRepository) List(ctx context.Context) ([]models.University, error) {
	const query = `SELECT id, name, domain, created_at, updated_at FROM universities ORDER BY name ASC`
	var universities []models.University
	if err := r.db.SelectContext(ctx, &universities, query); err != nil {
		return nil, fmt.Errorf("list universities: %w", err)
	}
	return universities, nil
}

// CreateWithAdmin inserts a new university together with its first admin
// account in one transaction.
func (r *UniversityRepository) CreateWithAdmin(ctx context.Context, u *models.University, admin *models.User) error {
	now := time.Now().UTC()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now

	if admin.ID == "" {
		admin.ID = uuid.NewString()
	}
	if admin.CreatedAt.IsZero() {
		admin.CreatedAt = now
	}
	admin.UpdatedAt = now
	admin.UniversityID = &u.ID

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create university: %w", err)
	}
	defer tx.Rollback()

	const uniQuery = `INSERT INTO universities (id, name, domain, created_at, updated_at) VALUES (:id, :name, :domain, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, uniQuery, u); err != nil {
		return fmt.Errorf("create university: %w", err)
	}

	const userQuery = `INSERT INTO users (id, name, email, password_hash, role, is_active, email_verified, approval_status, university_id, institute_name, email_verification_token, email_verification_expires, created_at, updated_at)
		VALUES (:id, :name, :email, :password_hash, :role, :is_active, :email_verified, :approval_status, :university_id, :institute_name, :email_verification_token, :email_verification_expires, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, userQuery, admin); err != nil {
		return fmt.Errorf("create university admin: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create university: %w", err)
	}
	return nil
}

// Create inserts a new university.
func (r *UniversityRepository) Create(ctx context.Context, u *models.University) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now

	const query = `INSERT INTO universities (id, name, domain, created_at, updated_at) VALUES (:id, :name, :domain, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, u); err != nil {
		return fmt.Errorf("create university: %w", err)
	}
	return nil
}
