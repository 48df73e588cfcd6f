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

const applicationColumns = `a.id, a.opportunity_id, a.student_id, a.status, a.application_date, a.reviewed_by, a.reviewed_at, a.review_notes, a.cover_letter, a.gpa, a.expected_graduation, a.relevant_courses, a.skills, a.experience_summary, a.created_at, a.updated_at`

// ApplicationRepository provides database access for opportunity
// applications.
type ApplicationRepository struct {
	db *sqlx.DB
}

// NewApplicationRepository creates a new instance of ApplicationRepository.
func NewApplicationRepository(db *sqlx.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

// FindByID returns one application.
func (r *ApplicationRepository) FindByID(ctx context.Context, id string) (*models.Application, error) {
	query := fmt.Sprintf(`SELECT %s FROM opportunity_applications a WHERE a.id = $1 LIMIT 1`, applicationColumns)
	var app models.Application
	if err := r.db.GetContext(ctx, &app, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find application by id: %w", err)
	}
	return &app, nil
}

// Exists reports whether the student already applied to the opportunity.
func (r *ApplicationRepository) Exists(ctx context.Context, opportunityID, studentID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM opportunity_applications WHERE opportunity_id = $1 AND student_id = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, opportunityID, studentID); err != nil {
		return false, fmt.Errorf("check application exists: %w", err)
	}
	return exists, nil
}

// Create inserts a new pending application.
func (r *ApplicationRepository) Create(ctx context.Context, app *models.Application) error {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if app.CreatedAt.IsZero() {
		app.CreatedAt = now
	}
	app.UpdatedAt = now
	if app.ApplicationDate.IsZero() {
		app.ApplicationDate = now
	}
	if app.Status == "" {
		app.Status = models.ApplicationPending
	}

	const query = `INSERT INTO opportunity_applications (id, opportunity_id, student_id, status, application_date, cover_letter, gpa, expected_graduation, relevant_courses, skills, experience_summary, created_at, updated_at)
		VALUES (:id, :opportunity_id, :student_id, :status, :application_date, :cover_letter, :gpa, :expected_graduation, :relevant_courses, :skills, :experience_summary, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, app); err != nil {
		return fmt.Errorf("create application: %w", err)
	}
	return nil
}

// ListForOpportunity returns every application to one opportunity with the
// applicant's identity joined, newest first.
func (r *ApplicationRepository) ListForOpportunity(ctx context.Context, opportunityID string) ([]models.Application, error) {
	query := fmt.Sprintf(`SELECT %s, s.name AS student_name, s.email AS student_email
		FROM opportunity_applications a
		JOIN users s ON s.id = a.student_id
		WHERE a.opportunity_id = $1
		ORDER BY a.application_date DESC`, applicationColumns)
	var apps []models.Application
	if err := r.db.SelectContext(ctx, &apps, query, opportunityID); err != nil {
		return nil, fmt.Errorf("list applications for opportunity: %w", err)
	}
	return apps, nil
}

// ListForStudent returns a student's applications joined with opportunity and
// poster identity, newest first.
func (r *ApplicationRepository) ListForStudent(ctx context.Context, studentID string) ([]models.Application, error) {
	query := fmt.Sprintf(`SELECT %s, o.title AS opportunity_title, p.name AS opportunity_poster
		FROM opportunity_applications a
		JOIN opportunities o ON o.id = a.opportunity_id
		LEFT JOIN users p ON p.id = o.posted_by
		WHERE a.student_id = $1
		ORDER BY a.application_date DESC`, applicationColumns)
	var apps []models.Application
	if err := r.db.SelectContext(ctx, &apps, query, studentID); err != nil {
		return nil, fmt.Errorf("list applications for student: %w", err)
	}
	return apps, nil
}

// CountForPoster returns total and since-cutoff application counts across all
// of one poster's opportunities.
func (r *ApplicationRepository) CountForPoster(ctx context.Context, posterID string, since time.Time) (total, recent int, err error) {
	const query = `SELECT COUNT(*) AS total_applications,
		COUNT(*) FILTER (WHERE a.application_date >= $2) AS recent_applications
		FROM opportunity_applications a
		JOIN opportunities o ON o.id = a.opportunity_id
		WHERE o.posted_by = $1`
	var counts struct {
		Total  int `db:"total_applications"`
		Recent int `db:"recent_applications"`
	}
	if err := r.db.GetContext(ctx, &counts, query, posterID, since); err != nil {
		return 0, 0, fmt.Errorf("count applications for poster: %w", err)
	}
	return counts.Total, counts.Recent, nil
}

// UpdateStatus records a reviewer decision. The reviewer is always recorded.
func (r *ApplicationRepository) UpdateStatus(ctx context.Context, id string, status models.ApplicationStatus, reviewerID string, notes *string) error {
	now := time.Now().UTC()
	const query = `UPDATE opportunity_applications
		SET status = $2, reviewed_by = $3, reviewed_at = $4, review_notes = $5, updated_at = $4
		WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, reviewerID, now, notes); err != nil {
		return fmt.Errorf("update application status: %w", err)
	}
	return nil
}

// Withdraw flips a pending application to withdrawn. Returns sql.ErrNoRows
// when the application is no longer pending.
func (r *ApplicationRepository) Withdraw(ctx context.Context, id, studentID string) error {
	const query = `UPDATE opportunity_applications
		SET status = 'withdrawn', updated_at = $3
		WHERE id = $1 AND student_id = $2 AND status = 'pending'
		RETURNING id`
	var updated string
	if err := r.db.GetContext(ctx, &updated, query, id, studentID, time.Now().UTC()); err != nil {
		if err == sql.ErrNoRows {
			return err
		}
		return fmt.Errorf("withdraw application: %w", err)
	}
	return nil
}
