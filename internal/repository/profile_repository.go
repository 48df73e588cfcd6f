package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/trustteams/trustteams-api/internal/models"
)

// ProfileRepository provides database access for student CV profiles and ICM
// company profiles. The structured lists live in JSON columns and are
// replaced wholesale on every write.
type ProfileRepository struct {
	db *sqlx.DB
}

// NewProfileRepository creates a new instance of ProfileRepository.
func NewProfileRepository(db *sqlx.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

type studentProfileRow struct {
	UserID     string         `db:"user_id"`
	Summary    string         `db:"summary"`
	LinkedIn   string         `db:"linkedin"`
	GitHub     string         `db:"github"`
	Website    string         `db:"website"`
	Education  types.JSONText `db:"education"`
	Experience types.JSONText `db:"experience"`
	Skills     types.JSONText `db:"skills"`
	Projects   types.JSONText `db:"projects"`
	CreatedAt  time.Time      `db:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at"`
}

// GetStudentProfile returns the student's profile, creating an empty one on
// first read.
func (r *ProfileRepository) GetStudentProfile(ctx context.Context, userID string) (*models.StudentProfile, error) {
	const query = `SELECT user_id, summary, linkedin, github, website, education, experience, skills, projects, created_at, updated_at
		FROM student_profiles WHERE user_id = $1 LIMIT 1`
	var row studentProfileRow
	err := r.db.GetContext(ctx, &row, query, userID)
	if err == sql.ErrNoRows {
		profile := models.EmptyStudentProfile(userID)
		if err := r.UpsertStudentProfile(ctx, profile); err != nil {
			return nil, err
		}
		return profile, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get student profile: %w", err)
	}
	return row.toModel()
}

// UpsertStudentProfile replaces the whole profile document for a user.
func (r *ProfileRepository) UpsertStudentProfile(ctx context.Context, profile *models.StudentProfile) error {
	row, err := newStudentProfileRow(profile)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	row.UpdatedAt = now
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}

	const query = `INSERT INTO student_profiles (user_id, summary, linkedin, github, website, education, experience, skills, projects, created_at, updated_at)
		VALUES (:user_id, :summary, :linkedin, :github, :website, :education, :experience, :skills, :projects, :created_at, :updated_at)
		ON CONFLICT (user_id) DO UPDATE SET
			summary = EXCLUDED.summary,
			linkedin = EXCLUDED.linkedin,
			github = EXCLUDED.github,
			website = EXCLUDED.website,
			education = EXCLUDED.education,
			experience = EXCLUDED.experience,
			skills = EXCLUDED.skills,
			projects = EXCLUDED.projects,
			updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("upsert student profile: %w", err)
	}
	profile.UpdatedAt = row.UpdatedAt
	return nil
}

func newStudentProfileRow(p *models.StudentProfile) (*studentProfileRow, error) {
	row := &studentProfileRow{
		UserID:    p.UserID,
		Summary:   p.Summary,
		LinkedIn:  p.LinkedIn,
		GitHub:    p.GitHub,
		Website:   p.Website,
		CreatedAt: p.CreatedAt,
	}
	var err error
	if row.Education, err = marshalList(p.Education); err != nil {
		return nil, err
	}
	if row.Experience, err = marshalList(p.Experience); err != nil {
		return nil, err
	}
	if row.Skills, err = marshalList(p.Skills); err != nil {
		return nil, err
	}
	if row.Projects, err = marshalList(p.Projects); err != nil {
		return nil, err
	}
	return row, nil
}

func (row *studentProfileRow) toModel() (*models.StudentProfile, error) {
	profile := &models.StudentProfile{
		UserID:    row.UserID,
		Summary:   row.Summary,
		LinkedIn:  row.LinkedIn,
		GitHub:    row.GitHub,
		Website:   row.Website,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	if err := unmarshalList(row.Education, &profile.Education); err != nil {
		return nil, err
	}
	if err := unmarshalList(row.Experience, &profile.Experience); err != nil {
		return nil, err
	}
	if err := unmarshalList(row.Skills, &profile.Skills); err != nil {
		return nil, err
	}
	if err := unmarshalList(row.Projects, &profile.Projects); err != nil {
		return nil, err
	}
	return profile, nil
}

func marshalList(v interface{}) (types.JSONText, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal profile list: %w", err)
	}
	if string(raw) == "null" {
		raw = []byte("[]")
	}
	return types.JSONText(raw), nil
}

func unmarshalList(raw types.JSONText, dst interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("unmarshal profile list: %w", err)
	}
	return nil
}

type icmProfileRow struct {
	UserID      string         `db:"user_id"`
	Company     types.JSONText `db:"company"`
	Culture     types.JSONText `db:"culture"`
	Recruitment types.JSONText `db:"recruitment"`
	Highlights  types.JSONText `db:"highlights"`
	People      types.JSONText `db:"people"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

// GetICMProfile returns the ICM's company profile, creating an empty one on
// first read.
func (r *ProfileRepository) GetICMProfile(ctx context.Context, userID string) (*models.ICMProfile, error) {
	const query = `SELECT user_id, company, culture, recruitment, highlights, people, created_at, updated_at
		FROM icm_profiles WHERE user_id = $1 LIMIT 1`
	var row icmProfileRow
	err := r.db.GetContext(ctx, &row, query, userID)
	if err == sql.ErrNoRows {
		profile := &models.ICMProfile{
			UserID:      userID,
			Company:     models.ICMProfileSection{},
			Culture:     models.ICMProfileSection{},
			Recruitment: models.ICMProfileSection{},
			Highlights:  models.ICMProfileSection{},
			People:      models.ICMProfileSection{},
		}
		if err := r.UpsertICMProfile(ctx, profile); err != nil {
			return nil, err
		}
		return profile, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get icm profile: %w", err)
	}
	return row.toModel()
}

// UpsertICMProfile replaces the company profile sections for a user.
func (r *ProfileRepository) UpsertICMProfile(ctx context.Context, profile *models.ICMProfile) error {
	row := &icmProfileRow{UserID: profile.UserID, CreatedAt: profile.CreatedAt}
	var err error
	if row.Company, err = marshalSection(profile.Company); err != nil {
		return err
	}
	if row.Culture, err = marshalSection(profile.Culture); err != nil {
		return err
	}
	if row.Recruitment, err = marshalSection(profile.Recruitment); err != nil {
		return err
	}
	if row.Highlights, err = marshalSection(profile.Highlights); err != nil {
		return err
	}
	if row.People, err = marshalSection(profile.People); err != nil {
		return err
	}

	now := time.Now().UTC()
	row.UpdatedAt = now
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}

	const query = `INSERT INTO icm_profiles (user_id, company, culture, recruitment, highlights, people, created_at, updated_at)
		VALUES (:user_id, :company, :culture, :recruitment, :highlights, :people, :created_at, :updated_at)
		ON CONFLICT (user_id) DO UPDATE SET
			company = EXCLUDED.company,
			culture = EXCLUDED.culture,
			recruitment = EXCLUDED.recruitment,
			highlights = EXCLUDED.highlights,
			people = EXCLUDED.people,
			updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("upsert icm profile: %w", err)
	}
	profile.UpdatedAt = row.UpdatedAt
	return nil
}

func (row *icmProfileRow) toModel() (*models.ICMProfile, error) {
	profile := &models.ICMProfile{
		UserID:    row.UserID,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	for _, part := range []struct {
		raw types.JSONText
		dst *models.ICMProfileSection
	}{
		{row.Company, &profile.Company},
		{row.Culture, &profile.Culture},
		{row.Recruitment, &profile.Recruitment},
		{row.Highlights, &profile.Highlights},
		{row.People, &profile.People},
	} {
		*part.dst = models.ICMProfileSection{}
		if len(part.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(part.raw, part.dst); err != nil {
			return nil, fmt.Errorf("unmarshal icm profile section: %w", err)
		}
	}
	return profile, nil
}

func marshalSection(s models.ICMProfileSection) (types.JSONText, error) {
	if s == nil {
		s = models.ICMProfileSection{}
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal icm profile section: %w", err)
	}
	return types.JSONText(raw), nil
}
