package models

import "time"

// EducationEntry is one education record on a student profile.
type EducationEntry struct {
	Institution string `json:"institution"`
	Degree      string `json:"degree"`
	Field       string `json:"field,omitempty"`
	StartYear   string `json:"start_year,omitempty"`
	EndYear     string `json:"end_year,omitempty"`
	Grade       string `json:"grade,omitempty"`
}

// ExperienceEntry is one work or internship record.
type ExperienceEntry struct {
	Company     string `json:"company"`
	Title       string `json:"title"`
	StartDate   string `json:"start_date,omitempty"`
	EndDate     string `json:"end_date,omitempty"`
	Description string `json:"description,omitempty"`
}

// SkillEntry is one named skill with an optional proficiency label.
type SkillEntry struct {
	Name  string `json:"name"`
	Level string `json:"level,omitempty"`
}

// ProjectEntry is one project record.
type ProjectEntry struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Link        string `json:"link,omitempty"`
}

// StudentProfile is free-form CV data, 1:1 with a student user. Created lazily
// on first read; the structured lists are replaced wholesale on every write.
type StudentProfile struct {
	UserID   string `json:"user_id"`
	Summary  string `json:"summary,omitempty"`
	LinkedIn string `json:"linkedin,omitempty"`
	GitHub   string `json:"github,omitempty"`
	Website  string `json:"website,omitempty"`

	Education  []EducationEntry  `json:"education"`
	Experience []ExperienceEntry `json:"experience"`
	Skills     []SkillEntry      `json:"skills"`
	Projects   []ProjectEntry    `json:"projects"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EmptyStudentProfile returns the lazily-created blank profile for a user.
func EmptyStudentProfile(userID string) *StudentProfile {
	return &StudentProfile{
		UserID:     userID,
		Education:  []EducationEntry{},
		Experience: []ExperienceEntry{},
		Skills:     []SkillEntry{},
		Projects:   []ProjectEntry{},
	}
}

// UpdateStudentProfileRequest upserts the whole profile document.
type UpdateStudentProfileRequest struct {
	Summary  *string `json:"summary"`
	LinkedIn *string `json:"linkedin"`
	GitHub   *string `json:"github"`
	Website  *string `json:"website"`

	Education  []EducationEntry  `json:"education"`
	Experience []ExperienceEntry `json:"experience"`
	Skills     []SkillEntry      `json:"skills"`
	Projects   []ProjectEntry    `json:"projects"`
}

// ICMProfileSection is a free-form keyed document fragment.
type ICMProfileSection map[string]interface{}

// ICMProfile is the company profile document, 1:1 with an ICM user. The
// nested sections are stored as JSON columns.
type ICMProfile struct {
	UserID      string            `json:"user_id"`
	Company     ICMProfileSection `json:"company"`
	Culture     ICMProfileSection `json:"culture"`
	Recruitment ICMProfileSection `json:"recruitment"`
	Highlights  ICMProfileSection `json:"highlights"`
	People      ICMProfileSection `json:"people"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// UpdateICMProfileRequest replaces the company profile sections. Nil sections
// are left untouched.
type UpdateICMProfileRequest struct {
	Company     ICMProfileSection `json:"company"`
	Culture     ICMProfileSection `json:"culture"`
	Recruitment ICMProfileSection `json:"recruitment"`
	Highlights  ICMProfileSection `json:"highlights"`
	People      ICMProfileSection `json:"people"`
}

// UniversityStats aggregates per-institution counts for the admin dashboard.
type UniversityStats struct {
	Students        RoleCounts `json:"students"`
	AcademicLeaders RoleCounts `json:"academic_leaders"`
}

// ICMStats aggregates a manager's posting and applicant activity.
type ICMStats struct {
	TotalOpportunities int `db:"total_opportunities" json:"total_opportunities"`
	OpenOpportunities  int `db:"open_opportunities" json:"open_opportunities"`
	TotalApplications  int `db:"total_applications" json:"total_applications"`
	RecentApplications int `db:"recent_applications" json:"recent_applications"`
}

// RoleCounts breaks a user population down by approval status.
type RoleCounts struct {
	Total    int `db:"total" json:"total"`
	Approved int `db:"approved" json:"approved"`
	Pending  int `db:"pending" json:"pending"`
	Rejected int `db:"rejected" json:"rejected"`
}
