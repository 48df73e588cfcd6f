package models

import "time"

// ApplicationStatus is the review lifecycle state of an application.
type ApplicationStatus string

const (
	ApplicationPending   ApplicationStatus = "pending"
	ApplicationApproved  ApplicationStatus = "approved"
	ApplicationRejected  ApplicationStatus = "rejected"
	ApplicationWithdrawn ApplicationStatus = "withdrawn"
)

// ReviewerDecision reports whether the value is a status a reviewer may set.
func ReviewerDecision(s ApplicationStatus) bool {
	return s == ApplicationApproved || s == ApplicationRejected
}

// Application is one student's application to one opportunity. Unique on
// (opportunity_id, student_id).
type Application struct {
	ID              string            `db:"id" json:"id"`
	OpportunityID   string            `db:"opportunity_id" json:"opportunity_id"`
	StudentID       string            `db:"student_id" json:"student_id"`
	Status          ApplicationStatus `db:"status" json:"status"`
	ApplicationDate time.Time         `db:"application_date" json:"application_date"`
	ReviewedBy      *string           `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time        `db:"reviewed_at" json:"reviewed_at,omitempty"`
	ReviewNotes     *string           `db:"review_notes" json:"review_notes,omitempty"`

	CoverLetter        *string  `db:"cover_letter" json:"cover_letter,omitempty"`
	GPA                *float64 `db:"gpa" json:"gpa,omitempty"`
	ExpectedGraduation *string  `db:"expected_graduation" json:"expected_graduation,omitempty"`
	RelevantCourses    *string  `db:"relevant_courses" json:"relevant_courses,omitempty"`
	Skills             *string  `db:"skills" json:"skills,omitempty"`
	ExperienceSummary  *string  `db:"experience_summary" json:"experience_summary,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`

	// Joined columns for listings.
	StudentName      *string `db:"student_name" json:"student_name,omitempty"`
	StudentEmail     *string `db:"student_email" json:"student_email,omitempty"`
	OpportunityTitle *string `db:"opportunity_title" json:"opportunity_title,omitempty"`
	PosterName       *string `db:"opportunity_poster" json:"opportunity_poster,omitempty"`
}

// ApplyRequest is the payload for submitting an application.
type ApplyRequest struct {
	OpportunityID      string   `json:"opportunityId" validate:"required,uuid"`
	CoverLetter        *string  `json:"coverLetter"`
	GPA                *float64 `json:"gpa"`
	ExpectedGraduation *string  `json:"expectedGraduation"`
	RelevantCourses    *string  `json:"relevantCourses"`
	Skills             *string  `json:"skills"`
	ExperienceSummary  *string  `json:"experienceSummary"`
}

// UpdateApplicationStatusRequest carries a reviewer decision.
type UpdateApplicationStatusRequest struct {
	Status      string  `json:"status" validate:"required,oneof=approved rejected"`
	ReviewNotes *string `json:"reviewNotes"`
}
