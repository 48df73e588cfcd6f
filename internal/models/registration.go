package models

import "time"

// RegistrationRequest is a pending approval record for a student or academic
// leader account, reviewed by a university admin.
type RegistrationRequest struct {
	ID            string         `db:"id" json:"id"`
	UserID        string         `db:"user_id" json:"user_id"`
	UniversityID  *string        `db:"university_id" json:"university_id,omitempty"`
	InstituteName *string        `db:"institute_name" json:"institute_name,omitempty"`
	Role          UserRole       `db:"role" json:"role"`
	Status        ApprovalStatus `db:"status" json:"status"`
	Note          *string        `db:"note" json:"note,omitempty"`
	ReviewedBy    *string        `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt    *time.Time     `db:"reviewed_at" json:"reviewed_at,omitempty"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`

	// Joined applicant columns for admin listings.
	UserName  string `db:"user_name" json:"user_name"`
	UserEmail string `db:"user_email" json:"user_email"`
}

// DecideRegistrationRequest approves or rejects a pending registration.
type DecideRegistrationRequest struct {
	Approve bool    `json:"approve"`
	Note    *string `json:"note"`
}
