package models

import (
	"strings"
	"time"
)

// UserRole represents the available roles.
type UserRole string

const (
	RoleAdmin           UserRole = "admin"
	RoleManager         UserRole = "manager"
	RoleViewer          UserRole = "viewer"
	RoleStudent         UserRole = "student"
	RoleAcademicLeader  UserRole = "academic_leader"
	RoleUniversityAdmin UserRole = "university_admin"
	RoleICM             UserRole = "icm"
)

// ApprovalStatus gates student and academic leader accounts.
type ApprovalStatus string

const (
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalRejected ApprovalStatus = "rejected"
)

// ValidRole reports whether the value is a known role enumeration member.
func ValidRole(r UserRole) bool {
	switch r {
	case RoleAdmin, RoleManager, RoleViewer, RoleStudent, RoleAcademicLeader, RoleUniversityAdmin, RoleICM:
		return true
	}
	return false
}

// RequiresApproval reports whether the role goes through the university
// registration-request workflow.
func (r UserRole) RequiresApproval() bool {
	return r == RoleStudent || r == RoleAcademicLeader
}

// CanPostOpportunities reports whether the role may create catalog entries.
func (r UserRole) CanPostOpportunities() bool {
	switch r {
	case RoleAcademicLeader, RoleICM, RoleUniversityAdmin, RoleAdmin, RoleManager:
		return true
	}
	return false
}

// ManagerEquivalent treats the stored icm role as manager in authorization
// checks; the two spellings coexist in historical data.
func (r UserRole) ManagerEquivalent() bool {
	return r == RoleManager || r == RoleICM
}

// DeriveRole canonicalises the signup role hint. An explicit role field wins
// over the looser userType field; unknown values fall back to viewer.
func DeriveRole(explicitRole, userType string) UserRole {
	explicit := strings.ToLower(strings.TrimSpace(explicitRole))
	loose := strings.ToLower(strings.TrimSpace(userType))

	if explicit == "student" || loose == "student" {
		return RoleStudent
	}
	if explicit == "academic_leader" || loose == "academic" || loose == "academic_leader" {
		return RoleAcademicLeader
	}
	if explicit == "university_admin" || explicit == "university" ||
		loose == "university" || loose == "university_admin" || loose == "university administration" {
		return RoleUniversityAdmin
	}
	switch explicit {
	case "admin", "manager", "viewer":
		return UserRole(explicit)
	}
	switch loose {
	case "leader":
		return RoleAcademicLeader
	case "icm", "manager", "admin":
		return RoleManager
	}
	return RoleViewer
}

// User represents an application user stored in the users table.
type User struct {
	ID             string         `db:"id" json:"id"`
	Name           string         `db:"name" json:"name"`
	Email          string         `db:"email" json:"email"`
	PasswordHash   string         `db:"password_hash" json:"-"`
	Role           UserRole       `db:"role" json:"role"`
	Active         bool           `db:"is_active" json:"is_active"`
	EmailVerified  bool           `db:"email_verified" json:"email_verified"`
	ApprovalStatus ApprovalStatus `db:"approval_status" json:"approval_status"`
	UniversityID   *string        `db:"university_id" json:"university_id,omitempty"`
	InstituteName  *string        `db:"institute_name" json:"institute_name,omitempty"`

	VerificationToken   *string    `db:"email_verification_token" json:"-"`
	VerificationExpires *time.Time `db:"email_verification_expires" json:"-"`

	LastLogin *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// EmailDomain returns the lowercase domain part of the user's email. It is a
// fallback affiliation heuristic only; university_id is authoritative.
func (u *User) EmailDomain() string {
	parts := strings.SplitN(u.Email, "@", 2)
	if len(parts) != 2 {
		return ""
	}
	return strings.ToLower(parts[1])
}

// UserInfo is the public projection returned from auth flows. Password
// material never leaves the service layer.
type UserInfo struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Email          string         `json:"email"`
	Role           UserRole       `json:"role"`
	ApprovalStatus ApprovalStatus `json:"approval_status"`
	UniversityID   *string        `json:"university_id,omitempty"`
	InstituteName  *string        `json:"institute_name,omitempty"`
}

// Info builds the public projection of the user.
func (u *User) Info() UserInfo {
	return UserInfo{
		ID:             u.ID,
		Name:           u.Name,
		Email:          u.Email,
		Role:           u.Role,
		ApprovalStatus: u.ApprovalStatus,
		UniversityID:   u.UniversityID,
		InstituteName:  u.InstituteName,
	}
}
