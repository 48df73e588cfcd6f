package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// OpportunityType classifies a posting.
type OpportunityType string

const (
	OpportunityInternship    OpportunityType = "internship"
	OpportunityJob           OpportunityType = "job"
	OpportunityResearch      OpportunityType = "research"
	OpportunityResearchPaper OpportunityType = "research_paper"
	OpportunityProject       OpportunityType = "project"
	OpportunityOther         OpportunityType = "other"
)

// ValidOpportunityType reports whether the value is a known type.
func ValidOpportunityType(t OpportunityType) bool {
	switch t {
	case OpportunityInternship, OpportunityJob, OpportunityResearch,
		OpportunityResearchPaper, OpportunityProject, OpportunityOther:
		return true
	}
	return false
}

// OpportunityStatus is the open/closed lifecycle state.
type OpportunityStatus string

const (
	OpportunityOpen   OpportunityStatus = "open"
	OpportunityClosed OpportunityStatus = "closed"
)

// Opportunity is a posted internship, job, or research position.
type Opportunity struct {
	ID           string            `db:"id" json:"id"`
	Title        string            `db:"title" json:"title"`
	Type         OpportunityType   `db:"type" json:"type"`
	Description  string            `db:"description" json:"description"`
	Requirements *string           `db:"requirements" json:"requirements,omitempty"`
	Stipend      *string           `db:"stipend" json:"stipend,omitempty"`
	Duration     *string           `db:"duration" json:"duration,omitempty"`
	Location     *string           `db:"location" json:"location,omitempty"`
	Status       OpportunityStatus `db:"status" json:"status"`
	ClosingDate  *time.Time        `db:"closing_date" json:"closing_date,omitempty"`
	PostedBy     string            `db:"posted_by" json:"posted_by"`
	ContactEmail *string           `db:"contact_email" json:"contact_email,omitempty"`
	ContactPhone *string           `db:"contact_phone" json:"contact_phone,omitempty"`
	DeletedAt    *time.Time        `db:"deleted_at" json:"-"`
	CreatedAt    time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time         `db:"updated_at" json:"updated_at"`

	// Joined poster columns for list/detail reads.
	PosterName *string `db:"poster_name" json:"poster_name,omitempty"`
}

// Expired reports whether an open posting is past its closing date.
func (o *Opportunity) Expired(now time.Time) bool {
	return o.Status == OpportunityOpen && o.ClosingDate != nil && o.ClosingDate.Before(now)
}

// AuditAction enumerates opportunity audit entries.
type AuditAction string

const (
	AuditCreate    AuditAction = "CREATE"
	AuditUpdate    AuditAction = "UPDATE"
	AuditDelete    AuditAction = "DELETE"
	AuditAutoClose AuditAction = "AUTO_CLOSE"
)

// OpportunityAudit is one append-only trail entry. Old/new values hold JSON
// snapshots of the changed fields.
type OpportunityAudit struct {
	ID            string          `db:"id" json:"id"`
	OpportunityID string          `db:"opportunity_id" json:"opportunity_id"`
	Action        AuditAction     `db:"action" json:"action"`
	ChangedBy     *string         `db:"changed_by" json:"changed_by,omitempty"`
	OldValues     *types.JSONText `db:"old_values" json:"old_values,omitempty"`
	NewValues     *types.JSONText `db:"new_values" json:"new_values,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`

	ChangedByName *string `db:"changed_by_name" json:"changed_by_name,omitempty"`
}

// OpportunityFilter narrows and orders catalog listings.
type OpportunityFilter struct {
	Search   string
	Type     string
	Status   string
	PostedBy string
	SortBy   string
	SortDir  string
	Limit    int
	Offset   int
}

// CreateOpportunityRequest is the payload for posting an opportunity.
type CreateOpportunityRequest struct {
	Title        string  `json:"title" validate:"required"`
	Type         string  `json:"type" validate:"required"`
	Description  string  `json:"description" validate:"required"`
	Requirements *string `json:"requirements"`
	Stipend      *string `json:"stipend"`
	Duration     *string `json:"duration"`
	Location     *string `json:"location"`
	Deadline     *string `json:"deadline"`
	ContactEmail *string `json:"contactEmail"`
	ContactPhone *string `json:"contactPhone"`
}

// UpdateOpportunityRequest replaces the editable fields of a posting.
type UpdateOpportunityRequest struct {
	Title        string  `json:"title" validate:"required"`
	Type         string  `json:"type" validate:"required"`
	Description  string  `json:"description" validate:"required"`
	Requirements *string `json:"requirements"`
	Stipend      *string `json:"stipend"`
	Duration     *string `json:"duration"`
	Location     *string `json:"location"`
	Status       *string `json:"status"`
	Deadline     *string `json:"deadline"`
	ContactEmail *string `json:"contactEmail"`
	ContactPhone *string `json:"contactPhone"`
}
