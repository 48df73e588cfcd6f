package models

import "time"

// University is a registered institution. Domain is the email domain used to
// route registration requests to the right university admin.
type University struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Domain    string    `db:"domain" json:"domain"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CreateUniversityRequest registers a new institution.
type CreateUniversityRequest struct {
	Name   string `json:"name" validate:"required,min=2"`
	Domain string `json:"domain" validate:"required,fqdn"`
}
