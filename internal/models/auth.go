package models

// SignupRequest is the payload for account registration. The client may send
// either a name or a firstName/lastName pair; role and userType are both
// accepted as role hints.
type SignupRequest struct {
	Name      string `json:"name"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=6"`
	Role      string `json:"role"`
	UserType  string `json:"userType"`

	UniversityID  string `json:"universityId"`
	InstituteName string `json:"instituteName"`
}

// DisplayName resolves the stored account name: explicit name wins, then the
// first/last pair, then the local part of the email.
func (r SignupRequest) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	full := r.FirstName
	if r.LastName != "" {
		if full != "" {
			full += " "
		}
		full += r.LastName
	}
	return full
}

// LoginRequest is the payload for credential login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// ResendVerificationRequest asks for a fresh verification email.
type ResendVerificationRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// UpdateProfileRequest updates mutable account fields. Nil pointers mean the
// field is left untouched. Changing the password requires the current one.
type UpdateProfileRequest struct {
	Name            *string `json:"name"`
	Email           *string `json:"email"`
	InstituteName   *string `json:"instituteName"`
	CurrentPassword *string `json:"currentPassword"`
	NewPassword     *string `json:"newPassword"`
}

// AuthResult is the response body for signup and login.
type AuthResult struct {
	User    UserInfo `json:"user"`
	Message string   `json:"message,omitempty"`
}
