package domain

import "time"

// User is a campaign author. DomainID is the authorization domain the user
// belongs to (a company, in recruiting terms).
type User struct {
	ID       string `json:"id" db:"id"`
	DomainID string `json:"domain_id" db:"domain_id"`
	Email    string `json:"email" db:"email"`
}

// RecipientList is an externally owned collection of recipients.
type RecipientList struct {
	Ref       string     `json:"id" db:"ref"`
	OwnerID   string     `json:"owner_id" db:"owner_id"`
	DomainID  string     `json:"domain_id" db:"domain_id"`
	Name      string     `json:"name" db:"name"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// IsDeleted reports whether the list has been soft-deleted.
func (l *RecipientList) IsDeleted() bool { return l.DeletedAt != nil }

// Recipient is one addressable person (a candidate).
type Recipient struct {
	ID          string     `json:"id" db:"id"`
	DomainID    string     `json:"domain_id" db:"domain_id"`
	FirstName   string     `json:"first_name" db:"first_name"`
	LastName    string     `json:"last_name" db:"last_name"`
	Phone       string     `json:"phone,omitempty" db:"phone"`
	Email       string     `json:"email,omitempty" db:"email"`
	DeviceToken string     `json:"-" db:"device_token"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// IsDeleted reports whether the recipient has been soft-deleted.
func (r *Recipient) IsDeleted() bool { return r.DeletedAt != nil }

// TemplateVars exposes the recipient to content templates.
func (r *Recipient) TemplateVars() map[string]any {
	return map[string]any{
		"id":         r.ID,
		"first_name": r.FirstName,
		"last_name":  r.LastName,
		"phone":      r.Phone,
		"email":      r.Email,
	}
}
