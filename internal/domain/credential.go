package domain

import "time"

// CredentialStatus represents whether a credential may still be selected.
type CredentialStatus string

const (
	CredentialStatusActive CredentialStatus = "active"
	CredentialStatusBurnt  CredentialStatus = "burnt"
)

// Credential is one authentication bundle (a cookie file) for a provider.
// Burning is irreversible: a burnt credential is never selected again.
type Credential struct {
	ID            uint             `gorm:"primaryKey" json:"id"`
	Provider      Provider         `gorm:"type:text;not null;uniqueIndex:idx_credentials_provider_name,priority:1" json:"provider"`
	Name          string           `gorm:"type:text;not null;uniqueIndex:idx_credentials_provider_name,priority:2" json:"name"`
	Path          string           `gorm:"type:text;not null" json:"path"`
	Status        CredentialStatus `gorm:"type:text;not null;default:active;index:idx_credentials_status" json:"status"`
	FailureCount  int              `gorm:"not null;default:0" json:"failure_count"`
	LastUsedAt    *time.Time       `json:"last_used_at,omitempty"`
	LastFailureAt *time.Time       `json:"last_failure_at,omitempty"`
	BurntAt       *time.Time       `json:"burnt_at,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// TableName returns the database table name for Credential.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (Credential) TableName() string {
	return "credentials"
}
