package domain

import "time"

// AccountStatus represents the monitoring status of an account.
// Values include AccountStatusActive, AccountStatusPaused, and AccountStatusError.
type AccountStatus string

const (
	AccountStatusActive AccountStatus = "active"
	AccountStatusPaused AccountStatus = "paused"
	AccountStatusError  AccountStatus = "error"
)

// Valid reports whether s is a known account status.
func (s AccountStatus) Valid() bool {
	switch s {
	case AccountStatusActive, AccountStatusPaused, AccountStatusError:
		return true
	}
	return false
}

// Account is a monitored social profile/channel.
// URL is the canonical account URL and is unique across the store.
type Account struct {
	ID            uint          `gorm:"primaryKey" json:"id"`
	URL           string        `gorm:"type:text;not null;uniqueIndex:idx_accounts_url" json:"url"`
	Provider      Provider      `gorm:"type:text;not null;index:idx_accounts_provider" json:"provider"`
	Username      string        `gorm:"type:text" json:"username"`
	Status        AccountStatus `gorm:"type:text;not null;default:active;index:idx_accounts_status" json:"status"`
	LastCheckedAt *time.Time    `json:"last_checked_at,omitempty"`
	LastError     string        `gorm:"type:text" json:"last_error,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// TableName returns the database table name for Account.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (Account) TableName() string {
	return "accounts"
}

// Eligible reports whether the scheduler should visit the account.
// Paused accounts are skipped; accounts in error are retried.
func (a *Account) Eligible() bool {
	return a.Status != AccountStatusPaused
}
