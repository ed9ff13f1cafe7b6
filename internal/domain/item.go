package domain

import "time"

// DiscoveredItem is a post URL found for an account.
// (AccountID, Fingerprint) is unique: a post is recorded at most once per account.
type DiscoveredItem struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	AccountID    uint       `gorm:"not null;uniqueIndex:idx_items_account_fingerprint,priority:1" json:"account_id"`
	URL          string     `gorm:"type:text;not null" json:"url"`
	Fingerprint  string     `gorm:"type:text;not null;uniqueIndex:idx_items_account_fingerprint,priority:2" json:"fingerprint"`
	DiscoveredAt time.Time  `gorm:"not null;index:idx_items_discovered_at" json:"discovered_at"`
	PostDate     *time.Time `json:"post_date,omitempty"`
	Account      *Account   `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// TableName returns the database table name for DiscoveredItem.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (DiscoveredItem) TableName() string {
	return "discovered_items"
}
