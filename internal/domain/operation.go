package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// OperationStatus represents the lifecycle state of an on-demand operation.
// Values include OperationStatusPending, OperationStatusProcessing,
// OperationStatusCompleted, and OperationStatusFailed.
type OperationStatus string

const (
	OperationStatusPending    OperationStatus = "pending"
	OperationStatusProcessing OperationStatus = "processing"
	OperationStatusCompleted  OperationStatus = "completed"
	OperationStatusFailed     OperationStatus = "failed"
)

// Terminal reports whether no further transition is possible.
func (s OperationStatus) Terminal() bool {
	return s == OperationStatusCompleted || s == OperationStatusFailed
}

// StringArray is a custom type for storing string arrays as JSON in the database.
type StringArray []string

// Value implements the driver.Valuer interface for database serialization.
// Parameters: none.
// Returns:
//   - driver.Value: JSON-encoded string representation of the slice.
//   - error: non-nil if marshaling fails.
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
// Parameters:
//   - value: raw database value to decode.
// Returns:
//   - error: non-nil if decoding fails or the type is unexpected.
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = StringArray{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan StringArray")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, a)
}

// Operation is a durable on-demand "fetch recent posts" request.
// OperationID is the externally visible identifier handed to clients.
type Operation struct {
	ID           uint            `gorm:"primaryKey" json:"-"`
	OperationID  string          `gorm:"type:text;not null;uniqueIndex:idx_operations_operation_id" json:"operation_id"`
	AccountURL   string          `gorm:"type:text;not null" json:"account_url"`
	Provider     Provider        `gorm:"type:text;not null" json:"provider"`
	Username     string          `gorm:"type:text" json:"username"`
	Status       OperationStatus `gorm:"type:text;not null;default:pending;index:idx_operations_status_created,priority:1" json:"status"`
	CreatedAt    time.Time       `gorm:"index:idx_operations_status_created,priority:2" json:"created_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	ResultLinks  StringArray     `gorm:"type:text" json:"result_links,omitempty"`
	ErrorMessage string          `gorm:"type:text" json:"error_message,omitempty"`
	AccountID    *uint           `gorm:"index" json:"account_id,omitempty"`
}

// TableName returns the database table name for Operation.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (Operation) TableName() string {
	return "operations"
}
