package domain

import "time"

// SettingSchedulerStatus is the key of the persisted scheduler run flag.
const SettingSchedulerStatus = "scheduler_status"

// Scheduler run flag values.
const (
	SchedulerRunning = "running"
	SchedulerStopped = "stopped"
)

// SystemSetting is a persisted key/value pair.
type SystemSetting struct {
	Key       string    `gorm:"type:text;primaryKey" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for SystemSetting.
func (SystemSetting) TableName() string {
	return "system_settings"
}
