package logger

import (
	"time"

	gormlogger "gorm.io/gorm/logger"
)

// GormLogger returns a GORM logger that writes through l.
// Slow queries above slowThreshold are reported at warn level; record-not-found
// errors are not logged since repositories translate them into domain errors.
func GormLogger(l *Logger, level string, slowThreshold time.Duration) gormlogger.Interface {
	if l == nil {
		l = GetDefault()
	}

	gormLevel := gormlogger.Warn
	switch level {
	case "silent":
		gormLevel = gormlogger.Silent
	case "error":
		gormLevel = gormlogger.Error
	case "info", "debug":
		gormLevel = gormlogger.Info
	}

	return gormlogger.New(l.WithField(FieldComponent, "gorm"), gormlogger.Config{
		SlowThreshold:             slowThreshold,
		LogLevel:                  gormLevel,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}
