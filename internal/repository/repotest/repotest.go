// Package repotest opens throwaway databases for tests.
package repotest

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/timmy/linkwatch/internal/config"
	"github.com/timmy/linkwatch/internal/repository"
	"gorm.io/gorm"
)

// NewDB returns a migrated SQLite database stored under t.TempDir().
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := repository.InitDB(&config.DatabaseConfig{
		Driver:          "sqlite",
		Path:            filepath.Join(t.TempDir(), "linkwatch.db"),
		MaxIdleConns:    1,
		MaxOpenConns:    1,
		ConnMaxLifetime: time.Hour,
		AutoMigrate:     true,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}
