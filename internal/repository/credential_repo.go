package repository

import (
	"context"
	"errors"
	"time"

	"github.com/timmy/linkwatch/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrCredentialNotActive is returned when an outcome is reported for a credential
// that is unknown or already burnt.
var ErrCredentialNotActive = errors.New("credential is not active")

// CredentialRepository persists credential health state.
type CredentialRepository struct {
	db *gorm.DB
}

// NewCredentialRepository creates a new CredentialRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *CredentialRepository: repository instance bound to db.
func NewCredentialRepository(db *gorm.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// Register inserts a credential unless (provider, name) is already known.
// Known credentials keep their state, which makes burning permanent even if
// the file reappears in the active pool.
// Returns true when the credential was newly registered.
func (r *CredentialRepository) Register(ctx context.Context, cred *domain.Credential) (bool, error) {
	if cred.Status == "" {
		cred.Status = domain.CredentialStatusActive
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}, {Name: "name"}},
		DoNothing: true,
	}).Create(cred)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListActive returns active credentials of a provider in selection order:
// lowest failure count first, ties broken by name.
func (r *CredentialRepository) ListActive(ctx context.Context, provider domain.Provider) ([]domain.Credential, error) {
	var creds []domain.Credential
	if err := r.db.WithContext(ctx).
		Where("provider = ? AND status = ?", provider, domain.CredentialStatusActive).
		Order("failure_count ASC, name ASC").
		Find(&creds).Error; err != nil {
		return nil, err
	}
	return creds, nil
}

// ListByProvider returns every credential of a provider ordered by name.
func (r *CredentialRepository) ListByProvider(ctx context.Context, provider domain.Provider) ([]domain.Credential, error) {
	var creds []domain.Credential
	if err := r.db.WithContext(ctx).
		Where("provider = ?", provider).
		Order("name ASC").
		Find(&creds).Error; err != nil {
		return nil, err
	}
	return creds, nil
}

// GetByID retrieves a credential by ID.
func (r *CredentialRepository) GetByID(ctx context.Context, id uint) (*domain.Credential, error) {
	var cred domain.Credential
	if err := r.db.WithContext(ctx).First(&cred, id).Error; err != nil {
		return nil, err
	}
	return &cred, nil
}

// MarkUsed stamps last_used_at.
func (r *CredentialRepository) MarkUsed(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&domain.Credential{}).
		Where("id = ?", id).
		Update("last_used_at", at).Error
}

// RecordSuccess resets the failure counter of an active credential.
func (r *CredentialRepository) RecordSuccess(ctx context.Context, id uint, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&domain.Credential{}).
		Where("id = ? AND status = ?", id, domain.CredentialStatusActive).
		Updates(map[string]interface{}{
			"failure_count": 0,
			"last_used_at":  at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrCredentialNotActive
	}
	return nil
}

// RecordFailure increments the failure counter and burns the credential once
// the counter reaches threshold. Both steps run in one transaction.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: credential ID.
//   - threshold: consecutive failures that burn the credential.
//   - at: failure timestamp.
// Returns:
//   - *domain.Credential: credential state after the update.
//   - bool: true if this call burnt the credential.
//   - error: ErrCredentialNotActive if the credential is unknown or already burnt.
func (r *CredentialRepository) RecordFailure(ctx context.Context, id uint, threshold int, at time.Time) (*domain.Credential, bool, error) {
	var (
		cred  domain.Credential
		burnt bool
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Credential{}).
			Where("id = ? AND status = ?", id, domain.CredentialStatusActive).
			Updates(map[string]interface{}{
				"failure_count":   gorm.Expr("failure_count + 1"),
				"last_failure_at": at,
				"last_used_at":    at,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrCredentialNotActive
		}
		if err := tx.First(&cred, id).Error; err != nil {
			return err
		}
		if cred.FailureCount < threshold {
			return nil
		}

		res = tx.Model(&domain.Credential{}).
			Where("id = ? AND status = ?", id, domain.CredentialStatusActive).
			Updates(map[string]interface{}{
				"status":        domain.CredentialStatusBurnt,
				"burnt_at":      at,
				"failure_count": 0,
			})
		if res.Error != nil {
			return res.Error
		}
		burnt = res.RowsAffected == 1
		return tx.First(&cred, id).Error
	})
	if err != nil {
		return nil, false, err
	}
	return &cred, burnt, nil
}

// UpdatePath records a new location for a credential file.
func (r *CredentialRepository) UpdatePath(ctx context.Context, id uint, path string) error {
	return r.db.WithContext(ctx).Model(&domain.Credential{}).
		Where("id = ?", id).
		Update("path", path).Error
}
