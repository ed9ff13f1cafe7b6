package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/timmy/linkwatch/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AccountRepository handles monitored account persistence.
type AccountRepository struct {
	db *gorm.DB
}

// NewAccountRepository creates a new AccountRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *AccountRepository: repository instance bound to db.
func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create inserts a new account.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - account: account to persist; ID is populated on success.
// Returns:
//   - error: domain.ErrAccountExists if the URL is already stored, other errors on failure.
func (r *AccountRepository) Create(ctx context.Context, account *domain.Account) error {
	if account.Status == "" {
		account.Status = domain.AccountStatusActive
	}
	err := r.db.WithContext(ctx).Create(account).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrAccountExists
	}
	return err
}

// GetOrCreate returns the account stored under url, creating it when absent.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - url: canonical account URL.
//   - provider: provider the account belongs to.
//   - username: display username.
// Returns:
//   - *domain.Account: existing or newly created account.
//   - bool: true if the account was created by this call.
//   - error: non-nil if the lookup or insert fails.
func (r *AccountRepository) GetOrCreate(ctx context.Context, url string, provider domain.Provider, username string) (*domain.Account, bool, error) {
	account := &domain.Account{
		URL:      url,
		Provider: provider,
		Username: username,
		Status:   domain.AccountStatusActive,
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "url"}},
		DoNothing: true,
	}).Create(account)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 1 {
		return account, true, nil
	}

	existing, err := r.GetByURL(ctx, url)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// GetByID retrieves an account by its ID.
// Returns domain.ErrAccountNotFound when no row matches.
func (r *AccountRepository) GetByID(ctx context.Context, id uint) (*domain.Account, error) {
	var account domain.Account
	if err := r.db.WithContext(ctx).First(&account, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// GetByURL retrieves an account by its canonical URL.
// Returns domain.ErrAccountNotFound when no row matches.
func (r *AccountRepository) GetByURL(ctx context.Context, url string) (*domain.Account, error) {
	var account domain.Account
	if err := r.db.WithContext(ctx).First(&account, "url = ?", url).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// AccountFilter narrows List results. Zero values mean "any".
type AccountFilter struct {
	Provider domain.Provider
	Status   domain.AccountStatus
}

// List retrieves accounts ordered by ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - filter: optional provider/status filter.
// Returns:
//   - []domain.Account: matching accounts.
//   - error: non-nil if the query fails.
func (r *AccountRepository) List(ctx context.Context, filter AccountFilter) ([]domain.Account, error) {
	var accounts []domain.Account
	query := r.db.WithContext(ctx)
	if filter.Provider != "" {
		query = query.Where("provider = ?", filter.Provider)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if err := query.Order("id ASC").Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

// ListEligible returns every account the scheduler should visit, in stable ID order.
func (r *AccountRepository) ListEligible(ctx context.Context) ([]domain.Account, error) {
	var accounts []domain.Account
	if err := r.db.WithContext(ctx).
		Where("status <> ?", domain.AccountStatusPaused).
		Order("id ASC").
		Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

// RecordCheck stamps last_checked_at and moves the account to active or error.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: account ID.
//   - checkErr: nil on success; otherwise its message is stored as last_error.
//   - at: check timestamp.
// Returns:
//   - error: non-nil if the update fails.
func (r *AccountRepository) RecordCheck(ctx context.Context, id uint, checkErr error, at time.Time) error {
	updates := map[string]interface{}{
		"last_checked_at": at,
	}
	if checkErr == nil {
		updates["status"] = domain.AccountStatusActive
		updates["last_error"] = ""
	} else {
		updates["status"] = domain.AccountStatusError
		updates["last_error"] = checkErr.Error()
	}
	// A paused account stays paused even if a check was already in flight.
	return r.db.WithContext(ctx).Model(&domain.Account{}).
		Where("id = ? AND status <> ?", id, domain.AccountStatusPaused).
		Updates(updates).Error
}

// SetStatus sets the status of an account.
func (r *AccountRepository) SetStatus(ctx context.Context, id uint, status domain.AccountStatus) error {
	res := r.db.WithContext(ctx).Model(&domain.Account{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// Toggle flips an account between active and paused; an account in error becomes active.
// Returns the resulting status.
func (r *AccountRepository) Toggle(ctx context.Context, id uint) (domain.AccountStatus, error) {
	var next domain.AccountStatus
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var account domain.Account
		if err := tx.First(&account, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrAccountNotFound
			}
			return err
		}
		switch account.Status {
		case domain.AccountStatusActive:
			next = domain.AccountStatusPaused
		default:
			next = domain.AccountStatusActive
		}
		return tx.Model(&account).Updates(map[string]interface{}{
			"status":     next,
			"last_error": "",
		}).Error
	})
	return next, err
}

// Delete removes an account together with its discovered items.
// Operations referencing the account keep their history with the reference cleared.
func (r *AccountRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("account_id = ?", id).Delete(&domain.DiscoveredItem{}).Error; err != nil {
			return fmt.Errorf("failed to delete items: %w", err)
		}
		if err := tx.Model(&domain.Operation{}).Where("account_id = ?", id).Update("account_id", nil).Error; err != nil {
			return fmt.Errorf("failed to detach operations: %w", err)
		}
		res := tx.Delete(&domain.Account{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrAccountNotFound
		}
		return nil
	})
}

// CountByStatus returns the number of accounts per status.
func (r *AccountRepository) CountByStatus(ctx context.Context) (map[domain.AccountStatus]int64, error) {
	var rows []struct {
		Status domain.AccountStatus
		Count  int64
	}
	if err := r.db.WithContext(ctx).Model(&domain.Account{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[domain.AccountStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
