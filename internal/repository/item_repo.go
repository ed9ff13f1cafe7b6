package repository

import (
	"context"

	"github.com/timmy/linkwatch/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ItemRepository handles discovered item persistence.
type ItemRepository struct {
	db *gorm.DB
}

// NewItemRepository creates a new ItemRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *ItemRepository: repository instance bound to db.
func NewItemRepository(db *gorm.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

// InsertIfAbsent inserts item unless (account_id, fingerprint) is already stored.
// The check and the insert are a single statement, so concurrent callers with the
// same key observe exactly one insertion.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - item: item to insert; ID is populated when inserted.
// Returns:
//   - bool: true if this call inserted the row.
//   - error: non-nil if the statement fails.
func (r *ItemRepository) InsertIfAbsent(ctx context.Context, item *domain.DiscoveredItem) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}, {Name: "fingerprint"}},
		DoNothing: true,
	}).Omit("Account").Create(item)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListByAccount retrieves an account's items, newest first, with pagination.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - accountID: account to list.
//   - limit: maximum number of records to return; <= 0 means no limit.
//   - offset: number of records to skip.
// Returns:
//   - []domain.DiscoveredItem: matching items.
//   - int64: total number of items for the account.
//   - error: non-nil if the query fails.
func (r *ItemRepository) ListByAccount(ctx context.Context, accountID uint, limit, offset int) ([]domain.DiscoveredItem, int64, error) {
	var total int64
	base := r.db.WithContext(ctx).Model(&domain.DiscoveredItem{}).Where("account_id = ?", accountID)
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var items []domain.DiscoveredItem
	query := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("discovered_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit).Offset(offset)
	}
	if err := query.Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// CountByAccount returns the number of items recorded for an account.
func (r *ItemRepository) CountByAccount(ctx context.Context, accountID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.DiscoveredItem{}).
		Where("account_id = ?", accountID).
		Count(&count).Error
	return count, err
}

// Exists reports whether (accountID, fingerprint) is already recorded.
func (r *ItemRepository) Exists(ctx context.Context, accountID uint, fingerprint string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.DiscoveredItem{}).
		Where("account_id = ? AND fingerprint = ?", accountID, fingerprint).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
