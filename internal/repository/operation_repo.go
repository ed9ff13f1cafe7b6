package repository

import (
	"context"
	"errors"
	"time"

	"github.com/timmy/linkwatch/internal/domain"
	"gorm.io/gorm"
)

// OperationRepository persists on-demand operations.
type OperationRepository struct {
	db *gorm.DB
}

// NewOperationRepository creates a new OperationRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *OperationRepository: repository instance bound to db.
func NewOperationRepository(db *gorm.DB) *OperationRepository {
	return &OperationRepository{db: db}
}

// Create inserts a new operation.
func (r *OperationRepository) Create(ctx context.Context, op *domain.Operation) error {
	return r.db.WithContext(ctx).Create(op).Error
}

// GetByOperationID retrieves an operation by its external ID.
// Returns domain.ErrOperationNotFound when no row matches.
func (r *OperationRepository) GetByOperationID(ctx context.Context, operationID string) (*domain.Operation, error) {
	var op domain.Operation
	if err := r.db.WithContext(ctx).First(&op, "operation_id = ?", operationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOperationNotFound
		}
		return nil, err
	}
	return &op, nil
}

// ClaimNext moves the oldest pending operation to processing and returns it.
// The update is guarded on status = pending so a row is never claimed twice.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - at: claim timestamp stored as started_at.
// Returns:
//   - *domain.Operation: claimed operation, or nil if none is pending.
//   - error: non-nil if the claim fails.
func (r *OperationRepository) ClaimNext(ctx context.Context, at time.Time) (*domain.Operation, error) {
	var claimed *domain.Operation
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var op domain.Operation
		err := tx.Where("status = ?", domain.OperationStatusPending).
			Order("created_at ASC, id ASC").
			First(&op).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		res := tx.Model(&domain.Operation{}).
			Where("id = ? AND status = ?", op.ID, domain.OperationStatusPending).
			Updates(map[string]interface{}{
				"status":     domain.OperationStatusProcessing,
				"started_at": at,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		op.Status = domain.OperationStatusProcessing
		op.StartedAt = &at
		claimed = &op
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Complete moves a processing operation to completed with its result links.
func (r *OperationRepository) Complete(ctx context.Context, id uint, accountID uint, links []string, at time.Time) error {
	return r.finish(ctx, id, map[string]interface{}{
		"status":        domain.OperationStatusCompleted,
		"completed_at":  at,
		"result_links":  domain.StringArray(links),
		"error_message": "",
		"account_id":    accountID,
	})
}

// Fail moves a processing operation to failed with an error message.
// accountID may be nil when the account could not be resolved.
func (r *OperationRepository) Fail(ctx context.Context, id uint, accountID *uint, message string, at time.Time) error {
	updates := map[string]interface{}{
		"status":        domain.OperationStatusFailed,
		"completed_at":  at,
		"error_message": message,
	}
	if accountID != nil {
		updates["account_id"] = *accountID
	}
	return r.finish(ctx, id, updates)
}

func (r *OperationRepository) finish(ctx context.Context, id uint, updates map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&domain.Operation{}).
		Where("id = ? AND status = ?", id, domain.OperationStatusProcessing).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrOperationNotFound
	}
	return nil
}

// Requeue returns a single processing operation to pending.
func (r *OperationRepository) Requeue(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Model(&domain.Operation{}).
		Where("id = ? AND status = ?", id, domain.OperationStatusProcessing).
		Updates(map[string]interface{}{
			"status":     domain.OperationStatusPending,
			"started_at": nil,
		})
	return res.Error
}

// ResetProcessing returns every processing operation to pending.
// Used at startup, before any worker runs, to recover work interrupted by a crash.
// Returns the number of operations reset.
func (r *OperationRepository) ResetProcessing(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Model(&domain.Operation{}).
		Where("status = ?", domain.OperationStatusProcessing).
		Updates(map[string]interface{}{
			"status":     domain.OperationStatusPending,
			"started_at": nil,
		})
	return res.RowsAffected, res.Error
}

// ListRecent returns the most recently created operations.
func (r *OperationRepository) ListRecent(ctx context.Context, limit int) ([]domain.Operation, error) {
	var ops []domain.Operation
	if err := r.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&ops).Error; err != nil {
		return nil, err
	}
	return ops, nil
}

// CountByStatus returns the number of operations per status.
func (r *OperationRepository) CountByStatus(ctx context.Context) (map[domain.OperationStatus]int64, error) {
	var rows []struct {
		Status domain.OperationStatus
		Count  int64
	}
	if err := r.db.WithContext(ctx).Model(&domain.Operation{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[domain.OperationStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
