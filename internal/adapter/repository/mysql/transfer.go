package mysql

import (
	"context"
	"time"

	transferDomain "p2p-lending-engine/internal/domain/transfer"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TransferRepository struct{ db *gorm.DB }

func NewTransferRepository(db *gorm.DB) *TransferRepository { return &TransferRepository{db: db} }

func (r *TransferRepository) GetLiveByIntent(ctx context.Context, intentKey string) (*transferDomain.Transfer, error) {
	var out transferDomain.Transfer
	err := r.db.WithContext(ctx).
		Where("intent_key = ? AND status IN ?", intentKey,
			[]transferDomain.Status{transferDomain.StatusPending, transferDomain.StatusCompleted}).
		First(&out).Error
	if err != nil {
		return nil, notFound(err, transferDomain.ErrNotFound)
	}
	return &out, nil
}

func (r *TransferRepository) GetByTransferID(ctx context.Context, transferID string) (*transferDomain.Transfer, error) {
	var out transferDomain.Transfer
	if err := r.db.WithContext(ctx).Where("transfer_id = ?", transferID).First(&out).Error; err != nil {
		return nil, notFound(err, transferDomain.ErrNotFound)
	}
	return &out, nil
}

// Reserve is an insert-ignore: losing the unique intent key to a concurrent
// writer is not an error, it just reports false.
func (r *TransferRepository) Reserve(ctx context.Context, t *transferDomain.Transfer) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(t)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *TransferRepository) Settle(ctx context.Context, id uint64, referenceID string, status transferDomain.Status) error {
	updates := map[string]any{
		"reference_id": referenceID,
		"status":       status,
	}
	if !status.Live() {
		updates["intent_key"] = nil
		updates["failure_reason"] = "rail reported " + string(status)
	}
	return r.db.WithContext(ctx).Model(&transferDomain.Transfer{}).
		Where("id = ? AND status = ?", id, transferDomain.StatusPending).
		Updates(updates).Error
}

func (r *TransferRepository) Fail(ctx context.Context, id uint64, status transferDomain.Status, reason string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&transferDomain.Transfer{}).
		Where("id = ? AND status = ?", id, transferDomain.StatusPending).
		Updates(map[string]any{
			"status":         status,
			"intent_key":     nil,
			"failure_reason": reason,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *TransferRepository) Complete(ctx context.Context, id uint64) (bool, error) {
	res := r.db.WithContext(ctx).Model(&transferDomain.Transfer{}).
		Where("id = ? AND status = ?", id, transferDomain.StatusPending).
		Update("status", transferDomain.StatusCompleted)
	return res.RowsAffected == 1, res.Error
}

func (r *TransferRepository) ListPending(ctx context.Context, limit int) ([]transferDomain.Transfer, error) {
	var out []transferDomain.Transfer
	err := r.db.WithContext(ctx).
		Where("status = ? AND reference_id IS NOT NULL", transferDomain.StatusPending).
		Order("id ASC").Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *TransferRepository) ListStaleReservations(ctx context.Context, olderThan time.Time) ([]transferDomain.Transfer, error) {
	var out []transferDomain.Transfer
	err := r.db.WithContext(ctx).
		Where("status = ? AND reference_id IS NULL AND created_at < ?", transferDomain.StatusPending, olderThan).
		Order("id ASC").
		Find(&out).Error
	return out, err
}

func (r *TransferRepository) ListByLoan(ctx context.Context, loanID string) ([]transferDomain.Transfer, error) {
	var out []transferDomain.Transfer
	err := r.db.WithContext(ctx).Where("loan_id = ?", loanID).Order("id ASC").Find(&out).Error
	return out, err
}
