package mysql

import (
	"context"
	"time"

	riskDomain "p2p-lending-engine/internal/domain/risk"

	"gorm.io/gorm"
)

type BlockRepository struct{ db *gorm.DB }

func NewBlockRepository(db *gorm.DB) *BlockRepository { return &BlockRepository{db: db} }

func (r *BlockRepository) Create(ctx context.Context, b *riskDomain.Block) error {
	if b.Status == riskDomain.BlockActive {
		guard := b.BorrowerID
		b.ActiveGuard = &guard
	}
	return r.db.WithContext(ctx).Create(b).Error
}

func (r *BlockRepository) GetActive(ctx context.Context, borrowerID string) (*riskDomain.Block, error) {
	var out riskDomain.Block
	err := r.db.WithContext(ctx).
		Where("borrower_id = ? AND status = ?", borrowerID, riskDomain.BlockActive).
		First(&out).Error
	if err != nil {
		return nil, notFound(err, riskDomain.ErrNoActiveBlock)
	}
	return &out, nil
}

func (r *BlockRepository) ListByBorrower(ctx context.Context, borrowerID string) ([]riskDomain.Block, error) {
	var out []riskDomain.Block
	err := r.db.WithContext(ctx).Where("borrower_id = ?", borrowerID).Order("id ASC").Find(&out).Error
	return out, err
}

func (r *BlockRepository) CountOpen(ctx context.Context, borrowerID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&riskDomain.Block{}).
		Where("borrower_id = ? AND status IN ?", borrowerID,
			[]riskDomain.BlockStatus{riskDomain.BlockActive, riskDomain.BlockDebtCleared}).
		Count(&n).Error
	return n, err
}

func (r *BlockRepository) ListRestrictionsDue(ctx context.Context, now time.Time) ([]riskDomain.Block, error) {
	var out []riskDomain.Block
	err := r.db.WithContext(ctx).
		Where("status = ? AND restriction_ends_at <= ?", riskDomain.BlockDebtCleared, now).
		Order("restriction_ends_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

func (r *BlockRepository) ClearDebt(ctx context.Context, id uint64, clearedAt, restrictionEndsAt time.Time) (bool, error) {
	return r.transition(ctx, id, riskDomain.BlockActive, map[string]any{
		"status":              riskDomain.BlockDebtCleared,
		"debt_cleared_at":     clearedAt,
		"restriction_ends_at": restrictionEndsAt,
		"active_guard":        nil,
	})
}

func (r *BlockRepository) EndRestriction(ctx context.Context, id uint64, liftedAt time.Time) (bool, error) {
	return r.transition(ctx, id, riskDomain.BlockDebtCleared, map[string]any{
		"status":                riskDomain.BlockRestrictionEnded,
		"restriction_lifted_at": liftedAt,
	})
}

func (r *BlockRepository) AdminUnblock(ctx context.Context, id uint64, adminID string, at time.Time) (bool, error) {
	return r.transition(ctx, id, riskDomain.BlockActive, map[string]any{
		"status":                riskDomain.BlockAdminUnblocked,
		"unblocked_by":          adminID,
		"restriction_lifted_at": at,
		"active_guard":          nil,
	})
}

func (r *BlockRepository) transition(ctx context.Context, id uint64, from riskDomain.BlockStatus, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).Model(&riskDomain.Block{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	return res.RowsAffected == 1, res.Error
}
