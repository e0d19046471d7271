package mysql

import (
	"context"
	"time"

	instDomain "p2p-lending-engine/internal/domain/installment"

	"gorm.io/gorm"
)

type InstallmentRepository struct{ db *gorm.DB }

func NewInstallmentRepository(db *gorm.DB) *InstallmentRepository {
	return &InstallmentRepository{db: db}
}

// ReplaceForLoan never patches a schedule in place: the old rows go and the
// new batch goes in. Callers run it inside a transaction.
func (r *InstallmentRepository) ReplaceForLoan(ctx context.Context, loanID uint64, items []instDomain.Installment) error {
	db := r.db.WithContext(ctx)
	var ids []uint64
	if err := db.Model(&instDomain.Installment{}).Where("loan_id = ?", loanID).Pluck("id", &ids).Error; err != nil {
		return err
	}
	if len(ids) > 0 {
		if err := db.Where("installment_id IN ?", ids).Delete(&instDomain.RetryLog{}).Error; err != nil {
			return err
		}
		if err := db.Where("loan_id = ?", loanID).Delete(&instDomain.Installment{}).Error; err != nil {
			return err
		}
	}
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		items[i].LoanID = loanID
	}
	return db.CreateInBatches(items, 100).Error
}

func (r *InstallmentRepository) ListByLoan(ctx context.Context, loanID uint64) ([]instDomain.Installment, error) {
	var out []instDomain.Installment
	err := r.db.WithContext(ctx).Where("loan_id = ?", loanID).Order("sequence ASC").Find(&out).Error
	return out, err
}

func (r *InstallmentRepository) GetByInstallmentID(ctx context.Context, installmentID string) (*instDomain.Installment, error) {
	var out instDomain.Installment
	if err := r.db.WithContext(ctx).Where("installment_id = ?", installmentID).First(&out).Error; err != nil {
		return nil, notFound(err, instDomain.ErrNotFound)
	}
	return &out, nil
}

func (r *InstallmentRepository) GetByID(ctx context.Context, id uint64) (*instDomain.Installment, error) {
	var out instDomain.Installment
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&out).Error; err != nil {
		return nil, notFound(err, instDomain.ErrNotFound)
	}
	return &out, nil
}

func (r *InstallmentRepository) ListDueBefore(ctx context.Context, before time.Time) ([]instDomain.Installment, error) {
	var out []instDomain.Installment
	err := r.db.WithContext(ctx).
		Where("status = ? AND paid = ? AND due_date < ?", instDomain.StatusPending, false, before).
		Order("due_date ASC, id ASC").
		Find(&out).Error
	return out, err
}

func (r *InstallmentRepository) ListRetryable(ctx context.Context, before time.Time) ([]instDomain.Installment, error) {
	var out []instDomain.Installment
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_retry_at IS NOT NULL AND next_retry_at < ?", instDomain.StatusFailed, before).
		Order("next_retry_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

func (r *InstallmentRepository) MarkPaid(ctx context.Context, id uint64, from []instDomain.Status, paidAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&instDomain.Installment{}).
		Where("id = ? AND paid = ? AND status IN ?", id, false, from).
		Updates(map[string]any{
			"status":        instDomain.StatusPaid,
			"paid":          true,
			"paid_at":       paidAt,
			"next_retry_at": nil,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *InstallmentRepository) RecordFailure(ctx context.Context, id uint64, expectedRetryCount int, upd instDomain.FailureUpdate) (bool, error) {
	res := r.db.WithContext(ctx).Model(&instDomain.Installment{}).
		Where("id = ? AND retry_count = ? AND status IN ?", id, expectedRetryCount,
			[]instDomain.Status{instDomain.StatusPending, instDomain.StatusFailed}).
		Updates(map[string]any{
			"status":        upd.Status,
			"retry_count":   upd.RetryCount,
			"last_retry_at": upd.AttemptedAt,
			"next_retry_at": upd.NextRetryAt,
			"caused_block":  upd.CausedBlock,
			"last_error":    upd.LastError,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *InstallmentRepository) TouchReminder(ctx context.Context, id uint64, dayStart, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&instDomain.Installment{}).
		Where("id = ? AND (reminder_sent_at IS NULL OR reminder_sent_at < ?)", id, dayStart).
		Update("reminder_sent_at", now)
	return res.RowsAffected == 1, res.Error
}

func (r *InstallmentRepository) TouchManualReminder(ctx context.Context, id uint64, maxCount int, notAfter, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&instDomain.Installment{}).
		Where("id = ? AND manual_reminder_count < ? AND (last_manual_reminder_at IS NULL OR last_manual_reminder_at <= ?)",
			id, maxCount, notAfter).
		Updates(map[string]any{
			"manual_reminder_count":   gorm.Expr("manual_reminder_count + 1"),
			"last_manual_reminder_at": now,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *InstallmentRepository) AppendRetryLog(ctx context.Context, l *instDomain.RetryLog) error {
	return r.db.WithContext(ctx).Create(l).Error
}

func (r *InstallmentRepository) ListRetryLogs(ctx context.Context, installmentID uint64) ([]instDomain.RetryLog, error) {
	var out []instDomain.RetryLog
	err := r.db.WithContext(ctx).Where("installment_id = ?", installmentID).Order("attempt_number ASC, id ASC").Find(&out).Error
	return out, err
}
