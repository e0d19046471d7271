package mysql

import (
	"context"

	trustDomain "p2p-lending-engine/internal/domain/trust"
	"p2p-lending-engine/pkg/id"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ScoreRepository struct{ db *gorm.DB }

func NewScoreRepository(db *gorm.DB) *ScoreRepository { return &ScoreRepository{db: db} }

func (r *ScoreRepository) Get(ctx context.Context, userID string) (*trustDomain.Score, error) {
	var out trustDomain.Score
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&out).Error; err != nil {
		return nil, notFound(err, trustDomain.ErrNotFound)
	}
	return &out, nil
}

// Apply never recomputes a score: it seeds the row once and then adds the
// delta in SQL so concurrent writers compose.
func (r *ScoreRepository) Apply(ctx context.Context, userID string, d trustDomain.Delta) (*trustDomain.Score, error) {
	db := r.db.WithContext(ctx)
	seed := &trustDomain.Score{
		UserID: userID,
		Score:  trustDomain.InitialScore,
		Grade:  trustDomain.GradeFor(trustDomain.InitialScore),
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(seed).Error; err != nil {
		return nil, err
	}
	err := db.Model(&trustDomain.Score{}).Where("user_id = ?", userID).Updates(map[string]any{
		"score":           gorm.Expr("score + ?", d.Score),
		"total_loans":     gorm.Expr("total_loans + ?", d.TotalLoans),
		"completed_loans": gorm.Expr("completed_loans + ?", d.CompletedLoans),
		"ontime_payments": gorm.Expr("ontime_payments + ?", d.OntimePayments),
		"early_payments":  gorm.Expr("early_payments + ?", d.EarlyPayments),
		"late_payments":   gorm.Expr("late_payments + ?", d.LatePayments),
		"total_payments":  gorm.Expr("total_payments + ?", d.TotalPayments),
		"defaults":        gorm.Expr("defaults + ?", d.Defaults),
	}).Error
	if err != nil {
		return nil, err
	}
	out, err := r.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if g := trustDomain.GradeFor(out.Score); g != out.Grade {
		if err := db.Model(&trustDomain.Score{}).Where("id = ?", out.ID).Update("grade", g).Error; err != nil {
			return nil, err
		}
		out.Grade = g
	}
	return out, nil
}

type VouchRepository struct{ db *gorm.DB }

func NewVouchRepository(db *gorm.DB) *VouchRepository { return &VouchRepository{db: db} }

func (r *VouchRepository) Create(ctx context.Context, v *trustDomain.Vouch) error {
	if v.VouchID == "" {
		v.VouchID = id.NewID32()
	}
	return r.db.WithContext(ctx).Create(v).Error
}

func (r *VouchRepository) GetByVouchID(ctx context.Context, vouchID string) (*trustDomain.Vouch, error) {
	var out trustDomain.Vouch
	if err := r.db.WithContext(ctx).Where("vouch_id = ?", vouchID).First(&out).Error; err != nil {
		return nil, notFound(err, trustDomain.ErrNotFound)
	}
	return &out, nil
}

func (r *VouchRepository) GetActivePair(ctx context.Context, voucherID, voucheeID string) (*trustDomain.Vouch, error) {
	var out trustDomain.Vouch
	err := r.db.WithContext(ctx).
		Where("voucher_id = ? AND vouchee_id = ? AND status = ?", voucherID, voucheeID, trustDomain.VouchActive).
		First(&out).Error
	if err != nil {
		return nil, notFound(err, trustDomain.ErrNotFound)
	}
	return &out, nil
}

func (r *VouchRepository) ListActiveForVouchee(ctx context.Context, voucheeID string) ([]trustDomain.Vouch, error) {
	var out []trustDomain.Vouch
	err := r.db.WithContext(ctx).
		Where("vouchee_id = ? AND status = ?", voucheeID, trustDomain.VouchActive).
		Order("id ASC").
		Find(&out).Error
	return out, err
}

func (r *VouchRepository) TagActiveLoan(ctx context.Context, voucheeID, loanID string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&trustDomain.Vouch{}).
		Where("vouchee_id = ? AND status = ?", voucheeID, trustDomain.VouchActive).
		Update("active_loan_id", loanID)
	return res.RowsAffected, res.Error
}

func (r *VouchRepository) ReleaseLoan(ctx context.Context, loanID string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&trustDomain.Vouch{}).
		Where("active_loan_id = ? AND status = ?", loanID, trustDomain.VouchActive).
		Update("active_loan_id", nil)
	return res.RowsAffected, res.Error
}

func (r *VouchRepository) MarkVoucheeDefaulted(ctx context.Context, id uint64, loanID string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&trustDomain.Vouch{}).
		Where("id = ? AND status = ?", id, trustDomain.VouchActive).
		Updates(map[string]any{
			"status":            trustDomain.VouchVoucheeDefaulted,
			"defaulted_loan_id": loanID,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *VouchRepository) Revoke(ctx context.Context, id uint64) (bool, error) {
	res := r.db.WithContext(ctx).Model(&trustDomain.Vouch{}).
		Where("id = ? AND status = ?", id, trustDomain.VouchActive).
		Update("status", trustDomain.VouchRevoked)
	return res.RowsAffected == 1, res.Error
}
