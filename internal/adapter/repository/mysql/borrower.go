package mysql

import (
	"context"

	riskDomain "p2p-lending-engine/internal/domain/risk"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type BorrowerRepository struct{ db *gorm.DB }

func NewBorrowerRepository(db *gorm.DB) *BorrowerRepository { return &BorrowerRepository{db: db} }

func (r *BorrowerRepository) Ensure(ctx context.Context, borrowerID string) (*riskDomain.Borrower, error) {
	b := &riskDomain.Borrower{BorrowerID: borrowerID, BorrowerRating: riskDomain.RatingNeutral}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(b).Error; err != nil {
		return nil, err
	}
	return r.GetByBorrowerID(ctx, borrowerID)
}

func (r *BorrowerRepository) GetByBorrowerID(ctx context.Context, borrowerID string) (*riskDomain.Borrower, error) {
	var out riskDomain.Borrower
	if err := r.db.WithContext(ctx).Where("borrower_id = ?", borrowerID).First(&out).Error; err != nil {
		return nil, notFound(err, riskDomain.ErrNotFound)
	}
	return &out, nil
}

func (r *BorrowerRepository) GetForUpdate(ctx context.Context, borrowerID string) (*riskDomain.Borrower, error) {
	var out riskDomain.Borrower
	if err := forUpdate(r.db.WithContext(ctx)).Where("borrower_id = ?", borrowerID).First(&out).Error; err != nil {
		return nil, notFound(err, riskDomain.ErrNotFound)
	}
	return &out, nil
}

func (r *BorrowerRepository) Save(ctx context.Context, b *riskDomain.Borrower) error {
	return r.db.WithContext(ctx).Save(b).Error
}
