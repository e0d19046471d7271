package mysql

import (
	"context"

	"p2p-lending-engine/internal/domain/loan"
	"p2p-lending-engine/internal/domain/uow"

	"gorm.io/gorm"
)

type GormUoW struct{ db *gorm.DB }

func NewGormUoW(db *gorm.DB) *GormUoW { return &GormUoW{db: db} }

// Repositories binds every repository to db, which may be a transaction.
func Repositories(db *gorm.DB) uow.Repos {
	return uow.Repos{
		Loans:        &LoanRepository{db: db},
		Installments: &InstallmentRepository{db: db},
		Transfers:    &TransferRepository{db: db},
		Borrowers:    &BorrowerRepository{db: db},
		Blocks:       &BlockRepository{db: db},
		Scores:       &ScoreRepository{db: db},
		Vouches:      &VouchRepository{db: db},
		Events:       &EventRepository{db: db},
	}
}

func (u *GormUoW) WithinTx(ctx context.Context, fn func(r uow.Repos) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(Repositories(tx))
	})
}

func (u *GormUoW) WithinLoanTx(ctx context.Context, loanID string, fn func(r uow.Repos, l *loan.Loan) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r := Repositories(tx)
		// lock the loan row up-front to prevent races
		l, err := r.Loans.GetByLoanIDForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		return fn(r, l)
	})
}
