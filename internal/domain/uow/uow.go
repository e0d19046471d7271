package uow

import (
	"context"

	"p2p-lending-engine/internal/domain/event"
	"p2p-lending-engine/internal/domain/installment"
	"p2p-lending-engine/internal/domain/loan"
	"p2p-lending-engine/internal/domain/risk"
	"p2p-lending-engine/internal/domain/transfer"
	"p2p-lending-engine/internal/domain/trust"
)

// Repos is the set of repositories bound to one transaction.
type Repos struct {
	Loans        loan.Repository
	Installments installment.Repository
	Transfers    transfer.Repository
	Borrowers    risk.BorrowerRepository
	Blocks       risk.BlockRepository
	Scores       trust.ScoreRepository
	Vouches      trust.VouchRepository
	Events       event.Repository
}

type UnitOfWork interface {
	// plain tx
	WithinTx(ctx context.Context, fn func(r Repos) error) error
	// convenience: lock loan first, then pass it in
	WithinLoanTx(ctx context.Context, loanID string, fn func(r Repos, l *loan.Loan) error) error
}
