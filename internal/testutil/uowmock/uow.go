package uowmock

import (
	"context"
	"errors"
	"sync"

	"p2p-lending-engine/internal/domain/loan"
	"p2p-lending-engine/internal/domain/uow"
)

var _ uow.UnitOfWork = (*UoW)(nil)

var errUnimplemented = errors.New("uowmock: method not implemented")

// UoW is a function-backed unit of work. It records which loans were locked
// and how many transactions committed or rolled back.
type UoW struct {
	WithinTxFn     func(ctx context.Context, fn func(r uow.Repos) error) error
	WithinLoanTxFn func(ctx context.Context, loanID string, fn func(r uow.Repos, l *loan.Loan) error) error

	mu        sync.Mutex
	Locked    []string
	Commits   int
	Rollbacks int
}

// Over runs every transaction directly against repos. WithinLoanTx locks
// through repos.Loans.GetByLoanIDForUpdate, so lookup errors surface as they
// would from the real unit of work.
func Over(repos uow.Repos) *UoW {
	return &UoW{
		WithinTxFn: func(_ context.Context, fn func(uow.Repos) error) error { return fn(repos) },
		WithinLoanTxFn: func(ctx context.Context, loanID string, fn func(uow.Repos, *loan.Loan) error) error {
			l, err := repos.Loans.GetByLoanIDForUpdate(ctx, loanID)
			if err != nil {
				return err
			}
			return fn(repos, l)
		},
	}
}

func (m *UoW) record(err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.Rollbacks++
	} else {
		m.Commits++
	}
	return err
}

func (m *UoW) WithinTx(ctx context.Context, fn func(r uow.Repos) error) error {
	if m.WithinTxFn == nil {
		return errUnimplemented
	}
	return m.record(m.WithinTxFn(ctx, fn))
}

func (m *UoW) WithinLoanTx(ctx context.Context, loanID string, fn func(r uow.Repos, l *loan.Loan) error) error {
	if m.WithinLoanTxFn == nil {
		return errUnimplemented
	}
	m.mu.Lock()
	m.Locked = append(m.Locked, loanID)
	m.mu.Unlock()
	return m.record(m.WithinLoanTxFn(ctx, loanID, fn))
}
