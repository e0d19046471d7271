package loanmock

import (
	"context"
	"sync"

	domain "p2p-lending-engine/internal/domain/loan"
)

var _ domain.Repository = (*Repo)(nil)

// Repo is a function-backed mock that satisfies domain.Repository.
// Unset lookups return context.Canceled; unset writes are no-ops.
type Repo struct {
	CreateFn                     func(ctx context.Context, l *domain.Loan) error
	GetByLoanIDFn                func(ctx context.Context, loanID string) (*domain.Loan, error)
	GetByIDFn                    func(ctx context.Context, id uint64) (*domain.Loan, error)
	SaveFn                       func(ctx context.Context, l *domain.Loan) error
	GetPendingLoanByBorrowerIDFn func(ctx context.Context, borrowerID string) (*domain.Loan, error)
	GetByLoanIDForUpdateFn       func(ctx context.Context, loanID string) (*domain.Loan, error)
	GetByIDForUpdateFn           func(ctx context.Context, id uint64) (*domain.Loan, error)
	ListByBorrowerAndStatusFn    func(ctx context.Context, borrowerID string, status domain.Status) ([]domain.Loan, error)
}

func (m *Repo) Create(ctx context.Context, l *domain.Loan) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, l)
	}
	return nil
}
func (m *Repo) GetByLoanID(ctx context.Context, loanID string) (*domain.Loan, error) {
	if m.GetByLoanIDFn != nil {
		return m.GetByLoanIDFn(ctx, loanID)
	}
	return nil, context.Canceled
}
func (m *Repo) GetByID(ctx context.Context, id uint64) (*domain.Loan, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, id)
	}
	return nil, context.Canceled
}
func (m *Repo) Save(ctx context.Context, l *domain.Loan) error {
	if m.SaveFn != nil {
		return m.SaveFn(ctx, l)
	}
	return nil
}

func (m *Repo) GetPendingLoanByBorrowerID(ctx context.Context, borrowerID string) (*domain.Loan, error) {
	if m.GetPendingLoanByBorrowerIDFn != nil {
		return m.GetPendingLoanByBorrowerIDFn(ctx, borrowerID)
	}
	return nil, context.Canceled
}

func (m *Repo) GetByLoanIDForUpdate(ctx context.Context, loanID string) (*domain.Loan, error) {
	if m.GetByLoanIDForUpdateFn != nil {
		return m.GetByLoanIDForUpdateFn(ctx, loanID)
	}
	return nil, context.Canceled
}

func (m *Repo) GetByIDForUpdate(ctx context.Context, id uint64) (*domain.Loan, error) {
	if m.GetByIDForUpdateFn != nil {
		return m.GetByIDForUpdateFn(ctx, id)
	}
	return nil, context.Canceled
}

func (m *Repo) ListByBorrowerAndStatus(ctx context.Context, borrowerID string, status domain.Status) ([]domain.Loan, error) {
	if m.ListByBorrowerAndStatusFn != nil {
		return m.ListByBorrowerAndStatusFn(ctx, borrowerID, status)
	}
	return nil, nil
}

// WithLoans returns a Repo backed by an in-memory set of loans. Lookups miss
// with domain.ErrNotFound; Create and Save write through to the set.
func WithLoans(loans ...*domain.Loan) *Repo {
	var mu sync.Mutex
	byID := map[string]*domain.Loan{}
	var nextID uint64
	put := func(l *domain.Loan) {
		if l.ID == 0 {
			nextID++
			l.ID = nextID
		} else if l.ID > nextID {
			nextID = l.ID
		}
		cp := *l
		byID[l.LoanID] = &cp
	}
	for _, l := range loans {
		put(l)
	}
	get := func(loanID string) (*domain.Loan, error) {
		mu.Lock()
		defer mu.Unlock()
		l, ok := byID[loanID]
		if !ok {
			return nil, domain.ErrNotFound
		}
		cp := *l
		return &cp, nil
	}
	getByID := func(id uint64) (*domain.Loan, error) {
		mu.Lock()
		defer mu.Unlock()
		for _, l := range byID {
			if l.ID == id {
				cp := *l
				return &cp, nil
			}
		}
		return nil, domain.ErrNotFound
	}
	write := func(_ context.Context, l *domain.Loan) error {
		mu.Lock()
		defer mu.Unlock()
		put(l)
		return nil
	}

	return &Repo{
		CreateFn:               write,
		SaveFn:                 write,
		GetByLoanIDFn:          func(_ context.Context, id string) (*domain.Loan, error) { return get(id) },
		GetByLoanIDForUpdateFn: func(_ context.Context, id string) (*domain.Loan, error) { return get(id) },
		GetByIDFn:              func(_ context.Context, id uint64) (*domain.Loan, error) { return getByID(id) },
		GetByIDForUpdateFn:     func(_ context.Context, id uint64) (*domain.Loan, error) { return getByID(id) },
		GetPendingLoanByBorrowerIDFn: func(_ context.Context, borrowerID string) (*domain.Loan, error) {
			mu.Lock()
			defer mu.Unlock()
			for _, l := range byID {
				if l.BorrowerID == borrowerID && l.Status == domain.StatusPending {
					cp := *l
					return &cp, nil
				}
			}
			return nil, domain.ErrNotFound
		},
		ListByBorrowerAndStatusFn: func(_ context.Context, borrowerID string, status domain.Status) ([]domain.Loan, error) {
			mu.Lock()
			defer mu.Unlock()
			var out []domain.Loan
			for _, l := range byID {
				if l.BorrowerID == borrowerID && l.Status == status {
					out = append(out, *l)
				}
			}
			return out, nil
		},
	}
}
