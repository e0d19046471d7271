package risk

import (
	"context"
	"time"
)

type BorrowerRepository interface {
	// Ensure returns the borrower row, creating a neutral one if missing.
	Ensure(ctx context.Context, borrowerID string) (*Borrower, error)
	GetByBorrowerID(ctx context.Context, borrowerID string) (*Borrower, error)
	GetForUpdate(ctx context.Context, borrowerID string) (*Borrower, error)
	Save(ctx context.Context, b *Borrower) error
}

type BlockRepository interface {
	// Create inserts an active block; the unique active guard rejects a second one.
	Create(ctx context.Context, b *Block) error
	GetActive(ctx context.Context, borrowerID string) (*Block, error)
	ListByBorrower(ctx context.Context, borrowerID string) ([]Block, error)
	// CountOpen counts blocks still in active or debt_cleared.
	CountOpen(ctx context.Context, borrowerID string) (int64, error)
	ListRestrictionsDue(ctx context.Context, now time.Time) ([]Block, error)

	// Conditional transitions; false means the block was not in the source state.
	ClearDebt(ctx context.Context, id uint64, clearedAt, restrictionEndsAt time.Time) (bool, error)
	EndRestriction(ctx context.Context, id uint64, liftedAt time.Time) (bool, error)
	AdminUnblock(ctx context.Context, id uint64, adminID string, at time.Time) (bool, error)
}

// StatusReader is the read-only blocking query other packages depend on.
type StatusReader interface {
	IsBlocked(ctx context.Context, borrowerID string) (bool, error)
}
