package trust

import "context"

type ScoreRepository interface {
	Get(ctx context.Context, userID string) (*Score, error)
	// Apply adds d to the user's row (creating it at InitialScore first) and
	// refreshes the grade.
	Apply(ctx context.Context, userID string, d Delta) (*Score, error)
}

type VouchRepository interface {
	Create(ctx context.Context, v *Vouch) error
	GetByVouchID(ctx context.Context, vouchID string) (*Vouch, error)
	GetActivePair(ctx context.Context, voucherID, voucheeID string) (*Vouch, error)
	ListActiveForVouchee(ctx context.Context, voucheeID string) ([]Vouch, error)
	TagActiveLoan(ctx context.Context, voucheeID, loanID string) (int64, error)
	ReleaseLoan(ctx context.Context, loanID string) (int64, error)
	// MarkVoucheeDefaulted is conditional on the vouch still being active.
	MarkVoucheeDefaulted(ctx context.Context, id uint64, loanID string) (bool, error)
	Revoke(ctx context.Context, id uint64) (bool, error)
}
