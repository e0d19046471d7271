package transfer

import (
	"context"
	"time"
)

type Repository interface {
	// GetLiveByIntent returns the pending or completed transfer for an intent.
	GetLiveByIntent(ctx context.Context, intentKey string) (*Transfer, error)
	GetByTransferID(ctx context.Context, transferID string) (*Transfer, error)
	// Reserve inserts t ignoring a conflict on the intent key; it reports
	// whether this call created the row.
	Reserve(ctx context.Context, t *Transfer) (bool, error)
	// Settle records the rail outcome on a pending transfer.
	Settle(ctx context.Context, id uint64, referenceID string, status Status) error
	// Fail moves a pending transfer to failed or cancelled and frees its intent.
	Fail(ctx context.Context, id uint64, status Status, reason string) (bool, error)
	Complete(ctx context.Context, id uint64) (bool, error)
	ListPending(ctx context.Context, limit int) ([]Transfer, error)
	ListStaleReservations(ctx context.Context, olderThan time.Time) ([]Transfer, error)
	ListByLoan(ctx context.Context, loanID string) ([]Transfer, error)
}
