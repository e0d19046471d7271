package event

import (
	"context"
	"time"
)

type Repository interface {
	// Append serialises payload into a new outbox row.
	Append(ctx context.Context, t Type, aggregateID string, payload any) (*Outbox, error)
	ListUndispatched(ctx context.Context, limit int) ([]Outbox, error)
	Delivered(ctx context.Context, eventID, subscriber string) (bool, error)
	RecordDelivery(ctx context.Context, eventID, subscriber string, at time.Time) error
	MarkDispatched(ctx context.Context, id uint64, at time.Time) error
	RecordFailure(ctx context.Context, id uint64, reason string) error
}
