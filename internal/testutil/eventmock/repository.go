package eventmock

import (
	"context"
	"time"

	domain "p2p-lending-engine/internal/domain/event"
)

var _ domain.Repository = (*Repo)(nil)

// Repo is a function-backed mock that satisfies domain.Repository.
// Appended events are kept in Appended when AppendFn is unset.
type Repo struct {
	AppendFn           func(ctx context.Context, t domain.Type, aggregateID string, payload any) (*domain.Outbox, error)
	ListUndispatchedFn func(ctx context.Context, limit int) ([]domain.Outbox, error)
	DeliveredFn        func(ctx context.Context, eventID, subscriber string) (bool, error)
	RecordDeliveryFn   func(ctx context.Context, eventID, subscriber string, at time.Time) error
	MarkDispatchedFn   func(ctx context.Context, id uint64, at time.Time) error
	RecordFailureFn    func(ctx context.Context, id uint64, reason string) error

	Appended []domain.Type
}

func (m *Repo) Append(ctx context.Context, t domain.Type, aggregateID string, payload any) (*domain.Outbox, error) {
	if m.AppendFn != nil {
		return m.AppendFn(ctx, t, aggregateID, payload)
	}
	m.Appended = append(m.Appended, t)
	return &domain.Outbox{Type: t, AggregateID: aggregateID}, nil
}

func (m *Repo) ListUndispatched(ctx context.Context, limit int) ([]domain.Outbox, error) {
	if m.ListUndispatchedFn != nil {
		return m.ListUndispatchedFn(ctx, limit)
	}
	return nil, nil
}

func (m *Repo) Delivered(ctx context.Context, eventID, subscriber string) (bool, error) {
	if m.DeliveredFn != nil {
		return m.DeliveredFn(ctx, eventID, subscriber)
	}
	return false, nil
}

func (m *Repo) RecordDelivery(ctx context.Context, eventID, subscriber string, at time.Time) error {
	if m.RecordDeliveryFn != nil {
		return m.RecordDeliveryFn(ctx, eventID, subscriber, at)
	}
	return nil
}

func (m *Repo) MarkDispatched(ctx context.Context, id uint64, at time.Time) error {
	if m.MarkDispatchedFn != nil {
		return m.MarkDispatchedFn(ctx, id, at)
	}
	return nil
}

func (m *Repo) RecordFailure(ctx context.Context, id uint64, reason string) error {
	if m.RecordFailureFn != nil {
		return m.RecordFailureFn(ctx, id, reason)
	}
	return nil
}
