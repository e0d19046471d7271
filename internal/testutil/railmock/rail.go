package railmock

import (
	"context"
	"errors"
	"sync"

	domain "p2p-lending-engine/internal/domain/transfer"
)

var _ domain.Rail = (*Rail)(nil)

var errUnimplemented = errors.New("railmock: method not implemented")

// Rail is a function-backed payment rail. Every instruction it receives is
// recorded in Calls.
type Rail struct {
	ExecuteTransferFn func(ctx context.Context, in domain.Instruction) (domain.RailResult, error)
	TransferStatusFn  func(ctx context.Context, referenceID string) (domain.Status, error)

	mu    sync.Mutex
	Calls []domain.Instruction
}

// Accepting returns a rail that completes every transfer with reference ref.
func Accepting(ref string) *Rail {
	return &Rail{ExecuteTransferFn: func(_ context.Context, in domain.Instruction) (domain.RailResult, error) {
		return domain.RailResult{ReferenceID: ref + "-" + in.IdempotencyKey, Status: domain.StatusCompleted}, nil
	}}
}

// Failing returns a rail that rejects every transfer with err.
func Failing(err error) *Rail {
	return &Rail{ExecuteTransferFn: func(context.Context, domain.Instruction) (domain.RailResult, error) {
		return domain.RailResult{}, err
	}}
}

func (m *Rail) ExecuteTransfer(ctx context.Context, in domain.Instruction) (domain.RailResult, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, in)
	m.mu.Unlock()
	if m.ExecuteTransferFn != nil {
		return m.ExecuteTransferFn(ctx, in)
	}
	return domain.RailResult{}, errUnimplemented
}

func (m *Rail) TransferStatus(ctx context.Context, referenceID string) (domain.Status, error) {
	if m.TransferStatusFn != nil {
		return m.TransferStatusFn(ctx, referenceID)
	}
	return "", errUnimplemented
}

func (m *Rail) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
