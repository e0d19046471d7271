package rail

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"

	"p2p-lending-engine/internal/config"
	domain "p2p-lending-engine/internal/domain/transfer"
)

// FailPrefix marks sandbox funding sources that always bounce.
const FailPrefix = "nsf-"

var ErrInsufficientFunds = errors.New("insufficient funds")

var _ domain.Rail = (*Sandbox)(nil)

// Sandbox is an in-process rail for local runs. Transfers complete
// immediately unless the source starts with FailPrefix. Repeating an
// idempotency key returns the first answer.
type Sandbox struct {
	mu       sync.Mutex
	byKey    map[string]domain.RailResult
	statuses map[string]domain.Status
}

func NewSandbox() *Sandbox {
	return &Sandbox{
		byKey:    map[string]domain.RailResult{},
		statuses: map[string]domain.Status{},
	}
}

func (s *Sandbox) ExecuteTransfer(ctx context.Context, in domain.Instruction) (domain.RailResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.RailResult{}, err
	}
	if strings.HasPrefix(in.Source, FailPrefix) {
		return domain.RailResult{}, ErrInsufficientFunds
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if res, ok := s.byKey[in.IdempotencyKey]; ok && in.IdempotencyKey != "" {
		return res, nil
	}
	res := domain.RailResult{ReferenceID: "sbx-" + uuid.NewString(), Status: domain.StatusCompleted}
	s.byKey[in.IdempotencyKey] = res
	s.statuses[res.ReferenceID] = res.Status
	return res, nil
}

func (s *Sandbox) TransferStatus(_ context.Context, referenceID string) (domain.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.statuses[referenceID]
	if !ok {
		return "", domain.ErrNotFound
	}
	return st, nil
}

// New picks the HTTP rail when a base URL is configured and the sandbox
// otherwise.
func New(cfg config.RailConfig) domain.Rail {
	if cfg.BaseURL == "" {
		return NewSandbox()
	}
	return NewHTTPRail(cfg)
}
