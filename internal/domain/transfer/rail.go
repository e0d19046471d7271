package transfer

import (
	"context"

	"github.com/shopspring/decimal"
)

// Instruction is what the payment rail is asked to execute.
type Instruction struct {
	IdempotencyKey string
	Source         string
	Destination    string
	Amount         decimal.Decimal
	Fee            decimal.Decimal
	Metadata       map[string]string
}

// RailResult is the rail's synchronous answer. Rails are asynchronous, so a
// pending status with a reference id counts as accepted.
type RailResult struct {
	ReferenceID string
	Status      Status
}

// Rail is the external money-movement capability. Timeouts are enforced by
// the implementation and surface as errors.
type Rail interface {
	ExecuteTransfer(ctx context.Context, in Instruction) (RailResult, error)
	TransferStatus(ctx context.Context, referenceID string) (Status, error)
}
