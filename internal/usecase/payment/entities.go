package payment

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"p2p-lending-engine/internal/domain/installment"
	domainTransfer "p2p-lending-engine/internal/domain/transfer"
	"p2p-lending-engine/internal/usecase/transfer"
)

// TransferRequester is the money-movement entry point used for collection.
type TransferRequester interface {
	RequestTransfer(ctx context.Context, req transfer.Request) (*domainTransfer.Transfer, error)
}

// RunLock keeps a named driver to one run per day.
type RunLock interface {
	Acquire(ctx context.Context, job string, day time.Time) (bool, error)
	Release(ctx context.Context, job string, day time.Time) error
}

type Flusher interface {
	Flush(ctx context.Context)
}

type Report struct {
	Skipped    bool `json:"skipped"`
	Candidates int  `json:"candidates"`
	Collected  int  `json:"collected"`
	Failed     int  `json:"failed"`
	Defaulted  int  `json:"defaulted"`
	Warnings   int  `json:"warnings"`
	Reminders  int  `json:"reminders"`
	Errors     int  `json:"errors"`
}

// InstallmentDTO is the borrower-facing view: attempt counts and next retry,
// never rail error detail.
type InstallmentDTO struct {
	InstallmentID string             `json:"installment_id"`
	Sequence      int                `json:"sequence"`
	DueDate       string             `json:"due_date"`
	Amount        decimal.Decimal    `json:"amount"`
	Principal     decimal.Decimal    `json:"principal_amount"`
	Interest      decimal.Decimal    `json:"interest_amount"`
	Status        installment.Status `json:"status"`
	Paid          bool               `json:"paid"`
	PaidAt        *time.Time         `json:"paid_at,omitempty"`
	RetryCount    int                `json:"retry_count"`
	NextRetryAt   *time.Time         `json:"next_retry_at,omitempty"`
}

func ToDTO(in installment.Installment) InstallmentDTO {
	return InstallmentDTO{
		InstallmentID: in.InstallmentID,
		Sequence:      in.Sequence,
		DueDate:       in.DueDate.Format("2006-01-02"),
		Amount:        in.Amount,
		Principal:     in.PrincipalAmount,
		Interest:      in.InterestAmount,
		Status:        in.Status,
		Paid:          in.Paid,
		PaidAt:        in.PaidAt,
		RetryCount:    in.RetryCount,
		NextRetryAt:   in.NextRetryAt,
	}
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomePaid
	outcomeFailed
	outcomeDefaulted
)
