package installment

import (
	"context"
	"time"
)

type Repository interface {
	// ReplaceForLoan deletes the loan's schedule and inserts items as one batch.
	ReplaceForLoan(ctx context.Context, loanID uint64, items []Installment) error
	ListByLoan(ctx context.Context, loanID uint64) ([]Installment, error)
	GetByInstallmentID(ctx context.Context, installmentID string) (*Installment, error)
	GetByID(ctx context.Context, id uint64) (*Installment, error)

	// ListDueBefore returns unpaid pending installments with due_date < before,
	// overdue ones included.
	ListDueBefore(ctx context.Context, before time.Time) ([]Installment, error)
	// ListRetryable returns failed installments with next_retry_at < before.
	ListRetryable(ctx context.Context, before time.Time) ([]Installment, error)

	// The conditional writes below report false when the row was not in an
	// expected state; callers decide whether that is a no-op or a conflict.
	MarkPaid(ctx context.Context, id uint64, from []Status, paidAt time.Time) (bool, error)
	RecordFailure(ctx context.Context, id uint64, expectedRetryCount int, upd FailureUpdate) (bool, error)
	TouchReminder(ctx context.Context, id uint64, dayStart, now time.Time) (bool, error)
	TouchManualReminder(ctx context.Context, id uint64, maxCount int, notAfter, now time.Time) (bool, error)

	AppendRetryLog(ctx context.Context, l *RetryLog) error
	ListRetryLogs(ctx context.Context, installmentID uint64) ([]RetryLog, error)
}
