package notification

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindReminder         Kind = "reminder"
	KindManualReminder   Kind = "manual_reminder"
	KindAutopayWarning   Kind = "autopay_warning"
	KindPaymentConfirmed Kind = "payment_confirmed"
	KindPaymentFailed    Kind = "payment_failed"
	KindDefault          Kind = "default"
	KindBlocked          Kind = "borrower_blocked"
	KindLoanCompleted    Kind = "loan_completed"
)

// Notification is a semantic event for an external renderer. It never
// carries rail error detail.
type Notification struct {
	Kind          Kind            `json:"kind"`
	UserID        string          `json:"user_id"`
	LoanID        string          `json:"loan_id,omitempty"`
	InstallmentID string          `json:"installment_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	DueDate       *time.Time      `json:"due_date,omitempty"`
	RetryCount    int             `json:"retry_count,omitempty"`
	NextRetryAt   *time.Time      `json:"next_retry_at,omitempty"`
	At            time.Time       `json:"at"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
