package installment

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound           = errors.New("installment not found")
	ErrAlreadyPaid        = errors.New("installment already paid")
	ErrInvalidTransition  = errors.New("invalid installment state transition")
	ErrMaxRetriesExceeded = errors.New("max collection retries exceeded")
	ErrReminderLimit      = errors.New("manual reminder limit reached")
	ErrReminderTooSoon    = errors.New("manual reminder sent less than 24h ago")
	// ErrConflict reports that another writer moved the installment first.
	ErrConflict = errors.New("installment was modified concurrently")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusFailed    Status = "failed"
	StatusDefaulted Status = "defaulted"
)

// Terminal reports whether no further transition may leave s.
func (s Status) Terminal() bool { return s == StatusPaid || s == StatusDefaulted }

// Table: installments
type Installment struct {
	ID                   uint64          `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	InstallmentID        string          `gorm:"column:installment_id;size:32;uniqueIndex:ux_installments_installment_id" json:"installment_id"`
	LoanID               uint64          `gorm:"column:loan_id;not null;index;uniqueIndex:ux_installments_loan_seq" json:"-"`
	Sequence             int             `gorm:"column:sequence;not null;uniqueIndex:ux_installments_loan_seq" json:"sequence"`
	DueDate              time.Time       `gorm:"column:due_date;type:date;not null;index:idx_installments_status_due" json:"due_date"`
	Amount               decimal.Decimal `gorm:"column:amount;type:decimal(18,2);not null" json:"amount"`
	PrincipalAmount      decimal.Decimal `gorm:"column:principal_amount;type:decimal(18,2);not null" json:"principal_amount"`
	InterestAmount       decimal.Decimal `gorm:"column:interest_amount;type:decimal(18,2);not null" json:"interest_amount"`
	Paid                 bool            `gorm:"column:paid;not null;default:false" json:"paid"`
	PaidAt               *time.Time      `gorm:"column:paid_at" json:"paid_at,omitempty"`
	Status               Status          `gorm:"column:status;size:16;not null;default:pending;index:idx_installments_status_due" json:"status"`
	RetryCount           int             `gorm:"column:retry_count;not null;default:0" json:"retry_count"`
	LastRetryAt          *time.Time      `gorm:"column:last_retry_at" json:"last_retry_at,omitempty"`
	NextRetryAt          *time.Time      `gorm:"column:next_retry_at;index" json:"next_retry_at,omitempty"`
	CausedBlock          bool            `gorm:"column:caused_block;not null;default:false" json:"caused_block"`
	ReminderSentAt       *time.Time      `gorm:"column:reminder_sent_at" json:"-"`
	ManualReminderCount  int             `gorm:"column:manual_reminder_count;not null;default:0" json:"manual_reminder_count"`
	LastManualReminderAt *time.Time      `gorm:"column:last_manual_reminder_at" json:"-"`
	LastError            string          `gorm:"column:last_error;type:text" json:"-"`
	CreatedAt            time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Installment) TableName() string { return "installments" }

// Table: installment_retry_logs. Rows are append-only.
type RetryLog struct {
	ID             uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	InstallmentID  uint64    `gorm:"column:installment_id;not null;index" json:"-"`
	AttemptNumber  int       `gorm:"column:attempt_number;not null" json:"attempt_number"`
	Success        bool      `gorm:"column:success;not null" json:"success"`
	ErrorMessage   string    `gorm:"column:error_message;type:text" json:"error_message,omitempty"`
	IsFinalAttempt bool      `gorm:"column:is_final_attempt;not null" json:"is_final_attempt"`
	TransferID     string    `gorm:"column:transfer_id;size:32" json:"transfer_id,omitempty"`
	AttemptedAt    time.Time `gorm:"column:attempted_at;not null" json:"attempted_at"`
}

func (RetryLog) TableName() string { return "installment_retry_logs" }

// FailureUpdate is the state written after a failed collection attempt.
type FailureUpdate struct {
	Status      Status
	RetryCount  int
	AttemptedAt time.Time
	NextRetryAt *time.Time
	CausedBlock bool
	LastError   string
}
