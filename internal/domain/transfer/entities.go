package transfer

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound       = errors.New("transfer not found")
	ErrTransferFailed = errors.New("transfer failed")
	// ErrDuplicateDisbursement marks a request absorbed by an existing live
	// transfer. It is logged, never returned to callers.
	ErrDuplicateDisbursement = errors.New("duplicate transfer request")
)

type Type string

const (
	TypeDisbursement Type = "disbursement"
	TypeRepayment    Type = "repayment"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Live reports whether a transfer in status s still represents its intent.
func (s Status) Live() bool { return s == StatusPending || s == StatusCompleted }

// Table: transfers
type Transfer struct {
	ID            uint64 `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	TransferID    string `gorm:"column:transfer_id;size:32;uniqueIndex:ux_transfers_transfer_id" json:"transfer_id"`
	LoanID        string `gorm:"column:loan_id;size:32;not null;index:idx_transfers_loan_type" json:"loan_id"`
	Type          Type   `gorm:"column:type;size:16;not null;index:idx_transfers_loan_type" json:"type"`
	InstallmentID string `gorm:"column:installment_id;size:32" json:"installment_id,omitempty"`
	Source        string `gorm:"column:source;size:64;not null" json:"-"`
	Destination   string `gorm:"column:destination;size:64;not null" json:"-"`
	// ReferenceID is the rail's own id; unique across all transfers.
	ReferenceID *string         `gorm:"column:reference_id;size:64;uniqueIndex:ux_transfers_reference_id" json:"reference_id,omitempty"`
	GrossAmount decimal.Decimal `gorm:"column:gross_amount;type:decimal(18,2);not null" json:"gross_amount"`
	FeeAmount   decimal.Decimal `gorm:"column:fee_amount;type:decimal(18,2);not null" json:"fee_amount"`
	NetAmount   decimal.Decimal `gorm:"column:net_amount;type:decimal(18,2);not null" json:"net_amount"`
	Status      Status          `gorm:"column:status;size:16;not null;index" json:"status"`
	// IntentKey is set while the transfer is live and NULL once failed or
	// cancelled, so the unique index admits one live transfer per intent.
	IntentKey     *string   `gorm:"column:intent_key;size:128;uniqueIndex:ux_transfers_intent_key" json:"-"`
	FailureReason string    `gorm:"column:failure_reason;type:text" json:"-"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Transfer) TableName() string { return "transfers" }

// IntentKey identifies one logical money movement.
func IntentKey(loanID string, t Type, installmentID string) string {
	if t == TypeRepayment && installmentID != "" {
		return loanID + ":" + string(t) + ":" + installmentID
	}
	return loanID + ":" + string(t)
}
