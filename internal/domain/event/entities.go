package event

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type Type string

const (
	TypeLoanActivated        Type = "loan.activated"
	TypeInstallmentPaid      Type = "installment.paid"
	TypeInstallmentDefaulted Type = "installment.defaulted"
	TypeLoanCompleted        Type = "loan.completed"
	TypeDebtSettled          Type = "debt.settled"
	TypeBorrowerBlocked      Type = "borrower.blocked"
)

// Table: outbox_events. Rows are written in the same transaction as the
// state change they describe.
type Outbox struct {
	ID           uint64     `gorm:"column:id;primaryKey;autoIncrement"`
	EventID      string     `gorm:"column:event_id;size:36;not null;uniqueIndex:ux_outbox_events_event_id"`
	Type         Type       `gorm:"column:type;size:48;not null"`
	AggregateID  string     `gorm:"column:aggregate_id;size:32;not null;index"`
	Payload      []byte     `gorm:"column:payload;type:blob;not null"`
	Attempts     int        `gorm:"column:attempts;not null;default:0"`
	LastError    string     `gorm:"column:last_error;type:text"`
	DispatchedAt *time.Time `gorm:"column:dispatched_at;index"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (Outbox) TableName() string { return "outbox_events" }

// Table: event_deliveries. One row per (event, subscriber) that succeeded.
type Delivery struct {
	ID          uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	EventID     string    `gorm:"column:event_id;size:36;not null;uniqueIndex:ux_event_deliveries_event_sub"`
	Subscriber  string    `gorm:"column:subscriber;size:48;not null;uniqueIndex:ux_event_deliveries_event_sub"`
	DeliveredAt time.Time `gorm:"column:delivered_at;not null"`
}

func (Delivery) TableName() string { return "event_deliveries" }

type LoanActivated struct {
	LoanID     string    `json:"loan_id"`
	BorrowerID string    `json:"borrower_id"`
	LenderID   string    `json:"lender_id"`
	At         time.Time `json:"at"`
}

type InstallmentPaid struct {
	LoanID        string          `json:"loan_id"`
	InstallmentID string          `json:"installment_id"`
	BorrowerID    string          `json:"borrower_id"`
	Amount        decimal.Decimal `json:"amount"`
	DueDate       time.Time       `json:"due_date"`
	PaidAt        time.Time       `json:"paid_at"`
	Manual        bool            `json:"manual"`
}

type InstallmentDefaulted struct {
	LoanID        string          `json:"loan_id"`
	InstallmentID string          `json:"installment_id"`
	BorrowerID    string          `json:"borrower_id"`
	RemainingDebt decimal.Decimal `json:"remaining_debt"`
	Attempts      int             `json:"attempts"`
	LastError     string          `json:"last_error"`
	DefaultedAt   time.Time       `json:"defaulted_at"`
}

type LoanCompleted struct {
	LoanID      string    `json:"loan_id"`
	BorrowerID  string    `json:"borrower_id"`
	CompletedAt time.Time `json:"completed_at"`
}

type DebtSettled struct {
	LoanID          string          `json:"loan_id"`
	BorrowerID      string          `json:"borrower_id"`
	Amount          decimal.Decimal `json:"amount"`
	AmountRemaining decimal.Decimal `json:"amount_remaining"`
	SettledAt       time.Time       `json:"settled_at"`
}

type BorrowerBlocked struct {
	BorrowerID string          `json:"borrower_id"`
	BlockID    string          `json:"block_id"`
	LoanID     string          `json:"loan_id"`
	TotalDebt  decimal.Decimal `json:"total_debt"`
	At         time.Time       `json:"at"`
}

// Decode unmarshals the outbox payload into v.
func (o Outbox) Decode(v any) error { return json.Unmarshal(o.Payload, v) }
