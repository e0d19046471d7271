package loan

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrNotFound          = errors.New("loan not found")
	ErrInvalidTransition = errors.New("invalid loan state transition")
	ErrInvalidTerms      = errors.New("invalid loan terms")
	ErrPendingExists     = errors.New("borrower already has a pending loan")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusDefaulted Status = "defaulted"
	StatusCancelled Status = "cancelled"
)

type Frequency string

const (
	FrequencyWeekly   Frequency = "weekly"
	FrequencyBiweekly Frequency = "biweekly"
	Frequency30Day    Frequency = "30day"
)

// Step returns the distance between two due dates, or false for an unknown frequency.
func (f Frequency) Step() (time.Duration, bool) {
	switch f {
	case FrequencyWeekly:
		return 7 * 24 * time.Hour, true
	case FrequencyBiweekly:
		return 14 * 24 * time.Hour, true
	case Frequency30Day:
		return 30 * 24 * time.Hour, true
	}
	return 0, false
}

const InterestFlat = "flat"

type Loan struct {
	ID                    uint64          `gorm:"primaryKey;column:id" json:"-"`
	LoanID                string          `gorm:"size:32;uniqueIndex:ux_loans_loan_id" json:"loan_id"`
	BorrowerID            string          `gorm:"size:32;index:idx_loans_borrower_status" json:"borrower_id"`
	LenderID              string          `gorm:"size:32;index" json:"lender_id"`
	Principal             decimal.Decimal `gorm:"type:decimal(18,2)" json:"principal"`
	Currency              string          `gorm:"size:3" json:"currency"`
	InterestRate          decimal.Decimal `gorm:"type:decimal(8,4)" json:"interest_rate"`
	InterestMethod        string          `gorm:"size:16;default:flat" json:"interest_method"`
	TotalInstallments     int             `json:"total_installments"`
	Frequency             Frequency       `gorm:"size:16" json:"frequency"`
	StartDate             *time.Time      `json:"start_date,omitempty"`
	TotalInterest         decimal.Decimal `gorm:"type:decimal(18,2)" json:"total_interest"`
	TotalAmount           decimal.Decimal `gorm:"type:decimal(18,2)" json:"total_amount"`
	AmountPaid            decimal.Decimal `gorm:"type:decimal(18,2)" json:"amount_paid"`
	AmountRemaining       decimal.Decimal `gorm:"type:decimal(18,2)" json:"amount_remaining"`
	AutoPayEnabled        bool            `json:"auto_pay_enabled"`
	BorrowerFundingSource string          `gorm:"size:64" json:"-"`
	LenderFundingSource   string          `gorm:"size:64" json:"-"`
	Status                Status          `gorm:"size:16;index:idx_loans_borrower_status;default:pending" json:"status"`
	ActivatedAt           *time.Time      `json:"activated_at,omitempty"`
	CompletedAt           *time.Time      `json:"completed_at,omitempty"`
	DefaultedAt           *time.Time      `json:"defaulted_at,omitempty"`
	CreatedAt             time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt             gorm.DeletedAt  `gorm:"index" json:"-"`
}

func (Loan) TableName() string { return "loans" }

// ApplyPayment credits amount against the running balances and reports
// whether the loan is now fully repaid.
func (l *Loan) ApplyPayment(amount decimal.Decimal) bool {
	l.AmountPaid = l.AmountPaid.Add(amount)
	l.AmountRemaining = l.AmountRemaining.Sub(amount)
	if l.AmountRemaining.IsNegative() {
		l.AmountRemaining = decimal.Zero
	}
	return l.AmountRemaining.IsZero()
}
