package trust

import (
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("trust record not found")
	ErrSelfVouch     = errors.New("a user cannot vouch for themselves")
	ErrVouchExists   = errors.New("an active vouch already exists for this pair")
	ErrVouchInactive = errors.New("vouch is not active")
)

const InitialScore = 500

// Table: trust_scores. Counters and score only move by increments.
type Score struct {
	ID             uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	UserID         string    `gorm:"column:user_id;size:32;not null;uniqueIndex:ux_trust_scores_user_id" json:"user_id"`
	Score          int       `gorm:"column:score;not null" json:"score"`
	Grade          string    `gorm:"column:grade;size:16;not null" json:"grade"`
	TotalLoans     int       `gorm:"column:total_loans;not null;default:0" json:"total_loans"`
	CompletedLoans int       `gorm:"column:completed_loans;not null;default:0" json:"completed_loans"`
	OntimePayments int       `gorm:"column:ontime_payments;not null;default:0" json:"ontime_payments"`
	EarlyPayments  int       `gorm:"column:early_payments;not null;default:0" json:"early_payments"`
	LatePayments   int       `gorm:"column:late_payments;not null;default:0" json:"late_payments"`
	TotalPayments  int       `gorm:"column:total_payments;not null;default:0" json:"total_payments"`
	Defaults       int       `gorm:"column:defaults;not null;default:0" json:"defaults"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime" json:"-"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Score) TableName() string { return "trust_scores" }

// GradeFor maps a numeric score to its label.
func GradeFor(score int) string {
	switch {
	case score >= 750:
		return "excellent"
	case score >= 600:
		return "good"
	case score >= 450:
		return "fair"
	case score >= 300:
		return "poor"
	default:
		return "very_poor"
	}
}

type VouchStatus string

const (
	VouchActive VouchStatus = "active"
	// VouchVoucheeDefaulted records that the backed borrower defaulted and the
	// voucher has been penalised.
	VouchVoucheeDefaulted VouchStatus = "vouchee_defaulted"
	VouchRevoked          VouchStatus = "revoked"
)

// Table: vouches
type Vouch struct {
	ID              uint64      `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	VouchID         string      `gorm:"column:vouch_id;size:32;not null;uniqueIndex:ux_vouches_vouch_id" json:"vouch_id"`
	VoucherID       string      `gorm:"column:voucher_id;size:32;not null;index" json:"voucher_id"`
	VoucheeID       string      `gorm:"column:vouchee_id;size:32;not null;index" json:"vouchee_id"`
	Relationship    string      `gorm:"column:relationship;size:32" json:"relationship"`
	Message         string      `gorm:"column:message;type:text" json:"message,omitempty"`
	Status          VouchStatus `gorm:"column:status;size:24;not null" json:"status"`
	ActiveLoanID    *string     `gorm:"column:active_loan_id;size:32" json:"active_loan_id,omitempty"`
	DefaultedLoanID *string     `gorm:"column:defaulted_loan_id;size:32" json:"defaulted_loan_id,omitempty"`
	CreatedAt       time.Time   `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time   `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Vouch) TableName() string { return "vouches" }

// Delta is an additive change applied to a score row.
type Delta struct {
	Score          int
	TotalLoans     int
	CompletedLoans int
	OntimePayments int
	EarlyPayments  int
	LatePayments   int
	TotalPayments  int
	Defaults       int
}
