package loan

import (
	"time"

	"github.com/shopspring/decimal"

	"p2p-lending-engine/internal/domain/loan"
)

type CreateLoanInput struct {
	BorrowerID            string
	LenderID              string
	Principal             decimal.Decimal
	InterestRate          decimal.Decimal // percent, flat
	TotalInstallments     int
	Frequency             loan.Frequency
	Currency              string
	AutoPayEnabled        bool
	BorrowerFundingSource string
	LenderFundingSource   string
}

type LoanDTO struct {
	LoanID            string          `json:"loan_id"`
	BorrowerID        string          `json:"borrower_id"`
	LenderID          string          `json:"lender_id"`
	Principal         decimal.Decimal `json:"principal"`
	Currency          string          `json:"currency"`
	InterestRate      decimal.Decimal `json:"interest_rate"`
	InterestMethod    string          `json:"interest_method"`
	TotalInstallments int             `json:"total_installments"`
	Frequency         loan.Frequency  `json:"frequency"`
	TotalInterest     decimal.Decimal `json:"total_interest"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	AmountPaid        decimal.Decimal `json:"amount_paid"`
	AmountRemaining   decimal.Decimal `json:"amount_remaining"`
	AutoPayEnabled    bool            `json:"auto_pay_enabled"`
	Status            loan.Status     `json:"status"`
	StartDate         *time.Time      `json:"start_date,omitempty"`
	ActivatedAt       *time.Time      `json:"activated_at,omitempty"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`
	DefaultedAt       *time.Time      `json:"defaulted_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

func ToDTO(l *loan.Loan) *LoanDTO {
	return &LoanDTO{
		LoanID:            l.LoanID,
		BorrowerID:        l.BorrowerID,
		LenderID:          l.LenderID,
		Principal:         l.Principal,
		Currency:          l.Currency,
		InterestRate:      l.InterestRate,
		InterestMethod:    l.InterestMethod,
		TotalInstallments: l.TotalInstallments,
		Frequency:         l.Frequency,
		TotalInterest:     l.TotalInterest,
		TotalAmount:       l.TotalAmount,
		AmountPaid:        l.AmountPaid,
		AmountRemaining:   l.AmountRemaining,
		AutoPayEnabled:    l.AutoPayEnabled,
		Status:            l.Status,
		StartDate:         l.StartDate,
		ActivatedAt:       l.ActivatedAt,
		CompletedAt:       l.CompletedAt,
		DefaultedAt:       l.DefaultedAt,
		CreatedAt:         l.CreatedAt,
	}
}
