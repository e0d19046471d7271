package loan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"p2p-lending-engine/internal/domain/loan"
	"p2p-lending-engine/internal/domain/risk"
	"p2p-lending-engine/internal/usecase/schedule"
	"p2p-lending-engine/pkg/id"
	"p2p-lending-engine/pkg/logger"
)

type Usecase struct {
	repo   loan.Repository
	status risk.StatusReader
}

func NewUsecase(r loan.Repository, status risk.StatusReader) *Usecase {
	return &Usecase{repo: r, status: status}
}

func (u *Usecase) Create(ctx context.Context, in CreateLoanInput) (*LoanDTO, error) {
	if !id.Valid(in.BorrowerID) || !id.Valid(in.LenderID) {
		return nil, fmt.Errorf("%w: borrower and lender ids must be 32 hex characters", loan.ErrInvalidTerms)
	}
	if in.BorrowerID == in.LenderID {
		return nil, fmt.Errorf("%w: borrower cannot lend to themselves", loan.ErrInvalidTerms)
	}
	terms := schedule.Terms{
		Principal:    in.Principal,
		RatePercent:  in.InterestRate,
		Frequency:    in.Frequency,
		Installments: in.TotalInstallments,
		StartDate:    time.Now().UTC(),
	}
	if err := terms.Validate(); err != nil {
		return nil, err
	}

	if u.status != nil {
		blocked, err := u.status.IsBlocked(ctx, in.BorrowerID)
		if err != nil {
			return nil, err
		}
		if blocked {
			return nil, risk.ErrBorrowerBlocked
		}
	}

	// one pending loan per borrower
	pending, err := u.repo.GetPendingLoanByBorrowerID(ctx, in.BorrowerID)
	switch {
	case err == nil:
		return nil, fmt.Errorf("%w: %s", loan.ErrPendingExists, pending.LoanID)
	case !errors.Is(err, loan.ErrNotFound):
		return nil, err
	}

	currency := in.Currency
	if currency == "" {
		currency = "IDR"
	}
	principal := in.Principal.Round(2)
	totals := schedule.ComputeTotals(principal, in.InterestRate)
	l := &loan.Loan{
		LoanID:                id.NewID32(),
		BorrowerID:            in.BorrowerID,
		LenderID:              in.LenderID,
		Principal:             principal,
		Currency:              currency,
		InterestRate:          in.InterestRate,
		InterestMethod:        loan.InterestFlat,
		TotalInstallments:     in.TotalInstallments,
		Frequency:             in.Frequency,
		TotalInterest:         totals.Interest,
		TotalAmount:           totals.Amount,
		AmountPaid:            decimal.Zero,
		AmountRemaining:       totals.Amount,
		AutoPayEnabled:        in.AutoPayEnabled,
		BorrowerFundingSource: in.BorrowerFundingSource,
		LenderFundingSource:   in.LenderFundingSource,
		Status:                loan.StatusPending,
	}
	if err := u.repo.Create(ctx, l); err != nil {
		return nil, err
	}
	logger.CtxInfo(ctx, "loan created",
		slog.String("loan_id", l.LoanID),
		slog.String("borrower_id", l.BorrowerID),
		slog.String("principal", l.Principal.StringFixed(2)))
	return ToDTO(l), nil
}

func (u *Usecase) Get(ctx context.Context, loanID string) (*LoanDTO, error) {
	l, err := u.repo.GetByLoanID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	return ToDTO(l), nil
}
