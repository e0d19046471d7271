package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"p2p-lending-engine/internal/domain/event"
	"p2p-lending-engine/internal/domain/installment"
	domainLoan "p2p-lending-engine/internal/domain/loan"
	domainTransfer "p2p-lending-engine/internal/domain/transfer"
	"p2p-lending-engine/internal/domain/uow"
	"p2p-lending-engine/internal/usecase/payment"
	"p2p-lending-engine/internal/usecase/transfer"
	"p2p-lending-engine/pkg/id"
	"p2p-lending-engine/pkg/logger"
)

type Usecase struct {
	loans        domainLoan.Repository
	installments installment.Repository
	transfers    payment.TransferRequester
	uow          uow.UnitOfWork
	flusher      payment.Flusher
	now          func() time.Time
}

func NewUsecase(loans domainLoan.Repository, installments installment.Repository, transfers payment.TransferRequester, tx uow.UnitOfWork) *Usecase {
	return &Usecase{
		loans:        loans,
		installments: installments,
		transfers:    transfers,
		uow:          tx,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (u *Usecase) WithFlusher(f payment.Flusher) *Usecase { u.flusher = f; return u }

// Activate disburses a pending loan and persists its schedule. The schedule is
// generated before any money moves, so invalid terms leave nothing behind.
// Re-running after a partial failure reuses the live disbursement.
func (u *Usecase) Activate(ctx context.Context, in ActivateInput) (*ActivationDTO, error) {
	l, err := u.loans.GetByLoanID(ctx, in.LoanID)
	if err != nil {
		return nil, err
	}
	if l.Status != domainLoan.StatusPending {
		return nil, fmt.Errorf("%w: loan is %s", domainLoan.ErrInvalidTransition, l.Status)
	}

	lines, totals, err := Generate(Terms{
		Principal:    l.Principal,
		RatePercent:  l.InterestRate,
		Frequency:    l.Frequency,
		Installments: l.TotalInstallments,
		StartDate:    in.StartDate,
	})
	if err != nil {
		return nil, err
	}

	t, err := u.transfers.RequestTransfer(ctx, transfer.Request{
		LoanID:      l.LoanID,
		Type:        domainTransfer.TypeDisbursement,
		Source:      l.LenderFundingSource,
		Destination: l.BorrowerFundingSource,
		Amount:      l.Principal,
	})
	if err != nil {
		return nil, err
	}

	now := u.now()
	start := truncateDay(in.StartDate)
	var out ActivationDTO
	err = u.uow.WithinLoanTx(ctx, l.LoanID, func(r uow.Repos, locked *domainLoan.Loan) error {
		// State guard: only pending → active
		if locked.Status != domainLoan.StatusPending {
			return fmt.Errorf("%w: loan is %s", domainLoan.ErrInvalidTransition, locked.Status)
		}
		items := make([]installment.Installment, len(lines))
		for i, line := range lines {
			items[i] = installment.Installment{
				InstallmentID:   id.NewID32(),
				Sequence:        line.Sequence,
				DueDate:         line.DueDate,
				Amount:          line.Amount,
				PrincipalAmount: line.Principal,
				InterestAmount:  line.Interest,
				Status:          installment.StatusPending,
			}
		}
		if err := r.Installments.ReplaceForLoan(ctx, locked.ID, items); err != nil {
			return err
		}

		locked.Status = domainLoan.StatusActive
		locked.StartDate = &start
		locked.ActivatedAt = &now
		locked.TotalInterest = totals.Interest
		locked.TotalAmount = totals.Amount
		locked.AmountPaid = decimal.Zero
		locked.AmountRemaining = totals.Amount
		if err := r.Loans.Save(ctx, locked); err != nil {
			return err
		}
		if _, err := r.Events.Append(ctx, event.TypeLoanActivated, locked.LoanID, event.LoanActivated{
			LoanID:     locked.LoanID,
			BorrowerID: locked.BorrowerID,
			LenderID:   locked.LenderID,
			At:         now,
		}); err != nil {
			return err
		}

		out = ActivationDTO{Loan: *locked, TransferID: t.TransferID, Schedule: make([]payment.InstallmentDTO, len(items))}
		for i := range items {
			out.Schedule[i] = payment.ToDTO(items[i])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.CtxInfo(ctx, "loan activated",
		slog.String("loan_id", l.LoanID),
		slog.String("transfer_id", t.TransferID),
		slog.Int("installments", len(lines)),
		slog.String("total_amount", totals.Amount.StringFixed(2)))
	if u.flusher != nil {
		u.flusher.Flush(ctx)
	}
	return &out, nil
}

// Schedule lists a loan's installments in due order.
func (u *Usecase) Schedule(ctx context.Context, loanID string) ([]payment.InstallmentDTO, error) {
	l, err := u.loans.GetByLoanID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	items, err := u.installments.ListByLoan(ctx, l.ID)
	if err != nil {
		return nil, err
	}
	out := make([]payment.InstallmentDTO, len(items))
	for i := range items {
		out[i] = payment.ToDTO(items[i])
	}
	return out, nil
}

// Preview generates a schedule without touching storage.
func Preview(t Terms) ([]payment.InstallmentDTO, Totals, error) {
	lines, totals, err := Generate(t)
	if err != nil {
		return nil, Totals{}, err
	}
	out := make([]payment.InstallmentDTO, len(lines))
	for i, line := range lines {
		out[i] = payment.ToDTO(installment.Installment{
			Sequence:        line.Sequence,
			DueDate:         line.DueDate,
			Amount:          line.Amount,
			PrincipalAmount: line.Principal,
			InterestAmount:  line.Interest,
			Status:          installment.StatusPending,
		})
	}
	return out, totals, nil
}
