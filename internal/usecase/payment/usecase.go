package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"p2p-lending-engine/internal/domain/event"
	"p2p-lending-engine/internal/domain/installment"
	"p2p-lending-engine/internal/domain/loan"
	"p2p-lending-engine/internal/domain/notification"
	domainTransfer "p2p-lending-engine/internal/domain/transfer"
	"p2p-lending-engine/internal/domain/uow"
	"p2p-lending-engine/internal/usecase/transfer"
	"p2p-lending-engine/pkg/logger"
)

const (
	jobDaily   = "daily-collection"
	jobRetries = "retry-sweep"
)

type Usecase struct {
	uow          uow.UnitOfWork
	loans        loan.Repository
	installments installment.Repository
	transfers    TransferRequester
	notifier     notification.Notifier
	lock         RunLock
	flusher      Flusher
	policy       Policy
	now          func() time.Time
}

func NewUsecase(u uow.UnitOfWork, loans loan.Repository, installments installment.Repository,
	transfers TransferRequester, notifier notification.Notifier, policy Policy) *Usecase {
	return &Usecase{
		uow:          u,
		loans:        loans,
		installments: installments,
		transfers:    transfers,
		notifier:     notifier,
		policy:       policy,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// WithRunLock guards both drivers with a once-per-day lock.
func (u *Usecase) WithRunLock(l RunLock) *Usecase { u.lock = l; return u }

// WithFlusher dispatches outbox events after each committed transition.
func (u *Usecase) WithFlusher(f Flusher) *Usecase { u.flusher = f; return u }

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (u *Usecase) acquire(ctx context.Context, job string, day time.Time) (bool, error) {
	if u.lock == nil {
		return true, nil
	}
	return u.lock.Acquire(ctx, job, day)
}

func (u *Usecase) release(ctx context.Context, job string, day time.Time) {
	if u.lock == nil {
		return
	}
	if err := u.lock.Release(ctx, job, day); err != nil {
		logger.CtxError(ctx, "could not release run lock", err, slog.String("job", job))
	}
}

func (u *Usecase) flush(ctx context.Context) {
	if u.flusher != nil {
		u.flusher.Flush(ctx)
	}
}

// RunDaily is the daily collection and reminder sweep over pending
// installments due up to today+window. Overdue ones are swept too, so an
// installment missed by an outage or a per-item error is collected on the
// next run. A second run on the same day is a no-op.
func (u *Usecase) RunDaily(ctx context.Context, now time.Time) (Report, error) {
	var rep Report
	today := startOfDay(now)
	ok, err := u.acquire(ctx, jobDaily, today)
	if err != nil {
		return rep, fmt.Errorf("acquire daily lock: %w", err)
	}
	if !ok {
		logger.CtxInfo(ctx, "daily collection already ran", slog.String("day", today.Format("2006-01-02")))
		rep.Skipped = true
		return rep, nil
	}

	window := u.policy.ReminderWindowDays
	if window < 1 {
		window = 1
	}
	due, err := u.installments.ListDueBefore(ctx, today.AddDate(0, 0, window+1))
	if err != nil {
		u.release(ctx, jobDaily, today)
		return rep, err
	}
	rep.Candidates = len(due)
	tomorrow := today.AddDate(0, 0, 1)
	loans := map[uint64]*loan.Loan{}

	for _, in := range due {
		l, err := u.loanFor(ctx, loans, in.LoanID)
		if err != nil {
			rep.Errors++
			logger.CtxError(ctx, "load loan for installment", err, slog.String("installment_id", in.InstallmentID))
			continue
		}
		if l.Status != loan.StatusActive {
			continue
		}
		dueDay := startOfDay(in.DueDate)
		switch {
		case !dueDay.After(today) && l.AutoPayEnabled:
			res, err := u.collect(ctx, l, in, now, false)
			u.tally(&rep, res, err)
		case dueDay.Equal(tomorrow) && l.AutoPayEnabled:
			u.send(ctx, notification.Notification{
				Kind: notification.KindAutopayWarning, UserID: l.BorrowerID, LoanID: l.LoanID,
				InstallmentID: in.InstallmentID, Amount: in.Amount, DueDate: &in.DueDate, At: now,
			})
			rep.Warnings++
		default:
			sent, err := u.installments.TouchReminder(ctx, in.ID, today, now)
			if err != nil {
				rep.Errors++
				logger.CtxError(ctx, "reminder guard failed", err, slog.String("installment_id", in.InstallmentID))
				continue
			}
			if !sent {
				continue
			}
			u.send(ctx, notification.Notification{
				Kind: notification.KindReminder, UserID: l.BorrowerID, LoanID: l.LoanID,
				InstallmentID: in.InstallmentID, Amount: in.Amount, DueDate: &in.DueDate, At: now,
			})
			rep.Reminders++
		}
	}
	u.flush(ctx)
	logger.CtxInfo(ctx, "daily collection finished",
		slog.Int("candidates", rep.Candidates),
		slog.Int("collected", rep.Collected),
		slog.Int("failed", rep.Failed),
		slog.Int("defaulted", rep.Defaulted),
		slog.Int("reminders", rep.Reminders),
		slog.Int("errors", rep.Errors))
	return rep, nil
}

// RunRetries re-attempts every failed installment whose next retry falls on
// or before today. The sweep runs once a day, so the retry time counts by day.
func (u *Usecase) RunRetries(ctx context.Context, now time.Time) (Report, error) {
	var rep Report
	today := startOfDay(now)
	ok, err := u.acquire(ctx, jobRetries, today)
	if err != nil {
		return rep, fmt.Errorf("acquire retry lock: %w", err)
	}
	if !ok {
		logger.CtxInfo(ctx, "retry sweep already ran", slog.String("day", today.Format("2006-01-02")))
		rep.Skipped = true
		return rep, nil
	}

	due, err := u.installments.ListRetryable(ctx, today.AddDate(0, 0, 1))
	if err != nil {
		u.release(ctx, jobRetries, today)
		return rep, err
	}
	rep.Candidates = len(due)
	loans := map[uint64]*loan.Loan{}
	for _, in := range due {
		l, err := u.loanFor(ctx, loans, in.LoanID)
		if err != nil {
			rep.Errors++
			logger.CtxError(ctx, "load loan for installment", err, slog.String("installment_id", in.InstallmentID))
			continue
		}
		if l.Status != loan.StatusActive {
			continue
		}
		res, err := u.collect(ctx, l, in, now, true)
		u.tally(&rep, res, err)
	}
	u.flush(ctx)
	logger.CtxInfo(ctx, "retry sweep finished",
		slog.Int("candidates", rep.Candidates),
		slog.Int("collected", rep.Collected),
		slog.Int("failed", rep.Failed),
		slog.Int("defaulted", rep.Defaulted),
		slog.Int("errors", rep.Errors))
	return rep, nil
}

func (u *Usecase) loanFor(ctx context.Context, cache map[uint64]*loan.Loan, id uint64) (*loan.Loan, error) {
	if l, ok := cache[id]; ok {
		return l, nil
	}
	l, err := u.loans.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	cache[id] = l
	return l, nil
}

func (u *Usecase) tally(rep *Report, res outcome, err error) {
	if err != nil {
		rep.Errors++
		return
	}
	switch res {
	case outcomePaid:
		rep.Collected++
	case outcomeFailed:
		rep.Failed++
	case outcomeDefaulted:
		rep.Defaulted++
	}
}

// collect runs one collection attempt through the transfer orchestrator and
// applies the outcome as a conditional transition.
func (u *Usecase) collect(ctx context.Context, l *loan.Loan, in installment.Installment, now time.Time, retry bool) (outcome, error) {
	t, err := u.transfers.RequestTransfer(ctx, transfer.Request{
		LoanID:        l.LoanID,
		InstallmentID: in.InstallmentID,
		Type:          domainTransfer.TypeRepayment,
		Source:        l.BorrowerFundingSource,
		Destination:   l.LenderFundingSource,
		Amount:        in.Amount,
	})
	var transferID string
	if t != nil {
		transferID = t.TransferID
	}
	switch {
	case err == nil:
		return u.applySuccess(ctx, l.LoanID, in.ID, now, retry, transferID)
	case errors.Is(err, domainTransfer.ErrTransferFailed):
		return u.applyFailure(ctx, l.LoanID, in.ID, now, retry, transferID, err.Error())
	default:
		logger.CtxError(ctx, "collection attempt errored", err,
			slog.String("loan_id", l.LoanID),
			slog.String("installment_id", in.InstallmentID))
		return outcomeSkipped, err
	}
}

func (u *Usecase) applySuccess(ctx context.Context, loanID string, instID uint64, now time.Time, retry bool, transferID string) (outcome, error) {
	res := outcomeSkipped
	err := u.uow.WithinLoanTx(ctx, loanID, func(r uow.Repos, l *loan.Loan) error {
		in, err := r.Installments.GetByID(ctx, instID)
		if err != nil {
			return err
		}
		tr, err := u.policy.Next(*in, EventCollectSucceeded, now)
		if errors.Is(err, installment.ErrAlreadyPaid) {
			return nil
		}
		if err != nil {
			return err
		}
		ok, err := r.Installments.MarkPaid(ctx, in.ID, []installment.Status{tr.From}, now)
		if err != nil {
			return err
		}
		if !ok {
			return installment.ErrConflict
		}
		if retry {
			if err := r.Installments.AppendRetryLog(ctx, &installment.RetryLog{
				InstallmentID:  in.ID,
				AttemptNumber:  in.RetryCount,
				Success:        true,
				IsFinalAttempt: u.policy.IsFinalAttempt(*in),
				TransferID:     transferID,
				AttemptedAt:    now,
			}); err != nil {
				return err
			}
		}
		if err := u.creditLoan(ctx, r, l, in, now, false); err != nil {
			return err
		}
		res = outcomePaid
		return nil
	})
	if err != nil {
		return outcomeSkipped, err
	}
	return res, nil
}

// creditLoan applies a paid installment to the loan balances and records the
// resulting events. Callers hold the loan lock.
func (u *Usecase) creditLoan(ctx context.Context, r uow.Repos, l *loan.Loan, in *installment.Installment, now time.Time, manual bool) error {
	completed := l.ApplyPayment(in.Amount) && l.Status == loan.StatusActive
	if completed {
		l.Status = loan.StatusCompleted
		l.CompletedAt = &now
	}
	if err := r.Loans.Save(ctx, l); err != nil {
		return err
	}
	if _, err := r.Events.Append(ctx, event.TypeInstallmentPaid, l.LoanID, event.InstallmentPaid{
		LoanID:        l.LoanID,
		InstallmentID: in.InstallmentID,
		BorrowerID:    l.BorrowerID,
		Amount:        in.Amount,
		DueDate:       in.DueDate,
		PaidAt:        now,
		Manual:        manual,
	}); err != nil {
		return err
	}
	if completed {
		if _, err := r.Events.Append(ctx, event.TypeLoanCompleted, l.LoanID, event.LoanCompleted{
			LoanID: l.LoanID, BorrowerID: l.BorrowerID, CompletedAt: now,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (u *Usecase) applyFailure(ctx context.Context, loanID string, instID uint64, now time.Time, retry bool, transferID, reason string) (outcome, error) {
	res := outcomeSkipped
	var notice *notification.Notification
	err := u.uow.WithinLoanTx(ctx, loanID, func(r uow.Repos, l *loan.Loan) error {
		in, err := r.Installments.GetByID(ctx, instID)
		if err != nil {
			return err
		}
		tr, err := u.policy.Next(*in, EventCollectFailed, now)
		if errors.Is(err, installment.ErrAlreadyPaid) {
			return nil
		}
		if err != nil {
			return err
		}
		lastErr := reason
		if tr.Err != nil {
			lastErr = fmt.Errorf("%w: %s", tr.Err, reason).Error()
		}
		ok, err := r.Installments.RecordFailure(ctx, in.ID, in.RetryCount, installment.FailureUpdate{
			Status:      tr.To,
			RetryCount:  tr.RetryCount,
			AttemptedAt: now,
			NextRetryAt: tr.NextRetryAt,
			CausedBlock: tr.To == installment.StatusDefaulted,
			LastError:   lastErr,
		})
		if err != nil {
			return err
		}
		if !ok {
			return installment.ErrConflict
		}
		if retry {
			if err := r.Installments.AppendRetryLog(ctx, &installment.RetryLog{
				InstallmentID:  in.ID,
				AttemptNumber:  in.RetryCount,
				Success:        false,
				ErrorMessage:   reason,
				IsFinalAttempt: tr.To == installment.StatusDefaulted,
				TransferID:     transferID,
				AttemptedAt:    now,
			}); err != nil {
				return err
			}
		}

		if tr.To != installment.StatusDefaulted {
			res = outcomeFailed
			notice = &notification.Notification{
				Kind: notification.KindPaymentFailed, UserID: l.BorrowerID, LoanID: l.LoanID,
				InstallmentID: in.InstallmentID, Amount: in.Amount, DueDate: &in.DueDate,
				RetryCount: tr.RetryCount, NextRetryAt: tr.NextRetryAt, At: now,
			}
			return nil
		}

		if l.Status == loan.StatusActive {
			l.Status = loan.StatusDefaulted
			l.DefaultedAt = &now
			if err := r.Loans.Save(ctx, l); err != nil {
				return err
			}
		}
		if _, err := r.Events.Append(ctx, event.TypeInstallmentDefaulted, l.LoanID, event.InstallmentDefaulted{
			LoanID:        l.LoanID,
			InstallmentID: in.InstallmentID,
			BorrowerID:    l.BorrowerID,
			RemainingDebt: l.AmountRemaining,
			Attempts:      tr.RetryCount,
			LastError:     reason,
			DefaultedAt:   now,
		}); err != nil {
			return err
		}
		res = outcomeDefaulted
		logger.CtxWarn(ctx, installment.ErrMaxRetriesExceeded.Error(),
			slog.String("loan_id", l.LoanID),
			slog.String("installment_id", in.InstallmentID),
			slog.Int("attempts", tr.RetryCount))
		return nil
	})
	if err != nil {
		return outcomeSkipped, err
	}
	if notice != nil {
		u.send(ctx, *notice)
	}
	return res, nil
}

// MarkPaid is the manual reconcile path. A second call for the same
// installment returns ErrAlreadyPaid and leaves the balances unchanged.
func (u *Usecase) MarkPaid(ctx context.Context, installmentID, actor string) (*InstallmentDTO, error) {
	in, err := u.installments.GetByInstallmentID(ctx, installmentID)
	if err != nil {
		return nil, err
	}
	l, err := u.loans.GetByID(ctx, in.LoanID)
	if err != nil {
		return nil, err
	}
	now := u.now()
	var out installment.Installment
	err = u.uow.WithinLoanTx(ctx, l.LoanID, func(r uow.Repos, locked *loan.Loan) error {
		cur, err := r.Installments.GetByID(ctx, in.ID)
		if err != nil {
			return err
		}
		tr, err := u.policy.Next(*cur, EventManualPaid, now)
		if err != nil {
			return err
		}
		if locked.Status != loan.StatusActive {
			return fmt.Errorf("%w: loan is %s", loan.ErrInvalidTransition, locked.Status)
		}
		ok, err := r.Installments.MarkPaid(ctx, cur.ID, []installment.Status{tr.From}, now)
		if err != nil {
			return err
		}
		if !ok {
			return installment.ErrAlreadyPaid
		}
		if err := u.creditLoan(ctx, r, locked, cur, now, true); err != nil {
			return err
		}
		cur.Status, cur.Paid, cur.PaidAt, cur.NextRetryAt = installment.StatusPaid, true, &now, nil
		out = *cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.CtxInfo(ctx, "installment marked paid manually",
		slog.String("installment_id", installmentID),
		slog.String("loan_id", l.LoanID),
		slog.String("actor", actor))
	u.flush(ctx)
	dto := ToDTO(out)
	return &dto, nil
}

// SendManualReminder is rate limited separately from the automatic path.
func (u *Usecase) SendManualReminder(ctx context.Context, installmentID string) error {
	in, err := u.installments.GetByInstallmentID(ctx, installmentID)
	if err != nil {
		return err
	}
	if in.Status.Terminal() {
		return fmt.Errorf("%w: installment is %s", installment.ErrInvalidTransition, in.Status)
	}
	limit := u.policy.ManualReminderMax
	if in.ManualReminderCount >= limit {
		return installment.ErrReminderLimit
	}
	now := u.now()
	ok, err := u.installments.TouchManualReminder(ctx, in.ID, limit, now.Add(-u.policy.ManualReminderGap), now)
	if err != nil {
		return err
	}
	if !ok {
		cur, err := u.installments.GetByID(ctx, in.ID)
		if err != nil {
			return err
		}
		if cur.ManualReminderCount >= limit {
			return installment.ErrReminderLimit
		}
		return installment.ErrReminderTooSoon
	}
	l, err := u.loans.GetByID(ctx, in.LoanID)
	if err != nil {
		return err
	}
	u.send(ctx, notification.Notification{
		Kind: notification.KindManualReminder, UserID: l.BorrowerID, LoanID: l.LoanID,
		InstallmentID: in.InstallmentID, Amount: in.Amount, DueDate: &in.DueDate, At: now,
	})
	return nil
}

// RecordSettlement books a lump-sum repayment against a defaulted loan.
func (u *Usecase) RecordSettlement(ctx context.Context, loanID string, amount decimal.Decimal) (*loan.Loan, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: settlement amount must be positive", loan.ErrInvalidTerms)
	}
	now := u.now()
	var out loan.Loan
	err := u.uow.WithinLoanTx(ctx, loanID, func(r uow.Repos, l *loan.Loan) error {
		if l.Status != loan.StatusDefaulted {
			return fmt.Errorf("%w: settlement requires a defaulted loan, got %s", loan.ErrInvalidTransition, l.Status)
		}
		l.ApplyPayment(amount.Round(2))
		if err := r.Loans.Save(ctx, l); err != nil {
			return err
		}
		if _, err := r.Events.Append(ctx, event.TypeDebtSettled, l.LoanID, event.DebtSettled{
			LoanID:          l.LoanID,
			BorrowerID:      l.BorrowerID,
			Amount:          amount.Round(2),
			AmountRemaining: l.AmountRemaining,
			SettledAt:       now,
		}); err != nil {
			return err
		}
		out = *l
		return nil
	})
	if err != nil {
		return nil, err
	}
	u.flush(ctx)
	return &out, nil
}

func (u *Usecase) ListRetryLogs(ctx context.Context, installmentID string) ([]installment.RetryLog, error) {
	in, err := u.installments.GetByInstallmentID(ctx, installmentID)
	if err != nil {
		return nil, err
	}
	return u.installments.ListRetryLogs(ctx, in.ID)
}

func (u *Usecase) send(ctx context.Context, n notification.Notification) {
	if u.notifier == nil {
		return
	}
	if err := u.notifier.Notify(ctx, n); err != nil {
		logger.CtxError(ctx, "notification failed", err,
			slog.String("kind", string(n.Kind)),
			slog.String("installment_id", n.InstallmentID))
	}
}
