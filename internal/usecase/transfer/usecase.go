package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	domain "p2p-lending-engine/internal/domain/transfer"
	"p2p-lending-engine/pkg/id"
	"p2p-lending-engine/pkg/logger"
)

const reconcileBatch = 500

type Usecase struct {
	repo       domain.Repository
	rail       domain.Rail
	fees       FeePolicy
	staleAfter time.Duration
	now        func() time.Time
}

func NewUsecase(repo domain.Repository, rail domain.Rail, fees FeePolicy, staleAfter time.Duration) *Usecase {
	return &Usecase{
		repo:       repo,
		rail:       rail,
		fees:       fees,
		staleAfter: staleAfter,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// RequestTransfer executes req at most once per intent. A live transfer for
// the same intent is returned unchanged; a failed call is recorded and
// surfaced as ErrTransferFailed without retrying.
func (u *Usecase) RequestTransfer(ctx context.Context, req Request) (*domain.Transfer, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	if req.Type == domain.TypeDisbursement {
		req.SkipFee = true
	}
	key := domain.IntentKey(req.LoanID, req.Type, req.InstallmentID)

	existing, err := u.repo.GetLiveByIntent(ctx, key)
	switch {
	case err == nil:
		u.logDuplicate(ctx, existing)
		return existing, nil
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}

	fee := decimal.Zero
	if !req.SkipFee {
		fee = u.fees.Fee(req.Amount)
	}
	t := &domain.Transfer{
		TransferID:    id.NewID32(),
		LoanID:        req.LoanID,
		Type:          req.Type,
		InstallmentID: req.InstallmentID,
		Source:        req.Source,
		Destination:   req.Destination,
		GrossAmount:   req.Amount,
		FeeAmount:     fee,
		NetAmount:     req.Amount.Sub(fee),
		Status:        domain.StatusPending,
		IntentKey:     &key,
	}
	created, err := u.repo.Reserve(ctx, t)
	if err != nil {
		return nil, err
	}
	if !created {
		// lost the race to a concurrent caller
		winner, err := u.repo.GetLiveByIntent(ctx, key)
		if err != nil {
			return nil, err
		}
		u.logDuplicate(ctx, winner)
		return winner, nil
	}

	res, railErr := u.rail.ExecuteTransfer(ctx, domain.Instruction{
		IdempotencyKey: t.TransferID,
		Source:         t.Source,
		Destination:    t.Destination,
		Amount:         t.GrossAmount,
		Fee:            t.FeeAmount,
		Metadata: map[string]string{
			"loan_id":        t.LoanID,
			"type":           string(t.Type),
			"installment_id": t.InstallmentID,
		},
	})
	if railErr == nil && res.ReferenceID == "" {
		railErr = errors.New("rail returned no reference id")
	}
	if railErr != nil {
		return u.fail(ctx, t, domain.StatusFailed, railErr.Error())
	}

	status := res.Status
	if status == "" {
		status = domain.StatusPending
	}
	if err := u.repo.Settle(ctx, t.ID, res.ReferenceID, status); err != nil {
		return nil, fmt.Errorf("record rail reference %s: %w", res.ReferenceID, err)
	}
	ref := res.ReferenceID
	t.ReferenceID = &ref
	t.Status = status
	if !status.Live() {
		t.IntentKey = nil
		return t, fmt.Errorf("%w: rail reported %s", domain.ErrTransferFailed, status)
	}

	logger.CtxInfo(ctx, "transfer accepted by rail",
		slog.String("transfer_id", t.TransferID),
		slog.String("loan_id", t.LoanID),
		slog.String("type", string(t.Type)),
		slog.String("reference_id", ref),
		slog.String("status", string(status)))
	return t, nil
}

func (u *Usecase) fail(ctx context.Context, t *domain.Transfer, status domain.Status, reason string) (*domain.Transfer, error) {
	if _, err := u.repo.Fail(ctx, t.ID, status, reason); err != nil {
		logger.CtxError(ctx, "could not record failed transfer", err, slog.String("transfer_id", t.TransferID))
	}
	t.Status = status
	t.IntentKey = nil
	t.FailureReason = reason
	logger.CtxWarn(ctx, "transfer failed",
		slog.String("transfer_id", t.TransferID),
		slog.String("loan_id", t.LoanID),
		slog.String("reason", reason))
	return t, fmt.Errorf("%w: %s", domain.ErrTransferFailed, reason)
}

func (u *Usecase) logDuplicate(ctx context.Context, t *domain.Transfer) {
	logger.CtxInfo(ctx, domain.ErrDuplicateDisbursement.Error(),
		slog.String("transfer_id", t.TransferID),
		slog.String("loan_id", t.LoanID),
		slog.String("type", string(t.Type)),
		slog.String("status", string(t.Status)))
}

// Reconcile re-queries pending transfers on the rail and applies their final
// status, and cancels reservations that never reached the rail.
func (u *Usecase) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var rep ReconcileReport
	pending, err := u.repo.ListPending(ctx, reconcileBatch)
	if err != nil {
		return rep, err
	}
	for _, t := range pending {
		if t.ReferenceID == nil {
			continue
		}
		rep.Checked++
		st, err := u.rail.TransferStatus(ctx, *t.ReferenceID)
		if err != nil {
			rep.Errors++
			logger.CtxError(ctx, "rail status query failed", err, slog.String("transfer_id", t.TransferID))
			continue
		}
		switch st {
		case domain.StatusCompleted:
			if ok, err := u.repo.Complete(ctx, t.ID); err != nil {
				rep.Errors++
				logger.CtxError(ctx, "could not complete transfer", err, slog.String("transfer_id", t.TransferID))
			} else if ok {
				rep.Completed++
			}
		case domain.StatusFailed, domain.StatusCancelled:
			if ok, err := u.repo.Fail(ctx, t.ID, st, "rail reported "+string(st)); err != nil {
				rep.Errors++
				logger.CtxError(ctx, "could not fail transfer", err, slog.String("transfer_id", t.TransferID))
			} else if ok {
				rep.Failed++
				if t.Type == domain.TypeRepayment {
					// the installment was already credited; an operator has to review it
					logger.CtxWarn(ctx, "repayment reversed by rail after acceptance",
						slog.String("transfer_id", t.TransferID),
						slog.String("loan_id", t.LoanID),
						slog.String("installment_id", t.InstallmentID))
				}
			}
		}
	}

	stale, err := u.repo.ListStaleReservations(ctx, u.now().Add(-u.staleAfter))
	if err != nil {
		return rep, err
	}
	for _, t := range stale {
		if ok, err := u.repo.Fail(ctx, t.ID, domain.StatusCancelled, "reservation expired before reaching the rail"); err != nil {
			rep.Errors++
			logger.CtxError(ctx, "could not cancel stale transfer", err, slog.String("transfer_id", t.TransferID))
		} else if ok {
			rep.Cancelled++
		}
	}
	return rep, nil
}

func (u *Usecase) ListByLoan(ctx context.Context, loanID string) ([]domain.Transfer, error) {
	return u.repo.ListByLoan(ctx, loanID)
}

func validate(req Request) error {
	if req.LoanID == "" || req.Source == "" || req.Destination == "" {
		return errors.New("transfer request needs loan, source and destination")
	}
	if !req.Amount.IsPositive() {
		return errors.New("transfer amount must be positive")
	}
	switch req.Type {
	case domain.TypeDisbursement:
	case domain.TypeRepayment:
		if req.InstallmentID == "" {
			return errors.New("repayment transfer needs an installment")
		}
	default:
		return fmt.Errorf("unknown transfer type %q", req.Type)
	}
	return nil
}
