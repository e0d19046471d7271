package risk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"p2p-lending-engine/internal/domain/event"
	domainLoan "p2p-lending-engine/internal/domain/loan"
	domain "p2p-lending-engine/internal/domain/risk"
	"p2p-lending-engine/internal/domain/uow"
	"p2p-lending-engine/internal/usecase/events"
	"p2p-lending-engine/pkg/id"
	"p2p-lending-engine/pkg/logger"
)

const subscriber = "risk"

var _ domain.StatusReader = (*Usecase)(nil)

// Usecase owns the blocking state. Nothing else writes borrowers.is_blocked.
type Usecase struct {
	uow       uow.UnitOfWork
	borrowers domain.BorrowerRepository
	blocks    domain.BlockRepository
	cooldown  time.Duration
	now       func() time.Time
}

func NewUsecase(tx uow.UnitOfWork, borrowers domain.BorrowerRepository, blocks domain.BlockRepository, cooldown time.Duration) *Usecase {
	return &Usecase{
		uow:       tx,
		borrowers: borrowers,
		blocks:    blocks,
		cooldown:  cooldown,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Register subscribes the usecase to the events that move blocks.
func (u *Usecase) Register(d *events.Dispatcher) {
	d.Subscribe(event.TypeInstallmentDefaulted, subscriber, u.OnDefault)
	d.Subscribe(event.TypeDebtSettled, subscriber, u.OnDebtSettled)
}

// OnDefault blocks the borrower unless a block is already active, and counts
// the default either way.
func (u *Usecase) OnDefault(ctx context.Context, r uow.Repos, ev event.Outbox) error {
	var p event.InstallmentDefaulted
	if err := ev.Decode(&p); err != nil {
		return fmt.Errorf("decode %s: %w", ev.Type, err)
	}
	if _, err := r.Borrowers.Ensure(ctx, p.BorrowerID); err != nil {
		return err
	}
	b, err := r.Borrowers.GetForUpdate(ctx, p.BorrowerID)
	if err != nil {
		return err
	}
	b.DefaultCount++
	b.BorrowerRating = domain.RatingHighRisk

	_, err = r.Blocks.GetActive(ctx, p.BorrowerID)
	switch {
	case err == nil:
		logger.CtxInfo(ctx, "borrower already blocked, default counted",
			slog.String("borrower_id", p.BorrowerID),
			slog.String("loan_id", p.LoanID))
		return r.Borrowers.Save(ctx, b)
	case !errors.Is(err, domain.ErrNoActiveBlock):
		return err
	}

	reason := fmt.Sprintf("defaulted on loan %s after %d failed collection attempts", p.LoanID, p.Attempts)
	block := &domain.Block{
		BlockID:          id.NewID32(),
		BorrowerID:       p.BorrowerID,
		LoanID:           p.LoanID,
		TotalDebtAtBlock: p.RemainingDebt,
		BlockedReason:    reason,
		Status:           domain.BlockActive,
	}
	if err := r.Blocks.Create(ctx, block); err != nil {
		return err
	}
	b.IsBlocked = true
	b.BlockedReason = &reason
	b.DebtClearedAt = nil
	b.RestrictionEndsAt = nil
	if err := r.Borrowers.Save(ctx, b); err != nil {
		return err
	}
	if _, err := r.Events.Append(ctx, event.TypeBorrowerBlocked, p.BorrowerID, event.BorrowerBlocked{
		BorrowerID: p.BorrowerID,
		BlockID:    block.BlockID,
		LoanID:     p.LoanID,
		TotalDebt:  p.RemainingDebt,
		At:         u.now(),
	}); err != nil {
		return err
	}
	logger.CtxWarn(ctx, "borrower blocked",
		slog.String("borrower_id", p.BorrowerID),
		slog.String("block_id", block.BlockID),
		slog.String("loan_id", p.LoanID),
		slog.String("total_debt", p.RemainingDebt.StringFixed(2)))
	return nil
}

// OnDebtSettled starts the cooldown once nothing is owed on any defaulted loan.
func (u *Usecase) OnDebtSettled(ctx context.Context, r uow.Repos, ev event.Outbox) error {
	var p event.DebtSettled
	if err := ev.Decode(&p); err != nil {
		return fmt.Errorf("decode %s: %w", ev.Type, err)
	}
	defaulted, err := r.Loans.ListByBorrowerAndStatus(ctx, p.BorrowerID, domainLoan.StatusDefaulted)
	if err != nil {
		return err
	}
	owed := decimal.Zero
	for _, l := range defaulted {
		owed = owed.Add(l.AmountRemaining)
	}
	if owed.IsPositive() {
		logger.CtxInfo(ctx, "debt still outstanding",
			slog.String("borrower_id", p.BorrowerID),
			slog.String("owed", owed.StringFixed(2)))
		return nil
	}

	block, err := r.Blocks.GetActive(ctx, p.BorrowerID)
	if errors.Is(err, domain.ErrNoActiveBlock) {
		return nil
	}
	if err != nil {
		return err
	}
	now := u.now()
	ends := now.Add(u.cooldown)
	ok, err := r.Blocks.ClearDebt(ctx, block.ID, now, ends)
	if err != nil || !ok {
		return err
	}
	b, err := r.Borrowers.GetForUpdate(ctx, p.BorrowerID)
	if err != nil {
		return err
	}
	b.DebtClearedAt = &now
	b.RestrictionEndsAt = &ends
	if err := r.Borrowers.Save(ctx, b); err != nil {
		return err
	}
	logger.CtxInfo(ctx, "debt cleared, restriction cooling down",
		slog.String("borrower_id", p.BorrowerID),
		slog.String("block_id", block.BlockID),
		slog.Time("restriction_ends_at", ends))
	return nil
}

// SweepRestrictions ends cooldowns that have elapsed and then unblocks every
// borrower left without an open block.
func (u *Usecase) SweepRestrictions(ctx context.Context, now time.Time) (SweepReport, error) {
	var rep SweepReport
	due, err := u.blocks.ListRestrictionsDue(ctx, now)
	if err != nil {
		return rep, err
	}
	rep.Due = len(due)
	for _, b := range due {
		var ended, unblocked bool
		err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
			ok, err := r.Blocks.EndRestriction(ctx, b.ID, now)
			if err != nil || !ok {
				return err
			}
			ended = true
			unblocked, err = unblockIfClear(ctx, r, b.BorrowerID)
			return err
		})
		if err != nil {
			rep.Errors++
			logger.CtxError(ctx, "restriction sweep failed", err,
				slog.String("block_id", b.BlockID),
				slog.String("borrower_id", b.BorrowerID))
			continue
		}
		if ended {
			rep.Ended++
		}
		if unblocked {
			rep.Unblocked++
		}
	}
	logger.CtxInfo(ctx, "restriction sweep finished",
		slog.Int("due", rep.Due),
		slog.Int("ended", rep.Ended),
		slog.Int("unblocked", rep.Unblocked))
	return rep, nil
}

// AdminUnblock lifts the borrower's active block immediately.
func (u *Usecase) AdminUnblock(ctx context.Context, borrowerID, adminID string) (*StatusDTO, error) {
	now := u.now()
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		block, err := r.Blocks.GetActive(ctx, borrowerID)
		if err != nil {
			return err
		}
		ok, err := r.Blocks.AdminUnblock(ctx, block.ID, adminID, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrNoActiveBlock
		}
		_, err = unblockIfClear(ctx, r, borrowerID)
		return err
	})
	if err != nil {
		return nil, err
	}
	logger.CtxInfo(ctx, "borrower unblocked by admin",
		slog.String("borrower_id", borrowerID),
		slog.String("admin_id", adminID))
	return u.Status(ctx, borrowerID)
}

// unblockIfClear clears the borrower flag when no active or cooling block remains.
func unblockIfClear(ctx context.Context, r uow.Repos, borrowerID string) (bool, error) {
	open, err := r.Blocks.CountOpen(ctx, borrowerID)
	if err != nil || open > 0 {
		return false, err
	}
	b, err := r.Borrowers.GetForUpdate(ctx, borrowerID)
	if err != nil {
		return false, err
	}
	if !b.IsBlocked {
		return false, nil
	}
	b.IsBlocked = false
	b.BlockedReason = nil
	b.DebtClearedAt = nil
	b.RestrictionEndsAt = nil
	b.BorrowerRating = domain.RatingNeutral
	return true, r.Borrowers.Save(ctx, b)
}

// IsBlocked reports the blocking flag; unknown borrowers are not blocked.
func (u *Usecase) IsBlocked(ctx context.Context, borrowerID string) (bool, error) {
	b, err := u.borrowers.GetByBorrowerID(ctx, borrowerID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return b.IsBlocked, nil
}

func (u *Usecase) Status(ctx context.Context, borrowerID string) (*StatusDTO, error) {
	b, err := u.borrowers.GetByBorrowerID(ctx, borrowerID)
	if errors.Is(err, domain.ErrNotFound) {
		return &StatusDTO{BorrowerID: borrowerID, BorrowerRating: domain.RatingNeutral, Blocks: []domain.Block{}}, nil
	}
	if err != nil {
		return nil, err
	}
	blocks, err := u.blocks.ListByBorrower(ctx, borrowerID)
	if err != nil {
		return nil, err
	}
	return &StatusDTO{
		BorrowerID:        b.BorrowerID,
		IsBlocked:         b.IsBlocked,
		BlockedReason:     b.BlockedReason,
		DebtClearedAt:     b.DebtClearedAt,
		RestrictionEndsAt: b.RestrictionEndsAt,
		DefaultCount:      b.DefaultCount,
		BorrowerRating:    b.BorrowerRating,
		Blocks:            blocks,
	}, nil
}
