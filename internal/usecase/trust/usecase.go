package trust

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"p2p-lending-engine/internal/domain/event"
	domain "p2p-lending-engine/internal/domain/trust"
	"p2p-lending-engine/internal/domain/uow"
	"p2p-lending-engine/internal/usecase/events"
	"p2p-lending-engine/pkg/logger"
)

const subscriber = "trust"

type Usecase struct {
	uow     uow.UnitOfWork
	scores  domain.ScoreRepository
	vouches domain.VouchRepository
	points  Points
}

func NewUsecase(tx uow.UnitOfWork, scores domain.ScoreRepository, vouches domain.VouchRepository, points Points) *Usecase {
	return &Usecase{uow: tx, scores: scores, vouches: vouches, points: points}
}

func (u *Usecase) Register(d *events.Dispatcher) {
	d.Subscribe(event.TypeInstallmentPaid, subscriber, u.OnPaid)
	d.Subscribe(event.TypeInstallmentDefaulted, subscriber, u.OnDefault)
	d.Subscribe(event.TypeLoanCompleted, subscriber, u.OnCompleted)
	d.Subscribe(event.TypeLoanActivated, subscriber, u.OnActivated)
}

// Classify compares calendar days in UTC.
func Classify(paidAt, dueDate time.Time) Timeliness {
	paid := day(paidAt)
	due := day(dueDate)
	switch {
	case paid.Before(due):
		return Early
	case paid.Equal(due):
		return Ontime
	default:
		return Late
	}
}

func day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (u *Usecase) OnPaid(ctx context.Context, r uow.Repos, ev event.Outbox) error {
	var p event.InstallmentPaid
	if err := ev.Decode(&p); err != nil {
		return fmt.Errorf("decode %s: %w", ev.Type, err)
	}
	d := domain.Delta{TotalPayments: 1}
	switch Classify(p.PaidAt, p.DueDate) {
	case Early:
		d.EarlyPayments, d.Score = 1, u.points.Early
	case Ontime:
		d.OntimePayments, d.Score = 1, u.points.Ontime
	case Late:
		d.LatePayments, d.Score = 1, u.points.Late
	}
	_, err := r.Scores.Apply(ctx, p.BorrowerID, d)
	return err
}

// OnDefault penalises the borrower and every voucher still backing them.
func (u *Usecase) OnDefault(ctx context.Context, r uow.Repos, ev event.Outbox) error {
	var p event.InstallmentDefaulted
	if err := ev.Decode(&p); err != nil {
		return fmt.Errorf("decode %s: %w", ev.Type, err)
	}
	if _, err := r.Scores.Apply(ctx, p.BorrowerID, domain.Delta{
		Score:      -u.points.DefaultPenalty,
		TotalLoans: 1,
		Defaults:   1,
	}); err != nil {
		return err
	}

	vouches, err := r.Vouches.ListActiveForVouchee(ctx, p.BorrowerID)
	if err != nil {
		return err
	}
	for _, v := range vouches {
		ok, err := r.Vouches.MarkVoucheeDefaulted(ctx, v.ID, p.LoanID)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if _, err := r.Scores.Apply(ctx, v.VoucherID, domain.Delta{Score: -u.points.VoucherPenalty}); err != nil {
			return err
		}
		logger.CtxInfo(ctx, "voucher penalised for vouchee default",
			slog.String("vouch_id", v.VouchID),
			slog.String("voucher_id", v.VoucherID),
			slog.String("vouchee_id", p.BorrowerID),
			slog.Int("penalty", u.points.VoucherPenalty))
	}
	return nil
}

func (u *Usecase) OnCompleted(ctx context.Context, r uow.Repos, ev event.Outbox) error {
	var p event.LoanCompleted
	if err := ev.Decode(&p); err != nil {
		return fmt.Errorf("decode %s: %w", ev.Type, err)
	}
	if _, err := r.Scores.Apply(ctx, p.BorrowerID, domain.Delta{
		Score:          u.points.CompletionBonus,
		TotalLoans:     1,
		CompletedLoans: 1,
	}); err != nil {
		return err
	}
	_, err := r.Vouches.ReleaseLoan(ctx, p.LoanID)
	return err
}

func (u *Usecase) OnActivated(ctx context.Context, r uow.Repos, ev event.Outbox) error {
	var p event.LoanActivated
	if err := ev.Decode(&p); err != nil {
		return fmt.Errorf("decode %s: %w", ev.Type, err)
	}
	_, err := r.Vouches.TagActiveLoan(ctx, p.BorrowerID, p.LoanID)
	return err
}

func (u *Usecase) CreateVouch(ctx context.Context, in CreateVouchInput) (*domain.Vouch, error) {
	if in.VoucherID == in.VoucheeID {
		return nil, domain.ErrSelfVouch
	}
	v := &domain.Vouch{
		VoucherID:    in.VoucherID,
		VoucheeID:    in.VoucheeID,
		Relationship: in.Relationship,
		Message:      in.Message,
		Status:       domain.VouchActive,
	}
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		_, err := r.Vouches.GetActivePair(ctx, in.VoucherID, in.VoucheeID)
		switch {
		case err == nil:
			return domain.ErrVouchExists
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}
		// seed the voucher's score so a later penalty has a row to land on
		if _, err := r.Scores.Apply(ctx, in.VoucherID, domain.Delta{}); err != nil {
			return err
		}
		return r.Vouches.Create(ctx, v)
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (u *Usecase) RevokeVouch(ctx context.Context, vouchID string) (*domain.Vouch, error) {
	v, err := u.vouches.GetByVouchID(ctx, vouchID)
	if err != nil {
		return nil, err
	}
	ok, err := u.vouches.Revoke(ctx, v.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrVouchInactive
	}
	v.Status = domain.VouchRevoked
	return v, nil
}

// GetScore returns the stored score, or the starting score for a new user.
func (u *Usecase) GetScore(ctx context.Context, userID string) (*domain.Score, error) {
	s, err := u.scores.Get(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return &domain.Score{UserID: userID, Score: domain.InitialScore, Grade: domain.GradeFor(domain.InitialScore)}, nil
	}
	return s, err
}
