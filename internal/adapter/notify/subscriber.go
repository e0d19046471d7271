package notify

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"p2p-lending-engine/internal/domain/event"
	"p2p-lending-engine/internal/domain/notification"
	"p2p-lending-engine/internal/domain/uow"
	"p2p-lending-engine/internal/usecase/events"
)

const subscriber = "notify"

// Subscriber turns committed domain events into borrower notifications.
// Delivery is at least once: a failed publish leaves the event undelivered
// for this subscriber and the next dispatch tries again.
type Subscriber struct {
	notifier notification.Notifier
}

func NewSubscriber(n notification.Notifier) *Subscriber {
	return &Subscriber{notifier: n}
}

func (s *Subscriber) Register(d *events.Dispatcher) {
	d.Subscribe(event.TypeInstallmentPaid, subscriber, s.handle)
	d.Subscribe(event.TypeInstallmentDefaulted, subscriber, s.handle)
	d.Subscribe(event.TypeLoanCompleted, subscriber, s.handle)
	d.Subscribe(event.TypeBorrowerBlocked, subscriber, s.handle)
}

func (s *Subscriber) handle(ctx context.Context, _ uow.Repos, ev event.Outbox) error {
	n, err := Translate(ev)
	if err != nil {
		return err
	}
	return s.notifier.Notify(ctx, n)
}

// Translate maps an outbox event to the notification a borrower receives.
func Translate(ev event.Outbox) (notification.Notification, error) {
	var n notification.Notification
	switch ev.Type {
	case event.TypeInstallmentPaid:
		var p event.InstallmentPaid
		if err := ev.Decode(&p); err != nil {
			return n, fmt.Errorf("decode %s: %w", ev.Type, err)
		}
		due := p.DueDate
		n = notification.Notification{
			Kind: notification.KindPaymentConfirmed, UserID: p.BorrowerID, LoanID: p.LoanID,
			InstallmentID: p.InstallmentID, Amount: p.Amount, DueDate: &due, At: p.PaidAt,
		}
	case event.TypeInstallmentDefaulted:
		var p event.InstallmentDefaulted
		if err := ev.Decode(&p); err != nil {
			return n, fmt.Errorf("decode %s: %w", ev.Type, err)
		}
		// the rail's error text stays in the retry log
		n = notification.Notification{
			Kind: notification.KindDefault, UserID: p.BorrowerID, LoanID: p.LoanID,
			InstallmentID: p.InstallmentID, Amount: p.RemainingDebt, RetryCount: p.Attempts, At: p.DefaultedAt,
		}
	case event.TypeLoanCompleted:
		var p event.LoanCompleted
		if err := ev.Decode(&p); err != nil {
			return n, fmt.Errorf("decode %s: %w", ev.Type, err)
		}
		n = notification.Notification{
			Kind: notification.KindLoanCompleted, UserID: p.BorrowerID, LoanID: p.LoanID,
			Amount: decimal.Zero, At: p.CompletedAt,
		}
	case event.TypeBorrowerBlocked:
		var p event.BorrowerBlocked
		if err := ev.Decode(&p); err != nil {
			return n, fmt.Errorf("decode %s: %w", ev.Type, err)
		}
		n = notification.Notification{
			Kind: notification.KindBlocked, UserID: p.BorrowerID, LoanID: p.LoanID,
			Amount: p.TotalDebt, At: p.At,
		}
	default:
		return n, fmt.Errorf("no notification for event type %q", ev.Type)
	}
	return n, nil
}
