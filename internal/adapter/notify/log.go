package notify

import (
	"context"
	"log/slog"

	"p2p-lending-engine/internal/domain/notification"
	"p2p-lending-engine/pkg/logger"
)

var _ notification.Notifier = LogNotifier{}

// LogNotifier writes notifications to the structured log. Used when no
// broker is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, n notification.Notification) error {
	attrs := []slog.Attr{
		slog.String("kind", string(n.Kind)),
		slog.String("user_id", n.UserID),
		slog.String("amount", n.Amount.StringFixed(2)),
	}
	if n.LoanID != "" {
		attrs = append(attrs, slog.String("loan_id", n.LoanID))
	}
	if n.InstallmentID != "" {
		attrs = append(attrs, slog.String("installment_id", n.InstallmentID))
	}
	if n.NextRetryAt != nil {
		attrs = append(attrs, slog.Int("retry_count", n.RetryCount), slog.Time("next_retry_at", *n.NextRetryAt))
	}
	logger.CtxInfo(ctx, "notification", attrs...)
	return nil
}
