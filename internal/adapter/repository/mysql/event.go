package mysql

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	eventDomain "p2p-lending-engine/internal/domain/event"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type EventRepository struct{ db *gorm.DB }

func NewEventRepository(db *gorm.DB) *EventRepository { return &EventRepository{db: db} }

func (r *EventRepository) Append(ctx context.Context, t eventDomain.Type, aggregateID string, payload any) (*eventDomain.Outbox, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	row := &eventDomain.Outbox{
		EventID:     uuid.NewString(),
		Type:        t,
		AggregateID: aggregateID,
		Payload:     b,
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

// ListUndispatched puts events that never failed ahead of retried ones so a
// stuck subscriber cannot starve newer events.
func (r *EventRepository) ListUndispatched(ctx context.Context, limit int) ([]eventDomain.Outbox, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []eventDomain.Outbox
	err := r.db.WithContext(ctx).
		Where("dispatched_at IS NULL").
		Order("attempts ASC, id ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *EventRepository) Delivered(ctx context.Context, eventID, subscriber string) (bool, error) {
	var d eventDomain.Delivery
	err := r.db.WithContext(ctx).
		Where("event_id = ? AND subscriber = ?", eventID, subscriber).
		First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (r *EventRepository) RecordDelivery(ctx context.Context, eventID, subscriber string, at time.Time) error {
	return r.db.WithContext(ctx).Create(&eventDomain.Delivery{
		EventID:     eventID,
		Subscriber:  subscriber,
		DeliveredAt: at.UTC(),
	}).Error
}

func (r *EventRepository) MarkDispatched(ctx context.Context, id uint64, at time.Time) error {
	return r.db.WithContext(ctx).Model(&eventDomain.Outbox{}).
		Where("id = ? AND dispatched_at IS NULL", id).
		Update("dispatched_at", at.UTC()).Error
}

func (r *EventRepository) RecordFailure(ctx context.Context, id uint64, reason string) error {
	return r.db.WithContext(ctx).Model(&eventDomain.Outbox{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": reason,
		}).Error
}
