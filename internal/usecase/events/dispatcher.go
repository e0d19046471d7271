package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"p2p-lending-engine/internal/domain/event"
	"p2p-lending-engine/internal/domain/uow"
	"p2p-lending-engine/pkg/logger"
)

const (
	defaultBatch = 200
	// flushBatch and flushTimeout bound the work a request path pays for.
	flushBatch   = 50
	flushTimeout = 3 * time.Second
)

// Handler applies one event. It runs inside the transaction that records the
// delivery, so its writes and the delivery commit or roll back together.
type Handler func(ctx context.Context, r uow.Repos, ev event.Outbox) error

type subscription struct {
	name    string
	handler Handler
}

type Report struct {
	Events     int `json:"events"`
	Delivered  int `json:"delivered"`
	Failed     int `json:"failed"`
	Dispatched int `json:"dispatched"`
}

type Dispatcher struct {
	uow  uow.UnitOfWork
	repo event.Repository
	subs map[event.Type][]subscription
	now  func() time.Time
	mu   sync.Mutex
}

func NewDispatcher(u uow.UnitOfWork, repo event.Repository) *Dispatcher {
	return &Dispatcher{
		uow:  u,
		repo: repo,
		subs: map[event.Type][]subscription{},
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Subscribe registers handler under name for t. Names must be stable: they
// key the delivery records.
func (d *Dispatcher) Subscribe(t event.Type, name string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs[t] = append(d.subs[t], subscription{name: name, handler: h})
}

// Dispatch delivers up to limit undispatched events, fresh ones first. A
// failing subscriber is logged and retried on the next call; the others still
// receive the event.
func (d *Dispatcher) Dispatch(ctx context.Context, limit int) (Report, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if limit <= 0 {
		limit = defaultBatch
	}
	return d.dispatch(ctx, limit, false)
}

// dispatch runs with d.mu held. With freshOnly set it stops at the first
// event that already failed; those are left to Dispatch.
func (d *Dispatcher) dispatch(ctx context.Context, limit int, freshOnly bool) (Report, error) {
	var rep Report
	pending, err := d.repo.ListUndispatched(ctx, limit)
	if err != nil {
		return rep, err
	}
	for _, ev := range pending {
		if freshOnly && ev.Attempts > 0 {
			break
		}
		if ctx.Err() != nil {
			break
		}
		rep.Events++
		ok := true
		for _, s := range d.subs[ev.Type] {
			if err := d.deliver(ctx, ev, s); err != nil {
				ok = false
				rep.Failed++
				logger.CtxError(ctx, "event delivery failed", err,
					slog.String("event_id", ev.EventID),
					slog.String("type", string(ev.Type)),
					slog.String("subscriber", s.name))
				if err := d.repo.RecordFailure(context.WithoutCancel(ctx), ev.ID, s.name+": "+err.Error()); err != nil {
					logger.CtxError(ctx, "could not record delivery failure", err, slog.String("event_id", ev.EventID))
				}
				continue
			}
			rep.Delivered++
		}
		if !ok {
			continue
		}
		if err := d.repo.MarkDispatched(ctx, ev.ID, d.now()); err != nil {
			logger.CtxError(ctx, "could not mark event dispatched", err, slog.String("event_id", ev.EventID))
			continue
		}
		rep.Dispatched++
	}
	return rep, nil
}

func (d *Dispatcher) deliver(ctx context.Context, ev event.Outbox, s subscription) error {
	return d.uow.WithinTx(ctx, func(r uow.Repos) error {
		done, err := r.Events.Delivered(ctx, ev.EventID, s.name)
		if err != nil || done {
			return err
		}
		if err := s.handler(ctx, r, ev); err != nil {
			return err
		}
		return r.Events.RecordDelivery(ctx, ev.EventID, s.name, d.now())
	})
}

// Flush delivers freshly appended events after a committed transition. It
// returns at once when a dispatch is already running and stops after
// flushTimeout. Events that already failed are left to the dispatch job.
func (d *Dispatcher) Flush(ctx context.Context) {
	if !d.mu.TryLock() {
		logger.CtxDebug(ctx, "event flush skipped, dispatch in progress")
		return
	}
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, flushTimeout)
	defer cancel()
	rep, err := d.dispatch(ctx, flushBatch, true)
	if err != nil {
		logger.CtxError(ctx, "event flush failed", err)
		return
	}
	if rep.Events > 0 {
		logger.CtxDebug(ctx, "events flushed",
			slog.Int("events", rep.Events),
			slog.Int("delivered", rep.Delivered),
			slog.Int("failed", rep.Failed))
	}
}
