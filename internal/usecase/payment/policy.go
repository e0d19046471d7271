package payment

import (
	"fmt"
	"time"

	"p2p-lending-engine/internal/domain/installment"
)

// Backoff returns the wait before retry number attempt (1-based).
type Backoff interface {
	Delay(attempt int) time.Duration
}

type FixedBackoff struct{ Interval time.Duration }

func (b FixedBackoff) Delay(int) time.Duration { return b.Interval }

// ExponentialBackoff doubles Base per attempt, capped at Max when Max > 0.
type ExponentialBackoff struct {
	Base time.Duration
	Max  time.Duration
}

func (b ExponentialBackoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := b.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if b.Max > 0 && d >= b.Max {
			return b.Max
		}
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

// NewBackoff builds the named strategy ("fixed" or "exponential").
func NewBackoff(kind string, base, max time.Duration) (Backoff, error) {
	switch kind {
	case "fixed":
		return FixedBackoff{Interval: base}, nil
	case "exponential":
		return ExponentialBackoff{Base: base, Max: max}, nil
	}
	return nil, fmt.Errorf("unknown backoff %q", kind)
}

type Policy struct {
	MaxRetries         int
	Backoff            Backoff
	ReminderWindowDays int
	ManualReminderMax  int
	ManualReminderGap  time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:         3,
		Backoff:            ExponentialBackoff{Base: 24 * time.Hour, Max: 72 * time.Hour},
		ReminderWindowDays: 3,
		ManualReminderMax:  3,
		ManualReminderGap:  24 * time.Hour,
	}
}

type Event string

const (
	EventCollectSucceeded Event = "collect_succeeded"
	EventCollectFailed    Event = "collect_failed"
	EventManualPaid       Event = "manual_paid"
)

// Transition is the outcome of applying an event to an installment.
type Transition struct {
	From        installment.Status
	To          installment.Status
	RetryCount  int
	NextRetryAt *time.Time
	// Err is set on the default branch.
	Err error
}

type rule func(p Policy, in installment.Installment, at time.Time) Transition

func toPaid(_ Policy, in installment.Installment, _ time.Time) Transition {
	return Transition{From: in.Status, To: installment.StatusPaid, RetryCount: in.RetryCount}
}

func onFailure(p Policy, in installment.Installment, at time.Time) Transition {
	n := in.RetryCount + 1
	if n < p.MaxRetries {
		next := at.Add(p.Backoff.Delay(n))
		return Transition{From: in.Status, To: installment.StatusFailed, RetryCount: n, NextRetryAt: &next}
	}
	return Transition{From: in.Status, To: installment.StatusDefaulted, RetryCount: n, Err: installment.ErrMaxRetriesExceeded}
}

var transitions = map[installment.Status]map[Event]rule{
	installment.StatusPending: {
		EventCollectSucceeded: toPaid,
		EventCollectFailed:    onFailure,
		EventManualPaid:       toPaid,
	},
	installment.StatusFailed: {
		EventCollectSucceeded: toPaid,
		EventCollectFailed:    onFailure,
		EventManualPaid:       toPaid,
	},
}

// Next looks up (status, event) in the transition table.
func (p Policy) Next(in installment.Installment, ev Event, at time.Time) (Transition, error) {
	if in.Status == installment.StatusPaid || in.Paid {
		return Transition{}, installment.ErrAlreadyPaid
	}
	rules, ok := transitions[in.Status]
	if !ok {
		return Transition{}, fmt.Errorf("%w: %s on %s", installment.ErrInvalidTransition, ev, in.Status)
	}
	r, ok := rules[ev]
	if !ok {
		return Transition{}, fmt.Errorf("%w: %s on %s", installment.ErrInvalidTransition, ev, in.Status)
	}
	return r(p, in, at), nil
}

// IsFinalAttempt reports whether a failure at the current retry count defaults.
func (p Policy) IsFinalAttempt(in installment.Installment) bool {
	return in.RetryCount+1 >= p.MaxRetries
}
