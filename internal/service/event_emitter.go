package service

import (
	"context"
	"sync"
	"time"

	"care-ledger/internal/core/domain"
	"care-ledger/internal/core/ports"

	"github.com/rs/zerolog"
)

// DefaultEmitRetryIntervals are the waits between publish attempts.
var DefaultEmitRetryIntervals = []time.Duration{
	200 * time.Millisecond,
	time.Second,
	5 * time.Second,
}

const emitAttemptTimeout = 10 * time.Second

// EventEmitter implements ports.EventPublisher by handing events to an
// underlying publisher in the background with retries. Publish never blocks
// on the broker and never fails, so a ledger commit is never undone by it.
type EventEmitter struct {
	next      ports.EventPublisher
	intervals []time.Duration
	log       zerolog.Logger
	wg        sync.WaitGroup
}

// NewEventEmitter wraps next. A nil intervals slice uses DefaultEmitRetryIntervals.
func NewEventEmitter(next ports.EventPublisher, intervals []time.Duration, log zerolog.Logger) *EventEmitter {
	if intervals == nil {
		intervals = DefaultEmitRetryIntervals
	}
	return &EventEmitter{next: next, intervals: intervals, log: log}
}

// Publish schedules delivery of event and returns immediately.
func (e *EventEmitter) Publish(_ context.Context, event domain.LedgerEvent) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.deliverWithRetries(event)
	}()
	return nil
}

func (e *EventEmitter) deliverWithRetries(event domain.LedgerEvent) {
	for attempt := 0; attempt <= len(e.intervals); attempt++ {
		if attempt > 0 {
			time.Sleep(e.intervals[attempt-1])
		}

		ctx, cancel := context.WithTimeout(context.Background(), emitAttemptTimeout)
		err := e.next.Publish(ctx, event)
		cancel()
		if err == nil {
			return
		}

		e.log.Warn().Err(err).
			Str("type", string(event.Type)).
			Str("key", event.Key).
			Int("attempt", attempt+1).
			Msg("ledger event publish failed")
	}

	e.log.Error().
		Str("type", string(event.Type)).
		Str("key", event.Key).
		Msg("ledger event dropped: all retry attempts exhausted")
}

// Close waits for in-flight deliveries, then closes the underlying publisher.
func (e *EventEmitter) Close() error {
	e.wg.Wait()
	return e.next.Close()
}
