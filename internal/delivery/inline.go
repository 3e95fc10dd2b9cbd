// internal/delivery/inline.go

package delivery

import (
	"context"
	"errors"
	"sync"
	"time"

	"ctp-notifications/internal/common/logger"
	"ctp-notifications/internal/common/metrics"
	"ctp-notifications/internal/common/retry"
)

// InlineDispatcher delivers units in-process with bounded concurrency and per-unit
// backoff. It is used when no queue worker runs.
type InlineDispatcher struct {
	deliverer    *Deliverer
	deadLetters  DeadLetterSink
	maxAttempts  int
	initialDelay time.Duration
	concurrency  int
	log          logger.Logger
}

func NewInlineDispatcher(deliverer *Deliverer, deadLetters DeadLetterSink, maxAttempts, concurrency int, log logger.Logger) *InlineDispatcher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &InlineDispatcher{
		deliverer:    deliverer,
		deadLetters:  deadLetters,
		maxAttempts:  maxAttempts,
		initialDelay: 200 * time.Millisecond,
		concurrency:  concurrency,
		log:          log,
	}
}

// WithInitialDelay sets the first backoff delay.
func (d *InlineDispatcher) WithInitialDelay(delay time.Duration) *InlineDispatcher {
	d.initialDelay = delay
	return d
}

func (d *InlineDispatcher) Dispatch(ctx context.Context, units []Notification) Report {
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		report Report
	)
	sem := make(chan struct{}, d.concurrency)

	for _, unit := range units {
		wg.Add(1)
		sem <- struct{}{}
		go func(unit Notification) {
			defer wg.Done()
			defer func() { <-sem }()

			err := d.deliver(ctx, unit)
			outcome := OutcomeDelivered
			if err != nil {
				outcome = OutcomeFailed
			}
			metrics.DeliveriesDispatched.WithLabelValues(unit.Channel, outcome).Inc()

			mu.Lock()
			report.add(err)
			mu.Unlock()
		}(unit)
	}
	wg.Wait()
	return report
}

func (d *InlineDispatcher) deliver(ctx context.Context, unit Notification) error {
	attempts := 0
	err := retry.WithBackoff(ctx, func() error {
		attempts++
		err := d.deliverer.Deliver(ctx, unit)
		if err != nil && errors.Is(err, ErrPermanent) {
			return &retry.Permanent{Err: err}
		}
		return err
	}, d.maxAttempts, d.initialDelay, d.log, "deliver "+unit.Key)
	if err == nil {
		return nil
	}

	if d.deadLetters != nil {
		if dlErr := d.deadLetters.Push(ctx, unit, err, attempts); dlErr != nil {
			d.log.Error("Failed to dead-letter delivery unit", map[string]interface{}{
				"unitKey": unit.Key,
				"error":   dlErr.Error(),
			})
		}
	}
	return err
}
