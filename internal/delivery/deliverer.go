// internal/delivery/deliverer.go

package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ctp-notifications/internal/common/logger"
	"ctp-notifications/internal/common/metrics"
	"ctp-notifications/internal/common/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

// Deliverer makes the provider call for a single unit. It is shared by the queue worker
// and the inline dispatcher, and its limiter is the only state shared across units.
type Deliverer struct {
	push    PushProvider
	email   EmailProvider
	limiter *rate.Limiter
	audit   Auditor
	obs     *observability.Observability
	log     logger.Logger
}

// NewDeliverer limits provider calls to ratePerSecond with the given burst. A zero rate
// disables limiting. audit and obs may be nil.
func NewDeliverer(push PushProvider, email EmailProvider, ratePerSecond float64, burst int, audit Auditor, obs *observability.Observability, log logger.Logger) *Deliverer {
	limit := rate.Inf
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
	}
	if burst < 1 {
		burst = 1
	}
	if audit == nil {
		audit = nopAuditor{}
	}
	return &Deliverer{
		push:    push,
		email:   email,
		limiter: rate.NewLimiter(limit, burst),
		audit:   audit,
		obs:     obs,
		log:     log,
	}
}

// Deliver sends n through its channel's provider. Errors wrapping ErrPermanent must not
// be retried.
func (d *Deliverer) Deliver(ctx context.Context, n Notification) error {
	if err := n.Validate(); err != nil {
		d.record(ctx, n, "", OutcomeInvalid, err, 0)
		return Permanent(err)
	}

	provider, send, err := d.route(n)
	if err != nil {
		d.record(ctx, n, "", OutcomeInvalid, err, 0)
		return Permanent(err)
	}

	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	ctx, span := d.obs.StartSpan(ctx, "delivery."+n.Channel,
		attribute.String("unit.key", n.Key),
		attribute.String("definition", n.DefinitionID),
		attribute.String("provider", provider),
	)
	defer span.End()

	start := time.Now()
	err = send(ctx)
	elapsed := time.Since(start)
	metrics.DeliveryDuration.WithLabelValues(n.Channel, provider).Observe(elapsed.Seconds())

	outcome := OutcomeDelivered
	if err != nil {
		outcome = OutcomeFailed
		if errors.Is(err, ErrPermanent) {
			outcome = OutcomePermanent
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	d.record(ctx, n, provider, outcome, err, elapsed)
	return err
}

func (d *Deliverer) route(n Notification) (string, func(context.Context) error, error) {
	switch n.Channel {
	case ChannelPush:
		if d.push == nil {
			return "", nil, fmt.Errorf("no push provider configured")
		}
		return d.push.Name(), func(ctx context.Context) error { return d.push.Send(ctx, n.Push) }, nil
	case ChannelEmail:
		if d.email == nil {
			return "", nil, fmt.Errorf("no email provider configured")
		}
		return d.email.Name(), func(ctx context.Context) error { return d.email.Send(ctx, n.Email) }, nil
	default:
		return "", nil, fmt.Errorf("unknown channel %q", n.Channel)
	}
}

func (d *Deliverer) record(ctx context.Context, n Notification, provider, outcome string, err error, elapsed time.Duration) {
	metrics.DeliveryAttempts.WithLabelValues(n.Channel, provider, outcome).Inc()
	d.obs.RecordDelivery(ctx, n.Channel, outcome)

	entry := AuditEntry{
		UnitKey:      n.Key,
		EventKey:     n.EventKey,
		EventType:    n.EventType,
		DefinitionID: n.DefinitionID,
		Channel:      n.Channel,
		Provider:     provider,
		RecipientID:  n.RecipientID,
		Outcome:      outcome,
		DurationMs:   elapsed.Milliseconds(),
	}
	fields := map[string]interface{}{
		"unitKey":  n.Key,
		"channel":  n.Channel,
		"provider": provider,
		"outcome":  outcome,
	}
	if err != nil {
		entry.Error = err.Error()
		fields["error"] = err.Error()
		d.log.Warn("Delivery attempt failed", fields)
	} else {
		d.log.Debug("Delivery attempt succeeded", fields)
	}
	d.audit.Record(ctx, entry)
}
