// internal/sweeps/sweeps.go

// Package sweeps runs the time-triggered offer scans: appointment reminders, unpaid and
// overdue payment reminders and stalled offer alerts.
package sweeps

import (
	"context"
	"fmt"
	"time"

	"ctp-notifications/internal/common/config"
	"ctp-notifications/internal/common/logger"
	"ctp-notifications/internal/common/metrics"
	"ctp-notifications/internal/common/observability"
	"ctp-notifications/internal/idempotency"
	"ctp-notifications/internal/lifecycle"
	"ctp-notifications/internal/models"
	"ctp-notifications/internal/store"

	"go.opentelemetry.io/otel/attribute"
)

// Event types raised by sweeps.
const (
	EventInspectionReminder = "inspection_reminder"
	EventCollectionReminder = "collection_reminder"
	EventUnpaidReminder     = "unpaid_offer_reminder"
	EventPaymentOverdue     = "payment_overdue"
	EventStalledOffer       = "stalled_offer"
)

const (
	reminderLead   = 2 * time.Hour
	reminderWindow = 20 * time.Minute
	repeatAfter    = 24 * time.Hour
	stalledAfter   = 72 * time.Hour
)

var terminalStatuses = []string{models.OfferStatusCollected, models.OfferStatusCompleted, models.OfferStatusSold}

// OfferSource is the query surface the sweeps need.
type OfferSource interface {
	FindByFieldIn(ctx context.Context, collection, field string, values []string) ([]store.Record, error)
	FindByFieldNotIn(ctx context.Context, collection, field string, values []string) ([]store.Record, error)
	FindWithField(ctx context.Context, collection, field string) ([]store.Record, error)
}

// candidate is a matched offer ready to become an event.
type candidate struct {
	identity     string
	effects      []string
	marker       string
	markerValue  interface{}
	appendMarker bool
}

type sweep struct {
	event string
	query func(ctx context.Context) ([]store.Record, error)
	match func(offer models.Offer, now time.Time) (candidate, bool)
}

type Runner struct {
	source   OfferSource
	notifier lifecycle.EventNotifier
	loc      *time.Location
	now      func() time.Time
	obs      *observability.Observability
	log      logger.Logger
	sweeps   map[string]sweep
}

func NewRunner(source OfferSource, notifier lifecycle.EventNotifier, loc *time.Location, obs *observability.Observability, log logger.Logger) *Runner {
	if loc == nil {
		loc = time.UTC
	}
	r := &Runner{
		source:   source,
		notifier: notifier,
		loc:      loc,
		now:      time.Now,
		obs:      obs,
		log:      log.WithFields(map[string]interface{}{"component": "sweeps"}),
	}
	r.sweeps = map[string]sweep{
		config.SweepInspectionReminder: {
			event: EventInspectionReminder,
			query: r.withField(models.FieldInspectionDate),
			match: r.appointmentReminder(func(o models.Offer) models.Appointment { return o.Inspection },
				models.MarkerPreInspectionReminder, "inspection_reminder_dealer", "inspection_reminder_transporter"),
		},
		config.SweepCollectionReminder: {
			event: EventCollectionReminder,
			query: r.withField(models.FieldCollectionDate),
			match: r.appointmentReminder(func(o models.Offer) models.Appointment { return o.Collection },
				models.MarkerPreCollectionReminder, "collection_reminder_dealer", "collection_reminder_transporter"),
		},
		config.SweepUnpaidOffer: {
			event: EventUnpaidReminder,
			query: func(ctx context.Context) ([]store.Record, error) {
				return r.source.FindByFieldIn(ctx, models.CollectionOffers, models.FieldOfferStatus, []string{models.OfferStatusPaymentPending})
			},
			match: r.unpaidReminder,
		},
		config.SweepPaymentOverdue: {
			event: EventPaymentOverdue,
			query: r.withField(models.FieldPaymentDueDate),
			match: r.paymentOverdue,
		},
		config.SweepStalledOffer: {
			event: EventStalledOffer,
			query: func(ctx context.Context) ([]store.Record, error) {
				return r.source.FindByFieldNotIn(ctx, models.CollectionOffers, models.FieldOfferStatus, terminalStatuses)
			},
			match: r.stalledOffer,
		},
	}
	return r
}

// WithClock replaces the runner's time source.
func (r *Runner) WithClock(now func() time.Time) *Runner {
	r.now = now
	return r
}

// Names lists the sweeps the runner knows.
func (r *Runner) Names() []string {
	return []string{
		config.SweepInspectionReminder,
		config.SweepCollectionReminder,
		config.SweepUnpaidOffer,
		config.SweepPaymentOverdue,
		config.SweepStalledOffer,
	}
}

// Run executes one sweep and returns the number of offers notified. Per-offer failures
// are logged and skipped; only a failed query aborts the run.
func (r *Runner) Run(ctx context.Context, name string) (int, error) {
	s, ok := r.sweeps[name]
	if !ok {
		return 0, fmt.Errorf("unknown sweep %q", name)
	}

	ctx, span := r.obs.StartSpan(ctx, "sweep."+name, attribute.String("sweep", name))
	defer span.End()

	log := logger.WithTrace(ctx, r.log).WithFields(map[string]interface{}{"sweep": name})
	start := time.Now()
	now := r.now()

	records, err := s.query(ctx)
	if err != nil {
		metrics.SweepRuns.WithLabelValues(name, "error").Inc()
		log.Error("Sweep query failed", map[string]interface{}{"error": err.Error()})
		return 0, fmt.Errorf("sweep %s: %w", name, err)
	}

	sent, skipped, failed := 0, 0, 0
	for _, rec := range records {
		if ctx.Err() != nil {
			break
		}
		offer := models.OfferFromDocument(rec.ID, rec.Data)
		if offer.IsTerminal() {
			skipped++
			continue
		}
		c, ok := s.match(offer, now)
		if !ok {
			skipped++
			continue
		}

		res, err := r.notifier.Notify(ctx, lifecycle.Event{
			Type:       s.event,
			Collection: models.CollectionOffers,
			DocumentID: rec.ID,
			Identity:   c.identity,
			Key: idempotency.Key{
				Collection: models.CollectionOffers,
				DocumentID: rec.ID,
				EventType:  s.event,
				Identity:   c.identity,
			},
			Effects:      c.effects,
			Doc:          rec.Data,
			Marker:       c.marker,
			MarkerValue:  c.markerValue,
			AppendMarker: c.appendMarker,
		})
		if err != nil {
			failed++
			log.Warn("Sweep notification failed", map[string]interface{}{"offerId": rec.ID, "error": err.Error()})
			continue
		}
		if res.Skipped != "" {
			skipped++
			continue
		}
		sent++
	}

	metrics.SweepRuns.WithLabelValues(name, "success").Inc()
	metrics.SweepNotifications.WithLabelValues(name).Add(float64(sent))
	r.obs.RecordSweep(ctx, name, sent)
	log.Info("Sweep finished", map[string]interface{}{
		"scanned":  len(records),
		"sent":     sent,
		"skipped":  skipped,
		"failed":   failed,
		"duration": time.Since(start).String(),
	})
	return sent, nil
}

func (r *Runner) withField(field string) func(ctx context.Context) ([]store.Record, error) {
	return func(ctx context.Context) ([]store.Record, error) {
		return r.source.FindWithField(ctx, models.CollectionOffers, field)
	}
}

// appointmentReminder matches appointments starting within reminderWindow of now+reminderLead.
// The marker holds the appointment key, so a rebooked slot is reminded again.
func (r *Runner) appointmentReminder(slot func(models.Offer) models.Appointment, marker string, effects ...string) func(models.Offer, time.Time) (candidate, bool) {
	return func(o models.Offer, now time.Time) (candidate, bool) {
		appt := slot(o)
		at, ok := appt.At(r.loc)
		if !ok {
			if appt.IsSet() {
				r.log.Debug("Unparseable appointment", map[string]interface{}{"offerId": o.ID, "date": appt.DateKey(), "time": appt.Time})
			}
			return candidate{}, false
		}

		target := now.Add(reminderLead)
		if at.Before(target.Add(-reminderWindow)) || at.After(target.Add(reminderWindow)) {
			return candidate{}, false
		}
		key := appt.Key()
		if o.Raw.String(marker) == key {
			return candidate{}, false
		}
		return candidate{identity: key, effects: effects, marker: marker, markerValue: key}, true
	}
}

func (r *Runner) unpaidReminder(o models.Offer, now time.Time) (candidate, bool) {
	last := o.LastActivity()
	if last.IsZero() || now.Sub(last) < repeatAfter {
		return candidate{}, false
	}
	if r.remindedRecently(o, models.MarkerUnpaidReminder, now) {
		return candidate{}, false
	}
	return candidate{
		identity:    r.day(now),
		effects:     []string{"unpaid_reminder_dealer"},
		marker:      models.MarkerUnpaidReminder,
		markerValue: now.UTC().Format(time.RFC3339),
	}, true
}

func (r *Runner) paymentOverdue(o models.Offer, now time.Time) (candidate, bool) {
	if o.PaymentDueDate.IsZero() || !o.PaymentDueDate.Before(now) || o.PaymentStatus == models.OfferStatusPaid {
		return candidate{}, false
	}
	if r.remindedRecently(o, models.MarkerPaymentOverdue, now) {
		return candidate{}, false
	}
	return candidate{
		identity:    r.day(now),
		effects:     []string{"payment_overdue_dealer", "payment_overdue_admin"},
		marker:      models.MarkerPaymentOverdue,
		markerValue: now.UTC().Format(time.RFC3339),
	}, true
}

// stalledOffer alerts once per status and last-activity date; the key is appended to the
// offer's alert list.
func (r *Runner) stalledOffer(o models.Offer, now time.Time) (candidate, bool) {
	last := o.LastActivity()
	if last.IsZero() || now.Sub(last) < stalledAfter {
		return candidate{}, false
	}
	key := o.Status + ":" + last.In(r.loc).Format("2006-01-02")
	for _, k := range o.Raw.Strings(models.MarkerStalledAlertKeys) {
		if k == key {
			return candidate{}, false
		}
	}
	return candidate{
		identity:     key,
		effects:      []string{"stalled_offer_admin"},
		marker:       models.MarkerStalledAlertKeys,
		markerValue:  key,
		appendMarker: true,
	}, true
}

func (r *Runner) remindedRecently(o models.Offer, marker string, now time.Time) bool {
	last, ok := o.Raw.Time(marker)
	return ok && now.Sub(last) < repeatAfter
}

func (r *Runner) day(now time.Time) string {
	return now.In(r.loc).Format("2006-01-02")
}
