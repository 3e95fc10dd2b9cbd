// internal/lifecycle/notifier.go

package lifecycle

import (
	"context"
	"fmt"
	"time"

	apperrors "ctp-notifications/internal/common/errors"
	"ctp-notifications/internal/common/logger"
	"ctp-notifications/internal/common/metrics"
	"ctp-notifications/internal/delivery"
	"ctp-notifications/internal/idempotency"
	"ctp-notifications/internal/models"
	"ctp-notifications/internal/parties"
	"ctp-notifications/pkg/registry"
)

// Event is a qualifying transition ready to notify.
type Event struct {
	Type       string
	Collection string
	DocumentID string
	Identity   string
	Key        idempotency.Key
	Delta      Delta
	Effects    []string
	Doc        models.Document

	// Marker is written onto the source document after dispatch. With AppendMarker the
	// value is added to an array field instead of replacing it.
	Marker       string
	MarkerValue  interface{}
	AppendMarker bool

	// Vars override computed placeholder values.
	Vars map[string]string
}

type PartyResolver interface {
	ForOffer(ctx context.Context, offer models.Offer) (*parties.Parties, error)
	ForVehicle(ctx context.Context, vehicle models.Vehicle) (*parties.Parties, error)
	Resolve(ctx context.Context, audience string, p *parties.Parties) ([]parties.Recipient, error)
}

type MarkerWriter interface {
	UpdateFields(ctx context.Context, collection, id string, fields map[string]interface{}) error
	AppendToArray(ctx context.Context, collection, id, field, value string) error
}

type NotifierConfig struct {
	TemplateIDs   map[string]string
	PublicBaseURL string
	Location      *time.Location
}

// Result describes what Notify did with one event.
type Result struct {
	Skipped string
	Units   int
	Report  delivery.Report
}

type Notifier struct {
	registry   *registry.Registry
	resolver   PartyResolver
	keys       KeyStore
	markers    MarkerWriter
	dispatcher delivery.Dispatcher
	cfg        NotifierConfig
	now        func() time.Time
	log        logger.Logger
}

func NewNotifier(
	reg *registry.Registry,
	resolver PartyResolver,
	keys KeyStore,
	markers MarkerWriter,
	dispatcher delivery.Dispatcher,
	cfg NotifierConfig,
	log logger.Logger,
) *Notifier {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Notifier{
		registry:   reg,
		resolver:   resolver,
		keys:       keys,
		markers:    markers,
		dispatcher: dispatcher,
		cfg:        cfg,
		now:        time.Now,
		log:        log,
	}
}

// WithClock replaces the notifier's time source.
func (n *Notifier) WithClock(now func() time.Time) *Notifier {
	n.now = now
	return n
}

// Notify resolves recipients, claims the event key, dispatches one unit per recipient and
// channel, then writes the marker. Resolution failures return before the claim; if every
// unit fails to be accepted the claim is released so a retry can dispatch again.
func (n *Notifier) Notify(ctx context.Context, ev Event) (Result, error) {
	log := n.log.WithFields(map[string]interface{}{
		"eventType":  ev.Type,
		"collection": ev.Collection,
		"documentId": ev.DocumentID,
		"identity":   ev.Identity,
	})

	p, err := n.partiesFor(ctx, ev)
	if err != nil {
		return Result{}, err
	}
	targets, err := n.resolveTargets(ctx, ev, p, log)
	if err != nil {
		return Result{}, err
	}

	claimed, err := n.keys.Claim(ctx, ev.Key)
	if err != nil {
		return Result{}, apperrors.NewIdempotencyStoreError(err)
	}
	if !claimed {
		metrics.GuardRejections.WithLabelValues(ev.Collection, ReasonDuplicate).Inc()
		log.Info("Event already claimed by another handler", nil)
		return Result{Skipped: ReasonDuplicate}, nil
	}

	vars := n.variables(ev, p)
	var units []delivery.Notification
	for _, t := range targets {
		units = append(units, n.buildUnits(ev, t.def, t.recipients, vars, log)...)
	}

	result := Result{Units: len(units)}
	if len(units) > 0 {
		result.Report = n.dispatcher.Dispatch(ctx, units)
		if result.Report.AllFailed() {
			if relErr := n.keys.Release(ctx, ev.Key); relErr != nil {
				log.Error("Failed to release idempotency key", map[string]interface{}{"error": relErr.Error()})
			}
			return result, apperrors.NewEnqueueError(fmt.Errorf("all %d units failed: %w", result.Report.Failed, result.Report.Errors[0]))
		}
	}

	n.writeMarker(ctx, ev, log)
	metrics.EventsNotified.WithLabelValues(ev.Type).Inc()
	log.Info("Event notified", map[string]interface{}{
		"units":    result.Units,
		"accepted": result.Report.Accepted,
		"failed":   result.Report.Failed,
	})
	return result, nil
}

func (n *Notifier) partiesFor(ctx context.Context, ev Event) (*parties.Parties, error) {
	switch ev.Collection {
	case models.CollectionOffers:
		return n.resolver.ForOffer(ctx, models.OfferFromDocument(ev.DocumentID, ev.Doc))
	case models.CollectionVehicles:
		return n.resolver.ForVehicle(ctx, models.VehicleFromDocument(ev.DocumentID, ev.Doc))
	case models.CollectionUsers:
		u := models.UserFromDocument(ev.DocumentID, ev.Doc)
		return &parties.Parties{User: &u}, nil
	default:
		return &parties.Parties{}, nil
	}
}

type target struct {
	def        registry.Definition
	recipients []parties.Recipient
}

func (n *Notifier) resolveTargets(ctx context.Context, ev Event, p *parties.Parties, log logger.Logger) ([]target, error) {
	targets := make([]target, 0, len(ev.Effects))
	for _, id := range ev.Effects {
		def, ok := n.registry.Lookup(id)
		if !ok {
			log.Error("Notification definition missing", map[string]interface{}{
				"definition": id,
				"error":      apperrors.NewDefinitionMissingError(id).Error(),
			})
			continue
		}
		recipients, err := n.resolver.Resolve(ctx, def.Audience, p)
		if err != nil {
			return nil, err
		}
		if len(recipients) == 0 && def.Audience != registry.AudienceTopic {
			log.Warn("No recipients for definition", map[string]interface{}{
				"definition": id,
				"audience":   def.Audience,
			})
		}
		targets = append(targets, target{def: def, recipients: recipients})
	}
	return targets, nil
}

func (n *Notifier) buildUnits(ev Event, def registry.Definition, recipients []parties.Recipient, vars map[string]string, log logger.Logger) []delivery.Notification {
	rendered := registry.Render(def, vars)
	rendered.Data["timestamp"] = n.now().UTC().Format(time.RFC3339)
	base := fmt.Sprintf("%s:%s", ev.Key.String(), def.ID)

	unit := func(channel, suffix, recipientID string) delivery.Notification {
		return delivery.Notification{
			Key:          base + ":" + channel + ":" + suffix,
			EventKey:     ev.Key.String(),
			EventType:    ev.Type,
			DefinitionID: def.ID,
			Channel:      channel,
			RecipientID:  recipientID,
		}
	}
	push := func() *delivery.PushMessage {
		return &delivery.PushMessage{Title: rendered.Title, Body: rendered.Body, Data: rendered.Data}
	}

	var units []delivery.Notification

	if def.HasChannel(registry.ChannelPush) {
		switch def.Audience {
		case registry.AudienceTopic:
			u := unit(delivery.ChannelPush, "topic", "")
			u.Push = push()
			u.Push.Topic = rendered.Topic
			units = append(units, u)

		case registry.AudienceDealers:
			seen := make(map[string]bool)
			var tokens []string
			for _, r := range recipients {
				if r.Token != "" && !seen[r.Token] {
					seen[r.Token] = true
					tokens = append(tokens, r.Token)
				}
			}
			for i, batch := range delivery.BatchTokens(tokens) {
				u := unit(delivery.ChannelPush, fmt.Sprintf("batch-%d", i), "")
				u.Push = push()
				u.Push.Tokens = batch
				units = append(units, u)
			}

		default:
			for _, r := range recipients {
				if r.Token == "" {
					log.Debug("Recipient has no push token", map[string]interface{}{"userId": r.UserID, "definition": def.ID})
					continue
				}
				u := unit(delivery.ChannelPush, r.UserID, r.UserID)
				u.Push = push()
				u.Push.Token = r.Token
				units = append(units, u)
			}
		}
	}

	if def.HasChannel(registry.ChannelEmail) {
		templateID := ""
		if def.TemplateKey != "" {
			templateID = n.cfg.TemplateIDs[def.TemplateKey]
		}
		if templateID == "" && rendered.HTML == "" {
			log.Warn("Email template not configured", map[string]interface{}{"definition": def.ID, "templateKey": def.TemplateKey})
			return units
		}
		for _, r := range recipients {
			if r.Email == "" {
				continue
			}
			u := unit(delivery.ChannelEmail, r.UserID, r.UserID)
			u.Email = &delivery.EmailMessage{To: r.Email, ToName: r.Name}
			if templateID != "" {
				u.Email.TemplateID = templateID
				u.Email.TemplateData = rendered.TemplateData
			} else {
				u.Email.Subject = rendered.Subject
				u.Email.HTML = rendered.HTML
			}
			units = append(units, u)
		}
	}
	return units
}

// writeMarker is best effort: the claimed key already prevents a second dispatch.
func (n *Notifier) writeMarker(ctx context.Context, ev Event, log logger.Logger) {
	if ev.Marker == "" {
		return
	}
	value := ev.MarkerValue
	if value == nil {
		value = ev.Identity
	}

	var err error
	if ev.AppendMarker {
		err = n.markers.AppendToArray(ctx, ev.Collection, ev.DocumentID, ev.Marker, fmt.Sprint(value))
	} else {
		err = n.markers.UpdateFields(ctx, ev.Collection, ev.DocumentID, map[string]interface{}{ev.Marker: value})
	}
	if err != nil {
		log.Error("Failed to write idempotency marker", map[string]interface{}{
			"marker": ev.Marker,
			"error":  apperrors.NewDatastoreUpdateError(ev.Collection, ev.DocumentID, err).Error(),
		})
	}
}
