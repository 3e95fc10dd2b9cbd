// internal/lifecycle/processor.go

package lifecycle

import (
	"context"

	"ctp-notifications/internal/common/logger"
	"ctp-notifications/internal/models"
)

// Outcome is the result of evaluating one watch against one change.
type Outcome struct {
	Event    string
	Proceed  bool
	Reason   string
	Effects  []string
	Units    int
	Accepted int
}

type EventNotifier interface {
	Notify(ctx context.Context, ev Event) (Result, error)
}

// Processor evaluates every watch of a collection against a change in a single pass.
type Processor struct {
	guard    *Guard
	notifier EventNotifier
	log      logger.Logger
}

func NewProcessor(guard *Guard, notifier EventNotifier, log logger.Logger) *Processor {
	return &Processor{guard: guard, notifier: notifier, log: log}
}

// Process returns one outcome per watch. Every watch is evaluated even when an earlier
// one fails; the first error is returned so the job can be retried, and watches that
// already dispatched collapse onto their claimed keys on the retry.
func (p *Processor) Process(ctx context.Context, change models.Change) ([]Outcome, error) {
	watches := Watches(change.Collection)
	outcomes := make([]Outcome, 0, len(watches))
	var firstErr error

	for _, w := range watches {
		identity := ""
		if change.After != nil {
			identity = w.Identity(change)
		}

		decision, err := p.guard.Check(ctx, w, change, identity)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if !decision.Proceed {
			p.log.Debug("Watch rejected", map[string]interface{}{
				"event":      w.Name,
				"documentId": change.DocumentID,
				"reason":     decision.Reason,
			})
			outcomes = append(outcomes, Outcome{Event: w.Name, Reason: decision.Reason})
			continue
		}

		ev := Event{
			Type:       w.Name,
			Collection: change.Collection,
			DocumentID: change.DocumentID,
			Identity:   identity,
			Key:        decision.Key,
			Delta:      decision.Delta,
			Effects:    w.Effects(decision.Delta),
			Doc:        change.After,
			Marker:     w.Marker,
		}
		res, err := p.notifier.Notify(ctx, ev)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		outcomes = append(outcomes, Outcome{
			Event:    w.Name,
			Proceed:  res.Skipped == "",
			Reason:   res.Skipped,
			Effects:  ev.Effects,
			Units:    res.Units,
			Accepted: res.Report.Accepted,
		})
	}
	return outcomes, firstErr
}
