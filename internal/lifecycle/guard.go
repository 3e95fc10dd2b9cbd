// internal/lifecycle/guard.go

// Package lifecycle decides which document writes are notifiable transitions and turns
// them into registry-driven notification batches.
package lifecycle

import (
	"context"

	apperrors "ctp-notifications/internal/common/errors"
	"ctp-notifications/internal/common/metrics"
	"ctp-notifications/internal/idempotency"
	"ctp-notifications/internal/models"
)

// Rejection reasons.
const (
	ReasonDeleted       = "deleted"
	ReasonTerminal      = "terminal"
	ReasonUnchanged     = "unchanged"
	ReasonNotApplicable = "not_applicable"
	ReasonMarker        = "marker"
	ReasonDuplicate     = "duplicate"
)

// KeyStore is the idempotency key store.
type KeyStore interface {
	Seen(ctx context.Context, key idempotency.Key) (bool, error)
	Claim(ctx context.Context, key idempotency.Key) (bool, error)
	Release(ctx context.Context, key idempotency.Key) error
}

type Decision struct {
	Proceed bool
	Reason  string
	Delta   Delta
	Key     idempotency.Key
}

func reject(reason string) Decision {
	return Decision{Reason: reason}
}

type Guard struct {
	keys KeyStore
}

func NewGuard(keys KeyStore) *Guard {
	return &Guard{keys: keys}
}

// Check runs the rejection rules in order: deleted, terminal, unchanged, not applicable,
// marker already written, key already seen. Only a key store failure returns an error.
func (g *Guard) Check(ctx context.Context, w Watch, change models.Change, identity string) (Decision, error) {
	d, err := g.check(ctx, w, change, identity)
	if err == nil && !d.Proceed {
		metrics.GuardRejections.WithLabelValues(change.Collection, d.Reason).Inc()
	}
	return d, err
}

func (g *Guard) check(ctx context.Context, w Watch, change models.Change, identity string) (Decision, error) {
	if change.IsDelete() {
		return reject(ReasonDeleted), nil
	}
	if w.TerminalAware && (models.IsTerminalOffer(change.Before) || models.IsTerminalOffer(change.After)) {
		return reject(ReasonTerminal), nil
	}
	if len(w.Fields) > 0 && unchanged(w.Fields, change) {
		return reject(ReasonUnchanged), nil
	}

	delta, ok := w.Detect(change)
	if !ok {
		return reject(ReasonNotApplicable), nil
	}
	if w.Marker != "" && change.After.String(w.Marker) == identity {
		return reject(ReasonMarker), nil
	}

	key := idempotency.Key{
		Collection: change.Collection,
		DocumentID: change.DocumentID,
		EventType:  w.Name,
		Identity:   identity,
	}
	seen, err := g.keys.Seen(ctx, key)
	if err != nil {
		return Decision{}, apperrors.NewIdempotencyStoreError(err)
	}
	if seen {
		return reject(ReasonDuplicate), nil
	}
	return Decision{Proceed: true, Delta: delta, Key: key}, nil
}

func unchanged(fields []string, change models.Change) bool {
	for _, f := range fields {
		if !models.FieldEqual(change.Before, change.After, f) {
			return false
		}
	}
	return true
}
