// internal/delivery/audit.go

package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"ctp-notifications/internal/common/logger"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/google/uuid"
)

const (
	OutcomeDelivered = "delivered"
	OutcomeFailed    = "failed"
	OutcomePermanent = "permanent"
	OutcomeInvalid   = "invalid"
)

// AuditEntry is one provider attempt as stored in the audit index.
type AuditEntry struct {
	ID           string    `json:"id"`
	UnitKey      string    `json:"unitKey"`
	EventKey     string    `json:"eventKey"`
	EventType    string    `json:"eventType"`
	DefinitionID string    `json:"definitionId"`
	Channel      string    `json:"channel"`
	Provider     string    `json:"provider"`
	RecipientID  string    `json:"recipientId,omitempty"`
	Outcome      string    `json:"outcome"`
	Error        string    `json:"error,omitempty"`
	DurationMs   int64     `json:"durationMs"`
	Timestamp    time.Time `json:"@timestamp"`
}

type Auditor interface {
	Record(ctx context.Context, entry AuditEntry)
}

// ESAuditor indexes audit entries into Elasticsearch. Indexing failures are logged only.
type ESAuditor struct {
	client *elasticsearch.Client
	index  string
	log    logger.Logger
}

func NewESAuditor(client *elasticsearch.Client, index string, log logger.Logger) *ESAuditor {
	return &ESAuditor{client: client, index: index, log: log}
}

func (a *ESAuditor) Record(ctx context.Context, entry AuditEntry) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	body, err := json.Marshal(entry)
	if err != nil {
		a.log.Error("Failed to encode audit entry", map[string]interface{}{"error": err.Error()})
		return
	}

	res, err := a.client.Index(
		a.index,
		bytes.NewReader(body),
		a.client.Index.WithDocumentID(entry.ID),
		a.client.Index.WithContext(ctx),
	)
	if err != nil {
		a.log.Warn("Failed to index audit entry", map[string]interface{}{"error": err.Error(), "unitKey": entry.UnitKey})
		return
	}
	defer res.Body.Close()

	if res.IsError() {
		a.log.Warn("Audit index rejected entry", map[string]interface{}{"status": res.Status(), "unitKey": entry.UnitKey})
	}
}

type nopAuditor struct{}

func (nopAuditor) Record(context.Context, AuditEntry) {}
