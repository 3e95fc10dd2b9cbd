// internal/workers/lifecycle/document-written/models.go

package documentwritten

import (
	"ctp-notifications/internal/models"
)

// Input is the variable set of a document-written job.
type Input struct {
	Collection string          `json:"collection"`
	DocumentID string          `json:"documentId"`
	EventID    string          `json:"eventId"`
	Before     models.Document `json:"before"`
	After      models.Document `json:"after"`
	OccurredAt string          `json:"occurredAt"`
}

func (in *Input) Change() models.Change {
	occurred, _ := models.ParseTime(in.OccurredAt)
	return models.Change{
		Collection: in.Collection,
		DocumentID: in.DocumentID,
		EventID:    in.EventID,
		Before:     in.Before,
		After:      in.After,
		OccurredAt: occurred,
	}
}

// Output is written back to the process instance.
type Output struct {
	Notified []string          `json:"notified"`
	Skipped  map[string]string `json:"skipped,omitempty"`
	Units    int               `json:"units"`
	Accepted int               `json:"accepted"`
}
