// internal/models/change.go
package models

import "time"

const (
	CollectionOffers   = "offers"
	CollectionVehicles = "vehicles"
	CollectionUsers    = "users"
)

// Change is one document write: Before is nil on create, After is nil on delete.
type Change struct {
	Collection string    `json:"collection"`
	DocumentID string    `json:"documentId"`
	EventID    string    `json:"eventId"`
	Before     Document  `json:"before"`
	After      Document  `json:"after"`
	OccurredAt time.Time `json:"occurredAt"`
}

func (c Change) IsCreate() bool { return c.Before == nil && c.After != nil }
func (c Change) IsDelete() bool { return c.After == nil }
