// internal/workers/lifecycle/document-written/validation.go

package documentwritten

import (
	"ctp-notifications/internal/common/validation"
	"ctp-notifications/internal/models"
)

func GetInputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type:     "object",
		Required: []string{"collection", "documentId", "after"},
		Properties: map[string]validation.Property{
			"collection": {
				Type:        "string",
				Description: "Collection of the written document",
				Enum:        []string{models.CollectionOffers, models.CollectionVehicles, models.CollectionUsers},
			},
			"documentId": {
				Type:        "string",
				Description: "Id of the written document",
				MinLength:   intPtr(1),
				MaxLength:   intPtr(255),
			},
			"eventId": {
				Type:        "string",
				Description: "Id of the write event, stable across redeliveries",
				MaxLength:   intPtr(255),
			},
			"before": {
				Description: "Snapshot before the write, null on create",
			},
			"after": {
				Description: "Snapshot after the write, null on delete",
			},
			"occurredAt": {
				Type:        "string",
				Description: "Time of the write",
			},
		},
	}
}

func intPtr(i int) *int {
	return &i
}
