// internal/common/validation/schema_test.go

package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(i int) *int { return &i }

func envelopeSchema() JSONSchema {
	return JSONSchema{
		Type:     "object",
		Required: []string{"collection", "documentId"},
		Properties: map[string]Property{
			"collection": {Type: "string", Enum: []string{"offers", "vehicles", "users"}},
			"documentId": {Type: "string", MinLength: intPtr(1)},
			"before":     {Description: "object or null"},
		},
	}
}

func TestValidateDocument(t *testing.T) {
	tests := []struct {
		name       string
		doc        map[string]interface{}
		wantValid  bool
		wantFields []string
	}{
		{
			name:      "null snapshot",
			doc:       map[string]interface{}{"collection": "vehicles", "documentId": "v1", "before": nil},
			wantValid: true,
		},
		{
			name:      "object snapshot and extra keys",
			doc:       map[string]interface{}{"collection": "offers", "documentId": "o1", "before": map[string]interface{}{"offerStatus": "pending"}, "trace": "x"},
			wantValid: true,
		},
		{
			name:       "missing required",
			doc:        map[string]interface{}{"collection": "offers"},
			wantFields: []string{"documentId"},
		},
		{
			name:       "unknown collection",
			doc:        map[string]interface{}{"collection": "trucks", "documentId": "x"},
			wantFields: []string{"collection"},
		},
		{
			name:       "wrong type",
			doc:        map[string]interface{}{"collection": "offers", "documentId": 7.0},
			wantFields: []string{"documentId"},
		},
		{
			name:       "every violation reported",
			doc:        map[string]interface{}{"collection": "trucks", "documentId": ""},
			wantFields: []string{"collection", "documentId"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ValidateDocument(tt.doc, envelopeSchema())
			require.NoError(t, err)
			assert.Equal(t, tt.wantValid, result.Valid)
			assert.Len(t, result.Errors, len(tt.wantFields))
			for _, field := range tt.wantFields {
				found := false
				for _, e := range result.Errors {
					if e.Field == field {
						found = true
					}
				}
				assert.True(t, found, "expected error on %s, got %v", field, result.Messages())
			}
		})
	}
}
