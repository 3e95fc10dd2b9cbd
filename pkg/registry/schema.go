// pkg/registry/schema.go
package registry

// Channels a definition can fan out to.
const (
	ChannelPush  = "push"
	ChannelEmail = "email"
)

// Audiences resolved by the party resolver.
const (
	AudienceDealer      = "dealer"
	AudienceTransporter = "transporter"
	AudienceAdmins      = "admins"
	AudienceOwner       = "owner"
	AudienceDealers     = "dealers"
	AudienceTopic       = "topic"
	AudienceUser        = "user"
)

// NotificationRegistry is the on-disk shape of the notification copy file.
type NotificationRegistry struct {
	Version     string       `json:"version"`
	LastUpdated string       `json:"lastUpdated"`
	Definitions []Definition `json:"definitions"`
}

// Definition describes a single effect: who receives it, over which
// channels, and with which copy. Copy fields use {{key}} placeholders.
type Definition struct {
	ID               string            `json:"id"`
	Description      string            `json:"description,omitempty"`
	NotificationType string            `json:"notificationType"`
	Audience         string            `json:"audience"`
	Channels         []string          `json:"channels"`
	Title            string            `json:"title,omitempty"`
	Body             string            `json:"body,omitempty"`
	Subject          string            `json:"subject,omitempty"`
	HTML             string            `json:"html,omitempty"`
	TemplateKey      string            `json:"templateKey,omitempty"`
	TemplateData     map[string]string `json:"templateData,omitempty"`
	Topic            string            `json:"topic,omitempty"`
	Data             map[string]string `json:"data,omitempty"`
}

// HasChannel reports whether the definition delivers over channel.
func (d Definition) HasChannel(channel string) bool {
	for _, c := range d.Channels {
		if c == channel {
			return true
		}
	}
	return false
}

// registrySchema is checked against every registry file before it is merged.
const registrySchema = `{
  "type": "object",
  "required": ["definitions"],
  "properties": {
    "version": {"type": "string"},
    "lastUpdated": {"type": "string"},
    "definitions": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "notificationType", "audience", "channels"],
        "properties": {
          "id": {"type": "string", "pattern": "^[a-z][a-z0-9_]*$"},
          "notificationType": {"type": "string", "minLength": 1},
          "audience": {"enum": ["dealer", "transporter", "admins", "owner", "dealers", "topic", "user"]},
          "channels": {
            "type": "array",
            "minItems": 1,
            "items": {"enum": ["push", "email"]}
          },
          "title": {"type": "string"},
          "body": {"type": "string"},
          "subject": {"type": "string"},
          "html": {"type": "string"},
          "templateKey": {"enum": ["admin", "transporter", "dealer"]},
          "templateData": {"type": "object", "additionalProperties": {"type": "string"}},
          "topic": {"type": "string"},
          "data": {"type": "object", "additionalProperties": {"type": "string"}}
        }
      }
    }
  }
}`
