// internal/delivery/notification.go

// Package delivery moves rendered notifications to the push and email providers, either
// through the asynq queue or inline, and records every outcome.
package delivery

import (
	"context"
	"errors"
	"fmt"

	"ctp-notifications/pkg/registry"
)

const (
	ChannelPush  = registry.ChannelPush
	ChannelEmail = registry.ChannelEmail

	// MaxMulticastTokens is the FCM limit for one multicast request.
	MaxMulticastTokens = 500
)

// ErrPermanent marks a provider failure that a retry cannot fix, such as an
// unregistered token or a rejected address.
var ErrPermanent = errors.New("permanent delivery failure")

// Permanent wraps err so that errors.Is(err, ErrPermanent) holds.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// Notification is one delivery unit: one channel to one recipient, topic or token batch.
type Notification struct {
	Key          string        `json:"key"`
	EventKey     string        `json:"eventKey"`
	EventType    string        `json:"eventType"`
	DefinitionID string        `json:"definitionId"`
	Channel      string        `json:"channel"`
	RecipientID  string        `json:"recipientId,omitempty"`
	Push         *PushMessage  `json:"push,omitempty"`
	Email        *EmailMessage `json:"email,omitempty"`
}

// PushMessage targets exactly one of Token, Topic or Tokens.
type PushMessage struct {
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data,omitempty"`
	Token  string            `json:"token,omitempty"`
	Topic  string            `json:"topic,omitempty"`
	Tokens []string          `json:"tokens,omitempty"`
}

// EmailMessage is either a plain subject/html email or a provider template.
type EmailMessage struct {
	To           string            `json:"to"`
	ToName       string            `json:"toName,omitempty"`
	Subject      string            `json:"subject,omitempty"`
	HTML         string            `json:"html,omitempty"`
	TemplateID   string            `json:"templateId,omitempty"`
	TemplateData map[string]string `json:"templateData,omitempty"`
}

func (e *EmailMessage) IsTemplate() bool { return e.TemplateID != "" }

// Validate checks that the unit carries the payload its channel needs.
func (n Notification) Validate() error {
	switch n.Channel {
	case ChannelPush:
		if n.Push == nil {
			return fmt.Errorf("push unit %s has no push payload", n.Key)
		}
		targets := 0
		if n.Push.Token != "" {
			targets++
		}
		if n.Push.Topic != "" {
			targets++
		}
		if len(n.Push.Tokens) > 0 {
			targets++
		}
		if targets != 1 {
			return fmt.Errorf("push unit %s must target exactly one of token, topic or tokens", n.Key)
		}
		if len(n.Push.Tokens) > MaxMulticastTokens {
			return fmt.Errorf("push unit %s has %d tokens, limit is %d", n.Key, len(n.Push.Tokens), MaxMulticastTokens)
		}
	case ChannelEmail:
		if n.Email == nil || n.Email.To == "" {
			return fmt.Errorf("email unit %s has no recipient", n.Key)
		}
		if !n.Email.IsTemplate() && n.Email.HTML == "" {
			return fmt.Errorf("email unit %s has neither template nor html", n.Key)
		}
	default:
		return fmt.Errorf("unit %s has unknown channel %q", n.Key, n.Channel)
	}
	return nil
}

// BatchTokens splits tokens into multicast-sized groups.
func BatchTokens(tokens []string) [][]string {
	var batches [][]string
	for start := 0; start < len(tokens); start += MaxMulticastTokens {
		end := start + MaxMulticastTokens
		if end > len(tokens) {
			end = len(tokens)
		}
		batches = append(batches, tokens[start:end])
	}
	return batches
}

// Report summarises one Dispatch call.
type Report struct {
	Attempted int
	Accepted  int
	Failed    int
	Errors    []error
}

// AllFailed reports whether units were attempted but none accepted.
func (r Report) AllFailed() bool {
	return r.Attempted > 0 && r.Accepted == 0
}

func (r *Report) add(err error) {
	r.Attempted++
	if err != nil {
		r.Failed++
		r.Errors = append(r.Errors, err)
		return
	}
	r.Accepted++
}

// Dispatcher hands units to the delivery backend. One unit's failure never stops the rest.
type Dispatcher interface {
	Dispatch(ctx context.Context, units []Notification) Report
}
