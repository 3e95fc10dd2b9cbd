// internal/delivery/notification_test.go

package delivery

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotification_Validate(t *testing.T) {
	tokens := make([]string, MaxMulticastTokens+1)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("t%d", i)
	}

	tests := []struct {
		name    string
		unit    Notification
		wantErr bool
	}{
		{"token push", pushUnit("k", "T1"), false},
		{"topic push", Notification{Key: "k", Channel: ChannelPush, Push: &PushMessage{Title: "x", Topic: "newVehicles"}}, false},
		{"no target", Notification{Key: "k", Channel: ChannelPush, Push: &PushMessage{Title: "x"}}, true},
		{"two targets", Notification{Key: "k", Channel: ChannelPush, Push: &PushMessage{Token: "a", Topic: "b"}}, true},
		{"too many tokens", Notification{Key: "k", Channel: ChannelPush, Push: &PushMessage{Tokens: tokens}}, true},
		{"missing push payload", Notification{Key: "k", Channel: ChannelPush}, true},
		{"html email", emailUnit("k"), false},
		{"template email", Notification{Key: "k", Channel: ChannelEmail, Email: &EmailMessage{To: "a@x.co", TemplateID: "d-1"}}, false},
		{"email without body", Notification{Key: "k", Channel: ChannelEmail, Email: &EmailMessage{To: "a@x.co"}}, true},
		{"email without recipient", Notification{Key: "k", Channel: ChannelEmail, Email: &EmailMessage{HTML: "x"}}, true},
		{"unknown channel", Notification{Key: "k", Channel: "sms"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.unit.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBatchTokens(t *testing.T) {
	tokens := make([]string, 1201)
	batches := BatchTokens(tokens)
	assert.Len(t, batches, 3)
	assert.Len(t, batches[0], 500)
	assert.Len(t, batches[2], 201)
	assert.Nil(t, BatchTokens(nil))
}

func TestPermanent(t *testing.T) {
	cause := errors.New("unregistered")
	err := Permanent(cause)
	assert.True(t, errors.Is(err, ErrPermanent))
	assert.True(t, errors.Is(err, cause))
	assert.Nil(t, Permanent(nil))
}

func TestReport(t *testing.T) {
	var r Report
	assert.False(t, r.AllFailed())
	r.add(errors.New("x"))
	assert.True(t, r.AllFailed())
	r.add(nil)
	assert.False(t, r.AllFailed())
	assert.Equal(t, Report{Attempted: 2, Accepted: 1, Failed: 1, Errors: r.Errors}, r)
}
