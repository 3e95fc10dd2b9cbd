// internal/delivery/helpers_test.go

package delivery

import (
	"context"
	"sync"
	"testing"
	"time"

	"ctp-notifications/internal/common/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type MockPushProvider struct {
	mu       sync.Mutex
	SendFunc func(ctx context.Context, msg *PushMessage) error
	Sent     []*PushMessage
}

func (m *MockPushProvider) Name() string { return "mock-push" }

func (m *MockPushProvider) Send(ctx context.Context, msg *PushMessage) error {
	m.mu.Lock()
	m.Sent = append(m.Sent, msg)
	m.mu.Unlock()
	if m.SendFunc != nil {
		return m.SendFunc(ctx, msg)
	}
	return nil
}

func (m *MockPushProvider) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}

type MockEmailProvider struct {
	mu       sync.Mutex
	SendFunc func(ctx context.Context, msg *EmailMessage) error
	Sent     []*EmailMessage
}

func (m *MockEmailProvider) Name() string { return "mock-email" }

func (m *MockEmailProvider) Send(ctx context.Context, msg *EmailMessage) error {
	m.mu.Lock()
	m.Sent = append(m.Sent, msg)
	m.mu.Unlock()
	if m.SendFunc != nil {
		return m.SendFunc(ctx, msg)
	}
	return nil
}

type MockAuditor struct {
	mu      sync.Mutex
	Entries []AuditEntry
}

func (m *MockAuditor) Record(ctx context.Context, entry AuditEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries = append(m.Entries, entry)
}

type MockDeadLetterSink struct {
	mu      sync.Mutex
	Entries []DeadLetter
}

func (m *MockDeadLetterSink) Push(ctx context.Context, unit Notification, cause error, attempts int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries = append(m.Entries, DeadLetter{Unit: unit, Error: cause.Error(), Attempts: attempts})
	return nil
}

func createTestDeliverer(t *testing.T, push PushProvider, email EmailProvider, audit Auditor) *Deliverer {
	t.Helper()
	return NewDeliverer(push, email, 0, 1, audit, nil, logger.NewTestLogger(t))
}

func createTestDeadLetters(t *testing.T) (*DeadLetters, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	dl := NewDeadLetters(rdb, "notifications:dead-letter")
	dl.now = func() time.Time { return time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC) }
	return dl, mr
}

func pushUnit(key, token string) Notification {
	return Notification{
		Key:          key,
		EventKey:     "idem:offers:o1:offer_status_change:pending->accepted@e1",
		EventType:    "offer_status_change",
		DefinitionID: "offer_status_dealer",
		Channel:      ChannelPush,
		RecipientID:  "d1",
		Push: &PushMessage{
			Title: "Offer Status Updated",
			Body:  "Your offer is now accepted.",
			Data:  map[string]string{"notificationType": "offer_status_change"},
			Token: token,
		},
	}
}

func emailUnit(key string) Notification {
	return Notification{
		Key:          key,
		DefinitionID: "offer_accepted_dealer",
		Channel:      ChannelEmail,
		RecipientID:  "d1",
		Email: &EmailMessage{
			To:      "dealer@x.co",
			ToName:  "Dealer Co",
			Subject: "Your offer has been accepted",
			HTML:    "<p>Accepted</p>",
		},
	}
}
