// internal/lifecycle/helpers_test.go

package lifecycle

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"ctp-notifications/internal/common/logger"
	"ctp-notifications/internal/delivery"
	"ctp-notifications/internal/idempotency"
	"ctp-notifications/internal/models"
	"ctp-notifications/internal/parties"
	"ctp-notifications/internal/store"
	"ctp-notifications/pkg/registry"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// MockDocumentReader serves documents from a "collection/id" keyed map.
type MockDocumentReader struct {
	Docs map[string]models.Document
}

func (m *MockDocumentReader) Get(ctx context.Context, collection, id string) (models.Document, error) {
	if d, ok := m.Docs[collection+"/"+id]; ok {
		return d, nil
	}
	return nil, store.ErrNotFound
}

func (m *MockDocumentReader) FindByFieldIn(ctx context.Context, collection, field string, values []string) ([]store.Record, error) {
	var out []store.Record
	for key, d := range m.Docs {
		if !strings.HasPrefix(key, collection+"/") {
			continue
		}
		for _, v := range values {
			if models.NormalizeStatus(d.String(field)) == v {
				out = append(out, store.Record{ID: strings.TrimPrefix(key, collection+"/"), Data: d})
			}
		}
	}
	return out, nil
}

// MockDispatcher records units and fails those for which FailFunc returns an error.
type MockDispatcher struct {
	mu       sync.Mutex
	Units    []delivery.Notification
	Calls    int
	FailFunc func(n delivery.Notification) error
}

func (m *MockDispatcher) Dispatch(ctx context.Context, units []delivery.Notification) delivery.Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	var r delivery.Report
	for _, u := range units {
		m.Units = append(m.Units, u)
		var err error
		if m.FailFunc != nil {
			err = m.FailFunc(u)
		}
		r.Attempted++
		if err != nil {
			r.Failed++
			r.Errors = append(r.Errors, err)
		} else {
			r.Accepted++
		}
	}
	return r
}

func (m *MockDispatcher) pushTokens() []string {
	var out []string
	for _, u := range m.Units {
		if u.Channel == delivery.ChannelPush && u.Push.Token != "" {
			out = append(out, u.Push.Token)
		}
	}
	return out
}

func (m *MockDispatcher) byDefinition(id string) []delivery.Notification {
	var out []delivery.Notification
	for _, u := range m.Units {
		if u.DefinitionID == id {
			out = append(out, u)
		}
	}
	return out
}

type markerWrite struct {
	Collection string
	ID         string
	Fields     map[string]interface{}
	Appended   string
}

type MockMarkerWriter struct {
	mu     sync.Mutex
	Writes []markerWrite
	Err    error
}

func (m *MockMarkerWriter) UpdateFields(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Writes = append(m.Writes, markerWrite{Collection: collection, ID: id, Fields: fields})
	return m.Err
}

func (m *MockMarkerWriter) AppendToArray(ctx context.Context, collection, id, field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Writes = append(m.Writes, markerWrite{Collection: collection, ID: id, Fields: map[string]interface{}{field: nil}, Appended: value})
	return m.Err
}

type testEnv struct {
	docs       *MockDocumentReader
	keys       *idempotency.Store
	redis      *miniredis.Miniredis
	dispatcher *MockDispatcher
	markers    *MockMarkerWriter
	notifier   *Notifier
	processor  *Processor
}

var testNow = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

func createTestEnv(t *testing.T, docs map[string]models.Document) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	log := logger.NewTestLogger(t)
	env := &testEnv{
		docs:       &MockDocumentReader{Docs: docs},
		keys:       idempotency.NewStore(rdb, time.Hour),
		redis:      mr,
		dispatcher: &MockDispatcher{},
		markers:    &MockMarkerWriter{},
	}
	loc, _ := time.LoadLocation("Africa/Johannesburg")
	env.notifier = NewNotifier(
		registry.Default(),
		parties.NewResolver(env.docs, log),
		env.keys,
		env.markers,
		env.dispatcher,
		NotifierConfig{
			TemplateIDs:   map[string]string{"admin": "d-admin", "transporter": "d-transporter", "dealer": "d-dealer"},
			PublicBaseURL: "https://ctpapp.co.za",
			Location:      loc,
		},
		log,
	).WithClock(func() time.Time { return testNow })
	env.processor = NewProcessor(NewGuard(env.keys), env.notifier, log)
	return env
}

// baseDocs is a marketplace with one dealer, one transporter owning v1 and two admins.
func baseDocs() map[string]models.Document {
	return map[string]models.Document{
		"users/d1":    {"userRole": "dealer", "fcmToken": "D1", "email": "dealer@x.co", "companyName": "Dealer Co"},
		"users/t1":    {"userRole": "transporter", "fcmToken": "T1", "email": "t1@x.co", "firstName": "Thabo", "lastName": "M", "companyName": "Haulage"},
		"users/a1":    {"userRole": "admin", "fcmToken": "A1", "email": "a1@ctp.co.za"},
		"users/a2":    {"userRole": "sales representative", "fcmToken": "A2", "email": "a2@ctp.co.za"},
		"vehicles/v1": {"userId": "t1", "makeModel": "Volvo FH", "brands": []interface{}{"Volvo"}, "year": "2019"},
	}
}

func offerChange(before, after models.Document) models.Change {
	return models.Change{
		Collection: models.CollectionOffers,
		DocumentID: "o1",
		EventID:    "evt-1",
		Before:     before,
		After:      after,
	}
}

var errProvider = errors.New("provider down")
