// internal/delivery/audit_test.go

package delivery

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"ctp-notifications/internal/common/logger"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeESTransport struct {
	status int
	paths  []string
	bodies []string
}

func (f *fakeESTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	f.paths = append(f.paths, req.URL.Path)
	if req.Body != nil {
		body, _ := io.ReadAll(req.Body)
		f.bodies = append(f.bodies, string(body))
	}
	return &http.Response{
		StatusCode: f.status,
		Header:     http.Header{"X-Elastic-Product": []string{"Elasticsearch"}},
		Body:       io.NopCloser(strings.NewReader(`{"result":"created"}`)),
	}, nil
}

func createTestAuditor(t *testing.T, status int) (*ESAuditor, *fakeESTransport) {
	transport := &fakeESTransport{status: status}
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{"http://es:9200"},
		Transport: transport,
	})
	require.NoError(t, err)
	return NewESAuditor(client, "notification-deliveries", logger.NewTestLogger(t)), transport
}

func TestESAuditor_Record(t *testing.T) {
	a, transport := createTestAuditor(t, http.StatusCreated)

	a.Record(context.Background(), AuditEntry{
		ID:       "audit-1",
		UnitKey:  "u1",
		Channel:  ChannelPush,
		Provider: ProviderFCM,
		Outcome:  OutcomeDelivered,
	})

	require.Len(t, transport.paths, 1)
	assert.Equal(t, "/notification-deliveries/_doc/audit-1", transport.paths[0])

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(transport.bodies[0]), &doc))
	assert.Equal(t, "u1", doc["unitKey"])
	assert.Equal(t, "delivered", doc["outcome"])
	assert.NotEmpty(t, doc["@timestamp"])
}

func TestESAuditor_AssignsID(t *testing.T) {
	a, transport := createTestAuditor(t, http.StatusCreated)
	a.Record(context.Background(), AuditEntry{UnitKey: "u1"})

	require.Len(t, transport.paths, 1)
	assert.True(t, strings.HasPrefix(transport.paths[0], "/notification-deliveries/_doc/"))
	assert.Greater(t, len(transport.paths[0]), len("/notification-deliveries/_doc/"))
}

func TestESAuditor_RejectionIsNotFatal(t *testing.T) {
	a, transport := createTestAuditor(t, http.StatusBadRequest)
	assert.NotPanics(t, func() {
		a.Record(context.Background(), AuditEntry{UnitKey: "u1"})
	})
	assert.Len(t, transport.paths, 1)
}
