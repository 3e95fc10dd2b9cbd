// internal/common/database/database_test.go

package database

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"ctp-notifications/internal/common/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	status   int
	requests []*http.Request
}

func (f *fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	f.requests = append(f.requests, req)
	return &http.Response{
		StatusCode: f.status,
		Header:     http.Header{"X-Elastic-Product": []string{"Elasticsearch"}},
		Body:       io.NopCloser(strings.NewReader(`{}`)),
	}, nil
}

func TestRedisClient_Ping(t *testing.T) {
	mr := miniredis.RunT(t)

	client := NewRedis(config.RedisConfig{Address: mr.Addr()})
	defer client.Close()

	require.NoError(t, client.Ping(context.Background()))

	mr.Close()
	err := client.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis ping failed")
}

func TestElasticsearchClient_Ping(t *testing.T) {
	t.Run("healthy cluster", func(t *testing.T) {
		transport := &fakeTransport{status: http.StatusOK}
		client, err := NewElasticsearch(config.ElasticsearchConfig{URL: "http://es:9200"}, transport)
		require.NoError(t, err)

		require.NoError(t, client.Ping(context.Background()))
		require.Len(t, transport.requests, 1)
		assert.Equal(t, "es:9200", transport.requests[0].URL.Host)
	})

	t.Run("error status", func(t *testing.T) {
		transport := &fakeTransport{status: http.StatusInternalServerError}
		client, err := NewElasticsearch(config.ElasticsearchConfig{Addresses: []string{"http://es:9200"}}, transport)
		require.NoError(t, err)

		err = client.Ping(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "elasticsearch ping error")
	})
}

func TestNewRedis_PoolSize(t *testing.T) {
	tests := []struct {
		name     string
		poolSize int
		want     int
	}{
		{name: "default", poolSize: 0, want: 10},
		{name: "configured", poolSize: 4, want: 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewRedis(config.RedisConfig{Address: "127.0.0.1:1", PoolSize: tt.poolSize})
			defer client.Close()
			assert.Equal(t, tt.want, client.Client.Options().PoolSize)
			assert.Equal(t, tt.want/2, client.Client.Options().MinIdleConns)
		})
	}
}

func TestNewPostgres_DoesNotDial(t *testing.T) {
	client, err := NewPostgres(config.PostgresConfig{
		Host: "127.0.0.1", Port: 1, Database: "ctp", User: "ctp", SSLMode: "disable",
		MaxConnections: 2, MaxIdle: 1,
	})
	require.NoError(t, err)
	assert.NotNil(t, client.DB)
	assert.NoError(t, client.Close())
}
