// internal/common/database/clients.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"ctp-notifications/internal/common/config"

	"github.com/elastic/go-elasticsearch/v8"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

const (
	connMaxAge         = 5 * time.Minute
	defaultRedisPool   = 10
	redisDialTimeout   = 5 * time.Second
	redisCommandWindow = 3 * time.Second
)

// PostgresClient holds the document tables: offers, vehicles and users.
type PostgresClient struct {
	DB *sql.DB
}

// NewPostgres only opens the pool. Nothing is dialled until Ping or the first query.
func NewPostgres(cfg config.PostgresConfig) (*PostgresClient, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(connMaxAge)
	db.SetConnMaxIdleTime(connMaxAge)
	return &PostgresClient{DB: db}, nil
}

func (c *PostgresClient) Ping(ctx context.Context) error {
	return wrapPing("postgres", c.DB.PingContext(ctx))
}

func (c *PostgresClient) Close() error {
	if c.DB == nil {
		return nil
	}
	return c.DB.Close()
}

// RedisClient backs the idempotency keys, the dead-letter list and the asynq queues.
type RedisClient struct {
	Client *redis.Client
}

func NewRedis(cfg config.RedisConfig) *RedisClient {
	pool := cfg.PoolSize
	if pool <= 0 {
		pool = defaultRedisPool
	}
	return &RedisClient{Client: redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  redisDialTimeout,
		ReadTimeout:  redisCommandWindow,
		WriteTimeout: redisCommandWindow,
		PoolSize:     pool,
		MinIdleConns: pool / 2,
	})}
}

func (c *RedisClient) Ping(ctx context.Context) error {
	return wrapPing("redis", c.Client.Ping(ctx).Err())
}

func (c *RedisClient) Close() error {
	if c.Client == nil {
		return nil
	}
	return c.Client.Close()
}

// ElasticsearchClient writes the delivery audit trail.
type ElasticsearchClient struct {
	Client *elasticsearch.Client
}

// NewElasticsearch accepts a nil transport, in which case the client's default is used.
func NewElasticsearch(cfg config.ElasticsearchConfig, transport http.RoundTripper) (*ElasticsearchClient, error) {
	esCfg := elasticsearch.Config{Addresses: cfg.Addresses, Transport: transport}
	if len(esCfg.Addresses) == 0 && cfg.GetURL() != "" {
		esCfg.Addresses = []string{cfg.GetURL()}
	}
	if cfg.Username != "" {
		esCfg.Username, esCfg.Password = cfg.Username, cfg.Password
	}

	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return &ElasticsearchClient{Client: es}, nil
}

func (c *ElasticsearchClient) Ping(ctx context.Context) error {
	res, err := c.Client.Ping(c.Client.Ping.WithContext(ctx))
	if err != nil {
		return wrapPing("elasticsearch", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch ping error: %s", res.Status())
	}
	return nil
}

func wrapPing(store string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s ping failed: %w", store, err)
}
