// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App       AppConfig               `mapstructure:"app"`
	Camunda   CamundaConfig           `mapstructure:"camunda"`
	Database  DatabaseConfig          `mapstructure:"database"`
	Workers   map[string]WorkerConfig `mapstructure:"workers"`
	Auth      AuthConfig              `mapstructure:"auth"`
	Providers ProvidersConfig         `mapstructure:"providers"`
	Delivery  DeliveryConfig          `mapstructure:"delivery"`
	Sweeps    SweepsConfig            `mapstructure:"sweeps"`
	HTTP      HTTPConfig              `mapstructure:"http"`
	Registry  RegistryConfig          `mapstructure:"registry"`
	Logging   LoggingConfig           `mapstructure:"logging"`
	Tracing   TracingConfig           `mapstructure:"tracing"`
}

// TracingConfig leaves spans in process when JaegerEndpoint is empty.
type TracingConfig struct {
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
	UseTLS         bool   `mapstructure:"use_tls"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	URL       string   `mapstructure:"url"`
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// WorkerConfig holds the core settings applicable to every job worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

// AuthConfig holds the identity provider used by the callable endpoints.
type AuthConfig struct {
	Keycloak KeycloakConfig `mapstructure:"keycloak"`
}

type KeycloakConfig struct {
	URL          string `mapstructure:"url"`
	Realm        string `mapstructure:"realm"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	Timeout      int    `mapstructure:"timeout"` // milliseconds
}

// --- Delivery providers ---

type ProvidersConfig struct {
	AWS   AWSConfig   `mapstructure:"aws"`
	Push  PushConfig  `mapstructure:"push"`
	Email EmailConfig `mapstructure:"email"`
}

type AWSConfig struct {
	Region  string `mapstructure:"region"`
	Profile string `mapstructure:"profile"`
}

// PushConfig selects the push provider: "fcm" or "sns".
type PushConfig struct {
	Provider string `mapstructure:"provider"`
	FCM      struct {
		CredentialsFile string `mapstructure:"credentials_file"`
		ProjectID       string `mapstructure:"project_id"`
	} `mapstructure:"fcm"`
	SNS struct {
		PlatformApplicationArn string            `mapstructure:"platform_application_arn"`
		TopicArns              map[string]string `mapstructure:"topic_arns"`
	} `mapstructure:"sns"`
}

// EmailConfig selects the email provider: "sendgrid" or "ses".
type EmailConfig struct {
	Provider  string `mapstructure:"provider"`
	FromEmail string `mapstructure:"from_email"`
	FromName  string `mapstructure:"from_name"`
	SendGrid  struct {
		APIKey                string `mapstructure:"api_key"`
		TemplateID            string `mapstructure:"template_id"`
		TransporterTemplateID string `mapstructure:"transporter_template_id"`
		DealerTemplateID      string `mapstructure:"dealer_template_id"`
	} `mapstructure:"sendgrid"`
	SES struct {
		ConfigurationSet string `mapstructure:"configuration_set"`
	} `mapstructure:"ses"`
}

// TemplateIDs maps registry template keys onto configured provider template ids.
func (e EmailConfig) TemplateIDs() map[string]string {
	return map[string]string{
		"admin":       e.SendGrid.TemplateID,
		"transporter": e.SendGrid.TransporterTemplateID,
		"dealer":      e.SendGrid.DealerTemplateID,
	}
}

// DeliveryConfig controls how notification units reach the providers.
type DeliveryConfig struct {
	Mode                string  `mapstructure:"mode"` // queue | inline
	Queue               string  `mapstructure:"queue"`
	MaxRetry            int     `mapstructure:"max_retry"`
	Concurrency         int     `mapstructure:"concurrency"`
	TaskTimeout         int     `mapstructure:"task_timeout"` // milliseconds
	RateLimit           float64 `mapstructure:"rate_limit"`   // provider calls per second
	RateBurst           int     `mapstructure:"rate_burst"`
	DeadLetterKey       string  `mapstructure:"dead_letter_key"`
	AuditIndex          string  `mapstructure:"audit_index"`
	IdempotencyTTLHours int     `mapstructure:"idempotency_ttl_hours"`
}

type SweepsConfig struct {
	Timezone string                 `mapstructure:"timezone"`
	Jobs     map[string]SweepConfig `mapstructure:"jobs"`
}

type SweepConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Cron    string `mapstructure:"cron"`
}

type HTTPConfig struct {
	Address       string `mapstructure:"address"`
	PublicBaseURL string `mapstructure:"public_base_url"`
	ReadTimeout   int    `mapstructure:"read_timeout"`  // milliseconds
	WriteTimeout  int    `mapstructure:"write_timeout"` // milliseconds
}

// RegistryConfig points at an optional notification registry override file.
type RegistryConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
