// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DeliveryModeQueue  = "queue"
	DeliveryModeInline = "inline"

	SweepInspectionReminder = "inspection-reminder"
	SweepCollectionReminder = "collection-reminder"
	SweepUnpaidOffer        = "unpaid-offer-reminder"
	SweepPaymentOverdue     = "payment-overdue"
	SweepStalledOffer       = "stalled-offer-alert"
)

// DefaultSweepSchedules are the cron specs used when a sweep has no cron configured.
var DefaultSweepSchedules = map[string]string{
	SweepInspectionReminder: "*/15 * * * *",
	SweepCollectionReminder: "*/15 * * * *",
	SweepUnpaidOffer:        "0 9 * * *",
	SweepPaymentOverdue:     "0 8 * * *",
	SweepStalledOffer:       "0 7 */2 * *",
}

func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// config.{env}.yaml is optional
	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig()

	return finalize(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finalize(v)
}

func finalize(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up from the working directory looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// expandEnvVars replaces ${VAR} placeholders in string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

func envIfEmpty(target *string, name string) {
	if *target != "" {
		return
	}
	if val := os.Getenv(name); val != "" {
		*target = val
	}
}

// overrideEmptyConfig fills secrets that are still empty after expansion.
func overrideEmptyConfig(cfg *Config) {
	sg := &cfg.Providers.Email.SendGrid
	envIfEmpty(&sg.APIKey, "SENDGRID_API_KEY")
	envIfEmpty(&sg.TemplateID, "SENDGRID_TEMPLATE_ID")
	envIfEmpty(&sg.TransporterTemplateID, "SENDGRID_TRANSPORTER_TEMPLATE_ID")
	envIfEmpty(&sg.DealerTemplateID, "SENDGRID_DEALER_TEMPLATE_ID")

	envIfEmpty(&cfg.Providers.Push.FCM.CredentialsFile, "FCM_CREDENTIALS_FILE")

	envIfEmpty(&cfg.Database.Postgres.User, "DB_USER")
	envIfEmpty(&cfg.Database.Postgres.Password, "DB_PASSWORD")

	envIfEmpty(&cfg.Auth.Keycloak.ClientSecret, "KEYCLOAK_CLIENT_SECRET")
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "ctp-notifications"
	}

	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 10
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 30000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Elasticsearch.URL == "" && len(cfg.Database.Elasticsearch.Addresses) > 0 {
		cfg.Database.Elasticsearch.URL = cfg.Database.Elasticsearch.Addresses[0]
	}

	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 5
		}
		if worker.Timeout == 0 {
			worker.Timeout = 30000
		}
		if worker.MaxRetries == 0 {
			worker.MaxRetries = 3
		}
		cfg.Workers[key] = worker
	}

	if cfg.Auth.Keycloak.Timeout == 0 {
		cfg.Auth.Keycloak.Timeout = 10000
	}

	if cfg.Providers.AWS.Region == "" {
		cfg.Providers.AWS.Region = "af-south-1"
	}
	if cfg.Providers.Push.Provider == "" {
		cfg.Providers.Push.Provider = "fcm"
	}
	if cfg.Providers.Email.Provider == "" {
		cfg.Providers.Email.Provider = "sendgrid"
	}
	if cfg.Providers.Email.FromEmail == "" {
		cfg.Providers.Email.FromEmail = "admin@ctpapp.co.za"
	}
	if cfg.Providers.Email.FromName == "" {
		cfg.Providers.Email.FromName = "CTP"
	}

	d := &cfg.Delivery
	if d.Mode == "" {
		d.Mode = DeliveryModeQueue
	}
	if d.Queue == "" {
		d.Queue = "notifications"
	}
	if d.MaxRetry == 0 {
		d.MaxRetry = 5
	}
	if d.Concurrency == 0 {
		d.Concurrency = 10
	}
	if d.TaskTimeout == 0 {
		d.TaskTimeout = 30000
	}
	if d.RateLimit == 0 {
		d.RateLimit = 50
	}
	if d.RateBurst == 0 {
		d.RateBurst = 10
	}
	if d.DeadLetterKey == "" {
		d.DeadLetterKey = "notifications:dead-letter"
	}
	if d.AuditIndex == "" {
		d.AuditIndex = "notification-deliveries"
	}
	if d.IdempotencyTTLHours == 0 {
		d.IdempotencyTTLHours = 24 * 30
	}

	if cfg.Sweeps.Timezone == "" {
		cfg.Sweeps.Timezone = "Africa/Johannesburg"
	}
	if cfg.Sweeps.Jobs == nil {
		cfg.Sweeps.Jobs = map[string]SweepConfig{}
	}
	for name, spec := range DefaultSweepSchedules {
		job, exists := cfg.Sweeps.Jobs[name]
		if !exists {
			job.Enabled = true
		}
		if job.Cron == "" {
			job.Cron = spec
		}
		cfg.Sweeps.Jobs[name] = job
	}

	if cfg.HTTP.Address == "" {
		cfg.HTTP.Address = ":8080"
	}
	if cfg.HTTP.PublicBaseURL == "" {
		cfg.HTTP.PublicBaseURL = "https://ctpapp.co.za"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15000
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15000
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Camunda.BrokerAddress == "" {
		return fmt.Errorf("camunda.broker_address is required")
	}

	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if cfg.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}

	if cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required")
	}

	switch cfg.Delivery.Mode {
	case DeliveryModeQueue, DeliveryModeInline:
	default:
		return fmt.Errorf("delivery.mode must be %q or %q, got %q", DeliveryModeQueue, DeliveryModeInline, cfg.Delivery.Mode)
	}

	switch cfg.Providers.Push.Provider {
	case "fcm", "sns":
	default:
		return fmt.Errorf("providers.push.provider must be fcm or sns, got %q", cfg.Providers.Push.Provider)
	}
	switch cfg.Providers.Email.Provider {
	case "sendgrid", "ses":
	default:
		return fmt.Errorf("providers.email.provider must be sendgrid or ses, got %q", cfg.Providers.Email.Provider)
	}

	if _, err := time.LoadLocation(cfg.Sweeps.Timezone); err != nil {
		return fmt.Errorf("sweeps.timezone %q: %w", cfg.Sweeps.Timezone, err)
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// WorkerKey turns a Zeebe job type into its workers map key. Viper treats dots as nesting.
func WorkerKey(taskType string) string {
	return strings.ReplaceAll(taskType, ".", "-")
}

// GetWorkerConfig retrieves worker-specific configuration with fallback to defaults
func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[WorkerKey(workerName)]; exists {
		return worker
	}

	return WorkerConfig{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       30000,
		MaxRetries:    3,
	}
}

// IsWorkerEnabled checks if a specific worker is enabled
func IsWorkerEnabled(cfg *Config, workerName string) bool {
	if worker, exists := cfg.Workers[WorkerKey(workerName)]; exists {
		return worker.Enabled
	}
	return true
}

// IsSweepEnabled reports whether a sweep should be registered with the scheduler.
func IsSweepEnabled(cfg *Config, name string) bool {
	if job, exists := cfg.Sweeps.Jobs[name]; exists {
		return job.Enabled
	}
	return false
}
