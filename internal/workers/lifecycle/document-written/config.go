// internal/workers/lifecycle/document-written/config.go

package documentwritten

import (
	"fmt"
	"time"

	"ctp-notifications/internal/common/config"
)

type Config struct {
	Enabled       bool          `mapstructure:"enabled"`
	MaxJobsActive int           `mapstructure:"max_jobs_active"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

func DefaultConfig() *Config {
	return &Config{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       30 * time.Second,
	}
}

func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxJobsActive <= 0 {
		return fmt.Errorf("max_jobs_active must be positive")
	}
	return nil
}

// configFor reads the job worker settings of one collection's task type.
func configFor(appConfig *config.Config, taskType string) *Config {
	cfg := DefaultConfig()
	if appConfig == nil {
		return cfg
	}
	wc := config.GetWorkerConfig(appConfig, taskType)
	cfg.Enabled = wc.Enabled
	if wc.MaxJobsActive > 0 {
		cfg.MaxJobsActive = wc.MaxJobsActive
	}
	if wc.Timeout > 0 {
		cfg.Timeout = time.Duration(wc.Timeout) * time.Millisecond
	}
	return cfg
}
