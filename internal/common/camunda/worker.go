// internal/common/camunda/worker.go
package camunda

import (
	"time"

	"ctp-notifications/internal/common/config"
	"ctp-notifications/internal/common/logger"

	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
)

// WorkerOpener is the part of zbc.Client needed to open job workers.
type WorkerOpener interface {
	NewJobWorker() worker.JobWorkerBuilderStep1
}

var _ WorkerOpener = (zbc.Client)(nil)

// StartWorker opens a job worker for taskType. It returns nil when the worker is disabled.
func StartWorker(client WorkerOpener, taskType string, wcfg config.WorkerConfig, handler worker.JobHandler, log logger.Logger) worker.JobWorker {
	if !wcfg.Enabled {
		log.Info("worker disabled", map[string]interface{}{"taskType": taskType})
		return nil
	}

	jobWorker := client.NewJobWorker().
		JobType(taskType).
		Handler(handler).
		MaxJobsActive(wcfg.MaxJobsActive).
		Timeout(time.Duration(wcfg.Timeout) * time.Millisecond).
		Name(config.WorkerKey(taskType)).
		Open()

	log.Info("worker started", map[string]interface{}{
		"taskType":      taskType,
		"maxJobsActive": wcfg.MaxJobsActive,
		"timeout_ms":    wcfg.Timeout,
	})
	return jobWorker
}
