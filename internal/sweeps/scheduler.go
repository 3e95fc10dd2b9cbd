// internal/sweeps/scheduler.go

package sweeps

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ctp-notifications/internal/common/config"
	"ctp-notifications/internal/common/logger"
	"ctp-notifications/internal/delivery"

	"github.com/hibiken/asynq"
)

// TaskPrefix prefixes the asynq task type of every sweep.
const TaskPrefix = "sweep:"

// uniqueFor drops a scheduled run while an earlier run of the same sweep is still pending.
const uniqueFor = 10 * time.Minute

func TaskType(name string) string {
	return TaskPrefix + name
}

// NewScheduler registers every enabled sweep on an asynq scheduler running in the
// configured timezone.
func NewScheduler(opt asynq.RedisConnOpt, cfg *config.Config, names []string, log logger.Logger) (*asynq.Scheduler, error) {
	loc, err := time.LoadLocation(cfg.Sweeps.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load sweep timezone %q: %w", cfg.Sweeps.Timezone, err)
	}

	scheduler := asynq.NewScheduler(opt, &asynq.SchedulerOpts{
		Location: loc,
		Logger:   delivery.NewAsynqLogger(log),
		EnqueueErrorHandler: func(task *asynq.Task, _ []asynq.Option, err error) {
			if errors.Is(err, asynq.ErrDuplicateTask) {
				log.Debug("Sweep still pending, run dropped", map[string]interface{}{"task": task.Type()})
				return
			}
			log.Error("Failed to enqueue sweep", map[string]interface{}{"task": task.Type(), "error": err.Error()})
		},
	})

	for _, name := range names {
		if !config.IsSweepEnabled(cfg, name) {
			log.Info("Sweep disabled", map[string]interface{}{"sweep": name})
			continue
		}
		spec := cfg.Sweeps.Jobs[name].Cron
		if spec == "" {
			spec = config.DefaultSweepSchedules[name]
		}

		opts := []asynq.Option{asynq.Unique(uniqueFor), asynq.MaxRetry(0)}
		if cfg.Delivery.Queue != "" {
			opts = append(opts, asynq.Queue(cfg.Delivery.Queue))
		}
		entryID, err := scheduler.Register(spec, asynq.NewTask(TaskType(name), nil), opts...)
		if err != nil {
			return nil, fmt.Errorf("register sweep %s (%s): %w", name, spec, err)
		}
		log.Info("Sweep scheduled", map[string]interface{}{
			"sweep":    name,
			"cron":     spec,
			"timezone": loc.String(),
			"entryId":  entryID,
		})
	}
	return scheduler, nil
}

// HandleTask runs the sweep named by the task type. A failed query is returned so asynq
// records it; the next scheduled run is the retry.
func (r *Runner) HandleTask(ctx context.Context, t *asynq.Task) error {
	name := strings.TrimPrefix(t.Type(), TaskPrefix)
	if _, ok := r.sweeps[name]; !ok {
		return fmt.Errorf("unknown sweep task %q: %w", t.Type(), asynq.SkipRetry)
	}
	_, err := r.Run(ctx, name)
	return err
}

// Register adds a handler for every sweep task type to mux.
func (r *Runner) Register(mux *asynq.ServeMux) {
	for _, name := range r.Names() {
		mux.HandleFunc(TaskType(name), r.HandleTask)
	}
}
