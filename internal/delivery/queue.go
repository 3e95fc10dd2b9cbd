// internal/delivery/queue.go

package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"ctp-notifications/internal/common/config"
	"ctp-notifications/internal/common/logger"
	"ctp-notifications/internal/common/metrics"

	"github.com/hibiken/asynq"
)

// Task types, one per channel.
const (
	TypePushDelivery  = "delivery:push"
	TypeEmailDelivery = "delivery:email"
)

// TaskEnqueuer is the part of *asynq.Client the dispatcher needs.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

func taskType(channel string) string {
	if channel == ChannelEmail {
		return TypeEmailDelivery
	}
	return TypePushDelivery
}

// QueueDispatcher enqueues every unit as its own asynq task. The unit key is the task id,
// so re-enqueueing a unit that is still queued or retained is accepted without a second task.
type QueueDispatcher struct {
	client   TaskEnqueuer
	queue    string
	maxRetry int
	timeout  time.Duration
	log      logger.Logger
}

func NewQueueDispatcher(client TaskEnqueuer, cfg config.DeliveryConfig, log logger.Logger) *QueueDispatcher {
	return &QueueDispatcher{
		client:   client,
		queue:    cfg.Queue,
		maxRetry: cfg.MaxRetry,
		timeout:  time.Duration(cfg.TaskTimeout) * time.Millisecond,
		log:      log,
	}
}

func (q *QueueDispatcher) Dispatch(ctx context.Context, units []Notification) Report {
	var report Report
	for _, unit := range units {
		err := q.enqueue(ctx, unit)
		outcome := "enqueued"
		if err != nil {
			outcome = "failed"
			q.log.Error("Failed to enqueue delivery unit", map[string]interface{}{
				"unitKey": unit.Key,
				"channel": unit.Channel,
				"error":   err.Error(),
			})
		}
		metrics.DeliveriesDispatched.WithLabelValues(unit.Channel, outcome).Inc()
		report.add(err)
	}
	return report
}

func (q *QueueDispatcher) enqueue(ctx context.Context, unit Notification) error {
	if err := unit.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(unit)
	if err != nil {
		return fmt.Errorf("encode unit %s: %w", unit.Key, err)
	}

	opts := []asynq.Option{
		asynq.TaskID(unit.Key),
		asynq.MaxRetry(q.maxRetry),
	}
	if q.queue != "" {
		opts = append(opts, asynq.Queue(q.queue))
	}
	if q.timeout > 0 {
		opts = append(opts, asynq.Timeout(q.timeout))
	}

	_, err = q.client.EnqueueContext(ctx, asynq.NewTask(taskType(unit.Channel), payload), opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		q.log.Debug("Delivery unit already queued", map[string]interface{}{"unitKey": unit.Key})
		return nil
	}
	return err
}

// TaskHandler processes delivery tasks on the asynq server.
type TaskHandler struct {
	deliverer   *Deliverer
	deadLetters DeadLetterSink
	log         logger.Logger
}

func NewTaskHandler(deliverer *Deliverer, deadLetters DeadLetterSink, log logger.Logger) *TaskHandler {
	return &TaskHandler{deliverer: deliverer, deadLetters: deadLetters, log: log}
}

// HandleDelivery delivers one unit. Permanent failures and the last retry go to the
// dead-letter list; permanent failures also stop asynq from retrying.
func (h *TaskHandler) HandleDelivery(ctx context.Context, t *asynq.Task) error {
	var unit Notification
	if err := json.Unmarshal(t.Payload(), &unit); err != nil {
		return fmt.Errorf("failed to unmarshal delivery task payload: %v: %w", err, asynq.SkipRetry)
	}

	err := h.deliverer.Deliver(ctx, unit)
	if err == nil {
		return nil
	}

	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, known := asynq.GetMaxRetry(ctx)
	attempts := retried + 1

	if errors.Is(err, ErrPermanent) {
		h.deadLetter(ctx, unit, err, attempts)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if known && retried >= maxRetry {
		h.deadLetter(ctx, unit, err, attempts)
	}
	return err
}

func (h *TaskHandler) deadLetter(ctx context.Context, unit Notification, cause error, attempts int) {
	if h.deadLetters == nil {
		return
	}
	if err := h.deadLetters.Push(ctx, unit, cause, attempts); err != nil {
		h.log.Error("Failed to dead-letter delivery unit", map[string]interface{}{
			"unitKey": unit.Key,
			"error":   err.Error(),
		})
		return
	}
	h.log.Warn("Delivery unit dead-lettered", map[string]interface{}{
		"unitKey":  unit.Key,
		"attempts": attempts,
		"cause":    cause.Error(),
	})
}

// Register adds the delivery task handlers to mux.
func (h *TaskHandler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypePushDelivery, h.HandleDelivery)
	mux.HandleFunc(TypeEmailDelivery, h.HandleDelivery)
}

// NewTaskServer configures the asynq server that drains the delivery queue.
func NewTaskServer(opt asynq.RedisConnOpt, cfg config.DeliveryConfig, log logger.Logger) *asynq.Server {
	queues := map[string]int{"default": 1}
	if cfg.Queue != "" && cfg.Queue != "default" {
		queues[cfg.Queue] = 6
	}

	return asynq.NewServer(opt, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues:      queues,
		Logger:      NewAsynqLogger(log),
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			log.Warn("Delivery task failed", map[string]interface{}{
				"taskType": task.Type(),
				"retried":  retried,
				"error":    err.Error(),
			})
		}),
	})
}

// asynqLogger routes asynq's internal logging through the service logger.
// Fatal logs and exits the process, as asynq expects.
type asynqLogger struct {
	log  logger.Logger
	exit func(code int)
}

func NewAsynqLogger(log logger.Logger) asynq.Logger {
	return &asynqLogger{log: log.WithFields(map[string]interface{}{"component": "asynq"}), exit: os.Exit}
}

func (l *asynqLogger) Debug(args ...interface{}) { l.log.Debug(fmt.Sprint(args...), nil) }
func (l *asynqLogger) Info(args ...interface{})  { l.log.Info(fmt.Sprint(args...), nil) }
func (l *asynqLogger) Warn(args ...interface{})  { l.log.Warn(fmt.Sprint(args...), nil) }
func (l *asynqLogger) Error(args ...interface{}) { l.log.Error(fmt.Sprint(args...), nil) }
func (l *asynqLogger) Fatal(args ...interface{}) {
	l.log.Error(fmt.Sprint(args...), map[string]interface{}{"fatal": true})
	l.exit(1)
}
