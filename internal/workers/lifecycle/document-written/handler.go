// internal/workers/lifecycle/document-written/handler.go

// Package documentwritten consumes document-written jobs for offers, vehicles and users and
// runs them through the lifecycle processor.
package documentwritten

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ctp-notifications/internal/common/camunda"
	"ctp-notifications/internal/common/config"
	"ctp-notifications/internal/common/errors"
	"ctp-notifications/internal/common/logger"
	"ctp-notifications/internal/common/metrics"
	"ctp-notifications/internal/common/observability"
	"ctp-notifications/internal/common/validation"
	"ctp-notifications/internal/lifecycle"
	"ctp-notifications/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"go.opentelemetry.io/otel/attribute"
)

const taskSuffix = ".document.written"

// TaskType is the Zeebe job type carrying writes to collection.
func TaskType(collection string) string {
	return collection + taskSuffix
}

// TaskTypes lists the job types the service subscribes to.
func TaskTypes() []string {
	return []string{
		TaskType(models.CollectionOffers),
		TaskType(models.CollectionVehicles),
		TaskType(models.CollectionUsers),
	}
}

// ChangeProcessor evaluates one document write.
type ChangeProcessor interface {
	Process(ctx context.Context, change models.Change) ([]lifecycle.Outcome, error)
}

type Handler struct {
	taskType   string
	collection string
	config     *Config
	processor  ChangeProcessor
	errHandler *errors.ErrorHandler
	obs        *observability.Observability
	logger     logger.Logger
	jobWorker  worker.JobWorker
}

type HandlerOptions struct {
	AppConfig     *config.Config
	Collection    string
	Processor     ChangeProcessor
	CustomConfig  *Config
	Observability *observability.Observability
	Logger        logger.Logger
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	if opts.Processor == nil {
		return nil, fmt.Errorf("document-written handler for %q needs a processor", opts.Collection)
	}
	taskType := TaskType(opts.Collection)

	cfg := opts.CustomConfig
	if cfg == nil {
		cfg = configFor(opts.AppConfig, taskType)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", taskType, err)
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewStructured("info", "json")
	}
	log = log.WithFields(map[string]interface{}{"worker": taskType})

	return &Handler{
		taskType:   taskType,
		collection: opts.Collection,
		config:     cfg,
		processor:  opts.Processor,
		errHandler: errors.NewErrorHandler(log),
		obs:        opts.Observability,
		logger:     log,
	}, nil
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	startTime := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(h.taskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(h.taskType).Dec()

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	h.logger.Info("Processing document-written job", map[string]interface{}{
		"jobKey":             job.GetKey(),
		"processInstanceKey": job.GetProcessInstanceKey(),
		"retries":            job.GetRetries(),
	})

	input, err := h.parseInput(job)
	if err != nil {
		h.fail(ctx, client, job, err)
		return
	}

	output, err := h.Execute(ctx, input)
	if err != nil {
		h.fail(ctx, client, job, err)
		return
	}

	h.completeJob(ctx, client, job, output)
	metrics.WorkerJobsCompleted.WithLabelValues(h.taskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(h.taskType).Observe(time.Since(startTime).Seconds())
	h.obs.RecordJobProcessed(ctx, h.taskType, "completed")
	h.obs.RecordJobDuration(ctx, h.taskType, time.Since(startTime), "completed")
}

// Execute runs one change through the processor and summarises the outcomes.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	ctx, span := h.obs.StartSpan(ctx, h.taskType,
		attribute.String("collection", input.Collection),
		attribute.String("documentId", input.DocumentID),
	)
	defer span.End()

	outcomes, err := h.processor.Process(ctx, input.Change())
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	output := &Output{Notified: []string{}}
	for _, o := range outcomes {
		if o.Proceed {
			output.Notified = append(output.Notified, o.Event)
			output.Units += o.Units
			output.Accepted += o.Accepted
			continue
		}
		if output.Skipped == nil {
			output.Skipped = make(map[string]string)
		}
		output.Skipped[o.Event] = o.Reason
	}

	logger.WithTrace(ctx, h.logger).Info("Document change processed", map[string]interface{}{
		"documentId": input.DocumentID,
		"eventId":    input.EventID,
		"notified":   output.Notified,
		"units":      output.Units,
	})
	return output, nil
}

func (h *Handler) parseInput(job entities.Job) (*Input, error) {
	variables, err := job.GetVariablesAsMap()
	if err != nil {
		return nil, errors.NewInputParsingError(err)
	}

	result, err := validation.ValidateDocument(variables, GetInputSchema())
	if err != nil {
		return nil, errors.NewInputParsingError(err)
	}
	if !result.Valid {
		return nil, errors.NewValidationError(fmt.Sprintf("Validation errors: %v", result.Messages()))
	}

	var input Input
	if err := json.Unmarshal([]byte(job.GetVariables()), &input); err != nil {
		return nil, errors.NewInputParsingError(err)
	}
	if input.Collection != h.collection {
		return nil, errors.NewValidationError(fmt.Sprintf("collection %q delivered to %s", input.Collection, h.taskType))
	}
	// The element instance survives job retries, so it identifies the write as well as an
	// upstream event id would.
	if input.EventID == "" {
		input.EventID = fmt.Sprintf("zeebe-%d", job.GetElementInstanceKey())
	}
	return &input, nil
}

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	bpmnErr := h.errHandler.HandleJobError(ctx, client, job, err)
	metrics.WorkerJobsFailed.WithLabelValues(h.taskType, bpmnErr.Code).Inc()
	h.obs.RecordJobProcessed(ctx, h.taskType, "failed")
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	request, err := client.NewCompleteJobCommand().JobKey(job.GetKey()).VariablesFromObject(output)
	if err != nil {
		h.logger.Error("Failed to create complete job command", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err.Error(),
		})
		return
	}

	if _, err := request.Send(ctx); err != nil {
		h.logger.Error("Failed to complete job", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err.Error(),
		})
		return
	}
	h.logger.Info("Job completed", map[string]interface{}{
		"jobKey":   job.GetKey(),
		"notified": len(output.Notified),
	})
}

// Register opens the job worker. A disabled worker is not opened.
func (h *Handler) Register(client camunda.WorkerOpener) {
	wcfg := config.WorkerConfig{
		Enabled:       h.config.Enabled,
		MaxJobsActive: h.config.MaxJobsActive,
		Timeout:       int(h.config.Timeout / time.Millisecond),
	}
	h.jobWorker = camunda.StartWorker(client, h.taskType, wcfg, h.Handle, h.logger)
}

func (h *Handler) Close() {
	if h.jobWorker != nil {
		h.logger.Info("Shutting down worker gracefully", nil)
		h.jobWorker.Close()
		h.jobWorker.AwaitClose()
		h.jobWorker = nil
	}
}

func (h *Handler) GetTaskType() string {
	return h.taskType
}

func (h *Handler) IsEnabled() bool {
	return h.config.Enabled
}
