// internal/common/errors/handler.go

package errors

import (
	"context"
	"encoding/json"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

// ErrorHandler reports a failed job back to Zeebe: retryable failures are failed with a
// bounded retry count, everything else is thrown as a BPMN error.
type ErrorHandler struct {
	logger Logger
}

type Logger interface {
	Error(msg string, fields map[string]interface{})
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// HandleJobError normalises err and reports it for job.
func (h *ErrorHandler) HandleJobError(ctx context.Context, client worker.JobClient, job entities.Job, err error) *BPMNError {
	stdErr := AsStandardError(err)
	bpmnErr := ConvertToBPMNError(stdErr)

	remaining := RemainingRetries(job.Retries, bpmnErr.Retries)
	h.logError(job, stdErr, bpmnErr, remaining)

	if bpmnErr.Retryable && remaining > 0 {
		h.failJob(ctx, client, job, bpmnErr, remaining)
	} else {
		h.throwBPMNError(ctx, client, job, bpmnErr)
	}
	return bpmnErr
}

// RemainingRetries decrements the job's own retry budget and caps it at the code's budget.
func RemainingRetries(jobRetries int32, codeRetries int) int {
	remaining := int(jobRetries) - 1
	if remaining > codeRetries {
		remaining = codeRetries
	}
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (h *ErrorHandler) failJob(ctx context.Context, client worker.JobClient, job entities.Job, bpmnErr *BPMNError, retries int) {
	cmd := client.NewFailJobCommand().
		JobKey(job.Key).
		Retries(int32(retries)).
		ErrorMessage("[" + bpmnErr.Code + "] " + bpmnErr.Message)

	if varsJSON, err := json.Marshal(bpmnErr.ToErrorVariables()); err == nil {
		if withVars, err := cmd.VariablesFromString(string(varsJSON)); err == nil {
			if _, err := withVars.Send(ctx); err != nil {
				h.logSendFailure(job, "fail", err)
			}
			return
		}
	}

	if _, err := cmd.Send(ctx); err != nil {
		h.logSendFailure(job, "fail", err)
	}
}

func (h *ErrorHandler) throwBPMNError(ctx context.Context, client worker.JobClient, job entities.Job, bpmnErr *BPMNError) {
	cmd := client.NewThrowErrorCommand().
		JobKey(job.Key).
		ErrorCode(bpmnErr.Code).
		ErrorMessage(bpmnErr.Message)

	if varsJSON, err := json.Marshal(bpmnErr.ToErrorVariables()); err == nil {
		if withVars, err := cmd.VariablesFromString(string(varsJSON)); err == nil {
			if _, err := withVars.Send(ctx); err != nil {
				h.logSendFailure(job, "throw", err)
			}
			return
		}
	}

	if _, err := cmd.Send(ctx); err != nil {
		h.logSendFailure(job, "throw", err)
	}
}

func (h *ErrorHandler) logSendFailure(job entities.Job, command string, err error) {
	h.logger.Error("Failed to report job failure to Zeebe", map[string]interface{}{
		"jobKey":  job.Key,
		"command": command,
		"error":   err.Error(),
	})
}

func (h *ErrorHandler) logError(job entities.Job, stdErr *StandardError, bpmnErr *BPMNError, remaining int) {
	h.logger.Error("Job failed", map[string]interface{}{
		"jobKey":           job.Key,
		"jobType":          job.Type,
		"errorCode":        string(stdErr.Code),
		"message":          bpmnErr.Message,
		"details":          stdErr.Details,
		"retryable":        stdErr.Retryable,
		"remainingRetries": remaining,
		"errorCategory":    GetErrorCategory(stdErr.Code),
		"workflowInstance": job.ProcessInstanceKey,
	})
}
