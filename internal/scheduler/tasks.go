package scheduler

import (
	"encoding/json"

	"voicelead_backend/internal/leads/ports"

	"github.com/hibiken/asynq"
)

const TaskFallbackEvaluate = "fallback.evaluate"

// FallbackTaskID is the asynq task id for a call's evaluation. One id per
// call makes enqueueing idempotent and lets the job be deleted by call id.
func FallbackTaskID(callID string) string {
	return "fallback:" + callID
}

func NewFallbackTask(attempt ports.FallbackAttempt) (*asynq.Task, error) {
	data, err := json.Marshal(attempt)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFallbackEvaluate, data), nil
}

func ParseFallbackPayload(task *asynq.Task) (ports.FallbackAttempt, error) {
	var payload ports.FallbackAttempt
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ports.FallbackAttempt{}, err
	}
	return payload, nil
}
