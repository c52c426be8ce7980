package audit

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/stowagehq/stowage/internal/authz"
)

// TaskTypeDecision is the queue task type for decision log entries.
const TaskTypeDecision = "authz:decision"

// DecisionPayload is the queued form of a decision event.
type DecisionPayload struct {
	Username   string    `json:"username"`
	Category   string    `json:"category"`
	Action     string    `json:"action"`
	ResourceID string    `json:"resourceId,omitempty"`
	Outcome    string    `json:"outcome"`
	DecidedAt  time.Time `json:"decidedAt"`
}

// NewDecisionTask constructs an Asynq task for one decision.
func NewDecisionTask(payload DecisionPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeDecision, data), nil
}

// TaskEnqueuer is the queue client slice the recorder needs.
type TaskEnqueuer interface {
	Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Enqueuer forwards authorization decisions to the job queue. Enqueue
// failures are logged and dropped so the decision path never blocks on
// the queue.
type Enqueuer struct {
	client TaskEnqueuer
	logger *slog.Logger
}

// NewEnqueuer constructs an Enqueuer.
func NewEnqueuer(client TaskEnqueuer, logger *slog.Logger) *Enqueuer {
	return &Enqueuer{client: client, logger: logger}
}

// Record implements authz.Recorder.
func (e *Enqueuer) Record(ctx context.Context, event authz.Event) {
	if e == nil || e.client == nil {
		return
	}
	payload := DecisionPayload{
		Username:  event.Username,
		Category:  event.Category,
		Action:    event.Action,
		Outcome:   string(event.Decision),
		DecidedAt: event.DecidedAt,
	}
	if event.ResourceID != 0 {
		payload.ResourceID = strconv.FormatInt(event.ResourceID, 10)
	}
	task, err := NewDecisionTask(payload)
	if err != nil {
		if e.logger != nil {
			e.logger.Warn("encode decision task", slog.Any("error", err))
		}
		return
	}
	if _, err := e.client.Enqueue(ctx, task); err != nil {
		if e.logger != nil {
			e.logger.Warn("enqueue decision task", slog.Any("error", err))
		}
	}
}
