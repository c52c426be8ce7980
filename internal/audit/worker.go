package audit

import (
	"context"
	"encoding/json"

	"log/slog"

	"github.com/hibiken/asynq"
)

// DecisionWriter is the persistence slice the task handler needs.
type DecisionWriter interface {
	Insert(ctx context.Context, payload DecisionPayload) error
}

// NewDecisionHandler returns the Asynq handler that drains the decision
// queue into the log table. Malformed payloads skip retry; store errors
// return so Asynq retries with backoff.
func NewDecisionHandler(writer DecisionWriter, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload DecisionPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			if logger != nil {
				logger.Warn("decode decision task", slog.Any("error", err))
			}
			return asynq.SkipRetry
		}
		if err := writer.Insert(ctx, payload); err != nil {
			if logger != nil {
				logger.Error("persist decision", slog.Any("error", err))
			}
			return err
		}
		return nil
	}
}
