package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/stowagehq/stowage/internal/authz"
)

type captureEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (c *captureEnqueuer) Enqueue(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.tasks = append(c.tasks, task)
	return &asynq.TaskInfo{}, nil
}

type captureWriter struct {
	inserted []DecisionPayload
	err      error
}

func (c *captureWriter) Insert(_ context.Context, payload DecisionPayload) error {
	if c.err != nil {
		return c.err
	}
	c.inserted = append(c.inserted, payload)
	return nil
}

func TestEnqueuerToHandlerRoundTrip(t *testing.T) {
	queue := &captureEnqueuer{}
	enqueuer := NewEnqueuer(queue, nil)

	decidedAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	enqueuer.Record(context.Background(), authz.Event{
		Username:   "alice",
		Category:   "storage",
		Action:     "write",
		ResourceID: 42,
		Decision:   authz.DecisionDeny,
		DecidedAt:  decidedAt,
	})
	require.Len(t, queue.tasks, 1)
	require.Equal(t, TaskTypeDecision, queue.tasks[0].Type())

	writer := &captureWriter{}
	handler := NewDecisionHandler(writer, nil)
	require.NoError(t, handler(context.Background(), queue.tasks[0]))

	require.Len(t, writer.inserted, 1)
	got := writer.inserted[0]
	require.Equal(t, "alice", got.Username)
	require.Equal(t, "storage", got.Category)
	require.Equal(t, "write", got.Action)
	require.Equal(t, "42", got.ResourceID)
	require.Equal(t, "deny", got.Outcome)
	require.True(t, got.DecidedAt.Equal(decidedAt))
}

func TestEnqueuerOmitsZeroResource(t *testing.T) {
	queue := &captureEnqueuer{}
	NewEnqueuer(queue, nil).Record(context.Background(), authz.Event{
		Username: "alice",
		Category: "users",
		Action:   "read",
		Decision: authz.DecisionAllow,
	})
	require.Len(t, queue.tasks, 1)

	writer := &captureWriter{}
	require.NoError(t, NewDecisionHandler(writer, nil)(context.Background(), queue.tasks[0]))
	require.Empty(t, writer.inserted[0].ResourceID)
}

func TestEnqueuerSwallowsQueueErrors(t *testing.T) {
	queue := &captureEnqueuer{err: errors.New("queue down")}
	enqueuer := NewEnqueuer(queue, nil)

	// Must not panic or surface the failure.
	enqueuer.Record(context.Background(), authz.Event{Username: "alice", Decision: authz.DecisionAllow})
}

func TestDecisionHandlerMalformedPayloadSkipsRetry(t *testing.T) {
	writer := &captureWriter{}
	handler := NewDecisionHandler(writer, nil)

	err := handler(context.Background(), asynq.NewTask(TaskTypeDecision, []byte("{not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.Empty(t, writer.inserted)
}

func TestDecisionHandlerStoreErrorRetries(t *testing.T) {
	storeErr := errors.New("insert failed")
	writer := &captureWriter{err: storeErr}
	handler := NewDecisionHandler(writer, nil)

	task, err := NewDecisionTask(DecisionPayload{Username: "alice", Outcome: "allow", DecidedAt: time.Now()})
	require.NoError(t, err)
	err = handler(context.Background(), task)
	require.ErrorIs(t, err, storeErr)
	require.NotErrorIs(t, err, asynq.SkipRetry)
}
