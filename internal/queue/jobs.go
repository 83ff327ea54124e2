package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// SweepTrashTask purges expired trash from the persisted snapshot.
	SweepTrashTask = "trash:sweep"

	// sweepUnique keeps at most one pending sweep in the queue.
	sweepUnique = 10 * time.Minute
)

// SweepPayload is serialized into the task payload. A zero At means "when the
// worker runs it".
type SweepPayload struct {
	At time.Time `json:"at"`
}

// NewSweepTask builds the sweep task.
func NewSweepTask(payload SweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(SweepTrashTask, data, asynq.MaxRetry(5), asynq.Unique(sweepUnique)), nil
}

// EnqueueSweep enqueues a trash sweep. A sweep that is already pending is not
// an error.
func EnqueueSweep(ctx context.Context, client *asynq.Client, payload SweepPayload) error {
	task, err := NewSweepTask(payload)
	if err != nil {
		return err
	}
	if _, err := client.EnqueueContext(ctx, task); err != nil {
		if errors.Is(err, asynq.ErrDuplicateTask) {
			return nil
		}
		return fmt.Errorf("enqueue sweep task: %w", err)
	}
	return nil
}

// DecodeSweep parses a sweep task payload.
func DecodeSweep(task *asynq.Task) (SweepPayload, error) {
	var payload SweepPayload
	if len(task.Payload()) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("decode payload: %w", err)
	}
	return payload, nil
}
