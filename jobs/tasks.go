package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueNotifications carries notification deliveries.
	QueueNotifications = "notifications"

	// TaskNotificationDeliver delivers a batch of committed outbox rows.
	TaskNotificationDeliver = "notify:deliver"
	// TaskNotificationSweep re-enqueues rows whose delivery task was lost.
	TaskNotificationSweep = "notify:sweep"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// DeliverPayload lists outbox ids to deliver.
type DeliverPayload struct {
	IDs []int64 `json:"ids"`
}

// SweepPayload controls which undelivered rows are picked up.
type SweepPayload struct {
	AgeSeconds int `json:"age_seconds"`
	Limit      int `json:"limit"`
}

// Age returns the configured minimum row age.
func (p SweepPayload) Age() time.Duration {
	return time.Duration(p.AgeSeconds) * time.Second
}

// CleanupPayload sets the idempotency key retention.
type CleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewDeliverTask constructs a delivery task with a unique id.
func NewDeliverTask(ids []int64) (*asynq.Task, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("jobs: deliver task without ids")
	}
	data, err := json.Marshal(DeliverPayload{IDs: ids})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotificationDeliver, data,
		asynq.TaskID(uuid.NewString()),
		asynq.Queue(QueueNotifications),
		asynq.MaxRetry(10),
	), nil
}

// NewSweepTask constructs the periodic outbox sweep.
func NewSweepTask(age time.Duration, limit int) (*asynq.Task, error) {
	data, err := json.Marshal(SweepPayload{AgeSeconds: int(age / time.Second), Limit: limit})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotificationSweep, data), nil
}

// NewCleanupTask constructs the idempotency key cleanup.
func NewCleanupTask(retention time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(CleanupPayload{RetentionHours: int(retention / time.Hour)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}
