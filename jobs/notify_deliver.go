package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/opscrm/opscrm/internal/jobs"
	"github.com/opscrm/opscrm/internal/notify"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// OutboxStore is the part of notify.Store the delivery jobs use.
type OutboxStore interface {
	Get(ctx context.Context, id int64) (notify.Notification, error)
	Undelivered(ctx context.Context, age time.Duration, limit int) ([]int64, error)
	MarkDelivered(ctx context.Context, id int64) (bool, error)
}

// Sender pushes one notification to its channel.
type Sender interface {
	Send(ctx context.Context, n notify.Notification) error
}

// LogSender records deliveries in the structured log. The in-app feed reads
// the notifications table directly, so this is the default channel.
type LogSender struct {
	Logger *slog.Logger
}

// Send implements Sender.
func (s LogSender) Send(_ context.Context, n notify.Notification) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("notification delivered",
		slog.Int64("notification_id", n.ID),
		slog.Int64("user_id", n.UserID),
		slog.String("type", string(n.Kind)),
		slog.String("title", n.Title))
	return nil
}

// DeliverJob processes TaskNotificationDeliver.
type DeliverJob struct {
	Store   OutboxStore
	Sender  Sender
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewDeliverJob wires dependencies for the delivery handler.
func NewDeliverJob(store OutboxStore, sender Sender, logger *slog.Logger, metrics *jobmetrics.Metrics) *DeliverJob {
	return &DeliverJob{Store: store, Sender: sender, Logger: logger, Metrics: metrics}
}

// Handle delivers every listed row once. Rows already delivered are skipped;
// a failing row fails the task so asynq retries the remainder.
func (j *DeliverJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Store == nil {
		return errors.New("notify deliver: handler not configured")
	}
	var payload DeliverPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("notify deliver payload: %v: %w", err, asynq.SkipRetry)
	}
	metrics := metricsOrDefault(j.Metrics)
	tracker := metrics.Track(TaskNotificationDeliver)
	defer func() { resultErr = tracker.End(resultErr) }()

	sender := j.Sender
	if sender == nil {
		sender = LogSender{Logger: j.Logger}
	}
	logger := loggerFor(j.Logger, TaskNotificationDeliver)
	for _, id := range payload.IDs {
		n, err := j.Store.Get(ctx, id)
		if errors.Is(err, notify.ErrNotFound) {
			logger.Warn("notification missing", slog.Int64("notification_id", id))
			metrics.CountDelivery(jobmetrics.DeliveryMissing)
			continue
		}
		if err != nil {
			return err
		}
		if n.DeliveredAt != nil {
			metrics.CountDelivery(jobmetrics.DeliverySkipped)
			continue
		}
		if err := sender.Send(ctx, n); err != nil {
			metrics.CountDelivery(jobmetrics.DeliveryFailed)
			return fmt.Errorf("send notification %d: %w", id, err)
		}
		if _, err := j.Store.MarkDelivered(ctx, id); err != nil {
			return err
		}
		metrics.CountDelivery(jobmetrics.DeliverySent)
	}
	return nil
}

// SweepJob re-publishes rows whose delivery task never completed.
type SweepJob struct {
	Store     OutboxStore
	Publisher notify.Publisher
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewSweepJob wires dependencies for the sweep handler.
func NewSweepJob(store OutboxStore, publisher notify.Publisher, logger *slog.Logger, metrics *jobmetrics.Metrics) *SweepJob {
	return &SweepJob{Store: store, Publisher: publisher, Logger: logger, Metrics: metrics}
}

// Handle processes TaskNotificationSweep.
func (j *SweepJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Store == nil || j.Publisher == nil {
		return errors.New("notify sweep: handler not configured")
	}
	var payload SweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("notify sweep payload: %v: %w", err, asynq.SkipRetry)
	}
	tracker := metricsOrDefault(j.Metrics).Track(TaskNotificationSweep)
	defer func() { resultErr = tracker.End(resultErr) }()

	ids, err := j.Store.Undelivered(ctx, payload.Age(), payload.Limit)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	if err := j.Publisher.PublishNotifications(ctx, ids); err != nil {
		return err
	}
	loggerFor(j.Logger, TaskNotificationSweep).Info("requeued undelivered notifications", slog.Int("count", len(ids)))
	return nil
}

func metricsOrDefault(m *jobmetrics.Metrics) *jobmetrics.Metrics {
	if m != nil {
		return m
	}
	return defaultJobMetrics
}

func loggerFor(logger *slog.Logger, job string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("job", job))
}
