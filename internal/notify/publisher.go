package notify

import (
	"context"
	"log/slog"
)

// Publisher hands committed outbox ids to the delivery worker.
type Publisher interface {
	PublishNotifications(ctx context.Context, ids []int64) error
}

// NopPublisher drops ids; the sweep job picks them up later.
type NopPublisher struct{}

// PublishNotifications implements Publisher.
func (NopPublisher) PublishNotifications(context.Context, []int64) error { return nil }

// Dispatch publishes ids after commit. Failures are logged and left to the sweep.
func Dispatch(ctx context.Context, pub Publisher, logger *slog.Logger, ids []int64) {
	if pub == nil || len(ids) == 0 {
		return
	}
	if err := pub.PublishNotifications(ctx, ids); err != nil && logger != nil {
		logger.Warn("publish notifications", slog.Int("count", len(ids)), slog.Any("error", err))
	}
}
