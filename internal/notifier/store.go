package notifier

import (
	"context"

	"github.com/good-yellow-bee/pawwatch/internal/models"
)

// NotificationWriter persists notifications.
type NotificationWriter interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
}

// StoreSink persists notifications as rows the dashboard reads.
type StoreSink struct {
	store NotificationWriter
}

// NewStoreSink creates a sink writing to store.
func NewStoreSink(store NotificationWriter) *StoreSink {
	return &StoreSink{store: store}
}

// Name returns "store".
func (s *StoreSink) Name() string { return "store" }

// Send persists the notification.
func (s *StoreSink) Send(ctx context.Context, n *models.Notification) error {
	return s.store.CreateNotification(ctx, n)
}

// Close is a no-op; the store is owned by the caller.
func (s *StoreSink) Close() error { return nil }
