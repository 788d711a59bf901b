package workflow

import (
	"context"

	"orchestra/internal/logging"
	"orchestra/internal/notifications"
)

// notify publishes an event. Delivery failures are logged and otherwise
// ignored.
func (e *Engine) notify(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if err := e.notifier.Publish(ctx, event, payload); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, e.logger), "notification failed", "notification_failed",
			append(logging.ErrorAttrs(err),
				logging.String("event", string(event)),
				logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
			)...,
		)
	}
}
