package onesignal

import (
	"github.com/coachpo/pushbridge/internal/bridge"
	"github.com/coachpo/pushbridge/internal/normalize"
	"github.com/coachpo/pushbridge/internal/promise"
)

// WillDisplayEvent is delivered before a notification is shown in the foreground.
type WillDisplayEvent struct {
	inv          bridge.Invoker
	notification normalize.Notification
}

// Notification returns the notification about to display.
func (e *WillDisplayEvent) Notification() normalize.Notification {
	return e.notification
}

// PreventDefault stops the automatic display. With discard the notification
// is dropped; otherwise Display may still show it later.
func (e *WillDisplayEvent) PreventDefault(discard bool) {
	promise.Command(e.inv, bridge.Native(bridge.MethodPreventDefault), []any{e.notification.NotificationID, discard})
}

// Display shows a notification whose default display was prevented.
func (e *WillDisplayEvent) Display() {
	promise.Command(e.inv, bridge.Native(bridge.MethodDisplayNotification), []any{e.notification.NotificationID})
}
