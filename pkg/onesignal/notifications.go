package onesignal

import (
	"log"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/coachpo/pushbridge/internal/bridge"
	"github.com/coachpo/pushbridge/internal/normalize"
	"github.com/coachpo/pushbridge/internal/observer"
	"github.com/coachpo/pushbridge/internal/promise"
	"github.com/coachpo/pushbridge/internal/state"
)

// Notification event kinds.
const (
	EventClick                 = "click"
	EventForegroundWillDisplay = "foregroundWillDisplay"
	EventPermissionChange      = "permissionChange"
)

// Notifications manages push permission and notification events.
type Notifications struct {
	events
	inv    bridge.Invoker
	logger *log.Logger

	permission state.Cache[bool]
	seedOnce   sync.Once
}

func newNotifications(inv bridge.Invoker, logger *log.Logger) *Notifications {
	n := &Notifications{events: newEvents(inv, logger), inv: inv, logger: logger}
	n.mux.Route(EventClick, bridge.Native(bridge.MethodAddNotificationClickListener),
		observer.Decode(normalize.NewNotificationClickEvent), noArgs())
	n.mux.Route(EventForegroundWillDisplay, bridge.Native(bridge.MethodAddForegroundLifecycleListener),
		n.decodeWillDisplay, noArgs(), observer.AfterDispatch(n.proceed))
	n.mux.Route(EventPermissionChange, bridge.Native(bridge.MethodAddPermissionObserver),
		observer.Decode(normalize.Permission), noArgs())
	return n
}

func (n *Notifications) decodeWillDisplay(raw json.RawMessage) (any, error) {
	notification, err := normalize.NewNotification(raw)
	if err != nil {
		return nil, err
	}
	return &WillDisplayEvent{inv: n.inv, notification: notification}, nil
}

// proceed hands the notification back to native once every listener has seen it.
func (n *Notifications) proceed(event any) {
	ev, ok := event.(*WillDisplayEvent)
	if !ok {
		return
	}
	promise.Command(n.inv, bridge.Native(bridge.MethodProceedWithWillDisplay), []any{ev.notification.NotificationID})
}

func (n *Notifications) seed() {
	n.seedOnce.Do(func() {
		promise.Query(n.inv, bridge.Native(bridge.MethodGetPermissionInternal), nil, normalize.Bool).
			Then(func(granted bool, err error) {
				if err != nil {
					n.logger.Printf("seed permission: %v", err)
					return
				}
				n.permission.Set(granted)
			})
		if _, err := n.OnPermissionChange(n.permission.Set); err != nil {
			n.logger.Printf("seed permission observer: %v", err)
		}
	})
}

// OnClick adds a listener for notification clicks.
func (n *Notifications) OnClick(fn func(normalize.NotificationClickEvent)) (ListenerID, error) {
	return observer.Subscribe(n.mux, EventClick, fn)
}

// OnForegroundWillDisplay adds a listener for notifications about to display
// while the app is in the foreground.
func (n *Notifications) OnForegroundWillDisplay(fn func(*WillDisplayEvent)) (ListenerID, error) {
	return observer.Subscribe(n.mux, EventForegroundWillDisplay, fn)
}

// OnPermissionChange adds a listener for permission changes.
func (n *Notifications) OnPermissionChange(fn func(bool)) (ListenerID, error) {
	return observer.Subscribe(n.mux, EventPermissionChange, fn)
}

// HasPermission returns the last known permission, false until known.
//
// Deprecated: use GetPermissionAsync.
func (n *Notifications) HasPermission() bool {
	return n.permission.Or(false)
}

// GetPermissionAsync asks native whether notifications are permitted.
func (n *Notifications) GetPermissionAsync() *promise.Future[bool] {
	return promise.Query(n.inv, bridge.Native(bridge.MethodGetPermissionInternal), nil, normalize.Bool)
}

// PermissionNative returns the platform authorization status.
func (n *Notifications) PermissionNative() *promise.Future[normalize.PermissionStatus] {
	return promise.Query(n.inv, bridge.Native(bridge.MethodPermissionNative), bridge.NoArgs(),
		func(raw json.RawMessage) (normalize.PermissionStatus, error) {
			v, err := normalize.Int(raw)
			return normalize.PermissionStatus(v), err
		})
}

// RequestPermission prompts for notification permission. With
// fallbackToSettings, a previously denied user is sent to the settings page.
func (n *Notifications) RequestPermission(fallbackToSettings bool) *promise.Future[bool] {
	return promise.Query(n.inv, bridge.Native(bridge.MethodRequestPermission), []any{fallbackToSettings}, normalize.Bool)
}

// CanRequestPermission reports whether a prompt can still be shown.
func (n *Notifications) CanRequestPermission() *promise.Future[bool] {
	return promise.Query(n.inv, bridge.Native(bridge.MethodCanRequestPermission), bridge.NoArgs(), normalize.Bool)
}

// RegisterForProvisionalAuthorization requests provisional (quiet) permission.
// handler, when set, receives the outcome.
func (n *Notifications) RegisterForProvisionalAuthorization(handler func(bool)) {
	promise.Notify(n.inv, bridge.Native(bridge.MethodRegisterForProvisionalAuthorization), bridge.NoArgs(),
		normalize.Bool, handler, n.logger)
}

// ClearAll removes every notification this app has shown.
func (n *Notifications) ClearAll() {
	promise.Command(n.inv, bridge.Native(bridge.MethodClearAllNotifications), bridge.NoArgs())
}

// RemoveNotification removes one notification by its Android notification id.
func (n *Notifications) RemoveNotification(id int) {
	promise.Command(n.inv, bridge.Native(bridge.MethodRemoveNotification), []any{id})
}

// RemoveGroupedNotifications removes every notification in group.
func (n *Notifications) RemoveGroupedNotifications(group string) {
	promise.Command(n.inv, bridge.Native(bridge.MethodRemoveGroupedNotifications), []any{group})
}
