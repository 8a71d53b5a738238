package onesignal

import (
	"log"

	"github.com/coachpo/pushbridge/internal/bridge"
	"github.com/coachpo/pushbridge/internal/normalize"
	"github.com/coachpo/pushbridge/internal/observer"
	"github.com/coachpo/pushbridge/internal/promise"
)

// In-app message event kinds. EventClick is shared with Notifications.
const (
	EventWillDisplay = "willDisplay"
	EventDidDisplay  = "didDisplay"
	EventWillDismiss = "willDismiss"
	EventDidDismiss  = "didDismiss"
)

// InAppMessages manages in-app message triggers and lifecycle events.
type InAppMessages struct {
	events
	inv    bridge.Invoker
	logger *log.Logger
}

func newInAppMessages(inv bridge.Invoker, logger *log.Logger) *InAppMessages {
	m := &InAppMessages{events: newEvents(inv, logger), inv: inv, logger: logger}
	m.mux.Route(EventClick, bridge.Native(bridge.MethodSetInAppMessageClickHandler),
		observer.Decode(normalize.NewInAppMessageClickEvent), noArgs())

	lifecycle := observer.Decode(normalize.NewInAppMessageEvent)
	m.mux.Route(EventWillDisplay, bridge.Native(bridge.MethodSetOnWillDisplayInAppMessageHandler), lifecycle, noArgs())
	m.mux.Route(EventDidDisplay, bridge.Native(bridge.MethodSetOnDidDisplayInAppMessageHandler), lifecycle, noArgs())
	m.mux.Route(EventWillDismiss, bridge.Native(bridge.MethodSetOnWillDismissInAppMessageHandler), lifecycle, noArgs())
	m.mux.Route(EventDidDismiss, bridge.Native(bridge.MethodSetOnDidDismissInAppMessageHandler), lifecycle, noArgs())
	return m
}

// OnClick adds a listener for in-app message clicks.
func (m *InAppMessages) OnClick(fn func(normalize.InAppMessageClickEvent)) (ListenerID, error) {
	return observer.Subscribe(m.mux, EventClick, fn)
}

// OnLifecycle adds a listener for one of the will/did display and dismiss kinds.
func (m *InAppMessages) OnLifecycle(kind string, fn func(normalize.InAppMessageEvent)) (ListenerID, error) {
	return observer.Subscribe(m.mux, kind, fn)
}

// AddTrigger sets one trigger. Non-string values are sent JSON encoded.
func (m *InAppMessages) AddTrigger(key string, value any) {
	m.AddTriggers(map[string]any{key: value})
}

// AddTriggers sets several triggers at once.
func (m *InAppMessages) AddTriggers(triggers map[string]any) {
	promise.Command(m.inv, bridge.Native(bridge.MethodAddTriggers), []any{normalize.StringifyValues(triggers)})
}

// RemoveTrigger removes one trigger.
func (m *InAppMessages) RemoveTrigger(key string) {
	m.RemoveTriggers([]string{key})
}

// RemoveTriggers removes the triggers named by keys.
func (m *InAppMessages) RemoveTriggers(keys []string) {
	if len(keys) == 0 {
		m.logger.Printf("removeTriggers: no keys given")
		keys = []string{}
	}
	promise.Command(m.inv, bridge.Native(bridge.MethodRemoveTriggers), []any{keys})
}

// ClearTriggers removes every trigger.
func (m *InAppMessages) ClearTriggers() {
	promise.Command(m.inv, bridge.Native(bridge.MethodClearTriggers), nil)
}

// SetPaused stops or resumes in-app message display.
func (m *InAppMessages) SetPaused(paused bool) {
	promise.Command(m.inv, bridge.Native(bridge.MethodSetPaused), []any{paused})
}

// GetPaused reports whether in-app messages are paused.
func (m *InAppMessages) GetPaused() *promise.Future[bool] {
	return promise.Query(m.inv, bridge.Native(bridge.MethodIsPaused), bridge.NoArgs(), normalize.Bool)
}
