package onesignal

import (
	"log"

	"github.com/coachpo/pushbridge/internal/bridge"
	"github.com/coachpo/pushbridge/internal/normalize"
	"github.com/coachpo/pushbridge/internal/observer"
	"github.com/coachpo/pushbridge/internal/promise"
)

// Legacy device event kinds.
const (
	EventSubscriptionChange      = "subscriptionChange"
	EventEmailSubscriptionChange = "emailSubscriptionChange"
	EventSMSSubscriptionChange   = "smsSubscriptionChange"
)

// Device serves the device-state model of older native builds. Permission
// transitions are delivered through Notifications, which owns that channel.
type Device struct {
	events
	inv bridge.Invoker
}

func newDevice(inv bridge.Invoker, logger *log.Logger) *Device {
	d := &Device{events: newEvents(inv, logger), inv: inv}
	d.mux.Route(EventSubscriptionChange, bridge.Native(bridge.MethodAddSubscriptionObserver),
		observer.Decode(normalize.NewSubscriptionChange), noArgs())
	d.mux.Route(EventEmailSubscriptionChange, bridge.Native(bridge.MethodAddEmailSubscriptionObserver),
		observer.Decode(normalize.NewEmailSubscriptionChange), noArgs())
	d.mux.Route(EventSMSSubscriptionChange, bridge.Native(bridge.MethodAddSMSSubscriptionObserver),
		observer.Decode(normalize.NewSMSSubscriptionChange), noArgs())
	return d
}

// GetDeviceState returns the normalized device snapshot.
func (d *Device) GetDeviceState() *promise.Future[normalize.DeviceState] {
	return promise.Query(d.inv, bridge.Native(bridge.MethodGetDeviceState), bridge.NoArgs(), normalize.NewDeviceState)
}

// OnSubscriptionChange adds a listener for push subscription transitions.
func (d *Device) OnSubscriptionChange(fn func(normalize.SubscriptionChange)) (ListenerID, error) {
	return observer.Subscribe(d.mux, EventSubscriptionChange, fn)
}

// OnEmailSubscriptionChange adds a listener for email subscription transitions.
func (d *Device) OnEmailSubscriptionChange(fn func(normalize.EmailSubscriptionChange)) (ListenerID, error) {
	return observer.Subscribe(d.mux, EventEmailSubscriptionChange, fn)
}

// OnSMSSubscriptionChange adds a listener for SMS subscription transitions.
func (d *Device) OnSMSSubscriptionChange(fn func(normalize.SMSSubscriptionChange)) (ListenerID, error) {
	return observer.Subscribe(d.mux, EventSMSSubscriptionChange, fn)
}
