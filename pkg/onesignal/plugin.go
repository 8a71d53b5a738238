// Package onesignal exposes the OneSignal push SDK over the native call primitive.
//
// Each OneSignal value owns its capability objects, their listener sets and
// their cached state; two values never share registrations.
package onesignal

import (
	"log"
	"os"

	json "github.com/goccy/go-json"

	"github.com/coachpo/pushbridge/internal/bridge"
	"github.com/coachpo/pushbridge/internal/observer"
	"github.com/coachpo/pushbridge/internal/promise"
)

// ErrUnknownEventKind is returned when a listener names an event kind the
// capability does not declare.
var ErrUnknownEventKind = observer.ErrUnknownEventKind

// ListenerID identifies an added event listener.
type ListenerID = observer.ListenerID

// Listener receives normalized events.
type Listener = observer.Listener

// Option configures a OneSignal value.
type Option func(*OneSignal)

// WithLogger routes capability diagnostics to logger.
func WithLogger(logger *log.Logger) Option {
	return func(o *OneSignal) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// OneSignal is the plugin root.
type OneSignal struct {
	inv    bridge.Invoker
	logger *log.Logger
	appID  string

	Notifications  *Notifications
	InAppMessages  *InAppMessages
	User           *User
	Session        *Session
	Location       *Location
	LiveActivities *LiveActivities
	Debug          *Debug
	Device         *Device
}

// New builds the plugin root and its capabilities on top of inv.
func New(inv bridge.Invoker, opts ...Option) *OneSignal {
	o := &OneSignal{
		inv:    inv,
		logger: log.New(os.Stderr, "onesignal ", log.LstdFlags),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	o.Notifications = newNotifications(inv, o.logger)
	o.InAppMessages = newInAppMessages(inv, o.logger)
	o.User = newUser(inv, o.logger)
	o.Session = &Session{inv: inv, logger: o.logger}
	o.Location = &Location{inv: inv}
	o.LiveActivities = &LiveActivities{inv: inv, logger: o.logger}
	o.Debug = &Debug{inv: inv, logger: o.logger}
	o.Device = newDevice(inv, o.logger)
	return o
}

// Initialize starts the native SDK with appID. Once the native side confirms,
// the push subscription and permission caches are seeded and kept current.
// The returned future settles with that confirmation.
func (o *OneSignal) Initialize(appID string) *promise.Future[struct{}] {
	o.appID = appID
	fut := promise.Query(o.inv, bridge.Native(bridge.MethodInit), []any{appID}, func(json.RawMessage) (struct{}, error) {
		return struct{}{}, nil
	})
	fut.Then(func(_ struct{}, err error) {
		if err != nil {
			o.logger.Printf("initialize: %v", err)
			return
		}
		o.User.PushSubscription.seed()
		o.Notifications.seed()
	})
	return fut
}

// AppID returns the application id passed to Initialize.
func (o *OneSignal) AppID() string {
	return o.appID
}

// Login switches the user context to externalID.
func (o *OneSignal) Login(externalID string) {
	promise.Command(o.inv, bridge.Native(bridge.MethodLogin), []any{externalID})
}

// Logout removes the external id and starts an anonymous user.
func (o *OneSignal) Logout() {
	promise.Command(o.inv, bridge.Native(bridge.MethodLogout), nil)
}

// SetConsentRequired makes the SDK wait for SetConsentGiven before sending data.
func (o *OneSignal) SetConsentRequired(required bool) {
	promise.Command(o.inv, bridge.Native(bridge.MethodSetPrivacyConsentRequired), []any{required})
}

// SetConsentGiven records the user's privacy consent.
func (o *OneSignal) SetConsentGiven(granted bool) {
	promise.Command(o.inv, bridge.Native(bridge.MethodSetPrivacyConsentGiven), []any{granted})
}

// events gives a capability the add/remove listener surface over its own multiplexer.
type events struct {
	mux *observer.Multiplexer
}

// AddEventListener adds fn for kind. Unknown kinds are not registered and
// return an error wrapping ErrUnknownEventKind.
func (e events) AddEventListener(kind string, fn Listener) (ListenerID, error) {
	return e.mux.Add(kind, fn)
}

// RemoveEventListener removes the listener added under id.
func (e events) RemoveEventListener(kind string, id ListenerID) bool {
	return e.mux.Remove(kind, id)
}

func newEvents(inv bridge.Invoker, logger *log.Logger) events {
	return events{mux: observer.New(inv, logger)}
}

func noArgs() observer.RouteOption {
	return observer.WithArgs(bridge.NoArgs())
}
