package onesignal

import (
	"github.com/coachpo/pushbridge/internal/bridge"
	"github.com/coachpo/pushbridge/internal/normalize"
	"github.com/coachpo/pushbridge/internal/promise"
)

// Location controls location sharing.
type Location struct {
	inv bridge.Invoker
}

// RequestPermission prompts for location permission.
func (l *Location) RequestPermission() {
	promise.Command(l.inv, bridge.Native(bridge.MethodRequestLocationPermission), bridge.NoArgs())
}

// SetShared enables or disables location sharing.
func (l *Location) SetShared(shared bool) {
	promise.Command(l.inv, bridge.Native(bridge.MethodSetLocationShared), []any{shared})
}

// IsShared reports whether location is shared.
func (l *Location) IsShared() *promise.Future[bool] {
	return promise.Query(l.inv, bridge.Native(bridge.MethodIsLocationShared), bridge.NoArgs(), normalize.Bool)
}
