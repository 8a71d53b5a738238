package onesignal

import (
	"log"
	"sync"

	"github.com/coachpo/pushbridge/internal/bridge"
	"github.com/coachpo/pushbridge/internal/normalize"
	"github.com/coachpo/pushbridge/internal/observer"
	"github.com/coachpo/pushbridge/internal/promise"
	"github.com/coachpo/pushbridge/internal/state"
)

// PushSubscription manages the device's push subscription.
type PushSubscription struct {
	events
	inv    bridge.Invoker
	logger *log.Logger

	id       state.Cache[*string]
	token    state.Cache[*string]
	optedIn  state.Cache[bool]
	seedOnce sync.Once
}

func newPushSubscription(inv bridge.Invoker, logger *log.Logger) *PushSubscription {
	p := &PushSubscription{events: newEvents(inv, logger), inv: inv, logger: logger}
	p.mux.Route(EventChange, bridge.Native(bridge.MethodAddPushSubscriptionObserver),
		observer.Decode(normalize.NewPushSubscriptionChangedState), noArgs())
	return p
}

func (p *PushSubscription) seed() {
	p.seedOnce.Do(func() {
		p.GetIDAsync().Then(p.setter("id", p.id.Set))
		p.GetTokenAsync().Then(p.setter("token", p.token.Set))
		p.GetOptedInAsync().Then(func(v bool, err error) {
			if err != nil {
				p.logger.Printf("seed optedIn: %v", err)
				return
			}
			p.optedIn.Set(v)
		})
		_, err := p.OnChange(func(ev normalize.PushSubscriptionChangedState) {
			p.id.Set(ev.Current.ID)
			p.token.Set(ev.Current.Token)
			p.optedIn.Set(ev.Current.OptedIn)
		})
		if err != nil {
			p.logger.Printf("seed push subscription observer: %v", err)
		}
	})
}

func (p *PushSubscription) setter(name string, set func(*string)) func(*string, error) {
	return func(v *string, err error) {
		if err != nil {
			p.logger.Printf("seed %s: %v", name, err)
			return
		}
		set(v)
	}
}

// OnChange adds a listener for push subscription changes.
func (p *PushSubscription) OnChange(fn func(normalize.PushSubscriptionChangedState)) (ListenerID, error) {
	return observer.Subscribe(p.mux, EventChange, fn)
}

// ID returns the last known subscription id.
//
// Deprecated: use GetIDAsync.
func (p *PushSubscription) ID() *string {
	return p.id.Or(nil)
}

// Token returns the last known push token.
//
// Deprecated: use GetTokenAsync.
func (p *PushSubscription) Token() *string {
	return p.token.Or(nil)
}

// OptedIn returns the last known opt-in state, false until known.
//
// Deprecated: use GetOptedInAsync.
func (p *PushSubscription) OptedIn() bool {
	return p.optedIn.Or(false)
}

// GetIDAsync asks native for the subscription id.
func (p *PushSubscription) GetIDAsync() *promise.Future[*string] {
	return promise.Query(p.inv, bridge.Native(bridge.MethodGetPushSubscriptionID), nil, normalize.NullableString)
}

// GetTokenAsync asks native for the push token.
func (p *PushSubscription) GetTokenAsync() *promise.Future[*string] {
	return promise.Query(p.inv, bridge.Native(bridge.MethodGetPushSubscriptionToken), nil, normalize.NullableString)
}

// GetOptedInAsync asks native whether the subscription is opted in.
func (p *PushSubscription) GetOptedInAsync() *promise.Future[bool] {
	return promise.Query(p.inv, bridge.Native(bridge.MethodGetPushSubscriptionOptedIn), nil, normalize.Bool)
}

// OptIn resumes push delivery, prompting for permission when needed.
func (p *PushSubscription) OptIn() {
	promise.Command(p.inv, bridge.Native(bridge.MethodOptInPushSubscription), nil)
}

// OptOut stops push delivery regardless of the system permission.
func (p *PushSubscription) OptOut() {
	promise.Command(p.inv, bridge.Native(bridge.MethodOptOutPushSubscription), nil)
}
