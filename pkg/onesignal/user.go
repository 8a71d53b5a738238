package onesignal

import (
	"log"

	"github.com/coachpo/pushbridge/internal/bridge"
	"github.com/coachpo/pushbridge/internal/normalize"
	"github.com/coachpo/pushbridge/internal/observer"
	"github.com/coachpo/pushbridge/internal/promise"
)

// EventChange is the change kind of User and PushSubscription.
const EventChange = "change"

// User manages the identity, aliases, tags and channels of the current user.
type User struct {
	events
	inv    bridge.Invoker
	logger *log.Logger

	PushSubscription *PushSubscription
}

func newUser(inv bridge.Invoker, logger *log.Logger) *User {
	u := &User{
		events:           newEvents(inv, logger),
		inv:              inv,
		logger:           logger,
		PushSubscription: newPushSubscription(inv, logger),
	}
	u.mux.Route(EventChange, bridge.Native(bridge.MethodAddUserStateObserver),
		observer.Decode(normalize.NewUserChangedState), noArgs())
	return u
}

// OnChange adds a listener for user state changes.
func (u *User) OnChange(fn func(normalize.UserChangedState)) (ListenerID, error) {
	return observer.Subscribe(u.mux, EventChange, fn)
}

// SetLanguage sets the user's language as an ISO 639-1 code.
func (u *User) SetLanguage(language string) {
	promise.Command(u.inv, bridge.Native(bridge.MethodSetLanguage), []any{language})
}

// AddAlias sets one alias.
func (u *User) AddAlias(label, id string) {
	u.AddAliases(map[string]string{label: id})
}

// AddAliases sets several aliases at once.
func (u *User) AddAliases(aliases map[string]string) {
	promise.Command(u.inv, bridge.Native(bridge.MethodAddAliases), []any{aliases})
}

// RemoveAlias removes the alias with label.
func (u *User) RemoveAlias(label string) {
	promise.Command(u.inv, bridge.Native(bridge.MethodRemoveAliases), []any{label})
}

// RemoveAliases removes the aliases named by labels. The labels are the
// argument list itself.
func (u *User) RemoveAliases(labels []string) {
	if len(labels) == 0 {
		u.logger.Printf("removeAliases: no labels given")
	}
	promise.Command(u.inv, bridge.Native(bridge.MethodRemoveAliases), stringArgs(labels))
}

// AddEmail adds an email subscription.
func (u *User) AddEmail(email string) {
	promise.Command(u.inv, bridge.Native(bridge.MethodAddEmail), []any{email})
}

// RemoveEmail removes an email subscription.
func (u *User) RemoveEmail(email string) {
	promise.Command(u.inv, bridge.Native(bridge.MethodRemoveEmail), []any{email})
}

// AddSms adds an SMS subscription.
func (u *User) AddSms(number string) {
	promise.Command(u.inv, bridge.Native(bridge.MethodAddSms), []any{number})
}

// RemoveSms removes an SMS subscription.
func (u *User) RemoveSms(number string) {
	promise.Command(u.inv, bridge.Native(bridge.MethodRemoveSms), []any{number})
}

// AddTag sets one tag. Non-string values are sent JSON encoded.
func (u *User) AddTag(key string, value any) {
	u.AddTags(map[string]any{key: value})
}

// AddTags sets several tags at once.
func (u *User) AddTags(tags map[string]any) {
	promise.Command(u.inv, bridge.Native(bridge.MethodAddTags), []any{normalize.StringifyValues(tags)})
}

// RemoveTag removes one tag.
func (u *User) RemoveTag(key string) {
	promise.Command(u.inv, bridge.Native(bridge.MethodRemoveTags), []any{key})
}

// RemoveTags removes the tags named by keys. The keys are the argument list itself.
func (u *User) RemoveTags(keys []string) {
	if len(keys) == 0 {
		u.logger.Printf("removeTags: no keys given")
	}
	promise.Command(u.inv, bridge.Native(bridge.MethodRemoveTags), stringArgs(keys))
}

// GetTags returns the tags held locally for the user.
func (u *User) GetTags() *promise.Future[map[string]string] {
	return promise.Query(u.inv, bridge.Native(bridge.MethodGetTags), bridge.NoArgs(), normalize.StringMap)
}

// GetOnesignalID returns the OneSignal id, nil while the user is not created yet.
func (u *User) GetOnesignalID() *promise.Future[*string] {
	return promise.Query(u.inv, bridge.Native(bridge.MethodGetOnesignalID), bridge.NoArgs(), normalize.NullableString)
}

// GetExternalID returns the external id, nil when logged out.
func (u *User) GetExternalID() *promise.Future[*string] {
	return promise.Query(u.inv, bridge.Native(bridge.MethodGetExternalID), bridge.NoArgs(), normalize.NullableString)
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
