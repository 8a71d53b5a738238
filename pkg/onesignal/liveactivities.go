package onesignal

import (
	"log"

	json "github.com/goccy/go-json"

	"github.com/coachpo/pushbridge/internal/bridge"
	"github.com/coachpo/pushbridge/internal/promise"
)

// PushToStartTokenType names the Live Activity attributes type a token belongs to.
type PushToStartTokenType = string

// DefaultLiveActivityOptions configures the SDK-managed default Live Activity.
type DefaultLiveActivityOptions struct {
	EnablePushToStart  bool `json:"enablePushToStart"`
	EnablePushToUpdate bool `json:"enablePushToUpdate"`
}

// LiveActivities manages iOS Live Activities.
type LiveActivities struct {
	inv    bridge.Invoker
	logger *log.Logger
}

func passThrough(raw json.RawMessage) (json.RawMessage, error) {
	return raw, nil
}

// Enter associates activityID with token. The future carries the native reply.
func (l *LiveActivities) Enter(activityID, token string) *promise.Future[json.RawMessage] {
	return promise.Query(l.inv, bridge.Native(bridge.MethodEnterLiveActivity), []any{activityID, token}, passThrough)
}

// Exit dissociates activityID.
func (l *LiveActivities) Exit(activityID string) *promise.Future[json.RawMessage] {
	return promise.Query(l.inv, bridge.Native(bridge.MethodExitLiveActivity), []any{activityID}, passThrough)
}

// SetPushToStartToken registers a push-to-start token for activityType.
func (l *LiveActivities) SetPushToStartToken(activityType PushToStartTokenType, token string) {
	promise.Command(l.inv, bridge.Native(bridge.MethodSetPushToStartToken), []any{activityType, token})
}

// RemovePushToStartToken drops the push-to-start token for activityType.
func (l *LiveActivities) RemovePushToStartToken(activityType PushToStartTokenType) {
	promise.Command(l.inv, bridge.Native(bridge.MethodRemovePushToStartToken), []any{activityType})
}

// SetupDefault enables the default Live Activity. A nil opts is sent as null.
func (l *LiveActivities) SetupDefault(opts *DefaultLiveActivityOptions) {
	var arg any
	if opts != nil {
		arg = opts
	}
	promise.Command(l.inv, bridge.Native(bridge.MethodSetupDefaultLiveActivity), []any{arg})
}

// StartDefault starts a default Live Activity. It is meant for testing only.
func (l *LiveActivities) StartDefault(activityID string, attributes, content map[string]any) {
	if activityID == "" {
		l.logger.Printf("startDefaultLiveActivity: empty activity id")
	}
	promise.Command(l.inv, bridge.Native(bridge.MethodStartDefaultLiveActivity), []any{activityID, attributes, content})
}
