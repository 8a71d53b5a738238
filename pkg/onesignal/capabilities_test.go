package onesignal

import (
	"bytes"
	"context"
	"log"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/coachpo/pushbridge/internal/bridge"
	"github.com/coachpo/pushbridge/internal/bridge/bridgetest"
	"github.com/coachpo/pushbridge/internal/normalize"
)

func argsOf(t *testing.T, args []any) string {
	t.Helper()
	data, err := json.Marshal(args)
	require.NoError(t, err)
	return string(data)
}

func TestInAppMessageTriggers(t *testing.T) {
	sdk, rec := newTestPlugin(t)
	iam := sdk.InAppMessages

	iam.AddTrigger("level", 5)
	iam.AddTriggers(map[string]any{"vip": true, "name": "x"})
	iam.RemoveTrigger("level")
	iam.RemoveTriggers([]string{"vip", "name"})
	iam.ClearTriggers()
	iam.SetPaused(true)

	adds := rec.CallsTo(bridge.MethodAddTriggers)
	require.JSONEq(t, `[{"level":"5"}]`, argsOf(t, adds[0].Args))
	require.JSONEq(t, `[{"vip":"true","name":"x"}]`, argsOf(t, adds[1].Args))

	removes := rec.CallsTo(bridge.MethodRemoveTriggers)
	require.JSONEq(t, `[["level"]]`, argsOf(t, removes[0].Args))
	require.JSONEq(t, `[["vip","name"]]`, argsOf(t, removes[1].Args))

	clear, ok := rec.Last(bridge.MethodClearTriggers)
	require.True(t, ok)
	require.Nil(t, clear.Args)
	require.Equal(t, []any{true}, rec.CallsTo(bridge.MethodSetPaused)[0].Args)
}

func TestInAppMessageEmptyRemoveIsLoggedAndSent(t *testing.T) {
	var buf bytes.Buffer
	rec := bridgetest.NewRecorder()
	sdk := New(rec, WithLogger(log.New(&buf, "", 0)))
	sdk.InAppMessages.RemoveTriggers(nil)
	require.Contains(t, buf.String(), "removeTriggers")
	require.JSONEq(t, `[[]]`, argsOf(t, rec.CallsTo(bridge.MethodRemoveTriggers)[0].Args))
}

func TestInAppMessageEvents(t *testing.T) {
	sdk, rec := newTestPlugin(t)
	var clicks []normalize.InAppMessageClickEvent
	var lifecycle []string
	_, err := sdk.InAppMessages.OnClick(func(ev normalize.InAppMessageClickEvent) { clicks = append(clicks, ev) })
	require.NoError(t, err)
	for _, kind := range []string{EventWillDisplay, EventDidDisplay, EventWillDismiss, EventDidDismiss} {
		kind := kind
		_, err := sdk.InAppMessages.OnLifecycle(kind, func(ev normalize.InAppMessageEvent) {
			lifecycle = append(lifecycle, kind+":"+ev.Message.MessageID)
		})
		require.NoError(t, err)
	}
	for _, method := range []string{
		bridge.MethodSetInAppMessageClickHandler,
		bridge.MethodSetOnWillDisplayInAppMessageHandler,
		bridge.MethodSetOnDidDisplayInAppMessageHandler,
		bridge.MethodSetOnWillDismissInAppMessageHandler,
		bridge.MethodSetOnDidDismissInAppMessageHandler,
	} {
		require.Equal(t, 1, rec.Count(method), method)
	}

	msg := map[string]any{"message": map[string]any{"messageId": "m1"}}
	require.NoError(t, rec.Succeed(bridge.MethodSetOnWillDisplayInAppMessageHandler, msg))
	require.NoError(t, rec.Succeed(bridge.MethodSetOnDidDismissInAppMessageHandler, msg))
	require.Equal(t, []string{"willDisplay:m1", "didDismiss:m1"}, lifecycle)

	require.NoError(t, rec.Succeed(bridge.MethodSetInAppMessageClickHandler, map[string]any{
		"message": map[string]any{"messageId": "m1"},
		"result":  map[string]any{"closingMessage": true, "url": "https://x"},
	}))
	require.Len(t, clicks, 1)
	require.True(t, clicks[0].Result.ClosingMessage)
}

func TestInAppMessagesGetPaused(t *testing.T) {
	sdk, rec := newTestPlugin(t)
	rec.Respond(bridge.MethodIsPaused, map[string]bool{"value": true})
	paused, err := sdk.InAppMessages.GetPaused().Await(context.Background())
	require.NoError(t, err)
	require.True(t, paused)
}

func TestUserCommandArgumentShapes(t *testing.T) {
	sdk, rec := newTestPlugin(t)
	u := sdk.User

	u.SetLanguage("de")
	u.AddAlias("crm", "42")
	u.AddAliases(map[string]string{"a": "1"})
	u.RemoveAlias("crm")
	u.RemoveAliases([]string{"a", "b"})
	u.AddEmail("a@b.c")
	u.RemoveEmail("a@b.c")
	u.AddSms("+1")
	u.RemoveSms("+1")
	u.AddTag("score", 10)
	u.AddTags(map[string]any{"vip": true})
	u.RemoveTag("score")
	u.RemoveTags([]string{"vip", "x"})

	require.Equal(t, []any{"de"}, rec.CallsTo(bridge.MethodSetLanguage)[0].Args)
	aliases := rec.CallsTo(bridge.MethodAddAliases)
	require.JSONEq(t, `[{"crm":"42"}]`, argsOf(t, aliases[0].Args))
	require.JSONEq(t, `[{"a":"1"}]`, argsOf(t, aliases[1].Args))

	removeAliases := rec.CallsTo(bridge.MethodRemoveAliases)
	require.Equal(t, []any{"crm"}, removeAliases[0].Args)
	require.Equal(t, []any{"a", "b"}, removeAliases[1].Args, "labels are the argument list")

	require.Equal(t, []any{"a@b.c"}, rec.CallsTo(bridge.MethodAddEmail)[0].Args)
	require.Equal(t, []any{"a@b.c"}, rec.CallsTo(bridge.MethodRemoveEmail)[0].Args)
	require.Equal(t, []any{"+1"}, rec.CallsTo(bridge.MethodAddSms)[0].Args)
	require.Equal(t, []any{"+1"}, rec.CallsTo(bridge.MethodRemoveSms)[0].Args)

	tags := rec.CallsTo(bridge.MethodAddTags)
	require.JSONEq(t, `[{"score":"10"}]`, argsOf(t, tags[0].Args))
	require.JSONEq(t, `[{"vip":"true"}]`, argsOf(t, tags[1].Args))

	removeTags := rec.CallsTo(bridge.MethodRemoveTags)
	require.Equal(t, []any{"score"}, removeTags[0].Args)
	require.Equal(t, []any{"vip", "x"}, removeTags[1].Args)
}

func TestUserQueriesAndChanges(t *testing.T) {
	sdk, rec := newTestPlugin(t)
	ctx := context.Background()
	rec.Respond(bridge.MethodGetTags, map[string]any{"score": "10", "level": 3})
	rec.Respond(bridge.MethodGetOnesignalID, map[string]any{"value": "os-1"})
	rec.Respond(bridge.MethodGetExternalID, nil)

	tags, err := sdk.User.GetTags().Await(ctx)
	require.NoError(t, err)
	require.Equal(t, map[string]string{"score": "10", "level": "3"}, tags)

	id, err := sdk.User.GetOnesignalID().Await(ctx)
	require.NoError(t, err)
	require.Equal(t, "os-1", *id)

	ext, err := sdk.User.GetExternalID().Await(ctx)
	require.NoError(t, err)
	require.Nil(t, ext)

	var changes []normalize.UserChangedState
	_, err = sdk.User.OnChange(func(ev normalize.UserChangedState) { changes = append(changes, ev) })
	require.NoError(t, err)
	require.NoError(t, rec.Succeed(bridge.MethodAddUserStateObserver, map[string]any{
		"current": map[string]any{"onesignalId": "os-1", "externalId": "ext-1"},
	}))
	require.Len(t, changes, 1)
	require.Equal(t, "ext-1", *changes[0].Current.ExternalID)
}

func TestPushSubscriptionCommandsAndQueries(t *testing.T) {
	sdk, rec := newTestPlugin(t)
	ps := sdk.User.PushSubscription
	ps.OptIn()
	ps.OptOut()
	require.Nil(t, rec.CallsTo(bridge.MethodOptInPushSubscription)[0].Args)
	require.Nil(t, rec.CallsTo(bridge.MethodOptOutPushSubscription)[0].Args)

	rec.Respond(bridge.MethodGetPushSubscriptionToken, "tok")
	token, err := ps.GetTokenAsync().Await(context.Background())
	require.NoError(t, err)
	require.Equal(t, "tok", *token)
	require.Nil(t, ps.Token(), "deprecated getters only read the seeded cache")
	require.False(t, ps.OptedIn())
}

func TestSessionOutcomes(t *testing.T) {
	var buf bytes.Buffer
	rec := bridgetest.NewRecorder()
	sdk := New(rec, WithLogger(log.New(&buf, "", 0)))
	rec.Respond(bridge.MethodAddOutcome, map[string]any{"name": "click"})

	var acks []OutcomeEvent
	sdk.Session.AddOutcome("click", func(ev OutcomeEvent) { acks = append(acks, ev) })
	sdk.Session.AddUniqueOutcome("open", nil)
	sdk.Session.AddOutcomeWithValue("purchase", "9.99", nil)
	sdk.Session.AddOutcomeWithValue("bogus", "abc", nil)

	require.Len(t, acks, 1)
	require.Equal(t, "click", acks[0]["name"])
	require.Equal(t, []any{"open"}, rec.CallsTo(bridge.MethodAddUniqueOutcome)[0].Args)

	withValue := rec.CallsTo(bridge.MethodAddOutcomeWithValue)
	require.JSONEq(t, `["purchase", 9.99]`, argsOf(t, withValue[0].Args))
	require.JSONEq(t, `["bogus", null]`, argsOf(t, withValue[1].Args))
	require.Contains(t, buf.String(), "abc")
}

func TestLocation(t *testing.T) {
	sdk, rec := newTestPlugin(t)
	sdk.Location.RequestPermission()
	sdk.Location.SetShared(true)
	require.Equal(t, []any{}, rec.CallsTo(bridge.MethodRequestLocationPermission)[0].Args)
	require.Equal(t, []any{true}, rec.CallsTo(bridge.MethodSetLocationShared)[0].Args)

	rec.Respond(bridge.MethodIsLocationShared, true)
	shared, err := sdk.Location.IsShared().Await(context.Background())
	require.NoError(t, err)
	require.True(t, shared)

	rec.Respond(bridge.MethodIsLocationShared, map[string]bool{"value": false})
	shared, err = sdk.Location.IsShared().Await(context.Background())
	require.NoError(t, err)
	require.False(t, shared)
}

func TestLiveActivities(t *testing.T) {
	sdk, rec := newTestPlugin(t)
	la := sdk.LiveActivities

	rec.RespondFailure(bridge.MethodEnterLiveActivity, map[string]string{"error": "denied"})
	_, err := la.Enter("act-1", "tok").Await(context.Background())
	require.Error(t, err)
	require.Equal(t, []any{"act-1", "tok"}, rec.CallsTo(bridge.MethodEnterLiveActivity)[0].Args)

	rec.Respond(bridge.MethodExitLiveActivity, map[string]bool{"success": true})
	reply, err := la.Exit("act-1").Await(context.Background())
	require.NoError(t, err)
	require.JSONEq(t, `{"success":true}`, string(reply))

	la.SetPushToStartToken("OrderAttributes", "pts")
	la.RemovePushToStartToken("OrderAttributes")
	la.SetupDefault(nil)
	la.SetupDefault(&DefaultLiveActivityOptions{EnablePushToStart: true})
	la.StartDefault("act-2", map[string]any{"title": "t"}, map[string]any{"status": "s"})

	require.JSONEq(t, `["OrderAttributes","pts"]`, argsOf(t, rec.CallsTo(bridge.MethodSetPushToStartToken)[0].Args))
	require.JSONEq(t, `["OrderAttributes"]`, argsOf(t, rec.CallsTo(bridge.MethodRemovePushToStartToken)[0].Args))
	setups := rec.CallsTo(bridge.MethodSetupDefaultLiveActivity)
	require.JSONEq(t, `[null]`, argsOf(t, setups[0].Args))
	require.JSONEq(t, `[{"enablePushToStart":true,"enablePushToUpdate":false}]`, argsOf(t, setups[1].Args))
	require.JSONEq(t, `["act-2",{"title":"t"},{"status":"s"}]`, argsOf(t, rec.CallsTo(bridge.MethodStartDefaultLiveActivity)[0].Args))
}

func TestDebugLevels(t *testing.T) {
	var buf bytes.Buffer
	rec := bridgetest.NewRecorder()
	sdk := New(rec, WithLogger(log.New(&buf, "", 0)))
	sdk.Debug.SetLogLevel(LogLevelVerbose)
	sdk.Debug.SetAlertLevel(LogLevel(9))

	require.Equal(t, []any{6}, rec.CallsTo(bridge.MethodSetLogLevel)[0].Args)
	require.Equal(t, []any{9}, rec.CallsTo(bridge.MethodSetAlertLevel)[0].Args, "misuse is logged but still sent")
	require.Contains(t, buf.String(), "unknown log level 9")
}

func TestDeviceState(t *testing.T) {
	sdk, rec := newTestPlugin(t)
	rec.Respond(bridge.MethodGetDeviceState, map[string]any{"isSubscribed": true, "userId": "u1"})

	st, err := sdk.Device.GetDeviceState().Await(context.Background())
	require.NoError(t, err)
	require.True(t, *st.Subscribed)
	require.Nil(t, st.HasNotificationPermission)
	require.Equal(t, "u1", *st.UserID)

	var email []normalize.EmailSubscriptionChange
	_, err = sdk.Device.OnEmailSubscriptionChange(func(ev normalize.EmailSubscriptionChange) { email = append(email, ev) })
	require.NoError(t, err)
	_, err = sdk.Device.OnSubscriptionChange(func(normalize.SubscriptionChange) {})
	require.NoError(t, err)
	_, err = sdk.Device.OnSMSSubscriptionChange(func(normalize.SMSSubscriptionChange) {})
	require.NoError(t, err)
	require.Equal(t, 1, rec.Count(bridge.MethodAddEmailSubscriptionObserver))
	require.Equal(t, 1, rec.Count(bridge.MethodAddSubscriptionObserver))
	require.Equal(t, 1, rec.Count(bridge.MethodAddSMSSubscriptionObserver))

	require.NoError(t, rec.Succeed(bridge.MethodAddEmailSubscriptionObserver, map[string]any{
		"to": map[string]any{"isSubscribed": true, "emailAddress": "a@b.c"},
	}))
	require.Len(t, email, 1)
	require.Nil(t, email[0].From)
	require.True(t, *email[0].To.IsEmailSubscribed)
}
