package jsapi

import (
	"bytes"
	"context"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dop251/goja"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/coachpo/pushbridge/internal/bridge"
	"github.com/coachpo/pushbridge/internal/bridge/bridgetest"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestRuntime(t *testing.T) (*Runtime, *bridgetest.Recorder, *syncBuffer) {
	t.Helper()
	rec := bridgetest.NewRecorder()
	logs := &syncBuffer{}
	rt, err := New(rec, WithLogger(log.New(logs, "", 0)))
	require.NoError(t, err)
	t.Cleanup(rt.Close)
	return rt, rec, logs
}

// eval runs src on the loop and exports its completion value. Because the
// loop is FIFO, callbacks fired before eval have already been handled.
func eval(t *testing.T, rt *Runtime, src string) any {
	t.Helper()
	v, err := rt.Execute(func(vm *goja.Runtime) (goja.Value, error) {
		return vm.RunString(src)
	})
	require.NoError(t, err)
	return v.Export()
}

func argsJSON(t *testing.T, args []any) string {
	t.Helper()
	data, err := json.Marshal(args)
	require.NoError(t, err)
	return string(data)
}

func TestCommandsReachTheNativeLayer(t *testing.T) {
	rt, rec, _ := newTestRuntime(t)

	require.NoError(t, rt.RunScript("commands.js", `
		OneSignal.login("ext-1");
		OneSignal.User.addTags({ level: 5, vip: true });
		OneSignal.User.removeTags(["level"]);
		OneSignal.InAppMessages.addTrigger("screen", "home");
		OneSignal.Notifications.removeNotification(42);
		OneSignal.Debug.setLogLevel(6);
		OneSignal.LiveActivities.setupDefault({ enablePushToStart: true });
	`))

	login, ok := rec.Last(bridge.MethodLogin)
	require.True(t, ok)
	require.Equal(t, []any{"ext-1"}, login.Args)

	tags, ok := rec.Last(bridge.MethodAddTags)
	require.True(t, ok)
	require.JSONEq(t, `[{"level":"5","vip":"true"}]`, argsJSON(t, tags.Args))

	removeTags, ok := rec.Last(bridge.MethodRemoveTags)
	require.True(t, ok)
	require.Equal(t, []any{"level"}, removeTags.Args)

	triggers, ok := rec.Last(bridge.MethodAddTriggers)
	require.True(t, ok)
	require.JSONEq(t, `[{"screen":"home"}]`, argsJSON(t, triggers.Args))

	remove, ok := rec.Last(bridge.MethodRemoveNotification)
	require.True(t, ok)
	require.Equal(t, []any{42}, remove.Args)

	level, ok := rec.Last(bridge.MethodSetLogLevel)
	require.True(t, ok)
	require.Equal(t, []any{6}, level.Args)

	setup, ok := rec.Last(bridge.MethodSetupDefaultLiveActivity)
	require.True(t, ok)
	require.JSONEq(t, `[{"enablePushToStart":true,"enablePushToUpdate":false}]`, argsJSON(t, setup.Args))
}

func TestPromisesSettleOnTheLoop(t *testing.T) {
	rt, rec, _ := newTestRuntime(t)
	rec.Respond(bridge.MethodGetTags, map[string]string{"level": "5"})
	rec.RespondFailure(bridge.MethodIsPaused, "not ready")

	require.NoError(t, rt.RunScript("promises.js", `
		var tags = null, pausedError = null;
		OneSignal.User.getTags().then(function (t) { tags = t; });
		OneSignal.InAppMessages.getPaused().catch(function (e) { pausedError = String(e); });
	`))

	require.Equal(t, "5", eval(t, rt, `tags.level`))
	require.Contains(t, eval(t, rt, `pausedError`), "not ready")
}

func TestPendingPromiseResolvesWhenNativeAnswers(t *testing.T) {
	rt, rec, _ := newTestRuntime(t)

	require.NoError(t, rt.RunScript("pending.js", `
		var shared;
		OneSignal.Location.isShared().then(function (v) { shared = v; });
	`))
	require.Nil(t, eval(t, rt, `shared === undefined ? null : shared`))

	require.NoError(t, rec.Succeed(bridge.MethodIsLocationShared, map[string]bool{"value": true}))
	require.Equal(t, true, eval(t, rt, `shared`))
}

func TestListenersAreRemovedByReference(t *testing.T) {
	rt, rec, _ := newTestRuntime(t)

	require.NoError(t, rt.RunScript("listeners.js", `
		var clicks = [];
		function first(e) { clicks.push("first:" + e.notification.notificationId); }
		function second(e) { clicks.push("second:" + e.result.actionId); }
		OneSignal.Notifications.addEventListener("click", first);
		OneSignal.Notifications.addEventListener("click", second);
	`))
	require.Equal(t, 1, rec.Count(bridge.MethodAddNotificationClickListener))

	payload := map[string]any{
		"notification": map[string]any{"notificationId": "n1"},
		"result":       map[string]any{"actionId": "open"},
	}
	require.NoError(t, rec.Succeed(bridge.MethodAddNotificationClickListener, payload))
	require.Equal(t, "first:n1,second:open", eval(t, rt, `clicks.join(",")`))

	require.NoError(t, rt.RunScript("remove.js", `
		OneSignal.Notifications.removeEventListener("click", first);
		OneSignal.Notifications.removeEventListener("click", function () {});
	`))
	require.NoError(t, rec.Succeed(bridge.MethodAddNotificationClickListener, payload))
	require.Equal(t, "first:n1,second:open,second:open", eval(t, rt, `clicks.join(",")`))
}

func TestThrowingListenerDoesNotStopOthers(t *testing.T) {
	rt, rec, logs := newTestRuntime(t)

	require.NoError(t, rt.RunScript("throwing.js", `
		var changes = 0;
		OneSignal.User.addEventListener("change", function () { throw new Error("boom"); });
		OneSignal.User.addEventListener("change", function () { changes++; });
	`))
	require.NoError(t, rec.Succeed(bridge.MethodAddUserStateObserver, map[string]any{
		"current": map[string]any{"onesignalId": "os-1"},
	}))

	require.EqualValues(t, 1, eval(t, rt, `changes`))
	require.Contains(t, logs.String(), "boom")
}

func TestForegroundPreventDefaultPrecedesProceed(t *testing.T) {
	rt, rec, _ := newTestRuntime(t)

	require.NoError(t, rt.RunScript("display.js", `
		var seen = "";
		OneSignal.Notifications.addEventListener("foregroundWillDisplay", function (event) {
			seen = event.getNotification().title;
			event.preventDefault();
		});
	`))
	require.NoError(t, rec.Succeed(bridge.MethodAddForegroundLifecycleListener, map[string]any{"notificationId": "n9", "title": "hello"}))

	require.Equal(t, "hello", eval(t, rt, `seen`))
	calls := rec.Calls()
	require.Equal(t, bridge.MethodProceedWithWillDisplay, calls[len(calls)-1].Method)
	require.Equal(t, bridge.MethodPreventDefault, calls[len(calls)-2].Method)
	require.Equal(t, []any{"n9", false}, calls[len(calls)-2].Args)
}

func TestPushSubscriptionAccessors(t *testing.T) {
	rt, rec, _ := newTestRuntime(t)
	rec.Respond(bridge.MethodInit, nil)
	rec.Respond(bridge.MethodGetPushSubscriptionID, "sub-1")
	rec.Respond(bridge.MethodGetPushSubscriptionToken, "tok")
	rec.Respond(bridge.MethodGetPushSubscriptionOptedIn, true)

	require.NoError(t, rt.RunScript("init.js", `OneSignal.initialize("app-1");`))

	// Seeding queries are issued from the init callback, so they land behind
	// this goroutine's first Execute.
	require.Eventually(t, func() bool {
		v, err := rt.Execute(func(vm *goja.Runtime) (goja.Value, error) {
			return vm.RunString(`OneSignal.User.pushSubscription.optedIn`)
		})
		return err == nil && v.ToBoolean()
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, "sub-1", eval(t, rt, `OneSignal.User.pushSubscription.id`))
	require.Equal(t, "tok", eval(t, rt, `OneSignal.User.pushSubscription.token`))
	require.Equal(t, true, eval(t, rt, `OneSignal.User.pushSubscription.optedIn`))
	require.Equal(t, "app-1", rt.SDK().AppID())
}

func TestUnknownEventKindIsLogged(t *testing.T) {
	rt, rec, logs := newTestRuntime(t)

	require.NoError(t, rt.RunScript("unknown.js", `OneSignal.Notifications.addEventListener("bogus", function () {});`))
	require.Contains(t, logs.String(), "bogus")
	require.Empty(t, rec.Calls())

	err := rt.RunScript("typeerror.js", `OneSignal.Notifications.addEventListener("click", 42);`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "listener must be a function")
}

func TestConsoleWritesToLogger(t *testing.T) {
	rt, _, logs := newTestRuntime(t)
	require.NoError(t, rt.RunScript("console.js", `console.warn("ready", { a: 1 }, 2);`))
	require.Contains(t, logs.String(), `console.warn: ready {"a":1} 2`)
}

func TestRunDirRunsScriptsInOrder(t *testing.T) {
	rt, rec, _ := newTestRuntime(t)
	dir := t.TempDir()
	files := map[string]string{
		"20-login.js": `OneSignal.login(externalId);`,
		"10-setup.js": `var externalId = "from-setup";`,
		"notes.txt":   `not javascript`,
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
	}

	ran, err := rt.RunDir(context.Background(), dir)
	require.NoError(t, err)
	require.Equal(t, []string{"10-setup.js", "20-login.js"}, ran)

	login, ok := rec.Last(bridge.MethodLogin)
	require.True(t, ok)
	require.Equal(t, []any{"from-setup"}, login.Args)
}

func TestRunDirStopsAtFirstFailure(t *testing.T) {
	rt, _, _ := newTestRuntime(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.js"), []byte(`var a = 1;`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.js"), []byte(`throw new Error("bad script");`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.js"), []byte(`var c = 1;`), 0o600))

	ran, err := rt.RunDir(context.Background(), dir)
	require.Error(t, err)
	require.Contains(t, err.Error(), "b.js")
	require.Equal(t, []string{"a.js"}, ran)
}

func TestCallbacksAfterCloseAreRejected(t *testing.T) {
	rec := bridgetest.NewRecorder()
	rt, err := New(rec, WithLogger(log.New(&syncBuffer{}, "", 0)))
	require.NoError(t, err)

	require.NoError(t, rt.RunScript("listen.js", `OneSignal.Notifications.addEventListener("permissionChange", function () {});`))
	rt.Close()
	rt.Close()

	require.Error(t, rec.Succeed(bridge.MethodAddPermissionObserver, true))
	_, err = rt.Execute(func(*goja.Runtime) (goja.Value, error) { return goja.Undefined(), nil })
	require.Error(t, err)
}

func TestNewRequiresInvoker(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}

func TestLooselyTypedArgumentsAreLoggedAndSent(t *testing.T) {
	rt, rec, logs := newTestRuntime(t)

	require.NoError(t, rt.RunScript("misuse.js", `
		OneSignal.InAppMessages.removeTriggers("k");
		OneSignal.User.removeTags(7);
		OneSignal.User.addTags("vip");
	`))

	require.Equal(t, 1, rec.Count(bridge.MethodRemoveTriggers))
	triggers, ok := rec.Last(bridge.MethodRemoveTriggers)
	require.True(t, ok)
	require.JSONEq(t, `[["k"]]`, argsJSON(t, triggers.Args))

	tags, ok := rec.Last(bridge.MethodRemoveTags)
	require.True(t, ok)
	require.JSONEq(t, `["7"]`, argsJSON(t, tags.Args))

	added, ok := rec.Last(bridge.MethodAddTags)
	require.True(t, ok)
	require.JSONEq(t, `[{}]`, argsJSON(t, added.Args))

	require.Contains(t, logs.String(), "must be an array")
	require.Contains(t, logs.String(), "must be an object")
}

func TestEmptyAdditionalDataReachesListeners(t *testing.T) {
	rt, rec, _ := newTestRuntime(t)

	require.NoError(t, rt.RunScript("data.js", `
		var data = [];
		OneSignal.Notifications.addEventListener("click", function (e) {
			data.push("additionalData" in e.notification ? JSON.stringify(e.notification.additionalData) : "absent");
		});
	`))
	require.NoError(t, rec.Succeed(bridge.MethodAddNotificationClickListener, map[string]any{
		"notification": map[string]any{"notificationId": "n1", "additionalData": map[string]any{}},
		"result":       map[string]any{},
	}))
	require.NoError(t, rec.Succeed(bridge.MethodAddNotificationClickListener, map[string]any{
		"notification": map[string]any{"notificationId": "n2"},
		"result":       map[string]any{},
	}))

	require.Equal(t, "{},absent", eval(t, rt, `data.join(",")`))
}

func TestOutcomeWithValueRejectsInvalidHandler(t *testing.T) {
	rt, rec, logs := newTestRuntime(t)

	require.NoError(t, rt.RunScript("outcomes.js", `
		OneSignal.Session.addOutcomeWithValue("purchase", 3, "not a function");
		OneSignal.Session.addOutcomeWithValue("purchase", 4, null);
	`))
	require.Zero(t, rec.Count(bridge.MethodAddOutcomeWithValue))
	require.Contains(t, logs.String(), "must provide a valid callback")

	require.NoError(t, rt.RunScript("outcomes-ok.js", `
		OneSignal.Session.addOutcomeWithValue("purchase", 5);
		OneSignal.Session.addOutcomeWithValue("purchase", 6, function () {});
	`))
	require.Equal(t, 2, rec.Count(bridge.MethodAddOutcomeWithValue))
}
