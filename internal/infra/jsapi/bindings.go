package jsapi

import (
	"fmt"
	"sort"

	"github.com/dop251/goja"

	"github.com/coachpo/pushbridge/internal/promise"
	"github.com/coachpo/pushbridge/pkg/onesignal"
)

type nativeFunc = func(goja.FunctionCall) goja.Value

// eventTarget is the listener surface every observable capability shares.
type eventTarget interface {
	AddEventListener(kind string, fn onesignal.Listener) (onesignal.ListenerID, error)
	RemoveEventListener(kind string, id onesignal.ListenerID) bool
}

func (r *Runtime) install() error {
	sdk := r.sdk
	root := r.vm.NewObject()

	funcs := map[string]nativeFunc{
		"initialize": func(call goja.FunctionCall) goja.Value {
			return promiseOf(r, sdk.Initialize(r.str(call, 0)))
		},
		"login": func(call goja.FunctionCall) goja.Value {
			sdk.Login(r.str(call, 0))
			return goja.Undefined()
		},
		"logout": func(goja.FunctionCall) goja.Value {
			sdk.Logout()
			return goja.Undefined()
		},
		"setConsentRequired": func(call goja.FunctionCall) goja.Value {
			sdk.SetConsentRequired(call.Argument(0).ToBoolean())
			return goja.Undefined()
		},
		"setConsentGiven": func(call goja.FunctionCall) goja.Value {
			sdk.SetConsentGiven(call.Argument(0).ToBoolean())
			return goja.Undefined()
		},
	}
	if err := r.define(root, funcs); err != nil {
		return err
	}

	namespaces := []struct {
		name  string
		build func() (*goja.Object, error)
	}{
		{"Debug", r.debugObject},
		{"Notifications", r.notificationsObject},
		{"InAppMessages", r.inAppMessagesObject},
		{"User", r.userObject},
		{"Session", r.sessionObject},
		{"Location", r.locationObject},
		{"LiveActivities", r.liveActivitiesObject},
	}
	for _, ns := range namespaces {
		obj, err := ns.build()
		if err != nil {
			return fmt.Errorf("%s: %w", ns.name, err)
		}
		if err := root.Set(ns.name, obj); err != nil {
			return fmt.Errorf("%s: %w", ns.name, err)
		}
	}

	if err := r.vm.Set("OneSignal", root); err != nil {
		return err
	}
	return r.vm.Set("console", r.console())
}

// define sets funcs on obj in a stable order.
func (r *Runtime) define(obj *goja.Object, funcs map[string]nativeFunc) error {
	names := make([]string, 0, len(funcs))
	for name := range funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := obj.Set(name, funcs[name]); err != nil {
			return fmt.Errorf("define %s: %w", name, err)
		}
	}
	return nil
}

func (r *Runtime) debugObject() (*goja.Object, error) {
	debug := r.sdk.Debug
	obj := r.vm.NewObject()
	return obj, r.define(obj, map[string]nativeFunc{
		"setLogLevel": func(call goja.FunctionCall) goja.Value {
			debug.SetLogLevel(onesignal.LogLevel(call.Argument(0).ToInteger()))
			return goja.Undefined()
		},
		"setAlertLevel": func(call goja.FunctionCall) goja.Value {
			debug.SetAlertLevel(onesignal.LogLevel(call.Argument(0).ToInteger()))
			return goja.Undefined()
		},
	})
}

func (r *Runtime) notificationsObject() (*goja.Object, error) {
	n := r.sdk.Notifications
	obj := r.vm.NewObject()
	funcs := r.eventFuncs("Notifications", n)
	funcs["hasPermission"] = func(goja.FunctionCall) goja.Value {
		return r.vm.ToValue(n.HasPermission())
	}
	funcs["getPermissionAsync"] = func(goja.FunctionCall) goja.Value {
		return promiseOf(r, n.GetPermissionAsync())
	}
	funcs["permissionNative"] = func(goja.FunctionCall) goja.Value {
		return promiseOf(r, n.PermissionNative())
	}
	funcs["requestPermission"] = func(call goja.FunctionCall) goja.Value {
		return promiseOf(r, n.RequestPermission(call.Argument(0).ToBoolean()))
	}
	funcs["canRequestPermission"] = func(goja.FunctionCall) goja.Value {
		return promiseOf(r, n.CanRequestPermission())
	}
	funcs["registerForProvisionalAuthorization"] = func(call goja.FunctionCall) goja.Value {
		var handler func(bool)
		if fn, ok := goja.AssertFunction(call.Argument(0)); ok {
			handler = func(accepted bool) { r.callJS("provisional authorization handler", fn, r.vm.ToValue(accepted)) }
		}
		n.RegisterForProvisionalAuthorization(handler)
		return goja.Undefined()
	}
	funcs["clearAll"] = func(goja.FunctionCall) goja.Value {
		n.ClearAll()
		return goja.Undefined()
	}
	funcs["removeNotification"] = func(call goja.FunctionCall) goja.Value {
		n.RemoveNotification(int(call.Argument(0).ToInteger()))
		return goja.Undefined()
	}
	funcs["removeGroupedNotifications"] = func(call goja.FunctionCall) goja.Value {
		n.RemoveGroupedNotifications(r.str(call, 0))
		return goja.Undefined()
	}
	return obj, r.define(obj, funcs)
}

func (r *Runtime) inAppMessagesObject() (*goja.Object, error) {
	m := r.sdk.InAppMessages
	obj := r.vm.NewObject()
	funcs := r.eventFuncs("InAppMessages", m)
	funcs["addTrigger"] = func(call goja.FunctionCall) goja.Value {
		m.AddTrigger(r.str(call, 0), call.Argument(1).Export())
		return goja.Undefined()
	}
	funcs["addTriggers"] = func(call goja.FunctionCall) goja.Value {
		m.AddTriggers(r.objectArg(call, 0))
		return goja.Undefined()
	}
	funcs["removeTrigger"] = func(call goja.FunctionCall) goja.Value {
		m.RemoveTrigger(r.str(call, 0))
		return goja.Undefined()
	}
	funcs["removeTriggers"] = func(call goja.FunctionCall) goja.Value {
		m.RemoveTriggers(r.stringsArg(call, 0))
		return goja.Undefined()
	}
	funcs["clearTriggers"] = func(goja.FunctionCall) goja.Value {
		m.ClearTriggers()
		return goja.Undefined()
	}
	funcs["setPaused"] = func(call goja.FunctionCall) goja.Value {
		m.SetPaused(call.Argument(0).ToBoolean())
		return goja.Undefined()
	}
	funcs["getPaused"] = func(goja.FunctionCall) goja.Value {
		return promiseOf(r, m.GetPaused())
	}
	return obj, r.define(obj, funcs)
}

func (r *Runtime) userObject() (*goja.Object, error) {
	u := r.sdk.User
	obj := r.vm.NewObject()
	funcs := r.eventFuncs("User", u)
	funcs["setLanguage"] = func(call goja.FunctionCall) goja.Value {
		u.SetLanguage(r.str(call, 0))
		return goja.Undefined()
	}
	funcs["addAlias"] = func(call goja.FunctionCall) goja.Value {
		u.AddAlias(r.str(call, 0), r.str(call, 1))
		return goja.Undefined()
	}
	funcs["addAliases"] = func(call goja.FunctionCall) goja.Value {
		aliases := make(map[string]string)
		for label, id := range r.objectArg(call, 0) {
			aliases[label] = fmt.Sprint(id)
		}
		u.AddAliases(aliases)
		return goja.Undefined()
	}
	funcs["removeAlias"] = func(call goja.FunctionCall) goja.Value {
		u.RemoveAlias(r.str(call, 0))
		return goja.Undefined()
	}
	funcs["removeAliases"] = func(call goja.FunctionCall) goja.Value {
		u.RemoveAliases(r.stringsArg(call, 0))
		return goja.Undefined()
	}
	funcs["addEmail"] = func(call goja.FunctionCall) goja.Value {
		u.AddEmail(r.str(call, 0))
		return goja.Undefined()
	}
	funcs["removeEmail"] = func(call goja.FunctionCall) goja.Value {
		u.RemoveEmail(r.str(call, 0))
		return goja.Undefined()
	}
	funcs["addSms"] = func(call goja.FunctionCall) goja.Value {
		u.AddSms(r.str(call, 0))
		return goja.Undefined()
	}
	funcs["removeSms"] = func(call goja.FunctionCall) goja.Value {
		u.RemoveSms(r.str(call, 0))
		return goja.Undefined()
	}
	funcs["addTag"] = func(call goja.FunctionCall) goja.Value {
		u.AddTag(r.str(call, 0), call.Argument(1).Export())
		return goja.Undefined()
	}
	funcs["addTags"] = func(call goja.FunctionCall) goja.Value {
		u.AddTags(r.objectArg(call, 0))
		return goja.Undefined()
	}
	funcs["removeTag"] = func(call goja.FunctionCall) goja.Value {
		u.RemoveTag(r.str(call, 0))
		return goja.Undefined()
	}
	funcs["removeTags"] = func(call goja.FunctionCall) goja.Value {
		u.RemoveTags(r.stringsArg(call, 0))
		return goja.Undefined()
	}
	funcs["getTags"] = func(goja.FunctionCall) goja.Value {
		return promiseOf(r, u.GetTags())
	}
	funcs["getOnesignalId"] = func(goja.FunctionCall) goja.Value {
		return promiseOf(r, u.GetOnesignalID())
	}
	funcs["getExternalId"] = func(goja.FunctionCall) goja.Value {
		return promiseOf(r, u.GetExternalID())
	}
	if err := r.define(obj, funcs); err != nil {
		return nil, err
	}
	sub, err := r.pushSubscriptionObject()
	if err != nil {
		return nil, fmt.Errorf("pushSubscription: %w", err)
	}
	return obj, obj.Set("pushSubscription", sub)
}

func (r *Runtime) pushSubscriptionObject() (*goja.Object, error) {
	p := r.sdk.User.PushSubscription
	obj := r.vm.NewObject()
	funcs := r.eventFuncs("User.pushSubscription", p)
	funcs["getIdAsync"] = func(goja.FunctionCall) goja.Value {
		return promiseOf(r, p.GetIDAsync())
	}
	funcs["getTokenAsync"] = func(goja.FunctionCall) goja.Value {
		return promiseOf(r, p.GetTokenAsync())
	}
	funcs["getOptedInAsync"] = func(goja.FunctionCall) goja.Value {
		return promiseOf(r, p.GetOptedInAsync())
	}
	funcs["optIn"] = func(goja.FunctionCall) goja.Value {
		p.OptIn()
		return goja.Undefined()
	}
	funcs["optOut"] = func(goja.FunctionCall) goja.Value {
		p.OptOut()
		return goja.Undefined()
	}
	if err := r.define(obj, funcs); err != nil {
		return nil, err
	}

	getters := []struct {
		name string
		get  func() any
	}{
		{"id", func() any { return p.ID() }},
		{"token", func() any { return p.Token() }},
		{"optedIn", func() any { return p.OptedIn() }},
	}
	for _, g := range getters {
		get := g.get
		getter := r.vm.ToValue(func(goja.FunctionCall) goja.Value { return r.toJS(get()) })
		if err := obj.DefineAccessorProperty(g.name, getter, nil, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
			return nil, fmt.Errorf("accessor %s: %w", g.name, err)
		}
	}
	return obj, nil
}

func (r *Runtime) sessionObject() (*goja.Object, error) {
	s := r.sdk.Session
	obj := r.vm.NewObject()
	return obj, r.define(obj, map[string]nativeFunc{
		"addOutcome": func(call goja.FunctionCall) goja.Value {
			s.AddOutcome(r.str(call, 0), r.outcomeHandler(call.Argument(1)))
			return goja.Undefined()
		},
		"addUniqueOutcome": func(call goja.FunctionCall) goja.Value {
			s.AddUniqueOutcome(r.str(call, 0), r.outcomeHandler(call.Argument(1)))
			return goja.Undefined()
		},
		"addOutcomeWithValue": func(call goja.FunctionCall) goja.Value {
			handler := call.Argument(2)
			if _, ok := goja.AssertFunction(handler); !ok && !goja.IsUndefined(handler) {
				r.logger.Printf("jsapi: Session.addOutcomeWithValue: must provide a valid callback")
				return goja.Undefined()
			}
			s.AddOutcomeWithValue(r.str(call, 0), call.Argument(1).Export(), r.outcomeHandler(handler))
			return goja.Undefined()
		},
	})
}

func (r *Runtime) outcomeHandler(v goja.Value) func(onesignal.OutcomeEvent) {
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return nil
	}
	return func(ev onesignal.OutcomeEvent) {
		r.callJS("outcome handler", fn, r.toJS(ev))
	}
}

func (r *Runtime) locationObject() (*goja.Object, error) {
	l := r.sdk.Location
	obj := r.vm.NewObject()
	return obj, r.define(obj, map[string]nativeFunc{
		"requestPermission": func(goja.FunctionCall) goja.Value {
			l.RequestPermission()
			return goja.Undefined()
		},
		"setShared": func(call goja.FunctionCall) goja.Value {
			l.SetShared(call.Argument(0).ToBoolean())
			return goja.Undefined()
		},
		"isShared": func(goja.FunctionCall) goja.Value {
			return promiseOf(r, l.IsShared())
		},
	})
}

func (r *Runtime) liveActivitiesObject() (*goja.Object, error) {
	l := r.sdk.LiveActivities
	obj := r.vm.NewObject()
	return obj, r.define(obj, map[string]nativeFunc{
		"enter": func(call goja.FunctionCall) goja.Value {
			return promiseOf(r, l.Enter(r.str(call, 0), r.str(call, 1)))
		},
		"exit": func(call goja.FunctionCall) goja.Value {
			return promiseOf(r, l.Exit(r.str(call, 0)))
		},
		"setPushToStartToken": func(call goja.FunctionCall) goja.Value {
			l.SetPushToStartToken(r.str(call, 0), r.str(call, 1))
			return goja.Undefined()
		},
		"removePushToStartToken": func(call goja.FunctionCall) goja.Value {
			l.RemovePushToStartToken(r.str(call, 0))
			return goja.Undefined()
		},
		"setupDefault": func(call goja.FunctionCall) goja.Value {
			var opts *onesignal.DefaultLiveActivityOptions
			if arg := call.Argument(0); !goja.IsUndefined(arg) && !goja.IsNull(arg) {
				o := arg.ToObject(r.vm)
				opts = &onesignal.DefaultLiveActivityOptions{
					EnablePushToStart:  truthy(o.Get("enablePushToStart")),
					EnablePushToUpdate: truthy(o.Get("enablePushToUpdate")),
				}
			}
			l.SetupDefault(opts)
			return goja.Undefined()
		},
		"startDefault": func(call goja.FunctionCall) goja.Value {
			l.StartDefault(r.str(call, 0), r.objectArg(call, 1), r.objectArg(call, 2))
			return goja.Undefined()
		},
	})
}

// eventFuncs returns addEventListener and removeEventListener bound to target.
// Removal matches the function reference passed to addEventListener.
func (r *Runtime) eventFuncs(scope string, target eventTarget) map[string]nativeFunc {
	return map[string]nativeFunc{
		"addEventListener": func(call goja.FunctionCall) goja.Value {
			kind := r.str(call, 0)
			listener := call.Argument(1)
			fn, ok := goja.AssertFunction(listener)
			if !ok {
				panic(r.vm.NewTypeError("%s.addEventListener: listener must be a function", scope))
			}
			id, err := target.AddEventListener(kind, func(event any) {
				r.callJS(scope+" "+kind+" listener", fn, r.eventValue(event))
			})
			if err != nil {
				r.logger.Printf("jsapi: %s.addEventListener: %v", scope, err)
				return goja.Undefined()
			}
			key := scope + "/" + kind
			r.listeners[key] = append(r.listeners[key], jsListener{fn: listener, id: id})
			return goja.Undefined()
		},
		"removeEventListener": func(call goja.FunctionCall) goja.Value {
			kind := r.str(call, 0)
			listener := call.Argument(1)
			key := scope + "/" + kind
			entries := r.listeners[key]
			for i, entry := range entries {
				if !entry.fn.SameAs(listener) {
					continue
				}
				target.RemoveEventListener(kind, entry.id)
				r.listeners[key] = append(entries[:i:i], entries[i+1:]...)
				break
			}
			return goja.Undefined()
		},
	}
}

// eventValue converts a dispatched event to JS. Foreground display events
// carry their control methods.
func (r *Runtime) eventValue(event any) goja.Value {
	ev, ok := event.(*onesignal.WillDisplayEvent)
	if !ok {
		return r.toJS(event)
	}
	obj := r.vm.NewObject()
	notification := r.toJS(ev.Notification())
	_ = obj.Set("notification", notification)
	_ = r.define(obj, map[string]nativeFunc{
		"getNotification": func(goja.FunctionCall) goja.Value {
			return notification
		},
		"preventDefault": func(call goja.FunctionCall) goja.Value {
			ev.PreventDefault(call.Argument(0).ToBoolean())
			return goja.Undefined()
		},
		"display": func(goja.FunctionCall) goja.Value {
			ev.Display()
			return goja.Undefined()
		},
	})
	return obj
}

func (r *Runtime) callJS(what string, fn goja.Callable, args ...goja.Value) {
	if _, err := fn(goja.Undefined(), args...); err != nil {
		r.logger.Printf("jsapi: %s: %v", what, err)
	}
}

// promiseOf returns a JS promise settled with fut. Futures settle on the loop
// because every native callback is posted there.
func promiseOf[T any](r *Runtime, fut *promise.Future[T]) goja.Value {
	var resolve, reject goja.Callable
	executor := r.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		resolve, _ = goja.AssertFunction(call.Argument(0))
		reject, _ = goja.AssertFunction(call.Argument(1))
		return goja.Undefined()
	})
	p, err := r.vm.New(r.vm.Get("Promise"), executor)
	if err != nil {
		panic(r.vm.NewGoError(err))
	}
	fut.Then(func(value T, err error) {
		if err != nil {
			r.callJS("reject", reject, r.vm.NewGoError(err))
			return
		}
		r.callJS("resolve", resolve, r.toJS(value))
	})
	return p
}

func truthy(v goja.Value) bool {
	return v != nil && v.ToBoolean()
}

func (r *Runtime) str(call goja.FunctionCall, i int) string {
	v := call.Argument(i)
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	return v.String()
}

func (r *Runtime) objectArg(call goja.FunctionCall, i int) map[string]any {
	v := call.Argument(i)
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	out, ok := v.Export().(map[string]any)
	if !ok {
		r.logger.Printf("jsapi: argument %d must be an object, got %s", i, v.String())
		return map[string]any{}
	}
	return out
}

func (r *Runtime) stringsArg(call goja.FunctionCall, i int) []string {
	v := call.Argument(i)
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	items, ok := v.Export().([]any)
	if !ok {
		r.logger.Printf("jsapi: argument %d must be an array, got %s", i, v.String())
		return []string{v.String()}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, fmt.Sprint(item))
	}
	return out
}
