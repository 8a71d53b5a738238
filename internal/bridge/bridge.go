// Package bridge defines the native call primitive the capability layer is built on.
//
// A native call takes a success callback, a failure callback, a module name, a
// method name and positional JSON-serialisable arguments. Either callback may
// fire zero, one or (for registration channels) many times. Issuing a new call
// on the same channel replaces the callbacks the native side holds for it.
package bridge

import (
	json "github.com/goccy/go-json"
)

// Module is the native module every capability talks to.
const Module = "OneSignalPush"

// Callback receives a raw native payload. A returned error is reported back to
// the transport that delivered the payload.
type Callback func(payload json.RawMessage) error

// Invoker is the native call primitive. Implementations must not block on the
// native response. A nil args slice means the call carries no argument list,
// which is distinct from an empty one.
type Invoker interface {
	Invoke(onSuccess, onFailure Callback, module, method string, args []any)
}

// InvokerFunc adapts a plain function to Invoker.
type InvokerFunc func(onSuccess, onFailure Callback, module, method string, args []any)

// Invoke implements Invoker.
func (f InvokerFunc) Invoke(onSuccess, onFailure Callback, module, method string, args []any) {
	f(onSuccess, onFailure, module, method, args)
}

// Channel identifies one native registration point.
type Channel struct {
	Module string
	Method string
}

// Native returns the channel for method on the OneSignalPush module.
func Native(method string) Channel {
	return Channel{Module: Module, Method: method}
}

func (c Channel) String() string {
	return c.Module + "." + c.Method
}

// Call issues a native call on the channel.
func (c Channel) Call(inv Invoker, onSuccess, onFailure Callback, args []any) {
	if onSuccess == nil {
		onSuccess = Noop
	}
	if onFailure == nil {
		onFailure = Noop
	}
	inv.Invoke(onSuccess, onFailure, c.Module, c.Method, args)
}

// Noop ignores the payload.
func Noop(json.RawMessage) error { return nil }

// NoArgs is the explicit empty argument list.
func NoArgs() []any { return []any{} }
