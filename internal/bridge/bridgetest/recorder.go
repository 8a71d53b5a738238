// Package bridgetest provides a recording native layer for tests.
package bridgetest

import (
	"fmt"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/coachpo/pushbridge/internal/bridge"
)

// Call is one recorded native invocation.
type Call struct {
	Module    string
	Method    string
	Args      []any
	OnSuccess bridge.Callback
	OnFailure bridge.Callback
}

type response struct {
	payload json.RawMessage
	failure bool
}

// Recorder implements bridge.Invoker. Like the native side, it keeps only the
// most recent callback pair per method; firing an event reaches that pair.
type Recorder struct {
	mu        sync.Mutex
	calls     []Call
	latest    map[string]Call
	responses map[string]response
	errors    []error
}

// NewRecorder constructs an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		latest:    make(map[string]Call),
		responses: make(map[string]response),
	}
}

// Invoke records the call and answers it synchronously when a canned response
// was configured for the method.
func (r *Recorder) Invoke(onSuccess, onFailure bridge.Callback, module, method string, args []any) {
	call := Call{Module: module, Method: method, Args: args, OnSuccess: onSuccess, OnFailure: onFailure}
	r.mu.Lock()
	r.calls = append(r.calls, call)
	r.latest[method] = call
	resp, ok := r.responses[method]
	r.mu.Unlock()
	if !ok {
		return
	}
	cb := onSuccess
	if resp.failure {
		cb = onFailure
	}
	r.deliver(cb, resp.payload)
}

// Respond makes every later call to method succeed immediately with payload.
func (r *Recorder) Respond(method string, payload any) {
	r.setResponse(method, payload, false)
}

// RespondFailure makes every later call to method fail immediately with payload.
func (r *Recorder) RespondFailure(method string, payload any) {
	r.setResponse(method, payload, true)
}

func (r *Recorder) setResponse(method string, payload any, failure bool) {
	raw := mustMarshal(payload)
	r.mu.Lock()
	r.responses[method] = response{payload: raw, failure: failure}
	r.mu.Unlock()
}

// Succeed fires the success callback currently held for method.
func (r *Recorder) Succeed(method string, payload any) error {
	return r.fire(method, payload, false)
}

// Fail fires the failure callback currently held for method.
func (r *Recorder) Fail(method string, payload any) error {
	return r.fire(method, payload, true)
}

// SucceedRaw fires the success callback with an unprocessed payload.
func (r *Recorder) SucceedRaw(method string, payload []byte) error {
	call, ok := r.Last(method)
	if !ok {
		return fmt.Errorf("bridgetest: no registration for %s", method)
	}
	return r.deliver(call.OnSuccess, payload)
}

func (r *Recorder) fire(method string, payload any, failure bool) error {
	call, ok := r.Last(method)
	if !ok {
		return fmt.Errorf("bridgetest: no registration for %s", method)
	}
	cb := call.OnSuccess
	if failure {
		cb = call.OnFailure
	}
	return r.deliver(cb, mustMarshal(payload))
}

func (r *Recorder) deliver(cb bridge.Callback, payload json.RawMessage) error {
	if cb == nil {
		return nil
	}
	err := cb(payload)
	if err != nil {
		r.mu.Lock()
		r.errors = append(r.errors, err)
		r.mu.Unlock()
	}
	return err
}

// Calls returns every recorded call in order.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// CallsTo returns the recorded calls for method in order.
func (r *Recorder) CallsTo(method string) []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Call
	for _, c := range r.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Count returns how many times method was invoked.
func (r *Recorder) Count(method string) int {
	return len(r.CallsTo(method))
}

// Last returns the most recent call for method.
func (r *Recorder) Last(method string) (Call, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.latest[method]
	return c, ok
}

// Errors returns errors callbacks reported back to the recorder.
func (r *Recorder) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]error, len(r.errors))
	copy(out, r.errors)
	return out
}

// Reset forgets recorded calls and errors but keeps canned responses.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.calls = nil
	r.errors = nil
	r.mu.Unlock()
}

func mustMarshal(payload any) json.RawMessage {
	if raw, ok := payload.(json.RawMessage); ok {
		return raw
	}
	data, err := json.Marshal(payload)
	if err != nil {
		panic(fmt.Sprintf("bridgetest: marshal payload: %v", err))
	}
	return data
}
