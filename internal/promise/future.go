// Package promise turns native success/failure callbacks into single-settlement futures.
package promise

import (
	"context"
	"log"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/coachpo/pushbridge/errs"
	"github.com/coachpo/pushbridge/internal/bridge"
)

const component = "promise"

// Decoder converts a raw success payload into the resolved value.
type Decoder[T any] func(json.RawMessage) (T, error)

// Future holds the eventual outcome of one native query. It settles at most
// once; later callbacks for the same call are ignored.
type Future[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error

	mu    sync.Mutex
	thens []func(T, error)
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved returns an already settled future carrying value.
func Resolved[T any](value T) *Future[T] {
	f := newFuture[T]()
	f.settle(value, nil)
	return f
}

// Rejected returns an already settled future carrying err.
func Rejected[T any](err error) *Future[T] {
	f := newFuture[T]()
	var zero T
	f.settle(zero, err)
	return f
}

func (f *Future[T]) settle(value T, err error) bool {
	settled := false
	f.once.Do(func() {
		f.mu.Lock()
		f.value = value
		f.err = err
		close(f.done)
		thens := f.thens
		f.thens = nil
		f.mu.Unlock()
		for _, fn := range thens {
			fn(value, err)
		}
		settled = true
	})
	return settled
}

// Done is closed once the future settles.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the future settles or ctx ends. Ending ctx only stops the
// wait; the native call stays outstanding.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Peek reports the outcome without blocking. ok is false while pending.
func (f *Future[T]) Peek() (value T, err error, ok bool) {
	select {
	case <-f.done:
		return f.value, f.err, true
	default:
		var zero T
		return zero, nil, false
	}
}

// Then runs fn with the outcome once the future settles. fn runs on the
// goroutine that settles the future, or immediately if already settled.
// Callbacks run in registration order.
func (f *Future[T]) Then(fn func(T, error)) {
	if fn == nil {
		return
	}
	f.mu.Lock()
	select {
	case <-f.done:
		f.mu.Unlock()
		fn(f.value, f.err)
	default:
		f.thens = append(f.thens, fn)
		f.mu.Unlock()
	}
}

// Query issues exactly one native call on ch and returns a future settled by
// its first callback. A success payload that fails to decode rejects the
// future and the decode error is returned to the transport.
func Query[T any](inv bridge.Invoker, ch bridge.Channel, args []any, decode Decoder[T]) *Future[T] {
	f := newFuture[T]()
	onSuccess := func(payload json.RawMessage) error {
		value, err := decode(payload)
		if err != nil {
			wrapped := errs.New(component, errs.CodeMalformed,
				errs.WithChannel(ch.Module, ch.Method),
				errs.WithMessage("decode query result"),
				errs.WithPayload(payload),
				errs.WithCause(err),
			)
			f.settle(value, wrapped)
			return wrapped
		}
		f.settle(value, nil)
		return nil
	}
	onFailure := func(payload json.RawMessage) error {
		var zero T
		f.settle(zero, errs.New(component, errs.CodeNative,
			errs.WithChannel(ch.Module, ch.Method),
			errs.WithMessage("native call failed"),
			errs.WithPayload(payload),
		))
		return nil
	}
	ch.Call(inv, onSuccess, onFailure, args)
	return f
}

// Command issues a fire-and-forget native call. The outcome is ignored.
func Command(inv bridge.Invoker, ch bridge.Channel, args []any) {
	ch.Call(inv, bridge.Noop, bridge.Noop, args)
}

// Notify issues a native call whose success payload is handed to handler
// when both handler is set and the payload decodes. Failures are ignored.
func Notify[T any](inv bridge.Invoker, ch bridge.Channel, args []any, decode Decoder[T], handler func(T), logger *log.Logger) {
	onSuccess := func(payload json.RawMessage) error {
		if handler == nil {
			return nil
		}
		value, err := decode(payload)
		if err != nil {
			if logger != nil {
				logger.Printf("%s: decode notify result: %v", ch, err)
			}
			return err
		}
		handler(value)
		return nil
	}
	ch.Call(inv, onSuccess, bridge.Noop, args)
}
