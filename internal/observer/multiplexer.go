// Package observer fans one native registration per channel out to many listeners.
package observer

import (
	"context"
	"fmt"
	"log"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/coachpo/pushbridge/errs"
	"github.com/coachpo/pushbridge/internal/bridge"
	"github.com/coachpo/pushbridge/internal/infra/telemetry"
)

const component = "observer"

// ErrUnknownEventKind is returned when a listener is added for an undeclared kind.
var ErrUnknownEventKind = errs.New(component, errs.CodeUnknownEvent)

// Listener receives decoded events.
type Listener func(event any)

// Decoder normalizes one raw native payload into the event handed to listeners.
type Decoder func(json.RawMessage) (any, error)

// ListenerID identifies an added listener for later removal.
type ListenerID uint64

// RouteOption customises a declared event kind.
type RouteOption func(*route)

// AfterDispatch runs fn once after every listener has seen the event.
func AfterDispatch(fn func(event any)) RouteOption {
	return func(r *route) {
		r.after = fn
	}
}

// WithArgs sets the argument list sent with the registration call.
func WithArgs(args []any) RouteOption {
	return func(r *route) {
		r.args = args
	}
}

type entry struct {
	id ListenerID
	fn Listener
}

type route struct {
	kind    string
	channel bridge.Channel
	decode  Decoder
	after   func(any)
	args    []any

	registered bool
	listeners  []entry
}

// Multiplexer owns the listener sets of one capability set. Each declared
// kind maps to a native channel that is registered at most once, on the
// first Add for that kind.
type Multiplexer struct {
	inv    bridge.Invoker
	logger *log.Logger

	mu     sync.Mutex
	routes map[string]*route
	nextID ListenerID

	registrations metric.Int64Counter
	dispatches    metric.Int64Counter
	failures      metric.Int64Counter
	fanout        metric.Int64Histogram
}

// New constructs a multiplexer issuing registrations through inv.
func New(inv bridge.Invoker, logger *log.Logger) *Multiplexer {
	if logger == nil {
		logger = log.Default()
	}
	m := &Multiplexer{
		inv:    inv,
		logger: logger,
		routes: make(map[string]*route),
	}

	meter := otel.Meter("observer")
	m.registrations, _ = meter.Int64Counter("observer.registrations",
		metric.WithDescription("Number of native observer registrations"),
		metric.WithUnit("{registration}"))
	m.dispatches, _ = meter.Int64Counter("observer.dispatches",
		metric.WithDescription("Number of native events dispatched to listeners"),
		metric.WithUnit("{event}"))
	m.failures, _ = meter.Int64Counter("observer.listener.failures",
		metric.WithDescription("Number of listener panics and undecodable events"),
		metric.WithUnit("{error}"))
	m.fanout, _ = meter.Int64Histogram("observer.fanout.size",
		metric.WithDescription("Number of listeners per dispatch"),
		metric.WithUnit("{listener}"))
	return m
}

// Route declares kind as delivered over ch. Declaring a kind twice replaces
// the earlier declaration only while it has not been registered.
func (m *Multiplexer) Route(kind string, ch bridge.Channel, decode Decoder, opts ...RouteOption) {
	r := &route{kind: kind, channel: ch, decode: decode}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.routes[kind]; ok && existing.registered {
		return
	}
	m.routes[kind] = r
}

// Add appends fn to the listeners of kind. The first Add for a kind performs
// the native registration; later adds never do.
func (m *Multiplexer) Add(kind string, fn Listener) (ListenerID, error) {
	if fn == nil {
		return 0, errs.New(component, errs.CodeInvalid,
			errs.WithMessage("listener required"),
			errs.WithField("kind", kind))
	}

	m.mu.Lock()
	r, ok := m.routes[kind]
	if !ok {
		m.mu.Unlock()
		m.logger.Printf("observer: ignoring listener for unknown event kind %q", kind)
		return 0, fmt.Errorf("add %q: %w", kind, ErrUnknownEventKind)
	}
	m.nextID++
	id := m.nextID
	r.listeners = append(r.listeners, entry{id: id, fn: fn})
	register := !r.registered
	r.registered = true
	m.mu.Unlock()

	if register {
		m.register(r)
	}
	return id, nil
}

// Remove deletes the listener with id from kind. It never calls native.
func (m *Multiplexer) Remove(kind string, id ListenerID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.routes[kind]
	if !ok {
		return false
	}
	for i, e := range r.listeners {
		if e.id == id {
			r.listeners = append(r.listeners[:i:i], r.listeners[i+1:]...)
			return true
		}
	}
	return false
}

// Len reports how many listeners kind currently holds.
func (m *Multiplexer) Len(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.routes[kind]; ok {
		return len(r.listeners)
	}
	return 0
}

// Registered reports whether the native registration for kind was issued.
func (m *Multiplexer) Registered(kind string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.routes[kind]
	return ok && r.registered
}

func (m *Multiplexer) register(r *route) {
	if m.registrations != nil {
		m.registrations.Add(context.Background(), 1, metric.WithAttributes(
			telemetry.EventAttributes(telemetry.Environment(), r.kind, r.channel.Method)...))
	}
	onSuccess := func(payload json.RawMessage) error {
		return m.dispatch(r, payload)
	}
	onFailure := func(payload json.RawMessage) error {
		m.logger.Printf("observer: registration %s for %q failed: %s", r.channel, r.kind, string(payload))
		return nil
	}
	r.channel.Call(m.inv, onSuccess, onFailure, r.args)
}

func (m *Multiplexer) dispatch(r *route, payload json.RawMessage) error {
	ctx := context.Background()
	attrs := metric.WithAttributes(telemetry.EventAttributes(telemetry.Environment(), r.kind, r.channel.Method)...)

	event, err := r.decode(payload)
	if err != nil {
		if m.failures != nil {
			m.failures.Add(ctx, 1, attrs)
		}
		return errs.New(component, errs.CodeMalformed,
			errs.WithChannel(r.channel.Module, r.channel.Method),
			errs.WithMessage("decode event"),
			errs.WithField("kind", r.kind),
			errs.WithPayload(payload),
			errs.WithCause(err))
	}

	m.mu.Lock()
	listeners := make([]entry, len(r.listeners))
	copy(listeners, r.listeners)
	m.mu.Unlock()

	if m.dispatches != nil {
		m.dispatches.Add(ctx, 1, attrs)
	}
	if m.fanout != nil {
		m.fanout.Record(ctx, int64(len(listeners)), attrs)
	}

	for _, l := range listeners {
		var catcher panics.Catcher
		catcher.Try(func() { l.fn(event) })
		if rec := catcher.Recovered(); rec != nil {
			m.logger.Printf("observer: listener %d for %q panicked: %v", l.id, r.kind, rec.Value)
			if m.failures != nil {
				m.failures.Add(ctx, 1, attrs)
			}
		}
	}

	if r.after != nil {
		r.after(event)
	}
	return nil
}

// Subscribe adds a typed listener. Events of another type are dropped.
func Subscribe[T any](m *Multiplexer, kind string, fn func(T)) (ListenerID, error) {
	if fn == nil {
		return m.Add(kind, nil)
	}
	return m.Add(kind, func(event any) {
		if v, ok := event.(T); ok {
			fn(v)
		}
	})
}

// Decode adapts a typed constructor to a Decoder.
func Decode[T any](fn func(json.RawMessage) (T, error)) Decoder {
	return func(raw json.RawMessage) (any, error) {
		v, err := fn(raw)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
}
