// Package jsapi exposes the plugin surface to JavaScript through an embedded
// goja runtime.
//
// The runtime owns a single loop goroutine. Every native callback is posted to
// that loop before it reaches the capability layer, so listeners, promise
// settlement and script code never run concurrently.
package jsapi

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dop251/goja"
	json "github.com/goccy/go-json"
	"github.com/sourcegraph/conc/panics"

	"github.com/coachpo/pushbridge/errs"
	"github.com/coachpo/pushbridge/internal/bridge"
	"github.com/coachpo/pushbridge/pkg/onesignal"
)

// Option customises a Runtime.
type Option func(*Runtime)

// WithLogger routes console output and runtime diagnostics to logger.
func WithLogger(logger *log.Logger) Option {
	return func(r *Runtime) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Runtime is a goja VM with a global OneSignal object.
type Runtime struct {
	vm     *goja.Runtime
	sdk    *onesignal.OneSignal
	logger *log.Logger

	mu     sync.Mutex
	tasks  []func()
	closed bool
	wake   chan struct{}
	done   chan struct{}
	once   sync.Once

	// listeners is touched only on the loop.
	listeners map[string][]jsListener
}

type jsListener struct {
	fn goja.Value
	id onesignal.ListenerID
}

// New builds a runtime whose OneSignal object talks to inv.
func New(inv bridge.Invoker, opts ...Option) (*Runtime, error) {
	if inv == nil {
		return nil, errs.New("jsapi", errs.CodeInvalid, errs.WithMessage("invoker required"))
	}
	r := &Runtime{
		vm:        goja.New(),
		logger:    log.Default(),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		listeners: make(map[string][]jsListener),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.sdk = onesignal.New(loopInvoker{r: r, next: inv}, onesignal.WithLogger(r.logger))
	r.vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	if err := r.install(); err != nil {
		return nil, fmt.Errorf("jsapi: install globals: %w", err)
	}
	go r.loop()
	return r, nil
}

// SDK returns the plugin the OneSignal global is bound to.
func (r *Runtime) SDK() *onesignal.OneSignal {
	return r.sdk
}

func (r *Runtime) loop() {
	defer close(r.done)
	for {
		r.mu.Lock()
		for len(r.tasks) == 0 && !r.closed {
			r.mu.Unlock()
			<-r.wake
			r.mu.Lock()
		}
		if len(r.tasks) == 0 {
			r.mu.Unlock()
			return
		}
		task := r.tasks[0]
		r.tasks[0] = nil
		r.tasks = r.tasks[1:]
		r.mu.Unlock()

		var catcher panics.Catcher
		catcher.Try(task)
		if recovered := catcher.Recovered(); recovered != nil {
			r.logger.Printf("jsapi: task panicked: %v", recovered.Value)
		}
	}
}

// post queues task for the loop. The queue is unbounded so native callbacks
// never block their transport.
func (r *Runtime) post(task func()) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	r.tasks = append(r.tasks, task)
	r.mu.Unlock()
	select {
	case r.wake <- struct{}{}:
	default:
	}
	return true
}

type result struct {
	value goja.Value
	err   error
}

// Execute runs fn on the loop and waits for it. It must not be called from
// code already running on the loop.
func (r *Runtime) Execute(fn func(vm *goja.Runtime) (goja.Value, error)) (goja.Value, error) {
	if fn == nil {
		return nil, errs.New("jsapi", errs.CodeInvalid, errs.WithMessage("callback required"))
	}
	wait := make(chan result, 1)
	ok := r.post(func() {
		var catcher panics.Catcher
		var out result
		catcher.Try(func() { out.value, out.err = fn(r.vm) })
		if recovered := catcher.Recovered(); recovered != nil {
			out.err = recovered.AsError()
		}
		wait <- out
	})
	if !ok {
		return nil, errs.New("jsapi", errs.CodeUnavailable, errs.WithMessage("runtime closed"))
	}
	outcome := <-wait
	return outcome.value, outcome.err
}

// RunScript evaluates src under name.
func (r *Runtime) RunScript(name, src string) error {
	_, err := r.Execute(func(vm *goja.Runtime) (goja.Value, error) {
		return vm.RunScript(name, src)
	})
	if err != nil {
		return fmt.Errorf("jsapi: run %s: %w", name, err)
	}
	return nil
}

// RunDir evaluates every .js file in dir in lexical order and returns the
// names that ran.
func (r *Runtime) RunDir(ctx context.Context, dir string) ([]string, error) {
	clean := filepath.Clean(strings.TrimSpace(dir))
	entries, err := os.ReadDir(clean)
	if err != nil {
		return nil, fmt.Errorf("jsapi: read directory %q: %w", clean, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".js") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	ran := make([]string, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return ran, fmt.Errorf("jsapi: run canceled: %w", err)
		}
		src, err := os.ReadFile(filepath.Join(clean, name)) // #nosec G304 -- operator controlled directory.
		if err != nil {
			return ran, fmt.Errorf("jsapi: read %s: %w", name, err)
		}
		if err := r.RunScript(name, string(src)); err != nil {
			return ran, err
		}
		ran = append(ran, name)
	}
	return ran, nil
}

// Close stops accepting work, drains queued tasks and stops the loop.
func (r *Runtime) Close() {
	r.once.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()
		select {
		case r.wake <- struct{}{}:
		default:
		}
		<-r.done
	})
}

// loopInvoker posts every native callback to the runtime loop.
type loopInvoker struct {
	r    *Runtime
	next bridge.Invoker
}

func (l loopInvoker) Invoke(onSuccess, onFailure bridge.Callback, module, method string, args []any) {
	l.next.Invoke(l.r.onLoop(method, onSuccess), l.r.onLoop(method, onFailure), module, method, args)
}

func (r *Runtime) onLoop(method string, cb bridge.Callback) bridge.Callback {
	if cb == nil {
		cb = bridge.Noop
	}
	return func(payload json.RawMessage) error {
		owned := append(json.RawMessage(nil), payload...)
		posted := r.post(func() {
			if err := cb(owned); err != nil {
				r.logger.Printf("jsapi: %s callback: %v", method, err)
			}
		})
		if !posted {
			return errs.New("jsapi", errs.CodeUnavailable, errs.WithMessage("runtime closed"))
		}
		return nil
	}
}

// toJS converts v to plain JS values through its JSON encoding, so absent
// optional fields stay absent.
func (r *Runtime) toJS(v any) goja.Value {
	data, err := json.Marshal(v)
	if err != nil {
		r.logger.Printf("jsapi: encode %T: %v", v, err)
		return goja.Undefined()
	}
	var plain any
	if err := json.Unmarshal(data, &plain); err != nil {
		r.logger.Printf("jsapi: decode %T: %v", v, err)
		return goja.Undefined()
	}
	return r.vm.ToValue(plain)
}

func (r *Runtime) console() *goja.Object {
	console := r.vm.NewObject()
	for _, level := range []string{"log", "info", "warn", "error", "debug"} {
		level := level
		_ = console.Set(level, func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, arg := range call.Arguments {
				parts[i] = r.describe(arg)
			}
			r.logger.Printf("console.%s: %s", level, strings.Join(parts, " "))
			return goja.Undefined()
		})
	}
	return console
}

func (r *Runtime) describe(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return fmt.Sprint(v)
	}
	if obj, ok := v.(*goja.Object); ok {
		if _, callable := goja.AssertFunction(obj); !callable {
			if data, err := obj.MarshalJSON(); err == nil {
				return string(data)
			}
		}
	}
	return v.String()
}
