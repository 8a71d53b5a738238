// Package wsnative implements the native call primitive over a websocket to a
// native host process.
//
// Every call is written as a request frame and answered by one or more result
// frames carrying the same id. A result with keep set leaves the call's
// callbacks registered for later results, which is how observer channels
// stream events. Calls that are still registered when the connection drops are
// written again once the transport reconnects.
package wsnative

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"

	"github.com/coachpo/pushbridge/errs"
	"github.com/coachpo/pushbridge/internal/bridge"
	"github.com/coachpo/pushbridge/internal/infra/telemetry"
)

const (
	defaultDialTimeout          = 10 * time.Second
	defaultReconnectInterval    = 500 * time.Millisecond
	defaultMaxReconnectInterval = 20 * time.Second
	defaultPingInterval         = 20 * time.Second
	defaultReadLimit            = 2 * 1024 * 1024
	pingTimeout                 = 5 * time.Second
	writeTimeout                = 5 * time.Second
	outboundQueue               = 1024
)

// Result statuses.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Config controls the connection to the native host.
type Config struct {
	URL                  string
	DialTimeout          time.Duration
	ReconnectInterval    time.Duration
	MaxReconnectInterval time.Duration
	PingInterval         time.Duration
	ReadLimit            int64
	// RateLimit caps outbound frames per second. Zero disables limiting.
	RateLimit float64
	Burst     int
}

func (c Config) withDefaults() Config {
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaultDialTimeout
	}
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = defaultReconnectInterval
	}
	if c.MaxReconnectInterval <= 0 {
		c.MaxReconnectInterval = defaultMaxReconnectInterval
	}
	if c.PingInterval <= 0 {
		c.PingInterval = defaultPingInterval
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = defaultReadLimit
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	return c
}

type request struct {
	ID     string          `json:"id"`
	Module string          `json:"module"`
	Method string          `json:"method"`
	Args   json.RawMessage `json:"args,omitempty"`
}

type result struct {
	ID      string          `json:"id"`
	Status  string          `json:"status"`
	Payload json.RawMessage `json:"payload"`
	Keep    bool            `json:"keep"`
}

type pendingCall struct {
	id         string
	seq        uint64
	method     string
	frame      []byte
	onSuccess  bridge.Callback
	onFailure  bridge.Callback
	writtenGen uint64
	sentAt     time.Time
	answered   bool
}

// Option customises a Transport.
type Option func(*Transport)

// WithLogger sets the transport logger.
func WithLogger(logger *log.Logger) Option {
	return func(t *Transport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// Transport is a bridge.Invoker backed by a websocket connection.
type Transport struct {
	cfg     Config
	logger  *log.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	limiter *rate.Limiter

	connMu     sync.RWMutex
	conn       *websocket.Conn
	generation atomic.Uint64

	pendingMu sync.Mutex
	pending   map[string]*pendingCall
	seq       uint64

	outbound chan string

	ready     chan struct{}
	readyOnce sync.Once
	startOnce sync.Once
	closeOnce sync.Once
	loops     conc.WaitGroup

	callCounter     metric.Int64Counter
	callbackCounter metric.Int64Counter
	callbackErrors  metric.Int64Counter
	pendingGauge    metric.Int64UpDownCounter
	reconnects      metric.Int64Counter
	callDuration    metric.Float64Histogram
}

// New creates a transport bound to ctx. Call Start to connect.
func New(ctx context.Context, cfg Config, opts ...Option) *Transport {
	tctx, cancel := context.WithCancel(ctx)
	cfg = cfg.withDefaults()
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	t := &Transport{
		cfg:      cfg,
		logger:   log.Default(),
		ctx:      tctx,
		cancel:   cancel,
		limiter:  rate.NewLimiter(limit, cfg.Burst),
		pending:  make(map[string]*pendingCall),
		outbound: make(chan string, outboundQueue),
		ready:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}

	meter := otel.Meter("wsnative")
	t.callCounter, _ = meter.Int64Counter("wsnative.calls",
		metric.WithDescription("Number of native calls written to the host"),
		metric.WithUnit("{call}"))
	t.callbackCounter, _ = meter.Int64Counter("wsnative.callbacks",
		metric.WithDescription("Number of result frames delivered to callbacks"),
		metric.WithUnit("{result}"))
	t.callbackErrors, _ = meter.Int64Counter("wsnative.callback.errors",
		metric.WithDescription("Number of result frames that could not be delivered"),
		metric.WithUnit("{result}"))
	t.pendingGauge, _ = meter.Int64UpDownCounter("wsnative.pending",
		metric.WithDescription("Number of calls awaiting results"),
		metric.WithUnit("{call}"))
	t.reconnects, _ = meter.Int64Counter("wsnative.reconnects",
		metric.WithDescription("Number of established host connections"),
		metric.WithUnit("{connection}"))
	t.callDuration, _ = meter.Float64Histogram("wsnative.call.duration",
		metric.WithDescription("Latency from write to first result"),
		metric.WithUnit("ms"))
	return t
}

// Start launches the connection loops and waits for the first connection.
// The loops keep retrying after Start returns an error.
func (t *Transport) Start() error {
	t.startOnce.Do(func() {
		t.loops.Go(func() {
			if err := t.connectLoop(); err != nil && !errors.Is(err, context.Canceled) {
				t.logger.Printf("wsnative: connect loop: %v", err)
			}
		})
		t.loops.Go(t.writeLoop)
	})

	select {
	case <-t.ready:
		return nil
	case <-time.After(t.cfg.DialTimeout):
		return errs.New("wsnative", errs.CodeNetwork,
			errs.WithMessage(fmt.Sprintf("timeout waiting for native host at %s", t.cfg.URL)))
	case <-t.ctx.Done():
		return fmt.Errorf("wsnative context done: %w", t.ctx.Err())
	}
}

// Close stops the loops and closes the connection. Calls still pending stay
// unanswered.
func (t *Transport) Close() {
	t.closeOnce.Do(func() {
		t.cancel()
		t.connMu.Lock()
		if t.conn != nil {
			_ = t.conn.Close(websocket.StatusNormalClosure, "shutdown")
			t.conn = nil
		}
		t.connMu.Unlock()
		t.loops.Wait()
	})
}

// Pending reports how many calls are awaiting results.
func (t *Transport) Pending() int {
	t.pendingMu.Lock()
	defer t.pendingMu.Unlock()
	return len(t.pending)
}

// Invoke implements bridge.Invoker. It never blocks on the host.
func (t *Transport) Invoke(onSuccess, onFailure bridge.Callback, module, method string, args []any) {
	if onSuccess == nil {
		onSuccess = bridge.Noop
	}
	if onFailure == nil {
		onFailure = bridge.Noop
	}
	if t.ctx.Err() != nil {
		t.reject(onFailure, method, errs.New("wsnative", errs.CodeUnavailable,
			errs.WithChannel(module, method), errs.WithMessage("transport closed")))
		return
	}

	id := uuid.NewString()
	frame, err := encodeRequest(id, module, method, args)
	if err != nil {
		t.reject(onFailure, method, errs.New("wsnative", errs.CodeInvalid,
			errs.WithChannel(module, method), errs.WithMessage("encode arguments"), errs.WithCause(err)))
		return
	}

	call := &pendingCall{
		id:        id,
		method:    method,
		frame:     frame,
		onSuccess: onSuccess,
		onFailure: onFailure,
	}
	t.pendingMu.Lock()
	t.seq++
	call.seq = t.seq
	t.pending[id] = call
	t.pendingMu.Unlock()
	t.pendingGauge.Add(t.ctx, 1, metric.WithAttributes(telemetry.AttrEnvironment.String(telemetry.Environment())))

	select {
	case t.outbound <- id:
	default:
		t.logger.Printf("wsnative: outbound queue full; %s %s waits for reconnect", method, id)
		t.callCounter.Add(t.ctx, 1, metric.WithAttributes(
			telemetry.CallResultAttributes(telemetry.Environment(), method, telemetry.DirectionOutbound, telemetry.ResultDropped)...))
	}
}

func encodeRequest(id, module, method string, args []any) ([]byte, error) {
	req := request{ID: id, Module: module, Method: method}
	if args != nil {
		encoded, err := json.Marshal(args)
		if err != nil {
			return nil, err
		}
		req.Args = encoded
	}
	return json.Marshal(req)
}

func (t *Transport) reject(onFailure bridge.Callback, method string, cause error) {
	payload, err := json.Marshal(cause.Error())
	if err != nil {
		payload = []byte("null")
	}
	if err := onFailure(payload); err != nil {
		t.logger.Printf("wsnative: failure callback for %s: %v", method, err)
	}
}

func (t *Transport) connectLoop() error {
	backoffCfg := backoff.NewExponentialBackOff()
	backoffCfg.InitialInterval = t.cfg.ReconnectInterval
	backoffCfg.MaxInterval = t.cfg.MaxReconnectInterval

	for {
		select {
		case <-t.ctx.Done():
			return context.Canceled
		default:
		}

		dialCtx, cancel := context.WithTimeout(t.ctx, t.cfg.DialTimeout)
		conn, _, err := websocket.Dial(dialCtx, t.cfg.URL, nil)
		cancel()
		if err != nil {
			t.logger.Printf("wsnative: dial %s: %v", t.cfg.URL, err)
			if !t.sleep(backoffCfg) {
				return context.Canceled
			}
			continue
		}
		conn.SetReadLimit(t.cfg.ReadLimit)

		t.connMu.Lock()
		t.conn = conn
		gen := t.generation.Add(1)
		t.connMu.Unlock()
		t.reconnects.Add(t.ctx, 1, metric.WithAttributes(telemetry.ConnectionAttributes(telemetry.Environment(), "connected")...))
		t.readyOnce.Do(func() { close(t.ready) })
		backoffCfg.Reset()

		if gen > 1 {
			t.logger.Printf("wsnative: reconnected to %s", t.cfg.URL)
		}
		t.resendPending()

		connCtx, connCancel := context.WithCancel(t.ctx)
		errCh := make(chan error, 2)
		var wg conc.WaitGroup
		wg.Go(func() { errCh <- t.readLoop(connCtx, conn) })
		wg.Go(func() { errCh <- t.pingLoop(connCtx, conn) })

		firstErr := <-errCh
		connCancel()

		t.connMu.Lock()
		if t.conn == conn {
			t.conn = nil
		}
		t.connMu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "")
		wg.Wait()

		if firstErr != nil && !errors.Is(firstErr, context.Canceled) && t.ctx.Err() == nil {
			t.logger.Printf("wsnative: connection lost: %v", firstErr)
		}
		if !t.sleep(backoffCfg) {
			return context.Canceled
		}
	}
}

func (t *Transport) sleep(b *backoff.ExponentialBackOff) bool {
	wait := b.NextBackOff()
	if wait == backoff.Stop {
		wait = t.cfg.MaxReconnectInterval
	}
	select {
	case <-t.ctx.Done():
		return false
	case <-time.After(wait):
		return true
	}
}

// resendPending queues every registered call, oldest first, for the new
// connection.
func (t *Transport) resendPending() {
	t.pendingMu.Lock()
	calls := make([]*pendingCall, 0, len(t.pending))
	for _, call := range t.pending {
		calls = append(calls, call)
	}
	t.pendingMu.Unlock()
	sort.Slice(calls, func(i, j int) bool { return calls[i].seq < calls[j].seq })

	for _, call := range calls {
		select {
		case <-t.ctx.Done():
			return
		case t.outbound <- call.id:
		}
	}
}

func (t *Transport) writeLoop() {
	for {
		select {
		case <-t.ctx.Done():
			return
		case id := <-t.outbound:
			if err := t.limiter.Wait(t.ctx); err != nil {
				return
			}
			if err := t.write(id); err != nil {
				t.logger.Printf("wsnative: %v", err)
			}
		}
	}
}

// write sends the frame for id unless it already went out on the current
// connection. Without a connection the call waits for the next one.
func (t *Transport) write(id string) error {
	t.connMu.RLock()
	conn := t.conn
	gen := t.generation.Load()
	t.connMu.RUnlock()
	if conn == nil {
		return nil
	}

	t.pendingMu.Lock()
	call, ok := t.pending[id]
	if !ok || call.writtenGen == gen {
		t.pendingMu.Unlock()
		return nil
	}
	frame, method := call.frame, call.method
	t.pendingMu.Unlock()

	writeCtx, cancel := context.WithTimeout(t.ctx, writeTimeout)
	err := conn.Write(writeCtx, websocket.MessageText, frame)
	cancel()
	if err != nil {
		t.callCounter.Add(t.ctx, 1, metric.WithAttributes(
			telemetry.CallResultAttributes(telemetry.Environment(), method, telemetry.DirectionOutbound, telemetry.ResultError)...))
		return fmt.Errorf("write %s: %w", method, err)
	}

	t.pendingMu.Lock()
	if call, ok := t.pending[id]; ok {
		call.writtenGen = gen
		if call.sentAt.IsZero() {
			call.sentAt = time.Now()
		}
	}
	t.pendingMu.Unlock()
	t.callCounter.Add(t.ctx, 1, metric.WithAttributes(
		telemetry.CallResultAttributes(telemetry.Environment(), method, telemetry.DirectionOutbound, telemetry.ResultSuccess)...))
	return nil
}

func (t *Transport) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("read websocket: %w", err)
		}
		t.handleFrame(data)
	}
}

// handleFrame delivers one result on the reader goroutine, so callbacks see
// results in frame order.
func (t *Transport) handleFrame(data []byte) {
	var res result
	if err := json.Unmarshal(data, &res); err != nil {
		t.logger.Printf("wsnative: decode result frame: %v", err)
		t.callbackErrors.Add(t.ctx, 1, metric.WithAttributes(
			telemetry.AttrEnvironment.String(telemetry.Environment()), telemetry.AttrReason.String("decode")))
		return
	}

	t.pendingMu.Lock()
	call, ok := t.pending[res.ID]
	if ok && !res.Keep {
		delete(t.pending, res.ID)
	}
	var elapsed time.Duration
	if ok && !call.answered {
		call.answered = true
		if !call.sentAt.IsZero() {
			elapsed = time.Since(call.sentAt)
		}
	}
	t.pendingMu.Unlock()

	if !ok {
		t.logger.Printf("wsnative: result for unknown call %q", res.ID)
		t.callbackErrors.Add(t.ctx, 1, metric.WithAttributes(
			telemetry.AttrEnvironment.String(telemetry.Environment()), telemetry.AttrReason.String("unknown_call")))
		return
	}
	if !res.Keep {
		t.pendingGauge.Add(t.ctx, -1, metric.WithAttributes(telemetry.AttrEnvironment.String(telemetry.Environment())))
	}
	if elapsed > 0 {
		t.callDuration.Record(t.ctx, float64(elapsed.Microseconds())/1000,
			metric.WithAttributes(telemetry.AttrMethod.String(call.method)))
	}

	cb := call.onSuccess
	outcome := telemetry.ResultSuccess
	switch res.Status {
	case StatusSuccess:
	case StatusFailure:
		cb = call.onFailure
		outcome = telemetry.ResultFailure
	default:
		t.logger.Printf("wsnative: result for %s has unknown status %q", call.method, res.Status)
		t.callbackErrors.Add(t.ctx, 1, metric.WithAttributes(
			telemetry.AttrEnvironment.String(telemetry.Environment()), telemetry.AttrReason.String("status")))
		return
	}

	payload := res.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	if err := cb(payload); err != nil {
		t.logger.Printf("wsnative: callback for %s: %v", call.method, err)
		t.callbackErrors.Add(t.ctx, 1, metric.WithAttributes(
			telemetry.AttrEnvironment.String(telemetry.Environment()),
			telemetry.AttrMethod.String(call.method),
			telemetry.AttrReason.String("callback")))
		outcome = telemetry.ResultError
	}
	t.callbackCounter.Add(t.ctx, 1, metric.WithAttributes(
		telemetry.CallResultAttributes(telemetry.Environment(), call.method, telemetry.DirectionInbound, outcome)...))
}

func (t *Transport) pingLoop(ctx context.Context, conn *websocket.Conn) error {
	ticker := time.NewTicker(t.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return context.Canceled
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		}
	}
}
