package journal

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/coachpo/pushbridge/errs"
	"github.com/coachpo/pushbridge/internal/bridge"
	"github.com/coachpo/pushbridge/internal/infra/telemetry"
	"github.com/coachpo/pushbridge/lib/async"
)

const (
	defaultWorkers = 2
	defaultQueue   = 1024
)

// Option customises a Journal.
type Option func(*options)

type options struct {
	logger  *log.Logger
	workers int
	queue   int
}

// WithLogger sets the journal logger.
func WithLogger(logger *log.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithWorkers sizes the write pool.
func WithWorkers(workers, queue int) Option {
	return func(o *options) {
		if workers > 0 {
			o.workers = workers
		}
		if queue >= 0 {
			o.queue = queue
		}
	}
}

// Journal is a bridge.Invoker that records traffic through next into a Store.
// Writes are handed to a worker pool; when the pool is saturated the entry is
// dropped and counted.
type Journal struct {
	next   bridge.Invoker
	store  Store
	pool   *async.Pool
	logger *log.Logger
	now    func() time.Time

	dropped atomic.Uint64

	writes   metric.Int64Counter
	drops    metric.Int64Counter
	failures metric.Int64Counter
}

// New wraps next.
func New(next bridge.Invoker, store Store, opts ...Option) (*Journal, error) {
	if next == nil || store == nil {
		return nil, errs.New("journal", errs.CodeInvalid, errs.WithMessage("invoker and store required"))
	}
	o := options{logger: log.Default(), workers: defaultWorkers, queue: defaultQueue}
	for _, opt := range opts {
		opt(&o)
	}
	j := &Journal{next: next, store: store, logger: o.logger, now: time.Now}

	meter := otel.Meter("journal")
	j.writes, _ = meter.Int64Counter("journal.entries.written",
		metric.WithDescription("Number of journal entries persisted"),
		metric.WithUnit("{entry}"))
	j.drops, _ = meter.Int64Counter("journal.entries.dropped",
		metric.WithDescription("Number of journal entries dropped under backpressure"),
		metric.WithUnit("{entry}"))
	j.failures, _ = meter.Int64Counter("journal.entries.failed",
		metric.WithDescription("Number of journal entries the store rejected"),
		metric.WithUnit("{entry}"))

	pool, err := async.NewPool(o.workers, o.queue, async.WithErrorHandler(func(err error) {
		j.failures.Add(context.Background(), 1, metric.WithAttributes(
			telemetry.AttrEnvironment.String(telemetry.Environment())))
		j.logger.Printf("journal: append: %v", err)
	}))
	if err != nil {
		return nil, err
	}
	j.pool = pool
	return j, nil
}

// Invoke implements bridge.Invoker.
func (j *Journal) Invoke(onSuccess, onFailure bridge.Callback, module, method string, args []any) {
	if onSuccess == nil {
		onSuccess = bridge.Noop
	}
	if onFailure == nil {
		onFailure = bridge.Noop
	}
	callID := uuid.New()

	var payload json.RawMessage
	if args != nil {
		encoded, err := json.Marshal(args)
		if err != nil {
			j.logger.Printf("journal: encode %s args: %v", method, err)
		} else {
			payload = encoded
		}
	}
	j.record(Entry{
		CallID:    callID,
		Direction: telemetry.DirectionOutbound,
		Module:    module,
		Method:    method,
		Status:    StatusCall,
		Payload:   payload,
	})

	j.next.Invoke(
		j.wrap(onSuccess, callID, module, method, StatusSuccess),
		j.wrap(onFailure, callID, module, method, StatusFailure),
		module, method, args)
}

func (j *Journal) wrap(cb bridge.Callback, callID uuid.UUID, module, method, status string) bridge.Callback {
	return func(payload json.RawMessage) error {
		err := cb(payload)
		entry := Entry{
			CallID:    callID,
			Direction: telemetry.DirectionInbound,
			Module:    module,
			Method:    method,
			Status:    status,
			Payload:   append(json.RawMessage(nil), payload...),
		}
		if err != nil {
			entry.Error = err.Error()
		}
		j.record(entry)
		return err
	}
}

func (j *Journal) record(entry Entry) {
	entry.ID = uuid.New()
	entry.RecordedAt = j.now().UTC()
	err := j.pool.Submit(context.Background(), func(ctx context.Context) error {
		if err := j.store.Append(ctx, entry); err != nil {
			return err
		}
		j.writes.Add(ctx, 1, metric.WithAttributes(
			telemetry.CallResultAttributes(telemetry.Environment(), entry.Method, entry.Direction, entry.Status)...))
		return nil
	})
	if err != nil {
		j.dropped.Add(1)
		j.drops.Add(context.Background(), 1, metric.WithAttributes(
			telemetry.AttrEnvironment.String(telemetry.Environment()),
			telemetry.AttrMethod.String(entry.Method)))
	}
}

// Dropped reports how many entries were discarded under backpressure.
func (j *Journal) Dropped() uint64 {
	return j.dropped.Load()
}

// Store returns the backing store.
func (j *Journal) Store() Store {
	return j.store
}

// Close flushes queued entries.
func (j *Journal) Close(ctx context.Context) error {
	return j.pool.Shutdown(ctx)
}
