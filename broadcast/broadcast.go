// Package broadcast dispatches run lifecycle events to independently
// configured sinks.
//
// Delivery is fire-and-forget and at-most-once: every sink gets its own
// goroutine and bounded queue, so events reach a sink in emission order while
// a slow, failing or panicking sink never affects the run or other sinks.
package broadcast

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/evalmesh/core"
	"github.com/hupe1980/evalmesh/logging"
)

const (
	// DefaultQueueSize is the per-sink event buffer.
	DefaultQueueSize = 1024
	// DefaultHandleTimeout bounds a single Handle call's context.
	DefaultHandleTimeout = 10 * time.Second
)

// Options configure a Broadcaster.
type Options struct {
	QueueSize     int
	HandleTimeout time.Duration
	Logger        logging.Logger
}

// Broadcaster fans events out to sinks. It is created per run.
type Broadcaster struct {
	sinks  []core.Sink
	opts   Options
	logger logging.Logger

	mu      sync.Mutex
	workers []*worker
	closed  bool
	wg      sync.WaitGroup
}

type worker struct {
	sink    core.Sink
	queue   chan core.Event
	dropped int
}

// New creates a broadcaster for the given sinks. Nil sinks are ignored.
func New(sinks []core.Sink, optFns ...func(o *Options)) *Broadcaster {
	opts := Options{
		QueueSize:     DefaultQueueSize,
		HandleTimeout: DefaultHandleTimeout,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.HandleTimeout <= 0 {
		opts.HandleTimeout = DefaultHandleTimeout
	}

	active := make([]core.Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			active = append(active, s)
		}
	}
	return &Broadcaster{sinks: active, opts: opts, logger: logging.OrNoOp(opts.Logger)}
}

// Init initializes every sink once and starts a dispatcher per sink that
// initialized successfully. A sink whose Init fails or panics is logged and
// skipped. Init returns the names of the skipped sinks.
func (b *Broadcaster) Init(ctx context.Context, info core.RunInfo) []string {
	var skipped []string
	workers := make([]*worker, 0, len(b.sinks))
	for _, s := range b.sinks {
		if err := b.initSink(ctx, s, info); err != nil {
			b.logger.Warn("sink.init_failed", "run_id", info.RunID, "sink", s.Name(), "error", err.Error())
			skipped = append(skipped, s.Name())
			continue
		}
		// one slot beyond QueueSize is kept free for the terminal event
		workers = append(workers, &worker{sink: s, queue: make(chan core.Event, b.opts.QueueSize+1)})
	}

	b.mu.Lock()
	b.workers = workers
	b.mu.Unlock()

	for _, w := range workers {
		b.wg.Add(1)
		go b.dispatch(w)
	}
	return skipped
}

func (b *Broadcaster) initSink(ctx context.Context, s core.Sink, info core.RunInfo) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.Init(ctx, info)
}

// Publish enqueues ev for every active sink without blocking. When a sink's
// queue is full the event is dropped for that sink only. Terminal events use
// a reserved slot, so a lagging sink still learns how the run ended.
func (b *Broadcaster) Publish(ev core.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	terminal := ev.Type.Terminal()
	for _, w := range b.workers {
		if !terminal && len(w.queue) >= b.opts.QueueSize {
			b.drop(w, ev)
			continue
		}
		select {
		case w.queue <- ev:
		default:
			b.drop(w, ev)
		}
	}
}

func (b *Broadcaster) drop(w *worker, ev core.Event) {
	w.dropped++
	b.logger.Warn("sink.event_dropped", "run_id", ev.RunID, "sink", w.sink.Name(), "event", string(ev.Type))
}

// Close stops accepting events and waits until every queue is drained or ctx
// is done. Sinks still running after ctx expires finish in the background.
func (b *Broadcaster) Close(ctx context.Context) error {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		for _, w := range b.workers {
			close(w.queue)
		}
	}
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("broadcast close: %w", ctx.Err())
	}
}

// Active returns the names of sinks that initialized successfully.
func (b *Broadcaster) Active() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, len(b.workers))
	for i, w := range b.workers {
		names[i] = w.sink.Name()
	}
	return names
}

func (b *Broadcaster) dispatch(w *worker) {
	defer b.wg.Done()
	for ev := range w.queue {
		b.deliver(w.sink, ev)
	}
}

// deliver hands one event to one sink, containing errors and panics.
func (b *Broadcaster) deliver(s core.Sink, ev core.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), b.opts.HandleTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("sink.panic", "run_id", ev.RunID, "sink", s.Name(), "event", string(ev.Type), "error", fmt.Sprint(r))
		}
	}()
	if err := s.Handle(ctx, ev); err != nil {
		b.logger.Warn("sink.handle_failed", "run_id", ev.RunID, "sink", s.Name(), "event", string(ev.Type), "error", err.Error())
	}
}
