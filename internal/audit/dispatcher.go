package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull discards events on a full buffer instead of blocking the
	// login path. Drops are counted per event type.
	DropIfFull bool
	// Logger reports the first drop of each event type. Nil means slog.Default().
	Logger *slog.Logger
}

// Dispatcher forwards audit events to a sink from one background goroutine,
// so a slow sink never sits on the ticket or login path.
type Dispatcher struct {
	cfg    Config
	sink   Sink
	logger *slog.Logger
	ch     chan Event
	done   chan struct{}
	wg     sync.WaitGroup

	dropped   atomic.Uint64
	dropMu    sync.Mutex
	dropsByEv map[string]uint64

	closed    atomic.Bool
	closeOnce sync.Once
}

// NewDispatcher starts a dispatcher. It returns nil when cfg.Enabled is
// false; every method is safe on a nil Dispatcher.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		cfg:       cfg,
		sink:      sink,
		logger:    logger.With("component", "audit"),
		ch:        make(chan Event, cfg.BufferSize),
		done:      make(chan struct{}),
		dropsByEv: make(map[string]uint64),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.ch:
			d.sink.Emit(context.Background(), event)
		case <-d.done:
			d.drain()
			return
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case event := <-d.ch:
			d.sink.Emit(context.Background(), event)
		default:
			return
		}
	}
}

// Emit queues event for the sink. With DropIfFull a full buffer drops the
// event; otherwise Emit waits for space, ctx or Close.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.cfg.DropIfFull {
		select {
		case d.ch <- event:
		case <-d.done:
		default:
			d.recordDrop(ctx, event.EventType)
		}
		return
	}

	select {
	case d.ch <- event:
	case <-ctx.Done():
	case <-d.done:
	}
}

func (d *Dispatcher) recordDrop(ctx context.Context, eventType string) {
	total := d.dropped.Add(1)

	d.dropMu.Lock()
	d.dropsByEv[eventType]++
	first := d.dropsByEv[eventType] == 1
	d.dropMu.Unlock()

	if first {
		d.logger.WarnContext(ctx, "audit buffer full, dropping events",
			"event", eventType,
			"buffer", d.cfg.BufferSize,
			"droppedTotal", total,
		)
	}
}

// Close stops accepting events and flushes what is already queued.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Dropped returns the number of events discarded on a full buffer.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// DroppedByEvent returns a copy of the drop counts keyed by event type.
func (d *Dispatcher) DroppedByEvent() map[string]uint64 {
	out := make(map[string]uint64)
	if d == nil {
		return out
	}
	d.dropMu.Lock()
	defer d.dropMu.Unlock()
	for ev, n := range d.dropsByEv {
		out[ev] = n
	}
	return out
}
