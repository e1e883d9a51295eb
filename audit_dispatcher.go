package portalauth

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// auditDispatcher decouples sinks from the calling goroutine. A nil
// dispatcher (audit disabled) accepts and discards events.
type auditDispatcher struct {
	cfg    AuditConfig
	sink   AuditSink
	logger *slog.Logger

	queue chan AuditEvent
	stop  chan struct{}
	wg    sync.WaitGroup

	dropped    atomic.Uint64
	warnedDrop atomic.Bool
	stopped    atomic.Bool
	stopOnce   sync.Once
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink, logger *slog.Logger) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = discardSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &auditDispatcher{
		cfg:    cfg,
		sink:   sink,
		logger: logger,
		queue:  make(chan AuditEvent, cfg.BufferSize),
		stop:   make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *auditDispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(context.Background(), event)
		case <-d.stop:
			d.drain()
			return
		}
	}
}

func (d *auditDispatcher) drain() {
	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(context.Background(), event)
		default:
			return
		}
	}
}

// Emit queues event. With DropIfFull a full queue drops the event and bumps
// the drop counter; otherwise Emit waits for room or for ctx.
func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil || d.stopped.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.cfg.DropIfFull {
		select {
		case d.queue <- event:
		case <-d.stop:
		default:
			d.dropped.Add(1)
			if d.warnedDrop.CompareAndSwap(false, true) {
				d.logger.Warn("audit buffer full, dropping events", "buffer_size", d.cfg.BufferSize)
			}
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
	case <-d.stop:
	}
}

// Close flushes queued events and stops the worker. Safe to call twice.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.stopOnce.Do(func() {
		d.stopped.Store(true)
		close(d.stop)
		d.wg.Wait()
	})
}

func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
