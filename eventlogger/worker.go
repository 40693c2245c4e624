package eventlogger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// saveTimeout bounds a single sink write so a stalled broker can't block the queue.
const saveTimeout = 5 * time.Second

// Worker saves events off the request path. Log never blocks; when the buffer is full the
// event is dropped and counted.
type Worker struct {
	eventCh chan Event
	logger  EventLogger
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	dropped atomic.Int64
	once    sync.Once
}

func NewWorker(logger EventLogger, bufferSize int) *Worker {
	if bufferSize < 1 {
		bufferSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		eventCh: make(chan Event, bufferSize),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (w *Worker) Start() {
	w.wg.Go(func() {
		for {
			select {
			case <-w.ctx.Done():
				slog.Info("draining events before shutdown", "remaining_events", len(w.eventCh))
				for len(w.eventCh) > 0 {
					w.save(context.Background(), <-w.eventCh)
				}
				return
			case event := <-w.eventCh:
				w.save(w.ctx, event)
			}
		}
	})
}

func (w *Worker) save(parent context.Context, event Event) {
	ctx, cancel := context.WithTimeout(parent, saveTimeout)
	defer cancel()

	if err := w.logger.Save(ctx, event); err != nil {
		slog.Error("failed to save event", "error", err, "event_type", event.Type)
	}
}

func (w *Worker) Log(event Event) {
	select {
	case w.eventCh <- event:
	default:
		w.dropped.Add(1)
		slog.Warn("event channel full, dropping event", "event_type", event.Type)
	}
}

// Dropped is the number of events discarded because the buffer was full.
func (w *Worker) Dropped() int64 {
	return w.dropped.Load()
}

// Shutdown stops the worker after saving every buffered event. It is safe to call twice.
func (w *Worker) Shutdown() {
	w.once.Do(func() {
		w.cancel()
		w.wg.Wait()
	})
}
