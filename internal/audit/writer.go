package audit

import (
	"context"
	"sync"
)

// queueSize is the buffer of the async writer. Entries beyond this are
// dropped so a slow disk never holds up a trigger.
const queueSize = 256

// Logger is the logging surface the writer needs.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Writer queues entries and writes them one at a time on its own goroutine,
// matching SQLite's single-writer model.
//
// Thread Safety: Record is safe for concurrent use.
type Writer struct {
	repo   Repository
	logger Logger
	queue  chan *Entry

	wg        sync.WaitGroup
	closeOnce sync.Once
	done      chan struct{}
}

// NewWriter creates a writer over repo. Call Start before Record.
func NewWriter(repo Repository, logger Logger) *Writer {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Writer{
		repo:   repo,
		logger: logger,
		queue:  make(chan *Entry, queueSize),
		done:   make(chan struct{}),
	}
}

// Start launches the drain goroutine. It stops when ctx is cancelled or
// Close is called, writing whatever is still queued first.
func (w *Writer) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.drain(ctx)
	}()
}

// Record enqueues e. If the queue is full the entry is dropped and a
// warning logged.
func (w *Writer) Record(e *Entry) {
	select {
	case <-w.done:
		return
	default:
	}
	select {
	case w.queue <- e:
	default:
		w.logger.Warn("audit queue full, dropping entry", "action", e.Action, "binding", e.Binding)
	}
}

// Close stops the writer after flushing queued entries.
func (w *Writer) Close() {
	w.closeOnce.Do(func() { close(w.done) })
	w.wg.Wait()
}

func (w *Writer) drain(ctx context.Context) {
	for {
		select {
		case e := <-w.queue:
			w.write(e)
		case <-ctx.Done():
			w.flush()
			return
		case <-w.done:
			w.flush()
			return
		}
	}
}

func (w *Writer) flush() {
	for {
		select {
		case e := <-w.queue:
			w.write(e)
		default:
			return
		}
	}
}

func (w *Writer) write(e *Entry) {
	// Writes outlive request contexts.
	if err := w.repo.Create(context.Background(), e); err != nil {
		w.logger.Error("audit write failed", "action", e.Action, "binding", e.Binding, "error", err)
	}
}
