package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// Sink persists entries. The PostgreSQL implementation lives in repo.sql.go.
type Sink interface {
	Insert(ctx context.Context, entry Entry) error
}

// Logger queues permission-decision entries and writes them through a single
// background writer. Record never blocks the decision that produced the
// entry: when the queue is full the entry is dropped and the drop is logged
// and counted, making audit loss an observable condition.
type Logger struct {
	sink   Sink
	logger *slog.Logger
	queue  chan Entry

	mu          sync.Mutex
	dropped     int64
	dropCounter prometheus.Counter

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	drained   chan struct{}
}

// NewLogger constructs a Logger with the given queue capacity.
func NewLogger(sink Sink, logger *slog.Logger, queueSize int) *Logger {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Logger{
		sink:    sink,
		logger:  logger,
		queue:   make(chan Entry, queueSize),
		done:    make(chan struct{}),
		drained: make(chan struct{}),
	}
}

// Instrument attaches a counter tracking dropped entries.
func (l *Logger) Instrument(dropped prometheus.Counter) {
	l.dropCounter = dropped
}

// Start launches the writer goroutine. Safe to call once.
func (l *Logger) Start() {
	l.startOnce.Do(func() {
		go l.writeLoop()
	})
}

// Close stops accepting entries and drains the queue.
func (l *Logger) Close() {
	l.stopOnce.Do(func() {
		close(l.done)
		<-l.drained
	})
}

// Record enqueues the entry. Missing id or timestamp are filled in here so
// callers only describe the decision.
func (l *Logger) Record(entry Entry) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}
	select {
	case l.queue <- entry:
	default:
		l.mu.Lock()
		l.dropped++
		dropped := l.dropped
		l.mu.Unlock()
		if l.dropCounter != nil {
			l.dropCounter.Inc()
		}
		l.logger.Error("audit queue full, entry dropped",
			slog.String("actor_id", entry.ActorID),
			slog.String("action", entry.Action),
			slog.Int64("dropped_total", dropped),
		)
	}
}

// Dropped reports how many entries were lost to queue overflow.
func (l *Logger) Dropped() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

func (l *Logger) writeLoop() {
	defer close(l.drained)
	for {
		select {
		case entry := <-l.queue:
			l.write(entry)
		case <-l.done:
			for {
				select {
				case entry := <-l.queue:
					l.write(entry)
				default:
					return
				}
			}
		}
	}
}

func (l *Logger) write(entry Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.sink.Insert(ctx, entry); err != nil {
		l.logger.Error("write audit entry",
			slog.String("entry_id", entry.ID.String()),
			slog.String("actor_id", entry.ActorID),
			slog.Any("error", err),
		)
	}
}
