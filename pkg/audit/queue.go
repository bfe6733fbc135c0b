package audit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/opst/knitfleet/pkg/utils/retry"
	"go.uber.org/zap"
)

const DefaultQueueSize = 1000

// Queue is a Sink which buffers records and writes them from single background goroutine.
//
// When the buffer is full, records are dropped and reported to OnDrop.
type Queue struct {
	writer  Writer
	records chan Record
	logger  *zap.Logger

	// backoff for each record. Writes failing after that are dropped.
	backoff func() retry.Backoff

	onDrop func(Record)

	// guards closing records. Senders hold it for read.
	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

type QueueOption func(*Queue)

// WithLogger sets logger. Default is no-op.
func WithLogger(l *zap.Logger) QueueOption {
	return func(q *Queue) { q.logger = l }
}

// WithOnDrop sets a callback invoked for each dropped record.
func WithOnDrop(f func(Record)) QueueOption {
	return func(q *Queue) { q.onDrop = f }
}

// WithRetry sets how many times and how often failed writes are retried.
func WithRetry(attempts int, interval time.Duration) QueueOption {
	return func(q *Queue) {
		q.backoff = func() retry.Backoff {
			return retry.Limited(attempts, retry.ExponentialBackoff(interval, 2))
		}
	}
}

// NewQueue starts the consumer goroutine.
//
// The consumer stops when ctx is done or Close is called,
// after writing records already queued.
func NewQueue(ctx context.Context, w Writer, size int, options ...QueueOption) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	q := &Queue{
		writer:  w,
		records: make(chan Record, size),
		logger:  zap.NewNop(),
		onDrop:  func(Record) {},
		done:    make(chan struct{}),
	}
	WithRetry(3, 100*time.Millisecond)(q)
	for _, o := range options {
		o(q)
	}

	go q.consume(ctx)
	return q
}

var _ Sink = &Queue{}

// Record enqueues rec without blocking.
//
// Records are dropped when the queue is full or closed.
func (q *Queue) Record(_ context.Context, rec Record) {
	if reason, ok := q.enqueue(rec); !ok {
		q.drop(rec, reason)
	}
}

func (q *Queue) enqueue(rec Record) (string, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return "queue is closed", false
	}
	select {
	case q.records <- rec:
		return "", true
	default:
		return "queue is full", false
	}
}

func (q *Queue) drop(rec Record, reason string) {
	q.logger.Warn(
		"audit record is dropped",
		zap.String("reason", reason),
		zap.String("id", rec.ID.String()),
		zap.String("action", string(rec.Action)),
		zap.String("entity", rec.EntityName),
	)
	q.onDrop(rec)
}

// Close stops accepting records and waits for the consumer to finish.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.records)
	}
	q.mu.Unlock()
	<-q.done
}

func (q *Queue) consume(ctx context.Context) {
	defer close(q.done)
	for {
		select {
		case <-ctx.Done():
			q.drain(context.WithoutCancel(ctx))
			return
		case rec, ok := <-q.records:
			if !ok {
				return
			}
			q.write(ctx, rec)
		}
	}
}

// drain writes records left in queue once, without retry.
func (q *Queue) drain(ctx context.Context) {
	for {
		select {
		case rec, ok := <-q.records:
			if !ok {
				return
			}
			if err := q.writer.Write(ctx, rec); err != nil {
				q.drop(rec, err.Error())
			}
		default:
			return
		}
	}
}

func (q *Queue) write(ctx context.Context, rec Record) {
	_, err := retry.Blocking(ctx, q.backoff(), func() (struct{}, error) {
		if err := q.writer.Write(ctx, rec); err != nil {
			q.logger.Debug("audit write failed", zap.String("id", rec.ID.String()), zap.Error(err))
			return struct{}{}, errors.Join(retry.ErrRetry, err)
		}
		return struct{}{}, nil
	})
	if err != nil {
		q.drop(rec, err.Error())
	}
}
