package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	defaultQueueSize      = 256
	defaultBufferCapacity = 100
	defaultFlushCount     = 50
	defaultFlushInterval  = time.Second
	drainTimeout          = 5 * time.Second
)

// Store persists batches of odometry records of one session
type Store interface {
	StoreOdometry(ctx context.Context, sessionID int64, records []*Odometry) error
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) func(*Recorder) {
	return func(r *Recorder) {
		r.logger = logger
	}
}

// WithFlushInterval sets how often buffered records are written even when
// the buffer is not full
func WithFlushInterval(interval time.Duration) func(*Recorder) {
	return func(r *Recorder) {
		r.flushInterval = interval
	}
}

// WithQueueSize sets the hand-off queue size between the bridge loop and the
// recorder
func WithQueueSize(size int) func(*Recorder) {
	return func(r *Recorder) {
		r.queueSize = size
	}
}

// WithBatchSize sets the buffer capacity and the number of records written
// in one transaction when the buffer fills up
func WithBatchSize(capacity, flushCount int) func(*Recorder) {
	return func(r *Recorder) {
		r.capacity = capacity
		r.flushCount = flushCount
	}
}

// WithClock sets the clock driving the flush ticker
func WithClock(clk clock.Clock) func(*Recorder) {
	return func(r *Recorder) {
		r.clock = clk
	}
}

// Recorder collects odometry records from the bridge loop and writes them to
// a Store in batches. Record never blocks: when the queue is full the record
// is dropped and counted.
type Recorder struct {
	store     Store
	sessionID int64

	queue  chan *Odometry
	buffer *Buffer

	queueSize     int
	capacity      int
	flushCount    int
	flushInterval time.Duration

	clock  clock.Clock
	logger *slog.Logger

	dropped atomic.Uint64
	stored  atomic.Uint64
	failed  atomic.Uint64
}

// NewRecorder creates a recorder writing into the given session
func NewRecorder(store Store, sessionID int64, options ...func(*Recorder)) (*Recorder, error) {
	r := Recorder{
		store:         store,
		sessionID:     sessionID,
		queueSize:     defaultQueueSize,
		capacity:      defaultBufferCapacity,
		flushCount:    defaultFlushCount,
		flushInterval: defaultFlushInterval,
		clock:         clock.New(),
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&r)
	}

	if r.queueSize <= 0 {
		return nil, fmt.Errorf("invalid queue size %d", r.queueSize)
	}
	if r.flushInterval <= 0 {
		return nil, fmt.Errorf("invalid flush interval %s", r.flushInterval)
	}

	buffer, err := NewBuffer(r.capacity, r.flushCount)
	if err != nil {
		return nil, fmt.Errorf("creating buffer: %w", err)
	}

	r.buffer = buffer
	r.queue = make(chan *Odometry, r.queueSize)
	return &r, nil
}

// Record hands o over to the recorder. It returns false if the record was
// dropped because the queue is full.
func (r *Recorder) Record(o Odometry) bool {
	select {
	case r.queue <- &o:
		return true
	default:
		r.dropped.Add(1)
		return false
	}
}

// Dropped returns the number of records lost to a full queue
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Stored returns the number of records written to the store
func (r *Recorder) Stored() uint64 {
	return r.stored.Load()
}

// Run writes records until ctx is cancelled, then drains whatever is still
// queued or buffered. Store errors are logged, the recorder never stops the
// bridge.
func (r *Recorder) Run(ctx context.Context) error {
	ticker := r.clock.Ticker(r.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.drain(ctx)
			return nil

		case o := <-r.queue:
			r.insert(o)
			if r.buffer.IsFull() {
				r.write(ctx, r.buffer.Flush())
			}

		case <-ticker.C:
			r.write(ctx, r.buffer.DrainAll())
		}
	}
}

func (r *Recorder) drain(ctx context.Context) {
	// Run is the only consumer, so the length check cannot race
	for len(r.queue) > 0 {
		r.insert(<-r.queue)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
	defer cancel()

	r.write(ctx, r.buffer.DrainAll())

	r.logger.Info("recorder stopped",
		slog.Uint64("stored", r.stored.Load()),
		slog.Uint64("dropped", r.dropped.Load()),
		slog.Uint64("failed", r.failed.Load()),
	)
}

func (r *Recorder) insert(o *Odometry) {
	if err := r.buffer.Insert(o); err != nil {
		r.logger.Error(err.Error())
	}
}

func (r *Recorder) write(ctx context.Context, records []*Odometry) {
	if len(records) == 0 {
		return
	}

	if err := r.store.StoreOdometry(ctx, r.sessionID, records); err != nil {
		r.failed.Add(uint64(len(records)))
		r.logger.Error(fmt.Sprintf("storing odometry: %s", err.Error()), slog.Int("records", len(records)))
		return
	}

	r.stored.Add(uint64(len(records)))
}
