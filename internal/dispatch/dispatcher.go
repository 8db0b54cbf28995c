package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/custos-io/custos/internal/domain"
)

var (
	// ErrQueueFull is returned when the queue stays at capacity for the
	// whole enqueue timeout. The caller decides whether to drop or wait.
	ErrQueueFull = errors.New("notification queue is full")
	// ErrShuttingDown is returned once Shutdown has been called.
	ErrShuttingDown = errors.New("dispatcher is shutting down")
)

type Config struct {
	QueueSize      int
	Workers        int
	MaxAttempts    int
	BackoffBase    time.Duration
	BackoffCap     time.Duration
	EnqueueTimeout time.Duration
	AttemptTimeout time.Duration
	DrainTimeout   time.Duration
}

func (c *Config) normalize() {
	if c.QueueSize < 1 {
		c.QueueSize = 64
	}
	if c.Workers < 1 {
		c.Workers = 3
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = 60 * time.Second
	}
	if c.EnqueueTimeout <= 0 {
		c.EnqueueTimeout = 2 * time.Second
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 30 * time.Second
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = 30 * time.Second
	}
}

type Logger interface {
	Infof(template string, args ...interface{})
	Errorf(template string, args ...interface{})
	Warnf(template string, args ...interface{})
}

// Dispatcher decouples notification producers from delivery latency: a
// bounded FIFO queue feeds a fixed pool of workers, each of which owns one
// job at a time through all of its retries. Terminal failures are counted and
// logged, never resurfaced to the producer.
type Dispatcher struct {
	cfg       Config
	transport domain.Transport
	logger    Logger

	queue    chan domain.NotificationJob
	done     chan struct{}
	wg       sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
	sent     atomic.Int64
	failed   atomic.Int64
	inflight atomic.Int64
}

func New(cfg Config, transport domain.Transport, logger Logger) *Dispatcher {
	cfg.normalize()

	d := &Dispatcher{
		cfg:       cfg,
		transport: transport,
		logger:    logger,
		queue:     make(chan domain.NotificationJob, cfg.QueueSize),
		done:      make(chan struct{}),
	}

	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(i + 1)
	}

	return d
}

// Enqueue hands a job to the dispatcher and returns its token. It blocks at
// most the configured enqueue timeout when the queue is at capacity, then
// fails with ErrQueueFull rather than growing unbounded.
func (d *Dispatcher) Enqueue(job domain.NotificationJob) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return "", ErrShuttingDown
	}

	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.EnqueuedAt = time.Now()

	timer := time.NewTimer(d.cfg.EnqueueTimeout)
	defer timer.Stop()

	select {
	case d.queue <- job:
		return job.ID, nil
	case <-timer.C:
		return "", ErrQueueFull
	}
}

// Stats samples the counters. Pending is queue depth plus in-flight jobs and
// is approximate by design.
func (d *Dispatcher) Stats() domain.DispatchStats {
	return domain.DispatchStats{
		Sent:    d.sent.Load(),
		Failed:  d.failed.Load(),
		Pending: int64(len(d.queue)) + d.inflight.Load(),
	}
}

// Shutdown stops accepting jobs. With drain it waits, up to the configured
// grace period, for queued and in-flight jobs to finish; without it the
// remaining queue is discarded and in-flight backoffs are cut short.
func (d *Dispatcher) Shutdown(drain bool) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	if !drain {
		close(d.done)
	}

	finished := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(d.cfg.DrainTimeout):
		d.logger.Warnf("Dispatcher shutdown grace period expired with work remaining")
	}
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()

	for job := range d.queue {
		select {
		case <-d.done:
			// Fast-exit path: discard without delivering.
			d.logger.Warnf("Discarding notification %s (%s) on shutdown", job.ID, job.Kind)
			continue
		default:
		}

		d.inflight.Add(1)
		d.process(id, job)
		d.inflight.Add(-1)
	}
}

// process delivers one job to completion: it retries transient failures with
// exponential backoff until success or the attempt budget runs out, without
// ever releasing the job back to the queue.
func (d *Dispatcher) process(workerID int, job domain.NotificationJob) {
	for {
		job.Attempts++

		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.AttemptTimeout)
		err := d.transport.Deliver(ctx, job)
		cancel()

		if err == nil {
			d.sent.Add(1)
			d.logger.Infof("[worker-%d] Delivered notification %s (%s) after %d attempt(s)",
				workerID, job.ID, job.Kind, job.Attempts)
			return
		}

		if !domain.IsTransient(err) {
			d.failed.Add(1)
			d.logger.Errorf("[worker-%d] Notification %s (%s) failed permanently: %v",
				workerID, job.ID, job.Kind, err)
			return
		}

		if job.Attempts >= d.cfg.MaxAttempts {
			d.failed.Add(1)
			d.logger.Errorf("[worker-%d] Notification %s (%s) failed after %d attempts: %v",
				workerID, job.ID, job.Kind, job.Attempts, err)
			return
		}

		delay := d.backoff(job.Attempts)
		d.logger.Warnf("[worker-%d] Notification %s (%s) attempt %d/%d failed, retrying in %s: %v",
			workerID, job.ID, job.Kind, job.Attempts, d.cfg.MaxAttempts, delay, err)

		select {
		case <-time.After(delay):
		case <-d.done:
			d.failed.Add(1)
			d.logger.Warnf("[worker-%d] Abandoning notification %s mid-retry on shutdown",
				workerID, job.ID)
			return
		}
	}
}

func (d *Dispatcher) backoff(attempt int) time.Duration {
	delay := d.cfg.BackoffBase << uint(attempt-1)
	if delay > d.cfg.BackoffCap || delay <= 0 {
		delay = d.cfg.BackoffCap
	}
	return delay
}
