// Package services holds the background and infrastructure services the
// portal handlers depend on: the job pool that carries delayed broadcasts,
// code-issuance rate limiting and health reporting.
package services

import (
	"context"
	"sync"
	"time"

	"github.com/NomadCrew/dojo-portal/config"
	"github.com/NomadCrew/dojo-portal/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

const jobTimeout = 30 * time.Second

// Job represents a unit of work for the worker pool.
type Job struct {
	// Name is a descriptive name for logging purposes
	Name string
	// Execute is the function that performs the work
	Execute func(ctx context.Context) error
}

// WorkerPool runs jobs on a bounded set of workers fed by a bounded queue.
// Jobs can be queued immediately or after a delay; delayed jobs still pending
// at shutdown are discarded.
type WorkerPool struct {
	jobQueue chan Job
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *zap.SugaredLogger
	metrics  *workerPoolMetrics
	config   config.WorkerPoolConfig
	mu       sync.Mutex
	running  bool
	stopped  bool
	timers   map[*time.Timer]struct{}
}

type workerPoolMetrics struct {
	queueDepth    prometheus.Gauge
	activeWorkers prometheus.Gauge
	delayedJobs   prometheus.Gauge
	completedJobs prometheus.Counter
	droppedJobs   prometheus.Counter
	errorCount    prometheus.Counter
	jobDuration   prometheus.Histogram
}

// Singleton pattern for metrics (avoid double registration in tests).
var (
	wpMetricsInstance *workerPoolMetrics
	wpMetricsOnce     sync.Once
	wpDefaultRegistry = prometheus.DefaultRegisterer
)

func newWorkerPoolMetrics() *workerPoolMetrics {
	wpMetricsOnce.Do(func() {
		wpMetricsInstance = &workerPoolMetrics{
			queueDepth: promauto.With(wpDefaultRegistry).NewGauge(prometheus.GaugeOpts{
				Name: "portal_worker_pool_queue_depth",
				Help: "Current number of jobs waiting in queue",
			}),
			activeWorkers: promauto.With(wpDefaultRegistry).NewGauge(prometheus.GaugeOpts{
				Name: "portal_worker_pool_active_workers",
				Help: "Current number of workers processing jobs",
			}),
			delayedJobs: promauto.With(wpDefaultRegistry).NewGauge(prometheus.GaugeOpts{
				Name: "portal_worker_pool_delayed_jobs",
				Help: "Jobs waiting for their delay to elapse",
			}),
			completedJobs: promauto.With(wpDefaultRegistry).NewCounter(prometheus.CounterOpts{
				Name: "portal_worker_pool_completed_jobs_total",
				Help: "Total number of completed jobs",
			}),
			droppedJobs: promauto.With(wpDefaultRegistry).NewCounter(prometheus.CounterOpts{
				Name: "portal_worker_pool_dropped_jobs_total",
				Help: "Total number of jobs dropped due to full queue or shutdown",
			}),
			errorCount: promauto.With(wpDefaultRegistry).NewCounter(prometheus.CounterOpts{
				Name: "portal_worker_pool_errors_total",
				Help: "Total number of job execution errors",
			}),
			jobDuration: promauto.With(wpDefaultRegistry).NewHistogram(prometheus.HistogramOpts{
				Name:    "portal_worker_pool_job_duration_seconds",
				Help:    "Time taken to execute jobs",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
			}),
		}
	})
	return wpMetricsInstance
}

// resetWorkerPoolMetricsForTesting resets the metrics singleton for test isolation.
func resetWorkerPoolMetricsForTesting() {
	wpDefaultRegistry = prometheus.NewRegistry()
	wpMetricsInstance = nil
	wpMetricsOnce = sync.Once{}
}

// NewWorkerPool creates a pool. It must be started with Start before jobs run.
func NewWorkerPool(cfg config.WorkerPoolConfig) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		jobQueue: make(chan Job, cfg.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger.GetLogger().Named("worker-pool"),
		metrics:  newWorkerPoolMetrics(),
		config:   cfg,
		timers:   make(map[*time.Timer]struct{}),
	}
}

// Start launches the worker goroutines. Calling it more than once is a no-op.
func (wp *WorkerPool) Start() {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.running || wp.stopped {
		wp.logger.Warn("Worker pool already started")
		return
	}
	wp.running = true

	wp.logger.Infow("Starting worker pool",
		"maxWorkers", wp.config.MaxWorkers,
		"queueSize", wp.config.QueueSize)

	for i := 0; i < wp.config.MaxWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for {
		select {
		case <-wp.ctx.Done():
			return
		case job, ok := <-wp.jobQueue:
			if !ok {
				return
			}
			wp.executeJob(id, job)
		}
	}
}

func (wp *WorkerPool) executeJob(workerID int, job Job) {
	wp.metrics.activeWorkers.Inc()
	wp.metrics.queueDepth.Dec()
	defer wp.metrics.activeWorkers.Dec()

	start := time.Now()
	jobCtx, cancel := context.WithTimeout(wp.ctx, jobTimeout)
	defer cancel()

	if err := job.Execute(jobCtx); err != nil {
		wp.logger.Errorw("Job execution failed",
			"job", job.Name,
			"workerId", workerID,
			"error", err,
			"duration", time.Since(start))
		wp.metrics.errorCount.Inc()
	} else {
		wp.logger.Debugw("Job completed",
			"job", job.Name,
			"workerId", workerID,
			"duration", time.Since(start))
	}

	wp.metrics.jobDuration.Observe(time.Since(start).Seconds())
	wp.metrics.completedJobs.Inc()
}

// Submit queues a job without blocking. It reports false when the queue is
// full or the pool has shut down.
func (wp *WorkerPool) Submit(job Job) bool {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.stopped {
		wp.metrics.droppedJobs.Inc()
		wp.logger.Debugw("Job dropped - pool stopped", "job", job.Name)
		return false
	}

	select {
	case wp.jobQueue <- job:
		wp.metrics.queueDepth.Inc()
		return true
	default:
		wp.metrics.droppedJobs.Inc()
		wp.logger.Warnw("Job dropped - queue full",
			"job", job.Name,
			"queueSize", wp.config.QueueSize)
		return false
	}
}

// SubmitAfter queues job once delay has elapsed. A non-positive delay queues
// it immediately. It reports false only when the pool has already shut down.
func (wp *WorkerPool) SubmitAfter(delay time.Duration, job Job) bool {
	if delay <= 0 {
		return wp.Submit(job)
	}

	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.stopped {
		wp.metrics.droppedJobs.Inc()
		return false
	}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		wp.mu.Lock()
		_, pending := wp.timers[timer]
		delete(wp.timers, timer)
		wp.mu.Unlock()

		if !pending {
			return
		}
		wp.metrics.delayedJobs.Dec()
		wp.Submit(job)
	})
	wp.timers[timer] = struct{}{}
	wp.metrics.delayedJobs.Inc()
	return true
}

// PendingDelayed returns how many delayed jobs have not yet been queued.
func (wp *WorkerPool) PendingDelayed() int {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	return len(wp.timers)
}

// Shutdown stops accepting jobs, discards pending delayed jobs and waits for
// in-flight jobs until ctx is done.
func (wp *WorkerPool) Shutdown(ctx context.Context) error {
	wp.mu.Lock()
	if wp.stopped {
		wp.mu.Unlock()
		return nil
	}
	wasRunning := wp.running
	wp.stopped = true
	wp.running = false
	for timer := range wp.timers {
		timer.Stop()
		wp.metrics.delayedJobs.Dec()
		wp.metrics.droppedJobs.Inc()
	}
	wp.timers = make(map[*time.Timer]struct{})
	close(wp.jobQueue)
	wp.mu.Unlock()

	wp.logger.Info("Initiating worker pool shutdown...")

	if !wasRunning {
		wp.cancel()
		return nil
	}

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		wp.cancel()
		wp.logger.Info("Worker pool shutdown complete - all workers finished")
		return nil
	case <-ctx.Done():
		wp.cancel()
		wp.logger.Warn("Worker pool shutdown timed out - some workers may still be running")
		return ctx.Err()
	}
}

// QueueDepth returns the current number of jobs waiting in the queue.
func (wp *WorkerPool) QueueDepth() int {
	return len(wp.jobQueue)
}

// IsRunning returns whether the worker pool is currently running.
func (wp *WorkerPool) IsRunning() bool {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	return wp.running
}
