package delivery

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/shohag/hookrelay/internal/metrics"
)

var (
	ErrQueueFull   = errors.New("delivery queue is full")
	ErrPoolStopped = errors.New("delivery pool is stopped")
)

// Pool runs submitted jobs on a bounded number of goroutines. The queue is
// in memory only; jobs still queued when the process dies are lost.
type Pool struct {
	worker  *worker
	workers int
	queue   chan Job
	log     zerolog.Logger

	mu      sync.RWMutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewPool(handler Handler, workers, queueSize int, log zerolog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &Pool{
		worker:  &worker{handler: handler, log: log},
		workers: workers,
		queue:   make(chan Job, queueSize),
		log:     log,
		done:    make(chan struct{}),
	}
}

// Start launches the workers. Jobs run on a context that keeps ctx's values
// but not its cancellation, so a cancelled ctx does not drop queued jobs;
// only Stop and StopWithin end them.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.started = true
	p.cancel = cancel
	p.mu.Unlock()

	p.log.Info().Int("workers", p.workers).Int("queue_size", cap(p.queue)).Msg("starting delivery worker pool")

	go func() {
		defer close(p.done)
		runners := pool.New().WithMaxGoroutines(p.workers)
		for job := range p.queue {
			runners.Go(func() {
				p.worker.process(jobCtx, job)
			})
		}
		runners.Wait()
	}()
}

// Submit enqueues job without blocking.
func (p *Pool) Submit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}
	select {
	case p.queue <- job:
		metrics.QueueDepth.Inc()
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop refuses new jobs and waits for queued and running ones to finish.
func (p *Pool) Stop() {
	p.StopWithin(0)
}

// StopWithin is Stop with a drain limit. Once timeout passes, the job
// context is cancelled so running deliveries abort and the rest of the
// queue fails fast. A timeout of zero waits for the queue to drain.
func (p *Pool) StopWithin(timeout time.Duration) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.queue)
	started, cancel := p.started, p.cancel
	p.mu.Unlock()

	p.log.Info().Int("pending", len(p.queue)).Msg("stopping delivery worker pool")
	if started {
		if timeout > 0 {
			timer := time.NewTimer(timeout)
			select {
			case <-p.done:
			case <-timer.C:
				p.log.Warn().
					Dur("timeout", timeout).
					Int("pending", len(p.queue)).
					Msg("drain timeout reached, cancelling remaining deliveries")
				cancel()
				<-p.done
			}
			timer.Stop()
		} else {
			<-p.done
		}
		cancel()
	}
	p.log.Info().Msg("delivery worker pool stopped")
}

// Pending reports how many jobs wait in the queue.
func (p *Pool) Pending() int {
	return len(p.queue)
}
