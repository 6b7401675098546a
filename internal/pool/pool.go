// Package pool runs background tasks on a bounded set of worker goroutines.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	ErrPoolClosed = errors.New("pool is closed")
	ErrPoolFull   = errors.New("pool is full")
)

// Task is a unit of background work.
type Task func(ctx context.Context) error

// Config 工作池配置
type Config struct {
	// 最大并发 worker 数
	MaxWorkers int `json:"max_workers"`
	// 等待队列长度（至少为 1），满时 Submit 返回 ErrPoolFull
	QueueSize int `json:"queue_size"`
	// 空闲 worker 退出前的等待时间
	IdleTimeout time.Duration `json:"idle_timeout"`
}

// DefaultConfig returns the limits used for asynchronous room triggers.
func DefaultConfig() Config {
	return Config{
		MaxWorkers:  16,
		QueueSize:   256,
		IdleTimeout: 30 * time.Second,
	}
}

// Pool starts workers lazily up to MaxWorkers. Workers exit after
// IdleTimeout without work, so an idle pool holds no goroutines.
type Pool struct {
	cfg    Config
	queue  chan job
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	workers   atomic.Int32
	active    atomic.Int32
	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
}

type job struct {
	ctx  context.Context
	task Task
}

// New creates a pool. Non-positive limits fall back to DefaultConfig.
func New(cfg Config, logger *zap.Logger) *Pool {
	def := DefaultConfig()
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = def.MaxWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = def.IdleTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		cfg:    cfg,
		queue:  make(chan job, cfg.QueueSize),
		logger: logger.With(zap.String("component", "pool")),
	}
}

// Submit enqueues task without blocking. It returns ErrPoolFull when the
// queue is full.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	p.submitted.Add(1)
	select {
	case p.queue <- job{ctx: ctx, task: task}:
	default:
		p.rejected.Add(1)
		return ErrPoolFull
	}
	p.spawn()
	return nil
}

// spawn starts a worker while queued jobs outnumber idle workers.
func (p *Pool) spawn() {
	for {
		n := p.workers.Load()
		if n >= int32(p.cfg.MaxWorkers) || n-p.active.Load() >= int32(len(p.queue)) {
			return
		}
		if p.workers.CompareAndSwap(n, n+1) {
			p.wg.Add(1)
			go p.worker()
			return
		}
	}
}

// retire drops the worker from the count unless a job arrived meanwhile.
// Decrementing before the queue check pairs with Submit, which enqueues
// before reading the count, so a queued job always finds a worker.
func (p *Pool) retire() bool {
	p.workers.Add(-1)
	if len(p.queue) == 0 {
		return true
	}
	for {
		n := p.workers.Load()
		if n >= int32(p.cfg.MaxWorkers) {
			return true
		}
		if p.workers.CompareAndSwap(n, n+1) {
			return false
		}
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	idle := time.NewTimer(p.cfg.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case j, ok := <-p.queue:
			if !ok {
				p.workers.Add(-1)
				return
			}
			p.active.Add(1)
			err := p.run(j)
			p.active.Add(-1)
			if err != nil {
				p.failed.Add(1)
			} else {
				p.completed.Add(1)
			}
			idle.Reset(p.cfg.IdleTimeout)
		case <-idle.C:
			if p.retire() {
				return
			}
			idle.Reset(p.cfg.IdleTimeout)
		}
	}
}

func (p *Pool) run(j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
			p.logger.Error("task panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	return j.task(j.ctx)
}

// Close stops accepting tasks and blocks until queued and running tasks
// finish. It is safe to call more than once.
func (p *Pool) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// Stats 工作池统计
type Stats struct {
	Workers   int   `json:"workers"`
	Active    int   `json:"active"`
	Queued    int   `json:"queued"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Rejected  int64 `json:"rejected"`
}

// Stats returns a point-in-time snapshot of the counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:   int(p.workers.Load()),
		Active:    int(p.active.Load()),
		Queued:    len(p.queue),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Rejected:  p.rejected.Load(),
	}
}
