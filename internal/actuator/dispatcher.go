package actuator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// ErrQueueFull is returned when an area's worker queue has no room
var ErrQueueFull = errors.New("actuator queue full")

// ErrClosed is returned after Close
var ErrClosed = errors.New("actuator dispatcher closed")

// Default configuration
const (
	DefaultWorkerCount = 4
	DefaultQueueSize   = 64
	DefaultTimeout     = 5 * time.Second
	DefaultRateLimit   = 10.0
)

// DispatcherConfig tunes the worker pool
type DispatcherConfig struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
	RateLimit float64 // commands per second
}

type job struct {
	area string
	cmds []Command
}

// Dispatcher delivers command sequences without blocking the caller.
// Jobs for one area always land on the same worker, so they stay ordered.
type Dispatcher struct {
	backend Actuator
	limiter *rate.Limiter
	timeout time.Duration

	queues []chan job
	wg     sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	// mu guards closed against sends racing the queue close
	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts the worker pool
func NewDispatcher(backend Actuator, cfg DispatcherConfig) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkerCount
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = DefaultRateLimit
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		backend: backend,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), max(1, int(cfg.RateLimit))),
		timeout: cfg.Timeout,
		queues:  make([]chan job, cfg.Workers),
		ctx:     ctx,
		cancel:  cancel,
	}

	for i := range d.queues {
		d.queues[i] = make(chan job, cfg.QueueSize)
		d.wg.Add(1)
		go d.worker(i, d.queues[i])
	}

	log.Debug().
		Int("workers", cfg.Workers).
		Int("queue_size", cfg.QueueSize).
		Float64("rate_limit", cfg.RateLimit).
		Msg("Actuator dispatcher started")
	return d
}

// Submit queues a command sequence for an area and returns immediately
func (d *Dispatcher) Submit(areaID string, cmds ...Command) error {
	if len(cmds) == 0 {
		return nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}

	q := d.queues[xxhash.Sum64String(areaID)%uint64(len(d.queues))]
	select {
	case q <- job{area: areaID, cmds: cmds}:
		return nil
	default:
		log.Warn().Str("area", areaID).Msg("Actuator queue full, dropping command")
		return ErrQueueFull
	}
}

func (d *Dispatcher) worker(id int, queue <-chan job) {
	defer d.wg.Done()

	for j := range queue {
		d.run(id, j)
	}
}

func (d *Dispatcher) run(id int, j job) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("area", j.area).
				Int("worker", id).
				Msg("Actuator panicked")
		}
	}()

	for _, cmd := range j.cmds {
		if cmd.Delay > 0 {
			select {
			case <-time.After(cmd.Delay):
			case <-d.ctx.Done():
				return
			}
		}
		if err := d.limiter.Wait(d.ctx); err != nil {
			return
		}

		ctx, cancel := context.WithTimeout(d.ctx, d.timeout)
		err := d.backend.Apply(ctx, j.area, cmd)
		cancel()

		if err != nil {
			log.Error().
				Err(err).
				Str("area", j.area).
				Stringer("command", cmd).
				Msg("Failed to actuate area")
			return
		}
		log.Debug().
			Str("area", j.area).
			Stringer("command", cmd).
			Msg("Actuated area")
	}
}

// Close stops accepting work and waits for queued commands to drain
func (d *Dispatcher) Close(ctx context.Context) {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		for _, q := range d.queues {
			close(q)
		}
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Debug().Msg("Actuator workers stopped gracefully")
	case <-ctx.Done():
		d.cancel()
		log.Warn().Msg("Actuator shutdown timed out, some commands may be lost")
	}
	d.cancel()
}
