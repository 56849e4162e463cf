package drivercore

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// PollFunc is called on each poll interval, typically to read the device
// and write the result into the driver state.
type PollFunc func(ctx context.Context) error

// PollStatus represents the current polling status
type PollStatus struct {
	IsRunning           bool      `json:"is_running"`
	LastPollTime        time.Time `json:"last_poll_time,omitempty"`
	LastSuccessTime     time.Time `json:"last_success_time,omitempty"`
	LastErrorTime       time.Time `json:"last_error_time,omitempty"`
	LastError           string    `json:"last_error,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	TotalPolls          int64     `json:"total_polls"`
	TotalFailures       int64     `json:"total_failures"`
}

// PollerOptions contains configuration for the poller
type PollerOptions struct {
	Logger Logger
	Clock  Clock

	// MaxConsecutiveFailures before marking unhealthy (0 = unlimited)
	MaxConsecutiveFailures int

	OnSuccess   func()
	OnError     func(err error)
	OnUnhealthy func(failures int)

	// InitialDelay before first poll (default: 0)
	InitialDelay time.Duration
}

// Poller provides a managed polling loop with status reporting
type Poller struct {
	pollFn PollFunc
	opts   PollerOptions

	mu                  sync.RWMutex
	interval            time.Duration
	running             atomic.Bool
	lastPollTime        time.Time
	lastSuccessTime     time.Time
	lastErrorTime       time.Time
	lastError           error
	consecutiveFailures int
	totalPolls          int64
	totalFailures       int64

	resetCh chan time.Duration

	lifeMu sync.Mutex // serializes Start and Stop, guards stopCh
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewPoller creates a new poller with the given interval and poll function
func NewPoller(interval time.Duration, pollFn PollFunc, opts PollerOptions) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = NopLogger()
	}
	if opts.Clock == nil {
		opts.Clock = NewSystemClock()
	}
	return &Poller{
		interval: interval,
		pollFn:   pollFn,
		opts:     opts,
		resetCh:  make(chan time.Duration, 1),
	}
}

// NewPoller creates a poller that reports failures on the driver event
// surface as EventPollError (payload: error text) and EventPollUnhealthy
// (payload: consecutive failure count). Callbacks already set in opts run first.
func (d *Driver) NewPoller(interval time.Duration, pollFn PollFunc, opts PollerOptions) *Poller {
	if opts.Logger == nil {
		opts.Logger = d.logger
	}
	if opts.Clock == nil {
		opts.Clock = d.clock
	}

	onError := opts.OnError
	opts.OnError = func(err error) {
		if onError != nil {
			onError(err)
		}
		_ = d.Emit(EventPollError, err.Error())
	}

	onUnhealthy := opts.OnUnhealthy
	opts.OnUnhealthy = func(failures int) {
		if onUnhealthy != nil {
			onUnhealthy(failures)
		}
		_ = d.Emit(EventPollUnhealthy, failures)
	}

	return NewPoller(interval, pollFn, opts)
}

// Start begins the polling loop
func (p *Poller) Start(ctx context.Context) {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()
	if p.running.Load() {
		return // Already running
	}

	p.running.Store(true)
	p.stopCh = make(chan struct{})
	p.wg.Add(1)
	go p.loop(ctx, p.stopCh)
}

// Stop stops the polling loop and waits for an in-flight poll to finish
func (p *Poller) Stop() {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()
	if !p.running.Load() {
		return // Not running
	}
	p.running.Store(false)
	close(p.stopCh)
	p.wg.Wait()
}

// IsRunning returns true if the poller is running
func (p *Poller) IsRunning() bool {
	return p.running.Load()
}

// IsHealthy returns true if consecutive failures have not reached the maximum
func (p *Poller) IsHealthy() bool {
	if p.opts.MaxConsecutiveFailures <= 0 {
		return true
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.consecutiveFailures < p.opts.MaxConsecutiveFailures
}

// ConsecutiveFailures returns the current consecutive failure count
func (p *Poller) ConsecutiveFailures() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.consecutiveFailures
}

// LastError returns the last error
func (p *Poller) LastError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastError
}

// Status returns the current poll status
func (p *Poller) Status() PollStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()

	status := PollStatus{
		IsRunning:           p.running.Load(),
		LastPollTime:        p.lastPollTime,
		LastSuccessTime:     p.lastSuccessTime,
		LastErrorTime:       p.lastErrorTime,
		ConsecutiveFailures: p.consecutiveFailures,
		TotalPolls:          p.totalPolls,
		TotalFailures:       p.totalFailures,
	}
	if p.lastError != nil {
		status.LastError = p.lastError.Error()
	}
	return status
}

// PollNow runs one poll synchronously and returns its error
func (p *Poller) PollNow(ctx context.Context) error {
	return p.doPoll(ctx)
}

func (p *Poller) loop(ctx context.Context, stopCh chan struct{}) {
	defer p.wg.Done()

	if p.opts.InitialDelay > 0 {
		timer := time.NewTimer(p.opts.InitialDelay)
		select {
		case <-timer.C:
		case <-stopCh:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}

	_ = p.doPoll(ctx)

	ticker := time.NewTicker(p.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = p.doPoll(ctx)
		case d := <-p.resetCh:
			ticker.Reset(d)
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (p *Poller) doPoll(ctx context.Context) error {
	p.mu.Lock()
	p.lastPollTime = p.opts.Clock.Now()
	p.totalPolls++
	p.mu.Unlock()

	err := p.pollFn(ctx)

	p.mu.Lock()
	if err != nil {
		p.lastError = err
		p.lastErrorTime = p.opts.Clock.Now()
		p.consecutiveFailures++
		p.totalFailures++
		failures := p.consecutiveFailures
		p.mu.Unlock()

		p.opts.Logger.Error("poll failed", "err", err, "consecutive_failures", failures)

		if p.opts.OnError != nil {
			p.opts.OnError(err)
		}
		if p.opts.MaxConsecutiveFailures > 0 && failures == p.opts.MaxConsecutiveFailures {
			if p.opts.OnUnhealthy != nil {
				p.opts.OnUnhealthy(failures)
			}
		}
		return err
	}

	p.lastError = nil
	p.lastSuccessTime = p.opts.Clock.Now()
	p.consecutiveFailures = 0
	p.mu.Unlock()

	if p.opts.OnSuccess != nil {
		p.opts.OnSuccess()
	}
	return nil
}

// SetInterval changes the polling interval; a running loop resets its ticker
func (p *Poller) SetInterval(interval time.Duration) {
	if interval <= 0 {
		return
	}
	p.mu.Lock()
	p.interval = interval
	p.mu.Unlock()

	// keep only the latest pending reset
	select {
	case <-p.resetCh:
	default:
	}
	select {
	case p.resetCh <- interval:
	default:
	}
}

// Interval returns the current polling interval
func (p *Poller) Interval() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.interval
}
