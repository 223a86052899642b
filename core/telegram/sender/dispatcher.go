// Package sender runs outbound Telegram calls on a small worker pool so a
// slow or rate-limited Bot API never stalls update handling.
package sender

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/relaybot/core/logger"
	"github.com/m3rciful/relaybot/core/telegram/netutil"
)

var (
	// ErrClosed is returned for calls submitted after Close.
	ErrClosed = errors.New("telegram sender: closed")
	// ErrBusy is returned when the queue is full and the call was not accepted.
	ErrBusy = errors.New("telegram sender: queue full")
)

// Options tunes the pool. Zero values select the defaults.
type Options struct {
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds one call, retries and waits included.
	MaxDuration time.Duration
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	o.MaxRetries = max(o.MaxRetries, 0)
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = 12 * time.Second
	}
	return o
}

type call struct {
	ctx    context.Context
	method string
	run    func() error
	result chan error
}

// Dispatcher executes Bot API calls with bounded concurrency and retries
// transient failures.
type Dispatcher struct {
	opts  Options
	calls chan call

	// mu guards closed so nothing is sent on a closed channel.
	mu     sync.RWMutex
	closed bool

	wg     sync.WaitGroup
	failed atomic.Uint64
}

// NewDispatcher starts the workers.
func NewDispatcher(opts Options) *Dispatcher {
	opts = opts.withDefaults()
	d := &Dispatcher{opts: opts, calls: make(chan call, opts.QueueSize)}
	d.wg.Add(opts.Workers)
	for range opts.Workers {
		go d.work()
	}
	return d
}

// Do runs fn on the pool and returns its final result. It returns early with
// ctx.Err() when ctx ends first; fn must be safe to repeat.
func (d *Dispatcher) Do(ctx context.Context, method string, fn func() error) error {
	if fn == nil {
		return errors.New("telegram sender: nil call")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	c := call{ctx: ctx, method: method, run: fn, result: make(chan error, 1)}

	if err := d.submit(c); err != nil {
		return err
	}
	select {
	case err := <-c.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) submit(c call) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	select {
	case d.calls <- c:
		return nil
	default:
		return ErrBusy
	}
}

// Failures reports how many calls ended in error.
func (d *Dispatcher) Failures() uint64 {
	return d.failed.Load()
}

// Close rejects new calls and waits for queued ones to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.calls)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for c := range d.calls {
		c.result <- d.execute(c)
	}
}

func (d *Dispatcher) execute(c call) error {
	ctx, cancel := context.WithTimeout(c.ctx, d.opts.MaxDuration)
	defer cancel()
	start := time.Now()

	var err error
	attempt := 0
	for {
		attempt++
		if err = ctx.Err(); err != nil {
			break
		}
		if err = c.run(); err == nil {
			logger.Debug(ctx, "tg.sender", "send.ok",
				slog.String("method", c.method),
				slog.Int("attempt", attempt),
				slog.Duration("elapsed", time.Since(start)),
			)
			return nil
		}
		delay, again := d.retryDelay(err, attempt)
		if !again {
			break
		}
		logger.Debug(ctx, "tg.sender", "send.retry",
			slog.String("method", c.method),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.Any("err", err),
		)
		if err = sleep(ctx, delay); err != nil {
			break
		}
	}

	d.failed.Add(1)
	logger.Error(ctx, "tg.sender", "send.fail",
		slog.String("method", c.method),
		slog.String("error_kind", failureKind(err)),
		slog.Int("attempts", attempt),
		slog.Duration("elapsed", time.Since(start)),
		slog.Any("err", err),
	)
	return err
}

// retryDelay grows linearly with the attempt number and never undercuts a
// flood-control wait.
func (d *Dispatcher) retryDelay(err error, attempt int) (time.Duration, bool) {
	if attempt > d.opts.MaxRetries || !netutil.ShouldRetry(err) {
		return 0, false
	}
	return max(d.opts.RetryBackoff*time.Duration(attempt), netutil.RetryAfter(err)), true
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// failureKind buckets an error for the send.fail event.
func failureKind(err error) string {
	var (
		flood  tele.FloodError
		apiErr *tele.Error
		netErr net.Error
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.As(err, &flood):
		return "flood"
	case errors.As(err, &apiErr) && apiErr.Code >= 500:
		return "http_5xx"
	case apiErr != nil && apiErr.Code >= 400:
		return "http_4xx"
	case errors.As(err, &netErr):
		if netErr.Timeout() {
			return "timeout"
		}
		return "network"
	}
	return "unknown"
}
