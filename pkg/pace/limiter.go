package pace

import (
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	xrate "golang.org/x/time/rate"

	logx "pacekit/pkg/logx"
)

// Task is an opaque deferred unit of work. It runs on the limiter's drain
// goroutine and must not block it indefinitely; any asynchrony inside the
// task is the task's own concern.
type Task func()

// Execution describes one completed task invocation, delivered to the
// observer installed via WithObserver.
type Execution struct {
	Limiter   string
	Priority  bool
	QueuedAt  time.Time
	StartedAt time.Time
	Wait      time.Duration

	// WindowCount is the 1-based position of this execution within the
	// current quota window. Zero when burst allowance is disabled.
	WindowCount int
}

// Option configures a Limiter at construction time.
type Option func(*Limiter)

func WithName(name string) Option {
	return func(l *Limiter) { l.name = name }
}

func WithLogger(log logx.Logger) Option {
	return func(l *Limiter) { l.log = log }
}

// WithObserver installs a callback fired after every executed task.
func WithObserver(fn func(Execution)) Option {
	return func(l *Limiter) { l.observer = fn }
}

// WithResetObserver installs a callback fired on every quota window reset,
// carrying the number of requests the closing window consumed.
func WithResetObserver(fn func(requestsMade int)) Option {
	return func(l *Limiter) { l.onReset = fn }
}

// WithBurstAllowance enables burst pacing: the first fraction of each quota
// window runs back-to-back, and the throttled remainder is spaced at
// Interval() / (1 - fraction) so the window still averages the nominal rate.
func WithBurstAllowance(fraction float64) Option {
	return func(l *Limiter) {
		l.burst = true
		l.limitAfter = fraction
	}
}

// DefaultBurstAllowance is the fraction used when burst pacing is enabled
// without an explicit value.
const DefaultBurstAllowance = 0.5

// Limiter paces an unbounded queue of tasks against one external rate
// budget. Construct one per budget; it lives for the process lifetime
// unless Close is called.
type Limiter struct {
	name     string
	log      logx.Logger
	rate     Rate
	interval time.Duration

	// Burst allowance (strategy B). burstFree tasks per window run with no
	// spacing; later ones wait throttled between executions.
	burst      bool
	limitAfter float64
	burstFree  int
	throttled  time.Duration
	resetCron  *cron.Cron

	observer func(Execution)
	onReset  func(int)

	// panicWarn keeps a hot failing task from flooding the log.
	panicWarn *xrate.Limiter

	mu           sync.Mutex
	q            taskQueue
	running      bool
	requestsMade int
	closed       bool

	done chan struct{}

	// suspend is the cooperative pacing primitive; swapped in tests.
	suspend func(d time.Duration) bool
}

// New builds a limiter from a rate string such as "2 per second".
func New(spec string, opts ...Option) (*Limiter, error) {
	r, err := ParseRate(spec)
	if err != nil {
		return nil, err
	}
	return newLimiter(r, opts)
}

// NewWithRate builds a limiter from an explicit count and unit string,
// e.g. NewWithRate(60, "per minute").
func NewWithRate(count int, unit string, opts ...Option) (*Limiter, error) {
	r, err := RateOf(count, unit)
	if err != nil {
		return nil, err
	}
	return newLimiter(r, opts)
}

func newLimiter(r Rate, opts []Option) (*Limiter, error) {
	l := &Limiter{
		rate:       r,
		interval:   r.Interval(),
		limitAfter: DefaultBurstAllowance,
		panicWarn:  xrate.NewLimiter(xrate.Every(time.Second), 1),
		done:       make(chan struct{}),
	}
	l.suspend = l.sleep
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	if l.log.IsZero() {
		l.log = logx.Nop()
	}
	if l.name != "" {
		l.log = l.log.With(logx.String("limiter", l.name))
	}

	if l.burst {
		if l.limitAfter <= 0 || l.limitAfter >= 1 {
			return nil, fmt.Errorf("%w: %v", ErrInvalidBurst, l.limitAfter)
		}
		l.burstFree = int(float64(r.Count) * l.limitAfter)
		l.throttled = time.Duration(float64(l.interval) / (1 - l.limitAfter))

		// The window boundary is wall-clock periodic, independent of queue
		// activity. A reset landing mid-burst restores burst eligibility.
		l.resetCron = cron.New()
		l.resetCron.Schedule(cron.Every(r.Unit.Duration()), cron.FuncJob(l.resetWindow))
		l.resetCron.Start()
	}

	l.log.Debug("limiter created",
		logx.String("rate", r.String()),
		logx.Duration("interval", l.interval),
		logx.Bool("burst", l.burst),
	)
	return l, nil
}

// Rate returns the budget the limiter was constructed with.
func (l *Limiter) Rate() Rate { return l.rate }

// Interval returns the nominal fixed-delay spacing between tasks.
func (l *Limiter) Interval() time.Duration { return l.interval }

// Push enqueues a normal-priority task. It never blocks and never fails;
// the queue is unbounded. Returns the limiter for chaining.
func (l *Limiter) Push(task Task) *Limiter { return l.push(task, false) }

// PushPriority enqueues a task ahead of all queued normal tasks while
// keeping FIFO order among priority tasks.
func (l *Limiter) PushPriority(task Task) *Limiter { return l.push(task, true) }

func (l *Limiter) push(task Task, priority bool) *Limiter {
	if task == nil {
		return l
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		l.log.Debug("push ignored: limiter closed")
		return l
	}
	l.q.push(queued{run: task, priority: priority, at: time.Now()})
	start := !l.running
	if start {
		l.running = true
	}
	l.mu.Unlock()

	// Single-flight drain: only an idle limiter starts a loop; an active
	// loop picks up the new entry from the shared queue.
	if start {
		go l.drain()
	}
	return l
}

func (l *Limiter) drain() {
	for {
		l.mu.Lock()
		item, ok := l.q.pop()
		if !ok {
			// Drained empty: release the backing storage and go idle so
			// the next push starts a fresh chain.
			l.q.release()
			l.running = false
			l.mu.Unlock()
			return
		}

		pause := l.interval
		windowCount := 0
		if l.burst {
			l.requestsMade++
			windowCount = l.requestsMade
			if l.requestsMade <= l.burstFree {
				pause = 0
			} else {
				pause = l.throttled
			}
		}
		l.mu.Unlock()

		l.invoke(item, windowCount)

		if pause > 0 {
			if !l.suspend(pause) {
				l.stopDraining()
				return
			}
		} else if l.isClosed() {
			l.stopDraining()
			return
		}
	}
}

func (l *Limiter) invoke(item queued, windowCount int) {
	started := time.Now()

	// A panicking task consumes its turn and the loop advances; the
	// limiter promises invocation timing, not invocation success.
	func() {
		defer func() {
			if r := recover(); r != nil {
				if l.panicWarn.Allow() {
					l.log.Warn("task panicked",
						logx.Any("panic", r),
						logx.Stack(string(debug.Stack())),
					)
				}
			}
		}()
		item.run()
	}()

	if l.observer != nil {
		l.observer(Execution{
			Limiter:     l.name,
			Priority:    item.priority,
			QueuedAt:    item.at,
			StartedAt:   started,
			Wait:        started.Sub(item.at),
			WindowCount: windowCount,
		})
	}
}

func (l *Limiter) resetWindow() {
	l.mu.Lock()
	made := l.requestsMade
	l.requestsMade = 0
	l.mu.Unlock()

	l.log.Trace("quota window reset", logx.Int("requests_made", made))
	if l.onReset != nil {
		l.onReset(made)
	}
}

func (l *Limiter) stopDraining() {
	l.mu.Lock()
	l.running = false
	l.mu.Unlock()
}

func (l *Limiter) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-l.done:
		return false
	case <-t.C:
		return true
	}
}

func (l *Limiter) isClosed() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// Close stops the recurring window-reset schedule and wakes the drain loop
// so it exits at its next suspension point. Queued tasks are discarded;
// queued work is never persisted. Close is idempotent.
func (l *Limiter) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	c := l.resetCron
	l.resetCron = nil
	l.mu.Unlock()

	close(l.done)
	if c != nil {
		<-c.Stop().Done()
	}
	l.log.Debug("limiter closed")
}
