package pace

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// delayRecorder replaces the limiter's suspend primitive so pacing tests are
// deterministic: every requested delay is recorded and "elapses" instantly.
type delayRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *delayRecorder) suspend(d time.Duration) bool {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return true
}

func (r *delayRecorder) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]time.Duration, len(r.delays))
	copy(out, r.delays)
	return out
}

func waitIdle(t *testing.T, l *Limiter) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if !l.Snapshot().Running {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("limiter did not go idle")
}

func TestFixedDelaySpacing(t *testing.T) {
	t.Parallel()
	l, err := New("2 per second")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()
	if l.Interval() != 500*time.Millisecond {
		t.Fatalf("Interval = %v, want 500ms", l.Interval())
	}

	rec := &delayRecorder{}
	l.suspend = rec.suspend

	var wg sync.WaitGroup
	var order []int
	var mu sync.Mutex
	for i := 1; i <= 3; i++ {
		i := i
		wg.Add(1)
		l.Push(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		})
	}
	wg.Wait()
	waitIdle(t, l)

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("execution order = %v, want [1 2 3]", order)
	}
	// Every executed task is followed by one nominal-interval suspension,
	// which places task2 at ~500ms and task3 at ~1000ms on a real clock.
	for i, d := range rec.recorded() {
		if d != 500*time.Millisecond {
			t.Fatalf("delay[%d] = %v, want 500ms", i, d)
		}
	}
	if got := len(rec.recorded()); got != 3 {
		t.Fatalf("recorded %d delays, want 3", got)
	}
}

func TestPriorityRunsBeforeQueuedNormal(t *testing.T) {
	t.Parallel()
	l, err := New("1 per second")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()
	rec := &delayRecorder{}
	l.suspend = rec.suspend

	var mu sync.Mutex
	var order []string
	var wg sync.WaitGroup
	record := func(name string) Task {
		return func() {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			wg.Done()
		}
	}

	// The blocker holds the drain loop so the later pushes land while the
	// queue is demonstrably non-empty.
	release := make(chan struct{})
	wg.Add(5)
	l.Push(func() {
		<-release
		wg.Done()
	})
	l.Push(record("A"))
	l.PushPriority(record("B"))
	l.PushPriority(record("C"))
	l.Push(record("D"))
	close(release)

	wg.Wait()
	waitIdle(t, l)

	mu.Lock()
	defer mu.Unlock()
	want := []string{"B", "C", "A", "D"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestSingleFlightDrain(t *testing.T) {
	t.Parallel()
	l, err := New("1 per second")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()

	suspended := make(chan struct{})
	proceed := make(chan struct{})
	var entered atomic.Int32
	l.suspend = func(d time.Duration) bool {
		if entered.Add(1) == 1 {
			close(suspended)
			<-proceed
		}
		return true
	}

	var executed atomic.Int32
	var wg sync.WaitGroup
	task := func() {
		executed.Add(1)
		wg.Done()
	}

	wg.Add(1)
	l.Push(task)
	<-suspended

	// The loop is parked in its pacing suspension. If these pushes started
	// a second drain, tasks would execute while the first loop is parked.
	for i := 0; i < 4; i++ {
		wg.Add(1)
		l.Push(task)
	}
	if got := executed.Load(); got != 1 {
		t.Fatalf("executed %d tasks while drain suspended, want 1", got)
	}
	if !l.Snapshot().Running {
		t.Fatal("limiter must report running while draining")
	}

	close(proceed)
	wg.Wait()
	waitIdle(t, l)
	if got := executed.Load(); got != 5 {
		t.Fatalf("executed = %d, want 5", got)
	}
}

func TestQueueReleasedAfterDrain(t *testing.T) {
	t.Parallel()
	l, err := New("1 per second")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()
	rec := &delayRecorder{}
	l.suspend = rec.suspend

	var wg sync.WaitGroup
	wg.Add(1)
	l.PushPriority(func() { wg.Done() })
	wg.Wait()
	waitIdle(t, l)

	l.mu.Lock()
	released := l.q.prio == nil && l.q.normal == nil
	l.mu.Unlock()
	if !released {
		t.Fatal("drained queue must release its backing storage")
	}

	// A later push starts a fresh chain, not stale state.
	wg.Add(1)
	l.Push(func() { wg.Done() })
	wg.Wait()
	waitIdle(t, l)
	if snap := l.Snapshot(); snap.QueueLen != 0 {
		t.Fatalf("QueueLen = %d, want 0", snap.QueueLen)
	}
}

func TestBurstAllowancePacing(t *testing.T) {
	t.Parallel()
	var counts []int
	var cmu sync.Mutex
	l, err := NewWithRate(10, "per second",
		WithBurstAllowance(0.5),
		WithObserver(func(e Execution) {
			cmu.Lock()
			counts = append(counts, e.WindowCount)
			cmu.Unlock()
		}),
	)
	if err != nil {
		t.Fatalf("NewWithRate: %v", err)
	}
	defer l.Close()
	rec := &delayRecorder{}
	l.suspend = rec.suspend

	if l.burstFree != 5 {
		t.Fatalf("burstFree = %d, want 5", l.burstFree)
	}
	if l.throttled != 200*time.Millisecond {
		t.Fatalf("throttled = %v, want 200ms", l.throttled)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		l.Push(func() { wg.Done() })
	}
	wg.Wait()
	waitIdle(t, l)

	// First floor(10*0.5)=5 tasks run back-to-back; tasks 6..8 are each
	// followed by interval/(1-0.5).
	delays := rec.recorded()
	if len(delays) != 3 {
		t.Fatalf("recorded %d delays, want 3 (got %v)", len(delays), delays)
	}
	for i, d := range delays {
		if d != 200*time.Millisecond {
			t.Fatalf("delay[%d] = %v, want 200ms", i, d)
		}
	}

	cmu.Lock()
	defer cmu.Unlock()
	for i, c := range counts {
		if c != i+1 {
			t.Fatalf("window counts = %v, want 1..8", counts)
		}
	}
}

func TestBurstWindowReset(t *testing.T) {
	t.Parallel()
	var resets []int
	var rmu sync.Mutex
	l, err := NewWithRate(10, "per second",
		WithBurstAllowance(0.5),
		WithResetObserver(func(made int) {
			rmu.Lock()
			resets = append(resets, made)
			rmu.Unlock()
		}),
	)
	if err != nil {
		t.Fatalf("NewWithRate: %v", err)
	}
	defer l.Close()
	rec := &delayRecorder{}
	l.suspend = rec.suspend

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		l.Push(func() { wg.Done() })
	}
	wg.Wait()
	waitIdle(t, l)
	if got := l.Snapshot().RequestsMade; got != 6 {
		t.Fatalf("RequestsMade = %d, want 6", got)
	}

	// Task 6 exceeded the burst allowance, so exactly one delay so far.
	if got := len(rec.recorded()); got != 1 {
		t.Fatalf("recorded %d delays before reset, want 1", got)
	}

	// A window boundary restores burst eligibility regardless of queue state.
	l.resetWindow()
	if got := l.Snapshot().RequestsMade; got != 0 {
		t.Fatalf("RequestsMade after reset = %d, want 0", got)
	}
	rmu.Lock()
	if len(resets) == 0 || resets[len(resets)-1] != 6 {
		t.Fatalf("reset observer saw %v, want final entry 6", resets)
	}
	rmu.Unlock()

	// Tasks after the reset run back-to-back again until the allowance is
	// spent a second time.
	for i := 0; i < 3; i++ {
		wg.Add(1)
		l.Push(func() { wg.Done() })
	}
	wg.Wait()
	waitIdle(t, l)
	if got := len(rec.recorded()); got != 1 {
		t.Fatalf("recorded %d delays after reset, want 1 (reset must restore burst eligibility)", got)
	}
	if got := l.Snapshot().RequestsMade; got != 3 {
		t.Fatalf("RequestsMade = %d, want 3", got)
	}
}

func TestBurstResetFiresWithEmptyQueue(t *testing.T) {
	t.Parallel()
	fired := make(chan int, 4)
	l, err := NewWithRate(4, "per second",
		WithBurstAllowance(0.5),
		WithResetObserver(func(made int) {
			select {
			case fired <- made:
			default:
			}
		}),
	)
	if err != nil {
		t.Fatalf("NewWithRate: %v", err)
	}
	defer l.Close()

	// Nothing is ever pushed; the wall-clock cadence alone drives resets.
	select {
	case made := <-fired:
		if made != 0 {
			t.Fatalf("reset saw requestsMade = %d, want 0", made)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("window reset did not fire")
	}
}

func TestConstructorFailures(t *testing.T) {
	t.Parallel()
	if _, err := New("Invalid Spec"); !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("New(Invalid Spec) = %v, want ErrInvalidDuration", err)
	}
	if _, err := NewWithRate(10, "per fortnight"); !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("NewWithRate bad unit = %v, want ErrInvalidDuration", err)
	}
	if _, err := New("2 per second", WithBurstAllowance(1.5)); !errors.Is(err, ErrInvalidBurst) {
		t.Fatalf("bad burst fraction = %v, want ErrInvalidBurst", err)
	}
}

func TestPanickingTaskConsumesTurn(t *testing.T) {
	t.Parallel()
	l, err := New("2 per second", WithName("panics"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()
	rec := &delayRecorder{}
	l.suspend = rec.suspend

	var wg sync.WaitGroup
	wg.Add(1)
	ran := false
	l.Push(func() { panic("boom") })
	l.Push(func() {
		ran = true
		wg.Done()
	})
	wg.Wait()
	waitIdle(t, l)

	if !ran {
		t.Fatal("task after a panicking task must still run")
	}
	// The panicking task still consumed a paced turn.
	if got := len(rec.recorded()); got != 2 {
		t.Fatalf("recorded %d delays, want 2", got)
	}
}

func TestCloseStopsDrainAndIgnoresPush(t *testing.T) {
	t.Parallel()
	l, err := New("1 per second")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var executed atomic.Int32
	started := make(chan struct{})
	l.Push(func() {
		executed.Add(1)
		close(started)
	})
	l.Push(func() { executed.Add(1) })
	<-started

	// The loop is now in its 1s pacing suspension; Close wakes it.
	l.Close()
	waitIdle(t, l)
	if got := executed.Load(); got != 1 {
		t.Fatalf("executed = %d after close, want 1", got)
	}

	l.Push(func() { executed.Add(1) })
	time.Sleep(20 * time.Millisecond)
	if got := executed.Load(); got != 1 {
		t.Fatalf("push after close executed a task (count %d)", got)
	}

	// Idempotent.
	l.Close()
}
