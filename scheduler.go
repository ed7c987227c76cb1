package persist

import (
	"fmt"
	"log/slog"
	"time"
)

// Scheduler runs deferred callbacks and bounded polls on the simulation tick.
//
// It owns no goroutines and never reads the wall clock: the caller drives it
// with Tick, passing the current time. Tests advance time by passing later
// values.
//
// Usage:
//
//	sched := persist.NewScheduler(time.Now(), slog.Default())
//	sched.After(100*time.Millisecond, func(now time.Time) { ... })
//	for now := range ticker.C {
//	    sched.Tick(now)
//	}
type Scheduler struct {
	queue *taskQueue
	log   *slog.Logger

	// Tick tracking
	now        time.Time
	tickNumber uint64
}

// NewScheduler creates a scheduler whose clock starts at start. Panicking
// callbacks are reported to log, or to slog.Default when log is nil.
func NewScheduler(start time.Time, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		queue: newTaskQueue(),
		log:   log,
		now:   start,
	}
}

// Now returns the time of the latest tick.
func (s *Scheduler) Now() time.Time {
	return s.now
}

// TickNumber returns how many ticks have run.
func (s *Scheduler) TickNumber() uint64 {
	return s.tickNumber
}

// Pending returns the number of queued callbacks.
func (s *Scheduler) Pending() int {
	return s.queue.Len()
}

// Tick advances the clock to now and runs every callback that is due.
// Callbacks scheduled while the tick runs wait for a later tick, even with
// a zero delay. It returns the number of callbacks run.
func (s *Scheduler) Tick(now time.Time) int {
	if now.Before(s.now) {
		now = s.now
	}
	s.now = now
	s.tickNumber++

	ran := 0
	for _, task := range s.queue.PopDue(now) {
		// an earlier callback of this tick may have cancelled it
		if task.cancelled {
			continue
		}
		s.run(task, now)
		ran++
	}
	return ran
}

// run executes a task, logging instead of unwinding the tick on panic.
func (s *Scheduler) run(task *scheduledTask, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("persist: scheduled task panicked", "tick", s.tickNumber, "panic", fmt.Sprint(r))
		}
	}()
	task.fn(now)
}

// Timer is a handle to a scheduled callback.
type Timer struct {
	queue *taskQueue
	task  *scheduledTask
}

// Cancel prevents the callback from running. Cancelling twice, or after the
// callback ran, is a no-op.
func (t *Timer) Cancel() {
	if t != nil && t.task != nil {
		t.queue.Remove(t.task)
	}
}

// After schedules fn to run on the first tick at least d after the latest tick.
func (s *Scheduler) After(d time.Duration, fn func(now time.Time)) *Timer {
	if d < 0 {
		d = 0
	}
	task := &scheduledTask{at: s.now.Add(d), fn: fn}
	s.queue.Push(task)
	return &Timer{queue: s.queue, task: task}
}

// NextTick schedules fn to run on the next tick.
func (s *Scheduler) NextTick(fn func(now time.Time)) *Timer {
	return s.After(0, fn)
}

// PollSpec bounds a Poll.
type PollSpec struct {
	// Delay is the wait before the first check. Zero checks on the next tick.
	Delay time.Duration

	// Interval is the wait between checks. Zero checks every tick.
	Interval time.Duration

	// Timeout gives up once this much time has passed since the poll was
	// started. Zero means no time limit.
	Timeout time.Duration

	// Attempts gives up after this many failed checks. Zero means no limit.
	// When both Timeout and Attempts are zero a single check is made.
	Attempts int
}

// Poller is a bounded, repeating check. Each Step moves it through
// Pending → Done or Pending → TimedOut; once settled it stays settled.
type Poller struct {
	spec     PollSpec
	cond     func() bool
	done     func(PollResult)
	deadline time.Time
	nextRun  time.Time
	attempts int
	result   PollResult
	timer    *Timer
	sched    *Scheduler
}

// Poll starts a bounded poll of cond. done is called exactly once, with
// PollDone or PollTimedOut.
func (s *Scheduler) Poll(spec PollSpec, cond func() bool, done func(PollResult)) *Poller {
	if spec.Timeout <= 0 && spec.Attempts <= 0 {
		spec.Attempts = 1
	}
	p := &Poller{
		spec:  spec,
		cond:  cond,
		done:  done,
		sched: s,
	}
	if spec.Timeout > 0 {
		p.deadline = s.now.Add(spec.Timeout)
	}
	p.nextRun = s.now.Add(spec.Delay)
	p.timer = s.After(spec.Delay, p.tick)
	return p
}

// Result returns the current state of the poll.
func (p *Poller) Result() PollResult {
	return p.result
}

// Attempts returns how many checks have been made.
func (p *Poller) Attempts() int {
	return p.attempts
}

// Cancel stops the poll without calling done.
func (p *Poller) Cancel() {
	p.timer.Cancel()
	if p.result == PollPending {
		p.result = PollTimedOut
		p.done = nil
	}
}

// Step makes one check at now and returns the resulting state. Calling Step
// on a settled poll returns the settled state without checking again.
func (p *Poller) Step(now time.Time) PollResult {
	if p.result != PollPending {
		return p.result
	}
	p.attempts++
	switch {
	case p.cond():
		p.settle(PollDone)
	case !p.deadline.IsZero() && !now.Before(p.deadline):
		p.settle(PollTimedOut)
	case p.spec.Attempts > 0 && p.attempts >= p.spec.Attempts:
		p.settle(PollTimedOut)
	}
	return p.result
}

// tick is the scheduled form of Step that re-arms itself while pending.
func (p *Poller) tick(now time.Time) {
	if p.Step(now) != PollPending {
		return
	}
	// Drift-free rescheduling
	p.nextRun = p.nextRun.Add(p.spec.Interval)
	if p.nextRun.Before(now) {
		// Catch up if we're behind
		p.nextRun = now.Add(p.spec.Interval)
	}
	wait := p.nextRun.Sub(now)
	if !p.deadline.IsZero() && p.nextRun.After(p.deadline) {
		wait = p.deadline.Sub(now)
	}
	p.timer = p.sched.After(wait, p.tick)
}

// settle records the final result and reports it.
func (p *Poller) settle(r PollResult) {
	p.result = r
	if done := p.done; done != nil {
		p.done = nil
		done(r)
	}
}
