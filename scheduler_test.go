package persist_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oriumgames/persist"
)

func TestSchedulerAfter(t *testing.T) {
	s := persist.NewScheduler(epoch, nil)

	var order []string
	s.After(100*time.Millisecond, func(time.Time) { order = append(order, "b") })
	s.After(50*time.Millisecond, func(time.Time) { order = append(order, "a") })
	s.After(100*time.Millisecond, func(time.Time) { order = append(order, "c") })

	assert.Equal(t, 0, s.Tick(epoch.Add(49*time.Millisecond)))
	assert.Equal(t, 1, s.Tick(epoch.Add(50*time.Millisecond)))
	assert.Equal(t, 2, s.Tick(epoch.Add(150*time.Millisecond)))
	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, uint64(3), s.TickNumber())
}

func TestSchedulerDefersTasksAddedDuringTick(t *testing.T) {
	s := persist.NewScheduler(epoch, nil)

	ran := 0
	s.NextTick(func(time.Time) {
		s.NextTick(func(time.Time) { ran++ })
	})

	s.Tick(epoch)
	assert.Zero(t, ran)
	s.Tick(epoch)
	assert.Equal(t, 1, ran)
}

func TestSchedulerCancel(t *testing.T) {
	s := persist.NewScheduler(epoch, nil)

	ran := false
	timer := s.After(time.Millisecond, func(time.Time) { ran = true })
	timer.Cancel()
	timer.Cancel()

	s.Tick(epoch.Add(time.Second))
	assert.False(t, ran)
}

func TestSchedulerRecoversPanics(t *testing.T) {
	log, buf := logBuffer()
	s := persist.NewScheduler(epoch, log)

	ran := false
	s.NextTick(func(time.Time) { panic("boom") })
	s.NextTick(func(time.Time) { ran = true })

	require.NotPanics(t, func() { s.Tick(epoch) })
	assert.True(t, ran)
	assert.Contains(t, buf.String(), "scheduled task panicked")
	assert.Contains(t, buf.String(), "boom")
}

func TestSchedulerClockNeverRunsBackwards(t *testing.T) {
	s := persist.NewScheduler(epoch, nil)
	s.Tick(epoch.Add(time.Second))
	s.Tick(epoch)
	assert.Equal(t, epoch.Add(time.Second), s.Now())
}

func TestPollDone(t *testing.T) {
	s := persist.NewScheduler(epoch, nil)

	checks := 0
	var result []persist.PollResult
	p := s.Poll(persist.PollSpec{Delay: 100 * time.Millisecond, Interval: 100 * time.Millisecond, Attempts: 3},
		func() bool {
			checks++
			return checks == 2
		},
		func(r persist.PollResult) { result = append(result, r) })

	s.Tick(epoch.Add(50 * time.Millisecond))
	assert.Equal(t, persist.PollPending, p.Result())
	assert.Zero(t, checks)

	s.Tick(epoch.Add(100 * time.Millisecond))
	assert.Equal(t, persist.PollPending, p.Result())
	s.Tick(epoch.Add(200 * time.Millisecond))

	assert.Equal(t, persist.PollDone, p.Result())
	assert.Equal(t, 2, p.Attempts())
	assert.Equal(t, []persist.PollResult{persist.PollDone}, result)

	s.Tick(epoch.Add(time.Second))
	assert.Equal(t, 2, checks, "a settled poll never checks again")
}

func TestPollAttemptsExhausted(t *testing.T) {
	s := persist.NewScheduler(epoch, nil)

	var result []persist.PollResult
	p := s.Poll(persist.PollSpec{Interval: 10 * time.Millisecond, Attempts: 3},
		func() bool { return false },
		func(r persist.PollResult) { result = append(result, r) })

	for i := range 10 {
		s.Tick(epoch.Add(time.Duration(i*10) * time.Millisecond))
	}
	assert.Equal(t, persist.PollTimedOut, p.Result())
	assert.Equal(t, 3, p.Attempts())
	assert.Equal(t, []persist.PollResult{persist.PollTimedOut}, result)
}

func TestPollTimeout(t *testing.T) {
	s := persist.NewScheduler(epoch, nil)

	var got persist.PollResult
	p := s.Poll(persist.PollSpec{Timeout: time.Second},
		func() bool { return false },
		func(r persist.PollResult) { got = r })

	s.Tick(epoch.Add(500 * time.Millisecond))
	assert.Equal(t, persist.PollPending, p.Result())
	s.Tick(epoch.Add(999 * time.Millisecond))
	assert.Equal(t, persist.PollPending, p.Result())
	s.Tick(epoch.Add(time.Second))
	assert.Equal(t, persist.PollTimedOut, got)
}

func TestPollStepIsIdempotent(t *testing.T) {
	s := persist.NewScheduler(epoch, nil)

	calls := 0
	p := s.Poll(persist.PollSpec{Attempts: 1},
		func() bool { return true },
		func(persist.PollResult) { calls++ })

	assert.Equal(t, persist.PollDone, p.Step(epoch))
	assert.Equal(t, persist.PollDone, p.Step(epoch))
	s.Tick(epoch)
	assert.Equal(t, 1, calls)
}

func TestPollCancel(t *testing.T) {
	s := persist.NewScheduler(epoch, nil)

	called := false
	p := s.Poll(persist.PollSpec{Timeout: time.Second},
		func() bool { return false },
		func(persist.PollResult) { called = true })
	p.Cancel()

	s.Tick(epoch.Add(2 * time.Second))
	assert.False(t, called)
	assert.Equal(t, persist.PollTimedOut, p.Result())
}

func TestPollResultString(t *testing.T) {
	assert.Equal(t, "Pending", persist.PollPending.String())
	assert.Equal(t, "Done", persist.PollDone.String())
	assert.Equal(t, "TimedOut", persist.PollTimedOut.String())
	assert.Equal(t, "Opening", persist.Opening.String())
	assert.True(t, persist.Open.Active())
	assert.False(t, persist.Closing.Active())
}
