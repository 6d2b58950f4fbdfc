package pong

import (
	"context"
	"time"
)

// DefaultTickRate is the nominal simulation frequency.
const DefaultTickRate = 60

// TickInterval converts a rate in Hz to a tick period.
func TickInterval(hz int) time.Duration {
	if hz <= 0 {
		hz = DefaultTickRate
	}
	return time.Second / time.Duration(hz)
}

// Scheduler hands out tick signals at a fixed cadence, but only while the
// match it follows is running. Its channel is nil otherwise, so a select on
// C() never fires for a paused or finished match.
type Scheduler struct {
	interval time.Duration
	ticker   *time.Ticker
}

func NewScheduler(interval time.Duration) *Scheduler {
	return &Scheduler{interval: interval}
}

// C returns the tick channel, or nil when stopped.
func (s *Scheduler) C() <-chan time.Time {
	if s.ticker == nil {
		return nil
	}
	return s.ticker.C
}

// Active reports whether ticks are being issued.
func (s *Scheduler) Active() bool {
	return s.ticker != nil
}

// Sync starts or stops the ticker to match the status.
func (s *Scheduler) Sync(status Status) {
	if status == Running {
		if s.ticker == nil {
			s.ticker = time.NewTicker(s.interval)
		}
		return
	}
	s.Stop()
}

func (s *Scheduler) Stop() {
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
}

// Run drives m until ctx is done, applying commands between ticks. Command
// errors go to onErr, which may be nil.
func Run(ctx context.Context, m *Match, interval time.Duration, commands <-chan Command, onErr func(error)) {
	sched := NewScheduler(interval)
	defer sched.Stop()

	for {
		sched.Sync(m.Status())

		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-commands:
			if !ok {
				commands = nil
				continue
			}
			if err := m.Apply(cmd); err != nil && onErr != nil {
				onErr(err)
			}
		case <-sched.C():
			m.Tick()
		}
	}
}
