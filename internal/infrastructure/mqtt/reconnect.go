package mqtt

import (
	"context"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"
)

// Reconnection schedule constants.
const (
	// DefaultBaseMin and DefaultBaseMax bound the per-process random base, in units.
	DefaultBaseMin = 5
	DefaultBaseMax = 15

	// shortPhaseAttempts is the last attempt that waits one base.
	shortPhaseAttempts = 7

	// mediumPhaseAttempts is the last attempt that waits mediumFactor bases.
	mediumPhaseAttempts = 13

	mediumFactor = 6
	longFactor   = 30
)

// Backoff computes the delay before each reconnection attempt.
//
// With a base B the schedule is:
//   - attempts 1-7:  B
//   - attempts 8-13: 6B
//   - attempts 14+:  30B
//
// With the default one-second unit and B in [5s, 15s] that is roughly ten
// seconds, then about a minute, then about five minutes between attempts.
type Backoff struct {
	Base time.Duration
}

// RandomBase picks a base uniformly in [minUnits, maxUnits] units.
// It is meant to be called once per process so that a fleet of devices
// does not reconnect in lockstep after a broker restart.
func RandomBase(minUnits, maxUnits int, unit time.Duration) time.Duration {
	if minUnits <= 0 {
		minUnits = DefaultBaseMin
	}
	if maxUnits < minUnits {
		maxUnits = minUnits
	}
	if unit <= 0 {
		unit = time.Second
	}
	n := minUnits + rand.IntN(maxUnits-minUnits+1) //nolint:gosec // jitter, not security
	return time.Duration(n) * unit
}

// Delay returns the wait before the given 1-based attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	switch {
	case attempt > mediumPhaseAttempts:
		return b.Base * longFactor
	case attempt > shortPhaseAttempts:
		return b.Base * mediumFactor
	default:
		return b.Base
	}
}

// ReconnectFunc makes one reconnection attempt and reports whether the
// connection is up afterwards. It must honour ctx cancellation.
type ReconnectFunc func(ctx context.Context, attempt int) bool

// Scheduler drives the background retry loop used after a connection is lost.
//
// At most one loop runs at a time. The loop sleeps for the backoff delay,
// makes one attempt and repeats until an attempt succeeds or Stop is called.
// It never gives up on its own.
//
// Thread Safety:
//   - All methods are safe for concurrent use, including from inside the
//     ReconnectFunc.
type Scheduler struct {
	backoff Backoff
	attempt ReconnectFunc
	logger  Logger

	mu      sync.Mutex
	gen     uint64
	running bool
	restart bool
	cancel  context.CancelFunc

	attempts atomic.Int64
	wg       sync.WaitGroup
}

// NewScheduler creates a scheduler that calls fn on each attempt.
// A nil logger discards output.
func NewScheduler(backoff Backoff, fn ReconnectFunc, logger Logger) *Scheduler {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Scheduler{
		backoff: backoff,
		attempt: fn,
		logger:  logger,
	}
}

// Backoff returns the schedule in use.
func (s *Scheduler) Backoff() Backoff {
	return s.backoff
}

// Start launches the retry loop bound to parent. It returns false, and does
// nothing else, when a loop is already running for the current episode.
//
// If the running loop is about to finish because its last attempt
// succeeded, the request is remembered and the loop starts a fresh
// episode instead of exiting.
func (s *Scheduler) Start(parent context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.restart = true
		return false
	}

	s.gen++
	ctx, cancel := context.WithCancel(parent)
	s.running = true
	s.restart = false
	s.cancel = cancel
	s.attempts.Store(0)

	s.wg.Add(1)
	go s.run(ctx, cancel, s.gen)

	return true
}

// Stop cancels the running loop, interrupting its sleep. It does not wait
// for the loop to exit, so it is safe to call from inside the ReconnectFunc
// or from an event listener. Use Wait to block until the goroutine is gone.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.running = false
	s.restart = false
}

// Wait blocks until every loop goroutine has exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Running reports whether a retry loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Attempts returns the number of attempts made in the current episode.
func (s *Scheduler) Attempts() int {
	return int(s.attempts.Load())
}

// run is the retry loop for one generation.
func (s *Scheduler) run(ctx context.Context, cancel context.CancelFunc, gen uint64) {
	defer s.wg.Done()
	defer cancel()

	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for attempt := 1; ; attempt++ {
		delay := s.backoff.Delay(attempt)
		s.logger.Info("MQTT reconnect scheduled", "attempt", attempt, "delay", delay)

		timer.Reset(delay)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			s.logger.Info("MQTT reconnect cancelled", "attempt", attempt)
			s.finish(gen)
			return
		case <-timer.C:
		}

		s.attempts.Store(int64(attempt))
		if !s.attempt(ctx, attempt) {
			if ctx.Err() != nil {
				s.finish(gen)
				return
			}
			continue
		}

		s.mu.Lock()
		if s.gen == gen && s.restart {
			s.restart = false
			s.mu.Unlock()
			s.logger.Info("MQTT connection lost again during reconnect, starting new episode")
			attempt = 0
			continue
		}
		if s.gen == gen {
			s.running = false
			s.cancel = nil
		}
		s.mu.Unlock()

		s.logger.Info("MQTT reconnect succeeded", "attempts", attempt)
		return
	}
}

// finish marks generation gen as stopped if it is still current.
func (s *Scheduler) finish(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == gen {
		s.running = false
		s.cancel = nil
		s.restart = false
	}
}
