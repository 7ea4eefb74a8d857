// File: client/supervisor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Reconnect supervisor: an explicit Idle → Retrying(n) → GaveUp state
// machine driven by abnormal-close events only. Pure policy, no I/O,
// so retry behavior is testable on its own.

package client

import (
	"sync"
	"time"
)

// SupervisorState enumerates the retry state machine.
type SupervisorState int

const (
	SupervisorIdle SupervisorState = iota
	SupervisorRetrying
	SupervisorGaveUp
)

// String returns the state name.
func (s SupervisorState) String() string {
	switch s {
	case SupervisorIdle:
		return "idle"
	case SupervisorRetrying:
		return "retrying"
	case SupervisorGaveUp:
		return "gave-up"
	default:
		return "unknown"
	}
}

// Supervisor decides whether and when the next reconnect attempt may
// run. A successful reconnect resets the attempt counter; exhausting
// the cap is terminal until the caller re-initiates manually.
type Supervisor struct {
	mu          sync.Mutex
	state       SupervisorState
	attempts    int
	maxAttempts int
	delay       time.Duration
}

// NewSupervisor builds a supervisor with the given attempt cap and
// fixed inter-attempt delay.
func NewSupervisor(maxAttempts int, delay time.Duration) *Supervisor {
	return &Supervisor{maxAttempts: maxAttempts, delay: delay}
}

// State returns the current supervisor state.
func (s *Supervisor) State() SupervisorState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// NextRetry requests permission for one more attempt. It returns the
// delay to wait before the attempt and the 1-based attempt number.
// ok is false once the cap is exhausted (or was never granted), after
// which the supervisor stays in GaveUp until Reset.
func (s *Supervisor) NextRetry() (delay time.Duration, attempt int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SupervisorGaveUp || s.attempts >= s.maxAttempts {
		s.state = SupervisorGaveUp
		return 0, s.attempts, false
	}
	s.state = SupervisorRetrying
	s.attempts++
	return s.delay, s.attempts, true
}

// Succeeded records a successful reconnect: the counter resets and the
// machine returns to Idle.
func (s *Supervisor) Succeeded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = SupervisorIdle
	s.attempts = 0
}

// Reset clears a GaveUp state for a manual re-initiation.
func (s *Supervisor) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = SupervisorIdle
	s.attempts = 0
}
