package monitor

import (
	"maps"
	"sync"
	"sync/atomic"
)

// RunState is the only state shared between the loop and the control
// surface: the running flag and the session the loop currently holds.
type RunState struct {
	running atomic.Bool

	mu      sync.Mutex
	session Session
}

// Running reports whether the loop should keep going.
func (s *RunState) Running() bool {
	return s.running.Load()
}

// RequestStop clears the running flag and reports whether it was set.
func (s *RunState) RequestStop() bool {
	return s.running.Swap(false)
}

// ForceRelease detaches the held session, if any, and hands it to the caller
// for closing.
func (s *RunState) ForceRelease() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.session
	s.session = nil
	return sess
}

func (s *RunState) begin() bool {
	return s.running.CompareAndSwap(false, true)
}

func (s *RunState) attach(sess Session) {
	s.mu.Lock()
	s.session = sess
	s.mu.Unlock()
}

// detach returns nil when ForceRelease already took the session.
func (s *RunState) detach() Session {
	return s.ForceRelease()
}

// AlertState records, per URL, whether an alert was already raised this run.
// Flags only ever move from false to true.
type AlertState struct {
	mu    sync.RWMutex
	flags map[string]bool
}

// NewAlertState starts every item unflagged.
func NewAlertState(items []WatchedItem) *AlertState {
	flags := make(map[string]bool, len(items))
	for _, item := range items {
		flags[item.URL] = false
	}
	return &AlertState{flags: flags}
}

// Alerted reports whether url has been flagged.
func (a *AlertState) Alerted(url string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.flags[url]
}

// MarkAlerted flags url. It reports whether the flag changed.
func (a *AlertState) MarkAlerted(url string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.flags[url] {
		return false
	}
	a.flags[url] = true
	return true
}

// Snapshot copies the current flags.
func (a *AlertState) Snapshot() map[string]bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return maps.Clone(a.flags)
}
