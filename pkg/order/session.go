package order

import (
	"sync"
	"time"
)

// DefaultMaxHistory is the maximum number of transition records kept on a
// session before the oldest are evicted.
const DefaultMaxHistory = 200

// TransitionRecord records one accepted state change for audit purposes.
type TransitionRecord struct {
	FromState State     `json:"from_state"`
	ToState   State     `json:"to_state"`
	Trigger   string    `json:"trigger"`
	Timestamp time.Time `json:"timestamp"`
}

// Session holds the per-conversation mutable state. All access is
// thread-safe; the engine additionally serializes input application per
// session, so fields are never mutated concurrently.
type Session struct {
	mu         sync.RWMutex
	maxHistory int

	ID         string
	ScriptName string
	State      State
	Fields     Fields
	History    []TransitionRecord
	StartTime  time.Time
	LastActive time.Time
}

// NewSession creates a session positioned at the entry state with empty
// fields.
func NewSession(id, scriptName string) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		ScriptName: scriptName,
		State:      StateAwaitingCustomerName,
		StartTime:  now,
		LastActive: now,
		maxHistory: DefaultMaxHistory,
	}
}

// CurrentState returns the current state.
func (s *Session) CurrentState() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.State
}

// CopyFields returns a snapshot of the accumulated fields.
func (s *Session) CopyFields() Fields {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Fields
}

// SetOutcome stores the fields and state produced by one transition and
// records it in the history when the state changed.
func (s *Session) SetOutcome(fields Fields, next State, trigger string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if next != s.State {
		if len(s.History) >= s.maxHistory {
			evict := s.maxHistory / 10
			if evict < 1 {
				evict = 1
			}
			s.History = s.History[evict:]
		}
		s.History = append(s.History, TransitionRecord{
			FromState: s.State,
			ToState:   next,
			Trigger:   trigger,
			Timestamp: time.Now(),
		})
	}
	s.Fields = fields
	s.State = next
	s.LastActive = time.Now()
}

// Touch refreshes the inactivity clock without changing state.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastActive = time.Now()
}

// IdleSince returns the time of the last activity.
func (s *Session) IdleSince() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.LastActive
}

// CopyHistory returns a snapshot of the transition history.
func (s *Session) CopyHistory() []TransitionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make([]TransitionRecord, len(s.History))
	copy(cp, s.History)
	return cp
}
