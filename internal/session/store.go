package session

import (
	"sync"
	"time"
)

// State is the closed set of per-user conversation states.
type State string

const (
	StateNone                         State = "NONE"
	StateAwaitingFormCompletion       State = "AWAITING_FORM_COMPLETION"
	StateAwaitingUserDataConfirmation State = "AWAITING_USER_DATA_CONFIRMATION"
	StateAwaitingTrackingMethod       State = "AWAITING_TRACKING_METHOD"
	StateAwaitingRequestID            State = "AWAITING_REQUEST_ID"
	StateAwaitingPhoneNumber          State = "AWAITING_PHONE_NUMBER"
)

// Store holds per-user conversation state and accumulated draft data in
// two parallel maps. Sessions are created on first use in StateNone and
// live only for the process lifetime; loss is acceptable, a resumed
// conversation restarts from StateNone.
//
// Mutation of a single user's session is a read-modify-write sequence, so
// callers handling an inbound event must serialize per user via Acquire.
// Cross-user access needs no coordination beyond the internal map lock.
type Store struct {
	mu       sync.Mutex
	states   map[string]State
	drafts   map[string]map[string]string
	lastSeen map[string]time.Time
	locks    map[string]*sync.Mutex

	now func() time.Time
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{
		states:   make(map[string]State),
		drafts:   make(map[string]map[string]string),
		lastSeen: make(map[string]time.Time),
		locks:    make(map[string]*sync.Mutex),
		now:      time.Now,
	}
}

// Acquire takes the per-user lock and returns its release function. Event
// handlers hold it for the whole conversational turn so a rapid double
// submit from the same user cannot interleave.
func (s *Store) Acquire(userID string) (release func()) {
	s.mu.Lock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// State returns the user's current state, creating a StateNone session if
// none exists.
func (s *Store) State(userID string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[userID]
	if !ok {
		st = StateNone
		s.states[userID] = st
	}
	s.lastSeen[userID] = s.now()
	return st
}

// SetState transitions the user's session to st.
func (s *Store) SetState(userID string, st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[userID] = st
	s.lastSeen[userID] = s.now()
}

// MergeDraft merges fields into the user's draft. Existing keys not named
// in fields are kept; named keys are overwritten.
func (s *Store) MergeDraft(userID string, fields map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drafts[userID]
	if !ok {
		d = make(map[string]string, len(fields))
		s.drafts[userID] = d
	}
	for k, v := range fields {
		d[k] = v
	}
	s.lastSeen[userID] = s.now()
}

// Draft returns a copy of the user's accumulated draft data.
func (s *Store) Draft(userID string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.drafts[userID]
	out := make(map[string]string, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Clear resets the user's session to StateNone and discards the draft.
// Called on cancellation and on successful flow completion.
func (s *Store) Clear(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, userID)
	delete(s.drafts, userID)
	delete(s.lastSeen, userID)
}

// Sweep resets sessions idle for longer than maxIdle and reports how many
// were reset. Sessions whose per-user lock is held (a turn in flight) are
// skipped and picked up on a later sweep.
func (s *Store) Sweep(maxIdle time.Duration) int {
	s.mu.Lock()
	cutoff := s.now().Add(-maxIdle)
	stale := make([]string, 0)
	for id, seen := range s.lastSeen {
		if seen.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	s.mu.Unlock()

	swept := 0
	for _, id := range stale {
		s.mu.Lock()
		l, ok := s.locks[id]
		s.mu.Unlock()
		if ok && !l.TryLock() {
			continue
		}
		s.Clear(id)
		if ok {
			l.Unlock()
		}
		swept++
	}
	return swept
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}
