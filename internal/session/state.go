// ABOUTME: Mutex-guarded gateway session state shared by processing units and the heartbeat
// ABOUTME: Tracks last sequence, resume data, heartbeat interval and ack liveness

package session

import (
	"errors"
	"sync"
	"time"
)

// ErrIncompleteResume indicates a session id without a resume URL, or the reverse.
var ErrIncompleteResume = errors.New("session id and resume url must both be set")

// ResumeData is what a resuming reconnect needs.
type ResumeData struct {
	SessionID string
	URL       string
}

// Snapshot is a consistent copy of the state at one instant.
type Snapshot struct {
	Seq               *int64
	SessionID         string
	ResumeURL         string
	BotUserID         string
	HeartbeatInterval time.Duration
	AckPending        bool
	MissedAcks        int
}

// State is the single mutable GatewaySession. All methods are safe for
// concurrent use.
type State struct {
	mu sync.RWMutex

	seq        *int64
	sessionID  string
	resumeURL  string
	botUserID  string
	interval   time.Duration
	ackPending bool
	missedAcks int
}

// New creates an empty session state.
func New() *State {
	return &State{}
}

// ObserveSequence records seq as the last seen sequence. Nil is ignored.
func (s *State) ObserveSequence(seq *int64) {
	if seq == nil {
		return
	}
	v := *seq
	s.mu.Lock()
	s.seq = &v
	s.mu.Unlock()
}

// Sequence returns a copy of the last seen sequence, or nil.
func (s *State) Sequence() *int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySeq(s.seq)
}

// Capture stores the session id and resume URL from a Ready event.
func (s *State) Capture(sessionID, resumeURL string) error {
	if sessionID == "" || resumeURL == "" {
		return ErrIncompleteResume
	}
	s.mu.Lock()
	s.sessionID = sessionID
	s.resumeURL = resumeURL
	s.mu.Unlock()
	return nil
}

// SetBotUserID records the identity the gateway reported for the bot.
func (s *State) SetBotUserID(id string) {
	s.mu.Lock()
	s.botUserID = id
	s.mu.Unlock()
}

// BotUserID returns the identity reported on Ready, if any.
func (s *State) BotUserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.botUserID
}

// ResumeData returns the captured resume data, if both halves are present.
func (s *State) ResumeData() (ResumeData, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.sessionID == "" || s.resumeURL == "" {
		return ResumeData{}, false
	}
	return ResumeData{SessionID: s.sessionID, URL: s.resumeURL}, true
}

// Clear forgets the session so the next connection identifies from scratch.
func (s *State) Clear() {
	s.mu.Lock()
	s.sessionID = ""
	s.resumeURL = ""
	s.seq = nil
	s.mu.Unlock()
}

// ResetSequence forgets the last sequence without touching resume data.
func (s *State) ResetSequence() {
	s.mu.Lock()
	s.seq = nil
	s.mu.Unlock()
}

// SetHeartbeatInterval records the interval announced by Hello and resets
// liveness tracking for the new connection.
func (s *State) SetHeartbeatInterval(d time.Duration) {
	s.mu.Lock()
	s.interval = d
	s.ackPending = false
	s.missedAcks = 0
	s.mu.Unlock()
}

// HeartbeatInterval returns the last announced interval.
func (s *State) HeartbeatInterval() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.interval
}

// BeginHeartbeat is called on each scheduler tick. It returns the sequence to
// send and the number of consecutive beats that went unacknowledged, counting
// the previous one if its ack never arrived. The ack-pending flag is set for
// the beat about to be sent.
func (s *State) BeginHeartbeat() (seq *int64, missed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ackPending {
		s.missedAcks++
	} else {
		s.missedAcks = 0
	}
	s.ackPending = true
	return copySeq(s.seq), s.missedAcks
}

// Ack clears the ack-pending flag.
func (s *State) Ack() {
	s.mu.Lock()
	s.ackPending = false
	s.missedAcks = 0
	s.mu.Unlock()
}

// ResetLiveness clears ack tracking, used when a connection is replaced.
func (s *State) ResetLiveness() {
	s.mu.Lock()
	s.ackPending = false
	s.missedAcks = 0
	s.mu.Unlock()
}

// Snapshot returns a consistent copy of every field.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Seq:               copySeq(s.seq),
		SessionID:         s.sessionID,
		ResumeURL:         s.resumeURL,
		BotUserID:         s.botUserID,
		HeartbeatInterval: s.interval,
		AckPending:        s.ackPending,
		MissedAcks:        s.missedAcks,
	}
}

func copySeq(seq *int64) *int64 {
	if seq == nil {
		return nil
	}
	v := *seq
	return &v
}
