// Package call holds per-call state and the process-wide registry of
// active calls.
package call

import "sync"

// BusinessContext is the negotiated task for one call, parsed once from
// the stream-start frame and never mutated afterwards.
type BusinessContext struct {
	TargetName      string
	TaskDescription string
	Category        string
	CallerIdentity  string
}

// Quote is a price extracted from the conversation by the extract_quote
// tool. Price and Item are required; the rest is best effort.
type Quote struct {
	Price    float64
	Item     string
	WaitTime string
	Notes    string
}

// Appointment is a booking extracted by the schedule_appointment tool.
type Appointment struct {
	Date               string
	Service            string
	Time               string
	ConfirmationNumber string
}

// Termination records the advisory end_call tool invocation. It does not
// close any transport; teardown is driven by the transports themselves.
type Termination struct {
	Reason  string
	Success bool
	Summary string
}

// Session is the in-memory state for one active call. It is owned by the
// media bridge handling that call; cross-goroutine access within the call
// goes through the mutex.
type Session struct {
	CallID   string
	StreamID string
	Context  BusinessContext

	mu           sync.Mutex
	ready        bool
	pendingAudio [][]byte

	quote       *Quote
	appointment *Appointment
	termination *Termination
}

// NewSession creates the state for a call identified by the telephony
// system's call and stream identifiers.
func NewSession(callID, streamID string, bc BusinessContext) *Session {
	return &Session{CallID: callID, StreamID: streamID, Context: bc}
}

// Ready reports whether the upstream session has confirmed its
// configuration and audio may be forwarded directly.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// BufferAudio appends one raw inbound chunk while the upstream session is
// not yet ready. Returns false if the session is already ready, in which
// case the caller forwards the chunk directly.
func (s *Session) BufferAudio(chunk []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return false
	}
	buf := make([]byte, len(chunk))
	copy(buf, chunk)
	s.pendingAudio = append(s.pendingAudio, buf)
	return true
}

// MarkReady flips the session to ready and hands the buffered chunks, in
// arrival order, to flush. The flush runs under the session mutex, so no
// chunk arriving afterwards can be forwarded before the batch completes.
// Buffered audio is drained exactly once.
func (s *Session) MarkReady(flush func(pending [][]byte) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}
	pending := s.pendingAudio
	s.pendingAudio = nil
	if flush != nil {
		if err := flush(pending); err != nil {
			return err
		}
	}
	s.ready = true
	return nil
}

// RecordQuote overwrites the extracted quote; the last tool call wins.
func (s *Session) RecordQuote(q Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quote = &q
}

// RecordAppointment overwrites the extracted appointment; last call wins.
func (s *Session) RecordAppointment(a Appointment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appointment = &a
}

// RecordTermination stores the advisory call-ending outcome.
func (s *Session) RecordTermination(t Termination) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.termination = &t
}

// Quote returns a copy of the extracted quote, if any.
func (s *Session) Quote() (Quote, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.quote == nil {
		return Quote{}, false
	}
	return *s.quote, true
}

// Appointment returns a copy of the extracted appointment, if any.
func (s *Session) Appointment() (Appointment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appointment == nil {
		return Appointment{}, false
	}
	return *s.appointment, true
}

// Termination returns the recorded end-of-call outcome, if any.
func (s *Session) Termination() (Termination, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.termination == nil {
		return Termination{}, false
	}
	return *s.termination, true
}
