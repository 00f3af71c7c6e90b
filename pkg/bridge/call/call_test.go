package call

import (
	"bytes"
	"errors"
	"testing"
)

func TestSession_BufferThenFlushPreservesOrder(t *testing.T) {
	s := NewSession("CA1", "MZ1", BusinessContext{})

	chunks := [][]byte{{1, 2}, {3, 4}, {5, 6}}
	for _, c := range chunks {
		if !s.BufferAudio(c) {
			t.Fatalf("BufferAudio returned false before readiness")
		}
	}

	var flushed [][]byte
	err := s.MarkReady(func(pending [][]byte) error {
		flushed = pending
		return nil
	})
	if err != nil {
		t.Fatalf("MarkReady: %v", err)
	}

	if len(flushed) != len(chunks) {
		t.Fatalf("flushed %d chunks, want %d", len(flushed), len(chunks))
	}
	for i := range chunks {
		if !bytes.Equal(flushed[i], chunks[i]) {
			t.Fatalf("chunk[%d]=%v, want %v", i, flushed[i], chunks[i])
		}
	}

	if s.BufferAudio([]byte{7}) {
		t.Fatalf("BufferAudio buffered after readiness; frame should forward directly")
	}
	if !s.Ready() {
		t.Fatalf("session not ready after MarkReady")
	}
}

func TestSession_MarkReadyDrainsExactlyOnce(t *testing.T) {
	s := NewSession("CA1", "MZ1", BusinessContext{})
	s.BufferAudio([]byte{1})

	calls := 0
	flush := func(pending [][]byte) error {
		calls++
		if calls == 1 && len(pending) != 1 {
			t.Fatalf("first flush saw %d chunks, want 1", len(pending))
		}
		return nil
	}
	if err := s.MarkReady(flush); err != nil {
		t.Fatalf("MarkReady: %v", err)
	}
	if err := s.MarkReady(flush); err != nil {
		t.Fatalf("second MarkReady: %v", err)
	}
	if calls != 1 {
		t.Fatalf("flush ran %d times, want 1", calls)
	}
}

func TestSession_MarkReadyFlushErrorKeepsNotReady(t *testing.T) {
	s := NewSession("CA1", "MZ1", BusinessContext{})
	wantErr := errors.New("upstream write failed")
	if err := s.MarkReady(func([][]byte) error { return wantErr }); !errors.Is(err, wantErr) {
		t.Fatalf("MarkReady err=%v, want %v", err, wantErr)
	}
	if s.Ready() {
		t.Fatalf("session became ready despite failed flush")
	}
}

func TestSession_LastExtractionWins(t *testing.T) {
	s := NewSession("CA1", "MZ1", BusinessContext{})

	s.RecordQuote(Quote{Price: 49.99, Item: "oil change"})
	s.RecordQuote(Quote{Price: 59.99, Item: "synthetic oil change"})

	q, ok := s.Quote()
	if !ok {
		t.Fatalf("no quote recorded")
	}
	if q.Price != 59.99 || q.Item != "synthetic oil change" {
		t.Fatalf("quote=%+v, want the second call's data", q)
	}

	s.RecordAppointment(Appointment{Date: "2026-09-01", Service: "cleaning"})
	s.RecordAppointment(Appointment{Date: "2026-09-02", Service: "deep cleaning"})
	a, ok := s.Appointment()
	if !ok || a.Date != "2026-09-02" {
		t.Fatalf("appointment=%+v ok=%v, want last write", a, ok)
	}
}

func TestSession_TerminationRecorded(t *testing.T) {
	s := NewSession("CA1", "MZ1", BusinessContext{})
	if _, ok := s.Termination(); ok {
		t.Fatalf("termination present before end_call")
	}
	s.RecordTermination(Termination{Reason: "task complete", Success: true})
	term, ok := s.Termination()
	if !ok || !term.Success || term.Reason != "task complete" {
		t.Fatalf("termination=%+v ok=%v", term, ok)
	}
}
