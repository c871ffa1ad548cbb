package session

import (
	"testing"

	"github.com/olafkfreund/cosmic-connectd/pkg/transport"
)

func newTestSession(t *testing.T, deviceID string) (*Session, *transport.PipeConn) {
	t.Helper()
	a, b := transport.NewPipePair("a", "b")
	t.Cleanup(func() { b.Close() })

	s, err := New(Config{DeviceID: deviceID, Transport: a, InitialState: StateConnected})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, b
}

func TestTableAddRejectsDuplicateDevice(t *testing.T) {
	table := NewTable(0)
	s1, _ := newTestSession(t, "dev-1")
	s2, _ := newTestSession(t, "dev-1")

	if err := table.Add(s1); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := table.Add(s2); err != ErrSessionExists {
		t.Fatalf("got %v, want ErrSessionExists", err)
	}
}

func TestTableRemoveIsIdempotent(t *testing.T) {
	table := NewTable(0)
	table.Remove("absent")

	s, _ := newTestSession(t, "dev-1")
	if err := table.Add(s); err != nil {
		t.Fatalf("Add: %v", err)
	}
	table.Remove("dev-1")
	table.Remove("dev-1")

	if table.Contains("dev-1") {
		t.Fatalf("expected dev-1 removed")
	}
}

func TestTableEnforcesCapacity(t *testing.T) {
	table := NewTable(1)
	s1, _ := newTestSession(t, "dev-1")
	s2, _ := newTestSession(t, "dev-2")

	if err := table.Add(s1); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := table.Add(s2); err == nil {
		t.Fatalf("expected capacity error")
	}
	if !table.IsFull() {
		t.Fatalf("expected table full")
	}
}

func TestTableSnapshotIsIndependentCopy(t *testing.T) {
	table := NewTable(0)
	s, _ := newTestSession(t, "dev-1")
	if err := table.Add(s); err != nil {
		t.Fatalf("Add: %v", err)
	}

	snap := table.Snapshot()
	delete(snap, "dev-1")

	if !table.Contains("dev-1") {
		t.Fatalf("mutating snapshot leaked into table")
	}
}

func TestTableForEachStopsEarly(t *testing.T) {
	table := NewTable(0)
	s1, _ := newTestSession(t, "dev-1")
	s2, _ := newTestSession(t, "dev-2")
	table.Add(s1)
	table.Add(s2)

	count := 0
	table.ForEach(func(s *Session) bool {
		count++
		return false
	})
	if count != 1 {
		t.Fatalf("got %d calls, want 1", count)
	}
}
