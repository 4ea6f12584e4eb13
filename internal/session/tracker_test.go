package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/sportsense/impactcore/internal/storage"
)

func newTestTracker(t *testing.T) (*Tracker, *storage.Manager) {
	t.Helper()
	m := storage.NewManager(filepath.Join(t.TempDir(), "test.db"), nil)
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return NewTracker(m, nil), m
}

func insertAthlete(t *testing.T, m *storage.Manager, id, deviceID string) {
	t.Helper()
	_, err := m.Execute(context.Background(),
		`INSERT INTO athletes (id, name, team, position, device_id, notes, created_at, updated_at)
		 VALUES (?, 'Test', 'Blue', 'forward', ?, '', 0, 0)`,
		id, deviceID,
	)
	if err != nil {
		t.Fatalf("insert athlete: %v", err)
	}
}

func TestStartSession_CreatesActiveSession(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	id, err := tracker.StartSession(ctx, "practice", "Blue")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	s, err := tracker.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if s.Name != "practice" || s.Team != "Blue" {
		t.Fatalf("session = %+v", s)
	}
	if s.EndedAt != nil {
		t.Fatal("new session should have no end timestamp")
	}
	if s.StartedAt <= 0 {
		t.Fatalf("started_at = %d, want > 0", s.StartedAt)
	}
}

func TestEndSession_IdempotentKeepsTimestamp(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	id, err := tracker.StartSession(ctx, "game", "Blue")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	first := time.UnixMilli(1_700_000_000_000)
	tracker.now = func() time.Time { return first }
	if err := tracker.EndSession(ctx, id); err != nil {
		t.Fatalf("first EndSession: %v", err)
	}

	tracker.now = func() time.Time { return first.Add(time.Hour) }
	if err := tracker.EndSession(ctx, id); err != nil {
		t.Fatalf("second EndSession should be a no-op: %v", err)
	}

	s, err := tracker.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if s.EndedAt == nil || *s.EndedAt != first.UnixMilli() {
		t.Fatalf("end timestamp = %v, want %d unchanged", s.EndedAt, first.UnixMilli())
	}
}

func TestEndSession_UnknownID(t *testing.T) {
	tracker, _ := newTestTracker(t)
	if err := tracker.EndSession(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestRemoveParticipant_PreservesHistory(t *testing.T) {
	tracker, m := newTestTracker(t)
	ctx := context.Background()
	insertAthlete(t, m, "a1", "dev-1")

	id, err := tracker.StartSession(ctx, "practice", "Blue")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if err := tracker.AddParticipant(ctx, id, "a1"); err != nil {
		t.Fatalf("AddParticipant: %v", err)
	}
	if err := tracker.RemoveParticipant(ctx, id, "a1"); err != nil {
		t.Fatalf("RemoveParticipant: %v", err)
	}
	// Second removal is a no-op.
	if err := tracker.RemoveParticipant(ctx, id, "a1"); err != nil {
		t.Fatalf("repeat RemoveParticipant: %v", err)
	}

	participants, err := tracker.Participants(ctx, id)
	if err != nil {
		t.Fatalf("Participants: %v", err)
	}
	if len(participants) != 1 {
		t.Fatalf("participant rows = %d, want 1 (history preserved)", len(participants))
	}
	if participants[0].LeftAt == nil {
		t.Fatal("left_at should be set after removal")
	}
}

func TestActiveSessionForDevice(t *testing.T) {
	tracker, m := newTestTracker(t)
	ctx := context.Background()
	insertAthlete(t, m, "a1", "dev-1")

	// No session yet.
	if _, ok, err := tracker.ActiveSessionForDevice(ctx, "dev-1"); err != nil || ok {
		t.Fatalf("expected no active session, got ok=%v err=%v", ok, err)
	}

	older, err := tracker.StartSession(ctx, "morning", "Blue")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if err := tracker.AddParticipant(ctx, older, "a1"); err != nil {
		t.Fatalf("AddParticipant: %v", err)
	}

	// A later session for the same athlete wins.
	tracker.now = func() time.Time { return time.Now().Add(time.Minute) }
	newer, err := tracker.StartSession(ctx, "afternoon", "Blue")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if err := tracker.AddParticipant(ctx, newer, "a1"); err != nil {
		t.Fatalf("AddParticipant: %v", err)
	}

	id, ok, err := tracker.ActiveSessionForDevice(ctx, "dev-1")
	if err != nil || !ok {
		t.Fatalf("ActiveSessionForDevice: ok=%v err=%v", ok, err)
	}
	if id != newer {
		t.Fatalf("active session = %s, want most recent %s", id, newer)
	}

	// Unknown device stays session-less.
	if _, ok, _ := tracker.ActiveSessionForDevice(ctx, "other"); ok {
		t.Fatal("unknown device should have no active session")
	}

	// Ending the session deactivates it.
	if err := tracker.EndSession(ctx, newer); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	id, ok, err = tracker.ActiveSessionForDevice(ctx, "dev-1")
	if err != nil || !ok || id != older {
		t.Fatalf("after ending newer, active = %s ok=%v err=%v, want %s", id, ok, err, older)
	}

	// Removing the participant from the remaining session clears it.
	if err := tracker.RemoveParticipant(ctx, older, "a1"); err != nil {
		t.Fatalf("RemoveParticipant: %v", err)
	}
	if _, ok, _ = tracker.ActiveSessionForDevice(ctx, "dev-1"); ok {
		t.Fatal("no session should be active after participant removal")
	}
}
