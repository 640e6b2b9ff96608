package session

import (
	"testing"
	"time"
)

func newTestRegistry() (*Registry, *time.Time) {
	now := time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)
	r := NewRegistry(30 * time.Second)
	r.now = func() time.Time { return now }
	return r, &now
}

func TestRegisterAndList(t *testing.T) {
	r, now := newTestRegistry()

	list, err := r.Register(KindStationList, "web", "Mozilla/5.0", "127.0.0.1")
	if err != nil {
		t.Fatalf("Failed to register surface: %v", err)
	}
	*now = now.Add(time.Second)
	mini, err := r.Register(KindMiniPlayer, "", "", "")
	if err != nil {
		t.Fatalf("Failed to register surface: %v", err)
	}

	if list.ID == "" || list.ID == mini.ID {
		t.Errorf("Expected unique ids, got %q and %q", list.ID, mini.ID)
	}

	active := r.Active()
	if len(active) != 2 {
		t.Fatalf("Expected 2 active surfaces, got %d", len(active))
	}
	if active[0].ID != list.ID || active[1].ID != mini.ID {
		t.Error("Expected surfaces ordered by registration time")
	}

	if _, err := r.Register(Kind("toolbar"), "", "", ""); err == nil {
		t.Error("Expected unknown kind to be rejected")
	}
}

func TestExpiryAndHeartbeat(t *testing.T) {
	r, now := newTestRegistry()

	a, _ := r.Register(KindFullPlayer, "", "", "")
	b, _ := r.Register(KindFavorites, "", "", "")

	*now = now.Add(20 * time.Second)
	if !r.Touch(a.ID) {
		t.Fatal("Expected heartbeat to succeed for live surface")
	}

	*now = now.Add(15 * time.Second)
	if _, ok := r.Get(b.ID); ok {
		t.Error("Expected surface without heartbeat to expire")
	}
	if r.Touch(b.ID) {
		t.Error("Expected heartbeat for expired surface to fail")
	}

	active := r.Active()
	if len(active) != 1 || active[0].ID != a.ID {
		t.Errorf("Expected only %s to remain, got %+v", a.ID, active)
	}

	focused, ok := r.Focused()
	if !ok || focused.ID != a.ID {
		t.Errorf("Expected %s to be focused, got %+v", a.ID, focused)
	}
}

func TestRemove(t *testing.T) {
	r, _ := newTestRegistry()

	s, _ := r.Register(KindConsole, "", "", "")
	r.Remove(s.ID)
	r.Remove(s.ID)

	if _, ok := r.Get(s.ID); ok {
		t.Error("Expected removed surface to be gone")
	}
	if _, ok := r.Focused(); ok {
		t.Error("Expected no focused surface in an empty registry")
	}
}

func TestParseKind(t *testing.T) {
	if k, err := ParseKind("mini_player"); err != nil || k != KindMiniPlayer {
		t.Errorf("Expected mini_player, got %q (%v)", k, err)
	}
	if _, err := ParseKind("MiniPlayer"); err == nil {
		t.Error("Expected unknown kind error")
	}
}
