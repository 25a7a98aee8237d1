package coordinator

import (
	"testing"
	"time"

	"distfs/internal/model"
)

func TestMembership_RegisterServerIsIdempotent(t *testing.T) {
	m := NewMembership()
	loc := model.Location{X: 1, Y: 2}
	m.RegisterServer("s1", "10.0.0.1:7000", loc, 1000)
	m.RegisterServer("s1", "10.0.0.1:7000", loc, 2000)

	if len(m.Servers()) != 1 {
		t.Fatalf("expected exactly one server record, got %d", len(m.Servers()))
	}
	rec, ok := m.Server("10.0.0.1:7000")
	if !ok || rec.SpaceLimit != 2000 {
		t.Fatalf("expected refreshed space_limit 2000, got %+v", rec)
	}
}

func TestMembership_HeartbeatReregistersUnknownServer(t *testing.T) {
	m := NewMembership()
	m.HeartbeatServer("10.0.0.9:7000", 512, nil)
	if _, ok := m.Server("10.0.0.9:7000"); !ok {
		t.Fatal("expected heartbeat from an unknown address to create a record")
	}
}

func TestMembership_ExpiredDetectsStaleServers(t *testing.T) {
	m := NewMembership()
	m.RegisterServer("s1", "10.0.0.1:7000", model.Location{}, 1000)

	m.mu.Lock()
	m.servers["10.0.0.1:7000"].LastSeen = time.Now().Add(-1 * time.Hour)
	m.mu.Unlock()

	expired := m.Expired(time.Minute)
	if len(expired) != 1 || expired[0] != "10.0.0.1:7000" {
		t.Fatalf("expected stale server to be reported expired, got %v", expired)
	}
}

func TestMembership_ReapRemovesFromGraph(t *testing.T) {
	m := NewMembership()
	m.RegisterServer("s1", "10.0.0.1:7000", model.Location{X: 1}, 1000)
	m.Reap("10.0.0.1:7000")

	if _, ok := m.Server("10.0.0.1:7000"); ok {
		t.Fatal("expected reaped server to be gone")
	}
	if _, ok := m.Graph().Distance("10.0.0.1:7000", "10.0.0.1:7000"); ok {
		t.Fatal("expected reaped server removed from graph")
	}
}
