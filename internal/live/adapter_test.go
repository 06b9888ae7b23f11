package live

import (
	"testing"

	"github.com/hireloop/chatsync/internal/bus"
	"github.com/hireloop/chatsync/internal/status"
)

func testAdapter() *Adapter {
	return NewAdapter("ws://127.0.0.1:1/push", bus.New(), status.NewMachine(nil), nil)
}

func TestJoinTracksRoomWhileDisconnected(t *testing.T) {
	a := testAdapter()

	a.Join("c1")
	if a.room != "c1" {
		t.Errorf("room = %q, want c1", a.room)
	}

	// Repeat join is a no-op.
	a.Join("c1")
	if a.room != "c1" {
		t.Errorf("room = %q, want c1 after repeat join", a.room)
	}

	// Joining another conversation replaces the room.
	a.Join("c2")
	if a.room != "c2" {
		t.Errorf("room = %q, want c2", a.room)
	}
}

func TestLeaveOnlyAffectsJoinedRoom(t *testing.T) {
	a := testAdapter()
	a.Join("c1")

	a.Leave("other")
	if a.room != "c1" {
		t.Errorf("room = %q, want c1 (leave of foreign room ignored)", a.room)
	}

	a.Leave("c1")
	if a.room != "" {
		t.Errorf("room = %q, want empty after leave", a.room)
	}

	// Leaving again is tolerated.
	a.Leave("c1")
}
