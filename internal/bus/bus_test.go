package bus

import (
	"encoding/json"
	"testing"
	"time"
)

func drain(t *testing.T, s *Session) Envelope {
	t.Helper()
	select {
	case data := <-s.Send():
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("failed to unmarshal envelope: %v", err)
		}
		return env
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for a message on session %s", s.ID)
		return Envelope{}
	}
}

func TestToUserOnlyReachesThatUsersSessions(t *testing.T) {
	b := New()
	alice := b.Register("s1", "alice", "USER", 4)
	bob := b.Register("s2", "bob", "USER", 4)

	b.ToUser("alice", EventAssetsUpdate, map[string]any{"cash": 100})

	env := drain(t, alice)
	if env.Event != EventAssetsUpdate {
		t.Fatalf("alice got event %v, expected %v", env.Event, EventAssetsUpdate)
	}

	select {
	case <-bob.Send():
		t.Fatalf("bob should not have received alice's targeted event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestGlobalEmitReachesEverySession(t *testing.T) {
	b := New()
	a := b.Register("s1", "alice", "USER", 4)
	c := b.Register("s2", "bob", "ADMIN", 4)

	b.GlobalEmit(EventPriceUpdate, map[string]any{"price": 101.5})

	for _, s := range []*Session{a, c} {
		env := drain(t, s)
		if env.Event != EventPriceUpdate {
			t.Fatalf("session %s got %v, expected %v", s.ID, env.Event, EventPriceUpdate)
		}
	}
}

func TestToAdminsOnlyReachesAdminRole(t *testing.T) {
	b := New()
	user := b.Register("s1", "alice", "USER", 4)
	admin := b.Register("s2", "root", "ADMIN", 4)

	b.ToAdmins(EventForceLogout, nil)

	drain(t, admin)
	select {
	case <-user.Send():
		t.Fatalf("non-admin session should not receive an admin-only broadcast")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnregisterClosesSendAndDropsFromRouting(t *testing.T) {
	b := New()
	s := b.Register("s1", "alice", "USER", 4)
	b.Unregister(s)

	if _, open := <-s.Send(); open {
		t.Fatalf("expected Send() to be closed after Unregister")
	}

	ids := b.ConnectedUserIDs()
	for _, id := range ids {
		if id == "alice" {
			t.Fatalf("alice should no longer be reported as connected")
		}
	}
}

func TestConnectedUserIDsDeduplicatesMultipleSessionsPerUser(t *testing.T) {
	b := New()
	b.Register("s1", "alice", "USER", 4)
	b.Register("s2", "alice", "USER", 4)

	ids := b.ConnectedUserIDs()
	count := 0
	for _, id := range ids {
		if id == "alice" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("alice appeared %d times in ConnectedUserIDs, expected 1", count)
	}
}

func TestToSessionNeverBroadcastsToOthers(t *testing.T) {
	b := New()
	a := b.Register("s1", "alice", "USER", 4)
	c := b.Register("s2", "bob", "USER", 4)

	b.ToSession(a, EventTradeSuccess, map[string]any{"ok": true})

	drain(t, a)
	select {
	case <-c.Send():
		t.Fatalf("bob should never receive a reply addressed to alice's session")
	case <-time.After(50 * time.Millisecond):
	}
}
