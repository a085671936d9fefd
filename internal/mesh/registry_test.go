package mesh

import (
	"testing"
	"time"

	"github.com/lingomeet/mesh/internal/domain"
	"github.com/lingomeet/mesh/internal/rtc"
)

func fakeCreate(ff *fakeFactory, id domain.UserID) func() (rtc.Conn, error) {
	return func() (rtc.Conn, error) { return ff.factory(id, nil) }
}

func TestRegistryEnsureReturnsExistingLiveConn(t *testing.T) {
	r := NewRegistry()
	ff := newFakeFactory()

	c1, created, err := r.Ensure("bob", fakeCreate(ff, "bob"))
	if err != nil || !created {
		t.Fatalf("first ensure: created=%v err=%v", created, err)
	}
	c2, created, err := r.Ensure("bob", fakeCreate(ff, "bob"))
	if err != nil || created {
		t.Fatalf("second ensure: created=%v err=%v", created, err)
	}
	if c1 != c2 {
		t.Fatal("ensure must return the existing live connection")
	}
	if ff.count("bob") != 1 {
		t.Fatalf("factory invoked %d times, want 1", ff.count("bob"))
	}
}

func TestRegistryEnsureReplacesClosedConn(t *testing.T) {
	r := NewRegistry()
	ff := newFakeFactory()

	c1, _, _ := r.Ensure("bob", fakeCreate(ff, "bob"))
	c1.Close()

	c2, created, err := r.Ensure("bob", fakeCreate(ff, "bob"))
	if err != nil || !created {
		t.Fatalf("ensure after close: created=%v err=%v", created, err)
	}
	if c1 == c2 {
		t.Fatal("a closed connection must be replaced, not reused")
	}
	if r.Len() != 1 {
		t.Fatalf("live connections = %d, want 1", r.Len())
	}
}

func TestRegistryDropKeepsParticipant(t *testing.T) {
	r := NewRegistry()
	ff := newFakeFactory()
	p, _ := domain.NewParticipant("bob", "Bob", domain.RoleGuest, time.Now())

	r.SetParticipant("bob", p)
	conn, _, _ := r.Ensure("bob", fakeCreate(ff, "bob"))

	if !r.Drop("bob") {
		t.Fatal("drop should report a closed connection")
	}
	if conn.State() != rtc.StateClosed {
		t.Fatal("drop must close the connection")
	}
	if _, ok := r.Conn("bob"); ok {
		t.Fatal("dropped connection still visible")
	}
	if len(r.Participants()) != 1 {
		t.Fatal("drop must keep the participant entry")
	}
	if r.Drop("bob") {
		t.Fatal("second drop must be a no-op")
	}
}

func TestRegistryRemoveForUnknownIDIsNoop(t *testing.T) {
	r := NewRegistry()
	if r.Remove("ghost") {
		t.Fatal("removing an unknown id must report false")
	}
}

func TestRegistryCloseAllSwallowsAndEmpties(t *testing.T) {
	r := NewRegistry()
	ff := newFakeFactory()

	a, _, _ := r.Ensure("a", fakeCreate(ff, "a"))
	b, _, _ := r.Ensure("b", fakeCreate(ff, "b"))

	r.CloseAll()

	if a.State() != rtc.StateClosed || b.State() != rtc.StateClosed {
		t.Fatal("close all must close every connection")
	}
	if r.Len() != 0 {
		t.Fatalf("live connections = %d after close all, want 0", r.Len())
	}
}

func TestRegistryReplaceLocalTracksSkipsClosed(t *testing.T) {
	r := NewRegistry()
	ff := newFakeFactory()

	r.Ensure("a", fakeCreate(ff, "a"))
	r.Ensure("b", fakeCreate(ff, "b"))
	r.Drop("b")

	r.ReplaceLocalTracks(nil)

	if got := len(ff.latest("a").replaced); got != 1 {
		t.Fatalf("live conn replace calls = %d, want 1", got)
	}
	if got := len(ff.latest("b").replaced); got != 0 {
		t.Fatalf("closed conn replace calls = %d, want 0", got)
	}
}

func TestRegistryParticipantsOrderedByJoinTime(t *testing.T) {
	r := NewRegistry()
	base := time.Now()

	late, _ := domain.NewParticipant("zed", "Zed", domain.RoleGuest, base.Add(time.Minute))
	early, _ := domain.NewParticipant("amy", "Amy", domain.RoleHost, base)
	tieA, _ := domain.NewParticipant("b1", "B1", domain.RoleGuest, base.Add(time.Second))
	tieB, _ := domain.NewParticipant("a1", "A1", domain.RoleGuest, base.Add(time.Second))

	r.SetParticipant("zed", late)
	r.SetParticipant("amy", early)
	r.SetParticipant("b1", tieA)
	r.SetParticipant("a1", tieB)

	got := r.Participants()
	want := []domain.UserID{"amy", "a1", "b1", "zed"}
	if len(got) != len(want) {
		t.Fatalf("participants = %d, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d = %s, want %s", i, got[i].ID, id)
		}
	}
}

func TestRegistrySetParticipantKeepsExistingMeta(t *testing.T) {
	r := NewRegistry()
	first, _ := domain.NewParticipant("bob", "Bob", domain.RoleGuest, time.Now())
	second, _ := domain.NewParticipant("bob", "Impostor", domain.RoleHost, time.Now())

	r.SetParticipant("bob", first)
	r.SetParticipant("bob", second)

	parts := r.Participants()
	if len(parts) != 1 || parts[0].DisplayName != "Bob" {
		t.Fatalf("existing meta must win, got %+v", parts)
	}
}

func TestRegistryUpdateParticipant(t *testing.T) {
	r := NewRegistry()
	p, _ := domain.NewParticipant("bob", "Bob", domain.RoleGuest, time.Now())
	r.SetParticipant("bob", p)

	if !r.UpdateParticipant("bob", func(p *domain.Participant) { p.Muted = true }) {
		t.Fatal("update for known id must report true")
	}
	if !r.Participants()[0].Muted {
		t.Fatal("mutation not visible in snapshot")
	}
	if r.UpdateParticipant("ghost", func(*domain.Participant) {}) {
		t.Fatal("update for unknown id must report false")
	}
}
