package rtc

import (
	"context"
	"strings"
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/lingomeet/mesh/internal/domain"
	"github.com/lingomeet/mesh/internal/signaling"
)

func audioTrack(t *testing.T, id string) webrtc.TrackLocal {
	t.Helper()
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, id, "local")
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	return track
}

func newOfflinePeer(t *testing.T, remote string) *Peer {
	t.Helper()
	p, err := NewPeer(DefaultConfig(nil), domain.UserID("remote-"+remote), []webrtc.TrackLocal{audioTrack(t, "audio-"+remote)})
	if err != nil {
		t.Fatalf("peer: %v", err)
	}
	t.Cleanup(p.Close)
	return p
}

func TestPeerOfferAnswerStateMachine(t *testing.T) {
	ctx := context.Background()
	caller := newOfflinePeer(t, "callee")
	callee := newOfflinePeer(t, "caller")

	if caller.State() != StateNew {
		t.Fatalf("initial state = %v, want new", caller.State())
	}

	offer, err := caller.CreateOffer(ctx)
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}
	if !strings.Contains(offer, "m=audio") {
		t.Fatal("offer carries no audio section")
	}
	if caller.State() != StateOffering {
		t.Fatalf("caller state = %v, want offering", caller.State())
	}

	answer, err := callee.HandleOffer(ctx, offer)
	if err != nil {
		t.Fatalf("handle offer: %v", err)
	}
	if answer == "" {
		t.Fatal("empty answer")
	}
	if callee.State() != StateAnswering {
		t.Fatalf("callee state = %v, want answering", callee.State())
	}

	if err := caller.HandleAnswer(answer); err != nil {
		t.Fatalf("handle answer: %v", err)
	}
	if caller.State() != StateConnected {
		t.Fatalf("caller state = %v, want connected", caller.State())
	}
}

func TestPeerBuffersCandidatesUntilRemoteDescription(t *testing.T) {
	ctx := context.Background()
	caller := newOfflinePeer(t, "callee")
	callee := newOfflinePeer(t, "caller")

	mid := "0"
	idx := uint16(0)
	for i := 0; i < 2; i++ {
		err := callee.AddCandidate(signaling.CandidateInit{
			Candidate:     "candidate:1 1 udp 2113937151 192.168.0.10 54400 typ host",
			SDPMid:        &mid,
			SDPMLineIndex: &idx,
		})
		if err != nil {
			t.Fatalf("early candidate: %v", err)
		}
	}

	callee.mu.Lock()
	buffered := len(callee.pending)
	callee.mu.Unlock()
	if buffered != 2 {
		t.Fatalf("buffered = %d, want 2", buffered)
	}

	offer, err := caller.CreateOffer(ctx)
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}
	if _, err := callee.HandleOffer(ctx, offer); err != nil {
		t.Fatalf("handle offer: %v", err)
	}

	callee.mu.Lock()
	buffered = len(callee.pending)
	remoteSet := callee.remoteSet
	callee.mu.Unlock()
	if buffered != 0 {
		t.Fatalf("buffer not flushed, %d left", buffered)
	}
	if !remoteSet {
		t.Fatal("remote description flag not set")
	}
}

func TestPeerCloseIsIdempotentAndTerminal(t *testing.T) {
	p := newOfflinePeer(t, "x")

	p.Close()
	p.Close()
	if p.State() != StateClosed {
		t.Fatalf("state = %v, want closed", p.State())
	}

	// Terminal: late state transitions must not resurrect the connection.
	p.setState(StateDisconnected)
	if p.State() != StateClosed {
		t.Fatal("closed peer changed state")
	}
}

func TestStateStrings(t *testing.T) {
	cases := map[State]string{
		StateNew:          "new",
		StateOffering:     "offering",
		StateAnswering:    "answering",
		StateConnected:    "connected",
		StateDisconnected: "disconnected",
		StateClosed:       "closed",
	}
	for s, want := range cases {
		if s.String() != want {
			t.Fatalf("State(%d).String() = %q, want %q", s, s.String(), want)
		}
	}
}
