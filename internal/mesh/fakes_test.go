package mesh

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/lingomeet/mesh/internal/domain"
	"github.com/lingomeet/mesh/internal/rtc"
	"github.com/lingomeet/mesh/internal/signaling"
)

// fakeConn records negotiation calls instead of touching the network.
type fakeConn struct {
	mu        sync.Mutex
	remote    domain.UserID
	state     rtc.State
	offers    int
	remoteSet bool
	buffered  []signaling.CandidateInit
	applied   []signaling.CandidateInit
	replaced  [][]webrtc.TrackLocal
	tracks    []webrtc.TrackLocal
	onCand    func(signaling.CandidateInit)
	onTrack   func(*webrtc.TrackRemote)
	onState   func(rtc.State)
}

func (f *fakeConn) State() rtc.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeConn) CreateOffer(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offers++
	f.state = rtc.StateOffering
	return fmt.Sprintf("offer-from-local-to-%s", f.remote), nil
}

func (f *fakeConn) HandleOffer(ctx context.Context, sdp string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remoteSet = true
	f.applied = append(f.applied, f.buffered...)
	f.buffered = nil
	f.state = rtc.StateAnswering
	return "answer-to-" + sdp, nil
}

func (f *fakeConn) HandleAnswer(sdp string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remoteSet = true
	f.applied = append(f.applied, f.buffered...)
	f.buffered = nil
	f.state = rtc.StateConnected
	return nil
}

func (f *fakeConn) AddCandidate(ci signaling.CandidateInit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.remoteSet {
		f.buffered = append(f.buffered, ci)
		return nil
	}
	f.applied = append(f.applied, ci)
	return nil
}

func (f *fakeConn) ReplaceTracks(tracks []webrtc.TrackLocal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replaced = append(f.replaced, tracks)
	return nil
}

func (f *fakeConn) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = rtc.StateClosed
}

func (f *fakeConn) OnCandidate(fn func(signaling.CandidateInit)) { f.onCand = fn }
func (f *fakeConn) OnRemoteTrack(fn func(*webrtc.TrackRemote))   { f.onTrack = fn }
func (f *fakeConn) OnStateChange(fn func(rtc.State))             { f.onState = fn }

// fakeFactory builds fakeConns and remembers them per remote id.
type fakeFactory struct {
	mu    sync.Mutex
	conns map[domain.UserID][]*fakeConn
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{conns: make(map[domain.UserID][]*fakeConn)}
}

func (ff *fakeFactory) factory(remote domain.UserID, tracks []webrtc.TrackLocal) (rtc.Conn, error) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	c := &fakeConn{remote: remote, state: rtc.StateNew, tracks: tracks}
	ff.conns[remote] = append(ff.conns[remote], c)
	return c, nil
}

func (ff *fakeFactory) latest(remote domain.UserID) *fakeConn {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	list := ff.conns[remote]
	if len(list) == 0 {
		return nil
	}
	return list[len(list)-1]
}

func (ff *fakeFactory) count(remote domain.UserID) int {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return len(ff.conns[remote])
}

type publishedMsg struct {
	event   signaling.EventType
	payload []byte
}

// fakeChannel records broadcasts and lets the test feed inbound events.
type fakeChannel struct {
	mu        sync.Mutex
	events    chan signaling.Event
	published []publishedMsg
	tracked   bool
	left      bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{events: make(chan signaling.Event, 64)}
}

func (fc *fakeChannel) Track(ctx context.Context, self signaling.Member) error {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.tracked = true
	return nil
}

func (fc *fakeChannel) Broadcast(ctx context.Context, event signaling.EventType, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.published = append(fc.published, publishedMsg{event: event, payload: raw})
	return nil
}

func (fc *fakeChannel) Events() <-chan signaling.Event { return fc.events }

func (fc *fakeChannel) Leave() error {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if !fc.left {
		fc.left = true
		close(fc.events)
	}
	return nil
}

func (fc *fakeChannel) wasLeft() bool {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.left
}

func (fc *fakeChannel) signals() []signaling.SignalEnvelope {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	var out []signaling.SignalEnvelope
	for _, p := range fc.published {
		if p.event != signaling.EventSignal {
			continue
		}
		env, err := signaling.DecodeSignal(p.payload)
		if err != nil {
			continue
		}
		out = append(out, env)
	}
	return out
}

func (fc *fakeChannel) controls() []signaling.ControlSignal {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	var out []signaling.ControlSignal
	for _, p := range fc.published {
		if p.event != signaling.EventControl {
			continue
		}
		cs, err := signaling.DecodeControl(p.payload)
		if err != nil {
			continue
		}
		out = append(out, cs)
	}
	return out
}

func (fc *fakeChannel) chats() []signaling.ChatPayload {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	var out []signaling.ChatPayload
	for _, p := range fc.published {
		if p.event != signaling.EventChat {
			continue
		}
		cp, err := signaling.DecodeChat(p.payload)
		if err != nil {
			continue
		}
		out = append(out, cp)
	}
	return out
}

type testPeer struct {
	engine  *Engine
	channel *fakeChannel
	factory *fakeFactory
	source  *rtc.StaticSource
}

func newTestPeer(t *testing.T, id domain.UserID, role domain.Role, opts ...func(*Options)) *testPeer {
	t.Helper()
	fc := newFakeChannel()
	ff := newFakeFactory()
	src := rtc.NewStaticSource()
	self, err := domain.NewParticipant(id, "peer-"+string(id), role, time.Now())
	if err != nil {
		t.Fatalf("participant: %v", err)
	}
	o := Options{
		Self:    *self,
		Channel: fc,
		Factory: ff.factory,
		Source:  src,
	}
	for _, fn := range opts {
		fn(&o)
	}
	return &testPeer{engine: New(o), channel: fc, factory: ff, source: src}
}

func member(id domain.UserID) signaling.Member {
	return signaling.Member{ID: string(id), DisplayName: "peer-" + string(id), JoinedAt: time.Now()}
}

func hostMember(id domain.UserID) signaling.Member {
	m := member(id)
	m.Host = true
	return m
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return raw
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
