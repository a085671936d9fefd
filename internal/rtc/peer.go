package rtc

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/lingomeet/mesh/internal/domain"
	"github.com/lingomeet/mesh/internal/signaling"
)

// Peer is the pion-backed Conn.
type Peer struct {
	pc     *webrtc.PeerConnection
	remote domain.UserID

	mu         sync.Mutex
	state      State
	remoteSet  bool
	pending    []webrtc.ICECandidateInit
	senders    []*webrtc.RTPSender
	onCand     func(signaling.CandidateInit)
	onTrack    func(*webrtc.TrackRemote)
	onState    func(State)
}

// DefaultConfig returns a pion configuration for the given STUN URLs.
func DefaultConfig(stunURLs []string) webrtc.Configuration {
	if len(stunURLs) == 0 {
		stunURLs = []string{"stun:stun.l.google.com:19302"}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: stunURLs}},
	}
}

// NewPeer creates a connection to remote with tracks attached.
func NewPeer(cfg webrtc.Configuration, remote domain.UserID, tracks []webrtc.TrackLocal) (*Peer, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	p := &Peer{pc: pc, remote: remote, state: StateNew}

	for _, t := range tracks {
		sender, err := pc.AddTrack(t)
		if err != nil {
			log.Error().Err(err).Str("module", "rtc").Str("remote", string(remote)).Msg("add track")
			continue
		}
		p.senders = append(p.senders, sender)
	}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		p.mu.Lock()
		fn := p.onCand
		p.mu.Unlock()
		if fn != nil {
			fn(fromPion(cand.ToJSON()))
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info().Str("module", "rtc").Str("remote", string(remote)).
			Str("kind", track.Kind().String()).Str("track_id", track.ID()).Msg("remote track")
		p.mu.Lock()
		fn := p.onTrack
		p.mu.Unlock()
		if fn != nil {
			fn(track)
		}
	})

	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "rtc").Str("remote", string(remote)).Str("ice_state", s.String()).Msg("ICE state")
		if s == webrtc.ICEConnectionStateDisconnected ||
			s == webrtc.ICEConnectionStateFailed ||
			s == webrtc.ICEConnectionStateClosed {
			p.setState(StateDisconnected)
		}
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("remote", string(remote)).Str("peer_state", s.String()).Msg("peer state")
		switch s {
		case webrtc.PeerConnectionStateConnected:
			p.setState(StateConnected)
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			p.setState(StateDisconnected)
		}
	})

	return p, nil
}

func (p *Peer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Peer) setState(s State) {
	p.mu.Lock()
	if p.state == StateClosed || p.state == s {
		p.mu.Unlock()
		return
	}
	p.state = s
	fn := p.onState
	p.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (p *Peer) CreateOffer(ctx context.Context) (string, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return "", err
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return "", err
	}
	p.setState(StateOffering)
	return offer.SDP, nil
}

func (p *Peer) HandleOffer(ctx context.Context, sdp string) (string, error) {
	desc := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
	if err := p.pc.SetRemoteDescription(desc); err != nil {
		return "", err
	}
	p.flushPending()
	p.setState(StateAnswering)

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return "", err
	}
	return answer.SDP, nil
}

func (p *Peer) HandleAnswer(sdp string) error {
	desc := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}
	if err := p.pc.SetRemoteDescription(desc); err != nil {
		return err
	}
	p.flushPending()
	p.setState(StateConnected)
	return nil
}

// AddCandidate buffers candidates that race ahead of the remote description.
// Signaling is unordered relative to the offer/answer exchange, so an early
// candidate is legitimate and must not be dropped.
func (p *Peer) AddCandidate(ci signaling.CandidateInit) error {
	cand := toPion(ci)
	p.mu.Lock()
	if !p.remoteSet {
		p.pending = append(p.pending, cand)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()
	return p.pc.AddICECandidate(cand)
}

func (p *Peer) flushPending() {
	p.mu.Lock()
	p.remoteSet = true
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, cand := range pending {
		if err := p.pc.AddICECandidate(cand); err != nil {
			log.Error().Err(err).Str("module", "rtc").Str("remote", string(p.remote)).Msg("flush buffered candidate")
		}
	}
}

func (p *Peer) ReplaceTracks(tracks []webrtc.TrackLocal) error {
	p.mu.Lock()
	senders := make([]*webrtc.RTPSender, len(p.senders))
	copy(senders, p.senders)
	p.mu.Unlock()

	for _, t := range tracks {
		replaced := false
		for _, sender := range senders {
			cur := sender.Track()
			if cur != nil && cur.Kind() == t.Kind() {
				if err := sender.ReplaceTrack(t); err != nil {
					return err
				}
				replaced = true
				break
			}
		}
		if !replaced {
			sender, err := p.pc.AddTrack(t)
			if err != nil {
				return err
			}
			p.mu.Lock()
			p.senders = append(p.senders, sender)
			p.mu.Unlock()
		}
	}
	return nil
}

func (p *Peer) Close() {
	p.mu.Lock()
	if p.state == StateClosed {
		p.mu.Unlock()
		return
	}
	p.state = StateClosed
	p.mu.Unlock()

	if err := p.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "rtc").Str("remote", string(p.remote)).Msg("close error")
	}
}

func (p *Peer) OnCandidate(fn func(signaling.CandidateInit)) {
	p.mu.Lock()
	p.onCand = fn
	p.mu.Unlock()
}

func (p *Peer) OnRemoteTrack(fn func(*webrtc.TrackRemote)) {
	p.mu.Lock()
	p.onTrack = fn
	p.mu.Unlock()
}

func (p *Peer) OnStateChange(fn func(State)) {
	p.mu.Lock()
	p.onState = fn
	p.mu.Unlock()
}

func toPion(ci signaling.CandidateInit) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:     ci.Candidate,
		SDPMid:        ci.SDPMid,
		SDPMLineIndex: ci.SDPMLineIndex,
	}
}

func fromPion(ci webrtc.ICECandidateInit) signaling.CandidateInit {
	return signaling.CandidateInit{
		Candidate:     ci.Candidate,
		SDPMid:        ci.SDPMid,
		SDPMLineIndex: ci.SDPMLineIndex,
	}
}

// NewFactory returns a Factory producing pion-backed connections.
func NewFactory(cfg webrtc.Configuration) Factory {
	return func(remote domain.UserID, tracks []webrtc.TrackLocal) (Conn, error) {
		return NewPeer(cfg, remote, tracks)
	}
}
