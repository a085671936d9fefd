package mesh

import (
	"context"
	"fmt"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/lingomeet/mesh/internal/domain"
	"github.com/lingomeet/mesh/internal/rtc"
	"github.com/lingomeet/mesh/internal/signaling"
)

// Handlers surface engine output to the consuming layer. All fields are
// optional. RemoteTrack and StreamRetracted may fire from transport
// goroutines; everything else fires on the dispatch goroutine.
type Handlers struct {
	RemoteTrack         func(id domain.UserID, track *webrtc.TrackRemote)
	StreamRetracted     func(id domain.UserID)
	Chat                func(domain.ChatMessage)
	Notification        func(string)
	ParticipantsChanged func([]domain.Participant)
	JoinRequestsChanged func([]domain.JoinRequest)
	MuteRequested       func()
	VideoRequested      func()
	Kicked              func()
	Spotlight           func(id domain.UserID, on bool)
	Admission           func(accepted bool)
}

// Options configures an Engine for one seat in one room.
type Options struct {
	Self    domain.Participant
	Channel signaling.Channel
	Factory rtc.Factory
	Source  rtc.LocalSource

	// RequireAdmission makes a guest wait for join_accepted before it
	// initiates any connection. Hosts are always admitted.
	RequireAdmission bool

	Handlers Handlers
}

// Engine drives the peer mesh for one participant. All state transitions run
// on the dispatch goroutine; see signaling.Dispatcher.
type Engine struct {
	self      domain.Participant
	ch        signaling.Channel
	reg       *Registry
	factory   rtc.Factory
	source    rtc.LocalSource
	chat      *ChatLog
	admission *AdmissionQueue
	handlers  Handlers
	disp      *signaling.Dispatcher

	ctx       context.Context
	admitted  bool
	left      bool
	spotlight domain.UserID
	members   map[domain.UserID]signaling.Member
}

func New(opts Options) *Engine {
	e := &Engine{
		self:      opts.Self,
		ch:        opts.Channel,
		reg:       NewRegistry(),
		factory:   opts.Factory,
		source:    opts.Source,
		chat:      NewChatLog(),
		admission: NewAdmissionQueue(),
		handlers:  opts.Handlers,
		ctx:       context.Background(),
		admitted:  opts.Self.Role == domain.RoleHost || !opts.RequireAdmission,
		members:   make(map[domain.UserID]signaling.Member),
	}
	e.disp = signaling.NewDispatcher(opts.Channel, e.handleEvent)
	opts.Source.OnChange(func() {
		e.disp.Post(func() { e.reg.ReplaceLocalTracks(e.source.Tracks()) })
	})
	return e
}

// Run announces presence and blocks consuming events until ctx is canceled,
// the channel closes, or the engine leaves the room.
func (e *Engine) Run(ctx context.Context) error {
	e.ctx = ctx
	self := signaling.Member{
		ID:          string(e.self.ID),
		DisplayName: e.self.DisplayName,
		JoinedAt:    e.self.JoinedAt,
		Host:        e.self.Role == domain.RoleHost,
	}
	if err := e.ch.Track(ctx, self); err != nil {
		return fmt.Errorf("track presence: %w", err)
	}
	if !e.admitted {
		e.sendControl(signaling.TargetAll, signaling.ActionJoinRequest, nil)
	}
	e.disp.Run(ctx)
	// The dispatcher stops without draining its queue, so a posted teardown
	// may never execute. Run it here; no handler runs concurrently anymore.
	e.teardown()
	return nil
}

// Leave tears the session down: mute local output, close every connection
// (best effort), clear own admission entries, unsubscribe.
func (e *Engine) Leave() {
	e.disp.Post(e.teardown)
}

func (e *Engine) teardown() {
	if e.left {
		return
	}
	e.left = true
	e.source.Mute()
	e.reg.CloseAll()
	e.admission.Remove(e.self.ID)
	if err := e.ch.Leave(); err != nil {
		log.Warn().Err(err).Str("module", "mesh.engine").Msg("channel leave")
	}
	log.Info().Str("module", "mesh.engine").Str("self", string(e.self.ID)).Msg("left room")
}

func (e *Engine) handleEvent(ev signaling.Event) {
	if e.left {
		return
	}
	switch ev := ev.(type) {
	case signaling.PresenceSync:
		for _, m := range ev.Members {
			e.onMemberPresent(m)
		}
	case signaling.PresenceJoin:
		for _, m := range ev.Members {
			e.onMemberPresent(m)
		}
	case signaling.PresenceLeave:
		for _, m := range ev.Members {
			e.onMemberLeft(m)
		}
	case signaling.Inbound:
		e.onInbound(ev)
	}
}

func (e *Engine) onMemberPresent(m signaling.Member) {
	id := domain.UserID(m.ID)
	if id == e.self.ID {
		return
	}
	if _, known := e.members[id]; !known {
		e.members[id] = m
		name := m.DisplayName
		if name == "" {
			name = "Guest"
		}
		role := domain.RoleGuest
		if m.Host {
			role = domain.RoleHost
		}
		p, err := domain.NewParticipant(id, name, role, m.JoinedAt)
		if err == nil {
			e.reg.SetParticipant(id, p)
			e.emitParticipants()
		}
	}
	if e.admitted {
		e.ensureConnection(id, true)
	}
}

func (e *Engine) onMemberLeft(m signaling.Member) {
	id := domain.UserID(m.ID)
	if id == e.self.ID {
		return
	}
	delete(e.members, id)
	if e.reg.Remove(id) {
		e.emitStreamRetracted(id)
	}
	if e.admission.Remove(id) {
		e.emitJoinRequests()
	}
	e.emitParticipants()
	e.notify(fmt.Sprintf("%s left.", displayOr(m.DisplayName, "Guest")))
}

func (e *Engine) onInbound(in signaling.Inbound) {
	switch in.Event {
	case signaling.EventSignal:
		env, err := signaling.DecodeSignal(in.Payload)
		if err != nil {
			log.Debug().Err(err).Str("module", "mesh.engine").Msg("ignoring signal")
			return
		}
		e.handleSignal(env)
	case signaling.EventChat:
		cp, err := signaling.DecodeChat(in.Payload)
		if err != nil {
			log.Debug().Err(err).Str("module", "mesh.engine").Msg("ignoring chat")
			return
		}
		e.handleChat(cp)
	case signaling.EventControl:
		cs, err := signaling.DecodeControl(in.Payload)
		if err != nil {
			log.Debug().Err(err).Str("module", "mesh.engine").Msg("ignoring control")
			return
		}
		e.handleControl(cs)
	default:
		log.Debug().Str("module", "mesh.engine").Str("event", string(in.Event)).Msg("unknown event type")
	}
}

// handleSignal runs one negotiation step for an addressed envelope.
func (e *Engine) handleSignal(env signaling.SignalEnvelope) {
	if env.Target != e.self.ID || env.Sender == e.self.ID {
		return
	}
	sender := env.Sender

	switch env.Kind {
	case signaling.KindOffer:
		if conn, ok := e.reg.Conn(sender); ok && conn.State() == rtc.StateOffering {
			// Glare: both sides offered at once. The smaller id's offer wins;
			// the larger id abandons its own and answers.
			if e.self.ID < sender {
				log.Info().Str("module", "mesh.engine").Str("remote", string(sender)).Msg("glare: keeping own offer")
				return
			}
			log.Info().Str("module", "mesh.engine").Str("remote", string(sender)).Msg("glare: abandoning own offer")
			e.reg.Drop(sender)
		}
		conn := e.ensureConnection(sender, false)
		if conn == nil {
			return
		}
		answer, err := conn.HandleOffer(e.ctx, env.SDP)
		if err != nil {
			log.Error().Err(err).Str("module", "mesh.engine").Str("remote", string(sender)).Msg("handle offer")
			e.dropPeer(sender)
			return
		}
		e.sendSignal(signaling.SignalEnvelope{
			Kind:   signaling.KindAnswer,
			SDP:    answer,
			Sender: e.self.ID,
			Target: sender,
		})

	case signaling.KindAnswer:
		conn, ok := e.reg.Conn(sender)
		if !ok {
			log.Warn().Str("module", "mesh.engine").Str("remote", string(sender)).Msg("answer for unknown peer")
			return
		}
		if err := conn.HandleAnswer(env.SDP); err != nil {
			log.Error().Err(err).Str("module", "mesh.engine").Str("remote", string(sender)).Msg("handle answer")
			e.dropPeer(sender)
		}

	case signaling.KindCandidate:
		if env.Candidate == nil {
			return
		}
		conn := e.ensureConnection(sender, false)
		if conn == nil {
			return
		}
		if err := conn.AddCandidate(*env.Candidate); err != nil {
			log.Error().Err(err).Str("module", "mesh.engine").Str("remote", string(sender)).Msg("add candidate")
		}
	}
}

// ensureConnection returns the live connection for id, creating one when
// missing. Idempotent: a second call never produces a second offer. When
// asInitiator is set on creation, a local offer is published to id.
func (e *Engine) ensureConnection(id domain.UserID, asInitiator bool) rtc.Conn {
	conn, created, err := e.reg.Ensure(id, func() (rtc.Conn, error) {
		c, err := e.factory(id, e.source.Tracks())
		if err != nil {
			return nil, err
		}
		c.OnCandidate(func(ci signaling.CandidateInit) {
			e.sendSignal(signaling.SignalEnvelope{
				Kind:      signaling.KindCandidate,
				Candidate: &ci,
				Sender:    e.self.ID,
				Target:    id,
			})
		})
		c.OnRemoteTrack(func(track *webrtc.TrackRemote) {
			if e.handlers.RemoteTrack != nil {
				e.handlers.RemoteTrack(id, track)
			}
			e.reg.UpdateParticipant(id, func(p *domain.Participant) { p.VideoOn = true })
		})
		c.OnStateChange(func(s rtc.State) {
			if s == rtc.StateDisconnected {
				e.disp.Post(func() { e.dropPeer(id) })
			}
		})
		return c, nil
	})
	if err != nil {
		log.Error().Err(err).Str("module", "mesh.engine").Str("remote", string(id)).Msg("create connection")
		return nil
	}
	if created && asInitiator {
		sdp, err := conn.CreateOffer(e.ctx)
		if err != nil {
			log.Error().Err(err).Str("module", "mesh.engine").Str("remote", string(id)).Msg("create offer")
			e.dropPeer(id)
			return nil
		}
		e.sendSignal(signaling.SignalEnvelope{
			Kind:   signaling.KindOffer,
			SDP:    sdp,
			Sender: e.self.ID,
			Target: id,
		})
	}
	return conn
}

// dropPeer tears down the connection to id. Presence state is untouched; a
// later presence or signaling event may start a fresh connection.
func (e *Engine) dropPeer(id domain.UserID) {
	if e.reg.Drop(id) {
		e.emitStreamRetracted(id)
	}
}

func (e *Engine) handleChat(cp signaling.ChatPayload) {
	msg := domain.ChatMessage{
		ID:         cp.ID,
		SenderID:   cp.SenderID,
		SenderName: cp.SenderName,
		Text:       cp.Text,
		SentAt:     cp.Timestamp,
	}
	if e.chat.Receive(msg) && e.handlers.Chat != nil {
		e.handlers.Chat(msg)
	}
}

func (e *Engine) sendSignal(env signaling.SignalEnvelope) {
	if err := e.ch.Broadcast(e.ctx, signaling.EventSignal, env); err != nil {
		log.Warn().Err(err).Str("module", "mesh.engine").Str("kind", string(env.Kind)).Msg("signal send")
	}
}

func (e *Engine) notify(msg string) {
	if e.handlers.Notification != nil {
		e.handlers.Notification(msg)
	}
}

func (e *Engine) emitParticipants() {
	if e.handlers.ParticipantsChanged != nil {
		e.handlers.ParticipantsChanged(e.reg.Participants())
	}
}

func (e *Engine) emitJoinRequests() {
	if e.handlers.JoinRequestsChanged != nil {
		e.handlers.JoinRequestsChanged(e.admission.Snapshot())
	}
}

func (e *Engine) emitStreamRetracted(id domain.UserID) {
	if e.handlers.StreamRetracted != nil {
		e.handlers.StreamRetracted(id)
	}
}

func displayOr(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}
