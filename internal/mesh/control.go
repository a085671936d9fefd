package mesh

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/lingomeet/mesh/internal/domain"
	"github.com/lingomeet/mesh/internal/signaling"
)

// handleControl interprets one moderation/admission command. Unknown actions
// are ignored so older and newer clients can share a room.
func (e *Engine) handleControl(cs signaling.ControlSignal) {
	if cs.SenderID == e.self.ID {
		return // broadcast echo on at-least-once transports
	}
	targeted := cs.Target == string(e.self.ID) || cs.Target == signaling.TargetAll

	switch cs.Action {
	case signaling.ActionStateUpdate:
		var su signaling.StateUpdate
		if len(cs.Data) > 0 {
			if err := json.Unmarshal(cs.Data, &su); err != nil {
				log.Debug().Err(err).Str("module", "mesh.control").Msg("bad state_update data")
				return
			}
		}
		changed := e.reg.UpdateParticipant(cs.SenderID, func(p *domain.Participant) {
			if su.Muted != nil {
				p.Muted = *su.Muted
			}
			if su.VideoOn != nil {
				p.VideoOn = *su.VideoOn
			}
			if su.ScreenSharing != nil {
				p.ScreenSharing = *su.ScreenSharing
			}
		})
		if changed {
			e.emitParticipants()
		}

	case signaling.ActionJoinRequest:
		if e.self.Role != domain.RoleHost {
			return
		}
		if e.admission.Add(cs.SenderID, displayOr(cs.SenderName, "Guest")) {
			e.emitJoinRequests()
			e.notify(fmt.Sprintf("%s is asking to join.", displayOr(cs.SenderName, "Guest")))
		}

	case signaling.ActionJoinAccepted:
		if !targeted || e.admitted {
			return
		}
		e.admitted = true
		if e.handlers.Admission != nil {
			e.handlers.Admission(true)
		}
		// Connect to everyone we already know about.
		for id := range e.members {
			e.ensureConnection(id, true)
		}

	case signaling.ActionJoinDenied:
		if !targeted || e.admitted {
			return
		}
		if e.handlers.Admission != nil {
			e.handlers.Admission(false)
		}
		e.teardown()

	case signaling.ActionMute:
		if !targeted {
			return
		}
		e.source.Mute()
		muted := true
		e.broadcastStateUpdate(signaling.StateUpdate{Muted: &muted})
		if e.handlers.MuteRequested != nil {
			e.handlers.MuteRequested()
		}

	case signaling.ActionRequestVideo:
		if !targeted {
			return
		}
		if e.handlers.VideoRequested != nil {
			e.handlers.VideoRequested()
		}

	case signaling.ActionKick:
		if !targeted {
			return
		}
		if e.handlers.Kicked != nil {
			e.handlers.Kicked()
		}
		e.teardown()

	case signaling.ActionSpotlight, signaling.ActionUnspotlight:
		// Target names the pinned participant; every member acts on it.
		id := domain.UserID(cs.Target)
		on := cs.Action == signaling.ActionSpotlight
		if on {
			e.spotlight = id
		} else if e.spotlight == id {
			e.spotlight = ""
		}
		if e.handlers.Spotlight != nil {
			e.handlers.Spotlight(id, on)
		}

	default:
		log.Debug().Str("module", "mesh.control").Str("action", string(cs.Action)).Msg("unknown control action")
	}
}

// SendChat publishes a chat message and appends it locally right away.
func (e *Engine) SendChat(text string) {
	e.disp.Post(func() {
		msg := domain.NewChatMessage(e.self.ID, e.self.DisplayName, text)
		e.chat.Append(msg)
		if e.handlers.Chat != nil {
			e.handlers.Chat(msg)
		}
		payload := signaling.ChatPayload{
			ID:         msg.ID,
			Text:       msg.Text,
			SenderID:   msg.SenderID,
			SenderName: msg.SenderName,
			Timestamp:  msg.SentAt,
		}
		if err := e.ch.Broadcast(e.ctx, signaling.EventChat, payload); err != nil {
			log.Warn().Err(err).Str("module", "mesh.control").Msg("chat send")
		}
	})
}

// SendControl publishes a control command to a specific participant or "all".
func (e *Engine) SendControl(target string, action signaling.ControlAction, data any) {
	e.disp.Post(func() { e.sendControlData(target, action, data) })
}

// ResolveJoinRequest accepts or denies a pending waiting-room entry.
func (e *Engine) ResolveJoinRequest(id domain.UserID, accepted bool) {
	e.disp.Post(func() {
		if !e.admission.Remove(id) {
			return
		}
		e.emitJoinRequests()
		action := signaling.ActionJoinDenied
		if accepted {
			action = signaling.ActionJoinAccepted
			e.notify(fmt.Sprintf("Accepted %s.", e.displayNameOf(id)))
		}
		e.sendControlData(string(id), action, nil)
	})
}

func (e *Engine) sendControl(target string, action signaling.ControlAction, data json.RawMessage) {
	cs := signaling.ControlSignal{
		Target:     target,
		Action:     action,
		SenderID:   e.self.ID,
		SenderName: e.self.DisplayName,
		Data:       data,
	}
	if err := e.ch.Broadcast(e.ctx, signaling.EventControl, cs); err != nil {
		log.Warn().Err(err).Str("module", "mesh.control").Str("action", string(action)).Msg("control send")
	}
}

func (e *Engine) sendControlData(target string, action signaling.ControlAction, data any) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			log.Error().Err(err).Str("module", "mesh.control").Msg("control data marshal")
			return
		}
		raw = b
	}
	e.sendControl(target, action, raw)
}

func (e *Engine) broadcastStateUpdate(su signaling.StateUpdate) {
	e.sendControlData(signaling.TargetAll, signaling.ActionStateUpdate, su)
}

func (e *Engine) displayNameOf(id domain.UserID) string {
	if m, ok := e.members[id]; ok && m.DisplayName != "" {
		return m.DisplayName
	}
	return "Guest"
}

// Participants returns the current remote participant snapshot.
func (e *Engine) Participants() []domain.Participant { return e.reg.Participants() }

// JoinRequests returns the pending waiting-room entries.
func (e *Engine) JoinRequests() []domain.JoinRequest { return e.admission.Snapshot() }

// ChatHistory returns all stored chat messages in arrival order.
func (e *Engine) ChatHistory() []domain.ChatMessage { return e.chat.Snapshot() }
