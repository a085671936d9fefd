package server

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/lingomeet/mesh/internal/domain"
	"github.com/lingomeet/mesh/internal/signaling"
)

type memberEntry struct {
	info signaling.Member
	conn sender
}

// Room is the live membership of one meeting: presence fanout plus broadcast
// relay. Broadcasts are never echoed back to their sender.
type Room struct {
	ID domain.RoomID

	mu      sync.RWMutex
	members map[domain.UserID]*memberEntry
}

func NewRoom(id domain.RoomID) *Room {
	return &Room{ID: id, members: make(map[domain.UserID]*memberEntry)}
}

func (r *Room) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Add registers a member: the joiner receives a full presence sync, everyone
// else a presence join. Re-tracking the same id just refreshes its info.
func (r *Room) Add(id domain.UserID, info signaling.Member, conn sender) {
	r.mu.Lock()
	_, rejoin := r.members[id]
	r.members[id] = &memberEntry{info: info, conn: conn}
	all := r.membersLocked()
	r.mu.Unlock()

	r.sendTo(conn, signaling.Frame{Type: signaling.FramePresenceState, Members: all})
	if !rejoin {
		r.fanOut(id, signaling.Frame{Type: signaling.FramePresenceJoin, Members: []signaling.Member{info}})
	}
	log.Info().Str("module", "server.room").Str("room", string(r.ID)).Str("member", string(id)).Msg("member added")
}

// Remove drops a member and tells the rest of the room. No-op for unknown ids.
func (r *Room) Remove(id domain.UserID) {
	r.mu.Lock()
	entry, ok := r.members[id]
	if ok {
		delete(r.members, id)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	r.fanOut(id, signaling.Frame{Type: signaling.FramePresenceLeave, Members: []signaling.Member{entry.info}})
	log.Info().Str("module", "server.room").Str("room", string(r.ID)).Str("member", string(id)).Msg("member removed")
}

// Broadcast relays a payload to every member except the sender.
func (r *Room) Broadcast(from domain.UserID, event signaling.EventType, payload json.RawMessage) {
	r.fanOut(from, signaling.Frame{Type: signaling.FrameBroadcast, Event: event, Payload: payload})
}

// Members returns the current presence snapshot.
func (r *Room) Members() []signaling.Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.membersLocked()
}

func (r *Room) membersLocked() []signaling.Member {
	out := make([]signaling.Member, 0, len(r.members))
	for _, e := range r.members {
		out = append(out, e.info)
	}
	return out
}

func (r *Room) fanOut(except domain.UserID, f signaling.Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		log.Error().Err(err).Str("module", "server.room").Msg("fanOut marshal")
		return
	}
	r.mu.RLock()
	targets := make([]sender, 0, len(r.members))
	for id, e := range r.members {
		if id == except {
			continue
		}
		targets = append(targets, e.conn)
	}
	r.mu.RUnlock()

	for _, t := range targets {
		if err := t.TrySend(data); err != nil {
			log.Debug().Err(err).Str("module", "server.room").Msg("fanOut drop")
		}
	}
}

func (r *Room) sendTo(conn sender, f signaling.Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		log.Error().Err(err).Str("module", "server.room").Msg("sendTo marshal")
		return
	}
	if err := conn.TrySend(data); err != nil {
		log.Debug().Err(err).Str("module", "server.room").Msg("sendTo drop")
	}
}
