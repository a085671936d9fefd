// Package mesh orchestrates the full-mesh peer topology for one room:
// connection registry, negotiation, moderation protocol, and chat relay.
package mesh

import (
	"sort"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/lingomeet/mesh/internal/domain"
	"github.com/lingomeet/mesh/internal/rtc"
)

type link struct {
	conn        rtc.Conn
	participant *domain.Participant
}

// Registry is the single owner of all peer connections, keyed by remote id.
// Invariant: at most one non-closed connection per remote id. All writes come
// from the dispatch goroutine; the lock exists for snapshot readers.
type Registry struct {
	mu    sync.RWMutex
	links map[domain.UserID]*link
}

func NewRegistry() *Registry {
	return &Registry{links: make(map[domain.UserID]*link)}
}

// Ensure returns the live connection for id, building one with create only
// when none exists. The bool reports whether a connection was created.
func (r *Registry) Ensure(id domain.UserID, create func() (rtc.Conn, error)) (rtc.Conn, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.links[id]
	if !ok {
		l = &link{}
		r.links[id] = l
	}
	if l.conn != nil && l.conn.State() != rtc.StateClosed {
		return l.conn, false, nil
	}

	conn, err := create()
	if err != nil {
		return nil, false, err
	}
	l.conn = conn
	log.Info().Str("module", "mesh.registry").Str("remote", string(id)).Msg("connection created")
	return conn, true, nil
}

// Conn returns the live connection for id, if any.
func (r *Registry) Conn(id domain.UserID) (rtc.Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.links[id]
	if !ok || l.conn == nil || l.conn.State() == rtc.StateClosed {
		return nil, false
	}
	return l.conn, true
}

// Drop closes and discards the connection for id, keeping the participant
// entry. No-op when id has no connection.
func (r *Registry) Drop(id domain.UserID) bool {
	r.mu.Lock()
	l, ok := r.links[id]
	var conn rtc.Conn
	if ok && l.conn != nil {
		conn = l.conn
		l.conn = nil
	}
	r.mu.Unlock()

	if conn == nil {
		return false
	}
	conn.Close()
	log.Info().Str("module", "mesh.registry").Str("remote", string(id)).Msg("connection dropped")
	return true
}

// Remove discards both the connection and the participant entry for id.
func (r *Registry) Remove(id domain.UserID) bool {
	dropped := r.Drop(id)
	r.mu.Lock()
	_, had := r.links[id]
	delete(r.links, id)
	r.mu.Unlock()
	return dropped || had
}

// CloseAll tears down every connection, swallowing close failures.
// Leaf operation on the leave path; there is no further recovery.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := make([]rtc.Conn, 0, len(r.links))
	for _, l := range r.links {
		if l.conn != nil {
			conns = append(conns, l.conn)
			l.conn = nil
		}
	}
	r.links = make(map[domain.UserID]*link)
	r.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

// ReplaceLocalTracks fans the new track set out to every live connection.
// In-place replacement, no renegotiation round trip.
func (r *Registry) ReplaceLocalTracks(tracks []webrtc.TrackLocal) {
	r.mu.RLock()
	conns := make([]rtc.Conn, 0, len(r.links))
	for _, l := range r.links {
		if l.conn != nil && l.conn.State() != rtc.StateClosed {
			conns = append(conns, l.conn)
		}
	}
	r.mu.RUnlock()

	for _, c := range conns {
		if err := c.ReplaceTracks(tracks); err != nil {
			log.Error().Err(err).Str("module", "mesh.registry").Msg("replace tracks")
		}
	}
}

// SetParticipant records presence meta for id. Existing meta is kept.
func (r *Registry) SetParticipant(id domain.UserID, p *domain.Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.links[id]
	if !ok {
		l = &link{}
		r.links[id] = l
	}
	if l.participant == nil {
		l.participant = p
	}
}

// UpdateParticipant mutates the participant meta for id under the lock.
func (r *Registry) UpdateParticipant(id domain.UserID, fn func(*domain.Participant)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.links[id]
	if !ok || l.participant == nil {
		return false
	}
	fn(l.participant)
	return true
}

// Participants returns a stable snapshot ordered by join time.
func (r *Registry) Participants() []domain.Participant {
	r.mu.RLock()
	out := make([]domain.Participant, 0, len(r.links))
	for _, l := range r.links {
		if l.participant != nil {
			out = append(out, *l.participant)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}

// Len reports how many live connections exist.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, l := range r.links {
		if l.conn != nil && l.conn.State() != rtc.StateClosed {
			n++
		}
	}
	return n
}
