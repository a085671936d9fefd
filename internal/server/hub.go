package server

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/lingomeet/mesh/internal/domain"
	"github.com/lingomeet/mesh/internal/signaling"
)

// Hub owns all live rooms and runs the per-connection frame loop.
type Hub struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*Room
	store *RoomStore

	pingPeriod time.Duration
	readLimit  int64
}

func NewHub(store *RoomStore, readLimit int64, pingPeriod time.Duration) *Hub {
	if pingPeriod <= 0 {
		pingPeriod = 54 * time.Second
	}
	if readLimit <= 0 {
		readLimit = 32768
	}
	return &Hub{
		rooms:      make(map[domain.RoomID]*Room),
		store:      store,
		pingPeriod: pingPeriod,
		readLimit:  readLimit,
	}
}

func (h *Hub) getOrCreate(id domain.RoomID) *Room {
	h.mu.RLock()
	room, ok := h.rooms[id]
	h.mu.RUnlock()
	if ok {
		return room
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if room, ok = h.rooms[id]; !ok {
		room = NewRoom(id)
		h.rooms[id] = room
		log.Info().Str("module", "server.hub").Str("room", string(id)).Msg("room opened")
	}
	return room
}

func (h *Hub) dropIfEmpty(id domain.RoomID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if room, ok := h.rooms[id]; ok && room.MemberCount() == 0 {
		delete(h.rooms, id)
		log.Info().Str("module", "server.hub").Str("room", string(id)).Msg("room closed")
	}
}

// Room returns the live room for id, if open.
func (h *Hub) Room(id domain.RoomID) (*Room, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	room, ok := h.rooms[id]
	return room, ok
}

// Serve runs one client connection until it leaves or the socket drops.
// Identity comes from the validated room token, not from the client frames.
func (h *Hub) Serve(ctx context.Context, ws *websocket.Conn, claims *RoomClaims) {
	roomID := domain.RoomID(claims.RoomID)
	userID := domain.UserID(claims.UserID)

	conn := newWSConn(ws)
	ws.SetReadLimit(h.readLimit)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go conn.writePump(ctx, h.pingPeriod)

	room := h.getOrCreate(roomID)
	tracked := false

	defer func() {
		if tracked {
			room.Remove(userID)
			h.store.MemberLeft(ctx, claims.RoomID)
		}
		h.dropIfEmpty(roomID)
		conn.Close()
		log.Info().Str("module", "server.hub").Str("room", claims.RoomID).Str("member", claims.UserID).Msg("connection closed")
	}()

	for {
		f, err := conn.readFrame()
		if err != nil {
			return
		}
		switch f.Type {
		case signaling.FrameTrack:
			info := signaling.Member{ID: claims.UserID, DisplayName: claims.Name, JoinedAt: time.Now(), Host: claims.Host}
			if f.Member != nil {
				info.DisplayName = f.Member.DisplayName
				if !f.Member.JoinedAt.IsZero() {
					info.JoinedAt = f.Member.JoinedAt
				}
			}
			room.Add(userID, info, conn)
			if !tracked {
				tracked = true
				h.store.MemberJoined(ctx, claims.RoomID)
			}
		case signaling.FrameBroadcast:
			if !tracked {
				continue // not subscribed yet, drop per contract
			}
			switch f.Event {
			case signaling.EventSignal, signaling.EventChat, signaling.EventControl:
				room.Broadcast(userID, f.Event, f.Payload)
			default:
				log.Debug().Str("module", "server.hub").Str("event", string(f.Event)).Msg("unknown broadcast event")
			}
		case signaling.FrameLeave:
			return
		default:
			log.Debug().Str("module", "server.hub").Str("type", f.Type).Msg("unknown frame")
		}
	}
}
