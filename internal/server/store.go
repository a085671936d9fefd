package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var ErrRoomNotFound = errors.New("room not found")

// RoomMeta is the durable directory entry for a room.
type RoomMeta struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	CreatedAt   time.Time `json:"createdAt"`
	MemberCount int       `json:"memberCount"`
}

// RoomStore keeps the room directory in Redis so multiple server instances
// (and the scheduling UI) can list rooms. A nil store disables persistence;
// rooms then live only in hub memory.
type RoomStore struct {
	rdb *redis.Client
}

// NewRoomStore connects to Redis. Empty addr returns a nil store, which every
// method tolerates.
func NewRoomStore(ctx context.Context, addr, password string, db int) (*RoomStore, error) {
	if addr == "" {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connect: %w", err)
	}
	return &RoomStore{rdb: rdb}, nil
}

func (s *RoomStore) Close() error {
	if s == nil {
		return nil
	}
	return s.rdb.Close()
}

func roomKey(id string) string { return "room:" + id }

// Create registers a room in the directory.
func (s *RoomStore) Create(ctx context.Context, id, name string) error {
	if s == nil {
		return nil
	}
	now := time.Now()
	err := s.rdb.HSet(ctx, roomKey(id), map[string]any{
		"name":       name,
		"created_at": now.Unix(),
		"members":    0,
	}).Err()
	if err != nil {
		return fmt.Errorf("room create: %w", err)
	}
	return nil
}

// Get looks a room up by id.
func (s *RoomStore) Get(ctx context.Context, id string) (*RoomMeta, error) {
	if s == nil {
		return nil, ErrRoomNotFound
	}
	vals, err := s.rdb.HGetAll(ctx, roomKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("room get: %w", err)
	}
	if len(vals) == 0 {
		return nil, ErrRoomNotFound
	}
	meta := &RoomMeta{ID: id, Name: vals["name"]}
	if ts, err := s.rdb.HGet(ctx, roomKey(id), "created_at").Int64(); err == nil {
		meta.CreatedAt = time.Unix(ts, 0)
	}
	if n, err := s.rdb.HGet(ctx, roomKey(id), "members").Int(); err == nil {
		meta.MemberCount = n
	}
	return meta, nil
}

// MemberJoined bumps the member count. Best effort.
func (s *RoomStore) MemberJoined(ctx context.Context, id string) {
	if s == nil {
		return
	}
	if err := s.rdb.HIncrBy(ctx, roomKey(id), "members", 1).Err(); err != nil {
		log.Warn().Err(err).Str("module", "server.store").Str("room", id).Msg("member count incr")
	}
}

// MemberLeft drops the member count. Best effort.
func (s *RoomStore) MemberLeft(ctx context.Context, id string) {
	if s == nil {
		return
	}
	if err := s.rdb.HIncrBy(ctx, roomKey(id), "members", -1).Err(); err != nil {
		log.Warn().Err(err).Str("module", "server.store").Str("room", id).Msg("member count decr")
	}
}
