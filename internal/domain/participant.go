// Package domain contains entities without logic, just meta-data.
package domain

import (
	"errors"
	"time"
)

const (
	MaxUserIDLen      = 36
	MaxDisplayNameLen = 36
)

var (
	ErrNameTooLong = errors.New("display name too long")
	ErrNameEmpty   = errors.New("display name empty")
)

type (
	UserID string
	RoomID string
)

type Role string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
)

// Participant is one seat in a room as seen by everyone else.
// Flags are updated from state_update broadcasts, not negotiated.
type Participant struct {
	ID            UserID    `json:"id"`
	DisplayName   string    `json:"displayName"`
	Role          Role      `json:"role"`
	JoinedAt      time.Time `json:"joinedAt"`
	Muted         bool      `json:"muted"`
	VideoOn       bool      `json:"videoOn"`
	ScreenSharing bool      `json:"screenSharing"`
}

func NewParticipant(id UserID, displayName string, role Role, joinedAt time.Time) (*Participant, error) {
	if displayName == "" {
		return nil, ErrNameEmpty
	}
	if len(displayName) > MaxDisplayNameLen {
		return nil, ErrNameTooLong
	}
	return &Participant{
		ID:          id,
		DisplayName: displayName,
		Role:        role,
		JoinedAt:    joinedAt,
		VideoOn:     true,
	}, nil
}
