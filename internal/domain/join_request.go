package domain

import "time"

// JoinRequest is a pending waiting-room entry on the host side.
// Keyed by requester id; duplicates from the same id collapse into one.
type JoinRequest struct {
	RequesterID   UserID    `json:"requesterId"`
	RequesterName string    `json:"requesterName"`
	RequestedAt   time.Time `json:"requestedAt"`
}
