package signaling

import "encoding/json"

// Frame is the websocket framing between a client and the signaling server.
// Client to server: track, broadcast, leave.
// Server to client: presence_state, presence_join, presence_leave, broadcast, error.
type Frame struct {
	Type    string          `json:"type"`
	Event   EventType       `json:"event,omitempty"`
	Member  *Member         `json:"member,omitempty"`
	Members []Member        `json:"members,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

const (
	FrameTrack         = "track"
	FrameLeave         = "leave"
	FrameBroadcast     = "broadcast"
	FramePresenceState = "presence_state"
	FramePresenceJoin  = "presence_join"
	FramePresenceLeave = "presence_leave"
	FrameError         = "error"
)
