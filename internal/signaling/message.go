package signaling

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/lingomeet/mesh/internal/domain"
)

// EventType is the broadcast lane a payload travels on.
type EventType string

const (
	EventSignal  EventType = "signal"
	EventChat    EventType = "chat"
	EventControl EventType = "control"
)

// TargetAll addresses a control message to every participant.
const TargetAll = "all"

var (
	ErrBadPayload  = errors.New("malformed payload")
	ErrNoTarget    = errors.New("payload has no target")
	ErrUnknownKind = errors.New("unknown signal kind")
)

// SignalKind is the closed set of negotiation message kinds.
type SignalKind string

const (
	KindOffer     SignalKind = "offer"
	KindAnswer    SignalKind = "answer"
	KindCandidate SignalKind = "candidate"
)

// CandidateInit mirrors the wire shape of an ICE candidate without tying
// the transport layer to pion types.
type CandidateInit struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

// SignalEnvelope carries one offer/answer/candidate between two peers.
// Consumed once and discarded.
type SignalEnvelope struct {
	Kind      SignalKind     `json:"type"`
	SDP       string         `json:"sdp,omitempty"`
	Candidate *CandidateInit `json:"candidate,omitempty"`
	Sender    domain.UserID  `json:"sender"`
	Target    domain.UserID  `json:"target"`
}

func DecodeSignal(raw []byte) (SignalEnvelope, error) {
	var env SignalEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return SignalEnvelope{}, ErrBadPayload
	}
	switch env.Kind {
	case KindOffer, KindAnswer, KindCandidate:
	default:
		return SignalEnvelope{}, ErrUnknownKind
	}
	if env.Target == "" {
		return SignalEnvelope{}, ErrNoTarget
	}
	return env, nil
}

// ControlAction names a moderation/admission command. Unknown actions decode
// fine and are ignored by the handler; the protocol stays permissive so mixed
// client versions can share a room.
type ControlAction string

const (
	ActionMute         ControlAction = "mute"
	ActionRequestVideo ControlAction = "request_video"
	ActionKick         ControlAction = "kick"
	ActionSpotlight    ControlAction = "spotlight"
	ActionUnspotlight  ControlAction = "unspotlight"
	ActionJoinRequest  ControlAction = "join_request"
	ActionJoinAccepted ControlAction = "join_accepted"
	ActionJoinDenied   ControlAction = "join_denied"
	ActionStateUpdate  ControlAction = "state_update"
)

// ControlSignal is the wire shape of one control command.
type ControlSignal struct {
	Target     string          `json:"target"`
	Action     ControlAction   `json:"action"`
	SenderID   domain.UserID   `json:"senderId"`
	SenderName string          `json:"senderName"`
	Data       json.RawMessage `json:"data,omitempty"`
}

func DecodeControl(raw []byte) (ControlSignal, error) {
	var cs ControlSignal
	if err := json.Unmarshal(raw, &cs); err != nil {
		return ControlSignal{}, ErrBadPayload
	}
	if cs.Target == "" {
		return ControlSignal{}, ErrNoTarget
	}
	return cs, nil
}

// StateUpdate is the data of an ActionStateUpdate broadcast. Pointers so a
// sender can flip one flag without clobbering the rest.
type StateUpdate struct {
	Muted         *bool `json:"muted,omitempty"`
	VideoOn       *bool `json:"videoOn,omitempty"`
	ScreenSharing *bool `json:"screenSharing,omitempty"`
}

// ChatPayload is the wire shape of one chat message.
type ChatPayload struct {
	ID         string        `json:"id"`
	Text       string        `json:"text"`
	SenderID   domain.UserID `json:"senderId"`
	SenderName string        `json:"senderName"`
	Timestamp  time.Time     `json:"timestamp"`
}

func DecodeChat(raw []byte) (ChatPayload, error) {
	var cp ChatPayload
	if err := json.Unmarshal(raw, &cp); err != nil {
		return ChatPayload{}, ErrBadPayload
	}
	if cp.ID == "" {
		return ChatPayload{}, ErrBadPayload
	}
	return cp, nil
}
