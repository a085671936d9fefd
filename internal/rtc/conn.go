// Package rtc wraps pion PeerConnections behind a small interface the mesh
// layer can drive (and tests can fake).
package rtc

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/lingomeet/mesh/internal/domain"
	"github.com/lingomeet/mesh/internal/signaling"
)

// State is the lifecycle of one peer link. Disconnected links are torn down;
// a fresh presence or signaling event starts a new connection from scratch.
type State int

const (
	StateNew State = iota
	StateOffering
	StateAnswering
	StateConnected
	StateDisconnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateOffering:
		return "offering"
	case StateAnswering:
		return "answering"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Conn is one bidirectional media connection to a remote participant.
// All methods are invoked from the mesh dispatch goroutine; callbacks may
// fire from pion's goroutines.
type Conn interface {
	State() State

	// CreateOffer moves the connection to Offering and returns the local SDP.
	CreateOffer(ctx context.Context) (string, error)

	// HandleOffer applies a remote offer and returns the local answer,
	// flushing any candidates buffered before the description existed.
	HandleOffer(ctx context.Context, sdp string) (string, error)

	// HandleAnswer applies a remote answer; the connection is Connected.
	HandleAnswer(sdp string) error

	// AddCandidate applies a remote ICE candidate, buffering it if the remote
	// description has not been set yet.
	AddCandidate(ci signaling.CandidateInit) error

	// ReplaceTracks swaps matching-kind local tracks in place, without
	// renegotiation, so peers receive the new source mid-call.
	ReplaceTracks(tracks []webrtc.TrackLocal) error

	Close()

	OnCandidate(fn func(signaling.CandidateInit))
	OnRemoteTrack(fn func(*webrtc.TrackRemote))
	OnStateChange(fn func(State))
}

// Factory builds a connection to one remote participant with the current
// local track set attached.
type Factory func(remote domain.UserID, tracks []webrtc.TrackLocal) (Conn, error)
