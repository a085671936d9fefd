package rtc

import (
	"sync"

	"github.com/pion/webrtc/v4"
)

// LocalSource is the capture collaborator's face: the current local track set
// plus a change notification for camera/mic swaps and screen-share toggles.
// Connections reference these tracks, they never own them.
type LocalSource interface {
	Tracks() []webrtc.TrackLocal
	// OnChange registers fn to fire whenever the active track set changes.
	OnChange(fn func())
	// Mute silences local output without touching the track set.
	Mute()
}

// StaticSource is a LocalSource holding an explicit track list. The headless
// peer uses it directly; tests swap tracks through Set.
type StaticSource struct {
	mu       sync.Mutex
	tracks   []webrtc.TrackLocal
	muted    bool
	onChange func()
}

func NewStaticSource(tracks ...webrtc.TrackLocal) *StaticSource {
	return &StaticSource{tracks: tracks}
}

func (s *StaticSource) Tracks() []webrtc.TrackLocal {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]webrtc.TrackLocal, len(s.tracks))
	copy(out, s.tracks)
	return out
}

// Set replaces the track set and fires the change notification.
func (s *StaticSource) Set(tracks ...webrtc.TrackLocal) {
	s.mu.Lock()
	s.tracks = tracks
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (s *StaticSource) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *StaticSource) Mute() {
	s.mu.Lock()
	s.muted = true
	s.mu.Unlock()
}

// Muted reports whether Mute has been called.
func (s *StaticSource) Muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}
