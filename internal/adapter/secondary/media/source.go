package media

import (
	"sync"
	"time"
)

// VirtualSource is a media stream whose position follows the wall clock.
// It stands in for a decoder: the engine only needs transport and position.
type VirtualSource struct {
	url      string
	loop     bool
	duration time.Duration
	now      func() time.Time

	mu      sync.Mutex
	playing bool
	base    time.Duration
	anchor  time.Time
	volume  float64
	closed  bool
}

func newVirtualSource(url string, d time.Duration, loop bool, now func() time.Time) *VirtualSource {
	return &VirtualSource{url: url, loop: loop, duration: d, now: now, volume: 1}
}

// URL returns the location the source was opened from.
func (s *VirtualSource) URL() string { return s.url }

func (s *VirtualSource) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.playing {
		return false
	}
	return s.loop || s.positionLocked() < s.duration
}

func (s *VirtualSource) Position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positionLocked()
}

func (s *VirtualSource) positionLocked() time.Duration {
	pos := s.base
	if s.playing {
		pos += s.now().Sub(s.anchor)
	}
	if s.duration <= 0 {
		return 0
	}
	if s.loop {
		return pos % s.duration
	}
	if pos > s.duration {
		return s.duration
	}
	return pos
}

func (s *VirtualSource) Duration() time.Duration { return s.duration }

func (s *VirtualSource) Play() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.playing {
		return
	}
	s.playing = true
	s.anchor = s.now()
}

func (s *VirtualSource) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.playing {
		return
	}
	s.base = s.positionLocked()
	s.playing = false
}

func (s *VirtualSource) Seek(to time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if to < 0 {
		to = 0
	}
	if to > s.duration {
		to = s.duration
	}
	s.base = to
	s.anchor = s.now()
}

// SetVolume clamps v into 0..1.
func (s *VirtualSource) SetVolume(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case v < 0:
		v = 0
	case v > 1:
		v = 1
	}
	s.volume = v
}

func (s *VirtualSource) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

// Close stops the stream. It is safe to call more than once.
func (s *VirtualSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.playing = false
	return nil
}
