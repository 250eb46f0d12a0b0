package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"calmsession/internal/domain"
	"calmsession/internal/logging"
)

// DefaultPlaybackTick gives the UI five progress updates per second.
const DefaultPlaybackTick = 200 * time.Millisecond

// PlaybackSynchronizer keeps a voice track and a looping ambient track behind
// one virtual timeline.
type PlaybackSynchronizer interface {
	Load(ctx context.Context, voiceURL, ambientURL string, target time.Duration) error
	Play() error
	Pause()
	Stop()
	Seek(to time.Duration)
	SetVoiceVolume(v float64) error
	SetAmbientVolume(v float64) error
	State() domain.PlaybackState
}

// PlaybackOption customizes a PlaybackSynchronizer.
type PlaybackOption func(*playbackInteractor)

// WithTickInterval overrides DefaultPlaybackTick.
func WithTickInterval(d time.Duration) PlaybackOption {
	return func(p *playbackInteractor) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithVolumes sets the initial voice and ambient volumes.
func WithVolumes(voice, ambient float64) PlaybackOption {
	return func(p *playbackInteractor) {
		p.voiceVolume = clampUnit(voice)
		p.ambientVolume = clampUnit(ambient)
	}
}

// WithPlaybackObserver receives the timeline after every tick and transport change.
func WithPlaybackObserver(fn func(domain.PlaybackState)) PlaybackOption {
	return func(p *playbackInteractor) { p.onChange = fn }
}

type playbackInteractor struct {
	opener    domain.MediaOpener
	scheduler domain.Scheduler
	service   *domain.SessionService
	interval  time.Duration
	onChange  func(domain.PlaybackState)
	log       logging.Logger

	mu            sync.Mutex
	voice         domain.MediaSource
	ambient       domain.MediaSource
	loaded        bool
	position      time.Duration
	duration      time.Duration
	playing       bool
	voiceVolume   float64
	ambientVolume float64
	cancel        func()
	gen           uint64
	// loadSeq changes on every teardown so an in-flight Load can tell it lost.
	loadSeq uint64
}

// NewPlaybackSynchronizer creates an empty synchronizer.
func NewPlaybackSynchronizer(opener domain.MediaOpener, scheduler domain.Scheduler, opts ...PlaybackOption) PlaybackSynchronizer {
	p := &playbackInteractor{
		opener:        opener,
		scheduler:     scheduler,
		service:       domain.NewSessionService(),
		interval:      DefaultPlaybackTick,
		log:           logging.For("playback"),
		voiceVolume:   1,
		ambientVolume: 0.5,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Load releases whatever is loaded, then opens the new sources. An empty URL
// leaves that source absent. On failure nothing stays attached. Sources are
// opened without holding the lock; a Stop or another Load in the meantime
// wins, and this call returns ErrLoadSuperseded.
func (p *playbackInteractor) Load(ctx context.Context, voiceURL, ambientURL string, target time.Duration) error {
	p.mu.Lock()
	p.teardownLocked()
	seq := p.loadSeq
	p.mu.Unlock()

	voice, ambient, err := p.open(ctx, voiceURL, ambientURL)
	if err != nil {
		return err
	}

	p.mu.Lock()
	if seq != p.loadSeq {
		p.mu.Unlock()
		closeSource(voice)
		closeSource(ambient)
		p.log.Debugf("load of %s/%s superseded", voiceURL, ambientURL)
		return domain.ErrLoadSuperseded
	}
	if voice != nil {
		voice.SetVolume(p.voiceVolume)
	}
	if ambient != nil {
		ambient.SetVolume(p.ambientVolume)
	}
	p.voice = voice
	p.ambient = ambient
	p.duration = p.service.TimelineDuration(target)
	p.position = 0
	p.loaded = true
	if voice != nil && voice.Duration() < p.duration {
		p.log.Debugf("voice %s shorter than session %s, tail is ambient only", voice.Duration(), p.duration)
	}
	snap := p.stateLocked()
	p.mu.Unlock()
	p.notify(snap)
	return nil
}

func (p *playbackInteractor) open(ctx context.Context, voiceURL, ambientURL string) (voice, ambient domain.MediaSource, err error) {
	if voiceURL != "" {
		if voice, err = p.opener.Open(ctx, voiceURL, false); err != nil {
			p.log.Warnf("voice %s: %v", voiceURL, err)
			return nil, nil, fmt.Errorf("%w: voice %s: %w", domain.ErrMediaOpen, voiceURL, err)
		}
	}
	if ambientURL != "" {
		if ambient, err = p.opener.Open(ctx, ambientURL, true); err != nil {
			closeSource(voice)
			p.log.Warnf("ambient %s: %v", ambientURL, err)
			return nil, nil, fmt.Errorf("%w: ambient %s: %w", domain.ErrMediaOpen, ambientURL, err)
		}
	}
	return voice, ambient, nil
}

func closeSource(src domain.MediaSource) {
	if src != nil {
		_ = src.Close()
	}
}

// Play starts both sources. At the end of the timeline it restarts from zero.
func (p *playbackInteractor) Play() error {
	p.mu.Lock()
	if !p.loaded {
		p.mu.Unlock()
		return domain.ErrNotLoaded
	}
	if p.playing {
		p.mu.Unlock()
		return nil
	}
	if p.position >= p.duration {
		p.position = 0
		if p.voice != nil {
			p.voice.Seek(0)
		}
	}
	if p.voice != nil {
		p.voice.Play()
	}
	if p.ambient != nil {
		p.ambient.Play()
	}
	p.playing = true
	p.gen++
	gen := p.gen
	p.cancel = p.scheduler.Every(p.interval, func() { p.tick(gen) })
	snap := p.stateLocked()
	p.mu.Unlock()
	p.notify(snap)
	return nil
}

func (p *playbackInteractor) tick(gen uint64) {
	p.mu.Lock()
	if gen != p.gen || !p.playing {
		p.mu.Unlock()
		return
	}
	voicePlaying := p.voice != nil && p.voice.IsPlaying()
	var voicePos time.Duration
	if voicePlaying {
		voicePos = p.voice.Position()
	}
	next, end := p.service.NextPosition(p.position, p.interval, p.duration, voicePlaying, voicePos)
	p.position = next
	if end {
		p.pauseLocked()
		p.log.Infof("reached end of session at %s", p.duration)
	}
	snap := p.stateLocked()
	p.mu.Unlock()
	p.notify(snap)
}

// Pause stops both sources and the progress tick.
func (p *playbackInteractor) Pause() {
	p.mu.Lock()
	if !p.playing {
		p.mu.Unlock()
		return
	}
	p.pauseLocked()
	snap := p.stateLocked()
	p.mu.Unlock()
	p.notify(snap)
}

func (p *playbackInteractor) pauseLocked() {
	if p.voice != nil {
		p.voice.Pause()
	}
	if p.ambient != nil {
		p.ambient.Pause()
	}
	p.playing = false
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.gen++
}

// Stop pauses and releases both sources.
func (p *playbackInteractor) Stop() {
	p.mu.Lock()
	p.teardownLocked()
	snap := p.stateLocked()
	p.mu.Unlock()
	p.notify(snap)
}

func (p *playbackInteractor) teardownLocked() {
	p.pauseLocked()
	if p.voice != nil {
		if err := p.voice.Close(); err != nil {
			p.log.Warnf("close voice: %v", err)
		}
		p.voice = nil
	}
	if p.ambient != nil {
		if err := p.ambient.Close(); err != nil {
			p.log.Warnf("close ambient: %v", err)
		}
		p.ambient = nil
	}
	p.loaded = false
	p.position = 0
	p.duration = 0
	p.loadSeq++
}

// Seek moves the virtual timeline. The voice source is clamped to its own
// length, so seeking into the silent tail leaves it parked at its end.
func (p *playbackInteractor) Seek(to time.Duration) {
	p.mu.Lock()
	if !p.loaded {
		p.mu.Unlock()
		return
	}
	clamped := p.service.ClampSeek(to, p.duration)
	p.position = clamped
	if p.voice != nil {
		voiceTarget := clamped
		if d := p.voice.Duration(); voiceTarget > d {
			voiceTarget = d
		}
		p.voice.Seek(voiceTarget)
		if p.playing && voiceTarget < p.voice.Duration() && !p.voice.IsPlaying() {
			p.voice.Play()
		}
	}
	snap := p.stateLocked()
	p.mu.Unlock()
	p.notify(snap)
}

func (p *playbackInteractor) SetVoiceVolume(v float64) error {
	v, err := p.service.ClampVolume(v)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.voiceVolume = v
	if p.voice != nil {
		p.voice.SetVolume(v)
	}
	return nil
}

func (p *playbackInteractor) SetAmbientVolume(v float64) error {
	v, err := p.service.ClampVolume(v)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ambientVolume = v
	if p.ambient != nil {
		p.ambient.SetVolume(v)
	}
	return nil
}

func (p *playbackInteractor) State() domain.PlaybackState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stateLocked()
}

func (p *playbackInteractor) stateLocked() domain.PlaybackState {
	return domain.PlaybackState{
		Loaded:        p.loaded,
		Position:      p.position,
		Duration:      p.duration,
		Playing:       p.playing,
		VoiceVolume:   p.voiceVolume,
		AmbientVolume: p.ambientVolume,
	}
}

func (p *playbackInteractor) notify(state domain.PlaybackState) {
	if p.onChange != nil {
		p.onChange(state)
	}
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
