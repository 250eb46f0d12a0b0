package usecase

import (
	"sync"
	"time"

	"calmsession/internal/domain"
	"calmsession/internal/logging"
)

// PhaseSequencer drives a breathing session through inhale/hold/exhale.
type PhaseSequencer interface {
	SetMood(mood domain.Mood) error
	SetDuration(d time.Duration) error
	CanStart() bool
	PrepareForStart()
	Start()
	Stop()
	Reset()
	Snapshot() domain.SessionClock
}

// SequencerOption customizes a PhaseSequencer.
type SequencerOption func(*sequencerInteractor)

// WithClockObserver receives a copy of the clock after every change.
func WithClockObserver(fn func(domain.SessionClock)) SequencerOption {
	return func(s *sequencerInteractor) { s.onChange = fn }
}

// WithFinishHandler is called once each time a session reaches finished.
func WithFinishHandler(fn func()) SequencerOption {
	return func(s *sequencerInteractor) { s.onFinish = fn }
}

// sequencerInteractor implements PhaseSequencer.
// All state lives behind mu; the scheduled tick takes mu too, so ticks are serialized.
type sequencerInteractor struct {
	scheduler domain.Scheduler
	service   *domain.SessionService
	onChange  func(domain.SessionClock)
	onFinish  func()
	log       logging.Logger

	mu          sync.Mutex
	mood        *domain.Mood
	durationSec *int
	pattern     domain.BreathingPattern
	clock       domain.SessionClock
	cancel      func()
	gen         uint64
}

// NewPhaseSequencer creates an idle sequencer ticking on scheduler.
func NewPhaseSequencer(scheduler domain.Scheduler, opts ...SequencerOption) PhaseSequencer {
	s := &sequencerInteractor{
		scheduler: scheduler,
		service:   domain.NewSessionService(),
		log:       logging.For("sequencer"),
		clock:     domain.SessionClock{Status: domain.StatusIdle},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetMood selects the pattern used by the next fresh start.
func (s *sequencerInteractor) SetMood(mood domain.Mood) error {
	if _, err := domain.PatternForMood(mood); err != nil {
		return err
	}
	s.mu.Lock()
	s.mood = &mood
	s.mu.Unlock()
	return nil
}

// SetDuration selects the session length, truncated to whole seconds.
func (s *sequencerInteractor) SetDuration(d time.Duration) error {
	sec := int(d / time.Second)
	if sec < 1 {
		return domain.ErrInvalidDuration
	}
	s.mu.Lock()
	s.durationSec = &sec
	s.mu.Unlock()
	return nil
}

func (s *sequencerInteractor) CanStart() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canStartLocked()
}

func (s *sequencerInteractor) canStartLocked() bool {
	return s.mood != nil && s.durationSec != nil
}

// PrepareForStart seeds the total countdown without ticking.
func (s *sequencerInteractor) PrepareForStart() {
	s.mu.Lock()
	if s.durationSec == nil || s.cancel != nil {
		s.mu.Unlock()
		return
	}
	clock := domain.SessionClock{
		Status:         domain.StatusCountingDown,
		Phase:          domain.PhaseInhale,
		TotalRemaining: *s.durationSec,
	}
	if s.mood != nil {
		pattern, _ := domain.PatternForMood(*s.mood)
		clock.PhaseRemaining = pattern.Inhale
	}
	s.clock = clock
	snap := s.clock
	s.mu.Unlock()
	s.notify(snap)
}

// Start begins ticking. Without mood and duration it does nothing.
// A paused session resumes with its counters; any other state starts fresh.
func (s *sequencerInteractor) Start() {
	s.mu.Lock()
	if !s.canStartLocked() || s.cancel != nil {
		s.mu.Unlock()
		return
	}
	if s.clock.Status != domain.StatusPaused {
		s.pattern, _ = domain.PatternForMood(*s.mood)
		s.clock = s.service.Seed(s.pattern, *s.durationSec)
		s.log.Debugf("start mood=%s total=%ds pattern=%d/%d/%d",
			*s.mood, *s.durationSec, s.pattern.Inhale, s.pattern.Hold, s.pattern.Exhale)
	}
	s.clock.Status = domain.StatusRunning
	s.gen++
	gen := s.gen
	s.cancel = s.scheduler.Every(time.Second, func() { s.tick(gen) })
	snap := s.clock
	s.mu.Unlock()
	s.notify(snap)
}

func (s *sequencerInteractor) tick(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.cancel == nil {
		s.mu.Unlock()
		return
	}
	s.clock = s.service.Step(s.pattern, s.clock)
	finished := s.clock.Finished
	if finished {
		s.clock.Status = domain.StatusFinished
		s.haltLocked()
		s.log.Infof("session finished in %s", s.clock.Phase)
	}
	snap := s.clock
	s.mu.Unlock()

	// Completion is recorded before observers see the finished clock.
	if finished && s.onFinish != nil {
		s.onFinish()
	}
	s.notify(snap)
}

// Stop pauses ticking and keeps the counters.
func (s *sequencerInteractor) Stop() {
	s.mu.Lock()
	if s.cancel == nil {
		s.mu.Unlock()
		return
	}
	s.haltLocked()
	if s.clock.Status == domain.StatusRunning {
		s.clock.Status = domain.StatusPaused
	}
	snap := s.clock
	s.mu.Unlock()
	s.notify(snap)
}

// Reset halts ticking and zeroes every counter.
func (s *sequencerInteractor) Reset() {
	s.mu.Lock()
	s.haltLocked()
	s.clock = domain.SessionClock{Status: domain.StatusIdle}
	snap := s.clock
	s.mu.Unlock()
	s.notify(snap)
}

// haltLocked cancels the tick source. Bumping gen turns a tick already
// waiting on mu into a no-op.
func (s *sequencerInteractor) haltLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.gen++
}

func (s *sequencerInteractor) Snapshot() domain.SessionClock {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock
}

func (s *sequencerInteractor) notify(clock domain.SessionClock) {
	if s.onChange != nil {
		s.onChange(clock)
	}
}
