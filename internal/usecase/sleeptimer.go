package usecase

import (
	"sync"
	"time"

	"calmsession/internal/domain"
	"calmsession/internal/logging"
)

// DefaultSleepEpsilon tolerates tick jitter when waiting for end of session.
const DefaultSleepEpsilon = 250 * time.Millisecond

// SleepTarget is the playback the sleep timer watches and stops.
type SleepTarget interface {
	State() domain.PlaybackState
	Stop()
}

// SleepTimer stops playback after a delay or at end of session. It fires once
// and then returns to off.
type SleepTimer interface {
	SetFixed(seconds int) error
	SetEndOfSession()
	Cancel()
	State() domain.SleepTimerState
}

// SleepOption customizes a SleepTimer.
type SleepOption func(*sleepTimerInteractor)

// WithSleepEpsilon overrides DefaultSleepEpsilon.
func WithSleepEpsilon(d time.Duration) SleepOption {
	return func(s *sleepTimerInteractor) {
		if d >= 0 {
			s.epsilon = d
		}
	}
}

// WithSleepFired is called after the timer has stopped the target.
func WithSleepFired(fn func()) SleepOption {
	return func(s *sleepTimerInteractor) { s.onFire = fn }
}

type sleepTimerInteractor struct {
	target    SleepTarget
	scheduler domain.Scheduler
	service   *domain.SessionService
	epsilon   time.Duration
	onFire    func()
	log       logging.Logger

	mu     sync.Mutex
	state  domain.SleepTimerState
	cancel func()
	gen    uint64
}

// NewSleepTimer creates a timer in off mode.
func NewSleepTimer(target SleepTarget, scheduler domain.Scheduler, opts ...SleepOption) SleepTimer {
	s := &sleepTimerInteractor{
		target:    target,
		scheduler: scheduler,
		service:   domain.NewSessionService(),
		epsilon:   DefaultSleepEpsilon,
		log:       logging.For("sleep"),
		state:     domain.SleepTimerState{Mode: domain.SleepOff},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *sleepTimerInteractor) SetFixed(seconds int) error {
	if seconds <= 0 {
		return domain.ErrInvalidSleepMode
	}
	s.arm(domain.SleepTimerState{Mode: domain.SleepFixed, Remaining: &seconds})
	return nil
}

func (s *sleepTimerInteractor) SetEndOfSession() {
	s.arm(domain.SleepTimerState{Mode: domain.SleepEndOfSession})
}

func (s *sleepTimerInteractor) arm(state domain.SleepTimerState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disarmLocked()
	s.state = state
	gen := s.gen
	s.cancel = s.scheduler.Every(time.Second, func() { s.tick(gen) })
	s.log.Debugf("armed mode=%s", state.Mode)
}

func (s *sleepTimerInteractor) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disarmLocked()
	s.state = domain.SleepTimerState{Mode: domain.SleepOff}
}

func (s *sleepTimerInteractor) disarmLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.gen++
}

func (s *sleepTimerInteractor) tick(gen uint64) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	pb := s.target.State()
	// Playback pauses itself at the end of the timeline, so end-of-session
	// must still fire on a paused target that has reached its end.
	atEnd := s.state.Mode == domain.SleepEndOfSession && pb.Loaded && pb.Position >= pb.Duration-s.epsilon
	if !pb.Playing && !atEnd {
		s.mu.Unlock()
		return
	}
	next, fire := s.service.SleepTick(s.state, pb.Position, pb.Duration, s.epsilon)
	s.state = next
	if fire {
		s.disarmLocked()
		s.log.Infof("stopping playback at %s of %s", pb.Position, pb.Duration)
	}
	s.mu.Unlock()

	if fire {
		s.target.Stop()
		if s.onFire != nil {
			s.onFire()
		}
	}
}

func (s *sleepTimerInteractor) State() domain.SleepTimerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := domain.SleepTimerState{Mode: s.state.Mode}
	if s.state.Remaining != nil {
		left := *s.state.Remaining
		out.Remaining = &left
	}
	return out
}
