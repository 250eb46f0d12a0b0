package domain

import "time"

// SessionService provides the pure timing rules of the engine.
// It has no side effects; the use cases own state and scheduling.
type SessionService struct{}

// NewSessionService creates a new session service.
func NewSessionService() *SessionService {
	return &SessionService{}
}

// Seed returns a clock positioned at the start of an inhale with totalSeconds left.
func (s *SessionService) Seed(pattern BreathingPattern, totalSeconds int) SessionClock {
	return SessionClock{
		Phase:          PhaseInhale,
		PhaseRemaining: pattern.Inhale,
		TotalRemaining: totalSeconds,
		PhaseProgress:  0,
	}
}

// Step advances the clock by one second.
// Session end wins over a phase boundary, so a phase may be cut short.
func (s *SessionService) Step(pattern BreathingPattern, clock SessionClock) SessionClock {
	if clock.TotalRemaining <= 0 {
		clock.TotalRemaining = 0
		clock.Finished = true
		return clock
	}

	clock.PhaseRemaining--
	clock.TotalRemaining--

	if clock.TotalRemaining == 0 {
		if clock.PhaseRemaining < 0 {
			clock.PhaseRemaining = 0
		}
		clock.Finished = true
		clock.PhaseProgress = s.PhaseProgress(pattern.DurationOf(clock.Phase), clock.PhaseRemaining)
		return clock
	}

	if clock.PhaseRemaining <= 0 {
		clock.Phase = clock.Phase.Next()
		clock.PhaseRemaining = pattern.DurationOf(clock.Phase)
	}
	clock.PhaseProgress = s.PhaseProgress(pattern.DurationOf(clock.Phase), clock.PhaseRemaining)
	return clock
}

// PhaseProgress is (duration-remaining)/duration clamped to [0,1].
func (s *SessionService) PhaseProgress(duration, remaining int) float64 {
	if duration <= 0 {
		return 0
	}
	p := float64(duration-remaining) / float64(duration)
	return clamp01(p)
}

// TimelineDuration is the virtual session length for a requested target.
func (s *SessionService) TimelineDuration(target time.Duration) time.Duration {
	if target < time.Second {
		return time.Second
	}
	return target
}

// NextPosition applies one playback tick. A playing voice source is authoritative;
// otherwise the virtual clock advances by interval. The result never exceeds duration.
func (s *SessionService) NextPosition(current, interval, duration time.Duration, voicePlaying bool, voicePosition time.Duration) (next time.Duration, reachedEnd bool) {
	next = current + interval
	if voicePlaying {
		next = voicePosition
	}
	if next < 0 {
		next = 0
	}
	if next >= duration {
		return duration, true
	}
	return next, false
}

// ClampSeek clamps a seek target into [0, duration].
func (s *SessionService) ClampSeek(to, duration time.Duration) time.Duration {
	if to < 0 {
		return 0
	}
	if to > duration {
		return duration
	}
	return to
}

// SleepTick applies one 1-second sleep timer tick to a playing timeline.
// It returns the new timer state and whether playback must stop now.
func (s *SessionService) SleepTick(timer SleepTimerState, position, duration, epsilon time.Duration) (SleepTimerState, bool) {
	switch timer.Mode {
	case SleepFixed:
		if timer.Remaining == nil {
			return SleepTimerState{Mode: SleepOff}, false
		}
		left := *timer.Remaining - 1
		if left <= 0 {
			return SleepTimerState{Mode: SleepOff}, true
		}
		return SleepTimerState{Mode: SleepFixed, Remaining: &left}, false
	case SleepEndOfSession:
		if position >= duration-epsilon {
			return SleepTimerState{Mode: SleepOff}, true
		}
		return timer, false
	default:
		return SleepTimerState{Mode: SleepOff}, false
	}
}

// ClampVolume validates a track volume.
func (s *SessionService) ClampVolume(v float64) (float64, error) {
	if v < 0 || v > 1 {
		return clamp01(v), ErrInvalidVolume
	}
	return v, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
