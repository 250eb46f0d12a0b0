package domain

import (
	"strings"
	"time"
)

// Mood is the user's self-reported state used to pick a breathing pattern.
type Mood string

const (
	MoodCalm     Mood = "calm"
	MoodNeutral  Mood = "neutral"
	MoodStressed Mood = "stressed"
	MoodAnxious  Mood = "anxious"
)

// Moods lists every supported mood in display order.
func Moods() []Mood {
	return []Mood{MoodCalm, MoodNeutral, MoodStressed, MoodAnxious}
}

// ParseMood converts user input into a Mood.
func ParseMood(s string) (Mood, error) {
	m := Mood(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := breathingPatterns[m]; !ok {
		return "", ErrInvalidMood
	}
	return m, nil
}

// BreathingPattern holds phase durations in whole seconds.
// It is copied into the sequencer at start and never mutated afterwards.
type BreathingPattern struct {
	Inhale int
	Hold   int
	Exhale int
}

var breathingPatterns = map[Mood]BreathingPattern{
	MoodCalm:     {Inhale: 4, Hold: 4, Exhale: 6},
	MoodNeutral:  {Inhale: 4, Hold: 4, Exhale: 4},
	MoodStressed: {Inhale: 4, Hold: 6, Exhale: 8},
	MoodAnxious:  {Inhale: 3, Hold: 6, Exhale: 8},
}

// PatternForMood returns the fixed pattern for m.
func PatternForMood(m Mood) (BreathingPattern, error) {
	p, ok := breathingPatterns[m]
	if !ok {
		return BreathingPattern{}, ErrInvalidMood
	}
	return p, nil
}

// DurationOf returns the configured length of phase in seconds.
func (p BreathingPattern) DurationOf(phase Phase) int {
	switch phase {
	case PhaseInhale:
		return p.Inhale
	case PhaseHold:
		return p.Hold
	case PhaseExhale:
		return p.Exhale
	default:
		return 0
	}
}

// CycleSeconds is the length of one inhale/hold/exhale cycle.
func (p BreathingPattern) CycleSeconds() int {
	return p.Inhale + p.Hold + p.Exhale
}

// Phase is one step of the breathing cycle.
type Phase int

const (
	PhaseInhale Phase = iota
	PhaseHold
	PhaseExhale
)

func (p Phase) String() string {
	switch p {
	case PhaseInhale:
		return "inhale"
	case PhaseHold:
		return "hold"
	case PhaseExhale:
		return "exhale"
	default:
		return "unknown"
	}
}

// Next returns the following phase; exhale wraps back to inhale.
func (p Phase) Next() Phase {
	switch p {
	case PhaseInhale:
		return PhaseHold
	case PhaseHold:
		return PhaseExhale
	default:
		return PhaseInhale
	}
}

// SequencerStatus is the lifecycle state of a breathing session.
type SequencerStatus int

const (
	StatusIdle SequencerStatus = iota
	StatusCountingDown
	StatusRunning
	StatusPaused
	StatusFinished
)

func (s SequencerStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusCountingDown:
		return "counting-down"
	case StatusRunning:
		return "running"
	case StatusPaused:
		return "paused"
	case StatusFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// SessionClock is the mutable state of the phase sequencer.
type SessionClock struct {
	Status         SequencerStatus
	Phase          Phase
	PhaseRemaining int
	TotalRemaining int
	PhaseProgress  float64
	Finished       bool
}

// PlaybackState is the virtual timeline exposed to the presentation layer.
// Duration is the user-selected session length, not the voice track length.
type PlaybackState struct {
	Loaded        bool
	Position      time.Duration
	Duration      time.Duration
	Playing       bool
	VoiceVolume   float64
	AmbientVolume float64
}

// SleepMode selects how the sleep timer decides to stop playback.
type SleepMode int

const (
	SleepOff SleepMode = iota
	SleepFixed
	SleepEndOfSession
)

func (m SleepMode) String() string {
	switch m {
	case SleepOff:
		return "off"
	case SleepFixed:
		return "fixed"
	case SleepEndOfSession:
		return "end-of-session"
	default:
		return "unknown"
	}
}

// SleepTimerState reports the sleep timer. Remaining is nil unless Mode is SleepFixed.
type SleepTimerState struct {
	Mode      SleepMode
	Remaining *int
}

// AdmissionReason explains an admission decision for logs and history.
type AdmissionReason string

const (
	ReasonPremium         AdmissionReason = "premium"
	ReasonRewarded        AdmissionReason = "rewarded"
	ReasonDismissed       AdmissionReason = "dismissed"
	ReasonFailed          AdmissionReason = "failed"
	ReasonNotReady        AdmissionReason = "not-ready"
	ReasonPremiumOverride AdmissionReason = "premium-override"
)

// AdmissionResult is the outcome of a single gate invocation. It is never persisted by the gate.
type AdmissionResult struct {
	Granted bool
	Reason  AdmissionReason
}

// GateStatus is a read-only view of the admission gate.
type GateStatus struct {
	Ready     bool
	Loading   bool
	Pending   bool
	LastError error
}

// SessionKind distinguishes the two engines a launch can start.
type SessionKind string

const (
	KindBreathing  SessionKind = "breathing"
	KindMeditation SessionKind = "meditation"
)

// SessionOutcome is how a recorded session ended.
type SessionOutcome string

const (
	OutcomeRunning   SessionOutcome = "running"
	OutcomeCompleted SessionOutcome = "completed"
	OutcomeStopped   SessionOutcome = "stopped"
)

// SessionRecord is one row of session history.
type SessionRecord struct {
	ID            string
	Kind          SessionKind
	Mood          Mood
	TargetSeconds int
	StartedAt     time.Time
	EndedAt       time.Time
	Outcome       SessionOutcome
}

// AdmissionRecord is one row of the admission log.
type AdmissionRecord struct {
	ID        string
	Granted   bool
	Reason    AdmissionReason
	CreatedAt time.Time
}
