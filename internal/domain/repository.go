package domain

import (
	"context"
	"time"
)

// Scheduler is a secondary port for repeating tasks.
// Every runs fn every interval until the returned cancel func is called.
// Calls of fn for one task never overlap. cancel is safe to call more than once
// and from inside fn.
type Scheduler interface {
	Every(interval time.Duration, fn func()) (cancel func())
}

// EntitlementSource reports whether the user is premium. It may change at any time.
type EntitlementSource interface {
	IsPremium() bool
}

// AdEvent is a lifecycle callback from a presented rewarded ad.
type AdEvent int

const (
	AdRewardEarned AdEvent = iota
	AdDismissed
	AdFailedToPresent
)

func (e AdEvent) String() string {
	switch e {
	case AdRewardEarned:
		return "reward-earned"
	case AdDismissed:
		return "dismissed"
	case AdFailedToPresent:
		return "failed-to-present"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further callbacks follow e.
func (e AdEvent) Terminal() bool {
	return e == AdDismissed || e == AdFailedToPresent
}

// AdSource is the callback-based rewarded ad SDK. done may run on any goroutine.
type AdSource interface {
	Load(unitID string, done func(RewardedAd, error))
}

// RewardedAd is loaded inventory. Present delivers events to handler, ending with
// exactly one terminal event.
type RewardedAd interface {
	Present(host string, handler func(AdEvent))
}

// MediaSource is one decoded audio stream.
type MediaSource interface {
	IsPlaying() bool
	Position() time.Duration
	Duration() time.Duration
	Play()
	Pause()
	Seek(to time.Duration)
	SetVolume(v float64)
	Close() error
}

// MediaOpener opens local or remote media. Looping sources restart at their end.
type MediaOpener interface {
	Open(ctx context.Context, url string, loop bool) (MediaSource, error)
}

// SessionRepository persists session history.
type SessionRepository interface {
	Start(ctx context.Context, rec SessionRecord) error
	Finish(ctx context.Context, id string, outcome SessionOutcome, endedAt time.Time) error
	Recent(ctx context.Context, limit int) ([]SessionRecord, error)
}

// AdmissionLog records every admission decision.
type AdmissionLog interface {
	Append(ctx context.Context, rec AdmissionRecord) error
}
