package ads

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"calmsession/internal/domain"
	"calmsession/internal/logging"
)

// ErrNoFill is returned by Load when the network has no inventory.
var ErrNoFill = errors.New("no fill")

// Config tunes the simulated ad network.
type Config struct {
	// Latency delays every load completion.
	Latency time.Duration
	// ShowTime is how long a presented ad stays on screen.
	ShowTime time.Duration
	// FillRate is the probability that a load returns an ad.
	FillRate float64
	// RewardRate is the probability that the viewer earns the reward.
	RewardRate float64
}

// SimulatedSource implements domain.AdSource without a network. Callbacks
// arrive on timer goroutines, like a real SDK.
// This is a secondary adapter.
type SimulatedSource struct {
	cfg  Config
	rand func() float64
	log  logging.Logger
}

// NewSimulatedSource creates an ad source with the given behavior.
func NewSimulatedSource(cfg Config) *SimulatedSource {
	return &SimulatedSource{cfg: cfg, rand: rand.Float64, log: logging.For("ads")}
}

func (s *SimulatedSource) Load(unitID string, done func(domain.RewardedAd, error)) {
	time.AfterFunc(s.cfg.Latency, func() {
		if s.rand() >= s.cfg.FillRate {
			s.log.Debugf("unit %s: no fill", unitID)
			done(nil, ErrNoFill)
			return
		}
		s.log.Debugf("unit %s: filled", unitID)
		done(&simulatedAd{source: s, unitID: unitID}, nil)
	})
}

type simulatedAd struct {
	source *SimulatedSource
	unitID string

	mu        sync.Mutex
	presented bool
}

// Present plays the ad once. Presenting the same ad again fails.
func (a *simulatedAd) Present(host string, handler func(domain.AdEvent)) {
	a.mu.Lock()
	again := a.presented
	a.presented = true
	a.mu.Unlock()

	if again {
		go handler(domain.AdFailedToPresent)
		return
	}
	a.source.log.Debugf("unit %s: presenting on %s", a.unitID, host)
	time.AfterFunc(a.source.cfg.ShowTime, func() {
		if a.source.rand() < a.source.cfg.RewardRate {
			handler(domain.AdRewardEarned)
		}
		handler(domain.AdDismissed)
	})
}
