package usecase

import (
	"sync"

	"calmsession/internal/domain"
	"calmsession/internal/logging"
)

// AdmissionGate decides whether a non-premium user may start a gated session.
// One gate exists per process because ad inventory is shared.
type AdmissionGate interface {
	Preload()
	Show(host string) domain.AdmissionResult
	DisableForPremium()
	Status() domain.GateStatus
}

// pendingShow is the single-flight slot for a presented ad.
// done is closed exactly once, by whichever terminal event arrives first.
type pendingShow struct {
	done     chan struct{}
	rewarded bool
	result   domain.AdmissionResult
	resolved bool
}

type admissionInteractor struct {
	ads         domain.AdSource
	entitlement domain.EntitlementSource
	unitID      string
	log         logging.Logger

	mu      sync.Mutex
	ready   domain.RewardedAd
	loading bool
	loadGen uint64
	lastErr error
	pending *pendingShow
}

// NewAdmissionGate creates a gate for the rewarded ad unit unitID.
func NewAdmissionGate(ads domain.AdSource, entitlement domain.EntitlementSource, unitID string) AdmissionGate {
	return &admissionInteractor{
		ads:         ads,
		entitlement: entitlement,
		unitID:      unitID,
		log:         logging.For("gate"),
	}
}

// Preload requests inventory unless a load is in flight, an ad is ready, or
// the user is premium. Premium users have any ready ad discarded.
func (g *admissionInteractor) Preload() {
	premium := g.entitlement.IsPremium()

	g.mu.Lock()
	if premium {
		g.ready = nil
		g.mu.Unlock()
		return
	}
	if g.loading || g.ready != nil {
		g.mu.Unlock()
		return
	}
	g.loading = true
	g.loadGen++
	gen := g.loadGen
	g.mu.Unlock()

	g.log.Debugf("loading unit %s", g.unitID)
	g.ads.Load(g.unitID, func(ad domain.RewardedAd, err error) {
		g.finishLoad(gen, ad, err)
	})
}

// finishLoad re-checks premium because it may have flipped while loading.
func (g *admissionInteractor) finishLoad(gen uint64, ad domain.RewardedAd, err error) {
	premium := g.entitlement.IsPremium()

	g.mu.Lock()
	defer g.mu.Unlock()
	if gen != g.loadGen || !g.loading {
		g.log.Debugf("dropping stale load result")
		return
	}
	g.loading = false
	switch {
	case err != nil:
		g.ready = nil
		g.lastErr = err
		g.log.Warnf("load failed: %v", err)
	case premium:
		g.ready = nil
		g.log.Debugf("user became premium during load, discarding ad")
	default:
		g.ready = ad
		g.lastErr = nil
		g.log.Debugf("ad ready")
	}
}

// Show presents a ready ad and blocks until a terminal event or a premium
// override. A second caller while an ad is on screen waits for the same outcome.
func (g *admissionInteractor) Show(host string) domain.AdmissionResult {
	if g.entitlement.IsPremium() {
		return domain.AdmissionResult{Granted: true, Reason: domain.ReasonPremium}
	}

	g.mu.Lock()
	if p := g.pending; p != nil {
		g.mu.Unlock()
		<-p.done
		return p.result
	}
	ad := g.ready
	if ad == nil {
		g.mu.Unlock()
		if g.entitlement.IsPremium() {
			return domain.AdmissionResult{Granted: true, Reason: domain.ReasonPremium}
		}
		g.Preload()
		return domain.AdmissionResult{Granted: false, Reason: domain.ReasonNotReady}
	}
	p := &pendingShow{done: make(chan struct{})}
	g.pending = p
	g.mu.Unlock()

	g.log.Infof("presenting ad on %s", host)
	ad.Present(host, func(ev domain.AdEvent) { g.handleEvent(p, ev) })
	<-p.done
	return p.result
}

func (g *admissionInteractor) handleEvent(p *pendingShow, ev domain.AdEvent) {
	g.mu.Lock()
	if g.pending != p {
		g.mu.Unlock()
		g.log.Tracef("ignoring %s for a resolved presentation", ev)
		return
	}
	var resolved bool
	switch ev {
	case domain.AdRewardEarned:
		p.rewarded = true
	case domain.AdDismissed:
		if p.rewarded {
			resolved = g.resolveLocked(p, domain.AdmissionResult{Granted: true, Reason: domain.ReasonRewarded})
		} else {
			resolved = g.resolveLocked(p, domain.AdmissionResult{Granted: false, Reason: domain.ReasonDismissed})
		}
	case domain.AdFailedToPresent:
		g.lastErr = domain.ErrAdPresent
		resolved = g.resolveLocked(p, domain.AdmissionResult{Granted: false, Reason: domain.ReasonFailed})
	}
	if resolved {
		g.ready = nil
	}
	g.mu.Unlock()

	if resolved {
		g.log.Infof("presentation ended: %s", ev)
		g.Preload()
	}
}

// resolveLocked completes p once. Later calls report false and change nothing.
func (g *admissionInteractor) resolveLocked(p *pendingShow, result domain.AdmissionResult) bool {
	if p.resolved {
		return false
	}
	p.resolved = true
	p.result = result
	close(p.done)
	if g.pending == p {
		g.pending = nil
	}
	return true
}

// DisableForPremium drops all ad state and admits anyone waiting on an ad.
func (g *admissionInteractor) DisableForPremium() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ready = nil
	g.loading = false
	g.loadGen++
	if p := g.pending; p != nil {
		g.resolveLocked(p, domain.AdmissionResult{Granted: true, Reason: domain.ReasonPremiumOverride})
		g.log.Infof("premium override admitted pending session")
	}
}

func (g *admissionInteractor) Status() domain.GateStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	return domain.GateStatus{
		Ready:     g.ready != nil,
		Loading:   g.loading,
		Pending:   g.pending != nil,
		LastError: g.lastErr,
	}
}
