package entitlement

import (
	"sync"

	"calmsession/internal/logging"
)

// Flag is an in-memory premium entitlement. Listeners run when the user
// becomes premium, after the flag is visible to IsPremium.
// This is a secondary adapter.
type Flag struct {
	mu        sync.Mutex
	premium   bool
	listeners []func()
	log       logging.Logger
}

// NewFlag creates a flag with the given initial value.
func NewFlag(premium bool) *Flag {
	return &Flag{premium: premium, log: logging.For("entitlement")}
}

func (f *Flag) IsPremium() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.premium
}

// OnPremium registers fn to run on every false-to-true transition.
func (f *Flag) OnPremium(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, fn)
}

// Set changes the entitlement. It reports whether the value changed.
func (f *Flag) Set(premium bool) bool {
	f.mu.Lock()
	if f.premium == premium {
		f.mu.Unlock()
		return false
	}
	f.premium = premium
	var notify []func()
	if premium {
		notify = append(notify, f.listeners...)
	}
	f.mu.Unlock()

	f.log.Infof("premium=%t", premium)
	for _, fn := range notify {
		fn()
	}
	return true
}
