package clock

import (
	"sync"
	"time"

	"calmsession/internal/domain"
)

// TickerScheduler implements domain.Scheduler with one time.Ticker goroutine
// per task. This is a secondary adapter.
type TickerScheduler struct{}

// NewTickerScheduler creates a wall-clock scheduler.
func NewTickerScheduler() domain.Scheduler {
	return TickerScheduler{}
}

// Every runs fn on its own goroutine every interval. The first call happens one
// interval after Every returns.
func (TickerScheduler) Every(interval time.Duration, fn func()) func() {
	done := make(chan struct{})
	var once sync.Once
	cancel := func() { once.Do(func() { close(done) }) }

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				// Cancel may race the tick; prefer cancel.
				select {
				case <-done:
					return
				default:
				}
				fn()
			}
		}
	}()
	return cancel
}
