package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"calmsession/internal/domain"
)

// manualScheduler fires tasks only when the test calls Tick.
type manualScheduler struct {
	mu    sync.Mutex
	tasks []*manualTask
}

type manualTask struct {
	interval  time.Duration
	fn        func()
	cancelled bool
}

func (s *manualScheduler) Every(interval time.Duration, fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	task := &manualTask{interval: interval, fn: fn}
	s.tasks = append(s.tasks, task)
	return func() {
		s.mu.Lock()
		task.cancelled = true
		s.mu.Unlock()
	}
}

// Tick runs every live task once.
func (s *manualScheduler) Tick() {
	s.mu.Lock()
	tasks := append([]*manualTask(nil), s.tasks...)
	s.mu.Unlock()
	for _, task := range tasks {
		s.mu.Lock()
		live := !task.cancelled
		s.mu.Unlock()
		if live {
			task.fn()
		}
	}
}

func (s *manualScheduler) TickN(n int) {
	for i := 0; i < n; i++ {
		s.Tick()
	}
}

// Active counts tasks that have not been cancelled.
func (s *manualScheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, task := range s.tasks {
		if !task.cancelled {
			n++
		}
	}
	return n
}

// fakeMedia is a media source whose clock the test moves by hand.
type fakeMedia struct {
	mu       sync.Mutex
	url      string
	loop     bool
	playing  bool
	position time.Duration
	duration time.Duration
	volume   float64
	closed   bool
	seeks    []time.Duration
}

func (m *fakeMedia) IsPlaying() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playing && m.position < m.duration
}

func (m *fakeMedia) Position() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position
}

func (m *fakeMedia) Duration() time.Duration {
	return m.duration
}

func (m *fakeMedia) Play() {
	m.mu.Lock()
	m.playing = true
	m.mu.Unlock()
}

func (m *fakeMedia) Pause() {
	m.mu.Lock()
	m.playing = false
	m.mu.Unlock()
}

func (m *fakeMedia) Seek(to time.Duration) {
	m.mu.Lock()
	m.position = to
	m.seeks = append(m.seeks, to)
	m.mu.Unlock()
}

func (m *fakeMedia) SetVolume(v float64) {
	m.mu.Lock()
	m.volume = v
	m.mu.Unlock()
}

func (m *fakeMedia) Close() error {
	m.mu.Lock()
	m.closed = true
	m.playing = false
	m.mu.Unlock()
	return nil
}

// advance moves a playing source forward like a decoder would.
func (m *fakeMedia) advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.playing {
		return
	}
	m.position += d
	if m.position >= m.duration {
		m.position = m.duration
		m.playing = false
	}
}

func (m *fakeMedia) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// fakeOpener hands out fakeMedia with per-URL durations and failures.
type fakeOpener struct {
	mu        sync.Mutex
	durations map[string]time.Duration
	fail      map[string]error
	opened    []*fakeMedia
	// entered and release, when set, hold every Open until the test lets it go.
	entered chan string
	release chan struct{}
}

func newFakeOpener() *fakeOpener {
	return &fakeOpener{durations: map[string]time.Duration{}, fail: map[string]error{}}
}

func (o *fakeOpener) Open(_ context.Context, url string, loop bool) (domain.MediaSource, error) {
	if o.release != nil {
		o.entered <- url
		<-o.release
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.fail[url]; err != nil {
		return nil, err
	}
	d, ok := o.durations[url]
	if !ok {
		d = time.Minute
	}
	m := &fakeMedia{url: url, loop: loop, duration: d}
	o.opened = append(o.opened, m)
	return m, nil
}

func (o *fakeOpener) media(url string) *fakeMedia {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.opened) - 1; i >= 0; i-- {
		if o.opened[i].url == url {
			return o.opened[i]
		}
	}
	return nil
}

// fakeEntitlement is a settable premium flag.
type fakeEntitlement struct {
	premium atomic.Bool
}

func (e *fakeEntitlement) IsPremium() bool { return e.premium.Load() }

// fakeAds records Load calls; the test completes them with complete or fail.
type fakeAds struct {
	mu      sync.Mutex
	loads   int
	waiting []func(domain.RewardedAd, error)
	// immediate, when set, completes loads synchronously with this ad.
	immediate *fakeAd
}

func (a *fakeAds) Load(_ string, done func(domain.RewardedAd, error)) {
	a.mu.Lock()
	a.loads++
	imm := a.immediate
	if imm == nil {
		a.waiting = append(a.waiting, done)
	}
	a.mu.Unlock()
	if imm != nil {
		done(imm, nil)
	}
}

func (a *fakeAds) loadCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loads
}

func (a *fakeAds) pop() func(domain.RewardedAd, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.waiting) == 0 {
		return nil
	}
	done := a.waiting[0]
	a.waiting = a.waiting[1:]
	return done
}

func (a *fakeAds) complete(ad *fakeAd) { a.pop()(ad, nil) }

func (a *fakeAds) fail(err error) { a.pop()(nil, err) }

var errNoFill = errors.New("no fill")

// fakeAd captures the presentation handler so the test can drive events.
type fakeAd struct {
	mu        sync.Mutex
	presented chan func(domain.AdEvent)
	// script, when set, is delivered synchronously inside Present.
	script []domain.AdEvent
}

func newFakeAd(script ...domain.AdEvent) *fakeAd {
	return &fakeAd{presented: make(chan func(domain.AdEvent), 4), script: script}
}

func (a *fakeAd) Present(_ string, handler func(domain.AdEvent)) {
	a.mu.Lock()
	script := a.script
	a.mu.Unlock()
	if len(script) > 0 {
		for _, ev := range script {
			handler(ev)
		}
		return
	}
	a.presented <- handler
}

// memorySessions is an in-memory SessionRepository and AdmissionLog.
type memorySessions struct {
	mu         sync.Mutex
	records    map[string]domain.SessionRecord
	order      []string
	admissions []domain.AdmissionRecord
}

func newMemorySessions() *memorySessions {
	return &memorySessions{records: map[string]domain.SessionRecord{}}
}

func (m *memorySessions) Start(_ context.Context, rec domain.SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = rec
	m.order = append(m.order, rec.ID)
	return nil
}

func (m *memorySessions) Finish(_ context.Context, id string, outcome domain.SessionOutcome, endedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return domain.ErrSessionNotFound
	}
	rec.Outcome = outcome
	rec.EndedAt = endedAt
	m.records[id] = rec
	return nil
}

func (m *memorySessions) Recent(_ context.Context, limit int) ([]domain.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.SessionRecord
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.records[m.order[i]])
	}
	return out, nil
}

func (m *memorySessions) Append(_ context.Context, rec domain.AdmissionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.admissions = append(m.admissions, rec)
	return nil
}

func (m *memorySessions) get(id string) domain.SessionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[id]
}
