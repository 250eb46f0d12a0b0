package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"calmsession/internal/domain"
	"calmsession/internal/logging"
)

// LaunchRequest describes one session start attempt.
type LaunchRequest struct {
	Mood       domain.Mood
	Duration   time.Duration
	VoiceURL   string
	AmbientURL string
	// Gated sessions (generated meditations) must pass the admission gate.
	Gated bool
	Host  string
	// SleepSeconds > 0 arms a fixed sleep timer; SleepAtEnd arms end-of-session.
	SleepSeconds int
	SleepAtEnd   bool
	// Countdown delays a breathing session by whole seconds while the clock
	// shows counting-down. OnCountdown sees each remaining count, then 0.
	Countdown   int
	OnCountdown func(left int)
}

// BreathingSession is a started breathing exercise.
type BreathingSession struct {
	ID        string
	Sequencer PhaseSequencer
	finish    func(domain.SessionOutcome)
	countdown func()
}

// Close stops the exercise, or its countdown, and records it as stopped unless
// it already completed.
func (b *BreathingSession) Close() {
	if b.countdown != nil {
		b.countdown()
	}
	b.Sequencer.Stop()
	b.finish(domain.OutcomeStopped)
}

// MeditationSession is a started guided meditation.
type MeditationSession struct {
	ID     string
	Player PlaybackSynchronizer
	Sleep  SleepTimer
	finish func(domain.SessionOutcome)
}

// Close stops playback and records it as stopped unless it already completed.
func (m *MeditationSession) Close() {
	m.Sleep.Cancel()
	m.Player.Stop()
	m.finish(domain.OutcomeStopped)
}

// SessionLauncher is the session-launch workflow: admission first, then an engine.
type SessionLauncher interface {
	LaunchBreathing(ctx context.Context, req LaunchRequest, observer func(domain.SessionClock)) (*BreathingSession, error)
	LaunchMeditation(ctx context.Context, req LaunchRequest, observer func(domain.PlaybackState)) (*MeditationSession, error)
	Admit(ctx context.Context, host string) (domain.AdmissionResult, error)
	Recent(ctx context.Context, limit int) ([]domain.SessionRecord, error)
}

// LauncherOptions carries engine tuning from configuration.
type LauncherOptions struct {
	PlaybackTick  time.Duration
	SleepEpsilon  time.Duration
	VoiceVolume   float64
	AmbientVolume float64
	// AdWait bounds how long Admit waits for inventory after a not-ready answer.
	AdWait time.Duration
}

type launcherInteractor struct {
	gate       AdmissionGate
	opener     domain.MediaOpener
	scheduler  domain.Scheduler
	sessions   domain.SessionRepository
	admissions domain.AdmissionLog
	opts       LauncherOptions
	log        logging.Logger
	now        func() time.Time
}

// NewSessionLauncher wires the launch workflow. sessions and admissions may be nil.
func NewSessionLauncher(
	gate AdmissionGate,
	opener domain.MediaOpener,
	scheduler domain.Scheduler,
	sessions domain.SessionRepository,
	admissions domain.AdmissionLog,
	opts LauncherOptions,
) SessionLauncher {
	if opts.PlaybackTick <= 0 {
		opts.PlaybackTick = DefaultPlaybackTick
	}
	if opts.SleepEpsilon <= 0 {
		opts.SleepEpsilon = DefaultSleepEpsilon
	}
	if opts.VoiceVolume == 0 && opts.AmbientVolume == 0 {
		opts.VoiceVolume, opts.AmbientVolume = 1, 0.5
	}
	return &launcherInteractor{
		gate:       gate,
		opener:     opener,
		scheduler:  scheduler,
		sessions:   sessions,
		admissions: admissions,
		opts:       opts,
		log:        logging.For("launch"),
		now:        time.Now,
	}
}

// Admit runs the gate once and, if no ad was ready, waits up to AdWait for the
// preload it triggered and asks again.
func (l *launcherInteractor) Admit(ctx context.Context, host string) (domain.AdmissionResult, error) {
	res := l.gate.Show(host)
	if !res.Granted && res.Reason == domain.ReasonNotReady && l.opts.AdWait > 0 {
		if l.waitForInventory(ctx) {
			res = l.gate.Show(host)
		}
	}
	l.recordAdmission(ctx, res)
	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	return res, nil
}

func (l *launcherInteractor) waitForInventory(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, l.opts.AdWait)
	defer cancel()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		st := l.gate.Status()
		if st.Ready {
			return true
		}
		if !st.Loading {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

func (l *launcherInteractor) admit(ctx context.Context, req LaunchRequest) error {
	if !req.Gated {
		return nil
	}
	res, err := l.Admit(ctx, req.Host)
	if err != nil {
		return err
	}
	if !res.Granted {
		if res.Reason == domain.ReasonNotReady {
			return errors.Join(domain.ErrAdmissionDenied, domain.ErrAdNotReady)
		}
		return fmt.Errorf("%w (%s)", domain.ErrAdmissionDenied, res.Reason)
	}
	return nil
}

func (l *launcherInteractor) LaunchBreathing(ctx context.Context, req LaunchRequest, observer func(domain.SessionClock)) (*BreathingSession, error) {
	if _, err := domain.PatternForMood(req.Mood); err != nil {
		return nil, err
	}
	if req.Duration < time.Second {
		return nil, domain.ErrInvalidDuration
	}
	if err := l.admit(ctx, req); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	finish := l.finisher(id)
	seq := NewPhaseSequencer(l.scheduler,
		WithClockObserver(observer),
		WithFinishHandler(func() { finish(domain.OutcomeCompleted) }),
	)
	// Both validated above.
	_ = seq.SetMood(req.Mood)
	_ = seq.SetDuration(req.Duration)

	l.recordStart(ctx, domain.SessionRecord{
		ID:            id,
		Kind:          domain.KindBreathing,
		Mood:          req.Mood,
		TargetSeconds: int(req.Duration / time.Second),
	})
	sess := &BreathingSession{ID: id, Sequencer: seq, finish: finish}
	seq.PrepareForStart()
	if req.Countdown > 0 {
		sess.countdown = l.countdown(req.Countdown, req.OnCountdown, seq.Start)
		l.log.Infof("breathing session %s starts in %ds (%s, %s)", id, req.Countdown, req.Mood, req.Duration)
		return sess, nil
	}
	seq.Start()
	l.log.Infof("breathing session %s started (%s, %s)", id, req.Mood, req.Duration)
	return sess, nil
}

// countdown reports seconds to onTick once per second and calls start when it
// reaches zero. The returned cancel stops it; start never runs after cancel returns.
func (l *launcherInteractor) countdown(seconds int, onTick func(int), start func()) (cancel func()) {
	var (
		mu   sync.Mutex
		left = seconds
		stop func()
	)
	if onTick != nil {
		onTick(left)
	}
	mu.Lock()
	defer mu.Unlock()
	stop = l.scheduler.Every(time.Second, func() {
		mu.Lock()
		defer mu.Unlock()
		if left <= 0 {
			return
		}
		left--
		if onTick != nil {
			onTick(left)
		}
		if left == 0 {
			stop()
			start()
		}
	})
	return func() {
		mu.Lock()
		defer mu.Unlock()
		left = 0
		stop()
	}
}

func (l *launcherInteractor) LaunchMeditation(ctx context.Context, req LaunchRequest, observer func(domain.PlaybackState)) (*MeditationSession, error) {
	if req.Duration <= 0 {
		return nil, domain.ErrInvalidDuration
	}
	if err := l.admit(ctx, req); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	finish := l.finisher(id)
	player := NewPlaybackSynchronizer(l.opener, l.scheduler,
		WithTickInterval(l.opts.PlaybackTick),
		WithVolumes(l.opts.VoiceVolume, l.opts.AmbientVolume),
		WithPlaybackObserver(func(st domain.PlaybackState) {
			if st.Loaded && st.Duration > 0 && st.Position >= st.Duration {
				finish(domain.OutcomeCompleted)
			}
			if observer != nil {
				observer(st)
			}
		}),
	)
	if err := player.Load(ctx, req.VoiceURL, req.AmbientURL, req.Duration); err != nil {
		return nil, err
	}
	sleep := NewSleepTimer(player, l.scheduler,
		WithSleepEpsilon(l.opts.SleepEpsilon),
		WithSleepFired(func() { finish(domain.OutcomeStopped) }),
	)
	switch {
	case req.SleepSeconds > 0:
		if err := sleep.SetFixed(req.SleepSeconds); err != nil {
			player.Stop()
			return nil, err
		}
	case req.SleepAtEnd:
		sleep.SetEndOfSession()
	}

	l.recordStart(ctx, domain.SessionRecord{
		ID:            id,
		Kind:          domain.KindMeditation,
		Mood:          req.Mood,
		TargetSeconds: int(req.Duration / time.Second),
	})
	if err := player.Play(); err != nil {
		sleep.Cancel()
		player.Stop()
		finish(domain.OutcomeStopped)
		return nil, err
	}
	l.log.Infof("meditation session %s started (%s)", id, req.Duration)
	return &MeditationSession{ID: id, Player: player, Sleep: sleep, finish: finish}, nil
}

func (l *launcherInteractor) Recent(ctx context.Context, limit int) ([]domain.SessionRecord, error) {
	if l.sessions == nil {
		return nil, nil
	}
	return l.sessions.Recent(ctx, limit)
}

// finisher returns a func that records the first outcome for id and ignores the rest.
func (l *launcherInteractor) finisher(id string) func(domain.SessionOutcome) {
	var once sync.Once
	return func(outcome domain.SessionOutcome) {
		once.Do(func() {
			if l.sessions == nil {
				return
			}
			if err := l.sessions.Finish(context.Background(), id, outcome, l.now()); err != nil {
				l.log.Warnf("record finish %s: %v", id, err)
			}
		})
	}
}

func (l *launcherInteractor) recordStart(ctx context.Context, rec domain.SessionRecord) {
	if l.sessions == nil {
		return
	}
	rec.StartedAt = l.now()
	rec.Outcome = domain.OutcomeRunning
	if err := l.sessions.Start(ctx, rec); err != nil {
		l.log.Warnf("record start %s: %v", rec.ID, err)
	}
}

func (l *launcherInteractor) recordAdmission(ctx context.Context, res domain.AdmissionResult) {
	if l.admissions == nil {
		return
	}
	rec := domain.AdmissionRecord{
		ID:        uuid.NewString(),
		Granted:   res.Granted,
		Reason:    res.Reason,
		CreatedAt: l.now(),
	}
	if err := l.admissions.Append(ctx, rec); err != nil {
		l.log.Warnf("record admission: %v", err)
	}
}
