package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"calmsession/internal/domain"
)

type launcherFixture struct {
	launcher *launcherInteractor
	sched    *manualScheduler
	opener   *fakeOpener
	ads      *fakeAds
	ent      *fakeEntitlement
	store    *memorySessions
}

func newLauncherFixture(opts LauncherOptions) *launcherFixture {
	f := &launcherFixture{
		sched:  &manualScheduler{},
		opener: newFakeOpener(),
		ads:    &fakeAds{},
		ent:    &fakeEntitlement{},
		store:  newMemorySessions(),
	}
	gate := NewAdmissionGate(f.ads, f.ent, "unit-1")
	f.launcher = NewSessionLauncher(gate, f.opener, f.sched, f.store, f.store, opts).(*launcherInteractor)
	fixed := time.Date(2026, 3, 1, 7, 30, 0, 0, time.UTC)
	f.launcher.now = func() time.Time { return fixed }
	return f
}

func TestLauncher_BreathingRunsToCompletion(t *testing.T) {
	f := newLauncherFixture(LauncherOptions{})
	var last domain.SessionClock
	sess, err := f.launcher.LaunchBreathing(context.Background(), LaunchRequest{
		Mood:     domain.MoodCalm,
		Duration: 3 * time.Second,
	}, func(c domain.SessionClock) { last = c })
	if err != nil {
		t.Fatalf("LaunchBreathing: %v", err)
	}

	rec := f.store.get(sess.ID)
	if rec.Kind != domain.KindBreathing || rec.Outcome != domain.OutcomeRunning || rec.TargetSeconds != 3 {
		t.Errorf("start record = %+v", rec)
	}
	f.sched.TickN(3)
	if !last.Finished {
		t.Errorf("observer last clock = %+v, want finished", last)
	}
	if got := f.store.get(sess.ID).Outcome; got != domain.OutcomeCompleted {
		t.Errorf("outcome = %s, want completed", got)
	}

	// Closing a finished session keeps the first outcome.
	sess.Close()
	if got := f.store.get(sess.ID).Outcome; got != domain.OutcomeCompleted {
		t.Errorf("outcome after Close = %s, want completed", got)
	}
	if len(f.store.admissions) != 0 {
		t.Errorf("ungated launch consulted the gate: %v", f.store.admissions)
	}
}

func TestLauncher_BreathingCloseRecordsStopped(t *testing.T) {
	f := newLauncherFixture(LauncherOptions{})
	sess, err := f.launcher.LaunchBreathing(context.Background(), LaunchRequest{
		Mood:     domain.MoodAnxious,
		Duration: time.Minute,
	}, nil)
	if err != nil {
		t.Fatalf("LaunchBreathing: %v", err)
	}
	f.sched.TickN(5)
	sess.Close()

	rec := f.store.get(sess.ID)
	if rec.Outcome != domain.OutcomeStopped || rec.EndedAt.IsZero() {
		t.Errorf("record = %+v, want stopped with end time", rec)
	}
	if f.sched.Active() != 0 {
		t.Error("sequencer still ticking after Close")
	}
}

func TestLauncher_RejectsBadRequests(t *testing.T) {
	tests := []struct {
		name string
		req  LaunchRequest
		want error
	}{
		{"unknown mood", LaunchRequest{Mood: "elated", Duration: time.Minute}, domain.ErrInvalidMood},
		{"zero duration", LaunchRequest{Mood: domain.MoodCalm}, domain.ErrInvalidDuration},
		{"sub-second", LaunchRequest{Mood: domain.MoodCalm, Duration: 500 * time.Millisecond}, domain.ErrInvalidDuration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newLauncherFixture(LauncherOptions{})
			_, err := f.launcher.LaunchBreathing(context.Background(), tt.req, nil)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLauncher_GatedWithoutInventoryIsDenied(t *testing.T) {
	f := newLauncherFixture(LauncherOptions{})
	_, err := f.launcher.LaunchMeditation(context.Background(), LaunchRequest{
		Duration:   time.Minute,
		AmbientURL: ambientURL,
		Gated:      true,
		Host:       "cli",
	}, nil)
	if !errors.Is(err, domain.ErrAdmissionDenied) || !errors.Is(err, domain.ErrAdNotReady) {
		t.Fatalf("err = %v, want admission denied / not ready", err)
	}
	if len(f.opener.opened) != 0 {
		t.Error("media opened for a denied session")
	}
	if len(f.store.admissions) != 1 || f.store.admissions[0].Reason != domain.ReasonNotReady {
		t.Errorf("admissions = %+v", f.store.admissions)
	}
	if f.ads.loadCount() != 1 {
		t.Errorf("loads = %d, want a preload for next time", f.ads.loadCount())
	}
}

func TestLauncher_GatedWaitsForInventoryThenPresents(t *testing.T) {
	f := newLauncherFixture(LauncherOptions{AdWait: time.Second})
	f.ads.immediate = newFakeAd(domain.AdRewardEarned, domain.AdDismissed)

	sess, err := f.launcher.LaunchMeditation(context.Background(), LaunchRequest{
		Duration:   time.Minute,
		AmbientURL: ambientURL,
		Gated:      true,
		Host:       "cli",
	}, nil)
	if err != nil {
		t.Fatalf("LaunchMeditation: %v", err)
	}
	defer sess.Close()

	if len(f.store.admissions) != 1 {
		t.Fatalf("admissions = %+v", f.store.admissions)
	}
	if a := f.store.admissions[0]; !a.Granted || a.Reason != domain.ReasonRewarded {
		t.Errorf("admission = %+v, want rewarded", a)
	}
	if !sess.Player.State().Playing {
		t.Error("meditation not playing after admission")
	}
}

func TestLauncher_GatedDismissedAdDenies(t *testing.T) {
	f := newLauncherFixture(LauncherOptions{AdWait: time.Second})
	f.ads.immediate = newFakeAd(domain.AdDismissed)

	_, err := f.launcher.LaunchBreathing(context.Background(), LaunchRequest{
		Mood:     domain.MoodNeutral,
		Duration: time.Minute,
		Gated:    true,
	}, nil)
	if !errors.Is(err, domain.ErrAdmissionDenied) {
		t.Fatalf("err = %v, want ErrAdmissionDenied", err)
	}
	if errors.Is(err, domain.ErrAdNotReady) {
		t.Error("dismissal reported as not ready")
	}
}

func TestLauncher_PremiumSkipsAds(t *testing.T) {
	f := newLauncherFixture(LauncherOptions{})
	f.ent.premium.Store(true)

	sess, err := f.launcher.LaunchBreathing(context.Background(), LaunchRequest{
		Mood:     domain.MoodStressed,
		Duration: time.Minute,
		Gated:    true,
	}, nil)
	if err != nil {
		t.Fatalf("LaunchBreathing: %v", err)
	}
	sess.Close()
	if f.ads.loadCount() != 0 {
		t.Errorf("premium launch loaded ads %d times", f.ads.loadCount())
	}
	if a := f.store.admissions[0]; !a.Granted || a.Reason != domain.ReasonPremium {
		t.Errorf("admission = %+v", a)
	}
}

func TestLauncher_MeditationCompletesAtEnd(t *testing.T) {
	f := newLauncherFixture(LauncherOptions{})
	sess, err := f.launcher.LaunchMeditation(context.Background(), LaunchRequest{
		Duration:   time.Second,
		AmbientURL: ambientURL,
	}, nil)
	if err != nil {
		t.Fatalf("LaunchMeditation: %v", err)
	}
	f.sched.TickN(5)

	if st := sess.Player.State(); st.Playing || st.Position != time.Second {
		t.Errorf("player state = %+v, want paused at end", st)
	}
	if got := f.store.get(sess.ID).Outcome; got != domain.OutcomeCompleted {
		t.Errorf("outcome = %s, want completed", got)
	}
}

func TestLauncher_MeditationSleepTimerStops(t *testing.T) {
	f := newLauncherFixture(LauncherOptions{})
	sess, err := f.launcher.LaunchMeditation(context.Background(), LaunchRequest{
		Duration:     10 * time.Minute,
		AmbientURL:   ambientURL,
		SleepSeconds: 2,
	}, nil)
	if err != nil {
		t.Fatalf("LaunchMeditation: %v", err)
	}
	if st := sess.Sleep.State(); st.Mode != domain.SleepFixed {
		t.Fatalf("sleep state = %+v", st)
	}
	f.sched.TickN(2)

	if sess.Player.State().Loaded {
		t.Error("player still loaded after sleep timer fired")
	}
	if got := f.store.get(sess.ID).Outcome; got != domain.OutcomeStopped {
		t.Errorf("outcome = %s, want stopped", got)
	}
}

func TestLauncher_MeditationOpenFailure(t *testing.T) {
	f := newLauncherFixture(LauncherOptions{})
	f.opener.fail[voiceURL] = errors.New("unreachable")
	_, err := f.launcher.LaunchMeditation(context.Background(), LaunchRequest{
		Duration: time.Minute,
		VoiceURL: voiceURL,
	}, nil)
	if !errors.Is(err, domain.ErrMediaOpen) {
		t.Fatalf("err = %v, want ErrMediaOpen", err)
	}
	if recent, _ := f.launcher.Recent(context.Background(), 10); len(recent) != 0 {
		t.Errorf("failed launch was recorded: %+v", recent)
	}
}

func TestLauncher_BreathingCountdownThenStart(t *testing.T) {
	f := newLauncherFixture(LauncherOptions{})
	var counts []int
	sess, err := f.launcher.LaunchBreathing(context.Background(), LaunchRequest{
		Mood:        domain.MoodCalm,
		Duration:    time.Minute,
		Countdown:   2,
		OnCountdown: func(left int) { counts = append(counts, left) },
	}, nil)
	if err != nil {
		t.Fatalf("LaunchBreathing: %v", err)
	}
	defer sess.Close()

	if clock := sess.Sequencer.Snapshot(); clock.Status != domain.StatusCountingDown || clock.TotalRemaining != 60 {
		t.Fatalf("clock before countdown = %+v, want counting-down at 60", clock)
	}
	f.sched.Tick()
	if got := sess.Sequencer.Snapshot().Status; got != domain.StatusCountingDown {
		t.Errorf("status after 1s = %s, want counting-down", got)
	}
	f.sched.Tick()
	clock := sess.Sequencer.Snapshot()
	if clock.Status != domain.StatusRunning || clock.TotalRemaining != 60 {
		t.Errorf("clock at start = %+v, want running at 60", clock)
	}
	f.sched.Tick()
	if got := sess.Sequencer.Snapshot().TotalRemaining; got != 59 {
		t.Errorf("TotalRemaining = %d, want 59", got)
	}
	want := []int{2, 1, 0}
	if len(counts) != len(want) {
		t.Fatalf("countdown reported %v, want %v", counts, want)
	}
	for i := range want {
		if counts[i] != want[i] {
			t.Errorf("countdown reported %v, want %v", counts, want)
			break
		}
	}
}

func TestLauncher_CloseDuringCountdown(t *testing.T) {
	f := newLauncherFixture(LauncherOptions{})
	sess, err := f.launcher.LaunchBreathing(context.Background(), LaunchRequest{
		Mood:      domain.MoodNeutral,
		Duration:  time.Minute,
		Countdown: 3,
	}, nil)
	if err != nil {
		t.Fatalf("LaunchBreathing: %v", err)
	}
	f.sched.Tick()
	sess.Close()
	f.sched.TickN(5)

	if got := sess.Sequencer.Snapshot().Status; got == domain.StatusRunning {
		t.Error("session started after Close")
	}
	if f.sched.Active() != 0 {
		t.Errorf("active ticks = %d after Close", f.sched.Active())
	}
	if got := f.store.get(sess.ID).Outcome; got != domain.OutcomeStopped {
		t.Errorf("outcome = %s, want stopped", got)
	}
}
