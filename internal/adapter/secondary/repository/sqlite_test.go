package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"calmsession/internal/domain"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "nested", "history.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSQLiteRepository(db)
}

func TestNewDB_CreatesTables(t *testing.T) {
	repo := newTestRepo(t)
	rows, err := repo.db.Query("SELECT name FROM sqlite_master WHERE type='table' ORDER BY name")
	if err != nil {
		t.Fatalf("query tables: %v", err)
	}
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("scan: %v", err)
		}
		found[name] = true
	}
	for _, want := range []string{"sessions", "admissions"} {
		if !found[want] {
			t.Errorf("table %q missing", want)
		}
	}
}

func TestNewDB_EmptyPath(t *testing.T) {
	if _, err := NewDB(""); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestSessions_StartFinishRecent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 4, 21, 0, 0, 0, time.UTC)

	recs := []domain.SessionRecord{
		{ID: "s-1", Kind: domain.KindBreathing, Mood: domain.MoodCalm, TargetSeconds: 120, StartedAt: base, Outcome: domain.OutcomeRunning},
		{ID: "s-2", Kind: domain.KindMeditation, TargetSeconds: 600, StartedAt: base.Add(time.Hour), Outcome: domain.OutcomeRunning},
		{ID: "s-3", Kind: domain.KindBreathing, Mood: domain.MoodAnxious, TargetSeconds: 60, StartedAt: base.Add(2 * time.Hour), Outcome: domain.OutcomeRunning},
	}
	for _, rec := range recs {
		if err := repo.Start(ctx, rec); err != nil {
			t.Fatalf("Start %s: %v", rec.ID, err)
		}
	}
	ended := base.Add(2 * time.Minute)
	if err := repo.Finish(ctx, "s-1", domain.OutcomeCompleted, ended); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	got, err := repo.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 || got[0].ID != "s-3" || got[1].ID != "s-2" {
		t.Fatalf("Recent(2) = %+v, want s-3, s-2", got)
	}

	all, _ := repo.Recent(ctx, 10)
	last := all[len(all)-1]
	if last.ID != "s-1" || last.Outcome != domain.OutcomeCompleted || !last.EndedAt.Equal(ended) {
		t.Errorf("finished record = %+v", last)
	}
	if last.Mood != domain.MoodCalm || last.Kind != domain.KindBreathing || last.TargetSeconds != 120 {
		t.Errorf("round-tripped fields = %+v", last)
	}
	if !all[1].EndedAt.IsZero() {
		t.Errorf("running session has end time %s", all[1].EndedAt)
	}
}

func TestSessions_FinishUnknown(t *testing.T) {
	repo := newTestRepo(t)
	err := repo.Finish(context.Background(), "missing", domain.OutcomeStopped, time.Now())
	if !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestSessions_DuplicateID(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	rec := domain.SessionRecord{ID: "dup", Kind: domain.KindBreathing, StartedAt: time.Now(), Outcome: domain.OutcomeRunning}
	if err := repo.Start(ctx, rec); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := repo.Start(ctx, rec); err == nil {
		t.Error("expected error on duplicate ID")
	}
}

func TestAdmissions_AppendAndList(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

	entries := []domain.AdmissionRecord{
		{ID: "a-1", Granted: false, Reason: domain.ReasonNotReady, CreatedAt: now},
		{ID: "a-2", Granted: true, Reason: domain.ReasonRewarded, CreatedAt: now.Add(time.Minute)},
	}
	for _, e := range entries {
		if err := repo.Append(ctx, e); err != nil {
			t.Fatalf("Append %s: %v", e.ID, err)
		}
	}

	got, err := repo.Admissions(ctx, 10)
	if err != nil {
		t.Fatalf("Admissions: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != "a-2" || !got[0].Granted || got[0].Reason != domain.ReasonRewarded {
		t.Errorf("newest = %+v", got[0])
	}
	if got[1].Granted || !got[1].CreatedAt.Equal(now) {
		t.Errorf("oldest = %+v", got[1])
	}
}
