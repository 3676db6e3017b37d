package cache

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRuns_PutAndRecent(t *testing.T) {
	db := openTestDB(t)
	base := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)

	runs := []RunRecord{
		{ID: "a", StartedAt: base, FinishedAt: base.Add(time.Second), Contract: "internal", Target: "streak",
			Outcome: OutcomeOK, CurrentStreak: 4, MaxStreak: 9},
		{ID: "b", StartedAt: base.Add(24 * time.Hour), FinishedAt: base.Add(24*time.Hour + time.Second),
			Contract: "internal", Target: "streak", Outcome: OutcomeError, FailedStep: "authenticate",
			ErrorKind: "authentication_failed", ErrorText: "status 401", StatusCode: 401},
		{ID: "c", StartedAt: base.Add(48 * time.Hour), FinishedAt: base.Add(48*time.Hour + time.Second),
			Contract: "v1", Target: "streak", Outcome: OutcomeOK, CurrentStreak: 5},
	}
	for _, r := range runs {
		if err := db.PutRun(r); err != nil {
			t.Fatalf("PutRun(%s) error = %v", r.ID, err)
		}
	}

	got, err := db.RecentRuns(2)
	if err != nil {
		t.Fatalf("RecentRuns() error = %v", err)
	}
	if len(got) != 2 || got[0].ID != "c" || got[1].ID != "b" {
		t.Fatalf("RecentRuns(2) ids = %v, want [c b]", ids(got))
	}
	if got[1].FailedStep != "authenticate" || got[1].StatusCode != 401 || got[1].ErrorKind != "authentication_failed" {
		t.Fatalf("failed run = %+v", got[1])
	}
	if !got[0].StartedAt.Equal(runs[2].StartedAt) {
		t.Fatalf("StartedAt = %v, want %v", got[0].StartedAt, runs[2].StartedAt)
	}
	if got[0].FailedStep != "" {
		t.Fatalf("FailedStep = %q, want empty for success", got[0].FailedStep)
	}
}

func TestRuns_LastSuccess(t *testing.T) {
	db := openTestDB(t)

	if _, ok, err := db.LastSuccess(); err != nil || ok {
		t.Fatalf("LastSuccess() on empty db = (%v, %v), want (false, nil)", ok, err)
	}

	now := time.Now()
	if err := db.PutRun(RunRecord{ID: "ok", StartedAt: now, FinishedAt: now, Contract: "internal",
		Target: "streak", Outcome: OutcomeOK, CurrentStreak: 7, MaxStreak: 7}); err != nil {
		t.Fatalf("PutRun() error = %v", err)
	}
	later := now.Add(time.Minute)
	if err := db.PutRun(RunRecord{ID: "bad", StartedAt: later, FinishedAt: later, Contract: "internal",
		Target: "streak", Outcome: OutcomeError}); err != nil {
		t.Fatalf("PutRun() error = %v", err)
	}

	r, ok, err := db.LastSuccess()
	if err != nil || !ok {
		t.Fatalf("LastSuccess() = (%v, %v)", ok, err)
	}
	if r.ID != "ok" || r.CurrentStreak != 7 {
		t.Fatalf("LastSuccess() = %+v, want run ok", r)
	}
}

func ids(runs []RunRecord) []string {
	out := make([]string, len(runs))
	for i, r := range runs {
		out[i] = r.ID
	}
	return out
}
