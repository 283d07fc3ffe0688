package sweeper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ashureev/studylog/internal/domain"
	"github.com/ashureev/studylog/internal/store"
)

// fakeRepo embeds store.Repository so only MarkAbandoned needs an implementation.
type fakeRepo struct {
	store.Repository
	results []error
	ids     []string
	calls   int
	gotTTL  time.Duration
}

func (f *fakeRepo) MarkAbandoned(_ context.Context, ttl time.Duration) ([]string, error) {
	f.gotTTL = ttl
	f.calls++
	if len(f.results) > 0 {
		err := f.results[0]
		f.results = f.results[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.ids, nil
}

func TestSweepInvokesCallback(t *testing.T) {
	repo := &fakeRepo{ids: []string{"a", "b"}}
	var got []string

	n := Sweep(context.Background(), repo, time.Hour, func(ids []string) { got = ids })
	if n != 2 || len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("Sweep() = %d, callback ids = %v, want [a b]", n, got)
	}
	if repo.gotTTL != time.Hour {
		t.Errorf("ttl = %v, want 1h", repo.gotTTL)
	}
}

func TestSweepNothingToDo(t *testing.T) {
	repo := &fakeRepo{}
	called := false

	if n := Sweep(context.Background(), repo, time.Hour, func([]string) { called = true }); n != 0 {
		t.Fatalf("Sweep() = %d, want 0", n)
	}
	if called {
		t.Error("callback should not run when nothing was abandoned")
	}
}

func TestSweepRetriesBusy(t *testing.T) {
	repo := &fakeRepo{
		ids:     []string{"stale"},
		results: []error{errors.New("database is locked"), errors.New("SQLITE_BUSY")},
	}

	if n := Sweep(context.Background(), repo, time.Hour, nil); n != 1 {
		t.Fatalf("Sweep() = %d, want 1", n)
	}
	if repo.calls != 3 {
		t.Errorf("calls = %d, want 3", repo.calls)
	}
}

func TestSweepDoesNotRetryOtherErrors(t *testing.T) {
	repo := &fakeRepo{results: []error{errors.New("no such table: sessions")}}

	if n := Sweep(context.Background(), repo, time.Hour, nil); n != 0 {
		t.Fatalf("Sweep() = %d, want 0", n)
	}
	if repo.calls != 1 {
		t.Errorf("calls = %d, want 1", repo.calls)
	}
}

func TestStartStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	repo := &fakeRepo{}

	Start(ctx, repo, 10*time.Millisecond, time.Hour, nil)
	time.Sleep(35 * time.Millisecond)
	cancel()
	time.Sleep(20 * time.Millisecond)
}

func TestSweepAgainstSQLite(t *testing.T) {
	repo, err := store.NewSQLite(t.TempDir() + "/sweep.db")
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	defer func() { _ = repo.Close() }()

	ctx := context.Background()
	old := time.Now().Add(-2 * time.Hour)
	if err := repo.UpsertSubject(ctx, &domain.Subject{SubjectID: "S1", CreatedAt: old}); err != nil {
		t.Fatalf("UpsertSubject: %v", err)
	}
	if err := repo.UpsertApp(ctx, &domain.App{AppID: "app", AppType: "survey"}); err != nil {
		t.Fatalf("UpsertApp: %v", err)
	}
	if err := repo.CreateSession(ctx, &domain.Session{
		SessionID: "stale", SubjectID: "S1", AppID: "app", AppType: "survey",
		TSStartUTC: domain.FormatTimestamp(old), UpdatedAt: old,
	}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	var abandoned []string
	if n := Sweep(ctx, repo, time.Hour, func(ids []string) { abandoned = ids }); n != 1 {
		t.Fatalf("Sweep() = %d, want 1", n)
	}
	if len(abandoned) != 1 || abandoned[0] != "stale" {
		t.Errorf("abandoned ids = %v, want [stale]", abandoned)
	}
	s, err := repo.GetSession(ctx, "stale")
	if err != nil || s == nil {
		t.Fatalf("GetSession: %v %v", s, err)
	}
	if s.Status != domain.SessionAbandoned {
		t.Errorf("status = %q, want abandoned", s.Status)
	}
}
