package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndRecentRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	attempts := []Attempt{
		{Identity: "hello", Outcome: Succeeded, SourceHash: "h1", Duration: time.Second, StartedAt: base},
		{Identity: "hello", Outcome: Failed, SourceHash: "h2", Duration: 2 * time.Second, StartedAt: base.Add(time.Hour), Detail: "build.sh exited 1"},
		{Identity: "other", Outcome: Succeeded, SourceHash: "h3", Duration: time.Second, StartedAt: base},
	}
	for _, a := range attempts {
		if err := s.Record(ctx, a); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.Recent(ctx, "hello", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 attempts for hello, got %d", len(got))
	}
	// Most recent first.
	if got[0].Outcome != Failed {
		t.Errorf("got[0].Outcome = %v, want Failed", got[0].Outcome)
	}
	if got[0].Detail != "build.sh exited 1" {
		t.Errorf("got[0].Detail = %q, want %q", got[0].Detail, "build.sh exited 1")
	}
	if got[1].Outcome != Succeeded {
		t.Errorf("got[1].Outcome = %v, want Succeeded", got[1].Outcome)
	}
}

func TestRecentRespectsLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		err := s.Record(ctx, Attempt{
			Identity:  "hello",
			Outcome:   Succeeded,
			StartedAt: base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.Recent(ctx, "hello", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(got))
	}
}

func TestRecentUnknownIdentityIsEmpty(t *testing.T) {
	s := openTestStore(t)
	got, err := s.Recent(context.Background(), "nonexistent", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected no attempts, got %d", len(got))
	}
}

func TestCloseIsNilSafe(t *testing.T) {
	var s *Store
	if err := s.Close(); err != nil {
		t.Errorf("Close on nil Store returned %v, want nil", err)
	}
}
