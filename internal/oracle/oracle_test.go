package oracle

import (
	"testing"
	"time"
)

func fixedNow() time.Time {
	return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
}

func TestEvaluateNeverBuilt(t *testing.T) {
	got := Evaluate(Input{HasArtifact: false})
	if got != Stale {
		t.Errorf("never-built package = %v, want Stale", got)
	}
}

func TestEvaluateHashMismatch(t *testing.T) {
	got := Evaluate(Input{
		HasArtifact: true,
		CachedHash:  "abc",
		CurrentHash: "def",
	})
	if got != Stale {
		t.Errorf("hash mismatch = %v, want Stale", got)
	}
}

func TestEvaluateWithinThreshold(t *testing.T) {
	now := fixedNow()
	threshold := DefaultThreshold
	got := Evaluate(Input{
		HasArtifact: true,
		CachedHash:  "abc",
		CurrentHash: "abc",
		BuiltAt:     now.Add(-threshold / 2),
		Threshold:   &threshold,
		Now:         now,
	})
	if got != Fresh {
		t.Errorf("within threshold = %v, want Fresh", got)
	}
}

func TestEvaluatePastThreshold(t *testing.T) {
	now := fixedNow()
	threshold := DefaultThreshold
	got := Evaluate(Input{
		HasArtifact: true,
		CachedHash:  "abc",
		CurrentHash: "abc",
		BuiltAt:     now.Add(-2 * threshold),
		Threshold:   &threshold,
		Now:         now,
	})
	if got != Stale {
		t.Errorf("past threshold = %v, want Stale", got)
	}
}

func TestEvaluateNilThresholdNeverExpires(t *testing.T) {
	now := fixedNow()
	got := Evaluate(Input{
		HasArtifact: true,
		CachedHash:  "abc",
		CurrentHash: "abc",
		BuiltAt:     now.Add(-1000 * DefaultThreshold),
		Threshold:   nil,
		Now:         now,
	})
	if got != Fresh {
		t.Errorf("nil threshold = %v, want Fresh (never expires on age alone)", got)
	}
}

func TestEvaluateDependencyRebuiltAfter(t *testing.T) {
	now := fixedNow()
	builtAt := now.Add(-time.Hour)
	got := Evaluate(Input{
		HasArtifact: true,
		CachedHash:  "abc",
		CurrentHash: "abc",
		BuiltAt:     builtAt,
		DependencyBuiltAt: map[string]time.Time{
			"dep": builtAt.Add(time.Minute),
		},
		Now: now,
	})
	if got != Stale {
		t.Errorf("dependency rebuilt after self = %v, want Stale", got)
	}
}

func TestEvaluateDependencyRebuiltBeforeStaysFresh(t *testing.T) {
	now := fixedNow()
	builtAt := now.Add(-time.Hour)
	got := Evaluate(Input{
		HasArtifact: true,
		CachedHash:  "abc",
		CurrentHash: "abc",
		BuiltAt:     builtAt,
		DependencyBuiltAt: map[string]time.Time{
			"dep": builtAt.Add(-time.Minute),
		},
		Now: now,
	})
	if got != Fresh {
		t.Errorf("dependency rebuilt before self = %v, want Fresh", got)
	}
}
