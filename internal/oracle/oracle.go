// Package oracle implements the freshness oracle (§4.4): a pure
// function, given a cached artifact and the current state of its
// source and dependencies, decides whether a package build may be
// reused or must be redone. It performs no I/O; callers gather the
// content hash and dependency timestamps beforehand.
package oracle

import "time"

// Freshness is the oracle's verdict for one package.
type Freshness int

const (
	Fresh Freshness = iota
	Stale
)

func (f Freshness) String() string {
	if f == Fresh {
		return "fresh"
	}
	return "stale"
}

// DefaultThreshold is the default artifact age threshold (§4.4): 12
// hours.
const DefaultThreshold = 12 * time.Hour

// Input bundles everything the oracle needs to decide one package's
// freshness.
type Input struct {
	// HasArtifact is false when the package has never been built.
	HasArtifact bool
	BuiltAt     time.Time
	CachedHash  string

	// CurrentHash is the source fingerprint computed right now:
	// content hash of the source tree combined with the resolved
	// names and fingerprints of dependencies (§4.4 input 1).
	CurrentHash string

	// DependencyBuiltAt maps each dependency's identity to its own
	// built_at, for detecting "a dependency was rebuilt more
	// recently than this package" (§4.4 input 3).
	DependencyBuiltAt map[string]time.Time

	// Threshold is the configured artifact age threshold. Nil means
	// "never" — age alone never forces a rebuild.
	Threshold *time.Duration

	Now time.Time
}

// Evaluate returns Fresh or Stale per §4.4's three inputs, evaluated
// in the order the spec lists them. A package with no cached built_at
// is always Stale.
func Evaluate(in Input) Freshness {
	if !in.HasArtifact {
		return Stale
	}
	if in.CachedHash != in.CurrentHash {
		return Stale
	}
	if in.Threshold != nil && in.Now.Sub(in.BuiltAt) > *in.Threshold {
		return Stale
	}
	for _, depBuiltAt := range in.DependencyBuiltAt {
		if depBuiltAt.After(in.BuiltAt) {
			return Stale
		}
	}
	return Fresh
}
