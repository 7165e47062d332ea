// Package model holds the data types shared across cubicle's
// resolver, oracle, builder, composer, and state store: package
// definitions, references, built artifacts, and target/builder
// environment identities (§3).
package model

import "time"

// Origin records where a package definition was found: a local
// search root (lower index shadows higher) or the built-in root,
// which is always last.
type Origin struct {
	RootIndex int    // index into the ordered search-root list
	RootName  string // directory name, e.g. "00local"
	BuiltIn   bool
}

// Definition is an immutable package definition discovered by the
// source index (§3, §4.2).
type Definition struct {
	Name             string
	SourceDir        string
	Manifest         Manifest
	BuildScript      string // absolute path, or "" if absent
	TestScript       string
	IsPackageManager bool
	Origin           Origin
}

// BuiltArtifact is the cached output of a successful build (§3).
type BuiltArtifact struct {
	ProvidesTarPath string // path to the cached archive
	BuiltAt         time.Time
	SourceHash      string // hex-encoded content digest
}

// Fresh reports whether built_at is set at all; oracle.Evaluate does
// the full freshness computation. This only distinguishes "never
// built" from "built at some point."
func (a BuiltArtifact) Fresh() bool {
	return !a.BuiltAt.IsZero()
}

// EnvironmentName identifies a target environment or, in the
// per-package builder namespace, a builder environment.
type EnvironmentName string

// EnvironmentState is the coarse lifecycle state from §4.6's state
// machine.
type EnvironmentState int

const (
	EnvAbsent EnvironmentState = iota
	EnvHealthy
	EnvRunning
)

func (s EnvironmentState) String() string {
	switch s {
	case EnvAbsent:
		return "absent"
	case EnvHealthy:
		return "healthy"
	case EnvRunning:
		return "running"
	default:
		return "unknown"
	}
}

// TargetEnvironment is a user-visible environment as described by
// the state store (§3, §4.7).
type TargetEnvironment struct {
	Name     EnvironmentName
	HomeDir  string
	WorkDir  string
	Packages []string // packages.txt contents, in on-disk order
	State    EnvironmentState
}

// Mode selects which implicit dependency the resolver injects (§4.3,
// invariant 6).
type Mode int

const (
	// ModeInteractive seeds auto (used for new/reset/tmp target
	// environments).
	ModeInteractive Mode = iota
	// ModeBuilder seeds auto-batch. Builder and test environments are
	// not seeded through Resolve: Resolver.BuilderSeed computes their
	// seeds from the package's own dependencies and does not add
	// auto-batch.
	ModeBuilder
)

func (m Mode) String() string {
	if m == ModeBuilder {
		return "builder"
	}
	return "interactive"
}
