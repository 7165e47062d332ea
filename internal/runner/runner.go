// Package runner declares the abstract sandbox capability the core
// depends on (§4.1). Concrete backends — a shared-root lightweight
// container, a full OCI-style container, or system-user-account
// isolation — are out of scope for the lifecycle core itself; the
// core holds exactly one Runner for the lifetime of an invocation and
// never switches at runtime (§9).
package runner

import (
	"context"
	"io"

	"github.com/ongardie/cubicle/internal/model"
)

// Exists reports the coarse existence state of a sandbox, matching
// §4.6's ABSENT/HEALTHY/RUNNING state machine as far as a Runner can
// observe it (RUNNING is layered on top by the composer, which knows
// whether it currently holds an interactive session open).
type Exists int

const (
	NoEnvironment Exists = iota
	PartiallyExists
	FullyExists
)

// Command describes one invocation inside a sandbox.
type Command struct {
	// Argv is the command and arguments. Without Interactive, an
	// empty Argv runs nothing and reports exit code 0.
	Argv []string

	// Env holds additional environment variables to set inside the
	// sandbox, layered on top of the conventional CUBICLE, SANDBOX,
	// TMPDIR, and (when building a parameterized package) PACKAGE
	// variables (§6).
	Env map[string]string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Interactive requests a pty-backed session (used by `cub
	// enter`, which passes a login shell in Argv).
	Interactive bool
}

// Runner is the capability the core depends on to create/destroy a
// sandbox, inject seed data, run commands inside it, and capture
// output (§4.1).
type Runner interface {
	// Create makes an empty sandbox whose home and work directories
	// exist. If seedHome is non-nil, its contents (a tar or
	// gzip-compressed tar stream; implementations must accept both,
	// as produced by archive.CreateTar/GzipSeed) are unpacked into
	// home before any user script runs. Fails if the environment
	// already exists in any form.
	Create(ctx context.Context, name model.EnvironmentName, seedHome io.Reader) error

	// SeedWork unpacks an archive into the sandbox's work directory.
	// This is used only by the package builder to place a package's
	// source tree and scripts into its builder environment's work
	// directory (§4.5); target environments' work directories are
	// never written by the core outside of packages.txt (§5).
	SeedWork(ctx context.Context, name model.EnvironmentName, archive io.Reader) error

	// Exists reports whether the sandbox fully exists, partially
	// exists (a likely-broken prior operation), or doesn't exist.
	Exists(ctx context.Context, name model.EnvironmentName) (Exists, error)

	// Run executes a command inside the sandbox with the work
	// directory visible at the conventional path and home as the
	// sandbox's home. It blocks until the command completes or ctx
	// is canceled.
	Run(ctx context.Context, name model.EnvironmentName, cmd Command) (exitCode int, err error)

	// CopyOutFromHome reads a single file from within the sandbox's
	// home directory (used to retrieve ~/provides.tar after a
	// build).
	CopyOutFromHome(ctx context.Context, name model.EnvironmentName, relPath string) (io.ReadCloser, error)

	// ResetHome destroys and recreates only the home directory,
	// preserving work byte-for-byte (§4.6 reset, §4.5 step 2's
	// builder "refresh").
	ResetHome(ctx context.Context, name model.EnvironmentName, seedHome io.Reader) error

	// RemoveHome destroys the home directory without recreating it,
	// leaving the sandbox partially existing (work preserved, home
	// gone) until the next Create or ResetHome. Backs `cub reset
	// --clean`.
	RemoveHome(ctx context.Context, name model.EnvironmentName) error

	// Purge destroys the sandbox and any storage the runner owns for
	// it, including work. Idempotent: purging an absent environment
	// is not an error.
	Purge(ctx context.Context, name model.EnvironmentName) error

	// List returns every environment name known to the runner whose
	// name has the given prefix (an empty prefix lists everything).
	List(ctx context.Context, prefix string) ([]model.EnvironmentName, error)
}
