// Package builder implements the package builder (§4.5): it drives
// one package's build inside its long-lived builder environment,
// consults the freshness oracle to decide whether a build is even
// needed, and caches the resulting provides.tar. Concurrency safety
// comes from the state store's per-package advisory lock, not from
// any in-process synchronization: two cubicle processes racing to
// build the same identity serialize on the lock file.
package builder

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ongardie/cubicle/internal/archive"
	"github.com/ongardie/cubicle/internal/cubicleerr"
	"github.com/ongardie/cubicle/internal/history"
	"github.com/ongardie/cubicle/internal/index"
	"github.com/ongardie/cubicle/internal/model"
	"github.com/ongardie/cubicle/internal/oracle"
	"github.com/ongardie/cubicle/internal/resolver"
	"github.com/ongardie/cubicle/internal/runner"
	"github.com/ongardie/cubicle/internal/store"
)

// Builder produces and caches provides.tar for individual packages.
type Builder struct {
	Index    *index.Index
	Resolver *resolver.Resolver
	Store    *store.Store
	Runner   runner.Runner

	// History, when non-nil, records one row per build attempt that
	// actually runs build.sh (cache hits from the freshness oracle are
	// not attempts). Optional: a nil History disables logging.
	History *history.Store

	// Threshold is the configured artifact age threshold (nil means
	// "never"; see config.ParseThreshold).
	Threshold *time.Duration

	// Now defaults to time.Now; overridable so tests can control
	// freshness decisions deterministically.
	Now func() time.Time
}

func (b *Builder) recordAttempt(ctx context.Context, identity string, outcome history.Outcome, sourceHash string, started time.Time, detail string) {
	if b.History == nil {
		return
	}
	_ = b.History.Record(ctx, history.Attempt{
		Identity:   identity,
		Outcome:    outcome,
		SourceHash: sourceHash,
		Duration:   b.now().Sub(started),
		StartedAt:  started,
		Detail:     detail,
	})
}

// Options controls one Build call.
type Options struct {
	// Force skips the freshness check and rebuilds unconditionally
	// (`package update`).
	Force bool
	// Clean purges the builder environment after a failed build
	// instead of preserving it for debugging.
	Clean bool
	// SkipTest skips step 6's test.sh run even if the package defines
	// one. Nothing in cubicle sets this yet; it exists so a future
	// caller (e.g. a `--skip-test` flag) has somewhere to plug in
	// without another Options field.
	SkipTest bool
}

func (b *Builder) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

func builderEnvName(identity string) model.EnvironmentName {
	return model.EnvironmentName("builder-" + identity)
}

func testEnvName(identity string) model.EnvironmentName {
	return model.EnvironmentName("test-" + identity)
}

// Build ensures a fresh provides.tar exists for ref, rebuilding it if
// the oracle judges the cached one stale (or Options.Force is set),
// and returns the resulting cached artifact.
func (b *Builder) Build(ctx context.Context, ref model.PackageRef, opts Options) (model.BuiltArtifact, error) {
	identity := ref.Identity()
	def, err := b.Index.Resolve(ref)
	if err != nil {
		return model.BuiltArtifact{}, &cubicleerr.NoSuchPackage{Ref: ref.String()}
	}

	unlock, err := b.Store.LockPackage(identity)
	if err != nil {
		return model.BuiltArtifact{}, err
	}
	defer unlock()

	order, runtimeMembers, err := b.Resolver.BuilderSeed(ref)
	if err != nil {
		return model.BuiltArtifact{}, err
	}

	depFingerprints := make(map[string]string, len(order))
	depBuiltAt := make(map[string]time.Time, len(order))
	for _, depID := range order {
		depArtifact, err := b.Store.LoadArtifact(depID)
		if err != nil {
			return model.BuiltArtifact{}, err
		}
		depFingerprints[depID] = depArtifact.SourceHash
		depBuiltAt[depID] = depArtifact.BuiltAt
	}

	sourceHash, err := archive.HashSourceTree(def.SourceDir, depFingerprints)
	if err != nil {
		return model.BuiltArtifact{}, &cubicleerr.IOError{Path: def.SourceDir, Err: err}
	}

	current, err := b.Store.LoadArtifact(identity)
	if err != nil {
		return model.BuiltArtifact{}, err
	}

	if !opts.Force {
		fresh := oracle.Evaluate(oracle.Input{
			HasArtifact:       current.Fresh(),
			BuiltAt:           current.BuiltAt,
			CachedHash:        current.SourceHash,
			CurrentHash:       sourceHash,
			DependencyBuiltAt: depBuiltAt,
			Threshold:         b.Threshold,
			Now:               b.now(),
		})
		if fresh == oracle.Fresh {
			return current, nil
		}
	}

	if def.BuildScript == "" {
		return current, nil // no build script: no artifact to produce
	}

	buildStarted := b.now()

	envName := builderEnvName(identity)
	exists, err := b.Runner.Exists(ctx, envName)
	if err != nil {
		return model.BuiltArtifact{}, &cubicleerr.RunnerError{Kind: "exists", Err: err}
	}

	seed, err := b.seedArchive(order)
	if err != nil {
		return model.BuiltArtifact{}, err
	}

	if exists == runner.NoEnvironment {
		if err := b.Runner.Create(ctx, envName, seed); err != nil {
			return model.BuiltArtifact{}, &cubicleerr.RunnerError{Kind: "create", Err: err}
		}
	} else {
		if err := b.Runner.ResetHome(ctx, envName, seed); err != nil {
			return model.BuiltArtifact{}, &cubicleerr.RunnerError{Kind: "reset-home", Err: err}
		}
	}

	var sourceTar bytes.Buffer
	if err := archive.CreateTar(def.SourceDir, &sourceTar); err != nil {
		return model.BuiltArtifact{}, &cubicleerr.IOError{Path: def.SourceDir, Err: err}
	}
	if err := b.Runner.SeedWork(ctx, envName, &sourceTar); err != nil {
		return model.BuiltArtifact{}, &cubicleerr.RunnerError{Kind: "seed-work", Err: err}
	}

	cmd := runner.Command{Argv: []string{def.BuildScript}}
	if ref.Namespaced() {
		cmd.Env = map[string]string{"PACKAGE": ref.Name}
	}
	exitCode, err := b.Runner.Run(ctx, envName, cmd)
	if err != nil {
		return model.BuiltArtifact{}, &cubicleerr.RunnerError{Kind: "run-build", Err: err}
	}
	if exitCode != 0 {
		if opts.Clean {
			_ = b.Runner.Purge(ctx, envName)
		}
		b.recordAttempt(ctx, identity, history.Failed, sourceHash, buildStarted, fmt.Sprintf("build.sh exited %d", exitCode))
		return model.BuiltArtifact{}, &cubicleerr.BuildFailed{Name: identity, ExitCode: exitCode}
	}

	providesTar, err := b.Runner.CopyOutFromHome(ctx, envName, "provides.tar")
	if err != nil {
		b.recordAttempt(ctx, identity, history.Failed, sourceHash, buildStarted, "missing provides.tar")
		return model.BuiltArtifact{}, &cubicleerr.MissingArtifact{Name: identity}
	}
	defer providesTar.Close()

	builtAt := b.now()
	if err := b.Store.SaveArtifact(identity, providesTar, builtAt, sourceHash); err != nil {
		return model.BuiltArtifact{}, err
	}

	artifact, err := b.Store.LoadArtifact(identity)
	if err != nil {
		return model.BuiltArtifact{}, err
	}

	if def.TestScript != "" && !opts.SkipTest {
		if err := b.runTest(ctx, ref, def, order, runtimeMembers); err != nil {
			b.recordAttempt(ctx, identity, history.TestFailed, sourceHash, buildStarted, err.Error())
			return artifact, err
		}
	}

	b.recordAttempt(ctx, identity, history.Succeeded, sourceHash, buildStarted, "")
	return artifact, nil
}

// runTest executes step 6: test.sh runs in a clean environment seeded
// with the package's runtime dependencies plus its own provides.tar
// and its source directory excluding build.sh. The environment is
// purged afterward regardless of outcome; a cached provides.tar from
// the build above is not affected by test failure (idempotence, §4.5
// failure semantics).
func (b *Builder) runTest(ctx context.Context, ref model.PackageRef, def model.Definition, order []string, runtimeMembers map[string]bool) error {
	identity := ref.Identity()
	envName := testEnvName(identity)
	_ = b.Runner.Purge(ctx, envName) // start from a known-clean slate

	var runtimeOnly []string
	for _, id := range order {
		if runtimeMembers[id] {
			runtimeOnly = append(runtimeOnly, id)
		}
	}
	runtimeOnly = append(runtimeOnly, identity)

	seed, err := b.seedArchive(runtimeOnly)
	if err != nil {
		return err
	}
	if err := b.Runner.Create(ctx, envName, seed); err != nil {
		return &cubicleerr.RunnerError{Kind: "create-test-env", Err: err}
	}
	defer b.Runner.Purge(ctx, envName)

	var sourceTar bytes.Buffer
	if err := archive.CreateTarExcept(def.SourceDir, &sourceTar, "build.sh"); err != nil {
		return &cubicleerr.IOError{Path: def.SourceDir, Err: err}
	}
	if err := b.Runner.SeedWork(ctx, envName, &sourceTar); err != nil {
		return &cubicleerr.RunnerError{Kind: "seed-work-test", Err: err}
	}

	exitCode, err := b.Runner.Run(ctx, envName, runner.Command{Argv: []string{def.TestScript}})
	if err != nil {
		return &cubicleerr.RunnerError{Kind: "run-test", Err: err}
	}
	if exitCode != 0 {
		return &cubicleerr.TestFailed{Name: identity, ExitCode: exitCode}
	}
	return nil
}

// seedArchive concatenates the cached provides.tar of every identity
// in order (dependency order) into a single gzip stream suitable for
// Runner.Create/ResetHome.
func (b *Builder) seedArchive(order []string) (io.Reader, error) {
	var readers []io.Reader
	var closers []io.Closer
	for _, id := range order {
		f, err := os.Open(b.Store.ProvidesTarPath(id))
		if err != nil {
			if os.IsNotExist(err) {
				continue // a dependency with no build script produces no artifact
			}
			return nil, &cubicleerr.IOError{Path: b.Store.ProvidesTarPath(id), Err: err}
		}
		readers = append(readers, f)
		closers = append(closers, f)
	}
	var buf bytes.Buffer
	if err := archive.GzipSeed(&buf, readers); err != nil {
		for _, c := range closers {
			c.Close()
		}
		return nil, &cubicleerr.IOError{Path: "seed archive", Err: err}
	}
	for _, c := range closers {
		c.Close()
	}
	return &buf, nil
}
