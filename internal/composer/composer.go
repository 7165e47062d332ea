// Package composer implements the environment composer (§4.6): the
// ABSENT → HEALTHY → RUNNING state machine that creates and resets
// target environments by unpacking selected packages' provides
// archives into a fresh home while leaving the work directory alone.
package composer

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/ongardie/cubicle/internal/archive"
	"github.com/ongardie/cubicle/internal/builder"
	"github.com/ongardie/cubicle/internal/cubicleerr"
	"github.com/ongardie/cubicle/internal/index"
	"github.com/ongardie/cubicle/internal/model"
	"github.com/ongardie/cubicle/internal/randname"
	"github.com/ongardie/cubicle/internal/resolver"
	"github.com/ongardie/cubicle/internal/runner"
	"github.com/ongardie/cubicle/internal/store"
)

// Composer drives target environment lifecycle transitions.
type Composer struct {
	Index    *index.Index
	Resolver *resolver.Resolver
	Store    *store.Store
	Runner   runner.Runner
	Builder  *builder.Builder
}

// devInitDirs are the conventional scratch directories the standard
// init sequence ensures exist inside home (§4.6 step 1). "w" is
// deliberately absent: it is a Runner-managed symlink to the durable
// work directory, not a plain directory the init sequence creates.
var devInitDirs = []string{".dev-init", "bin", "opt", "tmp"}

// New creates a fresh environment named name from refs, resolved in
// interactive mode. name must not already exist.
func (c *Composer) New(ctx context.Context, name model.EnvironmentName, refs []model.PackageRef) (model.TargetEnvironment, error) {
	unlock, err := c.Store.LockEnvironment(name)
	if err != nil {
		return model.TargetEnvironment{}, err
	}
	defer unlock()

	exists, err := c.Runner.Exists(ctx, name)
	if err != nil {
		return model.TargetEnvironment{}, &cubicleerr.RunnerError{Kind: "exists", Err: err}
	}
	if exists != runner.NoEnvironment {
		return model.TargetEnvironment{}, &cubicleerr.EnvAlreadyExists{Name: string(name)}
	}

	_, plan, err := c.Resolver.Resolve(refs, model.ModeInteractive)
	if err != nil {
		return model.TargetEnvironment{}, err
	}

	if err := c.buildAll(ctx, plan); err != nil {
		return model.TargetEnvironment{}, err
	}

	packages := refStrings(refs)
	if err := c.Store.WritePackagesTxt(name, packages); err != nil {
		return model.TargetEnvironment{}, err
	}

	seedHome, err := c.seedFromRuntime(plan.Runtime)
	if err != nil {
		return model.TargetEnvironment{}, err
	}
	if err := c.Runner.Create(ctx, name, seedHome); err != nil {
		return model.TargetEnvironment{}, &cubicleerr.RunnerError{Kind: "create", Err: err}
	}

	if err := c.runInitSequence(ctx, name); err != nil {
		return model.TargetEnvironment{}, err
	}

	return c.describe(ctx, name)
}

// Reset recomposes name's home from refs (or, if refs is nil, from
// the packages.txt written by the previous new/reset). The work
// directory is preserved byte-for-byte.
func (c *Composer) Reset(ctx context.Context, name model.EnvironmentName, refs []model.PackageRef) (model.TargetEnvironment, error) {
	unlock, err := c.Store.LockEnvironment(name)
	if err != nil {
		return model.TargetEnvironment{}, err
	}
	defer unlock()

	busy, err := c.Store.IsSessionBusy(name)
	if err != nil {
		return model.TargetEnvironment{}, err
	}
	if busy {
		return model.TargetEnvironment{}, &cubicleerr.EnvBusy{Name: string(name)}
	}

	exists, err := c.Runner.Exists(ctx, name)
	if err != nil {
		return model.TargetEnvironment{}, &cubicleerr.RunnerError{Kind: "exists", Err: err}
	}
	if exists == runner.NoEnvironment {
		return model.TargetEnvironment{}, &cubicleerr.NoSuchEnv{Name: string(name)}
	}

	if refs == nil {
		raw, err := c.Store.ReadPackagesTxt(name)
		if err != nil {
			return model.TargetEnvironment{}, err
		}
		for _, r := range raw {
			refs = append(refs, model.ParseRef(r))
		}
	}

	_, plan, err := c.Resolver.Resolve(refs, model.ModeInteractive)
	if err != nil {
		return model.TargetEnvironment{}, err
	}

	if err := c.buildAll(ctx, plan); err != nil {
		return model.TargetEnvironment{}, err
	}

	if err := c.Store.WritePackagesTxt(name, refStrings(refs)); err != nil {
		return model.TargetEnvironment{}, err
	}

	seedHome, err := c.seedFromRuntime(plan.Runtime)
	if err != nil {
		return model.TargetEnvironment{}, err
	}
	if err := c.Runner.ResetHome(ctx, name, seedHome); err != nil {
		return model.TargetEnvironment{}, &cubicleerr.RunnerError{Kind: "reset-home", Err: err}
	}

	if err := c.runInitSequence(ctx, name); err != nil {
		return model.TargetEnvironment{}, err
	}

	return c.describe(ctx, name)
}

// ResetClean removes an environment's home directory without
// recreating it, leaving the environment partially existing (work and
// packages.txt untouched) until the next New or Reset. Backs `cub
// reset --clean`.
func (c *Composer) ResetClean(ctx context.Context, name model.EnvironmentName) error {
	unlock, err := c.Store.LockEnvironment(name)
	if err != nil {
		return err
	}
	defer unlock()

	busy, err := c.Store.IsSessionBusy(name)
	if err != nil {
		return err
	}
	if busy {
		return &cubicleerr.EnvBusy{Name: string(name)}
	}

	exists, err := c.Runner.Exists(ctx, name)
	if err != nil {
		return &cubicleerr.RunnerError{Kind: "exists", Err: err}
	}
	if exists == runner.NoEnvironment {
		return &cubicleerr.NoSuchEnv{Name: string(name)}
	}

	if err := c.Runner.RemoveHome(ctx, name); err != nil {
		return &cubicleerr.RunnerError{Kind: "remove-home", Err: err}
	}
	return nil
}

// Tmp allocates a random unused name of the form tmp-<random> and
// creates it via New.
func (c *Composer) Tmp(ctx context.Context, refs []model.PackageRef) (model.TargetEnvironment, error) {
	var runnerErr error
	suffix, err := randname.Generate(func(candidate string) bool {
		exists, err := c.Runner.Exists(ctx, model.EnvironmentName("tmp-"+candidate))
		if err != nil {
			runnerErr = &cubicleerr.RunnerError{Kind: "exists", Err: err}
			return true // stop searching; runnerErr takes precedence below
		}
		return exists == runner.NoEnvironment
	})
	if runnerErr != nil {
		return model.TargetEnvironment{}, runnerErr
	}
	if err != nil {
		return model.TargetEnvironment{}, &cubicleerr.IOError{Path: "tmp-*", Err: err}
	}
	return c.New(ctx, model.EnvironmentName("tmp-"+suffix), refs)
}

// Purge deletes an environment's home, work, and sandbox. Idempotent:
// purging an absent environment is not an error. Refuses if the
// environment currently has a RUNNING session.
func (c *Composer) Purge(ctx context.Context, name model.EnvironmentName) error {
	busy, err := c.Store.IsSessionBusy(name)
	if err != nil {
		return err
	}
	if busy {
		return &cubicleerr.EnvBusy{Name: string(name)}
	}

	unlock, err := c.Store.LockEnvironment(name)
	if err != nil {
		return err
	}
	defer unlock()

	if err := c.Runner.Purge(ctx, name); err != nil {
		return &cubicleerr.RunnerError{Kind: "purge", Err: err}
	}
	return c.Store.PurgeEnvironment(name)
}

func (c *Composer) describe(ctx context.Context, name model.EnvironmentName) (model.TargetEnvironment, error) {
	packages, err := c.Store.ReadPackagesTxt(name)
	if err != nil {
		return model.TargetEnvironment{}, err
	}
	state := model.EnvHealthy
	if busy, err := c.Store.IsSessionBusy(name); err == nil && busy {
		state = model.EnvRunning
	}
	return model.TargetEnvironment{
		Name:     name,
		HomeDir:  c.Store.HomeDir(name),
		WorkDir:  c.Store.WorkDir(name),
		Packages: packages,
		State:    state,
	}, nil
}

// buildAll ensures every package in the build plan is Fresh,
// building in topological order so a dependent never builds before
// its dependencies (§8 property 2).
func (c *Composer) buildAll(ctx context.Context, plan *resolver.Plan) error {
	for _, identity := range plan.BuildOrder {
		ref := model.ParseRef(identity)
		if _, err := c.Builder.Build(ctx, ref, builder.Options{}); err != nil {
			return err
		}
	}
	return nil
}

// seedFromRuntime concatenates the runtime plan's cached provides.tar
// files, in dependency order, into a single gzip stream for the
// Runner. Later entries can overwrite earlier ones at the same path
// (archive.GzipSeed), so downstream packages shadow upstream ones.
func (c *Composer) seedFromRuntime(runtime []string) (*bytes.Buffer, error) {
	var readers []io.Reader
	var files []*os.File
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()

	for _, id := range runtime {
		f, err := os.Open(c.Store.ProvidesTarPath(id))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, &cubicleerr.IOError{Path: c.Store.ProvidesTarPath(id), Err: err}
		}
		files = append(files, f)
		readers = append(readers, f)
	}

	var buf bytes.Buffer
	if err := archive.GzipSeed(&buf, readers); err != nil {
		return nil, &cubicleerr.IOError{Path: "seed archive", Err: err}
	}
	return &buf, nil
}

func (c *Composer) runInitSequence(ctx context.Context, name model.EnvironmentName) error {
	script := initScript()
	exitCode, err := c.Runner.Run(ctx, name, runner.Command{Argv: []string{"/bin/sh", "-c", script}})
	if err != nil {
		return &cubicleerr.RunnerError{Kind: "init-sequence", Err: err}
	}
	if exitCode != 0 {
		return &cubicleerr.RunnerError{Kind: "init-sequence", Detail: "non-zero exit"}
	}
	return nil
}

// initScript is the standard init sequence (§4.6): ensure scratch
// directories, source .profile if present, run each .dev-init
// executable in lexicographic order, then run w/update.sh if present
// (failure there is reported but does not abort composition, per
// §9's resolution of the second open question).
func initScript() string {
	dirs := make([]string, len(devInitDirs))
	for i, d := range devInitDirs {
		dirs[i] = filepath.Join("$HOME", d)
	}
	return `set -e
mkdir -p ` + join(dirs) + `
if [ -f "$HOME/.profile" ]; then . "$HOME/.profile"; fi
if [ -d "$HOME/.dev-init" ]; then
  for f in "$HOME"/.dev-init/*; do
    [ -e "$f" ] || continue
    if [ -x "$f" ]; then "$f"; fi
  done
fi
if [ -x "$HOME/w/update.sh" ]; then
  "$HOME/w/update.sh" || echo "cubicle: warning: update.sh failed" >&2
fi
`
}

func join(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += " "
		}
		out += quote(p)
	}
	return out
}

func quote(s string) string {
	return "\"" + s + "\""
}

func refStrings(refs []model.PackageRef) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.String()
	}
	return out
}

