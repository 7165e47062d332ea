// Package cubicle wires the source index, resolver, oracle-driven
// builder, environment composer, state store, config, and history log
// into the single entry point cmd/cubicle drives. It mirrors the
// teacher's BuildService: one struct constructed once at process
// startup, holding every collaborator as an interface or concrete
// dependency, with every operation a plain method on it.
package cubicle

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ongardie/cubicle/internal/builder"
	"github.com/ongardie/cubicle/internal/composer"
	"github.com/ongardie/cubicle/internal/config"
	"github.com/ongardie/cubicle/internal/cubicleerr"
	"github.com/ongardie/cubicle/internal/history"
	"github.com/ongardie/cubicle/internal/index"
	"github.com/ongardie/cubicle/internal/logging"
	"github.com/ongardie/cubicle/internal/model"
	"github.com/ongardie/cubicle/internal/resolver"
	"github.com/ongardie/cubicle/internal/runner"
	"github.com/ongardie/cubicle/internal/runner/nsrunner"
	"github.com/ongardie/cubicle/internal/runner/ociunavailable"
	"github.com/ongardie/cubicle/internal/runner/useraccountunavailable"
	"github.com/ongardie/cubicle/internal/store"
)

// Dirs are the resolved filesystem roots the rest of cubicle is built
// on: a cache root (ephemeral: home dirs, package artifact cache), a
// data root (durable: work dirs, user package overrides, history), and
// the built-in package search root shipped with the binary.
type Dirs struct {
	CacheDir  string
	DataDir   string
	BuiltinPackageDir string
}

// Cubicle is the assembled application, analogous to the teacher's
// BuildService: every core collaborator is constructed once here and
// reused across command invocations within a process.
type Cubicle struct {
	Config   config.Config
	Store    *store.Store
	Index    *index.Index
	Resolver *resolver.Resolver
	Builder  *builder.Builder
	Composer *composer.Composer
	History  *history.Store
	Runner   runner.Runner
	Logger   *slog.Logger
}

// Open loads configuration, scans the package index, selects a
// Runner, and assembles every core collaborator. The caller owns the
// returned Cubicle's lifetime and must call Close when done (to
// release the history database).
func Open(ctx context.Context, dirs Dirs, configPath string, logger *slog.Logger) (*Cubicle, error) {
	logger = logging.Ensure(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	roots := []index.Root{
		{Path: filepath.Join(dirs.DataDir, "cubicle", "packages", "00local"), Name: "00local"},
	}
	builtin := dirs.BuiltinPackageDir
	if cfg.BuiltinPackageDir != "" {
		builtin = cfg.BuiltinPackageDir
	}
	if builtin != "" {
		roots = append(roots, index.Root{Path: builtin, Name: "builtin", BuiltIn: true})
	}

	ix, err := index.Scan(roots)
	if err != nil {
		return nil, err
	}

	st := store.New(dirs.CacheDir, dirs.DataDir)

	threshold, err := config.ParseThreshold(cfg.AutoUpdate)
	if err != nil {
		return nil, fmt.Errorf("auto_update: %w", err)
	}

	rnr, err := selectRunner(cfg, dirs)
	if err != nil {
		return nil, err
	}

	hist, err := history.Open(filepath.Join(dirs.DataDir, "cubicle", "history.db"))
	if err != nil {
		logger.Warn("build history log unavailable", "error", err)
		hist = nil
	}

	res := resolver.New(ix)
	b := &builder.Builder{
		Index:     ix,
		Resolver:  res,
		Store:     st,
		Runner:    rnr,
		History:   hist,
		Threshold: threshold,
	}
	comp := &composer.Composer{
		Index:    ix,
		Resolver: res,
		Store:    st,
		Runner:   rnr,
		Builder:  b,
	}

	return &Cubicle{
		Config:   cfg,
		Store:    st,
		Index:    ix,
		Resolver: res,
		Builder:  b,
		Composer: comp,
		History:  hist,
		Runner:   rnr,
		Logger:   logger,
	}, nil
}

func (c *Cubicle) Close() error {
	return c.History.Close()
}

func selectRunner(cfg config.Config, dirs Dirs) (runner.Runner, error) {
	switch cfg.Runner {
	case "", "nsrunner":
		return nsrunner.New(dirs.CacheDir, dirs.DataDir), nil
	case "oci":
		return ociunavailable.New(), nil
	case "useraccount":
		return useraccountunavailable.New(), nil
	default:
		return nil, fmt.Errorf("unknown runner %q", cfg.Runner)
	}
}

// ListPackages returns every visible package definition, sorted by
// name (§4.2, §8 property 1), for `cub package list`.
func (c *Cubicle) ListPackages() []model.Definition {
	return c.Index.List()
}

// ListEnvironments returns every environment name known to the state
// store together with its current state, for `cub list`.
func (c *Cubicle) ListEnvironments(ctx context.Context) ([]model.TargetEnvironment, error) {
	names, err := c.Store.ListEnvironments()
	if err != nil {
		return nil, err
	}
	out := make([]model.TargetEnvironment, 0, len(names))
	for _, name := range names {
		env, err := c.describeQuick(ctx, name)
		if err != nil {
			return nil, err
		}
		out = append(out, env)
	}
	return out, nil
}

func (c *Cubicle) describeQuick(ctx context.Context, name model.EnvironmentName) (model.TargetEnvironment, error) {
	packages, err := c.Store.ReadPackagesTxt(name)
	if err != nil {
		return model.TargetEnvironment{}, err
	}
	state := model.EnvHealthy
	exists, err := c.Runner.Exists(ctx, name)
	if err == nil && exists == runner.NoEnvironment {
		state = model.EnvAbsent
	}
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

// UpdatePackage rebuilds a single package unconditionally, for `cub
// package update NAME`. By default it first rebuilds any dependency
// the oracle judges stale, in topological order, the same as a normal
// composition would; skipDeps narrows that to only the dependencies
// that have never been built successfully at all, matching the
// original's "only build dependencies if strictly needed" contract.
func (c *Cubicle) UpdatePackage(ctx context.Context, ref model.PackageRef, skipDeps bool) (model.BuiltArtifact, error) {
	order, _, err := c.Resolver.BuilderSeed(ref)
	if err != nil {
		return model.BuiltArtifact{}, err
	}
	for _, depID := range order {
		if skipDeps {
			artifact, err := c.Store.LoadArtifact(depID)
			if err != nil {
				return model.BuiltArtifact{}, err
			}
			if artifact.Fresh() {
				continue
			}
		}
		if _, err := c.Builder.Build(ctx, model.ParseRef(depID), builder.Options{}); err != nil {
			return model.BuiltArtifact{}, err
		}
	}
	return c.Builder.Build(ctx, ref, builder.Options{Force: true})
}

// PackageHistory returns the most recent recorded build attempts for
// a package identity, for `cub package history NAME`. Returns nil,
// nil when the history log is unavailable rather than erroring, since
// history is purely additive introspection (SPEC_FULL.md).
func (c *Cubicle) PackageHistory(ctx context.Context, identity string, limit int) ([]history.Attempt, error) {
	if c.History == nil {
		return nil, nil
	}
	return c.History.Recent(ctx, identity, limit)
}

// EnterSession holds the RUNNING-state session lock for the duration
// of fn, which is expected to run an interactive or one-shot command
// inside the environment via the Runner. Refuses with
// cubicleerr.EnvBusy if another process already holds the lock.
func (c *Cubicle) EnterSession(ctx context.Context, name model.EnvironmentName, fn func(ctx context.Context) error) error {
	unlock, ok, err := c.Store.TrySessionLock(name)
	if err != nil {
		return err
	}
	if !ok {
		return &cubicleerr.EnvBusy{Name: string(name)}
	}
	defer unlock()
	return fn(ctx)
}

// DefaultDirs resolves cache/data roots the way a real installation
// would: $XDG_CACHE_HOME/$XDG_DATA_HOME when set, otherwise
// ~/.cache and ~/.local/share, matching the XDG layout §4.7 assumes.
func DefaultDirs(builtinPackageDir string) (Dirs, error) {
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	dataDir := os.Getenv("XDG_DATA_HOME")
	if cacheDir == "" || dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Dirs{}, err
		}
		if cacheDir == "" {
			cacheDir = filepath.Join(home, ".cache")
		}
		if dataDir == "" {
			dataDir = filepath.Join(home, ".local", "share")
		}
	}
	return Dirs{CacheDir: cacheDir, DataDir: dataDir, BuiltinPackageDir: builtinPackageDir}, nil
}

// DefaultConfigPath returns the conventional configuration file
// location, $XDG_CONFIG_HOME/cubicle/cubicle.yaml or its fallback.
func DefaultConfigPath() (string, error) {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "cubicle", "cubicle.yaml"), nil
}
