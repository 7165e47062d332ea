// Package nsrunner implements the default Runner: a shared-root
// lightweight container that isolates each sandbox's network with its
// own network namespace (github.com/vishvananda/netlink and
// github.com/vishvananda/netns), keeps home under the cache root and
// work under the data root using the same layout store.Store computes,
// executes build/test scripts through an in-process POSIX shell
// interpreter (mvdan.cc/sh/v3, in the style of invowk's VirtualRuntime),
// and backs interactive sessions with a pty (github.com/creack/pty). It
// is grounded on bottle's networking setup (originally used to wire VMs
// into a lab network; repurposed here to give each sandbox its own
// loopback-only namespace) and its libvirt_adapter.go lifecycle shape
// (create, exists, run, copy artifacts out, purge, list).
package nsrunner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"syscall"

	"github.com/creack/pty"
	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/ongardie/cubicle/internal/archive"
	"github.com/ongardie/cubicle/internal/cubicleerr"
	"github.com/ongardie/cubicle/internal/model"
	"github.com/ongardie/cubicle/internal/runner"
)

// Runner is the namespace-isolated sandbox backend. CacheDir and
// DataDir are the same roots store.Store uses, so a sandbox's home and
// work directories live at the paths §4.7 mandates
// (<cache>/cubicle/home/<env>, <data>/cubicle/work/<env>) rather than
// in a private tree. NamespacePrefix names the per-sandbox network
// namespaces it creates.
type Runner struct {
	CacheDir        string
	DataDir         string
	NamespacePrefix string

	mu sync.Mutex
}

// New constructs a Runner using the given cache and data roots, the
// same ones passed to store.New.
func New(cacheDir, dataDir string) *Runner {
	return &Runner{CacheDir: cacheDir, DataDir: dataDir, NamespacePrefix: "cub-"}
}

func (r *Runner) homeDir(name model.EnvironmentName) string {
	return filepath.Join(r.CacheDir, "cubicle", "home", string(name))
}

func (r *Runner) workDir(name model.EnvironmentName) string {
	return filepath.Join(r.DataDir, "cubicle", "work", string(name))
}

func (r *Runner) nsName(name model.EnvironmentName) string {
	// Network namespace names live in a flat /var/run/netns
	// namespace shared with the whole host; slashes and dots in a
	// namespaced package identity (e.g. "crates-io.ripgrep") aren't
	// valid there, so they're folded to hyphens.
	safe := strings.NewReplacer(".", "-", "/", "-").Replace(string(name))
	return r.NamespacePrefix + safe
}

func (r *Runner) Create(_ context.Context, name model.EnvironmentName, seedHome io.Reader) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := os.Stat(r.homeDir(name)); err == nil {
		return wrap("create", fmt.Errorf("sandbox already exists: %s", name))
	}
	if _, err := os.Stat(r.workDir(name)); err == nil {
		return wrap("create", fmt.Errorf("sandbox already exists: %s", name))
	}

	if err := os.MkdirAll(r.homeDir(name), 0o755); err != nil {
		return wrap("create", err)
	}
	if err := os.MkdirAll(r.workDir(name), 0o755); err != nil {
		return wrap("create", err)
	}
	if err := os.Symlink(r.workDir(name), filepath.Join(r.homeDir(name), "w")); err != nil && !os.IsExist(err) {
		return wrap("create", err)
	}
	if err := ensureNamespace(r.nsName(name)); err != nil {
		return wrap("create", fmt.Errorf("network namespace for %s: %w", name, err))
	}
	if seedHome != nil {
		if err := extractSeed(seedHome, r.homeDir(name)); err != nil {
			return wrap("create", err)
		}
	}
	return nil
}

func (r *Runner) SeedWork(_ context.Context, name model.EnvironmentName, a io.Reader) error {
	if _, err := os.Stat(r.workDir(name)); err != nil {
		return wrap("seed-work", fmt.Errorf("no such sandbox: %s", name))
	}
	return wrap("seed-work", extractSeed(a, r.workDir(name)))
}

func (r *Runner) Exists(_ context.Context, name model.EnvironmentName) (runner.Exists, error) {
	_, homeErr := os.Stat(r.homeDir(name))
	_, workErr := os.Stat(r.workDir(name))
	switch {
	case homeErr == nil && workErr == nil:
		return runner.FullyExists, nil
	case homeErr == nil || workErr == nil:
		return runner.PartiallyExists, nil
	default:
		return runner.NoEnvironment, nil
	}
}

// Run executes cmd inside the sandbox's network namespace with the
// work directory as the process's current directory. Namespace
// switches require locking the calling goroutine to its OS thread, so
// this always runs on a dedicated locked thread and restores the
// caller's namespace before returning (netns's documented usage
// pattern).
func (r *Runner) Run(ctx context.Context, name model.EnvironmentName, cmd runner.Command) (int, error) {
	if cmd.Interactive {
		return r.runInteractive(ctx, name, cmd)
	}
	if len(cmd.Argv) == 0 {
		return 0, nil
	}

	type result struct {
		code int
		err  error
	}
	done := make(chan result, 1)

	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		restore, err := enterNamespace(r.nsName(name))
		if err != nil {
			done <- result{-1, err}
			return
		}
		defer restore()

		dir := r.workDir(name)
		env := sandboxEnv(name, r.homeDir(name), cmd.Env)

		if strings.HasSuffix(cmd.Argv[0], ".sh") {
			code, err := runShellScript(ctx, cmd.Argv[0], cmd.Argv[1:], dir, env, cmd.Stdin, cmd.Stdout, cmd.Stderr)
			done <- result{code, err}
			return
		}

		c := exec.CommandContext(ctx, cmd.Argv[0], cmd.Argv[1:]...)
		c.Dir = dir
		c.Stdin = cmd.Stdin
		c.Stdout = cmd.Stdout
		c.Stderr = cmd.Stderr
		c.Env = env

		runErr := c.Run()
		if runErr == nil {
			done <- result{0, nil}
			return
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			done <- result{exitErr.ExitCode(), nil}
			return
		}
		done <- result{-1, runErr}
	}()

	res := <-done
	return res.code, res.err
}

// runShellScript interprets a build/test script in-process with
// mvdan.cc/sh/v3 rather than shelling out to /bin/sh. External commands
// the script invokes (e.g. package manager calls) still fork normally,
// inheriting the namespace this goroutine is already switched into.
func runShellScript(ctx context.Context, path string, args []string, dir string, env []string, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return -1, err
	}
	defer f.Close()

	file, err := syntax.NewParser().Parse(f, filepath.Base(path))
	if err != nil {
		return -1, fmt.Errorf("parse %s: %w", path, err)
	}

	if stdin == nil {
		stdin = strings.NewReader("")
	}
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	shRunner, err := interp.New(
		interp.Dir(dir),
		interp.Env(expand.ListEnviron(env...)),
		interp.StdIO(stdin, stdout, stderr),
		interp.Params(args...),
	)
	if err != nil {
		return -1, fmt.Errorf("build shell interpreter: %w", err)
	}

	runErr := shRunner.Run(ctx, file)
	if runErr == nil {
		return 0, nil
	}
	var exitStatus interp.ExitStatus
	if errors.As(runErr, &exitStatus) {
		return int(exitStatus), nil
	}
	return -1, runErr
}

// runInteractive backs `cub enter`: a pty-connected shell inside the
// sandbox's namespace, streaming until the process exits or ctx is
// canceled.
func (r *Runner) runInteractive(ctx context.Context, name model.EnvironmentName, cmd runner.Command) (int, error) {
	argv := cmd.Argv
	if len(argv) == 0 {
		argv = []string{"/bin/sh", "-l"}
	}

	type result struct {
		code int
		err  error
	}
	done := make(chan result, 1)

	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		restore, err := enterNamespace(r.nsName(name))
		if err != nil {
			done <- result{-1, err}
			return
		}
		defer restore()

		c := exec.Command(argv[0], argv[1:]...)
		c.Dir = r.workDir(name)
		c.Env = sandboxEnv(name, r.homeDir(name), cmd.Env)

		ptmx, err := pty.Start(c)
		if err != nil {
			done <- result{-1, err}
			return
		}
		defer ptmx.Close()

		var copyWG sync.WaitGroup
		if cmd.Stdin != nil {
			copyWG.Add(1)
			go func() {
				defer copyWG.Done()
				io.Copy(ptmx, cmd.Stdin)
			}()
		}
		if cmd.Stdout != nil {
			copyWG.Add(1)
			go func() {
				defer copyWG.Done()
				io.Copy(cmd.Stdout, ptmx)
			}()
		}

		go func() {
			<-ctx.Done()
			_ = c.Process.Kill()
		}()

		waitErr := c.Wait()
		copyWG.Wait()

		if waitErr == nil {
			done <- result{0, nil}
			return
		}
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			done <- result{exitErr.ExitCode(), nil}
			return
		}
		done <- result{-1, waitErr}
	}()

	res := <-done
	return res.code, res.err
}

func (r *Runner) CopyOutFromHome(_ context.Context, name model.EnvironmentName, relPath string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(r.homeDir(name), relPath))
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (r *Runner) ResetHome(_ context.Context, name model.EnvironmentName, seedHome io.Reader) error {
	home := r.homeDir(name)
	if err := os.RemoveAll(home); err != nil {
		return wrap("reset-home", err)
	}
	if err := os.MkdirAll(home, 0o755); err != nil {
		return wrap("reset-home", err)
	}
	if err := os.Symlink(r.workDir(name), filepath.Join(home, "w")); err != nil && !os.IsExist(err) {
		return wrap("reset-home", err)
	}
	if seedHome != nil {
		return wrap("reset-home", extractSeed(seedHome, home))
	}
	return nil
}

func (r *Runner) RemoveHome(_ context.Context, name model.EnvironmentName) error {
	return wrap("remove-home", os.RemoveAll(r.homeDir(name)))
}

func (r *Runner) Purge(_ context.Context, name model.EnvironmentName) error {
	if err := deleteNamespace(r.nsName(name)); err != nil && !os.IsNotExist(err) {
		return wrap("purge", err)
	}
	if err := os.RemoveAll(r.homeDir(name)); err != nil {
		return wrap("purge", err)
	}
	return wrap("purge", os.RemoveAll(r.workDir(name)))
}

// List enumerates sandboxes by their work directories, mirroring
// store.Store.ListEnvironments's convention of treating the durable
// work root as the canonical source of environment identities.
func (r *Runner) List(_ context.Context, prefix string) ([]model.EnvironmentName, error) {
	base := filepath.Join(r.DataDir, "cubicle", "work")
	entries, err := os.ReadDir(base)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []model.EnvironmentName
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), prefix) {
			out = append(out, model.EnvironmentName(e.Name()))
		}
	}
	return out, nil
}

// sandboxEnv layers the conventional cubicle environment variables
// (§6) on top of the caller-supplied ones and a minimal safe PATH.
func sandboxEnv(name model.EnvironmentName, home string, extra map[string]string) []string {
	env := []string{
		"HOME=" + home,
		"CUBICLE=" + string(name),
		"SANDBOX=" + string(name),
		"TMPDIR=" + filepath.Join(home, "tmp"),
		"PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin",
	}
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	return env
}

// ensureNamespace creates a named, persistent network namespace with
// its loopback interface up, if one doesn't already exist. Grounded
// on bottle's ensureNetns/configureNamespaceLinks.
func ensureNamespace(name string) error {
	ns, err := netns.GetFromName(name)
	if err == nil {
		ns.Close()
		return nil
	}
	if !os.IsNotExist(err) && !errors.Is(err, syscall.ENOENT) {
		return err
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	origin, err := netns.Get()
	if err != nil {
		return fmt.Errorf("save current namespace: %w", err)
	}
	defer func() {
		_ = netns.Set(origin)
		origin.Close()
	}()

	newNS, err := netns.NewNamed(name)
	if err != nil {
		return fmt.Errorf("create namespace %s: %w", name, err)
	}
	defer newNS.Close()

	lo, err := netlink.LinkByName("lo")
	if err != nil {
		return fmt.Errorf("lookup lo in %s: %w", name, err)
	}
	if err := netlink.LinkSetUp(lo); err != nil {
		return fmt.Errorf("bring up lo in %s: %w", name, err)
	}
	return nil
}

// enterNamespace switches the calling (already thread-locked)
// goroutine into the named namespace and returns a function that
// restores the previous one.
func enterNamespace(name string) (func(), error) {
	origin, err := netns.Get()
	if err != nil {
		return nil, fmt.Errorf("save current namespace: %w", err)
	}
	target, err := netns.GetFromName(name)
	if err != nil {
		origin.Close()
		return nil, fmt.Errorf("open namespace %s: %w", name, err)
	}
	defer target.Close()

	if err := netns.Set(target); err != nil {
		origin.Close()
		return nil, fmt.Errorf("enter namespace %s: %w", name, err)
	}
	return func() {
		_ = netns.Set(origin)
		origin.Close()
	}, nil
}

func deleteNamespace(name string) error {
	return netns.DeleteNamed(name)
}

func wrap(kind string, err error) error {
	if err == nil {
		return nil
	}
	return &cubicleerr.RunnerError{Kind: kind, Err: err}
}

func extractSeed(r io.Reader, dest string) error {
	peek := make([]byte, 2)
	n, err := io.ReadFull(r, peek)
	rest := io.MultiReader(sliceReader(peek[:n]), r)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return err
	}
	if n == 2 && peek[0] == 0x1f && peek[1] == 0x8b {
		return archive.UngzipSeed(rest, dest)
	}
	return archive.ExtractTar(rest, dest)
}

type sliceReader []byte

func (s sliceReader) Read(p []byte) (int, error) {
	n := copy(p, s)
	if n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return n, nil
}
