// Package store implements the on-disk layout of §4.7: environment
// home/work directories, user-supplied package sources, the
// per-package artifact cache, and the advisory locks that serialize
// concurrent invocations. Every mutating write goes through
// writeFileAtomic (write-to-tempfile-then-rename), and every lock is
// released by the caller via the returned Unlock closure.
package store

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ongardie/cubicle/internal/cubicleerr"
	"github.com/ongardie/cubicle/internal/model"
)

// Store roots the on-disk layout at a cache directory (ephemeral:
// home directories and the artifact cache) and a data directory
// (durable: work directories and user-supplied package sources).
type Store struct {
	CacheDir string
	DataDir  string
}

// New returns a Store rooted at the given base directories, matching
// XDG-style separation between $XDG_CACHE_HOME and $XDG_DATA_HOME
// (or their platform equivalents) that the caller has already
// resolved.
func New(cacheDir, dataDir string) *Store {
	return &Store{CacheDir: cacheDir, DataDir: dataDir}
}

func (s *Store) HomeDir(name model.EnvironmentName) string {
	return filepath.Join(s.CacheDir, "cubicle", "home", string(name))
}

func (s *Store) WorkDir(name model.EnvironmentName) string {
	return filepath.Join(s.DataDir, "cubicle", "work", string(name))
}

func (s *Store) PackagesTxtPath(name model.EnvironmentName) string {
	return filepath.Join(s.WorkDir(name), "packages.txt")
}

// UserPackagesDir returns the directory under which users lay out
// their own local search roots, e.g. <data>/cubicle/packages/00local.
func (s *Store) UserPackagesDir() string {
	return filepath.Join(s.DataDir, "cubicle", "packages")
}

func (s *Store) packageCacheDir(identity string) string {
	return filepath.Join(s.CacheDir, "cubicle", "package.cache", identity)
}

func (s *Store) ProvidesTarPath(identity string) string {
	return filepath.Join(s.packageCacheDir(identity), "provides.tar")
}

func (s *Store) builtAtPath(identity string) string {
	return filepath.Join(s.packageCacheDir(identity), "built_at")
}

func (s *Store) sourceHashPath(identity string) string {
	return filepath.Join(s.packageCacheDir(identity), "source_hash")
}

// LoadArtifact reads the cached artifact metadata for a package
// identity. It returns a zero-value artifact and no error when
// nothing has been cached yet (built_at absent).
func (s *Store) LoadArtifact(identity string) (model.BuiltArtifact, error) {
	builtAtRaw, err := os.ReadFile(s.builtAtPath(identity))
	if os.IsNotExist(err) {
		return model.BuiltArtifact{}, nil
	}
	if err != nil {
		return model.BuiltArtifact{}, &cubicleerr.IOError{Path: s.builtAtPath(identity), Err: err}
	}
	builtAt, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(string(builtAtRaw)))
	if err != nil {
		return model.BuiltArtifact{}, &cubicleerr.IOError{Path: s.builtAtPath(identity), Err: err}
	}

	hashRaw, err := os.ReadFile(s.sourceHashPath(identity))
	if err != nil && !os.IsNotExist(err) {
		return model.BuiltArtifact{}, &cubicleerr.IOError{Path: s.sourceHashPath(identity), Err: err}
	}

	return model.BuiltArtifact{
		ProvidesTarPath: s.ProvidesTarPath(identity),
		BuiltAt:         builtAt,
		SourceHash:      strings.TrimSpace(string(hashRaw)),
	}, nil
}

// SaveArtifact writes provides.tar (read fully from r), then
// built_at and source_hash, each via writeFileAtomic so a crash mid
// write never leaves a torn cache entry visible. provides.tar is
// written first and the two metadata files last, so a reader that
// observes built_at also observes a complete archive (§5: "cache
// writes become visible ... only after the rename that finalises
// them").
func (s *Store) SaveArtifact(identity string, r io.Reader, builtAt time.Time, sourceHash string) error {
	dir := s.packageCacheDir(identity)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &cubicleerr.IOError{Path: dir, Err: err}
	}

	tarPath := s.ProvidesTarPath(identity)
	if err := writeFileAtomic(tarPath, r); err != nil {
		return &cubicleerr.IOError{Path: tarPath, Err: err}
	}

	hashPath := s.sourceHashPath(identity)
	if err := writeFileAtomic(hashPath, strings.NewReader(sourceHash)); err != nil {
		return &cubicleerr.IOError{Path: hashPath, Err: err}
	}

	builtAtPath := s.builtAtPath(identity)
	if err := writeFileAtomic(builtAtPath, strings.NewReader(builtAt.UTC().Format(time.RFC3339Nano))); err != nil {
		return &cubicleerr.IOError{Path: builtAtPath, Err: err}
	}
	return nil
}

// ReadPackagesTxt returns the newline-separated package list last
// written for name, or nil if the file doesn't exist (a brand-new
// environment, or one whose work directory predates packages.txt).
func (s *Store) ReadPackagesTxt(name model.EnvironmentName) ([]string, error) {
	f, err := os.Open(s.PackagesTxtPath(name))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, &cubicleerr.IOError{Path: s.PackagesTxtPath(name), Err: err}
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			out = append(out, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &cubicleerr.IOError{Path: s.PackagesTxtPath(name), Err: err}
	}
	return out, nil
}

// WritePackagesTxt overwrites packages.txt with one package name per
// line, in the given order.
func (s *Store) WritePackagesTxt(name model.EnvironmentName, packages []string) error {
	if err := os.MkdirAll(s.WorkDir(name), 0o755); err != nil {
		return &cubicleerr.IOError{Path: s.WorkDir(name), Err: err}
	}
	content := strings.Join(packages, "\n")
	if len(packages) > 0 {
		content += "\n"
	}
	path := s.PackagesTxtPath(name)
	if err := writeFileAtomic(path, strings.NewReader(content)); err != nil {
		return &cubicleerr.IOError{Path: path, Err: err}
	}
	return nil
}

// ListEnvironments returns the names of every environment with a
// work directory, sorted lexicographically.
func (s *Store) ListEnvironments() ([]model.EnvironmentName, error) {
	base := filepath.Join(s.DataDir, "cubicle", "work")
	entries, err := os.ReadDir(base)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, &cubicleerr.IOError{Path: base, Err: err}
	}
	var names []model.EnvironmentName
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, model.EnvironmentName(e.Name()))
		}
	}
	return names, nil
}

// PurgeEnvironment removes an environment's home and work directories.
// It is idempotent: purging an environment that doesn't exist is not
// an error, matching §4.6.
func (s *Store) PurgeEnvironment(name model.EnvironmentName) error {
	if err := os.RemoveAll(s.HomeDir(name)); err != nil {
		return &cubicleerr.IOError{Path: s.HomeDir(name), Err: err}
	}
	if err := os.RemoveAll(s.WorkDir(name)); err != nil {
		return &cubicleerr.IOError{Path: s.WorkDir(name), Err: err}
	}
	return nil
}

// writeFileAtomic writes r's contents to a temp file beside path and
// renames it into place, so a crash mid-write never leaves a
// truncated file at path (§4.7's "writes must be crash-safe").
func writeFileAtomic(path string, r io.Reader) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// Unlock releases an advisory lock acquired by LockPackage or
// LockEnvironment.
type Unlock func() error

// LockPackage takes an exclusive advisory lock on a package's cache
// directory, serializing concurrent builds of the same identity
// (§4.5's at-most-one-concurrent-build invariant, §5). The lock is
// held for the lifetime of the returned Unlock.
func (s *Store) LockPackage(identity string) (Unlock, error) {
	dir := s.packageCacheDir(identity)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &cubicleerr.IOError{Path: dir, Err: err}
	}
	return flockPath(filepath.Join(dir, ".lock"))
}

// LockEnvironment takes an exclusive advisory lock on an
// environment's work directory, serializing composition and purge
// against the same name.
func (s *Store) LockEnvironment(name model.EnvironmentName) (Unlock, error) {
	dir := s.WorkDir(name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &cubicleerr.IOError{Path: dir, Err: err}
	}
	return flockPath(filepath.Join(dir, ".lock"))
}

// TrySessionLock attempts a non-blocking exclusive lock on an
// environment's session marker, used by `enter`/`exec` to hold the
// RUNNING state (§4.6) for the lifetime of the interactive session
// and by `reset`/`purge` to detect that state and refuse with
// cubicleerr.EnvBusy. Returns ok=false without error if another
// process already holds it.
func (s *Store) TrySessionLock(name model.EnvironmentName) (unlock Unlock, ok bool, err error) {
	dir := s.WorkDir(name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, false, &cubicleerr.IOError{Path: dir, Err: err}
	}
	path := filepath.Join(dir, ".session.lock")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, false, &cubicleerr.IOError{Path: path, Err: err}
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, false, nil
		}
		return nil, false, &cubicleerr.IOError{Path: path, Err: fmt.Errorf("flock: %w", err)}
	}
	return func() error {
		defer f.Close()
		return unix.Flock(int(f.Fd()), unix.LOCK_UN)
	}, true, nil
}

// IsSessionBusy reports whether an environment currently has a
// RUNNING session, by attempting and immediately releasing the
// non-blocking session lock.
func (s *Store) IsSessionBusy(name model.EnvironmentName) (bool, error) {
	unlock, ok, err := s.TrySessionLock(name)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	return false, unlock()
}

// flockPath opens (creating if needed) a lock file at path and takes
// an exclusive flock on it, in the manner of bottle's sandbox
// lifecycle locks: a plain golang.org/x/sys/unix.Flock rather than a
// higher-level file-locking library, since the pack carries x/sys
// already and no example repo reaches for a dedicated flock package.
func flockPath(path string) (Unlock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, &cubicleerr.IOError{Path: path, Err: err}
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, &cubicleerr.IOError{Path: path, Err: fmt.Errorf("flock: %w", err)}
	}
	return func() error {
		defer f.Close()
		return unix.Flock(int(f.Fd()), unix.LOCK_UN)
	}, nil
}
