// Package index implements the package source index (§4.2): it
// discovers package definitions across ordered search roots, resolves
// name shadowing, and parses manifests.
package index

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/pelletier/go-toml/v2"

	"github.com/ongardie/cubicle/internal/model"
)

const (
	manifestFile = "package.toml"
	buildFile    = "build.sh"
	testFile     = "test.sh"
)

// Root is one search root: a local override directory or the
// built-in root. Local roots are searched in the order given; the
// built-in root is conventionally passed last.
type Root struct {
	Path    string
	Name    string // e.g. "00local", used only for diagnostics
	BuiltIn bool
}

// Index is the immutable result of scanning a set of search roots.
type Index struct {
	byName map[string]model.Definition
	names  []string // sorted, for deterministic List()
}

// Scan enumerates immediate subdirectories of each root in order.
// Each subdirectory becomes a candidate package named after the
// directory. The first occurrence of a name across roots wins; later
// occurrences are silently ignored (§4.2, invariant 5). A manifest
// parse failure aborts the whole scan with a diagnostic naming the
// file.
func Scan(roots []Root) (*Index, error) {
	ix := &Index{byName: make(map[string]model.Definition)}

	for rootIdx, root := range roots {
		entries, err := os.ReadDir(root.Path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("scan package root %s: %w", root.Path, err)
		}

		// Names within one root are distinct directory names, so this
		// sort does not decide precedence (only root order does); it
		// makes the scan order, and so error reporting, deterministic.
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			if e.IsDir() {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)

		for _, name := range names {
			if _, exists := ix.byName[name]; exists {
				continue // shadowed by an earlier root
			}

			dir := filepath.Join(root.Path, name)
			def, err := loadDefinition(dir, name, model.Origin{
				RootIndex: rootIdx,
				RootName:  root.Name,
				BuiltIn:   root.BuiltIn,
			})
			if err != nil {
				return nil, err
			}
			ix.byName[name] = def
			ix.names = append(ix.names, name)
		}
	}

	sort.Strings(ix.names)
	return ix, nil
}

func loadDefinition(dir, name string, origin model.Origin) (model.Definition, error) {
	def := model.Definition{
		Name:      name,
		SourceDir: dir,
		Origin:    origin,
	}

	manifestPath := filepath.Join(dir, manifestFile)
	data, err := os.ReadFile(manifestPath)
	switch {
	case err == nil:
		var m model.Manifest
		if err := toml.Unmarshal(data, &m); err != nil {
			return model.Definition{}, fmt.Errorf("parse manifest %s: %w", manifestPath, err)
		}
		def.Manifest = m
		def.IsPackageManager = m.PackageManager
	case os.IsNotExist(err):
		// An empty manifest is valid (§6).
	default:
		return model.Definition{}, fmt.Errorf("read manifest %s: %w", manifestPath, err)
	}

	if path := filepath.Join(dir, buildFile); isExecutable(path) {
		def.BuildScript = path
	}
	if path := filepath.Join(dir, testFile); isExecutable(path) {
		def.TestScript = path
	}

	return def, nil
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir() && info.Mode()&0o111 != 0
}

// Get returns the definition selected for name, if any.
func (ix *Index) Get(name string) (model.Definition, bool) {
	def, ok := ix.byName[name]
	return def, ok
}

// List returns every visible definition, sorted by name for
// determinism (§8, property 1).
func (ix *Index) List() []model.Definition {
	out := make([]model.Definition, 0, len(ix.names))
	for _, name := range ix.names {
		out = append(out, ix.byName[name])
	}
	return out
}

// Resolve looks up a fully qualified reference. A namespaced
// reference resolves to a synthetic parameterized definition derived
// from the named package-manager package plus the parameter (§3,
// §4.2).
func (ix *Index) Resolve(ref model.PackageRef) (model.Definition, error) {
	if !ref.Namespaced() {
		def, ok := ix.Get(ref.Name)
		if !ok {
			return model.Definition{}, &notFoundError{ref: ref.String()}
		}
		return def, nil
	}

	manager, ok := ix.Get(ref.Namespace)
	if !ok {
		return model.Definition{}, &notFoundError{ref: ref.String()}
	}
	if !manager.IsPackageManager {
		return model.Definition{}, fmt.Errorf("package %q is not a package manager, cannot resolve %q", ref.Namespace, ref.String())
	}

	synthetic := manager
	synthetic.Name = ref.String()
	synthetic.IsPackageManager = false // the parameterized instance is a leaf, not itself a generator
	return synthetic, nil
}

type notFoundError struct{ ref string }

func (e *notFoundError) Error() string { return fmt.Sprintf("no such package: %s", e.ref) }

// Ref returns the reference string an outer NoSuchPackage error
// should report.
func (e *notFoundError) Ref() string { return e.ref }
