package resolver

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/ongardie/cubicle/internal/cubicleerr"
	"github.com/ongardie/cubicle/internal/index"
	"github.com/ongardie/cubicle/internal/model"
)

// writePackage creates a package directory with the given depends and
// build_depends lists under root.
func writePackage(t *testing.T, root, name string, depends, buildDepends []string) {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	manifest := "depends = {" + joinTables(depends) + "}\nbuild_depends = {" + joinTables(buildDepends) + "}\n"
	if err := os.WriteFile(filepath.Join(dir, "package.toml"), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}
}

// joinTables renders names as a TOML inline table matching the manifest
// schema's depends/build_depends shape, e.g. `["a", "b"]` -> `a = {}, b = {}`.
func joinTables(items []string) string {
	out := ""
	for i, s := range items {
		if i > 0 {
			out += ", "
		}
		out += s + " = {}"
	}
	return out
}

func buildIndex(t *testing.T, defs map[string][]string) *index.Index {
	t.Helper()
	root := t.TempDir()
	for name, deps := range defs {
		writePackage(t, root, name, deps, nil)
	}
	ix, err := index.Scan([]index.Root{{Path: root, Name: "root"}})
	if err != nil {
		t.Fatal(err)
	}
	return ix
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func TestResolveLinearChain(t *testing.T) {
	ix := buildIndex(t, map[string][]string{
		"a": nil,
		"b": {"a"},
		"c": {"b"},
	})
	r := New(ix)

	_, plan, err := r.Resolve([]model.PackageRef{model.ParseRef("c")}, model.ModeInteractive)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(plan.BuildOrder, want) {
		t.Errorf("BuildOrder = %v, want %v", plan.BuildOrder, want)
	}
}

func TestResolveDeterministicTieBreak(t *testing.T) {
	// b and c both depend only on a, and are otherwise unordered:
	// the tie must always break lexicographically regardless of
	// request order.
	ix := buildIndex(t, map[string][]string{
		"a": nil,
		"b": {"a"},
		"c": {"a"},
	})
	r := New(ix)

	for i := 0; i < 5; i++ {
		_, plan, err := r.Resolve([]model.PackageRef{model.ParseRef("c"), model.ParseRef("b")}, model.ModeInteractive)
		if err != nil {
			t.Fatal(err)
		}
		want := []string{"a", "b", "c"}
		if !reflect.DeepEqual(plan.BuildOrder, want) {
			t.Fatalf("run %d: BuildOrder = %v, want %v", i, plan.BuildOrder, want)
		}
	}
}

func TestResolveCycleDetected(t *testing.T) {
	ix := buildIndex(t, map[string][]string{
		"a": {"b"},
		"b": {"a"},
	})
	r := New(ix)

	_, _, err := r.Resolve([]model.PackageRef{model.ParseRef("a")}, model.ModeInteractive)
	if _, ok := err.(*cubicleerr.CyclicDependency); !ok {
		t.Fatalf("expected *cubicleerr.CyclicDependency, got %T: %v", err, err)
	}
}

func TestResolveMissingDependency(t *testing.T) {
	ix := buildIndex(t, map[string][]string{
		"a": {"missing"},
	})
	r := New(ix)

	_, _, err := r.Resolve([]model.PackageRef{model.ParseRef("a")}, model.ModeInteractive)
	if _, ok := err.(*cubicleerr.NoSuchPackage); !ok {
		t.Fatalf("expected *cubicleerr.NoSuchPackage, got %T: %v", err, err)
	}
}

func TestResolveRuntimeExcludesBuildOnly(t *testing.T) {
	root := t.TempDir()
	writePackage(t, root, "leaf", nil, nil)
	writePackage(t, root, "buildonly", nil, nil)
	writePackage(t, root, "top", []string{"leaf"}, []string{"buildonly"})
	ix, err := index.Scan([]index.Root{{Path: root, Name: "root"}})
	if err != nil {
		t.Fatal(err)
	}
	r := New(ix)

	_, plan, err := r.Resolve([]model.PackageRef{model.ParseRef("top")}, model.ModeInteractive)
	if err != nil {
		t.Fatal(err)
	}
	if !contains(plan.BuildOrder, "buildonly") {
		t.Fatal("expected buildonly in BuildOrder")
	}
	if contains(plan.Runtime, "buildonly") {
		t.Fatal("build_depends-only package must not appear in Runtime")
	}
}

func TestBuilderSeedExcludesSelf(t *testing.T) {
	ix := buildIndex(t, map[string][]string{
		"a": nil,
		"b": {"a"},
	})
	r := New(ix)

	order, runtime, err := r.BuilderSeed(model.ParseRef("b"))
	if err != nil {
		t.Fatal(err)
	}
	if contains(order, "b") {
		t.Fatal("BuilderSeed order must not include the package itself")
	}
	if !runtime["a"] {
		t.Errorf("expected a to be a runtime dependency of b")
	}
}
