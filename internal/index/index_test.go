package index

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ongardie/cubicle/internal/model"
)

func writePackageDir(t *testing.T, root, name, manifest string) {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if manifest != "" {
		if err := os.WriteFile(filepath.Join(dir, "package.toml"), []byte(manifest), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestScanEarlierRootShadowsLater(t *testing.T) {
	local := t.TempDir()
	builtin := t.TempDir()
	writePackageDir(t, local, "hello", "depends = {}\n")
	writePackageDir(t, builtin, "hello", "depends = {world = {}}\n")

	ix, err := Scan([]Root{
		{Path: local, Name: "local"},
		{Path: builtin, Name: "builtin", BuiltIn: true},
	})
	if err != nil {
		t.Fatal(err)
	}

	def, ok := ix.Get("hello")
	if !ok {
		t.Fatal("expected hello to resolve")
	}
	if len(def.Manifest.Depends) != 0 {
		t.Errorf("expected the local definition to win, got depends=%v", def.Manifest.Depends)
	}
	if def.Origin.RootName != "local" {
		t.Errorf("Origin.RootName = %q, want %q", def.Origin.RootName, "local")
	}
}

// TestScanShadowingReportsDependency mirrors the literal fixture: a
// local override defines depends = {x = {}} while a same-named
// built-in package has none, and the local definition's dependency
// must be what's reported.
func TestScanShadowingReportsDependency(t *testing.T) {
	local := t.TempDir()
	builtin := t.TempDir()
	writePackageDir(t, local, "demo", "depends = {x = {}}\n")
	writePackageDir(t, builtin, "demo", "")
	writePackageDir(t, builtin, "x", "")

	ix, err := Scan([]Root{
		{Path: local, Name: "00local"},
		{Path: builtin, Name: "builtin", BuiltIn: true},
	})
	if err != nil {
		t.Fatal(err)
	}

	def, ok := ix.Get("demo")
	if !ok {
		t.Fatal("expected demo to resolve")
	}
	refs := def.Manifest.DependsRefs()
	if len(refs) != 1 || refs[0].String() != "x" {
		t.Errorf("DependsRefs() = %v, want [x]", refs)
	}
}

func TestScanMissingRootIsNotAnError(t *testing.T) {
	_, err := Scan([]Root{{Path: filepath.Join(t.TempDir(), "does-not-exist"), Name: "local"}})
	if err != nil {
		t.Fatalf("a missing root should be silently skipped, got %v", err)
	}
}

func TestScanListIsSortedAndDeduplicated(t *testing.T) {
	local := t.TempDir()
	writePackageDir(t, local, "zeta", "")
	writePackageDir(t, local, "alpha", "")
	writePackageDir(t, local, "mid", "")
	other := t.TempDir()
	writePackageDir(t, other, "mid", "")

	ix, err := Scan([]Root{{Path: local, Name: "local"}, {Path: other, Name: "other"}})
	if err != nil {
		t.Fatal(err)
	}

	list := ix.List()
	if len(list) != 3 {
		t.Fatalf("expected 3 definitions, got %d", len(list))
	}
	want := []string{"alpha", "mid", "zeta"}
	for i, def := range list {
		if def.Name != want[i] {
			t.Errorf("List()[%d] = %q, want %q", i, def.Name, want[i])
		}
	}
}

func TestScanInvalidManifestAbortsScan(t *testing.T) {
	local := t.TempDir()
	writePackageDir(t, local, "broken", "depends = {this is not valid toml\n")

	if _, err := Scan([]Root{{Path: local, Name: "local"}}); err == nil {
		t.Fatal("expected a parse error to abort the scan")
	}
}

func TestScanDetectsBuildAndTestScripts(t *testing.T) {
	local := t.TempDir()
	writePackageDir(t, local, "hello", "")
	dir := filepath.Join(local, "hello")
	if err := os.WriteFile(filepath.Join(dir, "build.sh"), []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "test.sh"), []byte("#!/bin/sh\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ix, err := Scan([]Root{{Path: local, Name: "local"}})
	if err != nil {
		t.Fatal(err)
	}
	def, _ := ix.Get("hello")
	if def.BuildScript == "" {
		t.Error("expected build.sh to be detected as the build script")
	}
	if def.TestScript != "" {
		t.Error("expected non-executable test.sh to be ignored")
	}
}

func TestResolveSimpleReference(t *testing.T) {
	local := t.TempDir()
	writePackageDir(t, local, "hello", "")
	ix, err := Scan([]Root{{Path: local, Name: "local"}})
	if err != nil {
		t.Fatal(err)
	}

	def, err := ix.Resolve(model.ParseRef("hello"))
	if err != nil {
		t.Fatal(err)
	}
	if def.Name != "hello" {
		t.Errorf("Name = %q, want %q", def.Name, "hello")
	}
}

func TestResolveNamespacedReferenceProducesSyntheticLeaf(t *testing.T) {
	local := t.TempDir()
	writePackageDir(t, local, "crates-io", "package_manager = true\n")
	ix, err := Scan([]Root{{Path: local, Name: "local"}})
	if err != nil {
		t.Fatal(err)
	}

	def, err := ix.Resolve(model.ParseRef("crates-io.ripgrep"))
	if err != nil {
		t.Fatal(err)
	}
	if def.Name != "crates-io.ripgrep" {
		t.Errorf("Name = %q, want %q", def.Name, "crates-io.ripgrep")
	}
	if def.IsPackageManager {
		t.Error("expected the parameterized instance to not itself be a package manager")
	}
}

func TestResolveNamespacedReferenceRejectsNonManager(t *testing.T) {
	local := t.TempDir()
	writePackageDir(t, local, "hello", "")
	ix, err := Scan([]Root{{Path: local, Name: "local"}})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := ix.Resolve(model.ParseRef("hello.world")); err == nil {
		t.Fatal("expected an error resolving a namespaced reference against a non-manager package")
	}
}

func TestResolveUnknownReferenceIsNotFound(t *testing.T) {
	ix, err := Scan(nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ix.Resolve(model.ParseRef("nope")); err == nil {
		t.Fatal("expected an error resolving an unknown package")
	}
}
