package composer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ongardie/cubicle/internal/builder"
	"github.com/ongardie/cubicle/internal/index"
	"github.com/ongardie/cubicle/internal/model"
	"github.com/ongardie/cubicle/internal/resolver"
	"github.com/ongardie/cubicle/internal/runner/fakerunner"
	"github.com/ongardie/cubicle/internal/store"
)

func writeBuildScript(t *testing.T, root, name string) {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	script := "#!/bin/sh\nset -e\ntouch \"$HOME/provides.tar\"\n"
	if err := os.WriteFile(filepath.Join(dir, "build.sh"), []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
}

func setup(t *testing.T) (*Composer, *fakerunner.Runner) {
	t.Helper()
	root := t.TempDir()
	writeBuildScript(t, root, "hello")

	ix, err := index.Scan([]index.Root{{Path: root, Name: "root"}})
	if err != nil {
		t.Fatal(err)
	}
	res := resolver.New(ix)
	st := store.New(t.TempDir(), t.TempDir())

	fr, err := fakerunner.New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { fr.Close() })

	b := &builder.Builder{Index: ix, Resolver: res, Store: st, Runner: fr}
	c := &Composer{Index: ix, Resolver: res, Store: st, Runner: fr, Builder: b}
	return c, fr
}

func TestNewCreatesHealthyEnvironment(t *testing.T) {
	c, _ := setup(t)
	ctx := context.Background()

	env, err := c.New(ctx, "myenv", []model.PackageRef{model.ParseRef("hello")})
	if err != nil {
		t.Fatal(err)
	}
	if env.State != model.EnvHealthy {
		t.Errorf("state = %v, want EnvHealthy", env.State)
	}
	if len(env.Packages) != 1 || env.Packages[0] != "hello" {
		t.Errorf("packages = %v, want [hello]", env.Packages)
	}
}

func TestNewRejectsExistingName(t *testing.T) {
	c, _ := setup(t)
	ctx := context.Background()
	refs := []model.PackageRef{model.ParseRef("hello")}

	if _, err := c.New(ctx, "myenv", refs); err != nil {
		t.Fatal(err)
	}
	if _, err := c.New(ctx, "myenv", refs); err == nil {
		t.Fatal("expected an error creating an environment that already exists")
	}
}

func TestResetPreservesWorkDirectory(t *testing.T) {
	c, fr := setup(t)
	ctx := context.Background()
	refs := []model.PackageRef{model.ParseRef("hello")}

	if _, err := c.New(ctx, "myenv", refs); err != nil {
		t.Fatal(err)
	}

	// Write through the sandbox's actual work directory, the same one
	// a real "~/w/keep" write inside the sandbox would land in.
	marker := filepath.Join(fr.WorkDir("myenv"), "my-work-file")
	if err := os.WriteFile(marker, []byte("keep me"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := c.Reset(ctx, "myenv", nil); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(marker)
	if err != nil {
		t.Fatalf("work-directory file lost across reset: %v", err)
	}
	if string(data) != "keep me" {
		t.Errorf("work-directory file contents changed: %q", data)
	}

	// ~/w must still resolve to the durable work directory after home
	// was destroyed and recomposed.
	viaHome := filepath.Join(fr.HomeDir("myenv"), "w", "my-work-file")
	data, err = os.ReadFile(viaHome)
	if err != nil {
		t.Fatalf("~/w does not point at the durable work directory after reset: %v", err)
	}
	if string(data) != "keep me" {
		t.Errorf("~/w/my-work-file contents changed: %q", data)
	}
}

func TestResetCleanRemovesHomeWithoutRecreatingIt(t *testing.T) {
	c, fr := setup(t)
	ctx := context.Background()
	refs := []model.PackageRef{model.ParseRef("hello")}

	if _, err := c.New(ctx, "myenv", refs); err != nil {
		t.Fatal(err)
	}
	marker := filepath.Join(fr.WorkDir("myenv"), "my-work-file")
	if err := os.WriteFile(marker, []byte("keep me"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := c.ResetClean(ctx, "myenv"); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(fr.HomeDir("myenv")); !os.IsNotExist(err) {
		t.Errorf("expected home to be removed, stat err = %v", err)
	}
	if _, err := os.ReadFile(marker); err != nil {
		t.Fatalf("expected work directory to survive --clean, got %v", err)
	}
}

func TestResetWithNilRefsReusesPackagesTxt(t *testing.T) {
	c, _ := setup(t)
	ctx := context.Background()
	refs := []model.PackageRef{model.ParseRef("hello")}

	if _, err := c.New(ctx, "myenv", refs); err != nil {
		t.Fatal(err)
	}
	env, err := c.Reset(ctx, "myenv", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(env.Packages) != 1 || env.Packages[0] != "hello" {
		t.Errorf("packages after nil-refs reset = %v, want [hello]", env.Packages)
	}
}

func TestPurgeIsIdempotent(t *testing.T) {
	c, _ := setup(t)
	ctx := context.Background()

	if err := c.Purge(ctx, "never-existed"); err != nil {
		t.Errorf("purging a nonexistent environment should not error, got %v", err)
	}
}

func TestTmpAllocatesTmpPrefixedName(t *testing.T) {
	c, _ := setup(t)
	ctx := context.Background()

	env, err := c.Tmp(ctx, []model.PackageRef{model.ParseRef("hello")})
	if err != nil {
		t.Fatal(err)
	}
	if len(env.Name) < len("tmp-") || string(env.Name)[:4] != "tmp-" {
		t.Errorf("expected a tmp-prefixed name, got %q", env.Name)
	}
}
