package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Runner != "nsrunner" {
		t.Errorf("Runner = %q, want %q", cfg.Runner, "nsrunner")
	}
	if cfg.AutoUpdate != "12h" {
		t.Errorf("AutoUpdate = %q, want %q", cfg.AutoUpdate, "12h")
	}
}

func TestLoadParsesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "runner: useraccount\nauto_update: never\nuseraccount:\n  shell_path: /bin/zsh\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Runner != "useraccount" {
		t.Errorf("Runner = %q, want %q", cfg.Runner, "useraccount")
	}
	if cfg.UserAccount.ShellPath != "/bin/zsh" {
		t.Errorf("UserAccount.ShellPath = %q, want %q", cfg.UserAccount.ShellPath, "/bin/zsh")
	}
}

func TestLoadRejectsUnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "runner: nsrunner\nnot_a_real_key: true\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for an unknown top-level key")
	}
}

func TestLoadRejectsUnknownNestedKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "runner: nsrunner\nnsrunner:\n  not_a_real_field: true\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for an unknown nested key")
	}
}

func TestEnvVarOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "runner: nsrunner\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CUBICLE_RUNNER", "oci")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Runner != "oci" {
		t.Errorf("Runner = %q, want %q (env override)", cfg.Runner, "oci")
	}
}

func TestEnvVarOverridesNestedField(t *testing.T) {
	t.Setenv("CUBICLE_OCI_IMAGE", "ghcr.io/example/image:latest")

	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.OCI.Image != "ghcr.io/example/image:latest" {
		t.Errorf("OCI.Image = %q, want the env override", cfg.OCI.Image)
	}
}

func TestParseThresholdNever(t *testing.T) {
	d, err := ParseThreshold("never")
	if err != nil {
		t.Fatal(err)
	}
	if d != nil {
		t.Errorf("expected a nil threshold for \"never\", got %v", *d)
	}
}

func TestParseThresholdGoDuration(t *testing.T) {
	d, err := ParseThreshold("90m")
	if err != nil {
		t.Fatal(err)
	}
	if d == nil || *d != 90*time.Minute {
		t.Errorf("got %v, want 90m", d)
	}
}

func TestParseThresholdLongUnit(t *testing.T) {
	d, err := ParseThreshold("3.5 days")
	if err != nil {
		t.Fatal(err)
	}
	want := time.Duration(3.5 * float64(24*time.Hour))
	if d == nil || *d != want {
		t.Errorf("got %v, want %v", d, want)
	}
}

func TestParseThresholdRejectsUnknownUnit(t *testing.T) {
	if _, err := ParseThreshold("3 fortnights"); err == nil {
		t.Fatal("expected an error for an unrecognized unit")
	}
}

func TestParseThresholdRejectsGarbage(t *testing.T) {
	if _, err := ParseThreshold("not a duration"); err == nil {
		t.Fatal("expected an error for an unparseable duration")
	}
}
