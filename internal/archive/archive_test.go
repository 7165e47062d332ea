package archive

import (
	"archive/tar"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestHashSourceTreeDeterministic(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "b.txt"), []byte("world"), 0o644); err != nil {
		t.Fatal(err)
	}

	h1, err := HashSourceTree(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := HashSourceTree(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Errorf("hash not deterministic: %q vs %q", h1, h2)
	}
}

func TestHashSourceTreeChangesWithContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	before, err := HashSourceTree(dir, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, []byte("goodbye"), 0o644); err != nil {
		t.Fatal(err)
	}
	after, err := HashSourceTree(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if before == after {
		t.Error("expected hash to change after editing file content")
	}
}

func TestHashSourceTreeChangesWithDependencyFingerprint(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	h1, err := HashSourceTree(dir, map[string]string{"dep": "v1"})
	if err != nil {
		t.Fatal(err)
	}
	h2, err := HashSourceTree(dir, map[string]string{"dep": "v2"})
	if err != nil {
		t.Fatal(err)
	}
	if h1 == h2 {
		t.Error("expected hash to change when a dependency fingerprint changes")
	}
}

func TestTarRoundTrip(t *testing.T) {
	src := t.TempDir()
	if err := os.MkdirAll(filepath.Join(src, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "top.txt"), []byte("top"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "sub", "nested.txt"), []byte("nested"), 0o644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := CreateTar(src, &buf); err != nil {
		t.Fatal(err)
	}

	dest := t.TempDir()
	if err := ExtractTar(&buf, dest); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(filepath.Join(dest, "sub", "nested.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "nested" {
		t.Errorf("nested.txt = %q, want %q", got, "nested")
	}
}

func TestCreateTarExceptOmitsNamedFile(t *testing.T) {
	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "build.sh"), []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "keep.txt"), []byte("keep"), 0o644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := CreateTarExcept(src, &buf, "build.sh"); err != nil {
		t.Fatal(err)
	}

	dest := t.TempDir()
	if err := ExtractTar(&buf, dest); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dest, "build.sh")); !os.IsNotExist(err) {
		t.Error("expected build.sh to be excluded")
	}
	if _, err := os.Stat(filepath.Join(dest, "keep.txt")); err != nil {
		t.Errorf("expected keep.txt to survive: %v", err)
	}
}

// writeSingleFileTar writes a one-entry tar archive containing name/content
// into buf.
func writeSingleFileTar(t *testing.T, buf *bytes.Buffer, name, content string) {
	t.Helper()
	tw := tar.NewWriter(buf)
	hdr := &tar.Header{
		Name: name,
		Mode: 0o644,
		Size: int64(len(content)),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestExtractTarRejectsPathEscape(t *testing.T) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	hdr := &tar.Header{
		Name: "../escape.txt",
		Mode: 0o644,
		Size: int64(len("escaped")),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write([]byte("escaped")); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}

	dest := t.TempDir()
	if err := ExtractTar(&buf, dest); err == nil {
		t.Fatal("expected an error extracting an archive entry that escapes the destination")
	}
}

func TestGzipSeedLaterOverwritesEarlier(t *testing.T) {
	var firstTar, secondTar bytes.Buffer
	writeSingleFileTar(t, &firstTar, "shared.txt", "from-dependency")
	writeSingleFileTar(t, &secondTar, "shared.txt", "from-dependent")

	var seeded bytes.Buffer
	if err := GzipSeed(&seeded, []io.Reader{&firstTar, &secondTar}); err != nil {
		t.Fatal(err)
	}

	dest := t.TempDir()
	if err := UngzipSeed(&seeded, dest); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(filepath.Join(dest, "shared.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "from-dependent" {
		t.Errorf("shared.txt = %q, want the later archive's content", got)
	}
}
