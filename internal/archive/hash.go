// Package archive provides the content-hashing and archive plumbing
// shared by the oracle, builder, and composer: source-tree
// fingerprints (blake3, from bureau-foundation-bureau's dependency
// stack) and tar/gzip helpers for provides.tar handling.
package archive

import (
	"encoding/hex"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/zeebo/blake3"
)

// HashSourceTree computes a deterministic content hash over every
// file in dir (path, then bytes, in sorted-path order) combined with
// the resolved names and fingerprints of dependencies, matching
// §4.4's source fingerprint: "a content hash of the package source
// tree ... combined with the resolved names and fingerprints of its
// dependencies. A change anywhere invalidates."
func HashSourceTree(dir string, depFingerprints map[string]string) (string, error) {
	h := blake3.New()

	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			paths = nil
		} else {
			return "", err
		}
	}
	sort.Strings(paths)

	for _, rel := range paths {
		io.WriteString(h, rel)
		h.Write([]byte{0})

		f, err := os.Open(filepath.Join(dir, rel))
		if err != nil {
			return "", err
		}
		_, err = io.Copy(h, f)
		f.Close()
		if err != nil {
			return "", err
		}
		h.Write([]byte{0})
	}

	names := make([]string, 0, len(depFingerprints))
	for name := range depFingerprints {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		io.WriteString(h, name)
		h.Write([]byte{0})
		io.WriteString(h, depFingerprints[name])
		h.Write([]byte{0})
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
