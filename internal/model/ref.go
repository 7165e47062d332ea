package model

import "strings"

// PackageRef is a fully qualified package reference as written in a
// manifest's depends/build_depends list or on the command line: either
// a simple name ("hello") or a namespaced reference
// ("crates-io.ripgrep") naming a parameter passed to a package-manager
// package.
type PackageRef struct {
	Namespace string // empty for a simple reference
	Name      string
}

// ParseRef splits a raw reference on its first '.'. Everything before
// the dot is the namespace (the package-manager package's name);
// everything after is the parameter. A reference with no dot is a
// simple, non-namespaced reference.
func ParseRef(raw string) PackageRef {
	if i := strings.IndexByte(raw, '.'); i >= 0 {
		return PackageRef{Namespace: raw[:i], Name: raw[i+1:]}
	}
	return PackageRef{Name: raw}
}

// Namespaced reports whether the reference names a package-manager
// parameter rather than a plain package.
func (r PackageRef) Namespaced() bool {
	return r.Namespace != ""
}

// String renders the reference back to its canonical textual form.
func (r PackageRef) String() string {
	if r.Namespaced() {
		return r.Namespace + "." + r.Name
	}
	return r.Name
}

// Identity returns the string used to key build-plan nodes,
// builder environments, and the artifact cache. For namespaced
// references this is distinct per (manager, parameter) pair, exactly
// as required by §4.3: the manager definition may be shared, but each
// pair gets its own builder environment and provides_tar.
func (r PackageRef) Identity() string {
	return r.String()
}

// Special package names with implicit resolver behavior (§3
// invariant 6, §4.3).
const (
	AutoInteractive = "auto"
	AutoBatch       = "auto-batch"
)
