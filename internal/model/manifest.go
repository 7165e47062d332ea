package model

import "sort"

// DependencyOptions is the per-dependency table found inside a
// manifest's depends/build_depends maps, e.g. the `{}` in
// `depends = {x = {}}`. It carries no fields yet; the map shape
// reserves room for future per-dependency parameters (a version pin,
// a namespace override) without another manifest schema change.
type DependencyOptions struct{}

// DependencySet is a manifest's depends or build_depends table: a set
// of reference strings, each optionally carrying DependencyOptions.
type DependencySet map[string]DependencyOptions

// Manifest is the parsed form of a package's structured configuration
// file (§3, §6). An empty manifest — no depends, not a package
// manager — is valid.
type Manifest struct {
	// Depends lists references needed both to build this package and
	// by every downstream environment that includes it.
	Depends DependencySet `toml:"depends"`

	// BuildDepends lists references needed only while building this
	// package; they never appear in a downstream runtime plan.
	BuildDepends DependencySet `toml:"build_depends"`

	// PackageManager marks this package as a generator parameterized
	// by a third-party name (§3, §4.3).
	PackageManager bool `toml:"package_manager"`

	// Origin optionally records where this package's payload comes
	// from (an upstream URL, a distro name, ...). It is free-form
	// metadata; it does not participate in shadowing, which is
	// governed by the package definition's own Origin (search-root
	// provenance, see Definition.Origin).
	Origin string `toml:"origin,omitempty"`
}

// depRefs parses a manifest's Depends field into PackageRefs.
func (m Manifest) depRefs() []PackageRef {
	return parseRefs(m.Depends)
}

// buildDepRefs parses a manifest's BuildDepends field into PackageRefs.
func (m Manifest) buildDepRefs() []PackageRef {
	return parseRefs(m.BuildDepends)
}

// DependsRefs returns the manifest's runtime dependencies as parsed
// references.
func (m Manifest) DependsRefs() []PackageRef { return m.depRefs() }

// BuildDependsRefs returns the manifest's build-only dependencies as
// parsed references.
func (m Manifest) BuildDependsRefs() []PackageRef { return m.buildDepRefs() }

// parseRefs orders a DependencySet's keys lexicographically before
// parsing them, so a manifest's iteration order never leaks into the
// resolver's own deterministic tie-break (§8 property 1).
func parseRefs(deps DependencySet) []PackageRef {
	if len(deps) == 0 {
		return nil
	}
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)
	refs := make([]PackageRef, len(names))
	for i, name := range names {
		refs[i] = ParseRef(name)
	}
	return refs
}
