// Package corelist models the runtime's core-module table: which packages
// ship with a given target runtime version, and at what version, without
// requiring separate installation. It is an injected read-only table
// rather than a process-global, so callers can test against an arbitrary
// runtime's core list.
package corelist

import "github.com/bilusteknoloji/cpm/internal/version"

// Table maps a runtime version to the packages bundled with it.
type Table map[string]map[string]version.Version

// Lookup returns the core-module version for pkg under runtimeVersion, and
// whether it was found.
func (t Table) Lookup(runtimeVersion, pkg string) (version.Version, bool) {
	modules, ok := t[runtimeVersion]
	if !ok {
		return version.Version{}, false
	}

	v, ok := modules[pkg]

	return v, ok
}

// Empty returns a table with no entries, used when no core-module data is
// available (e.g. unknown target runtime).
func Empty() Table {
	return Table{}
}
