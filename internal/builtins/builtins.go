// Package builtins holds the ad-hoc local-stack-usage figures for
// compiler-builtins helpers that the build doesn't emit `.stack_sizes`
// records for. Spec §6 describes these as a hard-coded table; here they
// live in an embedded TOML file instead of Go source, so updating a figure
// (or adding a target) never touches code.
package builtins

import (
	_ "embed"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

//go:embed builtins.toml
var tableTOML []byte

// Table maps a target triple to its helper-name -> byte-count figures.
type Table map[string]map[string]uint64

var loaded Table

func init() {
	t, err := parse(tableTOML)
	if err != nil {
		panic(errors.Wrap(err, "builtins: embedded builtins.toml failed to parse"))
	}
	loaded = t
}

func parse(data []byte) (Table, error) {
	var t Table
	if err := toml.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return t, nil
}

// Lookup returns the hard-coded stack size for name on the given target
// triple, and whether an entry exists.
func Lookup(target, name string) (uint64, bool) {
	perTarget, ok := loaded[target]
	if !ok {
		return 0, false
	}
	size, ok := perTarget[name]
	return size, ok
}
