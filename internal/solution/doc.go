// Package solution decodes the solution artifacts returned by remote solve
// jobs into name-indexed maps.
//
// Two encodings are supported:
//
//   - the CPLEX XML solution file, read as a token stream by a strict state
//     machine (DecodeXML)
//   - the CP Optimizer JSON solution document, walked with gjson (DecodeJSON)
//
// Both decoders return fresh values and never mutate their input. Names not
// accepted by the caller's NameFilter are dropped silently; the bridge
// re-keys the surviving entries to model objects.
package solution

// NameFilter selects the names a decoder keeps.
type NameFilter func(name string) bool

// Any accepts every name.
func Any(string) bool { return true }

// Known accepts exactly the given names.
func Known(names ...string) NameFilter {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return func(name string) bool {
		_, ok := set[name]
		return ok
	}
}
