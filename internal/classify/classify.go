// Package classify implements the compiler command-line argument classifier:
// parsing a command line into typed argument records. It is pure and
// deterministic, no I/O, no environment lookup. Grounded on
// _examples/original_source/src/vs/compiler.rs's Arg/Scope match arms,
// generalized from a hardcoded match into a per-toolchain flag table.
package classify

import "strings"

// Scope controls whether an argument is forwarded to the preprocess
// sub-invocation, the compile sub-invocation, both, or neither.
type Scope int

const (
	// Shared args go to both preprocess and compile sub-invocations.
	Shared Scope = iota
	// Preprocessor args go to the preprocess sub-invocation and are also
	// included in the compile sub-invocation.
	Preprocessor
	// Compiler args go only to the compile sub-invocation.
	Compiler
	// Ignore args are never forwarded to either sub-invocation.
	Ignore
)

// Kind tags the shape of an argument record.
type Kind int

const (
	KindFlag Kind = iota
	KindParam
	KindInput
	KindOutput
)

// Arg is one classified command-line argument.
type Arg struct {
	Kind  Kind
	Scope Scope
	Name  string // flag name, without the leading prefix, e.g. "nologo", "D"
	Value string // for KindParam: the fused or separate-form value
	Path  string // for KindInput/KindOutput: the file path
}

// InPreprocess reports whether this argument belongs in the preprocess
// sub-invocation: scope Preprocessor or Shared. Input and Output records
// never belong; the toolchain re-synthesizes them.
func (a Arg) InPreprocess() bool {
	if a.Kind == KindInput || a.Kind == KindOutput {
		return false
	}
	return a.Scope == Preprocessor || a.Scope == Shared
}

// InCompile reports whether this argument belongs in the compile
// sub-invocation: scope Preprocessor, Compiler, or Shared. Input and Output
// records never belong; the toolchain re-synthesizes them.
func (a Arg) InCompile() bool {
	if a.Kind == KindInput || a.Kind == KindOutput {
		return false
	}
	return a.Scope == Preprocessor || a.Scope == Compiler || a.Scope == Shared
}

// FlagSpec describes how a single known flag name should be classified.
type FlagSpec struct {
	Scope      Scope
	TakesValue bool // true for Param-shaped flags, e.g. /D, /I
}

// Table maps a known flag name (without the leading prefix, e.g. "D" for
// "/Dfoo=bar") to its classification. Unknown flag-shaped tokens default to
// Shared scope; unknown non-flag tokens default to Input.
type Table map[string]FlagSpec

// Classify parses raw command-line args into argument records. prefix is the
// flag marker the toolchain uses ("/" for MSVC-style, "-" for GNU-style).
// Longer table entries are matched first so a fused flag+value token (e.g.
// "/Dfoo=bar") resolves to the right flag name instead of a substring.
func Classify(args []string, prefix string, table Table) []Arg {
	names := sortedByLengthDesc(table)

	var out []Arg
	for i := 0; i < len(args); i++ {
		tok := args[i]
		if !strings.HasPrefix(tok, prefix) || len(tok) == len(prefix) {
			out = append(out, Arg{Kind: KindInput, Scope: Shared, Path: tok})
			continue
		}
		body := tok[len(prefix):]

		if spec, ok := table[body]; ok {
			if spec.TakesValue {
				// Declared as taking a value but given bare: handle the
				// separated form ("/D foo=bar") same as the fused one.
				if i+1 < len(args) && !strings.HasPrefix(args[i+1], prefix) {
					i++
					out = append(out, Arg{Kind: KindParam, Scope: spec.Scope, Name: body, Value: args[i]})
					continue
				}
			}
			out = append(out, Arg{Kind: KindFlag, Scope: spec.Scope, Name: body})
			continue
		}

		matched := false
		for _, name := range names {
			if !strings.HasPrefix(body, name) {
				continue
			}
			spec := table[name]
			if !spec.TakesValue {
				continue
			}
			value := body[len(name):]
			if value == "" {
				if i+1 < len(args) && !strings.HasPrefix(args[i+1], prefix) {
					i++
					value = args[i]
				}
			}
			out = append(out, Arg{Kind: KindParam, Scope: spec.Scope, Name: name, Value: value})
			matched = true
			break
		}
		if matched {
			continue
		}

		// Unknown flag-shaped token: default to Shared.
		out = append(out, Arg{Kind: KindFlag, Scope: Shared, Name: body})
	}
	return out
}

func sortedByLengthDesc(table Table) []string {
	names := make([]string, 0, len(table))
	for name, spec := range table {
		if spec.TakesValue {
			names = append(names, name)
		}
	}
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && len(names[j-1]) < len(names[j]); j-- {
			names[j-1], names[j] = names[j], names[j-1]
		}
	}
	return names
}
