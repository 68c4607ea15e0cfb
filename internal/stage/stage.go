package stage

import (
	"fmt"
	"regexp"
	"strings"
)

// InputPlaceholder is the reserved placeholder referring to the output of
// the stage's declared predecessor. It can never be used as a fragment,
// stage output or input binding name.
const InputPlaceholder = "input"

// nameRE constrains fragment, stage and binding names so they can be used
// directly as SQL identifiers without quoting.
var nameRE = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// placeholderRE matches {name} tokens inside fragment SQL.
var placeholderRE = regexp.MustCompile(`\{([a-z][a-z0-9_]*)\}`)

// Fragment is a single named, immutable unit of SQL. The SQL may reference
// other fragments' outputs via {name} placeholders.
type Fragment struct {
	Name string
	SQL  string
}

// Substitute replaces every {name} placeholder in sql with the value
// returned by lookup. Rendering performs substitution and nothing else: the
// surrounding SQL text is preserved byte for byte.
func Substitute(sql string, lookup func(ref string) string) string {
	return placeholderRE.ReplaceAllStringFunc(sql, func(tok string) string {
		return lookup(tok[1 : len(tok)-1])
	})
}

// Refs returns the distinct placeholder names referenced by the fragment's
// SQL, in first-appearance order.
func (f Fragment) Refs() []string {
	seen := make(map[string]bool)
	var refs []string
	for _, m := range placeholderRE.FindAllStringSubmatch(f.SQL, -1) {
		name := m[1]
		if !seen[name] {
			seen[name] = true
			refs = append(refs, name)
		}
	}
	return refs
}

// Meta is documentation metadata attached to a stage. It is part of the
// stage's public contract, not commentary: operators debug pipelines by
// reading it, and it must survive round-trips through other representations
// (e.g. CUE stage files) verbatim.
type Meta struct {
	// Description explains what the stage does, for plan display.
	Description string

	// Tags group related stages (e.g. "cleaning", "exact_matching").
	Tags []string

	// DependsOn names stages this stage expects to run after. It is
	// advisory documentation; the authoritative ordering comes from
	// placeholder references.
	DependsOn []string

	// Emits maps a closed category name to the labels this stage may emit
	// for it. Every label is validated against the registered category
	// before the stage executes.
	Emits map[string][]string
}

// Stage is an ordered sequence of fragments plus a designated output
// fragment. Its externally visible identity is the name → output pair;
// internal fragment names are not visible outside the stage.
type Stage struct {
	Name      string
	Fragments []Fragment
	// Output is the name of the fragment whose result other stages see.
	Output string
	Meta   Meta
	// Checkpoint requests that the assembler materialise the pipeline into
	// a scratch table after this stage, splitting the plan into segments.
	Checkpoint bool
}

// New constructs a validated Stage. The output defaults to the last
// fragment when empty. Construction fails if any name is malformed or
// reserved, two fragments share a name, or the output names a fragment not
// in the sequence.
func New(name string, fragments []Fragment, opts ...Option) (Stage, error) {
	s := Stage{Name: name, Fragments: append([]Fragment(nil), fragments...)}
	for _, opt := range opts {
		opt(&s)
	}

	if err := validName(name, "stage"); err != nil {
		return Stage{}, err
	}
	if len(s.Fragments) == 0 {
		return Stage{}, fmt.Errorf("stage %q: at least one fragment is required", name)
	}

	seen := make(map[string]bool, len(s.Fragments))
	for i := range s.Fragments {
		f := &s.Fragments[i]
		if err := validName(f.Name, "fragment"); err != nil {
			return Stage{}, fmt.Errorf("stage %q: %w", name, err)
		}
		if seen[f.Name] {
			return Stage{}, fmt.Errorf("stage %q: duplicate fragment name %q", name, f.Name)
		}
		seen[f.Name] = true
		// Surrounding whitespace is a formatting artifact of multiline
		// literals, not part of the fragment.
		f.SQL = strings.TrimSpace(f.SQL)
		if f.SQL == "" {
			return Stage{}, fmt.Errorf("stage %q: fragment %q has empty SQL", name, f.Name)
		}
	}

	if s.Output == "" {
		s.Output = s.Fragments[len(s.Fragments)-1].Name
	} else if !seen[s.Output] {
		return Stage{}, &OutputError{Stage: name, Output: s.Output}
	}

	return s, nil
}

// MustNew is New for statically known definitions, panicking on error. The
// catalog uses it: a malformed catalog stage is a programming bug, not a
// runtime condition.
func MustNew(name string, fragments []Fragment, opts ...Option) Stage {
	s, err := New(name, fragments, opts...)
	if err != nil {
		panic(err)
	}
	return s
}

// Option configures optional Stage fields at construction.
type Option func(*Stage)

// WithOutput designates the externally visible fragment.
func WithOutput(name string) Option {
	return func(s *Stage) { s.Output = name }
}

// WithMeta attaches documentation metadata.
func WithMeta(m Meta) Option {
	return func(s *Stage) { s.Meta = m }
}

// WithCheckpoint marks the stage as a materialisation checkpoint.
func WithCheckpoint() Option {
	return func(s *Stage) { s.Checkpoint = true }
}

// Single is a convenience constructor for the common one-fragment stage.
// The fragment takes the stage's name, so the stage's visible output name
// equals its own name.
func Single(name, sql string, opts ...Option) (Stage, error) {
	return New(name, []Fragment{{Name: name, SQL: sql}}, opts...)
}

// MustSingle is Single panicking on error.
func MustSingle(name, sql string, opts ...Option) Stage {
	s, err := Single(name, sql, opts...)
	if err != nil {
		panic(err)
	}
	return s
}

// OutputFragment returns the fragment designated as the stage's output.
func (s Stage) OutputFragment() Fragment {
	for _, f := range s.Fragments {
		if f.Name == s.Output {
			return f
		}
	}
	// Unreachable for stages built via New.
	panic(fmt.Sprintf("stage %q: output %q not found", s.Name, s.Output))
}

// Fragment returns the named fragment and whether it exists.
func (s Stage) Fragment(name string) (Fragment, bool) {
	for _, f := range s.Fragments {
		if f.Name == name {
			return f, true
		}
	}
	return Fragment{}, false
}

// Fingerprint is a stable identity for duplicate detection, emphasising SQL
// content over human-readable names.
func (s Stage) Fingerprint() string {
	var b strings.Builder
	for _, f := range s.Fragments {
		b.WriteString(f.SQL)
		b.WriteByte(0)
	}
	b.WriteString(s.Output)
	if s.Checkpoint {
		b.WriteString("+ckpt")
	}
	return b.String()
}

// OutputError reports a stage whose declared output is not among its own
// fragments.
type OutputError struct {
	Stage  string
	Output string
}

func (e *OutputError) Error() string {
	return fmt.Sprintf("INVALID_OUTPUT_NAME: stage %q declares output %q which is not one of its fragments", e.Stage, e.Output)
}

func validName(name, kind string) error {
	if name == InputPlaceholder {
		return fmt.Errorf("%s name %q is reserved", kind, name)
	}
	if !nameRE.MatchString(name) {
		return fmt.Errorf("%s name %q must match %s", kind, name, nameRE.String())
	}
	return nil
}

// ValidName reports whether name is usable as a stage, fragment or input
// binding name.
func ValidName(name string) bool {
	return name != InputPlaceholder && nameRE.MatchString(name)
}
