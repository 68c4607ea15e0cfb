package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
)

// Registrar manages closed categories as DuckDB enum types. Registering a
// category issues CREATE TYPE name AS ENUM (...), after which SQL can cast
// labels with 'label'::name and comparisons between values of the type
// follow the declared variant order, not string order. CombineMatches
// depends on that: min() over a match_reason column picks the most
// preferred reason.
//
// Registration is idempotent for identical variant sequences and fails
// with ENUM_REDEFINITION for conflicting ones. Variant order is identity:
// the same set in a different order is a different category.
type Registrar struct {
	s *Session
	// categories maps category name to its declared variant sequence.
	categories map[string][]string
}

// NewRegistrar creates a Registrar bound to the session.
func NewRegistrar(s *Session) *Registrar {
	return &Registrar{s: s, categories: make(map[string][]string)}
}

// Register declares a closed category. The variant slice is ordered; order
// defines comparison semantics for the resulting enum type.
func (r *Registrar) Register(ctx context.Context, name string, variants []string) error {
	if name == "" {
		return fmt.Errorf("category name is empty")
	}
	if len(variants) == 0 {
		return fmt.Errorf("category %q: at least one variant is required", name)
	}
	seen := make(map[string]bool, len(variants))
	for _, v := range variants {
		if v == "" {
			return fmt.Errorf("category %q: empty variant label", name)
		}
		if seen[v] {
			return fmt.Errorf("category %q: duplicate variant %q", name, v)
		}
		seen[v] = true
	}

	if existing, ok := r.categories[name]; ok {
		if slices.Equal(existing, variants) {
			return nil
		}
		return &Error{
			Code:    ErrCodeEnumRedefinition,
			Message: fmt.Sprintf("category %q is already registered with different variants", name),
		}
	}

	stmt := fmt.Sprintf("CREATE TYPE %s AS ENUM (%s)", name, quoteLabels(variants))
	if err := r.s.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("create enum type %s: %w", name, err)
	}

	r.categories[name] = append([]string(nil), variants...)
	slog.Debug("category registered", "run_id", r.s.runID, "category", name, "variants", len(variants))
	return nil
}

// Variants returns the ordered variant labels for a registered category.
// Implements plan.CategorySource.
func (r *Registrar) Variants(name string) ([]string, bool) {
	v, ok := r.categories[name]
	if !ok {
		return nil, false
	}
	return append([]string(nil), v...), true
}

// Registered returns the registered category names in sorted order.
func (r *Registrar) Registered() []string {
	names := make([]string, 0, len(r.categories))
	for name := range r.categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// quoteLabels renders variant labels as a SQL literal list, doubling any
// embedded quotes.
func quoteLabels(labels []string) string {
	quoted := make([]string, len(labels))
	for i, l := range labels {
		quoted[i] = "'" + strings.ReplaceAll(l, "'", "''") + "'"
	}
	return strings.Join(quoted, ", ")
}
