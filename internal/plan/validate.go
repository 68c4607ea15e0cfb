package plan

import "fmt"

// CategorySource exposes registered closed categories. Implemented by
// engine.Registrar; declared here so validation stays engine-free.
type CategorySource interface {
	// Variants returns the ordered variant labels for a registered
	// category, and whether the category is registered.
	Variants(name string) ([]string, bool)
}

// ValidateEmits checks every stage's declared category emissions against
// the registered variant sets. A label outside its category's closed set,
// or an emission for a category that was never registered, is a
// construction-time error; it never reaches the engine as a silent NULL.
func ValidateEmits(p *Pipeline, categories CategorySource) error {
	for _, s := range p.Stages {
		for cat, labels := range s.Meta.Emits {
			variants, ok := categories.Variants(cat)
			if !ok {
				return &Error{
					Code:    CodeUndeclaredVariant,
					Stage:   s.Name,
					Ref:     cat,
					Message: fmt.Sprintf("stage emits values for category %q, which is not registered", cat),
				}
			}
			allowed := make(map[string]bool, len(variants))
			for _, v := range variants {
				allowed[v] = true
			}
			for _, label := range labels {
				if !allowed[label] {
					return &Error{
						Code:    CodeUndeclaredVariant,
						Stage:   s.Name,
						Ref:     label,
						Message: fmt.Sprintf("label %q is not a declared variant of category %q", label, cat),
					}
				}
			}
		}
	}
	return nil
}
