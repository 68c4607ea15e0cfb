package stage

import (
	"fmt"
	"strings"
)

const (
	maxNameWidth = 60
	maxDepWidth  = 60
)

// PlanBlock renders a multi-line human-readable summary of the stage for
// pipeline plan display, for example:
//
//	resolve_with_trigrams [exact_matching]
//	↳ Resolve unmatched rows via unique trigram hits
//	├─ depends on:
//	│  • filter_unmatched
//	└─ fragments:
//	   • fuzzy_trigrams
//	   • unique_hits
func (s Stage) PlanBlock() string {
	display := s.Name
	if len(display) > maxNameWidth {
		display = display[:maxNameWidth-3] + "..."
	}

	var lines []string
	if len(s.Meta.Tags) > 0 {
		lines = append(lines, fmt.Sprintf("%s [%s]", display, strings.Join(s.Meta.Tags, ", ")))
	} else {
		lines = append(lines, display)
	}
	if s.Meta.Description != "" {
		lines = append(lines, "↳ "+s.Meta.Description)
	}

	type entry struct {
		label  string
		values []string
	}
	var entries []entry

	if len(s.Meta.DependsOn) > 0 {
		deps := make([]string, len(s.Meta.DependsOn))
		for i, d := range s.Meta.DependsOn {
			if len(d) > maxDepWidth {
				d = d[:maxDepWidth-3] + "..."
			}
			deps[i] = d
		}
		entries = append(entries, entry{"depends on", deps})
	}
	if len(s.Fragments) > 1 {
		names := make([]string, len(s.Fragments))
		for i, f := range s.Fragments {
			names[i] = f.Name
		}
		entries = append(entries, entry{"fragments", names})
	}
	if s.Checkpoint {
		entries = append(entries, entry{"checkpoint", []string{"enabled"}})
	}

	for i, e := range entries {
		last := i == len(entries)-1
		branch := "├─"
		cont := "│  "
		if last {
			branch = "└─"
			cont = "   "
		}
		lines = append(lines, branch+" "+e.label+":")
		for _, v := range e.values {
			lines = append(lines, cont+"• "+v)
		}
	}
	return strings.Join(lines, "\n")
}
