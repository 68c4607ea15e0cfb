package plan

import (
	"fmt"
	"strings"
)

// Text renders a human-friendly multi-line description of the pipeline for
// operators, for example:
//
//	┌──────────────────────────────┐
//	│ Pipeline plan (4 stages)     │
//	│ exact_matching               │
//	└──────────────────────────────┘
//
//	 1. restrict_canonical [exact_matching]
//	    ↳ Restrict canonical addresses to observed postcodes
func (p *Pipeline) Text() string {
	var lines []string

	plural := "s"
	if len(p.Stages) == 1 {
		plural = ""
	}
	title := fmt.Sprintf("Pipeline plan (%d stage%s)", len(p.Stages), plural)
	width := len(title)
	if len(p.Name) > width {
		width = len(p.Name)
	}
	border := strings.Repeat("─", width+2)
	lines = append(lines, "┌"+border+"┐")
	lines = append(lines, "│ "+pad(title, width)+" │")
	if p.Name != "" && p.Name != title {
		lines = append(lines, "│ "+pad(p.Name, width)+" │")
	}
	lines = append(lines, "└"+border+"┘", "")

	if p.Description != "" && !strings.EqualFold(strings.TrimSpace(p.Description), strings.TrimSpace(p.Name)) {
		lines = append(lines, p.Description, strings.Repeat("-", len(p.Description)), "")
	}

	for i, s := range p.Stages {
		block := s.PlanBlock()
		first, rest, _ := strings.Cut(block, "\n")
		lines = append(lines, fmt.Sprintf("%2d. %s", i+1, first))
		if rest != "" {
			for _, rl := range strings.Split(rest, "\n") {
				lines = append(lines, "    "+rl)
			}
		}
		if i < len(p.Stages)-1 {
			lines = append(lines, "")
		}
	}
	return strings.Join(lines, "\n")
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
