package report

import (
	"fmt"
	"strings"
)

// Truncate shortens multi-line command output for display. Output of at most
// after lines passes through unchanged; longer output is reduced to the first
// head and last tail lines. The full output is preserved in the run log, so
// this is a presentation concern only.
func Truncate(s string, after, head, tail int) string {
	if after <= 0 {
		return s
	}

	lines := strings.Split(s, "\n")
	if len(lines) <= after || head+tail >= len(lines) {
		return s
	}

	omitted := len(lines) - head - tail
	out := make([]string, 0, head+tail+1)
	out = append(out, lines[:head]...)
	out = append(out, fmt.Sprintf("... (%d lines omitted) ...", omitted))
	out = append(out, lines[len(lines)-tail:]...)
	return strings.Join(out, "\n")
}
