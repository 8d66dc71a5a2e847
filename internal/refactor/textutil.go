package refactor

import "strings"

// tokenReplacement is one exact-position substitution driven by a
// symbols.Reference: replace oldLen bytes starting at (line, col) with
// newText. line and col are 1-indexed, matching symbols.Reference.
type tokenReplacement struct {
	line    int
	col     int
	oldLen  int
	newText string
}

// applyTokenReplacements rewrites text by substituting every replacement.
// Replacements on the same line are applied right-to-left so earlier
// columns on that line stay valid as later ones are rewritten.
func applyTokenReplacements(text string, replacements []tokenReplacement) string {
	lines := strings.Split(text, "\n")
	byLine := make(map[int][]tokenReplacement)
	for _, r := range replacements {
		byLine[r.line] = append(byLine[r.line], r)
	}
	for lineNo, reps := range byLine {
		idx := lineNo - 1
		if idx < 0 || idx >= len(lines) {
			continue
		}
		line := lines[idx]
		sorted := make([]tokenReplacement, len(reps))
		copy(sorted, reps)
		// Descending by column so a rewrite never invalidates a
		// not-yet-applied column to its left on the same line.
		for i := 0; i < len(sorted); i++ {
			for j := i + 1; j < len(sorted); j++ {
				if sorted[j].col > sorted[i].col {
					sorted[i], sorted[j] = sorted[j], sorted[i]
				}
			}
		}
		for _, r := range sorted {
			start := r.col - 1
			end := start + r.oldLen
			if start < 0 || end > len(line) || start > end {
				continue
			}
			line = line[:start] + r.newText + line[end:]
		}
		lines[idx] = line
	}
	return strings.Join(lines, "\n")
}

// indentUnit sniffs the dominant indentation style in content: a literal
// tab if any line starts with one, otherwise four spaces.
func indentUnit(content string) string {
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(line, "\t") {
			return "\t"
		}
	}
	return "    "
}

// baseIndent returns the leading whitespace of line.
func baseIndent(line string) string {
	i := 0
	for i < len(line) && (line[i] == ' ' || line[i] == '\t') {
		i++
	}
	return line[:i]
}

// extractLines returns the 1-indexed inclusive [start, end] line range of
// text, along with the full line slice for reassembly.
func extractLines(text string, start, end int) (lines []string, rangeLines []string, ok bool) {
	lines = strings.Split(text, "\n")
	if start < 1 || end < start || end > len(lines) {
		return lines, nil, false
	}
	return lines, lines[start-1 : end], true
}

// replaceLineRange rebuilds text with lines[start-1:end] replaced by
// replacement (a slice of whole lines).
func replaceLineRange(lines []string, start, end int, replacement []string) string {
	out := make([]string, 0, len(lines)-(end-start+1)+len(replacement))
	out = append(out, lines[:start-1]...)
	out = append(out, replacement...)
	out = append(out, lines[end:]...)
	return strings.Join(out, "\n")
}
