// Package diffkit implements the CRC/Diff Kit (spec §4.3): CRC32C over
// files and ranges, unified-diff generate/apply, and line-count stats. All
// operations are pure functions over text/bytes; nothing here touches a
// task or a transaction.
package diffkit

import (
	"bufio"
	"bytes"
	"fmt"
	"hash/crc32"
	"net/url"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/afero"

	"github.com/nefrols/nts-mcp-fs/internal/ntserr"
)

// castagnoli is the CRC32C polynomial table (spec requires CRC32C, not the
// IEEE default used by hash/crc32.ChecksumIEEE).
var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// CRC32C computes the CRC32C checksum of data.
func CRC32C(data []byte) uint32 {
	return crc32.Checksum(data, castagnoli)
}

// CRC32CFile reads path fully into memory and returns its CRC32C and size
// in bytes.
func CRC32CFile(fs afero.Fs, path string) (uint32, int64, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return 0, 0, ntserr.Wrap(ntserr.KindNotFound, err, "reading %s for CRC", path)
	}
	return CRC32C(data), int64(len(data)), nil
}

// Lines splits text into its constituent lines, matching the line model
// used throughout the spec: 1-indexed, split on "\n", no trailing empty
// element for a final newline.
func Lines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// RangeText extracts the textual representation of lines [start, end]
// (1-indexed, inclusive) from text, joined by "\n".
func RangeText(text string, start, end int) (string, error) {
	lines := Lines(text)
	if start < 1 || end < start || end > len(lines) {
		return "", ntserr.New(ntserr.KindInvalidArgument, "range [%d,%d] out of bounds for %d lines", start, end, len(lines))
	}
	return strings.Join(lines[start-1:end], "\n"), nil
}

// CRC32CRange computes the CRC32C of the textual representation of
// lines [start, end] in text.
func CRC32CRange(text string, start, end int) (uint32, error) {
	rng, err := RangeText(text, start, end)
	if err != nil {
		return 0, err
	}
	return CRC32C([]byte(rng)), nil
}

// LineCount returns the number of lines in text per the spec's line model.
func LineCount(text string) int {
	return len(Lines(text))
}

// UnifiedDiff renders the change from before to after as a ---/+++ header
// labeled with path, followed by diffmatchpatch patch text built from a
// line-mode diff: @@ hunk headers, then one body line per diff chunk, each
// URL-encoded and possibly spanning several text lines, with context
// measured in characters. The output is not line-per-line standard
// unified-diff text; ApplyUnifiedDiff and LineStats read this format.
func UnifiedDiff(before, after, path string) string {
	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)
	patches := dmp.PatchMake(before, diffs)
	text := dmp.PatchToText(patches)
	if text == "" {
		return ""
	}
	return renderUnifiedHeader(path) + text
}

func renderUnifiedHeader(path string) string {
	return fmt.Sprintf("--- a/%s\n+++ b/%s\n", path, path)
}

// ApplyUnifiedDiff applies diff (as produced by UnifiedDiff, i.e. a header
// followed by diffmatchpatch patch text) to text. Returns DiffConflict if
// any context line fails to match.
func ApplyUnifiedDiff(text, diff string) (string, error) {
	body := stripUnifiedHeader(diff)
	dmp := diffmatchpatch.New()
	patches, err := dmp.PatchFromText(body)
	if err != nil {
		return "", ntserr.Wrap(ntserr.KindDiffConflict, err, "malformed diff")
	}
	result, applied := dmp.PatchApply(patches, text)
	for i, ok := range applied {
		if !ok {
			return "", ntserr.New(ntserr.KindDiffConflict, "hunk %d did not apply: context mismatch", i+1)
		}
	}
	return result, nil
}

func stripUnifiedHeader(diff string) string {
	scanner := bufio.NewScanner(strings.NewReader(diff))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var out bytes.Buffer
	skippingHeader := true
	for scanner.Scan() {
		line := scanner.Text()
		if skippingHeader && (strings.HasPrefix(line, "--- ") || strings.HasPrefix(line, "+++ ")) {
			continue
		}
		skippingHeader = false
		out.WriteString(line)
		out.WriteByte('\n')
	}
	return out.String()
}

// ChangeDetail is one line-level edit between a before/after pair: the
// affected line number and its text on each side (empty Before marks a pure
// insertion, empty After a pure deletion).
type ChangeDetail struct {
	Line   int    `json:"line"`
	Before string `json:"before"`
	After  string `json:"after"`
}

// ChangeDetails walks a line-mode diff between before and after and reports
// one entry per inserted, deleted, or replaced line, matching spec's
// Refactoring Result "detail triples of {line, before, after}".
func ChangeDetails(before, after string) []ChangeDetail {
	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var details []ChangeDetail
	beforeLine, afterLine := 1, 1
	for i := 0; i < len(diffs); i++ {
		d := diffs[i]
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			n := len(diffLines(d.Text))
			beforeLine += n
			afterLine += n
		case diffmatchpatch.DiffDelete:
			delLines := diffLines(d.Text)
			var insLines []string
			if i+1 < len(diffs) && diffs[i+1].Type == diffmatchpatch.DiffInsert {
				insLines = diffLines(diffs[i+1].Text)
				i++
			}
			n := len(delLines)
			if len(insLines) > n {
				n = len(insLines)
			}
			for j := 0; j < n; j++ {
				var beforeText, afterText string
				if j < len(delLines) {
					beforeText = delLines[j]
				}
				if j < len(insLines) {
					afterText = insLines[j]
				}
				line := beforeLine
				if len(insLines) > 0 {
					line = afterLine
				}
				details = append(details, ChangeDetail{Line: line, Before: beforeText, After: afterText})
				if j < len(delLines) {
					beforeLine++
				}
				if j < len(insLines) {
					afterLine++
				}
			}
		case diffmatchpatch.DiffInsert:
			for _, line := range diffLines(d.Text) {
				details = append(details, ChangeDetail{Line: afterLine, Before: "", After: line})
				afterLine++
			}
		}
	}
	return details
}

// diffLines splits one diffmatchpatch chunk (which always ends each
// constituent line with "\n" except possibly the very last) into its
// component lines, without a trailing empty element.
func diffLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// LineStats computes (linesAdded, linesDeleted) for a unified diff produced
// by UnifiedDiff.
func LineStats(diff string) (added, deleted int) {
	body := stripUnifiedHeader(diff)
	// Each +/- body line is one URL-encoded chunk that may hold several
	// text lines, so decode it and count the lines it carries.
	count := func(enc string) int {
		text, err := url.QueryUnescape(strings.ReplaceAll(enc, "+", "%2b"))
		if err != nil {
			return 1
		}
		return len(diffLines(text))
	}
	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "@@"), strings.HasPrefix(line, "--- "), strings.HasPrefix(line, "+++ "):
			continue
		case strings.HasPrefix(line, "+"):
			added += count(line[1:])
		case strings.HasPrefix(line, "-"):
			deleted += count(line[1:])
		}
	}
	return added, deleted
}
