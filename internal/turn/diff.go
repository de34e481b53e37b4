package turn

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Diff implements §4.6.3: a unified diff between old and new, with k
// lines of context around each change, used to render the
// write_file confirmation UI. It is grounded on the same
// diffmatchpatch line-diff technique internal/tool uses for tool
// metadata, but assembles hunks by hand so the context width and
// header format match the wire contract exactly rather than whatever
// diffmatchpatch's own patch serializer happens to produce.
func Diff(path string, old, new []byte, k int) string {
	oldNorm := strings.TrimRight(string(old), "\n")
	newNorm := strings.TrimRight(string(new), "\n")

	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(oldNorm, newNorm)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	entries := buildDiffEntries(diffs)
	hunks := buildHunks(entries, k)

	var b2 strings.Builder
	fmt.Fprintf(&b2, "--- a/%s\n+++ b/%s\n", path, path)
	for _, h := range hunks {
		b2.WriteString(h.render())
	}
	return b2.String()
}

// diffEntry is one line of the merged old/new walk: oldLine/newLine
// are 1-based line numbers in their respective file, 0 when the line
// does not exist on that side (an insert has no oldLine, a delete has
// no newLine).
type diffEntry struct {
	oldLine int
	newLine int
	text    string
	changed bool
	op      byte // ' ', '-', '+'
}

func buildDiffEntries(diffs []diffmatchpatch.Diff) []diffEntry {
	var entries []diffEntry
	oldLine, newLine := 0, 0
	for _, d := range diffs {
		for _, line := range splitDiffText(d.Text) {
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				oldLine++
				newLine++
				entries = append(entries, diffEntry{oldLine: oldLine, newLine: newLine, text: line, op: ' '})
			case diffmatchpatch.DiffDelete:
				oldLine++
				entries = append(entries, diffEntry{oldLine: oldLine, text: line, changed: true, op: '-'})
			case diffmatchpatch.DiffInsert:
				newLine++
				entries = append(entries, diffEntry{newLine: newLine, text: line, changed: true, op: '+'})
			}
		}
	}
	return entries
}

// splitDiffText recovers the individual lines diffmatchpatch folded
// back together from its line-to-char encoding. Every line but the
// file's last carries its own trailing newline; strip the empty
// element that produces, but keep a genuinely empty final line.
func splitDiffText(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

type hunk struct {
	oldStart, oldCount int
	newStart, newCount int
	entries            []diffEntry
}

func (h hunk) render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "@@ -%d,%d +%d,%d @@\n", h.oldStart, h.oldCount, h.newStart, h.newCount)
	for _, e := range h.entries {
		b.WriteByte(e.op)
		b.WriteString(e.text)
		b.WriteByte('\n')
	}
	return b.String()
}

// buildHunks groups entries into change regions padded with k lines
// of context on each side, merging regions whose padded windows
// overlap, per §4.6.3's "collapsing adjacent changes whose contexts
// overlap into one hunk".
func buildHunks(entries []diffEntry, k int) []hunk {
	if k < 0 {
		k = 0
	}

	type region struct{ start, end int } // inclusive entry indices of a maximal changed run
	var regions []region
	i := 0
	for i < len(entries) {
		if !entries[i].changed {
			i++
			continue
		}
		start := i
		for i < len(entries) && entries[i].changed {
			i++
		}
		regions = append(regions, region{start: start, end: i - 1})
	}
	if len(regions) == 0 {
		return nil
	}

	// Expand each region by k lines of context, clamped against file
	// bounds and neighboring regions, then merge overlapping windows.
	type window struct{ start, end int }
	var windows []window
	for idx, r := range regions {
		lowBound := 0
		if idx > 0 {
			lowBound = regions[idx-1].end + 1
		}
		highBound := len(entries) - 1
		if idx < len(regions)-1 {
			highBound = regions[idx+1].start - 1
		}
		start := r.start - k
		if start < lowBound {
			start = lowBound
		}
		end := r.end + k
		if end > highBound {
			end = highBound
		}
		windows = append(windows, window{start: start, end: end})
	}

	var merged []window
	for _, w := range windows {
		if len(merged) > 0 && w.start <= merged[len(merged)-1].end+1 {
			if w.end > merged[len(merged)-1].end {
				merged[len(merged)-1].end = w.end
			}
			continue
		}
		merged = append(merged, w)
	}

	oldCounterBefore := func(idx int) int {
		for j := idx - 1; j >= 0; j-- {
			if entries[j].oldLine > 0 {
				return entries[j].oldLine
			}
		}
		return 0
	}
	newCounterBefore := func(idx int) int {
		for j := idx - 1; j >= 0; j-- {
			if entries[j].newLine > 0 {
				return entries[j].newLine
			}
		}
		return 0
	}

	hunks := make([]hunk, 0, len(merged))
	for _, w := range merged {
		slice := entries[w.start : w.end+1]
		var oldCount, newCount int
		for _, e := range slice {
			if e.oldLine > 0 {
				oldCount++
			}
			if e.newLine > 0 {
				newCount++
			}
		}
		oldStart := oldCounterBefore(w.start)
		if oldCount > 0 {
			oldStart++
		}
		newStart := newCounterBefore(w.start)
		if newCount > 0 {
			newStart++
		}
		hunks = append(hunks, hunk{
			oldStart: oldStart, oldCount: oldCount,
			newStart: newStart, newCount: newCount,
			entries: slice,
		})
	}
	return hunks
}
