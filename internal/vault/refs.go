package vault

import (
	"regexp"
	"strings"
)

// Ref is one {Event Name (Year)} reference found in a note body.
type Ref struct {
	Text   string // inner text, trimmed
	Start  int    // byte offset of the opening brace
	End    int    // byte offset just past the closing brace
	Linked bool   // a [[..]] link already follows the reference
}

// refPattern matches single-line {…} references. Braces cannot nest and the
// inner text cannot span lines, which keeps YAML frontmatter flow mappings
// and code snippets from matching by accident.
var refPattern = regexp.MustCompile(`\{([^{}\n]+)\}`)

// fencePattern matches fenced code block delimiters (``` or ~~~) at the
// start of a line, allowing 0-3 spaces of indentation per CommonMark.
var fencePattern = regexp.MustCompile("(?m)^[ ]{0,3}(`{3,}|~{3,})")

// fencedRanges returns byte offset ranges [start, end) for fenced code
// blocks in text. A closing fence must use the same character as the
// opening fence and be at least as long.
func fencedRanges(text string) [][2]int {
	matches := fencePattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) < 2 {
		return nil
	}

	var ranges [][2]int
	var openChar byte
	var openLen int
	var openStart int
	inFence := false

	for _, match := range matches {
		// match indices: [fullStart, fullEnd, fenceCharsStart, fenceCharsEnd]
		fenceChars := text[match[2]:match[3]]
		char := fenceChars[0]
		fenceLen := len(fenceChars)

		if !inFence {
			openChar = char
			openLen = fenceLen
			openStart = match[0]
			inFence = true
		} else if char == openChar && fenceLen >= openLen {
			ranges = append(ranges, [2]int{openStart, match[1]})
			inFence = false
		}
		// Different char or shorter fence inside an open block: part of the block.
	}
	return ranges
}

// insideFence returns true if byte offset pos falls inside any fenced range.
func insideFence(pos int, ranges [][2]int) bool {
	for _, r := range ranges {
		if pos >= r[0] && pos < r[1] {
			return true
		}
	}
	return false
}

// ExtractRefs returns every {…} reference in text, in document order.
// References inside fenced code blocks are skipped; references whose inner
// text is blank are skipped. Each occurrence is reported separately, so the
// same event may appear more than once.
func ExtractRefs(text string) []Ref {
	matches := refPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}

	fences := fencedRanges(text)
	var refs []Ref
	for _, m := range matches {
		if insideFence(m[0], fences) {
			continue
		}
		inner := strings.TrimSpace(text[m[2]:m[3]])
		if inner == "" {
			continue
		}
		refs = append(refs, Ref{
			Text:   inner,
			Start:  m[0],
			End:    m[1],
			Linked: linkFollows(text, m[1]),
		})
	}
	return refs
}

// linkFollows reports whether a wiki link opens right after pos, allowing
// spaces or tabs in between.
func linkFollows(text string, pos int) bool {
	rest := text[pos:]
	rest = strings.TrimLeft(rest, " \t")
	return strings.HasPrefix(rest, "[[")
}

// InsertLink appends " [[target]]" after every unlinked occurrence of ref
// in text and reports whether anything changed. Already-linked occurrences
// and occurrences inside fenced code blocks are left alone, so repeated
// calls converge.
func InsertLink(text, ref, target string) (string, bool) {
	refs := ExtractRefs(text)
	changed := false
	// Insert back to front so earlier offsets stay valid.
	for i := len(refs) - 1; i >= 0; i-- {
		r := refs[i]
		if r.Linked || r.Text != ref {
			continue
		}
		text = text[:r.End] + " [[" + target + "]]" + text[r.End:]
		changed = true
	}
	return text, changed
}
