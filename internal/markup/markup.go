// Package markup normalizes generated text into the constrained Markdown
// subset the chat transport renders reliably: bold-only emphasis with
// balanced delimiters, no control characters the renderer chokes on, and a
// single-newline line structure.
package markup

import (
	"regexp"
	"strings"
)

// Bold is the emphasis delimiter accepted by the transport renderer.
const Bold = "*"

var (
	headingRe = regexp.MustCompile(`^#{1,6}\s*(.+)$`)
	starRunRe = regexp.MustCompile(`\*{2,}`)

	// headingLineRe matches a line whose entire leading run is wrapped in
	// the bold delimiter, e.g. "*1. Mobile Food Kiosk*".
	headingLineRe = regexp.MustCompile(`^\*([^*]+)\*`)
)

// disallowed lists Markdown control characters the renderer cannot be
// trusted with outside of the bold delimiter.
const disallowed = "_`[]#~"

// Sanitize rewrites an arbitrary generated text block into transport-safe
// markup. It is total (never fails on any input) and idempotent: sanitizing
// already-clean text yields the same text.
func Sanitize(text string) string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = sanitizeLine(line)
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func sanitizeLine(line string) string {
	line = strings.TrimSpace(line)
	if line == "" {
		return ""
	}

	// Header-style markup becomes the bold convention.
	if m := headingRe.FindStringSubmatch(line); m != nil {
		title := strings.TrimSpace(m[1])
		if !strings.HasPrefix(title, Bold) {
			title = Bold + title + Bold
		}
		line = title
	}

	// Collapse runs of delimiters ("**bold**" and worse) to single stars.
	line = starRunRe.ReplaceAllString(line, Bold)

	// Stripping can join two delimiters into a fresh run ("*#*" -> "**"),
	// so collapse once more afterwards.
	line = stripDisallowed(line)
	line = starRunRe.ReplaceAllString(line, Bold)

	line = spaceDelimiters(line)
	line = dropUnbalanced(line)
	return strings.TrimSpace(line)
}

// stripDisallowed removes characters outside the renderer's safe set.
func stripDisallowed(line string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(disallowed, r) {
			return -1
		}
		return r
	}, line)
}

// spaceDelimiters inserts a separating space after any delimiter wedged
// between two word characters, which would otherwise unbalance the
// renderer's emphasis parser.
func spaceDelimiters(line string) string {
	runes := []rune(line)
	var b strings.Builder
	for i, r := range runes {
		b.WriteRune(r)
		if r != '*' || i == 0 || i == len(runes)-1 {
			continue
		}
		prev, next := runes[i-1], runes[i+1]
		if prev != ' ' && prev != '*' && next != ' ' && next != '*' {
			b.WriteRune(' ')
		}
	}
	return b.String()
}

// dropUnbalanced removes the final delimiter when the line carries an odd
// number of them, so every emphasis span the renderer sees is closed.
func dropUnbalanced(line string) string {
	if strings.Count(line, Bold)%2 == 0 {
		return line
	}
	i := strings.LastIndex(line, Bold)
	return line[:i] + line[i+1:]
}

// ExtractHeadings scans sanitized text line by line and returns up to max
// labels from lines that open with a complete bold span. Fewer matches than
// max is not an error; callers simply build smaller menus.
func ExtractHeadings(text string, max int) []string {
	var headings []string
	for _, line := range strings.Split(text, "\n") {
		if len(headings) == max {
			break
		}
		m := headingLineRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		label := strings.TrimSpace(m[1])
		if label != "" {
			headings = append(headings, label)
		}
	}
	return headings
}
