// Package chunk splits outbound messages into transport-size-bounded parts.
//
// Splitting happens only at line boundaries so formatting survives delivery;
// joining the parts back with a newline reproduces the input exactly.
package chunk

import "strings"

// DefaultMaxLen is the default maximum part size in bytes, chosen to stay
// under the chat transport's hard message limit.
const DefaultMaxLen = 4000

// Split breaks text into an ordered, non-empty sequence of parts, each at
// most max bytes. Lines are accumulated greedily; a part is sealed when the
// next line would push it over max. A single line longer than max becomes a
// part of its own and may exceed the nominal limit.
func Split(text string, max int) []string {
	if max <= 0 {
		max = DefaultMaxLen
	}

	lines := strings.Split(text, "\n")
	var parts []string
	var current []string
	length := 0

	for _, line := range lines {
		// +1 accounts for the newline re-inserted on join.
		if len(current) > 0 && length+len(line)+1 > max {
			part := strings.Join(current, "\n")
			if part != "" {
				parts = append(parts, part)
				current = []string{line}
				length = len(line) + 1
				continue
			}
			// A run of blank lines never becomes a part of its own; keep
			// accumulating so it stays attached to the next real line.
		}
		current = append(current, line)
		length += len(line) + 1
	}
	return append(parts, strings.Join(current, "\n"))
}
