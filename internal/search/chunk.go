package search

import "strings"

// chunk splits text into pieces of at most maxChars characters with a
// small overlap between neighbors. Boundaries prefer paragraph breaks,
// then sentence ends, then a hard cut.
func chunk(text string, maxChars, overlapPercent int) []string {
	if maxChars <= 0 || len(text) <= maxChars {
		return []string{text}
	}

	overlap := maxChars * overlapPercent / 100
	if overlap >= maxChars/2 {
		overlap = maxChars / 2
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + maxChars
		if end >= len(text) {
			chunks = append(chunks, text[start:])
			break
		}

		cut := boundary(text, start, end)
		chunks = append(chunks, text[start:cut])

		next := cut - overlap
		if next <= start {
			next = cut
		}
		start = next
	}
	return chunks
}

// boundary finds the best cut point in text[start:end], scanning
// backwards from end: paragraph break first, then sentence end, then
// the hard limit.
func boundary(text string, start, end int) int {
	window := text[start:end]

	// Only accept a boundary in the back half so chunks stay near the
	// budget.
	min := len(window) / 2

	if i := strings.LastIndex(window, "\n\n"); i > min {
		return start + i + 2
	}

	best := -1
	for _, sep := range []string{". ", ".\n", "! ", "? ", "．"} {
		if i := strings.LastIndex(window, sep); i > min && i > best {
			best = i + len(sep)
		}
	}
	if best > 0 {
		return start + best
	}

	if i := strings.LastIndexByte(window, '\n'); i > min {
		return start + i + 1
	}
	if i := strings.LastIndexByte(window, ' '); i > min {
		return start + i + 1
	}
	return end
}
