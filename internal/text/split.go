package text

import (
	"regexp"
	"strings"
)

// Chunk lengths are measured in UTF-8 bytes, the same measure the wire and
// the model input buffers use. CJK characters therefore weigh three bytes
// each, and configured length bounds account for that.

var reParagraph = regexp.MustCompile(`\n\s*\n`)

const (
	sentenceEnders = "。！？.!?"
	clauseEnders   = "，,、"
)

// Split segments text into chunks of at most maxLen bytes, preferring
// sentence boundaries, then clause boundaries. Terminal punctuation stays
// attached to the preceding unit. A unit with no boundary punctuation below
// the bound passes through oversized; see Oversized.
//
// Split is deterministic and order-preserving, and the chunks concatenate
// back to the input up to trimmed whitespace.
func Split(text string, maxLen int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if maxLen <= 0 || len(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	for _, para := range reParagraph.Split(text, -1) {
		sentences := splitAfter(para, sentenceEnders)
		for _, acc := range accumulate(sentences, maxLen) {
			if len(acc) <= maxLen {
				chunks = append(chunks, acc)
				continue
			}
			clauses := splitAfter(acc, clauseEnders)
			chunks = append(chunks, accumulate(clauses, maxLen)...)
		}
	}
	return chunks
}

// Oversized returns the indexes of chunks longer than maxLen bytes. These
// are units Split could not divide along sentence or clause punctuation and
// passed through unmodified; callers surface them for operators to monitor.
func Oversized(chunks []string, maxLen int) []int {
	var idx []int
	for i, c := range chunks {
		if len(c) > maxLen {
			idx = append(idx, i)
		}
	}
	return idx
}

// splitAfter cuts text after every rune found in enders, keeping the
// punctuation attached to the preceding piece.
func splitAfter(text string, enders string) []string {
	var units []string
	start := 0
	for i, r := range text {
		if strings.ContainsRune(enders, r) {
			end := i + len(string(r))
			units = append(units, text[start:end])
			start = end
		}
	}
	if start < len(text) {
		units = append(units, text[start:])
	}
	return units
}

// accumulate greedily packs consecutive units into chunks while the running
// chunk stays within maxLen bytes. Whitespace-only results are discarded.
func accumulate(units []string, maxLen int) []string {
	var chunks []string
	var cur strings.Builder
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			chunks = append(chunks, s)
		}
		cur.Reset()
	}
	for _, unit := range units {
		if cur.Len() > 0 && cur.Len()+len(unit) > maxLen {
			flush()
		}
		cur.WriteString(unit)
	}
	flush()
	return chunks
}
