package text

import (
	"regexp"
	"strings"
	"unicode"
)

// Markdown stripping patterns, applied in order. Fenced code goes before
// inline code, images before links, bold before italic.
var (
	reFencedCode = regexp.MustCompile("(?s)```.*?```")
	reInlineCode = regexp.MustCompile("`([^`]+)`")
	reBoldStar   = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	reBoldUnder  = regexp.MustCompile(`__([^_]+)__`)
	reItalStar   = regexp.MustCompile(`\*([^*]+)\*`)
	reItalUnder  = regexp.MustCompile(`_([^_]+)_`)
	reStrike     = regexp.MustCompile(`~~([^~]+)~~`)
	reHeading    = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	reBlockquote = regexp.MustCompile(`(?m)^>\s*`)
	reBullet     = regexp.MustCompile(`(?m)^\s*[-*+]\s+`)
	reNumbered   = regexp.MustCompile(`(?m)^\s*\d+\.\s+`)
	reImage      = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	reLink       = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	reHTMLTag    = regexp.MustCompile(`<[^>]+>`)
	reWhitespace = regexp.MustCompile(`\s+`)
)

// emojiProsody maps a fixed set of emoji to punctuation that approximates
// their prosodic intent: a soft smile reads as a short pause, excitement as
// an exclamation, sadness as a trailing ellipsis. Emoji outside this table
// are dropped entirely.
var emojiProsody = map[rune]string{
	'😊': "，",
	'🙂': "，",
	'😀': "，",
	'😄': "！",
	'😁': "！",
	'🎉': "！",
	'🔥': "！",
	'💪': "！",
	'😢': "……",
	'😭': "……",
	'😔': "……",
	'💔': "……",
	'❤': "。",
	'👍': "。",
	'🤔': "？",
}

// Normalize strips markdown markup and decorative symbols from raw prose and
// collapses whitespace, leaving only script characters and punctuation the
// synthesis model can voice. It is pure and total: any input yields a string
// (possibly empty), and normalizing twice yields the same result.
func Normalize(raw string) string {
	s := raw
	s = reFencedCode.ReplaceAllString(s, "")
	s = reInlineCode.ReplaceAllString(s, "$1")
	s = reBoldStar.ReplaceAllString(s, "$1")
	s = reBoldUnder.ReplaceAllString(s, "$1")
	s = reItalStar.ReplaceAllString(s, "$1")
	s = reItalUnder.ReplaceAllString(s, "$1")
	s = reStrike.ReplaceAllString(s, "$1")
	s = reHeading.ReplaceAllString(s, "")
	s = reBlockquote.ReplaceAllString(s, "")
	s = reBullet.ReplaceAllString(s, "")
	s = reNumbered.ReplaceAllString(s, "")
	s = reImage.ReplaceAllString(s, "")
	s = reLink.ReplaceAllString(s, "$1")
	s = reHTMLTag.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "|", " ")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if sub, ok := emojiProsody[r]; ok {
			b.WriteString(sub)
			continue
		}
		if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsSpace(r) ||
			unicode.IsPunct(r) || unicode.IsMark(r) {
			b.WriteRune(r)
		}
	}

	return strings.TrimSpace(reWhitespace.ReplaceAllString(b.String(), " "))
}
