package bot

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"
)

// maxTextLen is the Telegram limit of one message
const maxTextLen = 4096

var (
	reHeading3 = regexp.MustCompile(`(?m)^#{3}\s+(.*?)$`)
	reHeading2 = regexp.MustCompile(`(?m)^#{2}\s+(.*?)$`)
	reHeading1 = regexp.MustCompile(`(?m)^#\s+(.*?)$`)
	reBold     = regexp.MustCompile(`(?s)\*\*(.*?)\*\*`)
	reItalic   = regexp.MustCompile(`(?s)_(.*?)_`)
)

// MarkdownToHTML converts the little Markdown the agent writes into Telegram HTML.
// Telegram has no <br>, headings become bold lines.
func MarkdownToHTML(md string) string {
	s := html.EscapeString(md)
	s = reHeading3.ReplaceAllString(s, "<b>${1}</b>\n")
	s = reHeading2.ReplaceAllString(s, "<b>${1}</b>\n")
	s = reHeading1.ReplaceAllString(s, "<b>${1}</b>\n")
	s = reBold.ReplaceAllString(s, "<b>${1}</b>")
	s = reItalic.ReplaceAllString(s, "<i>${1}</i>")
	return s
}

// splitText cuts s into parts of at most limit runes, preferring line breaks
func splitText(s string, limit int) []string {
	var parts []string
	for utf8.RuneCountInString(s) > limit {
		cut := byteOffset(s, limit)
		if i := strings.LastIndexByte(s[:cut], '\n'); i > 0 {
			cut = i + 1
		}
		parts = append(parts, s[:cut])
		s = s[cut:]
	}
	if len(s) > 0 || len(parts) == 0 {
		parts = append(parts, s)
	}
	return parts
}

// byteOffset returns the byte index of the n-th rune
func byteOffset(s string, n int) int {
	var i int
	for pos := range s {
		if i == n {
			return pos
		}
		i++
	}
	return len(s)
}

const boldMark = "**"

// formatAnswer cuts a Markdown answer into messages and converts each one.
// A bold span crossing a cut is closed and reopened so every part stays valid HTML.
func formatAnswer(md string) []string {
	parts := splitText(md, maxTextLen-2*len(boldMark))
	out := make([]string, 0, len(parts))
	var open bool
	for _, p := range parts {
		if open {
			p = boldMark + p
		}
		open = strings.Count(p, boldMark)%2 == 1
		if open {
			p += boldMark
		}
		out = append(out, MarkdownToHTML(p))
	}
	return out
}
