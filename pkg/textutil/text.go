package textutil

import (
	"strings"

	"golang.org/x/net/html"
)

// StripHTML drops markup, script and style bodies from user supplied text
// and collapses whitespace.
func StripHTML(raw string) string {
	if !strings.ContainsAny(raw, "<&") {
		return Normalize(raw)
	}
	tokenizer := html.NewTokenizer(strings.NewReader(raw))
	var buf strings.Builder
	skip := 0
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return Normalize(buf.String())
		case html.StartTagToken:
			if name, _ := tokenizer.TagName(); isSkipped(name) {
				skip++
			}
			buf.WriteByte(' ')
		case html.EndTagToken:
			if name, _ := tokenizer.TagName(); isSkipped(name) && skip > 0 {
				skip--
			}
			buf.WriteByte(' ')
		case html.SelfClosingTagToken:
			buf.WriteByte(' ')
		case html.TextToken:
			if skip == 0 {
				buf.Write(tokenizer.Text())
			}
		}
	}
}

// Normalize removes NUL bytes and invalid UTF-8 and collapses runs of
// whitespace.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\x00", " ")
	text = strings.ToValidUTF8(text, "")
	return strings.Join(strings.Fields(text), " ")
}

// Truncate cuts text to at most max runes.
func Truncate(text string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}

func isSkipped(name []byte) bool {
	switch string(name) {
	case "script", "style":
		return true
	}
	return false
}
