package telegram

import (
	"fmt"
	"sort"
	"unicode/utf16"

	"github.com/gotd/td/tg"
)

type textSpan struct {
	off, end  int
	pre, post string
}

// renderText applies formatting entities to the plain message body using
// markdown-style markers. Entity offsets count UTF-16 code units, so the
// text is re-encoded before splicing. Overlapping entities keep only the
// first; nesting is rare enough in practice not to matter for reports.
func renderText(text string, entities []tg.MessageEntityClass) string {
	if len(entities) == 0 {
		return text
	}

	units := utf16.Encode([]rune(text))
	spans := make([]textSpan, 0, len(entities))
	for _, e := range entities {
		var s textSpan
		switch v := e.(type) {
		case *tg.MessageEntityBold:
			s = textSpan{off: v.Offset, end: v.Offset + v.Length, pre: "**", post: "**"}
		case *tg.MessageEntityItalic:
			s = textSpan{off: v.Offset, end: v.Offset + v.Length, pre: "_", post: "_"}
		case *tg.MessageEntityCode:
			s = textSpan{off: v.Offset, end: v.Offset + v.Length, pre: "`", post: "`"}
		case *tg.MessageEntityPre:
			s = textSpan{off: v.Offset, end: v.Offset + v.Length, pre: "```\n", post: "\n```"}
		case *tg.MessageEntityStrike:
			s = textSpan{off: v.Offset, end: v.Offset + v.Length, pre: "~~", post: "~~"}
		case *tg.MessageEntityTextURL:
			s = textSpan{off: v.Offset, end: v.Offset + v.Length, pre: "[", post: fmt.Sprintf("](%s)", v.URL)}
		default:
			continue
		}
		if s.off < 0 || s.end > len(units) || s.off >= s.end {
			continue
		}
		spans = append(spans, s)
	}
	if len(spans) == 0 {
		return text
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].off < spans[j].off })

	var out []rune
	prev := 0
	for _, s := range spans {
		if s.off < prev {
			continue
		}
		out = append(out, utf16.Decode(units[prev:s.off])...)
		out = append(out, []rune(s.pre)...)
		out = append(out, utf16.Decode(units[s.off:s.end])...)
		out = append(out, []rune(s.post)...)
		prev = s.end
	}
	out = append(out, utf16.Decode(units[prev:])...)
	return string(out)
}
