package dom

import (
	"io"
	"strings"
)

// voidElements are elements that cannot have children and have no closing tag.
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"source": true, "track": true, "wbr": true,
}

// Markup serializes n and its subtree to HTML. Markers render as comments so
// that the output round-trips the exact child sequence.
func Markup(n Node) string {
	var b strings.Builder
	_ = WriteMarkup(&b, n)
	return b.String()
}

// WriteMarkup writes the HTML serialization of n to w.
func WriteMarkup(w io.Writer, n Node) error {
	var b strings.Builder
	writeNode(&b, n)
	_, err := io.WriteString(w, b.String())
	return err
}

func writeNode(b *strings.Builder, n Node) {
	switch v := n.(type) {
	case *Element:
		b.WriteByte('<')
		b.WriteString(v.tag)
		for _, name := range v.AttrNames() {
			b.WriteByte(' ')
			b.WriteString(name)
			b.WriteString(`="`)
			b.WriteString(escapeAttr(v.attrs[name]))
			b.WriteByte('"')
		}
		b.WriteByte('>')
		if voidElements[v.tag] {
			return
		}
		for c := v.kids.first; c != nil; c = c.base().next {
			writeNode(b, c)
		}
		b.WriteString("</")
		b.WriteString(v.tag)
		b.WriteByte('>')
	case *Fragment:
		for c := v.kids.first; c != nil; c = c.base().next {
			writeNode(b, c)
		}
	case *Text:
		b.WriteString(escapeHTML(v.data))
	case *Comment:
		b.WriteString("<!--")
		b.WriteString(strings.ReplaceAll(v.data, "--", "- -"))
		b.WriteString("-->")
	}
}

// escapeHTML escapes text for safe inclusion in HTML content.
func escapeHTML(s string) string {
	var buf strings.Builder
	buf.Grow(len(s))

	for _, r := range s {
		switch r {
		case '&':
			buf.WriteString("&amp;")
		case '<':
			buf.WriteString("&lt;")
		case '>':
			buf.WriteString("&gt;")
		default:
			buf.WriteRune(r)
		}
	}

	return buf.String()
}

// escapeAttr escapes text for safe inclusion in double-quoted attribute
// values.
func escapeAttr(s string) string {
	var buf strings.Builder
	buf.Grow(len(s))

	for _, r := range s {
		switch r {
		case '&':
			buf.WriteString("&amp;")
		case '<':
			buf.WriteString("&lt;")
		case '"':
			buf.WriteString("&quot;")
		case '\n':
			buf.WriteString("&#10;")
		default:
			buf.WriteRune(r)
		}
	}

	return buf.String()
}
