package cms

import (
	"html"
	"sort"
	"strings"
	"unicode/utf16"
)

// Block is one rich text element (paragraph, heading, list item, image...).
type Block struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Spans []Span `json:"spans"`

	URL string `json:"url,omitempty"`
	Alt string `json:"alt,omitempty"`

	OEmbed *struct {
		HTML string `json:"html"`
	} `json:"oembed,omitempty"`
}

// Span marks up a range of a block's text. Offsets count UTF-16 code
// units, as produced by the Prismic editor.
type Span struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Type  string `json:"type"`
	Data  struct {
		URL    string `json:"url"`
		Target string `json:"target"`
		Label  string `json:"label"`
	} `json:"data"`
}

// RichText is an ordered list of blocks.
type RichText []Block

// First returns at most n leading blocks.
func (rt RichText) First(n int) RichText {
	if n < 0 {
		n = 0
	}
	if len(rt) <= n {
		return rt
	}
	return rt[:n]
}

// AsText joins the plain text of all blocks with a space.
func AsText(rt RichText) string {
	parts := make([]string, 0, len(rt))
	for _, b := range rt {
		parts = append(parts, b.Text)
	}
	return strings.Join(parts, " ")
}

// AsHTML renders blocks to HTML. Consecutive list items share one list
// element. Text is escaped; only span and block markup is emitted raw.
func AsHTML(rt RichText) string {
	var sb strings.Builder
	openList := ""

	closeList := func() {
		if openList != "" {
			sb.WriteString("</" + openList + ">")
			openList = ""
		}
	}

	for _, b := range rt {
		list := ""
		switch b.Type {
		case "list-item":
			list = "ul"
		case "o-list-item":
			list = "ol"
		}
		if list != openList {
			closeList()
			if list != "" {
				sb.WriteString("<" + list + ">")
				openList = list
			}
		}

		switch b.Type {
		case "heading1", "heading2", "heading3", "heading4", "heading5", "heading6":
			tag := "h" + b.Type[len(b.Type)-1:]
			sb.WriteString("<" + tag + ">" + renderSpans(b.Text, b.Spans) + "</" + tag + ">")
		case "preformatted":
			sb.WriteString("<pre>" + renderSpans(b.Text, b.Spans) + "</pre>")
		case "list-item", "o-list-item":
			sb.WriteString("<li>" + renderSpans(b.Text, b.Spans) + "</li>")
		case "image":
			sb.WriteString(`<p class="block-img"><img src="` + html.EscapeString(b.URL) + `" alt="` + html.EscapeString(b.Alt) + `" /></p>`)
		case "embed":
			if b.OEmbed != nil {
				sb.WriteString(`<div data-oembed="` + html.EscapeString(b.URL) + `">` + b.OEmbed.HTML + `</div>`)
			}
		default:
			sb.WriteString("<p>" + renderSpans(b.Text, b.Spans) + "</p>")
		}
	}
	closeList()
	return sb.String()
}

func openTag(s Span) string {
	switch s.Type {
	case "strong":
		return "<strong>"
	case "em":
		return "<em>"
	case "hyperlink":
		tag := `<a href="` + html.EscapeString(s.Data.URL) + `"`
		if s.Data.Target != "" {
			tag += ` target="` + html.EscapeString(s.Data.Target) + `" rel="noopener noreferrer"`
		}
		return tag + ">"
	case "label":
		return `<span class="` + html.EscapeString(s.Data.Label) + `">`
	}
	return ""
}

func closeTag(s Span) string {
	switch s.Type {
	case "strong":
		return "</strong>"
	case "em":
		return "</em>"
	case "hyperlink":
		return "</a>"
	case "label":
		return "</span>"
	}
	return ""
}

// renderSpans escapes text and wraps span ranges in their tags, keeping
// the output well nested when spans overlap.
func renderSpans(text string, spans []Span) string {
	units := utf16.Encode([]rune(text))
	n := len(units)

	valid := make([]Span, 0, len(spans))
	for _, s := range spans {
		if openTag(s) == "" || s.Start < 0 || s.End > n || s.Start >= s.End {
			continue
		}
		valid = append(valid, s)
	}
	// Longer spans open first so they enclose shorter ones starting at the same offset.
	sort.SliceStable(valid, func(i, j int) bool {
		if valid[i].Start != valid[j].Start {
			return valid[i].Start < valid[j].Start
		}
		return valid[i].End > valid[j].End
	})

	boundaries := map[int]struct{}{0: {}, n: {}}
	for _, s := range valid {
		boundaries[s.Start] = struct{}{}
		boundaries[s.End] = struct{}{}
	}
	points := make([]int, 0, len(boundaries))
	for p := range boundaries {
		points = append(points, p)
	}
	sort.Ints(points)

	var sb strings.Builder
	var stack []Span
	next := 0

	for i, pos := range points {
		// Close every span ending here. Spans opened after it are closed
		// and reopened so tags stay nested.
		var reopen []Span
		for k := len(stack) - 1; k >= 0; k-- {
			if stack[k].End != pos {
				continue
			}
			for j := len(stack) - 1; j > k; j-- {
				sb.WriteString(closeTag(stack[j]))
				if stack[j].End != pos {
					reopen = append([]Span{stack[j]}, reopen...)
				}
			}
			sb.WriteString(closeTag(stack[k]))
			stack = stack[:k]
			for _, r := range reopen {
				sb.WriteString(openTag(r))
				stack = append(stack, r)
			}
			reopen = nil
		}

		for next < len(valid) && valid[next].Start == pos {
			sb.WriteString(openTag(valid[next]))
			stack = append(stack, valid[next])
			next++
		}

		if i+1 < len(points) {
			segment := string(utf16.Decode(units[pos:points[i+1]]))
			sb.WriteString(strings.ReplaceAll(html.EscapeString(segment), "\n", "<br />"))
		}
	}
	for k := len(stack) - 1; k >= 0; k-- {
		sb.WriteString(closeTag(stack[k]))
	}
	return sb.String()
}
