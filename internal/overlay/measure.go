package overlay

import (
	"math"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Measurer reports how tall content is when laid out at a given width, both in page pixels.
type Measurer interface {
	Measure(kind Kind, text string, width float64) float64
}

// LineMeasurer estimates wrapped text height from a fixed glyph advance.
type LineMeasurer struct {
	CharWidth  float64
	LineHeight float64
	Padding    float64
}

var DefaultMeasurer = LineMeasurer{CharWidth: 7, LineHeight: 16, Padding: 8}

func (m LineMeasurer) Measure(kind Kind, text string, width float64) float64 {
	if width < MinNoteWidth {
		width = MinNoteWidth
	}
	var lines []string
	if kind == KindHTMLComment {
		lines = htmlLines(text)
	} else {
		lines = strings.Split(text, "\n")
	}
	perLine := math.Max(1, math.Floor((width-m.Padding)/m.CharWidth))
	total := 0.0
	for _, l := range lines {
		n := float64(utf8.RuneCountInString(l))
		total += math.Max(1, math.Ceil(n/perLine))
	}
	if total == 0 {
		total = 1
	}
	return total*m.LineHeight + m.Padding
}

var blockTags = map[string]bool{
	"p": true, "div": true, "li": true, "tr": true, "h1": true, "h2": true,
	"h3": true, "h4": true, "h5": true, "h6": true, "pre": true, "blockquote": true,
}

// htmlLines flattens an HTML fragment into its visual lines of text.
func htmlLines(fragment string) []string {
	nodes, err := html.ParseFragment(strings.NewReader(fragment), &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div})
	if err != nil {
		return strings.Split(fragment, "\n")
	}
	var lines []string
	var cur strings.Builder
	flush := func() {
		lines = append(lines, strings.TrimSpace(cur.String()))
		cur.Reset()
	}
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			cur.WriteString(n.Data)
		case html.ElementNode:
			if n.Data == "br" {
				flush()
				return
			}
			if blockTags[n.Data] && strings.TrimSpace(cur.String()) != "" {
				flush()
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockTags[n.Data] {
			flush()
		}
	}
	for _, n := range nodes {
		walk(n)
	}
	if strings.TrimSpace(cur.String()) != "" || len(lines) == 0 {
		flush()
	}
	// Closing block tags leave empty trailing entries behind.
	for len(lines) > 1 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// PlainText strips markup from the content of an HTML comment.
func PlainText(kind Kind, text string) string {
	if kind != KindHTMLComment {
		return text
	}
	return strings.Join(htmlLines(text), " ")
}
