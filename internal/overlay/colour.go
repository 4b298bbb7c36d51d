package overlay

import (
	"fmt"
	"strings"
)

type Colour string

const (
	Red    Colour = "red"
	Green  Colour = "green"
	Blue   Colour = "blue"
	White  Colour = "white"
	Black  Colour = "black"
	Yellow Colour = "yellow"
	Clear  Colour = "clear"
)

func ParseColour(s string) (Colour, error) {
	switch c := Colour(strings.ToLower(strings.TrimSpace(s))); c {
	case Red, Green, Blue, White, Black, Yellow, Clear:
		return c, nil
	}
	return "", fmt.Errorf("overlay: unknown colour %q", s)
}

type RGB struct {
	R, G, B uint8
}

func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// Comment backgrounds match the fills used when comments are stamped into the PDF.
var commentFills = map[Colour]RGB{
	Red:    {249, 181, 179},
	Green:  {214, 234, 178},
	Blue:   {203, 217, 237},
	White:  {255, 255, 255},
	Yellow: {255, 236, 174},
}

var strokes = map[Colour]RGB{
	Red:    {239, 69, 64},
	Green:  {153, 202, 62},
	Blue:   {125, 159, 211},
	White:  {255, 255, 255},
	Black:  {51, 51, 51},
	Yellow: {255, 207, 53},
}

// CommentFill returns the background of a comment and its opacity.
// Unknown colours fall back to yellow; clear is fully transparent.
func (c Colour) CommentFill() (RGB, float64) {
	if c == Clear {
		return commentFills[White], 0
	}
	if fill, ok := commentFills[c]; ok {
		return fill, 0.9
	}
	return commentFills[Yellow], 0.9
}

// Stroke returns the pen colour of a shape, red when unknown.
func (c Colour) Stroke() RGB {
	if s, ok := strokes[c]; ok {
		return s
	}
	return strokes[Red]
}

// Tool is the active editor tool. Exactly one is active at a time.
type Tool string

const (
	ToolSelect      Tool = "select"
	ToolDrag        Tool = "drag"
	ToolComment     Tool = "comment"
	ToolHTMLComment Tool = "htmlcomment"
	ToolPen         Tool = "pen"
	ToolLine        Tool = "line"
	ToolRectangle   Tool = "rectangle"
	ToolOval        Tool = "oval"
	ToolHighlight   Tool = "highlight"
	ToolStamp       Tool = "stamp"
)

func ParseTool(s string) (Tool, error) {
	t := Tool(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case ToolSelect, ToolDrag:
		return t, nil
	}
	if _, ok := toolKinds[t]; ok {
		return t, nil
	}
	return "", fmt.Errorf("overlay: unknown tool %q", s)
}

// Kind is the persisted type of an annotation.
type Kind string

const (
	KindLine        Kind = "line"
	KindOval        Kind = "oval"
	KindRectangle   Kind = "rectangle"
	KindHighlight   Kind = "highlight"
	KindPen         Kind = "pen"
	KindStamp       Kind = "stamp"
	KindComment     Kind = "comment"
	KindHTMLComment Kind = "htmlcomment"
)

var toolKinds = map[Tool]Kind{
	ToolComment:     KindComment,
	ToolHTMLComment: KindHTMLComment,
	ToolPen:         KindPen,
	ToolLine:        KindLine,
	ToolRectangle:   KindRectangle,
	ToolOval:        KindOval,
	ToolHighlight:   KindHighlight,
	ToolStamp:       KindStamp,
}

// Kind reports the annotation kind a tool creates. Select and drag create nothing.
func (t Tool) Kind() (Kind, bool) {
	k, ok := toolKinds[t]
	return k, ok
}

func (k Kind) IsText() bool {
	return k == KindComment || k == KindHTMLComment
}

func (k Kind) valid() bool {
	switch k {
	case KindLine, KindOval, KindRectangle, KindHighlight, KindPen, KindStamp, KindComment, KindHTMLComment:
		return true
	}
	return false
}
