package overlay

import "strings"

// note carries the state shared by plain and rich text comments.
type note struct {
	GradeID int64
	PageNo  int
	X, Y    float64
	Width   float64
	// Height is the measured height of the content, refreshed after every edit.
	Height  float64
	Colour  Colour
	RawText string

	drawable  *Drawable
	collapsed bool
	active    bool
	dragging  bool
	deleteMe  bool

	deleteTimer   Timer
	collapseTimer Timer
}

// TextAnnotation is implemented by *Comment and *HTMLComment.
type TextAnnotation interface {
	Annotation
	Text() string
	Collapsed() bool
	Active() bool
	textNote() *note
}

type Comment struct{ note }

type HTMLComment struct{ note }

func NewComment(gradeID int64, pageNo int, x, y, width float64, colour Colour, text string) *Comment {
	return &Comment{note: newNote(gradeID, pageNo, x, y, width, colour, text)}
}

func NewHTMLComment(gradeID int64, pageNo int, x, y, width float64, colour Colour, text string) *HTMLComment {
	return &HTMLComment{note: newNote(gradeID, pageNo, x, y, width, colour, text)}
}

func newNote(gradeID int64, pageNo int, x, y, width float64, colour Colour, text string) note {
	if colour == "" {
		colour = Yellow
	}
	return note{GradeID: gradeID, PageNo: pageNo, X: x, Y: y, Width: width, Colour: colour, RawText: text}
}

func (n *note) Page() int           { return n.PageNo }
func (n *note) Position() Point     { return Point{X: n.X, Y: n.Y} }
func (n *note) Drawable() *Drawable { return n.drawable }
func (n *note) Text() string        { return n.RawText }
func (n *note) Collapsed() bool     { return n.collapsed }
func (n *note) Active() bool        { return n.active }
func (n *note) textNote() *note     { return n }

func (n *note) Bounds() Rect {
	return Rect{X: n.X, Y: n.Y, Width: n.Width, Height: n.Height}
}

func (n *note) extent() (float64, float64) {
	return MarkerSize, MarkerSize
}

func (n *note) hitRect() Rect {
	if n.collapsed {
		return Rect{X: n.X, Y: n.Y, Width: MarkerSize, Height: MarkerSize}
	}
	return n.rendered()
}

// rendered is the box the content occupies on the page.
func (n *note) rendered() Rect {
	w := n.Width
	if w < MinNoteWidth {
		w = MinNoteWidth
	}
	h := n.Height
	if h < MarkerSize {
		h = MarkerSize
	}
	return Rect{X: n.X, Y: n.Y, Width: w, Height: h}
}

func (n *note) empty() bool {
	return strings.TrimSpace(n.RawText) == ""
}

func (n *note) Erase() {
	n.drawable.Erase()
}

func (n *note) draw(sc Scene, content NodeKind) *Drawable {
	n.drawable.Erase()
	d := newDrawable(sc.Surface)
	fill, opacity := n.Colour.CommentFill()
	pos := sc.Viewport.ToWindow(n.Position())
	if !n.collapsed {
		d.add(Node{
			Kind:     content,
			Bounds:   sc.Viewport.RectToWindow(n.rendered()),
			Fill:     fill.Hex(),
			Opacity:  opacity,
			Text:     n.RawText,
			ReadOnly: sc.ReadOnly,
		})
	}
	size := MarkerSize * sc.Viewport.Scale
	d.add(Node{
		Kind:     NodeMarker,
		Bounds:   Rect{X: pos.X, Y: pos.Y, Width: size, Height: size},
		Fill:     fill.Hex(),
		Opacity:  opacity,
		Stroke:   "#999999",
		ReadOnly: sc.ReadOnly,
	})
	n.drawable = d
	return d
}

func (n *note) record(kind Kind) Record {
	return Record{
		Type:    kind,
		GradeID: n.GradeID,
		PageNo:  n.PageNo,
		X:       n.X,
		Y:       n.Y,
		Width:   f64(n.Width),
		Colour:  n.Colour,
		RawText: n.RawText,
	}
}

// stopTimers cancels pending collapse and delete callbacks.
func (n *note) stopTimers() {
	if n.deleteTimer != nil {
		n.deleteTimer.Stop()
		n.deleteTimer = nil
	}
	if n.collapseTimer != nil {
		n.collapseTimer.Stop()
		n.collapseTimer = nil
	}
}

func (c *Comment) Kind() Kind              { return KindComment }
func (c *Comment) Draw(sc Scene) *Drawable { return c.draw(sc, NodeText) }
func (c *Comment) Record() Record          { return c.record(KindComment) }
func (c *Comment) Move(sc Scene, x, y float64) {
	c.X, c.Y = x, y
	c.Draw(sc)
}

func (h *HTMLComment) Kind() Kind              { return KindHTMLComment }
func (h *HTMLComment) Draw(sc Scene) *Drawable { return h.draw(sc, NodeHTML) }
func (h *HTMLComment) Record() Record          { return h.record(KindHTMLComment) }
func (h *HTMLComment) Move(sc Scene, x, y float64) {
	h.X, h.Y = x, y
	h.Draw(sc)
}
