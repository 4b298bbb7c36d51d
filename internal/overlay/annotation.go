package overlay

const (
	// MinShapeSize is the smallest extent a drawn shape may have.
	MinShapeSize = 5.0
	// MinNoteSize is the smallest box a comment can be created from.
	MinNoteSize = 40.0
	// MinNoteWidth is the narrowest a comment is ever rendered.
	MinNoteWidth = 100.0
	// MarkerSize is the side of the collapsed comment marker.
	MarkerSize = 24.0
	// HighlightHeight is the fixed height of a highlight stroke.
	HighlightHeight = 16.0

	strokeWidth = 4.0
)

// Annotation is a mark anchored to one page. The set of implementations is
// closed: *Shape, *Comment and *HTMLComment.
type Annotation interface {
	Kind() Kind
	Page() int
	Position() Point
	// Bounds is the stored geometry in page pixel space.
	Bounds() Rect
	// Draw replaces the current drawable with a fresh one built from the
	// annotation's fields.
	Draw(sc Scene) *Drawable
	// Move sets the position to (x, y), shifts the end point by the same delta
	// and redraws.
	Move(sc Scene, x, y float64)
	Erase()
	Drawable() *Drawable
	Record() Record

	// extent is the size kept inside the page while dragging.
	extent() (float64, float64)
	// hitRect is the area that reacts to the pointer.
	hitRect() Rect
}

// Shape covers every drawn annotation: line, oval, rectangle, highlight, pen and stamp.
type Shape struct {
	Type    Kind
	GradeID int64
	PageNo  int
	X, Y    float64
	EndX    float64
	EndY    float64
	Colour  Colour
	// Path holds the points of a pen stroke.
	Path []Point
	// Stamp is the image file of a stamp.
	Stamp string

	drawable *Drawable
}

func (s *Shape) Kind() Kind          { return s.Type }
func (s *Shape) Page() int           { return s.PageNo }
func (s *Shape) Position() Point     { return Point{X: s.X, Y: s.Y} }
func (s *Shape) Drawable() *Drawable { return s.drawable }

func (s *Shape) Bounds() Rect {
	if s.Type == KindPen && len(s.Path) > 0 {
		return Bound(s.Path...)
	}
	return Bound(Point{X: s.X, Y: s.Y}, Point{X: s.EndX, Y: s.EndY})
}

func (s *Shape) extent() (float64, float64) {
	b := s.Bounds()
	return b.Width, b.Height
}

func (s *Shape) hitRect() Rect {
	b := s.Bounds()
	// thin shapes still need something to grab
	pad := strokeWidth
	return Rect{X: b.X - pad, Y: b.Y - pad, Width: b.Width + 2*pad, Height: b.Height + 2*pad}
}

func (s *Shape) Draw(sc Scene) *Drawable {
	s.drawable.Erase()
	d := newDrawable(sc.Surface)
	stroke := s.Colour.Stroke().Hex()
	vp := sc.Viewport
	switch s.Type {
	case KindLine:
		pts := []Point{vp.ToWindow(Point{X: s.X, Y: s.Y}), vp.ToWindow(Point{X: s.EndX, Y: s.EndY})}
		d.add(Node{Kind: NodeLine, Bounds: Bound(pts...), Points: pts, Stroke: stroke, StrokeWidth: strokeWidth, ReadOnly: sc.ReadOnly})
	case KindRectangle:
		d.add(Node{Kind: NodeRect, Bounds: vp.RectToWindow(s.Bounds()), Stroke: stroke, StrokeWidth: strokeWidth, ReadOnly: sc.ReadOnly})
	case KindOval:
		d.add(Node{Kind: NodeEllipse, Bounds: vp.RectToWindow(s.Bounds()), Stroke: stroke, StrokeWidth: strokeWidth, ReadOnly: sc.ReadOnly})
	case KindHighlight:
		d.add(Node{Kind: NodeRect, Bounds: vp.RectToWindow(s.Bounds()), Fill: stroke, Opacity: 0.5, ReadOnly: sc.ReadOnly})
	case KindPen:
		pts := make([]Point, len(s.Path))
		for i, p := range s.Path {
			pts[i] = vp.ToWindow(p)
		}
		d.add(Node{Kind: NodePolyline, Bounds: Bound(pts...), Points: pts, Stroke: stroke, StrokeWidth: strokeWidth, ReadOnly: sc.ReadOnly})
	case KindStamp:
		d.add(Node{Kind: NodeImage, Bounds: vp.RectToWindow(s.Bounds()), Image: s.Stamp, ReadOnly: sc.ReadOnly})
	}
	s.drawable = d
	return d
}

func (s *Shape) Move(sc Scene, x, y float64) {
	dx, dy := x-s.X, y-s.Y
	s.X, s.Y = x, y
	s.EndX += dx
	s.EndY += dy
	for i := range s.Path {
		s.Path[i] = s.Path[i].Add(dx, dy)
	}
	s.Draw(sc)
}

func (s *Shape) Erase() {
	s.drawable.Erase()
}

func (s *Shape) Record() Record {
	r := Record{
		Type:    s.Type,
		GradeID: s.GradeID,
		PageNo:  s.PageNo,
		X:       s.X,
		Y:       s.Y,
		EndX:    f64(s.EndX),
		EndY:    f64(s.EndY),
		Colour:  s.Colour,
	}
	switch s.Type {
	case KindPen:
		r.Path = EncodePath(s.Path)
	case KindStamp:
		r.Path = s.Stamp
	}
	return r
}

func f64(v float64) *float64 { return &v }
