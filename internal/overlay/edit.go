package overlay

import "math"

// Edit is an in-progress pointer gesture in page pixel space. Colours and
// stamp are copied when the gesture starts so that toolbar changes made
// while dragging do not reach it.
type Edit struct {
	Tool             Tool
	Start            Point
	End              Point
	Path             []Point
	CommentColour    Colour
	AnnotationColour Colour
	Stamp            string
}

func (e *Edit) Bounds() Rect {
	if e.Tool == ToolPen && len(e.Path) > 0 {
		return Bound(e.Path...)
	}
	return Bound(e.Start, e.End)
}

// shapeFromEdit lays out the shape an edit describes without checking its size.
func shapeFromEdit(e *Edit, kind Kind, gradeID int64, pageNo int) *Shape {
	b := e.Bounds()
	s := &Shape{
		Type:    kind,
		GradeID: gradeID,
		PageNo:  pageNo,
		X:       b.X,
		Y:       b.Y,
		EndX:    b.MaxX(),
		EndY:    b.MaxY(),
		Colour:  e.AnnotationColour,
	}
	switch kind {
	case KindLine:
		s.X, s.Y, s.EndX, s.EndY = e.Start.X, e.Start.Y, e.End.X, e.End.Y
	case KindHighlight:
		s.EndY = b.Y + HighlightHeight
	case KindPen:
		s.Path = append([]Point(nil), e.Path...)
	case KindStamp:
		s.Stamp = e.Stamp
	}
	return s
}

// promote turns a finished edit into an annotation. It reports false when
// the gesture is too small to keep.
func promote(e *Edit, gradeID int64, pageNo int) (Annotation, bool) {
	kind, ok := e.Tool.Kind()
	if !ok {
		return nil, false
	}
	b := e.Bounds()
	switch kind {
	case KindComment, KindHTMLComment:
		if b.Width < MinNoteSize || b.Height < MinNoteSize {
			return nil, false
		}
		n := newNote(gradeID, pageNo, b.X, b.Y, b.Width, e.CommentColour, "")
		n.Height = b.Height
		if kind == KindHTMLComment {
			return &HTMLComment{note: n}, true
		}
		return &Comment{note: n}, true
	case KindLine, KindPen:
		if kind == KindPen && len(e.Path) < 2 {
			return nil, false
		}
		if math.Max(b.Width, b.Height) < MinShapeSize {
			return nil, false
		}
	case KindHighlight:
		if b.Width < MinShapeSize {
			return nil, false
		}
	case KindStamp:
		if e.Stamp == "" || b.Width < MinShapeSize || b.Height < MinShapeSize {
			return nil, false
		}
	default:
		if b.Width < MinShapeSize || b.Height < MinShapeSize {
			return nil, false
		}
	}
	return shapeFromEdit(e, kind, gradeID, pageNo), true
}
