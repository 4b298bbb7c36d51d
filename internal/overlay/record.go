package overlay

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Record is the serialized form of an annotation exchanged with the host.
type Record struct {
	Type    Kind     `json:"type"`
	GradeID int64    `json:"gradeid"`
	PageNo  int      `json:"pageno"`
	X       float64  `json:"x"`
	Y       float64  `json:"y"`
	EndX    *float64 `json:"endx,omitempty"`
	EndY    *float64 `json:"endy,omitempty"`
	Width   *float64 `json:"width,omitempty"`
	Colour  Colour   `json:"colour"`
	RawText string   `json:"rawtext,omitempty"`
	// Path is the pen stroke ("x1,y1:x2,y2") or the stamp file name.
	Path string `json:"path,omitempty"`
}

var ErrInvalidRecord = errors.New("overlay: invalid record")

// FromRecord rebuilds an annotation from its serialized form.
func FromRecord(r Record) (Annotation, error) {
	if !r.Type.valid() {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidRecord, r.Type)
	}
	if r.PageNo < 0 {
		return nil, fmt.Errorf("%w: negative page %d", ErrInvalidRecord, r.PageNo)
	}
	colour := r.Colour
	if colour != "" {
		c, err := ParseColour(string(colour))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
		}
		colour = c
	}

	if r.Type.IsText() {
		width := 0.0
		if r.Width != nil {
			width = *r.Width
		}
		if r.Type == KindHTMLComment {
			return NewHTMLComment(r.GradeID, r.PageNo, r.X, r.Y, width, colour, r.RawText), nil
		}
		return NewComment(r.GradeID, r.PageNo, r.X, r.Y, width, colour, r.RawText), nil
	}

	if colour == "" {
		colour = Red
	}
	s := &Shape{Type: r.Type, GradeID: r.GradeID, PageNo: r.PageNo, X: r.X, Y: r.Y, EndX: r.X, EndY: r.Y, Colour: colour}
	if r.EndX != nil {
		s.EndX = *r.EndX
	}
	if r.EndY != nil {
		s.EndY = *r.EndY
	}
	switch r.Type {
	case KindPen:
		path, err := ParsePath(r.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
		}
		s.Path = path
		if len(path) > 0 {
			b := Bound(path...)
			s.X, s.Y, s.EndX, s.EndY = b.X, b.Y, b.MaxX(), b.MaxY()
		}
	case KindStamp:
		if r.Path == "" {
			return nil, fmt.Errorf("%w: stamp without image", ErrInvalidRecord)
		}
		s.Stamp = r.Path
	}
	return s, nil
}

// EncodePath writes points as "x1,y1:x2,y2".
func EncodePath(points []Point) string {
	parts := make([]string, len(points))
	for i, p := range points {
		parts[i] = strconv.FormatFloat(p.X, 'f', -1, 64) + "," + strconv.FormatFloat(p.Y, 'f', -1, 64)
	}
	return strings.Join(parts, ":")
}

func ParsePath(s string) ([]Point, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	pairs := strings.Split(s, ":")
	points := make([]Point, 0, len(pairs))
	for _, pair := range pairs {
		xy := strings.Split(pair, ",")
		if len(xy) != 2 {
			return nil, fmt.Errorf("bad path point %q", pair)
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(xy[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("bad path point %q: %w", pair, err)
		}
		y, err := strconv.ParseFloat(strings.TrimSpace(xy[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("bad path point %q: %w", pair, err)
		}
		points = append(points, Point{X: x, Y: y})
	}
	return points, nil
}
