package overlay

type NodeKind string

const (
	NodeLine     NodeKind = "line"
	NodeRect     NodeKind = "rect"
	NodeEllipse  NodeKind = "ellipse"
	NodePolyline NodeKind = "polyline"
	NodeImage    NodeKind = "image"
	NodeText     NodeKind = "text"
	NodeHTML     NodeKind = "html"
	NodeMarker   NodeKind = "marker"
)

// Node is one visual element of a Drawable. Geometry is in window space.
type Node struct {
	Kind        NodeKind `json:"kind"`
	Bounds      Rect     `json:"bounds"`
	Points      []Point  `json:"points,omitempty"`
	Stroke      string   `json:"stroke,omitempty"`
	StrokeWidth float64  `json:"strokewidth,omitempty"`
	Fill        string   `json:"fill,omitempty"`
	Opacity     float64  `json:"opacity,omitempty"`
	Text        string   `json:"text,omitempty"`
	Image       string   `json:"image,omitempty"`
	ReadOnly    bool     `json:"readonly,omitempty"`
}

type NodeID uint64

// Surface is where drawables place their nodes: a browser canvas behind a
// websocket in production, a recorder in tests.
type Surface interface {
	Place(n Node) NodeID
	Remove(id NodeID)
}

// Scene is everything an annotation needs to render itself.
type Scene struct {
	Surface  Surface
	Viewport Viewport
	ReadOnly bool
}

// Drawable is the rendered projection of an annotation. It holds no state of
// its own beyond the nodes it placed; erase it and draw again to refresh.
type Drawable struct {
	surface Surface
	nodes   []NodeID
	erased  bool
}

func newDrawable(s Surface) *Drawable {
	return &Drawable{surface: s}
}

func (d *Drawable) add(n Node) {
	d.nodes = append(d.nodes, d.surface.Place(n))
}

func (d *Drawable) Nodes() []NodeID {
	out := make([]NodeID, len(d.nodes))
	copy(out, d.nodes)
	return out
}

func (d *Drawable) Erased() bool {
	return d == nil || d.erased
}

// Erase removes every node from the surface. Calling it twice is harmless.
func (d *Drawable) Erase() {
	if d == nil || d.erased {
		return
	}
	for _, id := range d.nodes {
		d.surface.Remove(id)
	}
	d.nodes = nil
	d.erased = true
}
