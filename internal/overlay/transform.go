package overlay

import "errors"

const (
	// PixelsPerInch is the resolution of page pixel space, the space records are stored in.
	PixelsPerInch = 100.0
	// PointsPerInch is the resolution of PDF user space.
	PointsPerInch = 72.0
	// PDFScale converts page pixels into PDF points when stamping the final document.
	PDFScale = PointsPerInch / PixelsPerInch
)

var ErrInvalidScale = errors.New("overlay: scale must be positive")

// Transform maps between window space and page pixel space for one rendered page.
// It is a pure function of the zoom factor and the page's render offset.
type Transform struct {
	Scale   float64 `json:"scale"`
	OffsetX float64 `json:"offsetx"`
	OffsetY float64 `json:"offsety"`
}

func (t Transform) Validate() error {
	if !(t.Scale > 0) {
		return ErrInvalidScale
	}
	return nil
}

// ToPage converts a window point into page pixel space.
func (t Transform) ToPage(p Point) Point {
	return Point{X: (p.X - t.OffsetX) / t.Scale, Y: (p.Y - t.OffsetY) / t.Scale}
}

// ToWindow converts a page pixel point into window space.
func (t Transform) ToWindow(p Point) Point {
	return Point{X: p.X*t.Scale + t.OffsetX, Y: p.Y*t.Scale + t.OffsetY}
}

func (t Transform) RectToWindow(r Rect) Rect {
	o := t.ToWindow(r.Origin())
	return Rect{X: o.X, Y: o.Y, Width: r.Width * t.Scale, Height: r.Height * t.Scale}
}

// Viewport describes how the current page is laid out on screen.
// Width and Height are the page size in page pixels.
type Viewport struct {
	Transform
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (v Viewport) Validate() error {
	if err := v.Transform.Validate(); err != nil {
		return err
	}
	if v.Width <= 0 || v.Height <= 0 {
		return errors.New("overlay: viewport has no area")
	}
	return nil
}

// Bounds is the page area in page pixel space.
func (v Viewport) Bounds() Rect {
	return Rect{Width: v.Width, Height: v.Height}
}

func ToPDFPoints(p Point) Point {
	return Point{X: p.X * PDFScale, Y: p.Y * PDFScale}
}

func FromPDFPoints(p Point) Point {
	return Point{X: p.X / PDFScale, Y: p.Y / PDFScale}
}

// PagePixels converts a page size reported in PDF points into page pixels.
func PagePixels(widthPt, heightPt float64) (float64, float64) {
	return widthPt / PDFScale, heightPt / PDFScale
}
