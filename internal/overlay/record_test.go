package overlay

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathEncoding(t *testing.T) {
	pts := []Point{{X: 1, Y: 2}, {X: 3.5, Y: 4.25}}
	s := EncodePath(pts)
	assert.Equal(t, "1,2:3.5,4.25", s)

	back, err := ParsePath(s)
	require.NoError(t, err)
	assert.Equal(t, pts, back)

	empty, err := ParsePath("  ")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = ParsePath("1,2:3")
	assert.Error(t, err)
	_, err = ParsePath("1,x")
	assert.Error(t, err)
}

func TestFromRecordShapes(t *testing.T) {
	a, err := FromRecord(Record{Type: KindLine, PageNo: 1, X: 10, Y: 20, EndX: f64(5), EndY: f64(50)})
	require.NoError(t, err)
	line := a.(*Shape)
	assert.Equal(t, Red, line.Colour)
	assert.Equal(t, Point{X: 10, Y: 20}, line.Position())
	assert.Equal(t, Rect{X: 5, Y: 20, Width: 5, Height: 30}, line.Bounds())

	a, err = FromRecord(Record{Type: KindPen, X: 0, Y: 0, Colour: "Blue", Path: "10,10:30,5:20,40"})
	require.NoError(t, err)
	pen := a.(*Shape)
	assert.Equal(t, Blue, pen.Colour)
	assert.Equal(t, Rect{X: 10, Y: 5, Width: 20, Height: 35}, pen.Bounds())
	assert.Equal(t, "10,10:30,5:20,40", pen.Record().Path)

	a, err = FromRecord(Record{Type: KindStamp, X: 1, Y: 1, EndX: f64(41), EndY: f64(41), Path: "tick.png"})
	require.NoError(t, err)
	assert.Equal(t, "tick.png", a.(*Shape).Stamp)
	assert.Equal(t, "tick.png", a.Record().Path)
}

func TestFromRecordComments(t *testing.T) {
	a, err := FromRecord(Record{Type: KindHTMLComment, GradeID: 3, PageNo: 2, X: 4, Y: 5, Width: f64(83.3), RawText: "<b>ok</b>"})
	require.NoError(t, err)
	n, ok := a.(*HTMLComment)
	require.True(t, ok)
	assert.Equal(t, Yellow, n.Colour)
	assert.Equal(t, 83.3, n.Width)
	assert.Equal(t, "<b>ok</b>", n.Text())
	assert.Equal(t, 2, n.Page())
}

func TestFromRecordInvalid(t *testing.T) {
	tests := []Record{
		{Type: "circle"},
		{Type: KindLine, PageNo: -1},
		{Type: KindRectangle, Colour: "purple"},
		{Type: KindPen, Path: "1;2"},
		{Type: KindStamp},
	}
	for _, r := range tests {
		_, err := FromRecord(r)
		assert.ErrorIs(t, err, ErrInvalidRecord, "%+v", r)
	}
}

func TestRecordJSON(t *testing.T) {
	c := NewComment(9, 0, 1, 2, 150, Green, "hi")
	b, err := json.Marshal(c.Record())
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"comment","gradeid":9,"pageno":0,"x":1,"y":2,"width":150,"colour":"green","rawtext":"hi"}`, string(b))
}
